package store

import (
	"fmt"

	"go-aidr/types"
)

// SetConnection records the push connection state. Only the connection
// manager calls this.
func (s *Store) SetConnection(state types.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == state {
		return
	}
	s.conn = state
	s.commit(ChangeConnection, "")
}

func (s *Store) SetLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
	s.commit(ChangeStatus, "")
}

// SetError sets the process-wide error shown to the operator. An empty
// message clears it.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errMsg == msg {
		return
	}
	s.errMsg = msg
	s.commit(ChangeStatus, "")
}

// AddIncident prepends a new incident, or replaces an existing one in place.
// A replacement never moves the status backwards. Reports whether the
// incident was new.
func (s *Store) AddIncident(inc types.Incident) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.incidents {
		if s.incidents[i].ID == inc.ID {
			inc.Status = s.incidents[i].Status.Later(inc.Status)
			s.incidents[i] = inc
			s.commit(ChangeIncident, inc.ID)
			return false
		}
	}
	s.incidents = prepend(s.incidents, inc)
	s.commit(ChangeIncident, inc.ID)
	return true
}

// UpdateIncident applies fn to a copy of the incident and stores the result.
// The id cannot change and the status cannot regress.
func (s *Store) UpdateIncident(id string, fn func(*types.Incident)) (types.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.incidents {
		if s.incidents[i].ID != id {
			continue
		}
		next := s.incidents[i]
		fn(&next)
		next.ID = id
		next.Status = s.incidents[i].Status.Later(next.Status)
		s.incidents[i] = next
		s.commit(ChangeIncident, id)
		return next, nil
	}
	return types.Incident{}, fmt.Errorf("incident %s: %w", id, ErrIncidentNotFound)
}

// UpsertResource replaces the resource with the same id, or appends it.
func (s *Store) UpsertResource(r types.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.resources {
		if s.resources[i].ID == r.ID {
			s.resources[i] = r
			s.commit(ChangeResource, r.ID)
			return
		}
	}
	s.resources = append(s.resources, r)
	s.commit(ChangeResource, r.ID)
}

// AddRecommendation puts a mission at the head of the pending list, or
// replaces a pending mission with the same id. A recommendation for a mission
// that is already active is ignored. Reports whether it was applied.
func (s *Store) AddRecommendation(m types.Mission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if indexMission(s.active, m.ID) >= 0 {
		return false
	}
	m.Status = types.MissionRecommended
	if i := indexMission(s.pending, m.ID); i >= 0 {
		s.pending[i] = m
	} else {
		s.pending = prepend(s.pending, m)
	}
	s.commit(ChangeMission, m.ID)
	return true
}

// ApproveMission moves a pending mission to the head of the active list with
// the resource assigned and the approval time stamped. check runs against the
// resource under the same lock and may veto the approval. Nothing changes on
// error.
func (s *Store) ApproveMission(missionID, resourceID string, check func(types.Resource) error) (types.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi := indexMission(s.pending, missionID)
	if mi < 0 {
		return types.Mission{}, fmt.Errorf("mission %s: %w", missionID, ErrMissionNotPending)
	}
	ri := indexResource(s.resources, resourceID)
	if ri < 0 {
		return types.Mission{}, fmt.Errorf("resource %s: %w", resourceID, ErrUnknownResource)
	}
	if check != nil {
		if err := check(s.resources[ri]); err != nil {
			return types.Mission{}, err
		}
	}

	approved := s.pending[mi]
	if !approved.Status.CanTransition(types.MissionApproved) {
		return types.Mission{}, fmt.Errorf("mission %s %s -> %s: %w",
			missionID, approved.Status, types.MissionApproved, types.ErrInvalidTransition)
	}
	at := s.now().UTC()
	approved.Status = types.MissionApproved
	approved.AssignedResourceID = resourceID
	approved.ApprovalTimestamp = &at

	s.pending = removeAt(s.pending, mi)
	s.active = prepend(s.active, approved)
	s.commit(ChangeMission, missionID)
	return approved, nil
}

// RejectMission drops a pending recommendation and returns it with its status
// set to rejected. Rejected missions are not retained by the store.
func (s *Store) RejectMission(missionID string) (types.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi := indexMission(s.pending, missionID)
	if mi < 0 {
		return types.Mission{}, fmt.Errorf("mission %s: %w", missionID, ErrMissionNotPending)
	}
	rejected := s.pending[mi]
	rejected.Status = types.MissionRejected
	s.pending = removeAt(s.pending, mi)
	s.commit(ChangeMission, missionID)
	return rejected, nil
}

// UpdateActiveMission applies fn to a copy of an active mission. The mission
// stays where it is in the active list; fn returning an error leaves the
// store unchanged.
func (s *Store) UpdateActiveMission(missionID string, fn func(*types.Mission) error) (types.Mission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mi := indexMission(s.active, missionID)
	if mi < 0 {
		return types.Mission{}, fmt.Errorf("mission %s: %w", missionID, ErrMissionNotActive)
	}
	next := s.active[mi]
	if err := fn(&next); err != nil {
		return types.Mission{}, err
	}
	next.ID = missionID
	s.active[mi] = next
	s.commit(ChangeMission, missionID)
	return next, nil
}

// SetDamageAreas replaces the whole damage area collection.
func (s *Store) SetDamageAreas(areas []types.DamageArea) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.damageAreas = clone(areas)
	s.commit(ChangeDamageAreas, "")
}

// UpsertAgentStatus overwrites the record for the status's agent type. The
// last-update time is the receipt time.
func (s *Store) UpsertAgentStatus(st types.AgentStatus) types.AgentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.LastUpdate = s.now().UTC()
	s.agents[st.AgentType] = st
	s.commit(ChangeAgentStatus, string(st.AgentType))
	return st
}

func (s *Store) SetTasks(tasks []types.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = clone(tasks)
	s.commit(ChangeTasks, "")
}

// UpdateTask applies fn to a copy of the task. It returns the task as it was
// before and after; fn returning an error leaves the store unchanged.
func (s *Store) UpdateTask(taskID string, fn func(*types.Task) error) (before, after types.Task, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tasks {
		if s.tasks[i].ID != taskID {
			continue
		}
		before = s.tasks[i]
		after = before
		if err := fn(&after); err != nil {
			return before, before, err
		}
		after.ID = taskID
		s.tasks[i] = after
		s.commit(ChangeTask, taskID)
		return before, after, nil
	}
	return types.Task{}, types.Task{}, fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
}

func (s *Store) SetDamageReports(reports []types.DamageReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.damageReports = clone(reports)
	s.commit(ChangeDamageReports, "")
}

func (s *Store) SetDisasters(disasters []types.Disaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disasters = clone(disasters)
	s.commit(ChangeDisasters, "")
}

func indexMission(ms []types.Mission, id string) int {
	for i := range ms {
		if ms[i].ID == id {
			return i
		}
	}
	return -1
}

func indexResource(rs []types.Resource, id string) int {
	for i := range rs {
		if rs[i].ID == id {
			return i
		}
	}
	return -1
}

func prepend[T any](xs []T, x T) []T {
	out := make([]T, 0, len(xs)+1)
	out = append(out, x)
	return append(out, xs...)
}

func removeAt[T any](xs []T, i int) []T {
	out := make([]T, 0, len(xs)-1)
	out = append(out, xs[:i]...)
	return append(out, xs[i+1:]...)
}

func clone[T any](xs []T) []T {
	if xs == nil {
		return nil
	}
	out := make([]T, len(xs))
	copy(out, xs)
	return out
}
