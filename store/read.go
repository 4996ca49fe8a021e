package store

import (
	"maps"

	"go-aidr/types"
)

// View is a consistent copy of the whole read model at one version.
type View struct {
	Version         uint64                                `json:"version"`
	Connection      types.ConnectionState                 `json:"connection"`
	Loading         bool                                  `json:"loading"`
	Error           string                                `json:"error,omitempty"`
	Incidents       []types.Incident                      `json:"incidents"`
	Resources       []types.Resource                      `json:"resources"`
	PendingMissions []types.Mission                       `json:"missionRecommendations"`
	ActiveMissions  []types.Mission                       `json:"activeMissions"`
	DamageAreas     []types.DamageArea                    `json:"damageAreas"`
	AgentStatuses   map[types.AgentType]types.AgentStatus `json:"agentStatuses"`
	Tasks           []types.Task                          `json:"tasks"`
	DamageReports   []types.DamageReport                  `json:"damageReports"`
	Disasters       []types.Disaster                      `json:"disasters"`
}

func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		Version:         s.version,
		Connection:      s.conn,
		Loading:         s.loading,
		Error:           s.errMsg,
		Incidents:       orEmpty(s.incidents),
		Resources:       orEmpty(s.resources),
		PendingMissions: orEmpty(s.pending),
		ActiveMissions:  orEmpty(s.active),
		DamageAreas:     orEmpty(s.damageAreas),
		AgentStatuses:   maps.Clone(s.agents),
		Tasks:           orEmpty(s.tasks),
		DamageReports:   orEmpty(s.damageReports),
		Disasters:       orEmpty(s.disasters),
	}
}

func (s *Store) Connection() types.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

func (s *Store) Incidents() []types.Incident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.incidents)
}

func (s *Store) Incident(id string) (types.Incident, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inc := range s.incidents {
		if inc.ID == id {
			return inc, true
		}
	}
	return types.Incident{}, false
}

func (s *Store) Resources() []types.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.resources)
}

func (s *Store) Resource(id string) (types.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexResource(s.resources, id); i >= 0 {
		return s.resources[i], true
	}
	return types.Resource{}, false
}

func (s *Store) PendingMissions() []types.Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.pending)
}

func (s *Store) ActiveMissions() []types.Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.active)
}

// Mission finds a mission in either list. active reports which list holds it.
func (s *Store) Mission(id string) (m types.Mission, active bool, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexMission(s.pending, id); i >= 0 {
		return s.pending[i], false, true
	}
	if i := indexMission(s.active, id); i >= 0 {
		return s.active[i], true, true
	}
	return types.Mission{}, false, false
}

func (s *Store) DamageAreas() []types.DamageArea {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.damageAreas)
}

// AgentStatus returns the record for an agent type. A stage that has never
// reported reads as idle.
func (s *Store) AgentStatus(t types.AgentType) types.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.agents[t]; ok {
		return st
	}
	return types.AgentStatus{AgentType: t, Status: types.AgentIdle}
}

func (s *Store) AgentStatuses() map[types.AgentType]types.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.agents)
}

func (s *Store) Tasks() []types.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.tasks)
}

func (s *Store) Task(id string) (types.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return types.Task{}, false
}

func (s *Store) DamageReports() []types.DamageReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.damageReports)
}

func (s *Store) Disasters() []types.Disaster {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return orEmpty(s.disasters)
}

// AssignedResource resolves a mission's resource reference. ok is false when
// the mission has no assignment or the resource is gone (stale reference).
func (s *Store) AssignedResource(m types.Mission) (types.Resource, bool) {
	if m.AssignedResourceID == "" {
		return types.Resource{}, false
	}
	return s.Resource(m.AssignedResourceID)
}

// ContributingIncidents resolves an area's incident references. Ids with no
// matching incident are returned in stale.
func (s *Store) ContributingIncidents(area types.DamageArea) (found []types.Incident, stale []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := make(map[string]types.Incident, len(s.incidents))
	for _, inc := range s.incidents {
		byID[inc.ID] = inc
	}
	for _, id := range area.ContributingIncidents {
		if inc, ok := byID[id]; ok {
			found = append(found, inc)
		} else {
			stale = append(stale, id)
		}
	}
	return found, stale
}

func orEmpty[T any](xs []T) []T {
	out := make([]T, len(xs))
	copy(out, xs)
	return out
}
