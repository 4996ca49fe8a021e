package store

import (
	"sort"
	"time"

	"go-aidr/types"
)

// Snapshot is a bulk load from a snapshot source. A nil collection was not
// fetched and is left alone; an empty non-nil one clears the collection.
type Snapshot struct {
	Incidents     []types.Incident
	Resources     []types.Resource
	Missions      []types.Mission
	DamageAreas   []types.DamageArea
	Tasks         []types.Task
	DamageReports []types.DamageReport
	Disasters     []types.Disaster
}

// Merge overlays the collections present in other onto s.
func (s Snapshot) Merge(other Snapshot) Snapshot {
	if other.Incidents != nil {
		s.Incidents = other.Incidents
	}
	if other.Resources != nil {
		s.Resources = other.Resources
	}
	if other.Missions != nil {
		s.Missions = other.Missions
	}
	if other.DamageAreas != nil {
		s.DamageAreas = other.DamageAreas
	}
	if other.Tasks != nil {
		s.Tasks = other.Tasks
	}
	if other.DamageReports != nil {
		s.DamageReports = other.DamageReports
	}
	if other.Disasters != nil {
		s.Disasters = other.Disasters
	}
	return s
}

// ReplaceSnapshot merges every collection present in snap as one mutation.
//
// Incidents, resources and missions are upserted by id: entries held but
// missing from the snapshot stay, since they may have arrived on the push
// stream after the snapshot was read. Incident statuses are not regressed.
// Missions are split by status: recommended ones become pending, approved and
// later ones active, rejected ones are dropped. A held active mission only
// takes a snapshot status further along its state machine and never returns
// to pending. Incidents and missions are kept newest first.
//
// Damage areas, tasks, damage reports and disasters are replaced wholesale.
func (s *Store) ReplaceSnapshot(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Incidents != nil {
		s.incidents = mergeIncidents(s.incidents, snap.Incidents)
	}
	if snap.Resources != nil {
		s.resources = mergeResources(s.resources, snap.Resources)
	}
	if snap.Missions != nil {
		s.pending, s.active = mergeMissions(s.pending, s.active, snap.Missions)
	}
	if snap.DamageAreas != nil {
		s.damageAreas = clone(snap.DamageAreas)
	}
	if snap.Tasks != nil {
		s.tasks = clone(snap.Tasks)
	}
	if snap.DamageReports != nil {
		s.damageReports = clone(snap.DamageReports)
	}
	if snap.Disasters != nil {
		s.disasters = clone(snap.Disasters)
	}
	s.commit(ChangeSnapshot, "")
}

func mergeIncidents(held, snap []types.Incident) []types.Incident {
	out := clone(held)
	at := make(map[string]int, len(out))
	for i, inc := range out {
		at[inc.ID] = i
	}
	for _, inc := range snap {
		if i, ok := at[inc.ID]; ok {
			inc.Status = out[i].Status.Later(inc.Status)
			out[i] = inc
			continue
		}
		at[inc.ID] = len(out)
		out = append(out, inc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

func mergeResources(held, snap []types.Resource) []types.Resource {
	out := clone(held)
	if out == nil {
		out = make([]types.Resource, 0, len(snap))
	}
	for _, r := range snap {
		if i := indexResource(out, r.ID); i >= 0 {
			out[i] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

func mergeMissions(pending, active, snap []types.Mission) ([]types.Mission, []types.Mission) {
	pending = clone(pending)
	active = clone(active)
	if pending == nil {
		pending = make([]types.Mission, 0)
	}
	if active == nil {
		active = make([]types.Mission, 0)
	}

	seen := make(map[string]bool, len(snap))
	for _, m := range snap {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true

		if i := indexMission(active, m.ID); i >= 0 {
			held := active[i]
			if !held.Status.Advances(m.Status) {
				continue
			}
			if m.AssignedResourceID == "" {
				m.AssignedResourceID = held.AssignedResourceID
			}
			if m.ApprovalTimestamp == nil {
				m.ApprovalTimestamp = held.ApprovalTimestamp
			}
			active[i] = m
			continue
		}

		i := indexMission(pending, m.ID)
		switch {
		case m.Status == types.MissionRecommended:
			if i >= 0 {
				pending[i] = m
			} else {
				pending = append(pending, m)
			}
		case m.Status.Active():
			// decided elsewhere while this one was still pending here
			if i >= 0 {
				pending = removeAt(pending, i)
			}
			active = append(active, m)
		case i >= 0:
			pending = removeAt(pending, i)
		}
	}

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreationTimestamp.After(pending[j].CreationTimestamp)
	})
	sort.SliceStable(active, func(i, j int) bool {
		return approvedAt(active[i]).After(approvedAt(active[j]))
	})
	return pending, active
}

func approvedAt(m types.Mission) time.Time {
	if m.ApprovalTimestamp != nil {
		return *m.ApprovalTimestamp
	}
	return m.CreationTimestamp
}
