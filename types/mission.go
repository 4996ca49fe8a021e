package types

import (
	"fmt"
	"time"
)

type MissionType string

const (
	MissionRescue            MissionType = "rescue"
	MissionFirefighting      MissionType = "firefighting"
	MissionMedicalAssistance MissionType = "medical_assistance"
)

func (t MissionType) Valid() bool {
	switch t {
	case MissionRescue, MissionFirefighting, MissionMedicalAssistance:
		return true
	}
	return false
}

type MissionStatus string

const (
	MissionRecommended MissionStatus = "recommended"
	MissionApproved    MissionStatus = "approved"
	MissionInProgress  MissionStatus = "in_progress"
	MissionCompleted   MissionStatus = "completed"
	MissionRejected    MissionStatus = "rejected"
)

var missionTransitions = map[MissionStatus][]MissionStatus{
	MissionRecommended: {MissionApproved, MissionRejected},
	MissionApproved:    {MissionInProgress},
	MissionInProgress:  {MissionCompleted},
}

func (s MissionStatus) Valid() bool {
	switch s {
	case MissionRecommended, MissionApproved, MissionInProgress, MissionCompleted, MissionRejected:
		return true
	}
	return false
}

func (s MissionStatus) Terminal() bool {
	return s == MissionCompleted || s == MissionRejected
}

// Active reports whether a mission in this status belongs in the
// active-missions collection.
func (s MissionStatus) Active() bool {
	return s == MissionApproved || s == MissionInProgress || s == MissionCompleted
}

// CanTransition reports whether from -> to is an edge of the mission state machine.
func (s MissionStatus) CanTransition(to MissionStatus) bool {
	for _, next := range missionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Advances reports whether to lies strictly further along the mission state
// machine than s.
func (s MissionStatus) Advances(to MissionStatus) bool {
	for _, next := range missionTransitions[s] {
		if next == to || next.Advances(to) {
			return true
		}
	}
	return false
}

// Priority is the single ordinal scale used across missions and tasks: 1 (low)
// to 10 (most urgent).
type Priority int

const (
	MinPriority Priority = 1
	MaxPriority Priority = 10
)

// PriorityFromFive maps a 1-5 priority onto the 1-10 scale.
func PriorityFromFive(p int) Priority {
	return Priority(p * 2).Clamp()
}

func (p Priority) Clamp() Priority {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

type Mission struct {
	ID                   string        `json:"id" firestore:"-"`
	Type                 MissionType   `json:"type" firestore:"type"`
	TargetLocation       LatLng        `json:"targetLocation" firestore:"targetLocation"`
	Status               MissionStatus `json:"status" firestore:"status"`
	Priority             Priority      `json:"priority" firestore:"priority"`
	AssignedResourceID   string        `json:"assignedResourceId,omitempty" firestore:"assignedResourceId,omitempty"`
	RecommendationReason string        `json:"recommendationReason" firestore:"recommendationReason"`
	CreationTimestamp    time.Time     `json:"creationTimestamp" firestore:"creationTimestamp"`
	ApprovalTimestamp    *time.Time    `json:"approvalTimestamp,omitempty" firestore:"approvalTimestamp,omitempty"`
}

func (m *Mission) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("mission: missing id: %w", ErrInvalidValue)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("mission %s: type %q: %w", m.ID, m.Type, ErrInvalidValue)
	}
	if m.Status == "" {
		m.Status = MissionRecommended
	}
	if !m.Status.Valid() {
		return fmt.Errorf("mission %s: status %q: %w", m.ID, m.Status, ErrInvalidValue)
	}
	m.Priority = m.Priority.Clamp()
	return nil
}
