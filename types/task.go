package types

import (
	"fmt"
	"time"
)

type TaskType string

const (
	TaskRescue     TaskType = "rescue"
	TaskMedical    TaskType = "medical"
	TaskAssessment TaskType = "assessment"
	TaskLogistics  TaskType = "logistics"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskRescue, TaskMedical, TaskAssessment, TaskLogistics:
		return true
	}
	return false
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// in_progress -> pending is the pause edge, the only backwards move.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskPending:    {TaskInProgress},
	TaskInProgress: {TaskPending, TaskCompleted},
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted:
		return true
	}
	return false
}

func (s TaskStatus) CanTransition(to TaskStatus) bool {
	for _, next := range taskTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type Task struct {
	ID                string     `json:"id"`
	DisasterID        string     `json:"disasterId"`
	Title             string     `json:"title"`
	Description       string     `json:"description,omitempty"`
	Type              TaskType   `json:"taskType"`
	Priority          Priority   `json:"priority"`
	Status            TaskStatus `json:"status"`
	AssignedResources []string   `json:"assignedResources,omitempty"`
	Location          LatLng     `json:"location"`
	EstimatedDuration *int       `json:"estimatedDuration,omitempty"` // minutes
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         *time.Time `json:"updatedAt,omitempty"`
}

func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task: missing id: %w", ErrInvalidValue)
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if !t.Status.Valid() {
		return fmt.Errorf("task %s: status %q: %w", t.ID, t.Status, ErrInvalidValue)
	}
	t.Priority = t.Priority.Clamp()
	return nil
}
