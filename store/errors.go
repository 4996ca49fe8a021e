package store

import "errors"

var (
	ErrMissionNotPending = errors.New("mission is not a pending recommendation")
	ErrMissionNotActive  = errors.New("mission is not active")
	ErrUnknownResource   = errors.New("resource does not exist")
	ErrTaskNotFound      = errors.New("task not found")
	ErrIncidentNotFound  = errors.New("incident not found")
)
