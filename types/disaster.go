package types

import (
	"fmt"
	"time"
)

type Severity int

type Disaster struct {
	ID          string     `json:"id" firestore:"-"`
	Name        string     `json:"name" firestore:"name"`
	EventType   string     `json:"eventType" firestore:"eventType"`
	Location    LatLng     `json:"location" firestore:"location"`
	Severity    Severity   `json:"severity" firestore:"severity"`
	Status      string     `json:"status" firestore:"status"`
	Description string     `json:"description,omitempty" firestore:"description,omitempty"`
	CreatedAt   time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty" firestore:"updatedAt,omitempty"`
}

type DamageReport struct {
	ID          string    `json:"id"`
	DisasterID  string    `json:"disasterId"`
	Location    LatLng    `json:"location"`
	DamageType  string    `json:"damageType"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
	Confidence  float64   `json:"confidence"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DamageArea is an assessed polygon. ContributingIncidents are incident ids,
// resolved against the store when read.
type DamageArea struct {
	ID                    string    `json:"id" firestore:"-"`
	Area                  Polygon   `json:"area" firestore:"area"`
	DamageLevel           float64   `json:"damageLevel" firestore:"damageLevel"` // 0.0-1.0
	AssessmentTimestamp   time.Time `json:"assessmentTimestamp" firestore:"assessmentTimestamp"`
	ContributingIncidents []string  `json:"contributingIncidents" firestore:"contributingIncidents"`
}

func (a *DamageArea) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("damage area: missing id: %w", ErrInvalidValue)
	}
	if a.DamageLevel < 0 || a.DamageLevel > 1 {
		return fmt.Errorf("damage area %s: level %v: %w", a.ID, a.DamageLevel, ErrInvalidValue)
	}
	return nil
}
