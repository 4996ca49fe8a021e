package types

import (
	"encoding/json"
	"fmt"
	"time"
)

type IncidentSource string

const (
	SourceSocialMedia IncidentSource = "social_media"
	SourceFieldReport IncidentSource = "field_report"
	SourceDrone       IncidentSource = "drone"
	SourceSatellite   IncidentSource = "satellite"
	SourceOther       IncidentSource = "other"
)

// UnmarshalJSON maps any source the backend adds later onto SourceOther.
func (s *IncidentSource) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := IncidentSource(raw); v {
	case SourceSocialMedia, SourceFieldReport, SourceDrone, SourceSatellite:
		*s = v
	default:
		*s = SourceOther
	}
	return nil
}

type IncidentStatus string

const (
	IncidentUnverified IncidentStatus = "unverified"
	IncidentVerified   IncidentStatus = "verified"
	IncidentAddressed  IncidentStatus = "addressed"
)

func (s IncidentStatus) rank() int {
	switch s {
	case IncidentUnverified:
		return 1
	case IncidentVerified:
		return 2
	case IncidentAddressed:
		return 3
	}
	return 0
}

func (s IncidentStatus) Valid() bool { return s.rank() > 0 }

// Later returns whichever of s and other is further along. Incident status
// only moves forward.
func (s IncidentStatus) Later(other IncidentStatus) IncidentStatus {
	if other.rank() > s.rank() {
		return other
	}
	return s
}

type ExtractedData struct {
	IncidentType        string `json:"incidentType" firestore:"incidentType"`
	LocationString      string `json:"locationString" firestore:"locationString"`
	EstimatedCasualties *int   `json:"estimatedCasualties,omitempty" firestore:"estimatedCasualties,omitempty"`
	Urgency             int    `json:"urgency" firestore:"urgency"` // 1-5
	IsVerifiedSource    bool   `json:"isVerifiedSource" firestore:"isVerifiedSource"`
}

type Incident struct {
	ID            string         `json:"id" firestore:"-"`
	Source        IncidentSource `json:"source" firestore:"source"`
	Location      LatLng         `json:"location" firestore:"location"`
	Timestamp     time.Time      `json:"timestamp" firestore:"timestamp"`
	RawContent    string         `json:"rawContent" firestore:"rawContent"`
	ExtractedData ExtractedData  `json:"extractedData" firestore:"extractedData"`
	Status        IncidentStatus `json:"status" firestore:"status"`
}

// Validate fills defaults and rejects values outside the closed enumerations.
func (i *Incident) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("incident: missing id: %w", ErrInvalidValue)
	}
	if i.Source == "" {
		i.Source = SourceOther
	}
	if i.Status == "" {
		i.Status = IncidentUnverified
	}
	if !i.Status.Valid() {
		return fmt.Errorf("incident %s: status %q: %w", i.ID, i.Status, ErrInvalidValue)
	}
	if u := i.ExtractedData.Urgency; u < 0 || u > 5 {
		return fmt.Errorf("incident %s: urgency %d: %w", i.ID, u, ErrInvalidValue)
	}
	return nil
}
