package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go-aidr/types"
)

// wireID accepts both numeric and string ids.
type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id %s: %w", b, err)
	}
	*id = wireID(n.String())
	return nil
}

// The backend serialises naive datetimes, so an RFC 3339 parse alone is not
// enough. Zone-less values are taken as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type wireTime struct{ time.Time }

func (t *wireTime) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func (t *wireTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type disasterWire struct {
	ID          wireID    `json:"id"`
	Name        string    `json:"name"`
	EventType   string    `json:"event_type"`
	Severity    int       `json:"severity"`
	Status      string    `json:"status"`
	Description *string   `json:"description"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	CreatedAt   wireTime  `json:"created_at"`
	UpdatedAt   *wireTime `json:"updated_at"`
}

func (w disasterWire) domain() types.Disaster {
	return types.Disaster{
		ID:          string(w.ID),
		Name:        w.Name,
		EventType:   w.EventType,
		Location:    types.LatLng{Lat: w.Latitude, Lng: w.Longitude},
		Severity:    types.Severity(w.Severity),
		Status:      w.Status,
		Description: deref(w.Description),
		CreatedAt:   w.CreatedAt.Time,
		UpdatedAt:   w.UpdatedAt.ptr(),
	}
}

type damageReportWire struct {
	ID          wireID   `json:"id"`
	DisasterID  wireID   `json:"disaster_id"`
	DamageType  string   `json:"damage_type"`
	Severity    int      `json:"severity"`
	Description *string  `json:"description"`
	Source      string   `json:"source"`
	Confidence  float64  `json:"confidence"`
	Verified    bool     `json:"verified"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	CreatedAt   wireTime `json:"created_at"`
}

func (w damageReportWire) domain() types.DamageReport {
	return types.DamageReport{
		ID:          string(w.ID),
		DisasterID:  string(w.DisasterID),
		Location:    types.LatLng{Lat: w.Latitude, Lng: w.Longitude},
		DamageType:  w.DamageType,
		Severity:    types.Severity(w.Severity),
		Description: deref(w.Description),
		Source:      w.Source,
		Confidence:  w.Confidence,
		Verified:    w.Verified,
		CreatedAt:   w.CreatedAt.Time,
	}
}

type resourceWire struct {
	ID           wireID  `json:"id"`
	Name         string  `json:"name"`
	ResourceType string  `json:"resource_type"`
	Status       *string `json:"status"`
	Capacity     int     `json:"capacity"`
	CurrentLoad  *int    `json:"current_load"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
}

func (w resourceWire) domain() types.Resource {
	status := types.ResourceAvailable
	if w.Status != nil && *w.Status != "" {
		status = types.ResourceStatus(*w.Status)
	}
	load := 0
	if w.CurrentLoad != nil {
		load = *w.CurrentLoad
	}
	return types.Resource{
		ID:              string(w.ID),
		Name:            w.Name,
		Type:            types.ResourceType(w.ResourceType),
		CurrentLocation: types.LatLng{Lat: w.Latitude, Lng: w.Longitude},
		Status:          status,
		Capabilities:    types.Capabilities{Capacity: w.Capacity, CurrentLoad: load},
	}
}

type taskWire struct {
	ID                wireID    `json:"id"`
	DisasterID        wireID    `json:"disaster_id"`
	Title             string    `json:"title"`
	Description       *string   `json:"description"`
	TaskType          string    `json:"task_type"`
	Priority          int       `json:"priority"`
	Status            *string   `json:"status"`
	AssignedResources *string   `json:"assigned_resources"`
	EstimatedDuration *int      `json:"estimated_duration"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	CreatedAt         wireTime  `json:"created_at"`
	UpdatedAt         *wireTime `json:"updated_at"`
}

func (w taskWire) domain() types.Task {
	status := types.TaskPending
	if w.Status != nil && *w.Status != "" {
		status = types.TaskStatus(*w.Status)
	}
	return types.Task{
		ID:                string(w.ID),
		DisasterID:        string(w.DisasterID),
		Title:             w.Title,
		Description:       deref(w.Description),
		Type:              types.TaskType(w.TaskType),
		Priority:          types.PriorityFromFive(w.Priority),
		Status:            status,
		AssignedResources: splitIDs(deref(w.AssignedResources)),
		Location:          types.LatLng{Lat: w.Latitude, Lng: w.Longitude},
		EstimatedDuration: w.EstimatedDuration,
		CreatedAt:         w.CreatedAt.Time,
		UpdatedAt:         w.UpdatedAt.ptr(),
	}
}

func splitIDs(s string) []string {
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
