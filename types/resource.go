package types

import "fmt"

type ResourceType string

const (
	ResourceMedical         ResourceType = "medical"
	ResourceFire            ResourceType = "fire"
	ResourceSearchAndRescue ResourceType = "search_and_rescue"
	ResourcePolice          ResourceType = "police"
	ResourcePersonnel       ResourceType = "personnel"
	ResourceEquipment       ResourceType = "equipment"
)

func (t ResourceType) Valid() bool {
	switch t {
	case ResourceMedical, ResourceFire, ResourceSearchAndRescue, ResourcePolice,
		ResourcePersonnel, ResourceEquipment:
		return true
	}
	return false
}

type ResourceStatus string

const (
	ResourceAvailable   ResourceStatus = "available"
	ResourceEnRoute     ResourceStatus = "en_route"
	ResourceOnSite      ResourceStatus = "on_site"
	ResourceUnavailable ResourceStatus = "unavailable"

	// capacity-style statuses reported by the REST backend
	ResourceDeployed    ResourceStatus = "deployed"
	ResourceMaintenance ResourceStatus = "maintenance"
)

func (s ResourceStatus) Valid() bool {
	switch s {
	case ResourceAvailable, ResourceEnRoute, ResourceOnSite, ResourceUnavailable,
		ResourceDeployed, ResourceMaintenance:
		return true
	}
	return false
}

// Capabilities holds whichever descriptor the source reports: a crew
// (personnel + equipment) or a capacity/load pair.
type Capabilities struct {
	Personnel   int      `json:"personnel,omitempty" firestore:"personnel,omitempty"`
	Equipment   []string `json:"equipment,omitempty" firestore:"equipment,omitempty"`
	Capacity    int      `json:"capacity,omitempty" firestore:"capacity,omitempty"`
	CurrentLoad int      `json:"currentLoad,omitempty" firestore:"currentLoad,omitempty"`
}

type Resource struct {
	ID              string         `json:"id" firestore:"-"`
	Name            string         `json:"name" firestore:"name"`
	Type            ResourceType   `json:"type" firestore:"type"`
	CurrentLocation LatLng         `json:"currentLocation" firestore:"currentLocation"`
	Status          ResourceStatus `json:"status" firestore:"status"`
	Capabilities    Capabilities   `json:"capabilities" firestore:"capabilities"`
}

func (r Resource) Available() bool {
	return r.Status == ResourceAvailable
}

func (r *Resource) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("resource: missing id: %w", ErrInvalidValue)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("resource %s: type %q: %w", r.ID, r.Type, ErrInvalidValue)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("resource %s: status %q: %w", r.ID, r.Status, ErrInvalidValue)
	}
	return nil
}
