package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"go-aidr/store"
	"go-aidr/types"
)

// Firestore cannot hold nested arrays, so polygon rings are stored as a
// GeoJSON string next to the polygon type.
type damageAreaDoc struct {
	types.DamageArea
	Geometry string `firestore:"geometry"`
}

func decodeGeometry(s string) ([][][]float64, error) {
	if s == "" {
		return nil, nil
	}
	var coords [][][]float64
	if err := json.Unmarshal([]byte(s), &coords); err != nil {
		return nil, fmt.Errorf("decoding geometry: %w", err)
	}
	return coords, nil
}

// Source loads incidents, missions and damage areas kept in Firestore.
type Source struct {
	Client *firestore.Client
	Log    *zap.Logger
}

func (Source) Name() string { return "firestore" }

func (s Source) Load(ctx context.Context) (store.Snapshot, error) {
	incidents, err := GetAllIncidents(ctx, s.Client, s.Log)
	if err != nil {
		return store.Snapshot{}, err
	}
	missions, err := GetAllMissions(ctx, s.Client, s.Log)
	if err != nil {
		return store.Snapshot{}, err
	}
	areas, err := GetAllDamageAreas(ctx, s.Client, s.Log)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Incidents: incidents, Missions: missions, DamageAreas: areas}, nil
}

// GetAllIncidents retrieves every incident document, newest first. Documents
// that do not convert or validate are skipped.
func GetAllIncidents(ctx context.Context, client *firestore.Client, log *zap.Logger) ([]types.Incident, error) {
	incidents := make([]types.Incident, 0)
	err := eachDoc(ctx, client, incidentsCollection, func(doc *firestore.DocumentSnapshot) error {
		var inc types.Incident
		if err := doc.DataTo(&inc); err != nil {
			return err
		}
		inc.ID = doc.Ref.ID
		if err := inc.Validate(); err != nil {
			return err
		}
		incidents = append(incidents, inc)
		return nil
	}, log)
	sortIncidents(incidents)
	return incidents, err
}

// GetAllMissions retrieves every mission document, newest first.
func GetAllMissions(ctx context.Context, client *firestore.Client, log *zap.Logger) ([]types.Mission, error) {
	missions := make([]types.Mission, 0)
	err := eachDoc(ctx, client, missionsCollection, func(doc *firestore.DocumentSnapshot) error {
		var m types.Mission
		if err := doc.DataTo(&m); err != nil {
			return err
		}
		m.ID = doc.Ref.ID
		if err := m.Validate(); err != nil {
			return err
		}
		missions = append(missions, m)
		return nil
	}, log)
	sortMissions(missions)
	return missions, err
}

// Documents come back in id order. Sorting here rather than with OrderBy
// keeps documents that lack the timestamp field.
func sortIncidents(incidents []types.Incident) {
	sort.SliceStable(incidents, func(i, j int) bool {
		return incidents[i].Timestamp.After(incidents[j].Timestamp)
	})
}

func sortMissions(missions []types.Mission) {
	sort.SliceStable(missions, func(i, j int) bool {
		return missions[i].CreationTimestamp.After(missions[j].CreationTimestamp)
	})
}

func GetAllDamageAreas(ctx context.Context, client *firestore.Client, log *zap.Logger) ([]types.DamageArea, error) {
	areas := make([]types.DamageArea, 0)
	err := eachDoc(ctx, client, damageAreasCollection, func(doc *firestore.DocumentSnapshot) error {
		var d damageAreaDoc
		if err := doc.DataTo(&d); err != nil {
			return err
		}
		area := d.DamageArea
		area.ID = doc.Ref.ID
		coords, err := decodeGeometry(d.Geometry)
		if err != nil {
			return err
		}
		area.Area.Coordinates = coords
		if err := area.Validate(); err != nil {
			return err
		}
		areas = append(areas, area)
		return nil
	}, log)
	return areas, err
}

func eachDoc(ctx context.Context, client *firestore.Client, collection string,
	fn func(*firestore.DocumentSnapshot) error, log *zap.Logger) error {
	iter := client.Collection(collection).Documents(ctx)
	defer iter.Stop()

	count := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("error iterating %s collection: %w", collection, err)
		}
		if err := fn(doc); err != nil {
			log.Warn("Skipping document", zap.String("collection", collection),
				zap.String("id", doc.Ref.ID), zap.Error(err))
			continue
		}
		count++
	}
	log.Debug("Read collection", zap.String("collection", collection), zap.Int("count", count))
	return nil
}
