package db

import (
	"context"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go-aidr/types"
)

// IncidentLocations writes geocoded incident positions back to Firestore.
type IncidentLocations struct {
	Client *firestore.Client
	Log    *zap.Logger
}

// SaveIncidentLocation merges the resolved position into the incident
// document. Incidents that only exist in memory are ignored.
func (l IncidentLocations) SaveIncidentLocation(ctx context.Context, id string, loc types.LatLng, formatted string) error {
	_, err := l.Client.Collection(incidentsCollection).Doc(id).Update(ctx, []firestore.Update{
		{Path: "location", Value: map[string]interface{}{"lat": loc.Lat, "lng": loc.Lng}},
		{Path: "formattedAddress", Value: formatted},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return err
	}
	l.Log.Info("Updated incident geocoding", zap.String("incident", id))
	return nil
}
