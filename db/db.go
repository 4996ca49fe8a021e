package db

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/option"
)

const (
	incidentsCollection   = "incidents"
	missionsCollection    = "missions"
	damageAreasCollection = "damageAreas"
	decisionsCollection   = "missionDecisions"
)

// FirestoreClient is a singleton Firestore client instance.
var (
	client     *firestore.Client
	clientErr  error
	clientOnce sync.Once
)

// InitFirestore initializes and returns a Firestore client from base64
// encoded service account JSON.
func InitFirestore(ctx context.Context, encodedCreds string) (*firestore.Client, error) {
	clientOnce.Do(func() {
		creds, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			clientErr = fmt.Errorf("decoding Firestore credentials: %w", err)
			return
		}

		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(creds))
		if err != nil {
			clientErr = fmt.Errorf("initializing Firebase app: %w", err)
			return
		}

		client, clientErr = app.Firestore(ctx)
		if clientErr != nil {
			clientErr = fmt.Errorf("getting Firestore client: %w", clientErr)
		}
	})

	return client, clientErr
}

// CloseFirestore closes the Firestore client.
func CloseFirestore() {
	if client != nil {
		client.Close()
	}
}
