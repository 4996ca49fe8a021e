package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go-aidr/missions"
)

// Ledger records operator mission decisions in Firestore.
type Ledger struct {
	Client *firestore.Client
	Log    *zap.Logger
}

// RecordDecision stores d and, in the same transaction, brings the mission
// document in line with the decision so the next snapshot agrees with the
// store. Missions that were never persisted only get the ledger entry.
func (l Ledger) RecordDecision(ctx context.Context, d missions.Decision) error {
	missionRef := l.Client.Collection(missionsCollection).Doc(d.MissionID)
	decisionRef := l.Client.Collection(decisionsCollection).Doc(d.ID)

	err := l.Client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(missionRef)
		switch {
		case status.Code(err) == codes.NotFound:
			l.Log.Debug("Mission not in Firestore, recording decision only", zap.String("mission", d.MissionID))
		case err != nil:
			return fmt.Errorf("error getting mission doc %s: %w", d.MissionID, err)
		default:
			if err := tx.Update(missionRef, missionUpdates(d)); err != nil {
				return fmt.Errorf("failed to update mission doc %s: %w", d.MissionID, err)
			}
		}

		if err := tx.Create(decisionRef, d); err != nil {
			return fmt.Errorf("failed to create decision doc: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.Log.Info("Recorded mission decision", zap.String("mission", d.MissionID), zap.String("decision", string(d.Kind)))
	return nil
}

func missionUpdates(d missions.Decision) []firestore.Update {
	updates := []firestore.Update{
		{Path: "status", Value: string(d.Mission.Status)},
	}
	if d.Kind == missions.DecisionApproved {
		updates = append(updates,
			firestore.Update{Path: "assignedResourceId", Value: d.ResourceID},
			firestore.Update{Path: "approvalTimestamp", Value: d.Mission.ApprovalTimestamp},
		)
	}
	return updates
}
