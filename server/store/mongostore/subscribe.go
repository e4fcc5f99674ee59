package mongostore

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/topi314/clubhouse/server/store"
)

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument *record `bson:"fullDocument"`
}

// Subscribe opens a change stream on the collection. Change streams require a replica set.
func (s *Store) Subscribe(ctx context.Context, collection string, filter store.Filter) (<-chan store.Change, error) {
	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{},
		options.ChangeStream().SetFullDocument(options.UpdateLookup),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", collection, err)
	}

	initial, err := s.Query(ctx, collection, store.Filter{})
	if err != nil {
		_ = stream.Close(context.Background())
		return nil, err
	}

	changes := make(chan store.Change)
	go func() {
		defer close(changes)
		defer func() {
			_ = stream.Close(context.Background())
		}()

		tracker := store.NewTracker(filter, initial)
		for stream.Next(ctx) {
			var event changeEvent
			if err := stream.Decode(&event); err != nil {
				slog.ErrorContext(ctx, "Failed to decode change event", slog.String("collection", collection), slog.Any("err", err))
				continue
			}

			var value map[string]any
			switch event.OperationType {
			case "insert", "update", "replace":
				if event.FullDocument == nil {
					continue
				}
				value = event.FullDocument.node(collection).Value
			case "delete":
			default:
				continue
			}

			change, ok := tracker.Observe(store.NewPath(collection, event.DocumentKey.ID), value)
			if !ok {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case changes <- change:
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Change stream failed", slog.String("collection", collection), slog.Any("err", err))
		}
	}()

	return changes, nil
}
