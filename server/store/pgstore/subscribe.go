package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/topi314/clubhouse/server/store"
)

// Subscribe listens for notifications on a dedicated lib/pq connection. After a reconnect
// the collection is re-read and missed changes are derived from the difference.
func (s *Store) Subscribe(ctx context.Context, collection string, filter store.Filter) (<-chan store.Change, error) {
	listener := pq.NewListener(s.dsn, time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			slog.WarnContext(ctx, "Postgres listener event", slog.Int("event", int(event)), slog.Any("err", err))
		}
	})
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", notifyChannel, err)
	}

	initial, err := s.Query(ctx, collection, store.Filter{})
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	changes := make(chan store.Change)
	go func() {
		defer close(changes)
		defer func() {
			_ = listener.Close()
		}()

		tracker := store.NewTracker(filter, initial)
		send := func(change store.Change) bool {
			select {
			case <-ctx.Done():
				return false
			case changes <- change:
				return true
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				for _, change := range s.observe(ctx, collection, tracker, n) {
					if !send(change) {
						return
					}
				}
			}
		}
	}()

	return changes, nil
}

// observe handles a single notification. A nil notification is sent by lib/pq after the
// connection was re-established.
func (s *Store) observe(ctx context.Context, collection string, tracker *store.Tracker, n *pq.Notification) []store.Change {
	if n == nil {
		snapshot, err := s.Query(ctx, collection, store.Filter{})
		if err != nil {
			slog.ErrorContext(ctx, "Failed to resync subscription", slog.String("collection", collection), slog.Any("err", err))
			return nil
		}
		return tracker.Resync(collection, snapshot)
	}

	var payload notification
	if err := json.Unmarshal([]byte(n.Extra), &payload); err != nil {
		slog.ErrorContext(ctx, "Failed to decode notification", slog.String("payload", n.Extra), slog.Any("err", err))
		return nil
	}
	if payload.Collection != collection {
		return nil
	}

	path := store.NewPath(payload.Collection, payload.Key)
	value := payload.Value
	if payload.Truncated {
		node, err := s.Get(ctx, path)
		switch {
		case errors.Is(err, store.ErrNotFound):
			value = nil
		case err != nil:
			slog.ErrorContext(ctx, "Failed to fetch notified node", slog.String("path", path.String()), slog.Any("err", err))
			return nil
		default:
			value = node.Value
		}
	}
	if payload.Deleted {
		value = nil
	}

	if change, ok := tracker.Observe(path, value); ok {
		return []store.Change{change}
	}
	return nil
}
