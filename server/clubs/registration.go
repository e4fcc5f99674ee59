package clubs

import (
	"context"
	"log/slog"

	"github.com/topi314/clubhouse/server/store"
)

type RegistrationState int

const (
	StateOpenUnfilled RegistrationState = iota
	StateOpenFull
	StateClosed
)

func (s RegistrationState) String() string {
	switch s {
	case StateOpenUnfilled:
		return "open"
	case StateOpenFull:
		return "full"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (e Event) State() RegistrationState {
	if !e.RegistrationOpen {
		return StateClosed
	}
	if e.MaxParticipants == 0 || len(e.RegisteredUsers) < e.MaxParticipants {
		return StateOpenUnfilled
	}
	return StateOpenFull
}

func (e Event) IsRegistered(userID string) bool {
	_, ok := e.RegisteredUsers[userID]
	return ok
}

// admit reports why userID may not register for e, or nil if it may.
func (e Event) admit(userID string) error {
	state := e.State()
	if state == StateClosed {
		return ErrRegistrationClosed
	}
	if e.IsRegistered(userID) {
		return ErrAlreadyRegistered
	}
	if state == StateOpenFull {
		return ErrEventFull
	}
	return nil
}

// NewGate returns a Gate controlling event registrations. Without atomic writes the
// capacity check and the insert are separate store calls, so concurrent registrations may
// exceed maxParticipants.
func NewGate(s store.Store, atomic bool) *Gate {
	g := &Gate{store: s}
	if tx, ok := s.(store.Transactor); ok && atomic {
		g.tx = tx
	}
	return g
}

type Gate struct {
	store store.Store
	tx    store.Transactor
}

func (g *Gate) Register(ctx context.Context, eventID string, userID string, contact string) error {
	if err := validID("event id", eventID); err != nil {
		return err
	}
	if err := validID("user id", userID); err != nil {
		return err
	}

	var err error
	if g.tx != nil {
		err = g.registerAtomic(ctx, eventID, userID, contact)
	} else {
		err = g.register(ctx, eventID, userID, contact)
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "User registered for event", slog.String("event_id", eventID), slog.String("user_id", userID))
	return nil
}

func (g *Gate) register(ctx context.Context, eventID string, userID string, contact string) error {
	event, err := g.event(ctx, eventID)
	if err != nil {
		return err
	}
	if err = event.admit(userID); err != nil {
		return err
	}

	err = g.store.Update(ctx, eventPath(eventID), map[string]any{
		store.FieldPath(fieldRegisteredUsers, userID): contact,
	})
	return storeError(err, ErrEventNotFound, "failed to register for event")
}

func (g *Gate) registerAtomic(ctx context.Context, eventID string, userID string, contact string) error {
	err := g.tx.Transact(ctx, eventPath(eventID), func(current store.Node, exists bool) (map[string]any, error) {
		if !exists {
			return nil, ErrEventNotFound
		}
		var event Event
		if err := current.Decode(&event); err != nil {
			return nil, err
		}
		if err := event.admit(userID); err != nil {
			return nil, err
		}

		registered, _ := current.Value[fieldRegisteredUsers].(map[string]any)
		if registered == nil {
			registered = map[string]any{}
		}
		registered[userID] = contact
		doc := current.Value
		doc[fieldRegisteredUsers] = registered
		return doc, nil
	})
	return storeError(err, ErrEventNotFound, "failed to register for event")
}

// Unregister removes userID from the event. Unregistering a user who is not registered
// is a no-op.
func (g *Gate) Unregister(ctx context.Context, eventID string, userID string) error {
	if err := validID("event id", eventID); err != nil {
		return err
	}
	if err := validID("user id", userID); err != nil {
		return err
	}

	if g.tx != nil {
		err := g.tx.Transact(ctx, eventPath(eventID), func(current store.Node, exists bool) (map[string]any, error) {
			if !exists {
				return nil, ErrEventNotFound
			}
			registered, _ := current.Value[fieldRegisteredUsers].(map[string]any)
			if _, ok := registered[userID]; !ok {
				return nil, nil
			}
			delete(registered, userID)
			return current.Value, nil
		})
		if err != nil {
			return storeError(err, ErrEventNotFound, "failed to unregister from event")
		}
	} else {
		event, err := g.event(ctx, eventID)
		if err != nil {
			return err
		}
		if !event.IsRegistered(userID) {
			return nil
		}
		err = g.store.Update(ctx, eventPath(eventID), map[string]any{
			store.FieldPath(fieldRegisteredUsers, userID): nil,
		})
		if err != nil {
			return storeError(err, ErrEventNotFound, "failed to unregister from event")
		}
	}

	slog.InfoContext(ctx, "User unregistered from event", slog.String("event_id", eventID), slog.String("user_id", userID))
	return nil
}

func (g *Gate) event(ctx context.Context, eventID string) (Event, error) {
	return getEvent(ctx, g.store, eventID)
}

func getEvent(ctx context.Context, s store.Store, eventID string) (Event, error) {
	node, err := s.Get(ctx, eventPath(eventID))
	if err != nil {
		return Event{}, storeError(err, ErrEventNotFound, "failed to read event")
	}
	var event Event
	if err = node.Decode(&event); err != nil {
		return Event{}, storeError(err, nil, "failed to decode event")
	}
	event.ID = eventID
	return event, nil
}
