package clubs

import (
	"context"

	"github.com/topi314/clubhouse/server/store"
)

// NewCounter returns a Counter maintaining Club.memberCount. When atomic is set and s
// implements store.Transactor, every adjustment is a single atomic read-modify-write.
// Otherwise adjustments are optimistic and concurrent ones may be lost until the next
// sweep.
func NewCounter(s store.Store, atomic bool) *Counter {
	c := &Counter{store: s}
	if tx, ok := s.(store.Transactor); ok && atomic {
		c.tx = tx
	}
	return c
}

type Counter struct {
	store store.Store
	tx    store.Transactor
}

func (c *Counter) Atomic() bool {
	return c.tx != nil
}

func (c *Counter) Increment(ctx context.Context, clubID string) (int, error) {
	return c.add(ctx, clubID, 1)
}

func (c *Counter) Decrement(ctx context.Context, clubID string) (int, error) {
	return c.add(ctx, clubID, -1)
}

func (c *Counter) add(ctx context.Context, clubID string, delta int) (int, error) {
	path := clubPath(clubID)

	if c.tx != nil {
		var count int
		err := c.tx.Transact(ctx, path, func(current store.Node, exists bool) (map[string]any, error) {
			if !exists {
				return nil, ErrClubNotFound
			}
			count = max(0, store.Int(current.Value, fieldMemberCount)+delta)
			doc := current.Value
			doc[fieldMemberCount] = count
			return doc, nil
		})
		if err != nil {
			return 0, storeError(err, ErrClubNotFound, "failed to update member count")
		}
		return count, nil
	}

	node, err := c.store.Get(ctx, path)
	if err != nil {
		return 0, storeError(err, ErrClubNotFound, "failed to read member count")
	}

	count := max(0, store.Int(node.Value, fieldMemberCount)+delta)
	if err = c.store.Update(ctx, path, map[string]any{fieldMemberCount: count}); err != nil {
		return 0, storeError(err, ErrClubNotFound, "failed to write member count")
	}
	return count, nil
}
