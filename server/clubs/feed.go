package clubs

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/topi314/clubhouse/server/store"
)

func NewFeed(s store.Store, ledger *Ledger) *Feed {
	return &Feed{
		store:  s,
		ledger: ledger,
	}
}

// Feed builds per-user feeds out of the global post stream. Feeds are recomputed on every
// relevant change, nothing is cached.
type Feed struct {
	store  store.Store
	ledger *Ledger
}

// Build returns the posts of all clubs userID is a member of, newest first. Posts with
// the same timestamp keep their key order.
func (f *Feed) Build(ctx context.Context, userID string) ([]Post, error) {
	if err := validID("user id", userID); err != nil {
		return nil, err
	}

	memberships, err := f.ledger.ListClubsOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0)
	if len(memberships) == 0 {
		return posts, nil
	}

	clubIDs := make(map[string]struct{}, len(memberships))
	for _, membership := range memberships {
		clubIDs[membership.ClubID] = struct{}{}
	}

	nodes, err := f.store.Query(ctx, store.CollectionPosts, store.Filter{})
	if err != nil {
		return nil, storeError(err, nil, "failed to query posts")
	}

	for _, node := range nodes {
		clubID, _ := node.Value[fieldClubID].(string)
		if _, ok := clubIDs[clubID]; !ok {
			continue
		}
		var post Post
		if err = node.Decode(&post); err != nil {
			slog.WarnContext(ctx, "Skipping malformed post", slog.String("path", node.Path.String()), slog.Any("err", err))
			continue
		}
		post.ID = node.Path.Key
		posts = append(posts, post)
	}

	slices.SortStableFunc(posts, func(a, b Post) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
	return posts, nil
}

// Watch emits the feed of userID and a fresh one after every post change and every change
// of the user's memberships. The channel is closed once ctx is done or a subscription ends.
func (f *Feed) Watch(ctx context.Context, userID string) (<-chan []Post, error) {
	if err := validID("user id", userID); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	posts, err := f.store.Subscribe(ctx, store.CollectionPosts, store.Filter{})
	if err != nil {
		cancel()
		return nil, storeError(err, nil, "failed to subscribe to posts")
	}
	memberships, err := f.store.Subscribe(ctx, store.CollectionMemberships, store.Eq(fieldUserID, userID))
	if err != nil {
		cancel()
		return nil, storeError(err, nil, "failed to subscribe to memberships")
	}

	initial, err := f.Build(ctx, userID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build initial feed: %w", err)
	}

	feeds := make(chan []Post)
	go func() {
		defer close(feeds)
		defer cancel()

		send := func(feed []Post) bool {
			select {
			case <-ctx.Done():
				return false
			case feeds <- feed:
				return true
			}
		}

		if !send(initial) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-posts:
				if !ok {
					return
				}
			case _, ok := <-memberships:
				if !ok {
					return
				}
			}

			feed, err := f.Build(ctx, userID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.ErrorContext(ctx, "Failed to rebuild feed", slog.String("user_id", userID), slog.Any("err", err))
				continue
			}
			if !send(feed) {
				return
			}
		}
	}()

	return feeds, nil
}
