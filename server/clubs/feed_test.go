package clubs

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/topi314/clubhouse/server/store"
)

func mustPost(t *testing.T, svc *Service, clubID string, authorID string, content string) Post {
	t.Helper()
	post, err := svc.Directory.CreatePost(context.Background(), clubID, authorID, CreatePostInput{Content: content})
	if err != nil {
		t.Fatalf("failed to create post: %v", err)
	}
	return post
}

func TestFeedScoping(t *testing.T) {
	svc, _ := newService(t, true)
	ctx := context.Background()
	mustUsers(t, svc, "u", "admin")
	a := mustClub(t, svc, "admin", "A")
	b := mustClub(t, svc, "admin", "B")
	c := mustClub(t, svc, "admin", "C")
	mustJoin(t, svc, "u", a.ID)
	mustJoin(t, svc, "u", b.ID)

	older := mustPost(t, svc, a.ID, "admin", "first in A")
	mustPost(t, svc, c.ID, "admin", "in C")
	newer := mustPost(t, svc, a.ID, "admin", "second in A")

	feed, err := svc.Feed.Build(ctx, "u")
	if err != nil {
		t.Fatalf("failed to build feed: %v", err)
	}
	if len(feed) != 2 {
		t.Fatalf("expected 2 posts, got %+v", feed)
	}
	if feed[0].ID != newer.ID || feed[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", feed)
	}
	if feed[0].Timestamp <= feed[1].Timestamp {
		t.Fatalf("expected decreasing timestamps, got %d and %d", feed[0].Timestamp, feed[1].Timestamp)
	}
}

func TestNewIDOrdered(t *testing.T) {
	ids := make([]string, 100)
	for i := range ids {
		ids[i] = newID()
	}
	if !slices.IsSorted(ids) {
		t.Fatalf("expected ids in creation order, got %v", ids)
	}
}

func TestFeedTiesKeepCreationOrder(t *testing.T) {
	svc, s := newService(t, true)
	ctx := context.Background()
	mustUsers(t, svc, "admin")
	club := mustClub(t, svc, "admin", "A")

	// posts written by different replicas within the same millisecond
	var want []string
	for _, content := range []string{"first", "second", "third"} {
		id := newID()
		err := s.Set(ctx, store.NewPath(store.CollectionPosts, id), map[string]any{
			"clubId":    club.ID,
			"authorId":  "admin",
			"content":   content,
			"timestamp": 1700000000000,
		})
		if err != nil {
			t.Fatalf("failed to seed post: %v", err)
		}
		want = append(want, id)
	}

	feed, err := svc.Feed.Build(ctx, "admin")
	if err != nil {
		t.Fatalf("failed to build feed: %v", err)
	}
	got := make([]string, 0, len(feed))
	for _, post := range feed {
		got = append(got, post.ID)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFeedEmpty(t *testing.T) {
	svc, _ := newService(t, true)
	ctx := context.Background()
	mustUsers(t, svc, "u", "admin")
	club := mustClub(t, svc, "admin", "A")
	mustPost(t, svc, club.ID, "admin", "hello")

	feed, err := svc.Feed.Build(ctx, "u")
	if err != nil {
		t.Fatalf("failed to build feed: %v", err)
	}
	if feed == nil || len(feed) != 0 {
		t.Fatalf("expected empty feed, got %#v", feed)
	}
}

func TestCreatePostRequiresMembership(t *testing.T) {
	svc, _ := newService(t, true)
	mustUsers(t, svc, "u", "admin")
	club := mustClub(t, svc, "admin", "A")

	_, err := svc.Directory.CreatePost(context.Background(), club.ID, "u", CreatePostInput{Content: "hi"})
	if !errors.Is(err, ErrMembershipRequired) {
		t.Fatalf("expected ErrMembershipRequired, got %v", err)
	}
}

func TestFeedWatch(t *testing.T) {
	svc, _ := newService(t, true)
	mustUsers(t, svc, "u", "admin")
	a := mustClub(t, svc, "admin", "A")
	b := mustClub(t, svc, "admin", "B")
	mustPost(t, svc, b.ID, "admin", "in B")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feeds, err := svc.Feed.Watch(ctx, "u")
	if err != nil {
		t.Fatalf("failed to watch feed: %v", err)
	}

	next := func() []Post {
		t.Helper()
		select {
		case feed, ok := <-feeds:
			if !ok {
				t.Fatal("feed channel closed")
			}
			return feed
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for feed")
		}
		return nil
	}

	if feed := next(); len(feed) != 0 {
		t.Fatalf("expected empty initial feed, got %+v", feed)
	}

	mustJoin(t, svc, "u", b.ID)
	waitFor := func(n int) []Post {
		t.Helper()
		for {
			feed := next()
			if len(feed) == n {
				return feed
			}
		}
	}
	if feed := waitFor(1); feed[0].Content != "in B" {
		t.Fatalf("expected post of B after joining, got %+v", feed)
	}

	mustPost(t, svc, a.ID, "admin", "in A")
	mustPost(t, svc, b.ID, "admin", "again in B")
	if feed := waitFor(2); feed[0].Content != "again in B" {
		t.Fatalf("expected newest post first, got %+v", feed)
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-feeds:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed channel not closed after cancel")
		}
	}
}
