// Package storetest contains a conformance suite run by every store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/topi314/clubhouse/server/store"
)

// Open returns a fresh, empty store for a single sub test.
type Open func(t *testing.T) store.Store

func Run(t *testing.T, open Open) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("SetGet", func(t *testing.T) { testSetGet(t, open(t)) })
	t.Run("SetStruct", func(t *testing.T) { testSetStruct(t, open(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("Query", func(t *testing.T) { testQuery(t, open(t)) })
	t.Run("ServerTimestamp", func(t *testing.T) { testServerTimestamp(t, open(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, open(t)) })
	t.Run("Transact", func(t *testing.T) { testTransact(t, open(t)) })
	t.Run("TransactConcurrent", func(t *testing.T) { testTransactConcurrent(t, open(t)) })
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), store.NewPath("clubs", "nope"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSetGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	path := store.NewPath("clubs", "chess")

	if err := s.Set(ctx, path, map[string]any{"name": "Chess", "memberCount": 3}); err != nil {
		t.Fatalf("set: %v", err)
	}

	node, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if node.Path != path {
		t.Fatalf("expected path %s, got %s", path, node.Path)
	}
	if node.Value["name"] != "Chess" {
		t.Fatalf("expected name Chess, got %v", node.Value["name"])
	}
	if got := store.Int(node.Value, "memberCount"); got != 3 {
		t.Fatalf("expected memberCount 3, got %d", got)
	}

	if err = s.Set(ctx, path, map[string]any{"name": "Chess Club"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	node, err = s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if _, ok := node.Value["memberCount"]; ok {
		t.Fatalf("expected set to replace the node, got %v", node.Value)
	}
}

type sample struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
	Open  bool   `json:"open"`
}

func testSetStruct(t *testing.T, s store.Store) {
	ctx := context.Background()
	path := store.NewPath("events", "e1")

	if err := s.Set(ctx, path, sample{ID: "e1", Count: 7, Open: true}); err != nil {
		t.Fatalf("set: %v", err)
	}

	node, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got sample
	if err = node.Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != (sample{ID: "e1", Count: 7, Open: true}) {
		t.Fatalf("unexpected value %+v", got)
	}
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	path := store.NewPath("events", "e1")

	if err := s.Set(ctx, path, map[string]any{"title": "Open night", "registeredUsers": map[string]any{"u1": "a@b.c"}}); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := s.Update(ctx, path, map[string]any{
		"venue": "Hall",
		store.FieldPath("registeredUsers", "u/2"): "d@e.f",
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	node, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if node.Value["title"] != "Open night" || node.Value["venue"] != "Hall" {
		t.Fatalf("expected merged fields, got %v", node.Value)
	}
	users, _ := node.Value["registeredUsers"].(map[string]any)
	if len(users) != 2 || users["u/2"] != "d@e.f" {
		t.Fatalf("expected nested insert, got %v", node.Value["registeredUsers"])
	}

	if err = s.Update(ctx, path, map[string]any{store.FieldPath("registeredUsers", "u1"): nil}); err != nil {
		t.Fatalf("update delete: %v", err)
	}
	node, err = s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	users, _ = node.Value["registeredUsers"].(map[string]any)
	if _, ok := users["u1"]; ok || len(users) != 1 {
		t.Fatalf("expected u1 removed, got %v", users)
	}
}

func testUpdateMissing(t *testing.T, s store.Store) {
	err := s.Update(context.Background(), store.NewPath("clubs", "ghost"), map[string]any{"memberCount": 1})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err = s.Get(context.Background(), store.NewPath("clubs", "ghost")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected update not to create the node, got %v", err)
	}
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	path := store.NewPath("memberships", "m1")

	if err := s.Set(ctx, path, map[string]any{"userId": "u1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, path); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("expected deleting a missing node to succeed, got %v", err)
	}
}

func testQuery(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, m := range []struct{ key, user, club string }{
		{"c", "u1", "chess"},
		{"a", "u1", "go"},
		{"b", "u2", "chess"},
	} {
		if err := s.Set(ctx, store.NewPath("memberships", m.key), map[string]any{"userId": m.user, "clubId": m.club}); err != nil {
			t.Fatalf("set %s: %v", m.key, err)
		}
	}

	all, err := s.Query(ctx, "memberships", store.Filter{})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if keys := nodeKeys(all); fmt.Sprint(keys) != "[a b c]" {
		t.Fatalf("expected keys [a b c], got %v", keys)
	}

	chess, err := s.Query(ctx, "memberships", store.Eq("clubId", "chess"))
	if err != nil {
		t.Fatalf("query chess: %v", err)
	}
	if keys := nodeKeys(chess); fmt.Sprint(keys) != "[b c]" {
		t.Fatalf("expected keys [b c], got %v", keys)
	}

	none, err := s.Query(ctx, "posts", store.Filter{})
	if err != nil {
		t.Fatalf("query empty collection: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no posts, got %d", len(none))
	}
}

func testServerTimestamp(t *testing.T, s store.Store) {
	ctx := context.Background()
	before := time.Now().Add(-time.Second).UnixMilli()

	var last int
	for _, key := range []string{"p1", "p2", "p3"} {
		if err := s.Set(ctx, store.NewPath("posts", key), map[string]any{"timestamp": store.ServerTimestamp}); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
		node, err := s.Get(ctx, store.NewPath("posts", key))
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		ts := store.Int(node.Value, "timestamp")
		if int64(ts) < before {
			t.Fatalf("expected a server timestamp, got %v", node.Value["timestamp"])
		}
		if ts <= last {
			t.Fatalf("expected increasing timestamps, got %d after %d", ts, last)
		}
		last = ts
	}
}

func testSubscribe(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Subscribe(ctx, "posts", store.Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	path := store.NewPath("posts", "p1")
	if err = s.Set(ctx, path, map[string]any{"content": "hello"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err = s.Update(ctx, path, map[string]any{"content": "hello again"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err = s.Delete(ctx, path); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, want := range []store.ChangeType{store.ChangeAdded, store.ChangeModified, store.ChangeRemoved} {
		select {
		case change := <-changes:
			if change.Type != want {
				t.Fatalf("expected %s, got %s", want, change.Type)
			}
			if change.Node.Path != path {
				t.Fatalf("expected path %s, got %s", path, change.Node.Path)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-changes:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected channel to close after cancel")
		}
	}
}

func testTransact(t *testing.T, s store.Store) {
	tr, ok := s.(store.Transactor)
	if !ok {
		t.Skip("store does not implement store.Transactor")
	}

	ctx := context.Background()
	path := store.NewPath("clubs", "chess")

	if err := tr.Transact(ctx, path, func(current store.Node, exists bool) (map[string]any, error) {
		if exists {
			return nil, errors.New("expected missing node")
		}
		return map[string]any{"memberCount": 1}, nil
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	errAbort := errors.New("abort")
	if err := tr.Transact(ctx, path, func(current store.Node, exists bool) (map[string]any, error) {
		return map[string]any{"memberCount": 99}, errAbort
	}); !errors.Is(err, errAbort) {
		t.Fatalf("expected abort error, got %v", err)
	}

	if err := tr.Transact(ctx, path, func(current store.Node, exists bool) (map[string]any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("no-op: %v", err)
	}

	node, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := store.Int(node.Value, "memberCount"); got != 1 {
		t.Fatalf("expected memberCount 1, got %d", got)
	}
}

func testTransactConcurrent(t *testing.T, s store.Store) {
	tr, ok := s.(store.Transactor)
	if !ok {
		t.Skip("store does not implement store.Transactor")
	}

	ctx := context.Background()
	path := store.NewPath("clubs", "chess")
	if err := s.Set(ctx, path, map[string]any{"memberCount": 0}); err != nil {
		t.Fatalf("set: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tr.Transact(ctx, path, func(current store.Node, exists bool) (map[string]any, error) {
				doc := store.Clone(current.Value)
				doc["memberCount"] = store.Int(doc, "memberCount") + 1
				return doc, nil
			})
		}()
	}
	wg.Wait()
	close(errs)

	var failed int
	for err := range errs {
		if err != nil {
			if !errors.Is(err, store.ErrConflict) {
				t.Fatalf("transact: %v", err)
			}
			failed++
		}
	}

	node, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := store.Int(node.Value, "memberCount"); got != workers-failed {
		t.Fatalf("expected memberCount %d, got %d", workers-failed, got)
	}
}

func nodeKeys(nodes []store.Node) []string {
	keys := make([]string, len(nodes))
	for i, node := range nodes {
		keys[i] = node.Path.Key
	}
	return keys
}
