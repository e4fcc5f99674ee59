package pgstore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/topi314/clubhouse/server/store"
	"github.com/topi314/clubhouse/server/store/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CLUBHOUSE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CLUBHOUSE_TEST_POSTGRES_DSN not set")
	}

	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if _, err = s.db.ExecContext(context.Background(), "TRUNCATE nodes"); err != nil {
		t.Fatalf("failed to truncate nodes: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return openTestStore(t)
	})
}

func TestLargeValueNotification(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := s.Subscribe(ctx, store.CollectionPosts, store.Filter{})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	content := strings.Repeat("x", 2*maxNotifyValue)
	if err = s.Set(ctx, store.NewPath(store.CollectionPosts, "big"), map[string]any{"content": content}); err != nil {
		t.Fatalf("set: %v", err)
	}

	change := <-changes
	if change.Type != store.ChangeAdded || change.Node.Value["content"] != content {
		t.Fatalf("expected added change with full content, got %s", change.Type)
	}
}

func TestDataSourceName(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, Username: "clubhouse", Password: "secret", Database: "clubhouse"}
	want := "host=db port=5432 user=clubhouse password=secret dbname=clubhouse sslmode=disable"
	if got := cfg.DataSourceName(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if strings.Contains(cfg.String(), "secret") {
		t.Fatal("expected password to be masked")
	}
}
