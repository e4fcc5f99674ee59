// Package pgstore stores nodes as JSONB rows in PostgreSQL.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/topi314/gomigrate"
	"github.com/topi314/gomigrate/drivers/postgres"

	"github.com/topi314/clubhouse/internal/xpgtype"
	"github.com/topi314/clubhouse/server/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const notifyChannel = "clubhouse_nodes"

// pg_notify payloads are limited to 8000 bytes, larger values are fetched by the listener.
const maxNotifyValue = 7000

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

func New(ctx context.Context, cfg Config) (*Store, error) {
	return Open(ctx, cfg.DataSourceName())
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	dbx, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err = gomigrate.Migrate(ctx, dbx, postgres.New, migrations); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		db:    dbx,
		dsn:   dsn,
		clock: store.NewClock(),
	}, nil
}

type Store struct {
	db    *sqlx.DB
	dsn   string
	clock *store.Clock
}

type row struct {
	Key   string                       `db:"key"`
	Value xpgtype.JSON[map[string]any] `db:"value"`
}

type notification struct {
	Collection string         `json:"collection"`
	Key        string         `json:"key"`
	Deleted    bool           `json:"deleted,omitempty"`
	Value      map[string]any `json:"value,omitempty"`
	// Truncated is set when Value was too large for the payload.
	Truncated bool `json:"truncated,omitempty"`
}

func (s *Store) Get(ctx context.Context, path store.Path) (store.Node, error) {
	if err := path.Validate(); err != nil {
		return store.Node{}, err
	}
	return get(ctx, s.db, path)
}

func get(ctx context.Context, q sqlx.QueryerContext, path store.Path) (store.Node, error) {
	query := `
		SELECT key, value
		FROM nodes
		WHERE collection = $1 AND key = $2
	`

	var r row
	if err := sqlx.GetContext(ctx, q, &r, query, path.Collection, path.Key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Node{}, store.ErrNotFound
		}
		return store.Node{}, fmt.Errorf("failed to get node %s: %w", path, err)
	}
	return store.Node{Path: path, Value: r.Value.V}, nil
}

func (s *Store) Set(ctx context.Context, path store.Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	doc, err := store.Prepare(value, s.clock.Now())
	if err != nil {
		return err
	}

	return s.inTx(ctx, path, func(tx *sqlx.Tx) error {
		return put(ctx, tx, path, doc)
	})
}

func (s *Store) Update(ctx context.Context, path store.Path, fields map[string]any) error {
	return s.Transact(ctx, path, func(current store.Node, exists bool) (map[string]any, error) {
		if !exists {
			return nil, store.ErrNotFound
		}
		return store.Merge(current.Value, fields, s.clock.Now())
	})
}

func (s *Store) Delete(ctx context.Context, path store.Path) error {
	if err := path.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, path, func(tx *sqlx.Tx) error {
		query := `
			DELETE FROM nodes
			WHERE collection = $1 AND key = $2
		`
		res, err := tx.ExecContext(ctx, query, path.Collection, path.Key)
		if err != nil {
			return fmt.Errorf("failed to delete node %s: %w", path, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return notify(ctx, tx, notification{Collection: path.Collection, Key: path.Key, Deleted: true})
	})
}

func (s *Store) Query(ctx context.Context, collection string, filter store.Filter) ([]store.Node, error) {
	query := `
		SELECT key, value
		FROM nodes
		WHERE collection = $1 AND value @> $2::jsonb
		ORDER BY key
	`

	contains := map[string]any{}
	if !filter.IsZero() {
		contains[filter.Field] = filter.Value
	}

	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, collection, xpgtype.NewJSON(contains)); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	nodes := make([]store.Node, 0, len(rows))
	for _, r := range rows {
		nodes = append(nodes, store.Node{
			Path:  store.NewPath(collection, r.Key),
			Value: r.Value.V,
		})
	}
	return nodes, nil
}

// Transact serializes writers of path with a transaction scoped advisory lock, which also
// covers nodes that do not exist yet.
func (s *Store) Transact(ctx context.Context, path store.Path, fn func(current store.Node, exists bool) (map[string]any, error)) error {
	if err := path.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, path, func(tx *sqlx.Tx) error {
		current, err := get(ctx, tx, path)
		exists := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if !exists {
			current = store.Node{Path: path}
		}

		doc, err := fn(current, exists)
		if err != nil || doc == nil {
			return err
		}
		doc, err = store.Prepare(doc, s.clock.Now())
		if err != nil {
			return err
		}
		return put(ctx, tx, path, doc)
	})
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, path store.Path, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", path.String()); err != nil {
		return fmt.Errorf("failed to lock node %s: %w", path, err)
	}
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func put(ctx context.Context, tx *sqlx.Tx, path store.Path, doc map[string]any) error {
	query := `
		INSERT INTO nodes (collection, key, value, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (collection, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.ExecContext(ctx, query, path.Collection, path.Key, xpgtype.NewJSON(doc)); err != nil {
		return fmt.Errorf("failed to write node %s: %w", path, err)
	}
	return notify(ctx, tx, notification{Collection: path.Collection, Key: path.Key, Value: doc})
}

// notify is delivered to listeners when tx commits.
func notify(ctx context.Context, tx *sqlx.Tx, n notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if len(payload) > maxNotifyValue {
		n.Value = nil
		n.Truncated = true
		if payload, err = json.Marshal(n); err != nil {
			return fmt.Errorf("failed to encode notification: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}
