// Package mongostore keeps every collection in a MongoDB collection of the same name.
// Documents look like {_id: key, v: value, rev: n}, rev is bumped on every write and
// used for compare-and-swap transactions.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/topi314/clubhouse/server/store"
)

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

func New(ctx context.Context, cfg Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Store{
		client:     client,
		db:         client.Database(cfg.Database),
		maxRetries: maxRetries,
		clock:      store.NewClock(),
	}, nil
}

type Store struct {
	client     *mongo.Client
	db         *mongo.Database
	maxRetries int
	clock      *store.Clock
}

type record struct {
	ID    string `bson:"_id"`
	Value bson.M `bson:"v"`
	Rev   int64  `bson:"rev"`
}

func (r record) node(collection string) store.Node {
	return store.Node{
		Path:  store.NewPath(collection, r.ID),
		Value: normalizeDoc(r.Value),
	}
}

func (s *Store) Get(ctx context.Context, path store.Path) (store.Node, error) {
	if err := path.Validate(); err != nil {
		return store.Node{}, err
	}
	r, err := s.find(ctx, path)
	if err != nil {
		return store.Node{}, err
	}
	return r.node(path.Collection), nil
}

func (s *Store) find(ctx context.Context, path store.Path) (record, error) {
	var r record
	err := s.db.Collection(path.Collection).FindOne(ctx, bson.M{"_id": path.Key}).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return record{}, store.ErrNotFound
	}
	if err != nil {
		return record{}, fmt.Errorf("failed to get node %s: %w", path, err)
	}
	return r, nil
}

func (s *Store) Set(ctx context.Context, path store.Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	doc, err := store.Prepare(value, s.clock.Now())
	if err != nil {
		return err
	}

	_, err = s.db.Collection(path.Collection).UpdateOne(ctx,
		bson.M{"_id": path.Key},
		bson.M{"$set": bson.M{"v": doc}, "$inc": bson.M{"rev": 1}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set node %s: %w", path, err)
	}
	return nil
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
	if _, err := s.db.Collection(path.Collection).DeleteOne(ctx, bson.M{"_id": path.Key}); err != nil {
		return fmt.Errorf("failed to delete node %s: %w", path, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filter store.Filter) ([]store.Node, error) {
	query := bson.M{}
	if !filter.IsZero() {
		query["v."+filter.Field] = filter.Value
	}

	cursor, err := s.db.Collection(collection).Find(ctx, query, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	var records []record
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", collection, err)
	}

	nodes := make([]store.Node, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, r.node(collection))
	}
	return nodes, nil
}

// Transact reads the node and writes it back only if its revision did not change in
// between, retrying up to the configured number of times before returning
// store.ErrConflict.
func (s *Store) Transact(ctx context.Context, path store.Path, fn func(current store.Node, exists bool) (map[string]any, error)) error {
	if err := path.Validate(); err != nil {
		return err
	}

	coll := s.db.Collection(path.Collection)
	for range s.maxRetries {
		r, err := s.find(ctx, path)
		exists := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		current := store.Node{Path: path}
		if exists {
			current = r.node(path.Collection)
		}
		doc, err := fn(current, exists)
		if err != nil || doc == nil {
			return err
		}
		if doc, err = store.Prepare(doc, s.clock.Now()); err != nil {
			return err
		}

		if !exists {
			_, err = coll.InsertOne(ctx, record{ID: path.Key, Value: doc, Rev: 1})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to insert node %s: %w", path, err)
			}
			return nil
		}

		res, err := coll.ReplaceOne(ctx,
			bson.M{"_id": path.Key, "rev": r.Rev},
			record{ID: path.Key, Value: doc, Rev: r.Rev + 1},
		)
		if err != nil {
			return fmt.Errorf("failed to replace node %s: %w", path, err)
		}
		if res.MatchedCount == 0 {
			continue
		}
		return nil
	}
	return store.ErrConflict
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongo: %w", err)
	}
	return nil
}

func normalizeDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = normalize(v)
	}
	return out
}

// normalize converts bson container types into the plain maps and slices used by the
// rest of the store package.
func normalize(v any) any {
	switch vv := v.(type) {
	case primitive.D:
		out := make(map[string]any, len(vv))
		for _, e := range vv {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case primitive.M:
		return normalizeDoc(vv)
	case map[string]any:
		return normalizeDoc(vv)
	case primitive.A:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = normalize(item)
		}
		return out
	case int32:
		return int64(vv)
	default:
		return v
	}
}
