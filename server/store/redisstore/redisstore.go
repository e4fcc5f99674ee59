// Package redisstore stores nodes as JSON strings in Redis. Every collection keeps a set
// of its keys, changes are published on a channel per collection.
package redisstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/topi314/clubhouse/server/store"
)

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, cfg.Prefix, cfg.MaxRetries), nil
}

// NewWithClient wraps an existing client. The store owns the client and closes it.
func NewWithClient(client *redis.Client, prefix string, maxRetries int) *Store {
	if maxRetries <= 0 {
		maxRetries = 10
	}
	return &Store{
		client:     client,
		prefix:     prefix,
		maxRetries: maxRetries,
		clock:      store.NewClock(),
	}
}

type Store struct {
	client     *redis.Client
	prefix     string
	maxRetries int
	clock      *store.Clock
}

type message struct {
	Key     string         `json:"key"`
	Deleted bool           `json:"deleted,omitempty"`
	Value   map[string]any `json:"value,omitempty"`
}

func (s *Store) nodeKey(path store.Path) string {
	return s.prefix + "node:" + path.Collection + ":" + path.Key
}

func (s *Store) collectionKey(collection string) string {
	return s.prefix + "collection:" + collection
}

func (s *Store) channel(collection string) string {
	return s.prefix + "changes:" + collection
}

func (s *Store) Get(ctx context.Context, path store.Path) (store.Node, error) {
	if err := path.Validate(); err != nil {
		return store.Node{}, err
	}
	return get(ctx, s.client, s.nodeKey(path), path)
}

func get(ctx context.Context, c redis.Cmdable, key string, path store.Path) (store.Node, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Node{}, store.ErrNotFound
	}
	if err != nil {
		return store.Node{}, fmt.Errorf("failed to get node %s: %w", path, err)
	}
	return decode(path, data)
}

func decode(path store.Path, data []byte) (store.Node, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return store.Node{}, fmt.Errorf("failed to decode node %s: %w", path, err)
	}
	return store.Node{Path: path, Value: doc}, nil
}

func (s *Store) Set(ctx context.Context, path store.Path, value any) error {
	if err := path.Validate(); err != nil {
		return err
	}
	doc, err := store.Prepare(value, s.clock.Now())
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return s.put(ctx, pipe, path, doc)
	})
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

	key := s.nodeKey(path)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to check node %s: %w", path, err)
		}
		if exists == 0 {
			return nil
		}

		payload, err := json.Marshal(message{Key: path.Key, Deleted: true})
		if err != nil {
			return fmt.Errorf("failed to encode change: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, s.collectionKey(path.Collection), path.Key)
			pipe.Publish(ctx, s.channel(path.Collection), payload)
			return nil
		})
		return err
	})
}

func (s *Store) Query(ctx context.Context, collection string, filter store.Filter) ([]store.Node, error) {
	keys, err := s.client.SMembers(ctx, s.collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	nodes := make([]store.Node, 0, len(keys))
	if len(keys) == 0 {
		return nodes, nil
	}

	nodeKeys := make([]string, len(keys))
	for i, key := range keys {
		nodeKeys[i] = s.nodeKey(store.NewPath(collection, key))
	}
	values, err := s.client.MGet(ctx, nodeKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}

	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			// deleted between SMEMBERS and MGET
			continue
		}
		node, err := decode(store.NewPath(collection, keys[i]), []byte(data))
		if err != nil {
			return nil, err
		}
		if filter.Match(node.Value) {
			nodes = append(nodes, node)
		}
	}
	slices.SortFunc(nodes, func(a, b store.Node) int {
		return cmp.Compare(a.Path.Key, b.Path.Key)
	})
	return nodes, nil
}

// Transact is an optimistic WATCH/MULTI transaction retried up to the configured number
// of times before giving up with store.ErrConflict.
func (s *Store) Transact(ctx context.Context, path store.Path, fn func(current store.Node, exists bool) (map[string]any, error)) error {
	if err := path.Validate(); err != nil {
		return err
	}

	key := s.nodeKey(path)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		current, err := get(ctx, tx, key, path)
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
		if doc, err = store.Prepare(doc, s.clock.Now()); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.put(ctx, pipe, path, doc)
		})
		return err
	})
}

func (s *Store) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for range s.maxRetries {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return store.ErrConflict
}

func (s *Store) put(ctx context.Context, pipe redis.Pipeliner, path store.Path, doc map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", path, err)
	}
	payload, err := json.Marshal(message{Key: path.Key, Value: doc})
	if err != nil {
		return fmt.Errorf("failed to encode change: %w", err)
	}

	pipe.Set(ctx, s.nodeKey(path), data, 0)
	pipe.SAdd(ctx, s.collectionKey(path.Collection), path.Key)
	pipe.Publish(ctx, s.channel(path.Collection), payload)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, filter store.Filter) (<-chan store.Change, error) {
	ps := s.client.Subscribe(ctx, s.channel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", collection, err)
	}

	initial, err := s.Query(ctx, collection, store.Filter{})
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	changes := make(chan store.Change)
	go func() {
		defer close(changes)
		defer func() {
			_ = ps.Close()
		}()

		tracker := store.NewTracker(filter, initial)
		messages := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var m message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					slog.ErrorContext(ctx, "Failed to decode change", slog.String("channel", msg.Channel), slog.Any("err", err))
					continue
				}
				value := m.Value
				if m.Deleted {
					value = nil
				}
				change, ok := tracker.Observe(store.NewPath(collection, m.Key), value)
				if !ok {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case changes <- change:
				}
			}
		}
	}()

	return changes, nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	return nil
}
