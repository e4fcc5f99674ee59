// Package memstore is an in-memory implementation of store.Store used by tests and
// single process deployments.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/topi314/clubhouse/server/store"
)

var (
	_ store.Store      = (*Store)(nil)
	_ store.Transactor = (*Store)(nil)
)

var ErrClosed = errors.New("store closed")

func New() *Store {
	return &Store{
		collections: map[string]map[string]map[string]any{},
		subscribers: map[string][]*subscriber{},
		clock:       store.NewClock(),
	}
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	subscribers map[string][]*subscriber
	clock       *store.Clock
	closed      bool
}

func (s *Store) Get(ctx context.Context, path store.Path) (store.Node, error) {
	if err := s.check(ctx, path); err != nil {
		return store.Node{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[path.Collection][path.Key]
	if !ok {
		return store.Node{}, store.ErrNotFound
	}
	return store.Node{Path: path, Value: store.Clone(doc)}, nil
}

func (s *Store) Set(ctx context.Context, path store.Path, value any) error {
	if err := s.check(ctx, path); err != nil {
		return err
	}

	doc, err := store.Prepare(value, s.clock.Now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.put(path, doc)
	notify(s.subscribers[path.Collection], path, old, existed, doc, true)
	return nil
}

func (s *Store) Update(ctx context.Context, path store.Path, fields map[string]any) error {
	if err := s.check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.collections[path.Collection][path.Key]
	if !ok {
		return store.ErrNotFound
	}
	doc, err := store.Merge(old, fields, s.clock.Now())
	if err != nil {
		return err
	}
	s.put(path, doc)
	notify(s.subscribers[path.Collection], path, old, true, doc, true)
	return nil
}

func (s *Store) Delete(ctx context.Context, path store.Path) error {
	if err := s.check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.collections[path.Collection][path.Key]
	if !ok {
		return nil
	}
	delete(s.collections[path.Collection], path.Key)
	notify(s.subscribers[path.Collection], path, old, true, nil, false)
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, filter store.Filter) ([]store.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	nodes := make([]store.Node, 0)
	for key, doc := range s.collections[collection] {
		if !filter.Match(doc) {
			continue
		}
		nodes = append(nodes, store.Node{
			Path:  store.NewPath(collection, key),
			Value: store.Clone(doc),
		})
	}
	slices.SortFunc(nodes, func(a, b store.Node) int {
		return cmp.Compare(a.Path.Key, b.Path.Key)
	})

	return nodes, nil
}

// Transact runs fn while holding the store lock. fn must not call back into the store.
func (s *Store) Transact(ctx context.Context, path store.Path, fn func(current store.Node, exists bool) (map[string]any, error)) error {
	if err := s.check(ctx, path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, existed := s.collections[path.Collection][path.Key]
	doc, err := fn(store.Node{Path: path, Value: store.Clone(old)}, existed)
	if err != nil || doc == nil {
		return err
	}

	doc, err = store.Prepare(doc, s.clock.Now())
	if err != nil {
		return err
	}
	s.put(path, doc)
	notify(s.subscribers[path.Collection], path, old, existed, doc, true)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, filter store.Filter) (<-chan store.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	sub := newSubscriber(ctx, filter)
	s.subscribers[collection] = append(s.subscribers[collection], sub)

	go func() {
		<-sub.done
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subscribers[collection] = slices.DeleteFunc(s.subscribers[collection], func(other *subscriber) bool {
			return other == sub
		})
	}()

	return sub.out, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for _, subs := range s.subscribers {
		for _, sub := range subs {
			sub.stop()
		}
	}
	return nil
}

func (s *Store) check(ctx context.Context, path store.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := path.Validate(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// put must be called with s.mu held.
func (s *Store) put(path store.Path, doc map[string]any) (map[string]any, bool) {
	collection, ok := s.collections[path.Collection]
	if !ok {
		collection = map[string]map[string]any{}
		s.collections[path.Collection] = collection
	}
	old, existed := collection[path.Key]
	collection[path.Key] = doc
	return old, existed
}

// notify must be called with s.mu held so subscribers observe writes in order.
func notify(subs []*subscriber, path store.Path, old map[string]any, existed bool, doc map[string]any, exists bool) {
	for _, sub := range subs {
		oldMatch := existed && sub.filter.Match(old)
		newMatch := exists && sub.filter.Match(doc)

		var change store.Change
		switch {
		case oldMatch && newMatch:
			change = store.Change{Type: store.ChangeModified, Node: store.Node{Path: path, Value: store.Clone(doc)}}
		case newMatch:
			change = store.Change{Type: store.ChangeAdded, Node: store.Node{Path: path, Value: store.Clone(doc)}}
		case oldMatch:
			change = store.Change{Type: store.ChangeRemoved, Node: store.Node{Path: path, Value: store.Clone(old)}}
		default:
			continue
		}
		sub.push(change)
	}
}

func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes int
	for _, collection := range s.collections {
		nodes += len(collection)
	}
	return fmt.Sprintf("memstore(collections=%d, nodes=%d)", len(s.collections), nodes)
}
