// Package store defines the contract between clubhouse and the external key-tree database.
//
// Nodes live at "collection/key" paths and hold schemaless documents. Backends live in
// the subpackages: memstore, pgstore, redisstore and mongostore.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	CollectionClubs       = "clubs"
	CollectionMemberships = "memberships"
	CollectionEvents      = "events"
	CollectionPosts       = "posts"
	CollectionUsers       = "users"
)

var (
	// ErrNotFound is returned when a node does not exist.
	ErrNotFound = errors.New("node not found")

	// ErrConflict is returned by Transactor implementations which gave up after repeated
	// concurrent modifications of the same node.
	ErrConflict = errors.New("node modified concurrently")

	ErrInvalidPath = errors.New("invalid path")
)

// Store is the entity store client.
type Store interface {
	// Get returns the node at path or ErrNotFound.
	Get(ctx context.Context, path Path) (Node, error)

	// Set replaces the node at path with value. value is either a map[string]any or any
	// JSON encodable value which encodes to an object.
	Set(ctx context.Context, path Path, value any) error

	// Update merges fields into the existing node at path. Field names may address nested
	// maps using FieldPath, a nil value removes the field. Update returns ErrNotFound if
	// the node does not exist.
	Update(ctx context.Context, path Path, fields map[string]any) error

	// Delete removes the node at path. Deleting a missing node is not an error.
	Delete(ctx context.Context, path Path) error

	// Query returns all nodes of collection matching filter, ordered by key.
	Query(ctx context.Context, collection string, filter Filter) ([]Node, error)

	// Subscribe streams changes of collection matching filter until ctx is done, after
	// which the channel is closed. A node which stops matching filter is delivered as
	// ChangeRemoved with its last matching value.
	Subscribe(ctx context.Context, collection string, filter Filter) (<-chan Change, error)

	Close() error
}

// Transactor is implemented by stores which can apply a read-modify-write to a single
// node atomically.
//
// fn receives the current node (exists is false if it is missing) and returns the full
// replacement document. A nil document means no write, an error aborts the transaction
// and is returned by Transact unchanged. fn may be called more than once.
type Transactor interface {
	Transact(ctx context.Context, path Path, fn func(current Node, exists bool) (map[string]any, error)) error
}

func NewPath(collection string, key string) Path {
	return Path{Collection: collection, Key: key}
}

type Path struct {
	Collection string
	Key        string
}

func (p Path) String() string {
	return p.Collection + "/" + p.Key
}

func (p Path) Validate() error {
	if p.Collection == "" || p.Key == "" {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p.String())
	}
	if strings.Contains(p.Collection, "/") || strings.Contains(p.Key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p.String())
	}
	return nil
}

type Node struct {
	Path  Path
	Value map[string]any
}

// Decode decodes the node value into v using its JSON representation.
func (n Node) Decode(v any) error {
	data, err := json.Marshal(n.Value)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", n.Path, err)
	}
	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode node %s: %w", n.Path, err)
	}
	return nil
}

type ChangeType int

const (
	ChangeAdded ChangeType = iota + 1
	ChangeModified
	ChangeRemoved
)

func (t ChangeType) String() string {
	switch t {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

func ParseChangeType(s string) ChangeType {
	switch s {
	case "added":
		return ChangeAdded
	case "modified":
		return ChangeModified
	case "removed":
		return ChangeRemoved
	default:
		return 0
	}
}

type Change struct {
	Type ChangeType
	Node Node
}

// Filter is an equality filter on a top-level field. The zero Filter matches every node.
type Filter struct {
	Field string
	Value any
}

func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

func (f Filter) IsZero() bool {
	return f.Field == ""
}

func (f Filter) Match(doc map[string]any) bool {
	if f.IsZero() {
		return true
	}
	v, ok := doc[f.Field]
	if !ok {
		return false
	}
	return equal(v, f.Value)
}

func equal(a any, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return false
	}
}
