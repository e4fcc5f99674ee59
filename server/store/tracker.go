package store

// NewTracker returns a Tracker for subscriptions of backends which only learn about the
// new state of a node. initial seeds the nodes currently matching filter.
func NewTracker(filter Filter, initial []Node) *Tracker {
	t := &Tracker{
		filter: filter,
		known:  make(map[string]map[string]any, len(initial)),
	}
	for _, node := range initial {
		if filter.Match(node.Value) {
			t.known[node.Path.Key] = node.Value
		}
	}
	return t
}

// Tracker turns node writes into filtered changes by remembering which nodes of a
// collection currently match. It is not safe for concurrent use.
type Tracker struct {
	filter Filter
	known  map[string]map[string]any
}

// Observe records the new state of the node at path. A nil value means the node was
// deleted. ok is false if the write is invisible to the filter.
func (t *Tracker) Observe(path Path, value map[string]any) (Change, bool) {
	old, wasKnown := t.known[path.Key]
	matches := value != nil && t.filter.Match(value)

	switch {
	case wasKnown && matches:
		t.known[path.Key] = value
		return Change{Type: ChangeModified, Node: Node{Path: path, Value: Clone(value)}}, true
	case matches:
		t.known[path.Key] = value
		return Change{Type: ChangeAdded, Node: Node{Path: path, Value: Clone(value)}}, true
	case wasKnown:
		delete(t.known, path.Key)
		return Change{Type: ChangeRemoved, Node: Node{Path: path, Value: Clone(old)}}, true
	default:
		return Change{}, false
	}
}

// Resync compares a fresh snapshot of the collection against the tracked state and
// returns the changes missed in between.
func (t *Tracker) Resync(collection string, snapshot []Node) []Change {
	var changes []Change
	seen := make(map[string]struct{}, len(snapshot))
	for _, node := range snapshot {
		seen[node.Path.Key] = struct{}{}
		if change, ok := t.Observe(node.Path, node.Value); ok {
			changes = append(changes, change)
		}
	}
	for key := range t.known {
		if _, ok := seen[key]; ok {
			continue
		}
		if change, ok := t.Observe(NewPath(collection, key), nil); ok {
			changes = append(changes, change)
		}
	}
	return changes
}
