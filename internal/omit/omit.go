// Package omit tells a JSON field which was left out of a request apart from one which
// was explicitly set to its zero value.
package omit

import (
	"encoding/json"
)

func New[T any](value T) Omit[T] {
	return Omit[T]{
		Value: value,
		OK:    true,
	}
}

type Omit[T any] struct {
	Value T
	OK    bool
}

func (o Omit[T]) IsZero() bool {
	return !o.OK
}

// Or returns the value if it was set and fallback otherwise.
func (o Omit[T]) Or(fallback T) T {
	if o.OK {
		return o.Value
	}
	return fallback
}

// Put stores the value in fields under key if it was set.
func (o Omit[T]) Put(fields map[string]any, key string) {
	if o.OK {
		fields[key] = o.Value
	}
}

func (o Omit[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Value)
}

func (o *Omit[T]) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return err
	}
	o.OK = true
	return nil
}
