package xslog

import (
	"context"
	"log/slog"
	"slices"
)

var _ slog.Handler = (*FilterHandler)(nil)

// FilterFunc reports whether a record should be handled.
type FilterFunc func(ctx context.Context, record slog.Record) bool

// NewFilterHandler wraps handler so that only records accepted by every filter reach it.
func NewFilterHandler(handler slog.Handler, filters ...FilterFunc) *FilterHandler {
	return &FilterHandler{handler: handler, filters: filters}
}

type FilterHandler struct {
	handler slog.Handler
	filters []FilterFunc
}

func (f *FilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f.handler.Enabled(ctx, level)
}

func (f *FilterHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, filter := range f.filters {
		if !filter(ctx, record) {
			return nil
		}
	}
	return f.handler.Handle(ctx, record)
}

func (f *FilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewFilterHandler(f.handler.WithAttrs(attrs), f.filters...)
}

func (f *FilterHandler) WithGroup(name string) slog.Handler {
	return NewFilterHandler(f.handler.WithGroup(name), f.filters...)
}

// DropAttr rejects records with the given message whose string attribute key holds one
// of values.
func DropAttr(message string, key string, values ...string) FilterFunc {
	return func(_ context.Context, record slog.Record) bool {
		if record.Message != message || len(values) == 0 {
			return true
		}
		keep := true
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == key && slices.Contains(values, attr.Value.String()) {
				keep = false
				return false
			}
			return true
		})
		return keep
	}
}
