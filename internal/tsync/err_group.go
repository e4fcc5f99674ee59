package tsync

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrorGroupWithContext returns a group whose context is cancelled once Wait returns.
// Unlike errgroup a failing task does not cancel the others.
func ErrorGroupWithContext(ctx context.Context) (*ErrorGroup, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &ErrorGroup{cancel: cancel}, ctx
}

type ErrorGroup struct {
	mu     sync.Mutex
	errs   []error
	eg     errgroup.Group
	cancel context.CancelFunc
}

func (g *ErrorGroup) SetLimit(n int) {
	g.eg.SetLimit(n)
}

// Go runs fn in a new goroutine, blocking while the limit is reached.
func (g *ErrorGroup) Go(fn func() error) {
	g.mu.Lock()
	i := len(g.errs)
	g.errs = append(g.errs, nil)
	g.mu.Unlock()

	g.eg.Go(func() error {
		err := fn()
		g.mu.Lock()
		defer g.mu.Unlock()
		g.errs[i] = err
		return nil
	})
}

// Wait blocks until every task returned and reports their errors in the order the tasks
// were started. Successful tasks have a nil entry.
func (g *ErrorGroup) Wait() []error {
	_ = g.eg.Wait()
	if g.cancel != nil {
		g.cancel()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.errs
}
