package memstore

import (
	"context"
	"sync"

	"github.com/topi314/clubhouse/server/store"
)

// subscriber queues changes without blocking writers and forwards them in order.
type subscriber struct {
	filter store.Filter
	out    chan store.Change
	done   chan struct{}

	mu      sync.Mutex
	queue   []store.Change
	wake    chan struct{}
	stopped bool
	stopCh  chan struct{}
}

func newSubscriber(ctx context.Context, filter store.Filter) *subscriber {
	sub := &subscriber{
		filter: filter,
		out:    make(chan store.Change),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
		stopCh: make(chan struct{}),
	}
	go sub.run(ctx)
	return sub
}

func (s *subscriber) push(change store.Change) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, change)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stopCh)
}

func (s *subscriber) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)
	defer s.stop()

	for {
		s.mu.Lock()
		var (
			change store.Change
			ok     bool
		)
		if len(s.queue) > 0 {
			change, ok = s.queue[0], true
			s.queue = s.queue[1:]
		}
		s.mu.Unlock()

		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-s.wake:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case s.out <- change:
		}
	}
}
