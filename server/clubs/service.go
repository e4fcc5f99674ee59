// Package clubs keeps the denormalized club state consistent: memberships and the cached
// member counts derived from them, capacity-gated event registration and per-user feeds.
//
// Every component gets its store handle at construction. With atomic writes enabled and a
// store implementing store.Transactor, member counts, membership creation and event
// registrations are applied as atomic read-modify-writes. Otherwise they are optimistic
// and the Reconciler repairs any drift.
package clubs

import (
	"github.com/topi314/clubhouse/server/store"
)

type Config struct {
	AtomicWrites bool
	Reconciler   ReconcilerConfig
}

func New(s store.Store, cfg Config) *Service {
	counter := NewCounter(s, cfg.AtomicWrites)
	ledger := NewLedger(s, counter, cfg.AtomicWrites)
	return &Service{
		Store:      s,
		Counter:    counter,
		Ledger:     ledger,
		Gate:       NewGate(s, cfg.AtomicWrites),
		Reconciler: NewReconciler(s, cfg.Reconciler),
		Feed:       NewFeed(s, ledger),
		Directory:  NewDirectory(s, ledger),
	}
}

type Service struct {
	Store      store.Store
	Counter    *Counter
	Ledger     *Ledger
	Gate       *Gate
	Reconciler *Reconciler
	Feed       *Feed
	Directory  *Directory
}
