package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/topi314/clubhouse/server/clubs"
	"github.com/topi314/clubhouse/server/store"
	"github.com/topi314/clubhouse/server/store/memstore"
	"github.com/topi314/clubhouse/server/store/mongostore"
	"github.com/topi314/clubhouse/server/store/pgstore"
	"github.com/topi314/clubhouse/server/store/redisstore"
)

func New(ctx context.Context, cfg Config) (*Server, error) {
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return NewWithStore(cfg, s), nil
}

// NewWithStore builds a Server around an already opened store. The server owns the store
// and closes it on Stop.
func NewWithStore(cfg Config, s store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Cfg:   cfg,
		Store: s,
		Clubs: clubs.New(s, clubs.Config{
			AtomicWrites: cfg.Consistency.AtomicWrites,
			Reconciler: clubs.ReconcilerConfig{
				Concurrency: cfg.Sweep.Concurrency,
				Every:       time.Duration(cfg.Sweep.Every),
				Burst:       cfg.Sweep.Burst,
			},
		}),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

func openStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Type {
	case StoreTypeMemory:
		return memstore.New(), nil
	case StoreTypePostgres:
		return pgstore.New(ctx, cfg.Postgres)
	case StoreTypeRedis:
		return redisstore.New(ctx, cfg.Redis)
	case StoreTypeMongo:
		return mongostore.New(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unknown store type: %q", cfg.Type)
	}
}

type Server struct {
	Cfg        Config
	Store      store.Store
	Clubs      *clubs.Service
	HTTPClient *http.Client

	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	sweepMu    sync.Mutex
	reportMu   sync.Mutex
	lastReport *clubs.SweepReport
}

// Start serves handler and starts the background sweep loop.
func (s *Server) Start(handler http.Handler) {
	s.server = &http.Server{
		Addr:    s.Cfg.Server.Addr,
		Handler: handler,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reconcile()
	}()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", slog.Any("err", err))
		}
	}()
}

func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown failed", slog.Any("err", err))
		}
	}

	s.cancel()
	s.wg.Wait()

	if err := s.Store.Close(); err != nil {
		slog.Error("Failed to close store", slog.Any("err", err))
	}
}
