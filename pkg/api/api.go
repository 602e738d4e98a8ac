// Package api exposes the run engine over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandvis/mentionoor/pkg/config"
	"github.com/brandvis/mentionoor/pkg/orchestrator"
	"github.com/brandvis/mentionoor/pkg/provider"
	"github.com/brandvis/mentionoor/pkg/secrets"
	"github.com/brandvis/mentionoor/pkg/store"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log          logrus.FieldLogger
	cfg          *config.Config
	store        store.Store
	box          *secrets.Box
	router       provider.Router
	orchestrator orchestrator.Orchestrator
	httpServer   *http.Server
	wg           sync.WaitGroup
}

// NewServer creates a new API server.
func NewServer(log logrus.FieldLogger, cfg *config.Config) Server {
	return &server{
		log: log.WithField("component", "api"),
		cfg: cfg,
	}
}

// Start initializes the store, provider router, and orchestrator, then
// starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// Create and start the database store.
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	box, err := secrets.NewBox(s.cfg.Encryption.Key)
	if err != nil {
		return fmt.Errorf("initializing encryption: %w", err)
	}

	s.box = box

	// Stored provider keys feed the router unless the same provider is
	// configured directly, in which case config wins.
	storedKeys, err := s.loadStoredKeys(ctx)
	if err != nil {
		return fmt.Errorf("loading stored provider keys: %w", err)
	}

	s.router = provider.NewRouterFromConfig(
		s.log, &s.cfg.Providers, storedKeys,
	)

	s.orchestrator = orchestrator.NewOrchestrator(
		s.log, &s.cfg.Orchestrator, s.store, s.router,
	)

	// Build router and start HTTP server.
	handler := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop drains in-flight runs, shuts down the HTTP server, and closes
// the store.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.orchestrator != nil {
		s.orchestrator.Stop()
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// loadStoredKeys opens the sealed provider keys persisted via the
// settings endpoint. Values that fail to open (for example after an
// encryption key rotation) are skipped with a warning rather than
// blocking startup.
func (s *server) loadStoredKeys(
	ctx context.Context,
) (map[string]string, error) {
	sealed, err := s.store.GetProviderKeys(ctx)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]string, len(sealed))

	for name, value := range sealed {
		plaintext, err := s.box.Open(value)
		if err != nil {
			s.log.WithError(err).
				WithField("provider", name).
				Warn("Skipping undecryptable stored provider key")

			continue
		}

		keys[name] = plaintext
	}

	return keys, nil
}
