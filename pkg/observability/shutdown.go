package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

// ShutdownFunc releases one resource during shutdown. It must respect the
// deadline on the passed context.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the HTTP server and then runs registered shutdown
// funcs concurrently, all under a single deadline.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu      sync.Mutex
	closers []ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc registers a function to call during shutdown
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the server and
// runs every registered shutdown func. The server is drained first so closers
// can assume no requests are in flight.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("Starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var errs []error
	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server drain failed")
			errs = append(errs, fmt.Errorf("server drain: %w", err))
		}
	}

	sm.mu.Lock()
	closers := sm.closers
	sm.mu.Unlock()

	var g errgroup.Group
	for _, fn := range closers {
		fn := fn
		g.Go(func() error {
			return fn(ctx)
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
