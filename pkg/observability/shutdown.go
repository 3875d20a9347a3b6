package observability

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a function that performs cleanup during shutdown
type ShutdownFunc func(ctx context.Context) error

// ShutdownManager coordinates graceful shutdown of registered components.
// Shutdown functions run in reverse registration order, mirroring how the
// components were started.
type ShutdownManager struct {
	mu      sync.Mutex
	funcs   []namedShutdownFunc
	timeout time.Duration
	logger  *Logger
}

type namedShutdownFunc struct {
	name string
	fn   ShutdownFunc
}

// NewShutdownManager creates a shutdown manager with the given timeout for
// the whole shutdown sequence.
func NewShutdownManager(timeout time.Duration, logger *Logger) *ShutdownManager {
	return &ShutdownManager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a named shutdown function.
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdownFunc{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs all registered
// shutdown functions. Errors are logged, not propagated, so every component
// gets a chance to clean up.
func (sm *ShutdownManager) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	sm.logger.WithField("signal", sig.String()).Info("shutdown signal received")

	sm.Shutdown()
}

// Shutdown runs the registered shutdown functions immediately.
func (sm *ShutdownManager) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	funcs := make([]namedShutdownFunc, len(sm.funcs))
	copy(funcs, sm.funcs)
	sm.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		sm.logger.WithField("component", f.name).Info("shutting down component")
		if err := f.fn(ctx); err != nil {
			sm.logger.WithField("component", f.name).WithError(err).Error("component shutdown failed")
		}
	}

	sm.logger.Info("shutdown complete")
}
