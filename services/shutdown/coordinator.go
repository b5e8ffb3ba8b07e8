package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/logger"
)

// Coordinated shutdown: drain in-flight sessions, close the HTTP server,
// and release the browser pool, all handlers running concurrently under one
// overall deadline.

type ShutdownHandler func(context.Context) error

type Coordinator struct {
	handlers     []ShutdownHandler
	handlerNames []string
	mu           sync.Mutex
	shutdownOnce sync.Once
	shutdownChan chan struct{}
	timeout      time.Duration
}

// NewCoordinator creates a new shutdown coordinator
func NewCoordinator(timeout time.Duration) *Coordinator {
	return &Coordinator{
		handlers:     make([]ShutdownHandler, 0),
		handlerNames: make([]string, 0),
		shutdownChan: make(chan struct{}),
		timeout:      timeout,
	}
}

// RegisterHandler registers a shutdown handler
func (c *Coordinator) RegisterHandler(name string, handler ShutdownHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = append(c.handlers, handler)
	c.handlerNames = append(c.handlerNames, name)

	logger.Info("registered shutdown handler", zap.String("name", name))
}

// Start begins listening for shutdown signals
func (c *Coordinator) Start() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
		syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		c.Shutdown()
	}()
}

// Shutdown initiates graceful shutdown
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		logger.Info("starting graceful shutdown")
		close(c.shutdownChan)

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.executeShutdown(ctx)
	})
}

// executeShutdown starts every shutdown handler at once, each in its own
// goroutine with a context bounded by ctx's deadline, and waits until all
// have returned or ctx ends. Handlers run concurrently, in no fixed order.
func (c *Coordinator) executeShutdown(ctx context.Context) {
	var wg sync.WaitGroup
	errCh := make(chan error, len(c.handlers))

	for i := len(c.handlers) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			name := c.handlerNames[idx]
			handler := c.handlers[idx]

			logger.Info("shutting down service", zap.String("name", name))

			handlerCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			if err := handler(handlerCtx); err != nil {
				logger.Error("shutdown handler failed", zap.String("name", name), zap.Error(err))
				errCh <- err
			} else {
				logger.Info("service shutdown complete", zap.String("name", name))
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all services shut down gracefully")
	case <-ctx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	close(errCh)

	errorCount := 0
	for err := range errCh {
		if err != nil {
			errorCount++
		}
	}
	if errorCount > 0 {
		logger.Warn("shutdown completed with errors", zap.Int("error_count", errorCount))
	}
}

// WaitForShutdown blocks until shutdown is initiated
func (c *Coordinator) WaitForShutdown() {
	<-c.shutdownChan
}

// CreateRegistryDrainShutdown adapts any type exposing Shutdown(ctx) — the
// capture engine — into a handler that drains every live session through its
// normal Leave path before the process exits.
func CreateRegistryDrainShutdown(engine interface{ Shutdown(context.Context) }) ShutdownHandler {
	return func(ctx context.Context) error {
		logger.Info("draining live capture sessions")

		done := make(chan struct{})
		go func() {
			engine.Shutdown(ctx)
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CreateHTTPServerShutdown creates a shutdown handler for the operator-facing
// HTTP server.
func CreateHTTPServerShutdown(server interface{ Shutdown(context.Context) error }) ShutdownHandler {
	return func(ctx context.Context) error {
		logger.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	}
}

// CreateBrowserPoolShutdown creates a shutdown handler for the optional
// Docker-backed browser pool, stopping containers and releasing ports.
func CreateBrowserPoolShutdown(pool interface{ Shutdown() }) ShutdownHandler {
	return func(ctx context.Context) error {
		logger.Info("shutting down browser pool")

		done := make(chan struct{})
		go func() {
			pool.Shutdown()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CreateLiveWatchShutdown creates a shutdown handler for the live-status
// WebSocket service, closing every open connection.
func CreateLiveWatchShutdown(watch interface{ CloseAll() }) ShutdownHandler {
	return func(ctx context.Context) error {
		logger.Info("closing live status connections")

		done := make(chan struct{})
		go func() {
			watch.CloseAll()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
