package browserdriver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/playwright-community/playwright-go"

	"go.uber.org/zap"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/services/browserpool"
)

// Factory owns the single playwright.Playwright process handle this
// engine's drivers are launched from. Instances are not returned to a
// shared pool after use — a capture session holds its browser exclusively
// for the whole meeting — but the factory still tracks live-instance
// counts and provides a single coordinated Shutdown.
type Factory struct {
	pw      *playwright.Playwright
	pool    *browserpool.Pool
	mu      sync.Mutex
	live    int64
	maxSize int64
}

func NewFactory(maxSize int) (*Factory, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, fmt.Errorf("start playwright: %w", err))
	}
	f := &Factory{pw: pw, maxSize: int64(maxSize)}
	logger.Info("browser driver factory initialized", zap.Int("max_size", maxSize))
	return f, nil
}

// NewFactoryWithPool is identical to NewFactory, but NewDriver first tries to
// run each session inside a throwaway Docker-isolated container from pool,
// falling back to a local Playwright launch if pool is nil, unavailable, or
// exhausted.
func NewFactoryWithPool(maxSize int, pool *browserpool.Pool) (*Factory, error) {
	f, err := NewFactory(maxSize)
	if err != nil {
		return nil, err
	}
	f.pool = pool
	return f, nil
}

// NewDriver launches a new isolated browser instance for one session,
// rejecting the request if maxSize concurrent instances are already live
// (the engine's admission limiter is the primary guard; this is a backstop).
func (f *Factory) NewDriver(locale, timezone string) (Driver, error) {
	if f.maxSize > 0 {
		if atomic.AddInt64(&f.live, 1) > f.maxSize {
			atomic.AddInt64(&f.live, -1)
			return nil, apxerrors.E(apxerrors.ConfigurationError, fmt.Errorf("browser instance pool exhausted (max %d)", f.maxSize))
		}
	}

	d, err := f.newIsolatedOrLocalDriver(locale, timezone)
	if err != nil {
		if f.maxSize > 0 {
			atomic.AddInt64(&f.live, -1)
		}
		return nil, err
	}
	return &trackedDriver{Driver: d, f: f}, nil
}

// newIsolatedOrLocalDriver tries the Docker-backed pool first, falling back
// to a local Playwright launch on any pool error.
func (f *Factory) newIsolatedOrLocalDriver(locale, timezone string) (Driver, error) {
	if f.pool != nil && f.pool.Available() {
		instance, err := f.pool.Acquire(context.Background())
		if err == nil {
			d, derr := NewPlaywrightDriverOverCDP(f.pw, instance.CDPEndpoint, locale, timezone)
			if derr != nil {
				f.pool.Release(instance)
				logger.Warn("cdp connect to pooled container failed, falling back to local launch", zap.Error(derr))
			} else {
				return &pooledDriver{PlaywrightDriver: d, pool: f.pool, instance: instance}, nil
			}
		} else {
			logger.Debug("browser pool unavailable for this session, using local launch", zap.Error(err))
		}
	}
	return NewPlaywrightDriver(f.pw, locale, timezone)
}

// pooledDriver releases its Docker container back to the pool on Close,
// instead of just closing the Playwright-side handle.
type pooledDriver struct {
	*PlaywrightDriver
	pool     *browserpool.Pool
	instance *browserpool.Instance
}

func (d *pooledDriver) Close() error {
	err := d.PlaywrightDriver.Close()
	d.pool.Release(d.instance)
	return err
}

// trackedDriver decrements Factory's live count on Close, so the counter
// reflects instances actually in use without every caller threading it
// through manually.
type trackedDriver struct {
	Driver
	f        *Factory
	closed   bool
	closedMu sync.Mutex
}

func (t *trackedDriver) Close() error {
	t.closedMu.Lock()
	defer t.closedMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.f.maxSize > 0 {
		atomic.AddInt64(&t.f.live, -1)
	}
	return t.Driver.Close()
}

func (f *Factory) LiveCount() int64 {
	return atomic.LoadInt64(&f.live)
}

// Shutdown stops the underlying Playwright process. Call only once all
// sessions have been closed.
func (f *Factory) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pw == nil {
		return nil
	}
	logger.Info("shutting down browser driver factory")
	err := f.pw.Stop()
	f.pw = nil
	return err
}
