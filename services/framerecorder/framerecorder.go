// Package framerecorder implements the periodic screenshot producer started
// when a session enters recording and stopped on transition out of it.
package framerecorder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

const tickInterval = 500 * time.Millisecond // 2 Hz

// Recorder owns a single ticking goroutine writing densely-numbered PNG
// frames into a session's frames directory. The Encoder relies on the
// zero-padded, dense indexing this type produces.
type Recorder struct {
	driver    browserdriver.Driver
	framesDir string
	onFrame   func(index int) // invoked after each successful write

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func New(driver browserdriver.Driver, framesDir string, onFrame func(index int)) *Recorder {
	return &Recorder{driver: driver, framesDir: framesDir, onFrame: onFrame}
}

// Start begins the 2Hz timer, seeded at the given starting frame index
// (nonzero when resuming after a pause/resume ToggleRecording cycle, so
// indices stay dense across the pause).
func (r *Recorder) Start(ctx context.Context, startIndex int) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	r.mu.Unlock()

	go r.loop(ctx, startIndex)
}

func (r *Recorder) loop(ctx context.Context, startIndex int) {
	defer close(r.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	index := startIndex
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			index++
			path := filepath.Join(r.framesDir, fmt.Sprintf("frame_%06d.png", index))
			shotCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := r.driver.Screenshot(shotCtx, path)
			cancel()
			if err != nil {
				// A missed screenshot does not retry on the same tick and
				// does not advance frame_count; the index is rolled back so
				// the next tick writes this same slot, keeping the frame
				// numbering dense (the failed index is never reported to
				// onFrame).
				logger.Debug("frame capture failed", zap.Int("index", index), zap.Error(err))
				index--
				continue
			}
			if r.onFrame != nil {
				r.onFrame(index)
			}
		}
	}
}

// Stop halts the timer and waits for the in-flight tick, if any, to finish.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stop := r.stop
	done := r.done
	r.mu.Unlock()

	close(stop)
	<-done
}
