// Package encoder drives the short-lived FFmpeg invocation that joins
// numbered PNG frames (plus optional audio) into a single MP4, once per
// session during Leave or RecoverOrphan. Subprocess lifecycle (stderr ring
// buffer, kill on timeout via exec.CommandContext) is grounded on the ffmpeg-runner
// pattern used elsewhere in this ecosystem for subprocess-per-invocation
// encodes.
package encoder

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
)

const (
	// DefaultTimeout is the 300s wall-clock cap on encoding.
	DefaultTimeout = 300 * time.Second

	// audioMinBytes is the size at or below which an audio file is treated
	// as absent (a near-empty file from a device that failed immediately).
	audioMinBytes = 5 * 1024
)

type Options struct {
	FramesDir  string
	AudioPath  string // "" or nonexistent/too-small disables the audio input
	VideoPath  string
	Framerate  int // frames per second the frame_%06d.png sequence was captured at
	Timeout    time.Duration
}

type Encoder struct {
	ffmpegPath string
}

func New(ffmpegPath string) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Encoder{ffmpegPath: ffmpegPath}
}

// Encode runs ffmpeg to completion or until Options.Timeout elapses, in
// which case the process is killed and an EncoderFailure is returned — the
// caller treats this as non-terminal: frames remain on disk for recovery.
func (e *Encoder) Encode(ctx context.Context, opts Options) error {
	if opts.Framerate <= 0 {
		opts.Framerate = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	withAudio := opts.AudioPath != ""
	if withAudio {
		info, err := os.Stat(opts.AudioPath)
		if err != nil || info.Size() <= audioMinBytes {
			withAudio = false
		}
	}

	args := buildArgs(opts, withAudio)

	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apxerrors.E(apxerrors.EncoderFailure, fmt.Errorf("encoder stderr pipe: %w", err))
	}

	ring := newLineRing(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			ring.add(scanner.Text())
		}
	}()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return apxerrors.E(apxerrors.EncoderFailure, fmt.Errorf("ffmpeg start: %w", err))
	}

	waitErr := cmd.Wait()
	wg.Wait()

	if runCtx.Err() != nil {
		logger.Warn("encoder timed out, frames preserved for recovery", zap.String("frames_dir", opts.FramesDir), zap.Duration("elapsed", time.Since(start)))
		return apxerrors.E(apxerrors.EncoderFailure, fmt.Errorf("encoding timed out after %s", opts.Timeout))
	}
	if waitErr != nil {
		logger.Error("ffmpeg encode failed", zap.Strings("stderr_tail", ring.lines()), zap.Error(waitErr))
		return apxerrors.E(apxerrors.EncoderFailure, fmt.Errorf("ffmpeg exited: %w", waitErr))
	}
	return nil
}

func buildArgs(opts Options, withAudio bool) []string {
	framePattern := filepath.Join(opts.FramesDir, "frame_%06d.png")

	args := []string{
		"-framerate", fmt.Sprint(opts.Framerate),
		"-i", framePattern,
	}
	if withAudio {
		args = append(args, "-i", opts.AudioPath)
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
	)
	if withAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k", "-shortest")
	}
	args = append(args, "-crf", "23", "-preset", "fast", "-y", opts.VideoPath)
	return args
}

type lineRing struct {
	mu    sync.Mutex
	buf   []string
	limit int
}

func newLineRing(limit int) *lineRing { return &lineRing{limit: limit} }

func (r *lineRing) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, line)
	if len(r.buf) > r.limit {
		r.buf = r.buf[len(r.buf)-r.limit:]
	}
}

func (r *lineRing) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.buf))
	copy(out, r.buf)
	return out
}
