// Package audiorecorder owns the long-lived FFmpeg subprocess that
// captures host audio to MP3 for the lifetime of a recording session, with
// process-group signaling and graceful-then-forceful termination.
package audiorecorder

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/utils/helpers"
)

// Recorder owns one ffmpeg child process per session, capturing host audio
// to a single MP3 file.
type Recorder struct {
	ffmpegPath string
	audioPath  string
	device     string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	started bool
}

func New(ffmpegPath, audioPath, device string) *Recorder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Recorder{ffmpegPath: ffmpegPath, audioPath: audioPath, device: device}
}

// Start launches ffmpeg against an OS-specific input source. If the
// launch fails (e.g. the audio device doesn't exist) Start returns an
// errors.AudioUnavailable error without logging it; the engine logs it and
// proceeds caption-only rather than failing the session.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	args := r.buildArgs()
	cmd := exec.Command(r.ffmpegPath, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return apxerrors.E(apxerrors.AudioUnavailable, fmt.Errorf("audio stdin pipe: %w", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return apxerrors.E(apxerrors.AudioUnavailable, fmt.Errorf("audio stderr pipe: %w", err))
	}

	if err := cmd.Start(); err != nil {
		return apxerrors.E(apxerrors.AudioUnavailable, fmt.Errorf("audio device %q unavailable: %w", r.device, err))
	}

	go logLines("audio", stderr)

	r.cmd = cmd
	r.stdin = stdin
	r.started = true
	return nil
}

func (r *Recorder) buildArgs() []string {
	var input []string
	switch runtime.GOOS {
	case "darwin":
		device := r.device
		if device == "" {
			device = "0"
		}
		input = []string{"-f", "avfoundation", "-i", ":" + device}
	default: // linux
		input = []string{"-f", "pulse", "-i", "default"}
	}

	args := append([]string{"-y"}, input...)
	args = append(args,
		"-acodec", "libmp3lame",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "64k",
		r.audioPath,
	)
	return args
}

// Stop performs the graceful-quit-then-kill sequence: writes "q" to
// ffmpeg's stdin, waits a 500ms grace period, sends SIGTERM to the process
// group, waits up to 1s more for exit and then sends SIGKILL, and finally
// polls the output file until it stops growing.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	cmd := r.cmd
	stdin := r.stdin
	started := r.started
	r.started = false
	r.mu.Unlock()

	if !started || cmd == nil {
		return nil
	}

	if stdin != nil {
		_, _ = stdin.Write([]byte("q"))
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	select {
	case <-waitErr:
	case <-time.After(500 * time.Millisecond):
		if cmd.Process != nil {
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		}
		select {
		case <-waitErr:
		case <-time.After(1 * time.Second):
			if cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
			<-waitErr
		}
	}

	stable, err := helpers.IsFileStable(r.audioPath, 10, 100*time.Millisecond)
	if err != nil || !stable {
		logger.Warn("audio file did not stabilize before finalize deadline", zap.String("path", r.audioPath))
	}
	return nil
}

func logLines(tag string, r io.ReadCloser) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug("ffmpeg output", zap.String("stream", tag), zap.String("line", scanner.Text()))
	}
}
