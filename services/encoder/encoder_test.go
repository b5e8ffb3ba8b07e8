package encoder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("debug")
	os.Exit(m.Run())
}

// writeFakeFFmpeg drops a shell stand-in that records its argv to args.txt
// next to itself, writes a placeholder to its last argument (the output
// path), and exits 0.
func writeFakeFFmpeg(t *testing.T) (binPath, argsPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg stub is a POSIX shell script")
	}
	dir := t.TempDir()
	binPath = filepath.Join(dir, "fake-ffmpeg.sh")
	argsPath = filepath.Join(dir, "args.txt")
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' \"$@\" > %q\nfor last; do :; done\nprintf 'stub-output' > \"$last\"\nexit 0\n", argsPath)
	require.NoError(t, os.WriteFile(binPath, []byte(script), 0755))
	return binPath, argsPath
}

func seedFrames(t *testing.T, n int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "frames")
	require.NoError(t, os.MkdirAll(dir, 0755))
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", i))
		require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	}
	return dir
}

func recordedArgs(t *testing.T, argsPath string) []string {
	t.Helper()
	raw, err := os.ReadFile(argsPath)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
}

func TestBuildArgsVideoOnly(t *testing.T) {
	args := buildArgs(Options{
		FramesDir: "/rec/S1_frames",
		VideoPath: "/rec/S1_video.mp4",
		Framerate: 2,
	}, false)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-framerate 2")
	assert.Contains(t, joined, filepath.Join("/rec/S1_frames", "frame_%06d.png"))
	assert.Contains(t, joined, "-c:v libx264")
	assert.Contains(t, joined, "-pix_fmt yuv420p")
	assert.Contains(t, joined, "-crf 23")
	assert.Contains(t, joined, "-preset fast")
	assert.NotContains(t, joined, "-c:a")
	assert.NotContains(t, joined, "-shortest")
	assert.Equal(t, "/rec/S1_video.mp4", args[len(args)-1])
}

func TestBuildArgsWithAudio(t *testing.T) {
	args := buildArgs(Options{
		FramesDir: "/rec/S1_frames",
		AudioPath: "/rec/S1_audio.mp3",
		VideoPath: "/rec/S1_video.mp4",
		Framerate: 2,
	}, true)

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i /rec/S1_audio.mp3")
	assert.Contains(t, joined, "-c:a aac")
	assert.Contains(t, joined, "-b:a 128k")
	assert.Contains(t, joined, "-shortest")
}

func TestEncodeProducesOutput(t *testing.T) {
	bin, _ := writeFakeFFmpeg(t)
	framesDir := seedFrames(t, 4)
	videoPath := filepath.Join(t.TempDir(), "out_video.mp4")

	err := New(bin).Encode(context.Background(), Options{
		FramesDir: framesDir,
		VideoPath: videoPath,
		Framerate: 2,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	_, statErr := os.Stat(videoPath)
	assert.NoError(t, statErr)
}

// TestEncodeSkipsTinyAudioFile checks the 5KB threshold: a near-empty audio
// file from a device that failed immediately must not become an ffmpeg
// input.
func TestEncodeSkipsTinyAudioFile(t *testing.T) {
	bin, argsPath := writeFakeFFmpeg(t)
	framesDir := seedFrames(t, 2)
	audioPath := filepath.Join(t.TempDir(), "tiny_audio.mp3")
	require.NoError(t, os.WriteFile(audioPath, []byte("id3"), 0644))
	videoPath := filepath.Join(t.TempDir(), "out_video.mp4")

	err := New(bin).Encode(context.Background(), Options{
		FramesDir: framesDir,
		AudioPath: audioPath,
		VideoPath: videoPath,
		Framerate: 2,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	args := recordedArgs(t, argsPath)
	assert.NotContains(t, args, audioPath)
	assert.NotContains(t, args, "-c:a")
}

// TestEncodeIncludesLargeEnoughAudio is the counterpart: an audio file over
// the threshold becomes the second input with the aac codec flags.
func TestEncodeIncludesLargeEnoughAudio(t *testing.T) {
	bin, argsPath := writeFakeFFmpeg(t)
	framesDir := seedFrames(t, 2)
	audioPath := filepath.Join(t.TempDir(), "real_audio.mp3")
	require.NoError(t, os.WriteFile(audioPath, make([]byte, 8*1024), 0644))
	videoPath := filepath.Join(t.TempDir(), "out_video.mp4")

	err := New(bin).Encode(context.Background(), Options{
		FramesDir: framesDir,
		AudioPath: audioPath,
		VideoPath: videoPath,
		Framerate: 2,
		Timeout:   5 * time.Second,
	})
	require.NoError(t, err)

	args := recordedArgs(t, argsPath)
	assert.Contains(t, args, audioPath)
	assert.Contains(t, args, "-c:a")
	assert.Contains(t, args, "-shortest")
}

// TestEncodeTimeoutKillsProcess checks the wall-clock cap: an encode that
// overruns Options.Timeout is killed and surfaces EncoderFailure, quickly.
func TestEncodeTimeoutKillsProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg stub is a POSIX shell script")
	}
	bin := filepath.Join(t.TempDir(), "slow-ffmpeg.sh")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nsleep 30\n"), 0755))

	start := time.Now()
	err := New(bin).Encode(context.Background(), Options{
		FramesDir: seedFrames(t, 1),
		VideoPath: filepath.Join(t.TempDir(), "out_video.mp4"),
		Framerate: 2,
		Timeout:   300 * time.Millisecond,
	})

	require.Error(t, err)
	assert.Equal(t, apxerrors.EncoderFailure, apxerrors.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEncodeMissingBinaryIsEncoderFailure(t *testing.T) {
	err := New("/definitely/not/ffmpeg").Encode(context.Background(), Options{
		FramesDir: seedFrames(t, 1),
		VideoPath: filepath.Join(t.TempDir(), "out_video.mp4"),
		Timeout:   time.Second,
	})
	require.Error(t, err)
	assert.Equal(t, apxerrors.EncoderFailure, apxerrors.KindOf(err))
}
