package framerecorder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacogma/meetcapture/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("debug")
	os.Exit(m.Run())
}

// shotDriver is a Driver whose Screenshot writes a placeholder PNG, with an
// optional number of scripted leading failures.
type shotDriver struct {
	mu        sync.Mutex
	failFirst int
	calls     int
}

func (d *shotDriver) Screenshot(ctx context.Context, path string) error {
	d.mu.Lock()
	d.calls++
	fail := d.calls <= d.failFirst
	d.mu.Unlock()
	if fail {
		return fmt.Errorf("scripted screenshot failure")
	}
	return os.WriteFile(path, []byte("png"), 0644)
}

func (d *shotDriver) Open(ctx context.Context, url string, timeout time.Duration) error { return nil }
func (d *shotDriver) Evaluate(ctx context.Context, js string) (any, error)              { return nil, nil }
func (d *shotDriver) ClickBySelector(ctx context.Context, selector string) (bool, error) {
	return false, nil
}
func (d *shotDriver) ClickByText(ctx context.Context, candidates []string) (bool, error) {
	return false, nil
}
func (d *shotDriver) ClickByCoordinates(ctx context.Context, x, y float64) error { return nil }
func (d *shotDriver) TypeText(ctx context.Context, selector, text string) error  { return nil }
func (d *shotDriver) GrantPermissions(origin string, perms []string) error       { return nil }
func (d *shotDriver) Keyboard(ctx context.Context, shortcut string) error        { return nil }
func (d *shotDriver) Close() error                                               { return nil }

// TestFrameIndexingIsDense lets the recorder tick a few times and verifies
// the frame-density property: for every reported index i, a zero-padded
// frame_<i:06>.png exists, starting at 1 with no gaps.
func TestFrameIndexingIsDense(t *testing.T) {
	framesDir := t.TempDir()
	var mu sync.Mutex
	var indices []int

	r := New(&shotDriver{}, framesDir, func(index int) {
		mu.Lock()
		indices = append(indices, index)
		mu.Unlock()
	})
	r.Start(context.Background(), 0)
	time.Sleep(1300 * time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, indices)
	for i, idx := range indices {
		assert.Equal(t, i+1, idx, "indices must be dense from 1")
		path := filepath.Join(framesDir, fmt.Sprintf("frame_%06d.png", idx))
		_, err := os.Stat(path)
		assert.NoError(t, err, "frame file must exist for reported index %d", idx)
	}
}

// TestFailedTicksDoNotLeaveGaps scripts two leading screenshot failures and
// verifies the numbering stays dense: failures neither advance the index nor
// get retried within their own tick.
func TestFailedTicksDoNotLeaveGaps(t *testing.T) {
	framesDir := t.TempDir()
	var mu sync.Mutex
	var indices []int

	r := New(&shotDriver{failFirst: 2}, framesDir, func(index int) {
		mu.Lock()
		indices = append(indices, index)
		mu.Unlock()
	})
	r.Start(context.Background(), 0)
	time.Sleep(2200 * time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, indices)
	assert.Equal(t, 1, indices[0], "first successful frame must still be index 1")
	for i := 1; i < len(indices); i++ {
		assert.Equal(t, indices[i-1]+1, indices[i])
	}
}

// TestResumeFromNonzeroIndex covers the pause/resume path: a recorder
// restarted at a prior frame count continues the sequence instead of
// overwriting from 1.
func TestResumeFromNonzeroIndex(t *testing.T) {
	framesDir := t.TempDir()
	var mu sync.Mutex
	var indices []int

	r := New(&shotDriver{}, framesDir, func(index int) {
		mu.Lock()
		indices = append(indices, index)
		mu.Unlock()
	})
	r.Start(context.Background(), 4)
	time.Sleep(1200 * time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, indices)
	assert.Equal(t, 5, indices[0])
	_, err := os.Stat(filepath.Join(framesDir, "frame_000005.png"))
	assert.NoError(t, err)
}

// TestStopHaltsCapture verifies no frames land after Stop returns.
func TestStopHaltsCapture(t *testing.T) {
	framesDir := t.TempDir()
	var count int64
	var mu sync.Mutex

	r := New(&shotDriver{}, framesDir, func(int) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	r.Start(context.Background(), 0)
	time.Sleep(1200 * time.Millisecond)
	r.Stop()

	mu.Lock()
	after := count
	mu.Unlock()
	time.Sleep(1100 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, after, count, "no frames may be captured after Stop")
	mu.Unlock()
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	r := New(&shotDriver{}, t.TempDir(), nil)
	r.Stop()
	r.Stop()
}

func TestDoubleStartKeepsOneTimer(t *testing.T) {
	framesDir := t.TempDir()
	var mu sync.Mutex
	var indices []int

	r := New(&shotDriver{}, framesDir, func(index int) {
		mu.Lock()
		indices = append(indices, index)
		mu.Unlock()
	})
	ctx := context.Background()
	r.Start(ctx, 0)
	r.Start(ctx, 0)
	time.Sleep(1200 * time.Millisecond)
	r.Stop()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(indices); i++ {
		assert.Equal(t, indices[i-1]+1, indices[i], "a second Start must not double-tick the sequence")
	}
}
