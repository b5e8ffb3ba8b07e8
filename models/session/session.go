package session

import (
	"sync"
	"time"

	"github.com/metacogma/meetcapture/models/caption"
	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

// Driver is the full browser capability set a Session owns exclusively from
// a successful Join until Leave/RecoverOrphan release it.
type Driver = browserdriver.Driver

// AudioProcess is the capability set a Session needs from its owned FFmpeg
// audio subprocess handle.
type AudioProcess interface {
	Stop() error
}

// Session is the live, in-memory record of one capture attempt. It is the
// single owner of its browser handle, its audio subprocess, and its
// recorder/scraper timers; nothing else holds a live reference to them. All
// mutable fields below the mutex line are protected by Mu and must only be
// touched while holding it.
type Session struct {
	MeetingID string
	SessionID string
	Platform  platform.Platform

	FramesDir string
	VideoPath string
	AudioPath string

	StartedAt time.Time

	Driver       Driver
	AudioProc    AudioProcess
	StopRecorder func()
	StopAudio    func()
	StopCaptions func()

	Mu          sync.Mutex
	State       State
	FrameCount  int
	IsRecording bool
	Transcript  []caption.Segment
	Screenshots []string
}

// New creates a freshly joining Session. The caller still owns wiring the
// Driver/recorder stop functions once join succeeds.
func New(meetingID, sessionID string, p platform.Platform, framesDir, videoPath, audioPath string) *Session {
	return &Session{
		MeetingID: meetingID,
		SessionID: sessionID,
		Platform:  p,
		FramesDir: framesDir,
		VideoPath: videoPath,
		AudioPath: audioPath,
		StartedAt: time.Now().UTC(),
		State:     Joining,
	}
}

// Snapshot is a point-in-time, lock-free copy of the fields Status reports.
type Snapshot struct {
	MeetingID   string
	SessionID   string
	Platform    platform.Platform
	State       State
	StartedAt   time.Time
	FrameCount  int
	IsRecording bool
	Transcript  []caption.Segment
	Screenshots []string
}

// Snapshot copies out the mutex-protected fields under lock, matching the
// "Status reads take the same mutex and copy out" rule.
func (s *Session) Snapshot() Snapshot {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	transcript := make([]caption.Segment, len(s.Transcript))
	copy(transcript, s.Transcript)
	screenshots := make([]string, len(s.Screenshots))
	copy(screenshots, s.Screenshots)
	return Snapshot{
		MeetingID:   s.MeetingID,
		SessionID:   s.SessionID,
		Platform:    s.Platform,
		State:       s.State,
		StartedAt:   s.StartedAt,
		FrameCount:  s.FrameCount,
		IsRecording: s.IsRecording,
		Transcript:  transcript,
		Screenshots: screenshots,
	}
}

// SetState transitions the session's state under lock.
func (s *Session) SetState(st State) {
	s.Mu.Lock()
	s.State = st
	s.Mu.Unlock()
}

// IncrementFrameCount bumps FrameCount by one under lock, returning the new
// value; used by FrameRecorder after a successful screenshot.
func (s *Session) IncrementFrameCount() int {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.FrameCount++
	return s.FrameCount
}

// AppendScreenshot records an ad-hoc screenshot path under lock.
func (s *Session) AppendScreenshot(path string) {
	s.Mu.Lock()
	s.Screenshots = append(s.Screenshots, path)
	s.Mu.Unlock()
}

// AppendCaption appends a segment iff its text differs from the
// last-appended segment's text. Dedup is adjacent-only on purpose: an
// earlier repeated line is legitimate when other speech interleaved.
func (s *Session) AppendCaption(seg caption.Segment) (appended bool) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	if n := len(s.Transcript); n > 0 && s.Transcript[n-1].Text == seg.Text {
		return false
	}
	s.Transcript = append(s.Transcript, seg)
	return true
}
