// Package result holds the CaptureEngine façade's return types.
package result

import (
	"github.com/metacogma/meetcapture/models/caption"
	"github.com/metacogma/meetcapture/models/platform"
)

type JoinResult struct {
	Success         bool              `json:"success"`
	SessionID       string            `json:"session_id,omitempty"`
	Platform        platform.Platform `json:"platform,omitempty"`
	RecordingStarted bool             `json:"recording_started,omitempty"`
	Error           string            `json:"error,omitempty"`
}

type LeaveResult struct {
	Success            bool              `json:"success"`
	DurationSeconds    float64           `json:"duration_seconds"`
	Transcript         string            `json:"transcript"`
	TranscriptSegments []caption.Segment `json:"transcript_segments"`
	VideoPath          string            `json:"video_path,omitempty"`
	Screenshots        []string          `json:"screenshots,omitempty"`
	FrameCount         int               `json:"frame_count"`
	Error              string            `json:"error,omitempty"`
}

// TranscriptSegmentView is the formatted-timestamp shape Status reports for
// its last-20-segments window.
type TranscriptSegmentView struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

type Status struct {
	StatusText  string                  `json:"status"`
	MeetingID   string                  `json:"meeting_id,omitempty"`
	SessionID   string                  `json:"session_id,omitempty"`
	Platform    platform.Platform       `json:"platform,omitempty"`
	State       string                  `json:"state,omitempty"`
	FrameCount  int                     `json:"frame_count,omitempty"`
	IsRecording bool                    `json:"is_recording,omitempty"`
	Transcript  []TranscriptSegmentView `json:"transcript,omitempty"`
	Screenshots []string                `json:"screenshots,omitempty"`
}

const NotActive = "not_active"

// FixedRecoveryTranscript is emitted by RecoverOrphan in place of a real
// transcript; caption data does not survive a crash.
const FixedRecoveryTranscript = "Session recovered after server restart. No live transcript available."

// FixedEmptyTranscript is emitted when a normal Leave produced zero caption
// segments.
const FixedEmptyTranscript = "No captions were captured during this session."
