// Package engine implements the CaptureEngine public façade: Join, Leave,
// Status, Screenshot, ToggleRecording, RecoverOrphan. It composes every
// other service package in this repository.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"go.uber.org/zap"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/models/caption"
	"github.com/metacogma/meetcapture/models/platform"
	"github.com/metacogma/meetcapture/models/result"
	"github.com/metacogma/meetcapture/models/session"
	"github.com/metacogma/meetcapture/services/artifactstore"
	"github.com/metacogma/meetcapture/services/audiorecorder"
	"github.com/metacogma/meetcapture/services/botidentity"
	"github.com/metacogma/meetcapture/services/browserdriver"
	"github.com/metacogma/meetcapture/services/captionscraper"
	"github.com/metacogma/meetcapture/services/encoder"
	"github.com/metacogma/meetcapture/services/framerecorder"
	"github.com/metacogma/meetcapture/services/monitoring"
	"github.com/metacogma/meetcapture/services/platformadapter"
	"github.com/metacogma/meetcapture/services/registry"
)

type Config struct {
	RecordingsRoot        string
	FFmpegPath            string
	AudioDevice           string
	DefaultBotName        string
	MaxConcurrentSessions int
	JoinNavigationTimeout time.Duration
	JoinAdmissionTimeout  time.Duration
	EncoderTimeout        time.Duration
	S3Bucket              string
	S3Region              string
}

func (c *Config) setDefaults() {
	if c.RecordingsRoot == "" {
		c.RecordingsRoot = "recordings"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.DefaultBotName == "" {
		c.DefaultBotName = "Meeting Capture Bot"
	}
	if c.MaxConcurrentSessions <= 0 {
		c.MaxConcurrentSessions = 10
	}
	if c.JoinNavigationTimeout <= 0 {
		c.JoinNavigationTimeout = 60 * time.Second
	}
	if c.JoinAdmissionTimeout <= 0 {
		c.JoinAdmissionTimeout = 120 * time.Second
	}
	if c.EncoderTimeout <= 0 {
		c.EncoderTimeout = encoder.DefaultTimeout
	}
}

// DriverFactory is the capability Engine needs to obtain a fresh, isolated
// browser instance per Join. *browserdriver.Factory is the production
// implementation; tests substitute a fake that never starts Playwright.
type DriverFactory interface {
	NewDriver(locale, timezone string) (browserdriver.Driver, error)
}

// Engine is the CaptureEngine façade.
type Engine struct {
	cfg       Config
	registry  *registry.Registry
	factory   DriverFactory
	enc       *encoder.Encoder
	limiter   *rate.Limiter
	artifacts *artifactstore.Store
	metrics   *monitoring.ApplicationMetrics
}

// WithMetrics attaches an ApplicationMetrics bundle the engine reports
// session lifecycle and pipeline health against. Optional; a nil bundle
// (the zero value of Engine.metrics) makes every metrics call a no-op.
func (e *Engine) WithMetrics(m *monitoring.ApplicationMetrics) *Engine {
	e.metrics = m
	return e
}

func New(cfg Config, factory DriverFactory) (*Engine, error) {
	cfg.setDefaults()
	if err := os.MkdirAll(cfg.RecordingsRoot, 0755); err != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, fmt.Errorf("recordings root not writable: %w", err))
	}
	persistPath := filepath.Join(cfg.RecordingsRoot, "active_sessions.json")

	artifacts, err := artifactstore.New(cfg.S3Bucket, cfg.S3Region)
	if err != nil {
		return nil, apxerrors.E(apxerrors.ConfigurationError, err)
	}

	return &Engine{
		cfg:      cfg,
		registry: registry.New(persistPath),
		factory:  factory,
		enc:      encoder.New(cfg.FFmpegPath),
		// Concurrency limiter: one admitted Join per 2s sustained, bursts
		// of MaxConcurrentSessions. Each session owns a full browser plus
		// ffmpeg children, so admission has to be paced process-wide.
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), cfg.MaxConcurrentSessions),
		artifacts: artifacts,
	}, nil
}

func (e *Engine) paths(sessionID string) (framesDir, videoPath, audioPath string) {
	framesDir = filepath.Join(e.cfg.RecordingsRoot, sessionID+"_frames")
	videoPath = filepath.Join(e.cfg.RecordingsRoot, sessionID+"_video.mp4")
	audioPath = filepath.Join(e.cfg.RecordingsRoot, sessionID+"_audio.mp3")
	return
}

func originOf(meetingURL string) string {
	u, err := url.Parse(meetingURL)
	if err != nil {
		return meetingURL
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}

// Join detects the platform, launches an isolated browser, runs the
// platform adapter's join sequence, and — on success — starts the
// FrameRecorder, AudioRecorder and CaptionScraper in that order before
// reporting recording_started.
func (e *Engine) Join(ctx context.Context, meetingID, meetingURL string, opts session.JoinOptions) result.JoinResult {
	joinStart := time.Now()
	fail := func(res result.JoinResult) result.JoinResult {
		if e.metrics != nil {
			e.metrics.JoinFailuresTotal.Inc()
		}
		return res
	}

	if _, exists := e.registry.Get(meetingID); exists {
		return fail(result.JoinResult{Success: false, Error: apxerrors.AlreadyActive.String()})
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return fail(result.JoinResult{Success: false, Error: apxerrors.ConfigurationError.String()})
	}

	p := platform.Detect(meetingURL)
	adapter := platformadapter.For(p)
	if adapter == nil {
		return fail(result.JoinResult{Success: false, Error: "unknown platform"})
	}

	sessionID := uuid.New().String()
	framesDir, videoPath, audioPath := e.paths(sessionID)
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return fail(result.JoinResult{Success: false, Error: apxerrors.ConfigurationError.String()})
	}

	sess := session.New(meetingID, sessionID, p, framesDir, videoPath, audioPath)
	if err := e.registry.InsertUnique(sess); err != nil {
		return fail(result.JoinResult{Success: false, Error: apxerrors.AlreadyActive.String()})
	}

	opts = opts.WithDefaults(e.cfg.DefaultBotName)
	identity := botidentity.Pick(meetingID, opts.BotName)

	driver, err := e.factory.NewDriver(identity.Locale, identity.Timezone)
	if err != nil {
		sess.SetState(session.Errored)
		_ = e.registry.Remove(meetingID)
		return fail(result.JoinResult{Success: false, Error: apxerrors.ConfigurationError.String()})
	}

	if gerr := driver.GrantPermissions(originOf(meetingURL), []string{
		browserdriver.PermissionMicrophone,
		browserdriver.PermissionCamera,
		browserdriver.PermissionNotifications,
	}); gerr != nil {
		logger.Warn("grant_permissions failed, continuing", zap.String("meeting_id", meetingID), zap.Error(gerr))
	}

	debugDir := ""
	if opts.Debug {
		debugDir = filepath.Join(e.cfg.RecordingsRoot, "debug")
		_ = os.MkdirAll(debugDir, 0755)
	}

	joinCtx, cancel := context.WithTimeout(ctx, e.cfg.JoinNavigationTimeout+e.cfg.JoinAdmissionTimeout)
	outcome := adapter.Join(joinCtx, driver, meetingURL, identity.DisplayName, debugDir)
	cancel()

	if outcome.Status != "in_meeting" {
		sess.SetState(session.Errored)
		_ = driver.Close()
		_ = e.registry.Remove(meetingID)
		errKind := outcome.Kind
		if errKind == 0 {
			errKind = apxerrors.JoinTimedOut
		}
		return fail(result.JoinResult{Success: false, Platform: p, Error: errKind.String()})
	}

	sess.Driver = driver
	sess.SetState(session.InMeeting)

	e.startProducers(ctx, sess, p)
	sess.SetState(session.Recording)
	sess.Mu.Lock()
	sess.IsRecording = true
	sess.Mu.Unlock()

	if e.metrics != nil {
		e.metrics.JoinDuration.Observe(float64(time.Since(joinStart).Milliseconds()))
		e.metrics.SessionsActive.Set(float64(len(e.registry.LiveMeetingIDs())))
	}

	return result.JoinResult{Success: true, SessionID: sessionID, Platform: p, RecordingStarted: true}
}

// startProducers wires FrameRecorder, AudioRecorder, and CaptionScraper
// for an already-joined session, in that order, storing their stop
// functions on the session for later use by Leave/ToggleRecording.
func (e *Engine) startProducers(ctx context.Context, sess *session.Session, p platform.Platform) {
	fr := framerecorder.New(sess.Driver, sess.FramesDir, func(index int) {
		sess.IncrementFrameCount()
		if e.metrics != nil {
			e.metrics.FramesCapturedTotal.Inc()
		}
	})
	fr.Start(ctx, 0)
	sess.StopRecorder = fr.Stop

	ar := audiorecorder.New(e.cfg.FFmpegPath, sess.AudioPath, e.cfg.AudioDevice)
	if err := ar.Start(); err != nil {
		logger.Warn("audio recorder unavailable, continuing caption-only", zap.String("session_id", sess.SessionID), zap.Error(err))
		if e.metrics != nil {
			e.metrics.AudioDeviceFailures.Inc()
		}
	}
	sess.AudioProc = ar
	sess.StopAudio = func() { _ = ar.Stop() }

	cs := captionscraper.New(sess.Driver, platformadapter.CaptionProbeJS(p), sess.StartedAt, func(seg caption.Segment) bool {
		appended := sess.AppendCaption(seg)
		if appended && e.metrics != nil {
			e.metrics.CaptionsAppended.Inc()
		}
		return appended
	})
	cs.Start(ctx)
	sess.StopCaptions = cs.Stop
}

// Leave stops all producers, runs the Encoder, and returns the finalized
// artifact bundle. If no live session exists, it falls back to the orphan
// recovery path.
func (e *Engine) Leave(ctx context.Context, meetingID string) result.LeaveResult {
	sess, exists := e.registry.Get(meetingID)
	if !exists {
		rec, ok, err := e.registry.PersistedOrphan(meetingID)
		if err != nil || !ok {
			return result.LeaveResult{Success: false, Error: apxerrors.NotActive.String()}
		}
		return e.RecoverOrphan(ctx, rec)
	}

	sess.SetState(session.Ending)

	if sess.StopCaptions != nil {
		sess.StopCaptions()
	}

	shotPath := filepath.Join(e.cfg.RecordingsRoot, fmt.Sprintf("%s_screenshot_%d.png", sess.SessionID, time.Now().UnixMilli()))
	shotCtx, shotCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := sess.Driver.Screenshot(shotCtx, shotPath); err == nil {
		sess.AppendScreenshot(shotPath)
	}
	shotCancel()

	if sess.StopRecorder != nil {
		sess.StopRecorder()
	}
	if sess.StopAudio != nil {
		sess.StopAudio()
	}
	_ = sess.Driver.Close()

	snap := sess.Snapshot()
	transcriptText := formatTranscript(snap.Transcript)

	var videoPath string
	if snap.FrameCount >= 1 {
		encStart := time.Now()
		encCtx, encCancel := context.WithTimeout(ctx, e.cfg.EncoderTimeout)
		err := e.enc.Encode(encCtx, encoder.Options{
			FramesDir: sess.FramesDir,
			AudioPath: sess.AudioPath,
			VideoPath: sess.VideoPath,
			Framerate: 2,
			Timeout:   e.cfg.EncoderTimeout,
		})
		encCancel()
		if e.metrics != nil {
			e.metrics.EncoderDuration.Observe(float64(time.Since(encStart).Milliseconds()))
		}
		if err != nil {
			logger.Error("encoder failed, frames preserved for recovery", zap.String("session_id", sess.SessionID), zap.Error(err))
			if e.metrics != nil {
				e.metrics.EncoderFailuresTotal.Inc()
			}
		} else {
			videoPath = sess.VideoPath
		}
	}

	duration := time.Since(snap.StartedAt).Seconds()
	_ = e.registry.Remove(meetingID)
	sess.SetState(session.Ended)
	if e.metrics != nil {
		e.metrics.SessionsActive.Set(float64(len(e.registry.LiveMeetingIDs())))
	}

	if e.artifacts != nil {
		bundle := artifactstore.Bundle{
			MeetingID:  meetingID,
			SessionID:  sess.SessionID,
			VideoPath:  videoPath,
			AudioPath:  sess.AudioPath,
			Transcript: transcriptText,
		}
		go func() {
			uploadCtx, uploadCancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer uploadCancel()
			if err := e.artifacts.Upload(uploadCtx, bundle); err != nil {
				logger.Error("artifact upload failed, files remain local", zap.String("meeting_id", meetingID), zap.Error(err))
			}
		}()
	}

	return result.LeaveResult{
		Success:            true,
		DurationSeconds:    duration,
		Transcript:         transcriptText,
		TranscriptSegments: snap.Transcript,
		VideoPath:          videoPath,
		Screenshots:        snap.Screenshots,
		FrameCount:         snap.FrameCount,
	}
}

// Status returns a not_active status for an unknown meeting_id or a
// snapshot of live state with the last 20 transcript segments formatted.
func (e *Engine) Status(meetingID string) result.Status {
	sess, exists := e.registry.Get(meetingID)
	if !exists {
		return result.Status{StatusText: result.NotActive}
	}
	snap := sess.Snapshot()

	segments := snap.Transcript
	if len(segments) > 20 {
		segments = segments[len(segments)-20:]
	}
	views := make([]result.TranscriptSegmentView, 0, len(segments))
	for _, seg := range segments {
		views = append(views, result.TranscriptSegmentView{
			Speaker:   seg.Speaker,
			Text:      seg.Text,
			Timestamp: FormatTimestamp(seg.TimestampMs),
		})
	}

	return result.Status{
		StatusText:  string(snap.State),
		MeetingID:   snap.MeetingID,
		SessionID:   snap.SessionID,
		Platform:    snap.Platform,
		State:       string(snap.State),
		FrameCount:  snap.FrameCount,
		IsRecording: snap.IsRecording,
		Transcript:  views,
		Screenshots: snap.Screenshots,
	}
}

// Screenshot captures a current page frame into an ad-hoc screenshot path
// and appends it to the session's screenshot list.
func (e *Engine) Screenshot(ctx context.Context, meetingID string) (string, error) {
	sess, exists := e.registry.Get(meetingID)
	if !exists {
		return "", apxerrors.E(apxerrors.NotActive, nil)
	}
	path := filepath.Join(e.cfg.RecordingsRoot, fmt.Sprintf("%s_screenshot_%d.png", sess.SessionID, time.Now().UnixMilli()))
	shotCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sess.Driver.Screenshot(shotCtx, path); err != nil {
		return "", apxerrors.E(apxerrors.DriverTransient, err)
	}
	sess.AppendScreenshot(path)
	return path, nil
}

// ToggleRecording flips is_recording, starting or stopping the
// FrameRecorder and AudioRecorder. Caption scraping keeps running either
// way, so pausing video never loses transcript.
func (e *Engine) ToggleRecording(ctx context.Context, meetingID string) (bool, error) {
	sess, exists := e.registry.Get(meetingID)
	if !exists {
		return false, apxerrors.E(apxerrors.NotActive, nil)
	}

	sess.Mu.Lock()
	wasRecording := sess.IsRecording
	nowRecording := !wasRecording
	sess.IsRecording = nowRecording
	frameCount := sess.FrameCount
	sess.Mu.Unlock()

	if nowRecording {
		sess.SetState(session.Recording)
		fr := framerecorder.New(sess.Driver, sess.FramesDir, func(int) { sess.IncrementFrameCount() })
		fr.Start(ctx, frameCount)
		sess.StopRecorder = fr.Stop

		ar := audiorecorder.New(e.cfg.FFmpegPath, sess.AudioPath, e.cfg.AudioDevice)
		if err := ar.Start(); err != nil {
			logger.Warn("audio recorder unavailable on resume", zap.String("session_id", sess.SessionID), zap.Error(err))
		}
		sess.AudioProc = ar
		sess.StopAudio = func() { _ = ar.Stop() }
	} else {
		sess.SetState(session.Paused)
		if sess.StopRecorder != nil {
			sess.StopRecorder()
		}
		if sess.StopAudio != nil {
			sess.StopAudio()
		}
	}

	return nowRecording, nil
}

// RecoverOrphan reconstitutes a playable video from on-disk frames only,
// per a persisted session record, without touching any live browser. Used
// both by Leave's fallback path and by a startup sweep over
// active_sessions.json.
func (e *Engine) RecoverOrphan(ctx context.Context, rec session.PersistedSession) result.LeaveResult {
	entries, err := os.ReadDir(rec.FramesDir)
	if err != nil {
		return result.LeaveResult{Success: false, Error: apxerrors.NotActive.String()}
	}
	frameCount := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			frameCount++
		}
	}
	if frameCount == 0 {
		_ = e.registry.Remove(rec.MeetingID)
		return result.LeaveResult{Success: false, Error: apxerrors.EncoderFailure.String()}
	}

	videoPath := filepath.Join(e.cfg.RecordingsRoot, rec.SessionID+"_video.mp4")
	encCtx, cancel := context.WithTimeout(ctx, e.cfg.EncoderTimeout)
	err = e.enc.Encode(encCtx, encoder.Options{
		FramesDir: rec.FramesDir,
		VideoPath: videoPath,
		Framerate: 2,
		Timeout:   e.cfg.EncoderTimeout,
	})
	cancel()

	_ = e.registry.Remove(rec.MeetingID)

	out := result.LeaveResult{
		Success:            true,
		DurationSeconds:    float64(frameCount) / 2.0,
		Transcript:         result.FixedRecoveryTranscript,
		TranscriptSegments: nil,
		FrameCount:         frameCount,
	}
	if err != nil {
		logger.Error("orphan recovery encode failed", zap.String("meeting_id", rec.MeetingID), zap.Error(err))
		return out
	}
	out.VideoPath = videoPath
	return out
}

// RecoverAllOrphans offers every persisted record to RecoverOrphan, used at
// startup to drive crash-interrupted sessions to completion.
func (e *Engine) RecoverAllOrphans(ctx context.Context) []result.LeaveResult {
	recs, err := e.registry.AllPersisted()
	if err != nil {
		logger.Error("failed to read persisted sessions at startup", zap.Error(err))
		return nil
	}
	out := make([]result.LeaveResult, 0, len(recs))
	for _, rec := range recs {
		out = append(out, e.RecoverOrphan(ctx, rec))
	}
	return out
}

// Shutdown drains every live session through the normal Leave path, best
// effort within ctx's deadline, so in-flight recordings are encoded and
// persisted state is cleared rather than left for crash recovery.
func (e *Engine) Shutdown(ctx context.Context) {
	ids := e.registry.LiveMeetingIDs()
	for i, id := range ids {
		select {
		case <-ctx.Done():
			logger.Warn("shutdown deadline exceeded, sessions left for orphan recovery", zap.Int("remaining", len(ids)-i))
			return
		default:
		}
		res := e.Leave(ctx, id)
		if !res.Success {
			logger.Error("shutdown drain failed for session", zap.String("meeting_id", id), zap.String("error", res.Error))
		}
	}
}

func formatTranscript(segments []caption.Segment) string {
	if len(segments) == 0 {
		return result.FixedEmptyTranscript
	}
	sorted := make([]caption.Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	var out string
	for _, seg := range sorted {
		out += fmt.Sprintf("[%s] %s: %s\n", FormatTimestamp(seg.TimestampMs), seg.Speaker, seg.Text)
	}
	return out
}

// FormatTimestamp renders a millisecond offset as zero-padded HH:MM:SS, with
// uncapped hours so meetings exceeding 24h still render correctly.
func FormatTimestamp(ms int64) string {
	totalSeconds := ms / 1000
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
