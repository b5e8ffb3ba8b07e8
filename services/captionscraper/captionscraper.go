// Package captionscraper periodically evaluates a platform-specific DOM
// query and appends new CaptionSegments to a session's transcript.
package captionscraper

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/models/caption"
	"github.com/metacogma/meetcapture/services/browserdriver"
)

const tickInterval = 2 * time.Second // 0.5 Hz

// Scraper runs the captions poll for one session.
type Scraper struct {
	driver     browserdriver.Driver
	probeJS    string
	startedAt  time.Time
	onSegment  func(caption.Segment) bool

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New builds a Scraper. probeJS is the platform-specific DOM query string
// returning a JSON array of {speaker, text} candidates; onSegment is called
// for each candidate that survives the heuristics and should be appended
// (it returns whether it was actually appended; the scraper ignores the result).
func New(driver browserdriver.Driver, probeJS string, startedAt time.Time, onSegment func(caption.Segment) bool) *Scraper {
	return &Scraper{driver: driver, probeJS: probeJS, startedAt: startedAt, onSegment: onSegment}
}

func (s *Scraper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx)
}

func (s *Scraper) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scraper) tick(ctx context.Context) {
	evalCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()

	v, err := s.driver.Evaluate(evalCtx, s.probeJS)
	if err != nil {
		logger.Debug("caption probe failed", zap.Error(err))
		return
	}

	candidates := parseCandidates(v)
	candidates = dedupeInPage(candidates)

	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		if len(text) < 3 {
			continue
		}
		lower := strings.ToLower(text)
		if strings.Contains(lower, "mute") || strings.Contains(lower, "camera") {
			continue
		}
		speaker := c.Speaker
		if speaker == "" {
			speaker = "Speaker"
		}
		seg := caption.Segment{
			Speaker:     speaker,
			Text:        text,
			TimestampMs: time.Since(s.startedAt).Milliseconds(),
			Confidence:  0.95,
		}
		s.onSegment(seg)
	}
}

// dedupeInPage drops candidates that repeat within the same evaluation's
// result list — distinct from the session's adjacent-only transcript dedup,
// which Session.AppendCaption enforces.
func dedupeInPage(in []caption.Candidate) []caption.Candidate {
	seen := map[string]bool{}
	out := make([]caption.Candidate, 0, len(in))
	for _, c := range in {
		key := c.Speaker + "\x00" + c.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

func parseCandidates(v any) []caption.Candidate {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out []caption.Candidate
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return lo.Filter(out, func(c caption.Candidate, _ int) bool { return c.Text != "" })
}

func (s *Scraper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	close(stop)
	<-done
}
