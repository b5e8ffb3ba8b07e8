// Package livewatch pushes periodic Status snapshots over a WebSocket
// connection for the lifetime of a capture session. This is a narrow
// one-way feed: JSON status only, never frame or audio bytes.
package livewatch

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/metacogma/meetcapture/logger"
	"github.com/metacogma/meetcapture/models/result"
)

// StatusProvider is satisfied by *engine.Engine.
type StatusProvider interface {
	Status(meetingID string) result.Status
}

type watcher struct {
	meetingID string
	conn      *websocket.Conn
	stop      chan struct{}
}

// Service upgrades one connection per meeting_id and streams that session's
// Status every pushInterval until the socket closes or the session ends.
type Service struct {
	provider      StatusProvider
	upgrader      websocket.Upgrader
	pushInterval  time.Duration
	mu            sync.Mutex
	watchers      map[string]*watcher
}

func New(provider StatusProvider) *Service {
	return &Service{
		provider: provider,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		pushInterval: 2 * time.Second,
		watchers:     make(map[string]*watcher),
	}
}

// HandleWebSocket upgrades the request and begins streaming Status for
// meetingID until the client disconnects.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request, meetingID string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("live watch upgrade failed", zap.String("meeting_id", meetingID), zap.Error(err))
		return
	}

	watch := &watcher{meetingID: meetingID, conn: conn, stop: make(chan struct{})}

	s.mu.Lock()
	if existing, ok := s.watchers[meetingID]; ok {
		close(existing.stop)
		existing.conn.Close()
	}
	s.watchers[meetingID] = watch
	s.mu.Unlock()

	logger.Info("live watch connected", zap.String("meeting_id", meetingID))
	go s.pushLoop(watch)
	go s.drainReads(watch)
}

// pushLoop writes a Status snapshot every pushInterval and stops once the
// session is no longer active or the connection breaks.
func (s *Service) pushLoop(w *watcher) {
	ticker := time.NewTicker(s.pushInterval)
	defer ticker.Stop()
	defer s.remove(w)

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			status := s.provider.Status(w.meetingID)
			payload, err := json.Marshal(status)
			if err != nil {
				continue
			}
			if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			if status.StatusText == result.NotActive {
				return
			}
		}
	}
}

// drainReads discards inbound messages; this is a one-way push feed, but the
// read loop must run to process control frames and detect client close.
func (s *Service) drainReads(w *watcher) {
	defer s.remove(w)
	for {
		if _, _, err := w.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Service) remove(w *watcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.watchers[w.meetingID]; ok && current == w {
		delete(s.watchers, w.meetingID)
	}
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	w.conn.Close()
}

// CloseAll closes every open live-watch connection, used by the shutdown
// coordinator.
func (s *Service) CloseAll() {
	s.mu.Lock()
	watchers := make([]*watcher, 0, len(s.watchers))
	for _, w := range s.watchers {
		watchers = append(watchers, w)
	}
	s.mu.Unlock()

	for _, w := range watchers {
		s.remove(w)
	}
	logger.Info("live watch connections closed", zap.Int("count", len(watchers)))
}
