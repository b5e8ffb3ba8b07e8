// Package handlers implements the CaptureEngine's HTTP surface: one
// handler per façade operation, each shaped as an (any, int, error)
// triple so they compose with Server.ToHTTPHandlerFunc.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi"

	apxerrors "github.com/metacogma/meetcapture/errors"
	"github.com/metacogma/meetcapture/models/session"
	"github.com/metacogma/meetcapture/services/engine"
	"github.com/metacogma/meetcapture/services/livewatch"
	"github.com/metacogma/meetcapture/utils/helpers"
)

var statusQueryDecoder = helpers.GetSchemaDecoder()

// CaptureHandler adapts services/engine.Engine's façade methods to HTTP.
type CaptureHandler struct {
	engine    *engine.Engine
	liveWatch *livewatch.Service
}

func NewCaptureHandler(e *engine.Engine, watch *livewatch.Service) *CaptureHandler {
	return &CaptureHandler{engine: e, liveWatch: watch}
}

type joinRequest struct {
	MeetingURL string             `json:"meeting_url"`
	Options    session.JoinOptions `json:"options"`
}

// Join handles POST /v1/sessions/{meeting_id}/join.
func (h *CaptureHandler) Join(w http.ResponseWriter, r *http.Request) (any, int, error) {
	meetingID := chi.URLParam(r, "meeting_id")
	if meetingID == "" {
		return nil, 0, apxerrors.E(apxerrors.Invalid, nil).WithMsg("meeting_id is required")
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, 0, apxerrors.E(apxerrors.Invalid, err).WithMsg("invalid request body")
	}
	if req.MeetingURL == "" {
		return nil, 0, apxerrors.E(apxerrors.Invalid, nil).WithMsg("meeting_url is required")
	}

	res := h.engine.Join(r.Context(), meetingID, req.MeetingURL, req.Options)
	if !res.Success {
		return res, http.StatusConflict, nil
	}
	return res, http.StatusOK, nil
}

// Leave handles POST /v1/sessions/{meeting_id}/leave.
func (h *CaptureHandler) Leave(w http.ResponseWriter, r *http.Request) (any, int, error) {
	meetingID := chi.URLParam(r, "meeting_id")
	res := h.engine.Leave(r.Context(), meetingID)
	if !res.Success {
		return res, http.StatusNotFound, nil
	}
	return res, http.StatusOK, nil
}

// statusQuery carries the optional filter params a polling client can pass
// to trim the snapshot it gets back.
type statusQuery struct {
	TranscriptLimit int  `schema:"transcript_limit"`
	OmitScreenshots bool `schema:"omit_screenshots"`
}

// Status handles GET /v1/sessions/{meeting_id}/status.
func (h *CaptureHandler) Status(w http.ResponseWriter, r *http.Request) (any, int, error) {
	meetingID := chi.URLParam(r, "meeting_id")

	var q statusQuery
	if err := statusQueryDecoder.Decode(&q, r.URL.Query()); err != nil {
		return nil, 0, apxerrors.E(apxerrors.Invalid, err).WithMsg("invalid status query parameters")
	}

	status := h.engine.Status(meetingID)
	if q.TranscriptLimit > 0 && len(status.Transcript) > q.TranscriptLimit {
		status.Transcript = status.Transcript[len(status.Transcript)-q.TranscriptLimit:]
	}
	if q.OmitScreenshots {
		status.Screenshots = nil
	}
	return status, http.StatusOK, nil
}

// Screenshot handles POST /v1/sessions/{meeting_id}/screenshot.
func (h *CaptureHandler) Screenshot(w http.ResponseWriter, r *http.Request) (any, int, error) {
	meetingID := chi.URLParam(r, "meeting_id")
	path, err := h.engine.Screenshot(r.Context(), meetingID)
	if err != nil {
		return nil, 0, err
	}
	return map[string]string{"screenshot_path": path}, http.StatusOK, nil
}

// ToggleRecording handles POST /v1/sessions/{meeting_id}/toggle-recording.
func (h *CaptureHandler) ToggleRecording(w http.ResponseWriter, r *http.Request) (any, int, error) {
	meetingID := chi.URLParam(r, "meeting_id")
	isRecording, err := h.engine.ToggleRecording(r.Context(), meetingID)
	if err != nil {
		return nil, 0, err
	}
	return map[string]bool{"is_recording": isRecording}, http.StatusOK, nil
}

// Watch handles GET /v1/sessions/{meeting_id}/watch, upgrading to a
// WebSocket that streams Status snapshots every 2s.
func (h *CaptureHandler) Watch(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meeting_id")
	h.liveWatch.HandleWebSocket(w, r, meetingID)
}
