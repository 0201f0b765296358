package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
	apperrors "github.com/espeech/espeech-api/internal/errors"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// EventPayload is the JSON body of a status event on SSE and WebSocket streams.
type EventPayload struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Error    string          `json:"error,omitempty"`
	Filename string          `json:"filename,omitempty"`
	MimeType string          `json:"mime_type,omitempty"`
	AudioURL string          `json:"audio_url,omitempty"`
	Seq      uint64          `json:"seq"`
}

// notFoundEvent is sent once on an event stream for an unknown job.
var notFoundEvent = map[string]string{"error": "not_found"}

func (h *Handlers) eventPayload(ctx context.Context, ev model.StatusEvent) EventPayload {
	p := EventPayload{
		JobID:    ev.JobID,
		Status:   ev.Status,
		Error:    ev.Error,
		Filename: ev.Filename,
		MimeType: ev.MimeType,
		Seq:      ev.Seq,
	}
	if ev.Status == model.JobStatusDone {
		if job, err := h.jobs.Get(ctx, ev.JobID); err == nil && h.results.Available(ctx, job) {
			p.AudioURL = h.audioURL(ev.JobID)
		}
	}
	return p
}

// JobEvents streams status events for a job as Server-Sent Events. The first
// event is the current state; the stream ends after a terminal event.
func (h *Handlers) JobEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	sub, err := h.jobs.Subscribe(ctx, r.PathValue("id"))
	if err != nil && !apperrors.IsNotFound(err) {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if sub == nil {
		_ = writeSSE(w, notFoundEvent)
		_ = rc.Flush()
		return
	}
	defer sub.Close()
	_ = rc.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(w, h.eventPayload(ctx, ev)); err != nil {
				h.logger.DebugContext(ctx, "sse write failed", "job_id", ev.JobID, "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		}
	}
}

// writeSSE writes one "status" event frame.
func writeSSE(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	buf.WriteString("event: status\ndata: ")
	buf.Write(data)
	buf.WriteString("\n\n")
	_, err = buf.WriteTo(w)
	return err
}

// JobWebSocket streams the same status events as JobEvents over a WebSocket.
// Unknown jobs are rejected with 404 before the upgrade. The server closes the
// connection with a normal closure after the terminal event.
func (h *Handlers) JobWebSocket(w http.ResponseWriter, r *http.Request) {
	sub, err := h.jobs.Subscribe(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.logger.DebugContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	// The request context is not cancelled when a hijacked client goes away,
	// so a reader goroutine watches for the disconnect.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			deadline := time.Now().Add(wsWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(h.eventPayload(ctx, ev)); err != nil {
				h.logger.DebugContext(ctx, "websocket write failed", "job_id", ev.JobID, "error", err)
				return
			}
			if ev.Terminal() {
				closeNormally(conn)
				return
			}
		}
	}
}

func closeNormally(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}
