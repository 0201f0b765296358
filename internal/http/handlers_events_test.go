package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sseReader reads "status" frames from an event stream.
type sseReader struct {
	t  *testing.T
	sc *bufio.Scanner
}

func openSSE(t *testing.T, h *apiHarness, jobID string) (*http.Response, *sseReader) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url("/api/jobs/"+jobID+"/events"), nil)
	require.NoError(t, err)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp, &sseReader{t: t, sc: bufio.NewScanner(resp.Body)}
}

// next returns the data of the next frame, or false at end of stream.
func (r *sseReader) next() (string, bool) {
	r.t.Helper()
	var event, payload string
	for r.sc.Scan() {
		line := r.sc.Text()
		switch {
		case line == "":
			if payload != "" {
				assert.Equal(r.t, "status", event)
				return payload, true
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			payload = strings.TrimPrefix(line, "data: ")
		}
	}
	return "", false
}

func (r *sseReader) nextPayload() EventPayload {
	r.t.Helper()
	raw, ok := r.next()
	require.True(r.t, ok, "stream ended early")
	var p EventPayload
	require.NoError(r.t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestJobEvents_StreamsUntilTerminal(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	id := h.submit(t, "wav")

	resp, events := openSSE(t, h, id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	first := events.nextPayload()
	assert.Equal(t, model.JobStatusQueued, first.Status)
	assert.Equal(t, id, first.JobID)

	h.finish(t, id, wavBytes)

	running := events.nextPayload()
	assert.Equal(t, model.JobStatusRunning, running.Status)

	done := events.nextPayload()
	assert.Equal(t, model.JobStatusDone, done.Status)
	assert.Equal(t, "/api/jobs/"+id+"/audio", done.AudioURL)
	assert.NotEmpty(t, done.Filename)
	assert.Equal(t, "audio/wav", done.MimeType)
	assert.Greater(t, done.Seq, running.Seq)

	_, more := events.next()
	assert.False(t, more, "stream should close after the terminal event")
}

func TestJobEvents_LateSubscriberGetsTerminalThenClose(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	id := h.submit(t, "wav")
	h.finish(t, id, wavBytes)

	_, events := openSSE(t, h, id)
	p := events.nextPayload()
	assert.Equal(t, model.JobStatusDone, p.Status)

	_, more := events.next()
	assert.False(t, more)
}

func TestJobEvents_UnknownJob(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	resp, events := openSSE(t, h, "missing")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, ok := events.next()
	require.True(t, ok)
	assert.JSONEq(t, `{"error":"not_found"}`, raw)

	_, more := events.next()
	assert.False(t, more)
}

func wsURL(h *apiHarness, jobID string) string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/jobs/" + jobID + "/ws"
}

func TestJobWebSocket_StreamsUntilTerminal(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	id := h.submit(t, "mp3")

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(h, id), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var p EventPayload
	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, model.JobStatusQueued, p.Status)

	ctx := context.Background()
	_, err = h.jobs.ClaimNext(ctx)
	require.NoError(t, err)
	_, err = h.jobs.Fail(ctx, id, "synthesis failed")
	require.NoError(t, err)

	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, model.JobStatusRunning, p.Status)
	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, model.JobStatusError, p.Status)
	assert.Equal(t, "synthesis failed", p.Error)
	assert.Empty(t, p.AudioURL)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected close: %v", err)
}

func TestJobWebSocket_UnknownJobRejected(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(h, "missing"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "not_found")
}
