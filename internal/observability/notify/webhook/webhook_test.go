package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/observability/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendJobEvent_PostsPayload(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		received <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Config{Timeout: time.Second})
	err := client.SendJobEvent(context.Background(), notify.JobEvent{
		JobID:       "job-1",
		Status:      model.JobStatusDone,
		Filename:    "alice_0123456789.mp3",
		MimeType:    "audio/mpeg",
		CallbackURL: srv.URL,
	})
	require.NoError(t, err)

	body := <-received
	assert.Equal(t, map[string]any{
		"job_id":    "job-1",
		"status":    "done",
		"error":     nil,
		"filename":  "alice_0123456789.mp3",
		"mime_type": "audio/mpeg",
	}, body)
}

func TestSendJobEvent_NoCallbackURL(t *testing.T) {
	client := NewClient(Config{})
	assert.NoError(t, client.SendJobEvent(context.Background(), notify.JobEvent{JobID: "x"}))
}

func TestSendJobEvent_BoundedAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{Timeout: time.Second, RetryLimit: 2})
	err := client.SendJobEvent(context.Background(), notify.JobEvent{
		JobID:       "job-2",
		Status:      model.JobStatusError,
		Error:       "synthesis failed",
		CallbackURL: srv.URL,
	})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendJobEvent_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewClient(Config{Timeout: 50 * time.Millisecond})
	start := time.Now()
	err := client.SendJobEvent(context.Background(), notify.JobEvent{JobID: "slow", CallbackURL: srv.URL})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPayloadFor_ErrorJob(t *testing.T) {
	p := PayloadFor(notify.JobEvent{JobID: "j", Status: model.JobStatusError, Error: "boom"})
	require.NotNil(t, p.Error)
	assert.Equal(t, "boom", *p.Error)
	assert.Nil(t, p.Filename)
	assert.Nil(t, p.MimeType)
}
