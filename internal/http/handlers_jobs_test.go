package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var wavBytes = []byte("RIFF....WAVEfmt synthetic-audio")

func TestNewRouter_RequiresServices(t *testing.T) {
	_, err := NewRouter(RouterServices{})
	require.Error(t, err)
}

func TestSubmitPollDownload(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	id := h.submit(t, "wav")

	resp := h.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var queued JobResponse
	decodeBody(t, resp, &queued)
	assert.Equal(t, model.JobStatusQueued, queued.Status)
	assert.Nil(t, queued.AudioURL)
	assert.Nil(t, queued.Error)

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	h.finish(t, id, wavBytes)

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	var done JobResponse
	decodeBody(t, resp, &done)
	assert.Equal(t, model.JobStatusDone, done.Status)
	require.NotNil(t, done.AudioURL)
	assert.Equal(t, "/api/jobs/"+id+"/audio", *done.AudioURL)
	require.NotNil(t, done.Filename)
	assert.True(t, strings.HasPrefix(*done.Filename, "alice_"))
	assert.True(t, strings.HasSuffix(*done.Filename, ".wav"))
	require.NotNil(t, done.MimeType)
	assert.Equal(t, "audio/wav", *done.MimeType)

	resp = h.do(t, http.MethodGet, *done.AudioURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Equal(t, fmt.Sprintf(`attachment; filename="%s"`, *done.Filename), resp.Header.Get("Content-Disposition"))
	assert.Equal(t, wavBytes, readBody(t, resp))

	resp = h.do(t, http.MethodHead, *done.AudioURL, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprint(len(wavBytes)), resp.Header.Get("Content-Length"))
	assert.Empty(t, readBody(t, resp))

	// Results are kept until they expire unless single-read is enabled.
	resp = h.do(t, http.MethodGet, *done.AudioURL, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAudioConflictWhileRunning(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	id := h.submit(t, "mp3")
	_, err := h.jobs.ClaimNext(context.Background())
	require.NoError(t, err)

	for _, method := range []string{http.MethodGet, http.MethodHead} {
		resp := h.do(t, method, "/api/jobs/"+id+"/audio", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode, method)
	}
}

func TestAudioExpiresAfterTTL(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	id := h.submit(t, "wav")
	h.finish(t, id, wavBytes)

	h.clock.AddTime(time.Hour)

	resp := h.do(t, http.MethodHead, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	var errBody ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "expired", errBody.Error)

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	raw := string(readBody(t, resp))
	assert.Contains(t, raw, `"audio_url":null`)
	assert.Contains(t, raw, `"status":"done"`)
}

func TestAudioFromFileStore(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{resultDir: t.TempDir()})
	id := h.submit(t, "wav")
	h.finish(t, id, wavBytes)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Equal(t, wavBytes, readBody(t, resp))
}

func TestAudioFileRemovedReportsExpired(t *testing.T) {
	dir := t.TempDir()
	h := newAPIHarness(t, harnessOptions{resultDir: dir})
	id := h.submit(t, "wav")
	h.finish(t, id, wavBytes)

	// Simulate a sweep deleting the payload behind the store's back.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for _, e := range entries {
		require.NoError(t, os.Remove(filepath.Join(dir, e.Name())))
	}

	resp := h.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	raw := string(readBody(t, resp))
	assert.Contains(t, raw, `"audio_url":null`)
	assert.Contains(t, raw, `"status":"done"`)

	resp = h.do(t, http.MethodHead, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	var errBody ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "expired", errBody.Error)
}

func TestAudioFileVanishesAfterLookup(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockResultRepository(ctrl)
	gone := filepath.Join(t.TempDir(), "gone.wav")

	repo.EXPECT().Store(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, p core.StoreResultParams) (*model.Result, error) {
			return &model.Result{JobID: p.JobID, Filename: p.Filename, MimeType: p.MimeType, Path: gone}, nil
		})
	// The lookup still sees the entry; the file is already gone when opened.
	repo.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, jobID string) (*model.Result, error) {
			return &model.Result{JobID: jobID, Filename: "alice.wav", MimeType: "audio/wav", Path: gone}, nil
		}).AnyTimes()
	repo.EXPECT().Touch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	h := newAPIHarness(t, harnessOptions{resultRepo: repo})
	id := h.submit(t, "wav")
	h.finish(t, id, wavBytes)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	var errBody ErrorResponse
	decodeBody(t, resp, &errBody)
	assert.Equal(t, "expired", errBody.Error)
}

func TestAudioRangeRequest(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{singleRead: true})
	id := h.submit(t, "wav")
	h.finish(t, id, wavBytes)

	req, err := http.NewRequest(http.MethodGet, h.url("/api/jobs/"+id+"/audio"), nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=0-3")
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, []byte("RIFF"), readBody(t, resp))

	// A partial read does not count as delivery.
	resp = h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAudioSingleRead(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{singleRead: true})
	id := h.submit(t, "wav")
	h.finish(t, id, wavBytes)

	resp := h.do(t, http.MethodHead, "/api/jobs/"+id+"/audio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, wavBytes, readBody(t, resp))

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestUnknownJob(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	for _, path := range []string{"/api/jobs/nope", "/api/jobs/nope/audio"} {
		resp := h.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		var body ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, "not_found", body.Error)
	}
}

func TestFailedJobReportsError(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	id := h.submit(t, "wav")
	ctx := context.Background()
	_, err := h.jobs.ClaimNext(ctx)
	require.NoError(t, err)
	_, err = h.jobs.Fail(ctx, id, "synthesis failed: model exploded")
	require.NoError(t, err)

	resp := h.do(t, http.MethodGet, "/api/jobs/"+id, nil)
	var out JobResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, model.JobStatusError, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, "synthesis failed: model exploded", *out.Error)
	assert.Nil(t, out.AudioURL)

	resp = h.do(t, http.MethodGet, "/api/jobs/"+id+"/audio", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestSubmitUnknownVoiceCreatesNoJob(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.voices.EXPECT().Get(gomock.Any(), "ghost").Return(nil, fmt.Errorf("%w: ghost", data.ErrVoiceNotFound))

	resp := h.do(t, http.MethodPost, "/api/synthesize", map[string]any{"voice_id": "ghost", "text": "hi"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "unknown_voice", body.Error)
	assert.Equal(t, "voice_id", body.Field)

	stats, err := h.jobs.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.JobStats{}, *stats)
}

func TestSubmitValidation(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	tests := []struct {
		name      string
		body      any
		wantCode  string
		wantField string
	}{
		{name: "missing text", body: map[string]any{"voice_id": "alice"}, wantCode: "validation", wantField: "text"},
		{name: "missing voice", body: map[string]any{"text": "hi"}, wantCode: "validation", wantField: "voice_id"},
		{
			name:      "speed out of range",
			body:      map[string]any{"voice_id": "alice", "text": "hi", "speed": 3},
			wantCode:  "validation",
			wantField: "speed",
		},
		{
			name:      "bad format",
			body:      map[string]any{"voice_id": "alice", "text": "hi", "format": "ogg"},
			wantCode:  "validation",
			wantField: "format",
		},
		{name: "unknown field", body: `{"voice_id":"alice","text":"hi","pitch":2}`, wantCode: "invalid_json"},
		{name: "malformed", body: `{"voice_id":`, wantCode: "invalid_json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.do(t, http.MethodPost, "/api/synthesize", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var body ErrorResponse
			decodeBody(t, resp, &body)
			assert.Equal(t, tt.wantCode, body.Error)
			assert.Equal(t, tt.wantField, body.Field)
		})
	}
}

func TestStreamReturnsAttachment(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.voices.EXPECT().Get(gomock.Any(), "alice").Return(testVoice, nil)
	h.engine.EXPECT().Synthesize(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, in core.SynthesisInput) ([]byte, error) {
			assert.Equal(t, 1, h.slots.InUse())
			assert.Equal(t, "hello", in.Params.Text)
			assert.Equal(t, "alice", in.Voice.ID)
			return wavBytes, nil
		})

	resp := h.do(t, http.MethodPost, "/api/synthesize/stream", map[string]any{
		"voice_id": "alice",
		"text":     "hello",
		"format":   "wav",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Equal(t, `attachment; filename="alice_stream.wav"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, wavBytes, readBody(t, resp))
	assert.Equal(t, 0, h.slots.InUse())

	stats, err := h.jobs.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.JobStats{}, *stats)
}

func TestStreamEngineFailure(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.voices.EXPECT().Get(gomock.Any(), "alice").Return(testVoice, nil)
	h.engine.EXPECT().Synthesize(gomock.Any(), gomock.Any()).Return(nil, errors.New("cuda out of memory"))

	resp := h.do(t, http.MethodPost, "/api/synthesize/stream", map[string]any{"voice_id": "alice", "text": "hello"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "synthesis_failed", body.Error)
}

func TestStreamUnknownVoice(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.voices.EXPECT().Get(gomock.Any(), "ghost").Return(nil, data.ErrVoiceNotFound)

	resp := h.do(t, http.MethodPost, "/api/synthesize/stream", map[string]any{"voice_id": "ghost", "text": "hello"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})

	req, err := http.NewRequest(http.MethodOptions, h.url("/api/synthesize"), nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}
