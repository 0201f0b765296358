package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
	"github.com/espeech/espeech-api/internal/mocks"
	"github.com/espeech/espeech-api/internal/service"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testVoice = &model.Voice{ID: "alice", Name: "Alice", RefTextFile: "ref_text.txt", RefAudioFile: "ref.wav"}

type apiHarness struct {
	srv     *httptest.Server
	jobs    *service.JobService
	results *service.ResultService
	slots   *service.SlotLimiter
	voices  *mocks.MockVoiceCatalog
	engine  *mocks.MockSynthesisEngine
	clock   *data.FixedTimeProvider
}

type harnessOptions struct {
	singleRead bool
	slots      int
	// resultDir selects the file-backed result store rooted there.
	resultDir string
	// resultRepo replaces the result store entirely.
	resultRepo core.ResultRepository
}

func newAPIHarness(t *testing.T, opts harnessOptions) *apiHarness {
	t.Helper()
	ctrl := gomock.NewController(t)
	if opts.slots == 0 {
		opts.slots = 1
	}

	h := &apiHarness{
		voices: mocks.NewMockVoiceCatalog(ctrl),
		engine: mocks.NewMockSynthesisEngine(ctrl),
		slots:  service.NewSlotLimiter(opts.slots),
		clock:  data.NewFixedTimeProvider(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	h.engine.EXPECT().Name().Return("mock").AnyTimes()

	h.jobs = service.MustNewJobService(service.JobServiceOptions{
		Repo: data.NewJobRepo(data.RepoConfig{TimeProvider: h.clock}),
	})
	t.Cleanup(func() { _ = h.jobs.Shutdown(context.Background()) })

	repoOpts := data.ResultRepoOptions{TTL: time.Hour, TimeProvider: h.clock}
	repo := opts.resultRepo
	switch {
	case repo != nil:
	case opts.resultDir != "":
		fileRepo, err := data.NewFileResultRepo(opts.resultDir, repoOpts)
		require.NoError(t, err)
		repo = fileRepo
	default:
		repo = data.NewMemoryResultRepo(repoOpts)
	}

	var err error
	h.results, err = service.NewResultService(service.ResultServiceOptions{
		Repo:       repo,
		SingleRead: opts.singleRead,
	})
	require.NoError(t, err)

	synthesis, err := service.NewSynthesisService(service.SynthesisServiceOptions{
		Jobs:   h.jobs,
		Voices: h.voices,
		Engine: h.engine,
		Slots:  h.slots,
	})
	require.NoError(t, err)

	router, err := NewRouter(RouterServices{
		Jobs:            h.jobs,
		Synthesis:       synthesis,
		Results:         h.results,
		Slots:           h.slots,
		BasePath:        "/api",
		CORSAllowOrigin: "*",
		EventKeepAlive:  time.Hour,
	})
	require.NoError(t, err)

	h.srv = httptest.NewServer(router)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *apiHarness) url(path string) string {
	return h.srv.URL + path
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rd = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			rd = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, h.url(path), rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// submit enqueues a job for the test voice and returns its id.
func (h *apiHarness) submit(t *testing.T, format string) string {
	t.Helper()
	h.voices.EXPECT().Get(gomock.Any(), "alice").Return(testVoice, nil)

	resp := h.do(t, http.MethodPost, "/api/synthesize", map[string]any{
		"voice_id": "alice",
		"text":     "hello there",
		"format":   format,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out SubmitResponse
	decodeBody(t, resp, &out)
	require.Equal(t, model.JobStatusQueued, out.Status)
	require.NotEmpty(t, out.JobID)
	return out.JobID
}

// finish moves the oldest queued job through running to done with audio.
func (h *apiHarness) finish(t *testing.T, jobID string, audio []byte) {
	t.Helper()
	ctx := context.Background()
	job, err := h.jobs.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	ref, err := h.results.Store(ctx, job, audio)
	require.NoError(t, err)
	_, err = h.jobs.Complete(ctx, job.ID, ref)
	require.NoError(t, err)
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return b
}
