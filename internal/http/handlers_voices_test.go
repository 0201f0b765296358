package httpx

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/espeech/espeech-api/internal/data"
	"github.com/espeech/espeech-api/internal/domain/model"
	apperrors "github.com/espeech/espeech-api/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestListVoices(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	voice := *testVoice
	voice.RefAudioPath = "/srv/voices/alice/ref.wav"
	h.voices.EXPECT().List(gomock.Any()).Return([]*model.Voice{&voice}, nil)

	resp := h.do(t, http.MethodGet, "/api/voices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw := string(readBody(t, resp))
	assert.JSONEq(t, `{"voices":[{"id":"alice","name":"Alice","ref_text_file":"ref_text.txt","ref_audio_file":"ref.wav"}]}`, raw)
}

func TestListVoices_EmptyCatalog(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.voices.EXPECT().List(gomock.Any()).Return(nil, nil)

	resp := h.do(t, http.MethodGet, "/api/voices", nil)
	assert.JSONEq(t, `{"voices":[]}`, string(readBody(t, resp)))
}

func TestListVoices_Refresh(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	gomock.InOrder(
		h.voices.EXPECT().Refresh(gomock.Any()).Return(nil),
		h.voices.EXPECT().List(gomock.Any()).Return([]*model.Voice{testVoice}, nil),
	)

	resp := h.do(t, http.MethodGet, "/api/voices?refresh=true", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListVoices_RefreshFailure(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.voices.EXPECT().Refresh(gomock.Any()).Return(errors.New("permission denied"))

	resp := h.do(t, http.MethodGet, "/api/voices?refresh=1", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body ErrorResponse
	decodeBody(t, resp, &body)
	assert.Equal(t, "internal", body.Error)
	assert.NotContains(t, body.Message, "permission denied")
}

func TestReferenceAudio(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	dir := t.TempDir()
	path := filepath.Join(dir, "ref.wav")
	require.NoError(t, os.WriteFile(path, []byte("reference-clip"), 0o600))

	voice := *testVoice
	voice.RefAudioPath = path
	h.voices.EXPECT().Get(gomock.Any(), "alice").Return(&voice, nil)

	resp := h.do(t, http.MethodGet, "/api/voices/alice/reference-audio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	assert.Equal(t, `inline; filename="ref.wav"`, resp.Header.Get("Content-Disposition"))
	assert.Equal(t, "reference-clip", string(readBody(t, resp)))
}

func TestReferenceAudio_UnknownVoice(t *testing.T) {
	h := newAPIHarness(t, harnessOptions{})
	h.voices.EXPECT().Get(gomock.Any(), "ghost").Return(nil, data.ErrVoiceNotFound)

	resp := h.do(t, http.MethodGet, "/api/voices/ghost/reference-audio", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, `attachment; filename="a_b.wav"`, contentDisposition("attachment", "a_b.wav"))
	assert.Equal(t, `inline; filename*=utf-8''st%C3%A9phane.wav`, contentDisposition("inline", "stéphane.wav"))
}

func TestStatusForCode(t *testing.T) {
	tests := map[string]int{
		"not_found":        http.StatusNotFound,
		"unknown_voice":    http.StatusNotFound,
		"validation":       http.StatusBadRequest,
		"conflict":         http.StatusConflict,
		"expired":          http.StatusGone,
		"canceled":         http.StatusServiceUnavailable,
		"timeout":          http.StatusGatewayTimeout,
		"synthesis_failed": http.StatusInternalServerError,
		"internal":         http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusForCode(apperrors.ErrorCode(code)), code)
	}
}
