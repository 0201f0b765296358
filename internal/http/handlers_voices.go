package httpx

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/espeech/espeech-api/internal/domain/model"
)

// VoicesResponse is the body of GET /voices.
type VoicesResponse struct {
	Voices []*model.Voice `json:"voices"`
}

// ListVoices returns the voice catalog; ?refresh=true rescans it first.
func (h *Handlers) ListVoices(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	voices, err := h.synthesis.Voices(r.Context(), refresh)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if voices == nil {
		voices = []*model.Voice{}
	}
	WriteJSON(w, http.StatusOK, VoicesResponse{Voices: voices})
}

// ReferenceAudio serves a voice's reference clip inline.
func (h *Handlers) ReferenceAudio(w http.ResponseWriter, r *http.Request) {
	voice, err := h.synthesis.Voice(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	f, err := os.Open(voice.RefAudioPath)
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("open reference audio: %w", err))
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("stat reference audio: %w", err))
		return
	}

	w.Header().Set("Content-Type", voice.AudioMimeType())
	w.Header().Set("Content-Disposition", contentDisposition("inline", voice.RefAudioFile))
	http.ServeContent(w, r, voice.RefAudioFile, info.ModTime(), f)
}

// contentDisposition formats a Content-Disposition header value with a quoted
// filename, falling back to RFC 2231 encoding for names that need escaping.
func contentDisposition(kind, filename string) string {
	for _, c := range filename {
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return mime.FormatMediaType(kind, map[string]string{"filename": filename})
		}
	}
	return kind + `; filename="` + filename + `"`
}
