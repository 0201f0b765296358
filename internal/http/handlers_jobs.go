package httpx

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/espeech/espeech-api/internal/domain/model"
	apperrors "github.com/espeech/espeech-api/internal/errors"
)

// SubmitResponse is the body returned when a job is enqueued.
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// JobResponse is the poll view of a job. Absent values are serialized as null.
type JobResponse struct {
	JobID    string          `json:"job_id"`
	Status   model.JobStatus `json:"status"`
	Error    *string         `json:"error"`
	AudioURL *string         `json:"audio_url"`
	Filename *string         `json:"filename"`
	MimeType *string         `json:"mime_type"`
}

// Submit validates a synthesis request and enqueues a job.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req model.SynthesisRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	job, err := h.synthesis.Submit(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, SubmitResponse{JobID: job.ID, Status: job.Status})
}

// GetJob reports a job's status. audio_url is set only while the result can be downloaded.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := JobResponse{JobID: job.ID, Status: job.Status}
	if job.Error != "" {
		resp.Error = &job.Error
	}
	if job.Result != nil {
		resp.Filename = &job.Result.Filename
		resp.MimeType = &job.Result.MimeType
	}
	if h.results.Available(r.Context(), job) {
		url := h.audioURL(job.ID)
		resp.AudioURL = &url
	}
	WriteJSON(w, http.StatusOK, resp)
}

// JobAudio serves a finished job's audio as an attachment. HEAD checks the same
// state without a body. Range requests are honored.
func (h *Handlers) JobAudio(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := h.jobs.Get(ctx, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	res, err := h.results.Open(ctx, job)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	body, err := res.Open()
	if errors.Is(err, fs.ErrNotExist) {
		// Eviction removed the file after the lookup.
		h.writeServiceError(w, r, apperrors.Wrapf(err, apperrors.ErrCodeExpired, "result for job %s has expired", job.ID))
		return
	}
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("open result: %w", err))
		return
	}
	defer func() { _ = body.Close() }()

	size, err := body.Seek(0, io.SeekEnd)
	if err == nil {
		_, err = body.Seek(0, io.SeekStart)
	}
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("seek result: %w", err))
		return
	}

	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", contentDisposition("attachment", res.Filename))

	cw := &countingWriter{ResponseWriter: w}
	http.ServeContent(cw, r, res.Filename, res.CreatedAt, body)

	if r.Method == http.MethodGet && cw.status == http.StatusOK && cw.written == size {
		h.results.Delivered(ctx, job.ID)
	}
}

// Stream synthesizes synchronously and returns the audio as an attachment.
// Nothing is written until the engine has produced the full payload.
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	var req model.SynthesisRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	out, err := h.synthesis.Stream(r.Context(), &req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.MimeType)
	w.Header().Set("Content-Disposition", contentDisposition("attachment", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		h.logger.WarnContext(r.Context(), "stream write failed", "error", err)
	}
}

// countingWriter records the status and number of body bytes written.
type countingWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *countingWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *countingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *countingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
