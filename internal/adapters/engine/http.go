// Package engine provides SynthesisEngine implementations: a client for a remote
// inference service and a deterministic tone generator for development.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/espeech/espeech-api/internal/core"
	apperrors "github.com/espeech/espeech-api/internal/errors"
)

// API endpoints.
const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

// defaultMaxAudioBytes caps a single engine response.
const defaultMaxAudioBytes = 256 << 20

var (
	// ErrEmptyAudio is returned when the engine answers 200 with no body.
	ErrEmptyAudio = errors.New("engine returned empty audio")
	// ErrUnexpectedContentType is returned when the engine does not answer with audio.
	ErrUnexpectedContentType = errors.New("engine returned unexpected content type")
	// ErrAudioTooLarge is returned when the engine response exceeds the size cap.
	ErrAudioTooLarge = errors.New("engine audio exceeds size limit")
)

// HTTPEngineOptions configures NewHTTPEngine.
type HTTPEngineOptions struct {
	BaseURL string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
	// MaxAudioBytes caps the response size. Zero means 256 MiB.
	MaxAudioBytes int64
}

// HTTPEngine calls a remote inference service that owns the model.
type HTTPEngine struct {
	baseURL  string
	client   *http.Client
	logger   *slog.Logger
	maxAudio int64
}

// synthesizeRequest is the JSON payload sent to the inference service.
type synthesizeRequest struct {
	Text         string  `json:"text"`
	RefText      string  `json:"ref_text"`
	RefAudioPath string  `json:"ref_audio_path"`
	Speed        float64 `json:"speed"`
	NFEStep      int     `json:"nfe_step"`
	Seed         int64   `json:"seed"`
	Format       string  `json:"format"`
}

// errorResponse is the structured error body returned by the inference service.
type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPEngine creates an engine client for the service at opts.BaseURL.
func NewHTTPEngine(opts HTTPEngineOptions) (*HTTPEngine, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("engine base url is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxAudio := opts.MaxAudioBytes
	if maxAudio <= 0 {
		maxAudio = defaultMaxAudioBytes
	}

	return &HTTPEngine{
		baseURL:  baseURL,
		client:   client,
		logger:   logger.With("component", "http_engine"),
		maxAudio: maxAudio,
	}, nil
}

// Name implements core.SynthesisEngine.
func (e *HTTPEngine) Name() string { return "http" }

// Synthesize posts the request to the inference service and returns the audio bytes.
func (e *HTTPEngine) Synthesize(ctx context.Context, in core.SynthesisInput) ([]byte, error) {
	if in.Voice == nil {
		return nil, errors.New("voice is required")
	}

	refText, err := readRefText(in.Voice.RefTextPath)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(synthesizeRequest{
		Text:         in.Params.Text,
		RefText:      refText,
		RefAudioPath: in.Voice.RefAudioPath,
		Speed:        in.Params.Speed,
		NFEStep:      in.Params.NFEStep,
		Seed:         in.Params.Seed,
		Format:       string(in.Params.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+apiSynthesize, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", in.Params.Format.MimeType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engine request to %s: %w", e.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "" && !strings.HasPrefix(mediaType, "audio/") && mediaType != "application/octet-stream" {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedContentType, mediaType)
	}

	// One byte past the cap distinguishes an oversized body from an exact fit.
	audio, err := io.ReadAll(io.LimitReader(resp.Body, e.maxAudio+1))
	if err != nil {
		return nil, fmt.Errorf("read engine audio: %w", err)
	}
	if int64(len(audio)) > e.maxAudio {
		return nil, apperrors.Wrapf(ErrAudioTooLarge, apperrors.ErrCodeSynthesisFailed,
			"engine audio larger than %d bytes", e.maxAudio)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	e.logger.DebugContext(ctx, "engine returned audio",
		"voice_id", in.Voice.ID,
		"format", in.Params.Format,
		"bytes", len(audio),
	)
	return audio, nil
}

// HealthCheck verifies that the inference service is reachable and healthy.
func (e *HTTPEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("create health check request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for engine at %s: %w", e.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health check returned %s", resp.Status)
	}
	return nil
}

func readRefText(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read reference text: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Detail != "" {
		if er.ErrorCode != "" {
			return apperrors.New(apperrors.ErrCodeSynthesisFailed,
				fmt.Sprintf("engine error (%s): %s (code: %s)", resp.Status, er.Detail, er.ErrorCode))
		}
		return apperrors.New(apperrors.ErrCodeSynthesisFailed,
			fmt.Sprintf("engine error (%s): %s", resp.Status, er.Detail))
	}
	return apperrors.New(apperrors.ErrCodeSynthesisFailed,
		fmt.Sprintf("engine returned %s: %s", resp.Status, strings.TrimSpace(string(raw))))
}

var _ core.SynthesisEngine = (*HTTPEngine)(nil)
