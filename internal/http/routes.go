// Package httpx provides the HTTP gateway for the synthesis service.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/espeech/espeech-api/internal/observability/statsd"
	"github.com/espeech/espeech-api/internal/service"
	"github.com/gorilla/websocket"
)

const defaultEventKeepAlive = 15 * time.Second

// RouterServices groups the dependencies required to build the HTTP router.
type RouterServices struct {
	Jobs      *service.JobService       // Required
	Synthesis *service.SynthesisService // Required
	Results   *service.ResultService    // Required
	Slots     *service.SlotLimiter      // Required: reported by the health endpoint

	// BasePath prefixes every API route; it must already be normalized ("/api").
	BasePath string
	// CORSAllowOrigin enables CORS headers when non-empty.
	CORSAllowOrigin string
	// EventKeepAlive is the interval between keep-alive frames on SSE and WebSocket streams.
	EventKeepAlive time.Duration
	// Compression enables gzip for text responses when non-nil.
	Compression *CompressionConfig

	Logger  *slog.Logger
	Metrics statsd.Sink
}

// Handlers serves the synthesis API.
type Handlers struct {
	jobs      *service.JobService
	synthesis *service.SynthesisService
	results   *service.ResultService
	slots     *service.SlotLimiter
	basePath  string
	keepAlive time.Duration
	upgrader  websocket.Upgrader
	logger    *slog.Logger
	metrics   statsd.Sink
}

// NewHandlers validates services and constructs Handlers.
func NewHandlers(services RouterServices) (*Handlers, error) {
	switch {
	case services.Jobs == nil:
		return nil, errors.New("JobService is required")
	case services.Synthesis == nil:
		return nil, errors.New("SynthesisService is required")
	case services.Results == nil:
		return nil, errors.New("ResultService is required")
	case services.Slots == nil:
		return nil, errors.New("SlotLimiter is required")
	}

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keepAlive := services.EventKeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultEventKeepAlive
	}

	return &Handlers{
		jobs:      services.Jobs,
		synthesis: services.Synthesis,
		results:   services.Results,
		slots:     services.Slots,
		basePath:  services.BasePath,
		keepAlive: keepAlive,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger.With("component", "http"),
		metrics: services.Metrics,
	}, nil
}

// NewRouter builds the HTTP handler with all API routes and middleware.
func NewRouter(services RouterServices) (http.Handler, error) {
	h, err := NewHandlers(services)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	h.register(mux)

	var handler http.Handler = mux
	if services.Compression != nil {
		handler = Compression(*services.Compression)(handler)
	}
	handler = CORS(services.CORSAllowOrigin)(handler)
	handler = Logging(h.logger)(handler)
	handler = Recover(h.logger)(handler)
	return handler, nil
}

// register wires every route. GET patterns also match HEAD.
func (h *Handlers) register(mux *http.ServeMux) {
	base := h.basePath

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("GET "+base+"/health", h.ServiceHealth)

	mux.HandleFunc("GET "+base+"/voices", h.ListVoices)
	mux.HandleFunc("GET "+base+"/voices/{id}/reference-audio", h.ReferenceAudio)

	mux.HandleFunc("POST "+base+"/synthesize", h.Submit)
	mux.HandleFunc("POST "+base+"/synthesize/stream", h.Stream)

	mux.HandleFunc("GET "+base+"/jobs/{id}", h.GetJob)
	mux.HandleFunc("GET "+base+"/jobs/{id}/audio", h.JobAudio)
	mux.HandleFunc("GET "+base+"/jobs/{id}/events", h.JobEvents)
	mux.HandleFunc("GET "+base+"/jobs/{id}/ws", h.JobWebSocket)
}

func (h *Handlers) audioURL(jobID string) string {
	return h.basePath + "/jobs/" + jobID + "/audio"
}
