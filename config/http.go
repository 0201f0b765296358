package config

import (
	"strings"
	"time"
)

const defaultBasePath = "/api"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BasePath prefixes every API route (e.g., "/api").
	BasePath string `env:"ESPEECH_API_BASE" envDefault:"/api"`

	// MaxConnections caps concurrently accepted connections. Zero disables the cap.
	MaxConnections int `env:"HTTP_MAX_CONNECTIONS" envDefault:"0"`

	// ReadTimeout bounds reading a full request including the body.
	ReadTimeout time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`

	// IdleTimeout bounds keep-alive idle connections.
	IdleTimeout time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	// CompressionEnabled enables gzip compression for text-based responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	// Default is 6 (standard gzip default).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`

	// CORSAllowOrigin is sent as Access-Control-Allow-Origin. Empty disables CORS headers.
	CORSAllowOrigin string `env:"HTTP_CORS_ALLOW_ORIGIN" envDefault:"*"`

	// EventKeepAlive is the interval between keep-alive frames on event streams.
	EventKeepAlive time.Duration `env:"HTTP_EVENT_KEEPALIVE" envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	// Clamp compression level to valid gzip range (1-9)
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
	if h.MaxConnections < 0 {
		h.MaxConnections = 0
	}
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 30 * time.Second
	}
	if h.EventKeepAlive <= 0 {
		h.EventKeepAlive = 15 * time.Second
	}
	if h.IdleTimeout <= 0 {
		h.IdleTimeout = 120 * time.Second
	}
	h.BasePath = NormalizeBasePath(h.BasePath)
}

// NormalizeBasePath returns path with a single leading slash and no trailing slash.
// An empty or root path yields the default "/api".
func NormalizeBasePath(path string) string {
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return defaultBasePath
	}
	return "/" + path
}
