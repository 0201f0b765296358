package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/espeech/espeech-api/config"
	httpx "github.com/espeech/espeech-api/internal/http"
	"github.com/espeech/espeech-api/internal/service"
	"golang.org/x/net/netutil"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates the router, binds the listener and serves in the background.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
		appCfg.HTTP.Sanitize()
	}

	handler, err := buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: cfg.Services,
		HTTP:     appCfg.HTTP,
	})
	if err != nil {
		return nil, err
	}

	listener, err := listen(appCfg.HTTP)
	if err != nil {
		return nil, err
	}

	// No WriteTimeout: event streams and synchronous synthesis hold the
	// response open for as long as the job takes.
	server := &http.Server{
		Addr:              listener.Addr().String(),
		Handler:           handler,
		ReadHeaderTimeout: appCfg.HTTP.ReadTimeout,
		ReadTimeout:       appCfg.HTTP.ReadTimeout,
		IdleTimeout:       appCfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server",
			"addr", server.Addr,
			"base_path", appCfg.HTTP.BasePath,
			"max_connections", appCfg.HTTP.MaxConnections,
		)
		if serveErr := server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", serveErr)
		}
	}()

	return server, nil
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services ServiceContainer
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) (http.Handler, error) {
	services := httpx.RouterServices{
		Jobs:            cfg.Services.Jobs,
		Synthesis:       cfg.Services.Synthesis,
		Results:         cfg.Services.Results,
		Slots:           cfg.Services.Slots,
		BasePath:        cfg.HTTP.BasePath,
		CORSAllowOrigin: cfg.HTTP.CORSAllowOrigin,
		EventKeepAlive:  cfg.HTTP.EventKeepAlive,
		Logger:          cfg.Logger,
		Metrics:         cfg.Services.Observability.Sink(),
	}
	if cfg.HTTP.CompressionEnabled {
		cfg.Logger.Info("HTTP compression enabled", "level", cfg.HTTP.CompressionLevel)
		services.Compression = &httpx.CompressionConfig{Level: cfg.HTTP.CompressionLevel}
	}

	router, err := httpx.NewRouter(services)
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	return router, nil
}

// listen binds addr and caps concurrent connections when configured.
func listen(cfg config.HTTPConfig) (net.Listener, error) {
	addr := cfg.Addr
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}
	return ln, nil
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context    context.Context
	Server     *http.Server
	JobService *service.JobService
	Logger     *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	// Open event streams never go idle on their own.
	if cfg.JobService != nil {
		cfg.JobService.CloseSubscriptions()
	}

	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := cfg.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
