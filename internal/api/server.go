package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/models"
	"github.com/owie-project/owie-netd/internal/settings"
)

// SettingsService is the configuration surface the web pages drive.
type SettingsService interface {
	Snapshot(ctx context.Context) (models.Settings, error)
	UpdateWiFi(ctx context.Context, form settings.WiFiForm) error
	UpdateDevice(ctx context.Context, form settings.DeviceForm) error
}

// Mounter registers extra routes, such as the firmware updater.
type Mounter interface {
	Register(r chi.Router)
}

// Options wires the web server to the rest of the device.
type Options struct {
	Settings SettingsService
	// APIP is the access point address unmatched requests redirect to.
	APIP net.IP
	// Telemetry and RawData are the WebSocket endpoints.
	Telemetry http.Handler
	RawData   http.Handler
	Updater   Mounter
}

// WebServer is the normal-mode HTTP surface.
type WebServer struct {
	opts   Options
	router chi.Router
	server *http.Server
}

// NewWebServer creates the web server
func NewWebServer(opts Options) *WebServer {
	s := &WebServer{
		opts:   opts,
		router: chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures middleware and routes
func (s *WebServer) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RequestLogger)
	s.router.Use(middleware.Recoverer)

	// pages submit forms over XHR from whatever host name reached the device
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.setupPageRoutes(s.router)
}

// Handler returns the routed handler, mainly for tests.
func (s *WebServer) Handler() http.Handler {
	return s.router
}

// Start binds addr and serves in the background. Bind errors are returned
// before anything is served.
func (s *WebServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.server.Addr = ln.Addr().String()

	log.Info().Str("addr", s.server.Addr).Msg("Starting web server")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Web server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded.
func (s *WebServer) Addr() string {
	return s.server.Addr
}

// Shutdown gracefully shuts down the server
func (s *WebServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("host", r.Host).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("dur", time.Since(start)).
			Msg("HTTP request")
	})
}
