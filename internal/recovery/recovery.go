package recovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/api"
	"github.com/owie-project/owie-netd/internal/network"
	"github.com/owie-project/owie-netd/internal/ota"
	"github.com/owie-project/owie-netd/internal/wifi"
)

const (
	// APName is the open access point hosted in recovery mode.
	APName = "Owie-recovery"
	// OutputPowerDBm keeps the recovery network close to the board.
	OutputPowerDBm = 0
)

// Updater mounts the firmware update endpoint.
type Updater interface {
	Register(r chi.Router)
}

// Options wires recovery mode to its collaborators.
type Options struct {
	Radio        wifi.Radio
	Scheduler    network.Scheduler
	NewResponder func(ip net.IP) (network.Responder, error)
	Updater      Updater
}

// Mode is the fallback network surface: an open access point, captive DNS
// and nothing but the firmware updater behind it.
type Mode struct {
	opts   Options
	ip     net.IP
	router chi.Router
	server *http.Server
}

// New creates recovery mode. Nothing starts until Start.
func New(opts Options) *Mode {
	return &Mode{opts: opts}
}

// Start brings up the access point, DNS and web server on addr, and
// registers DNS polling as the only recurring task.
func (m *Mode) Start(ctx context.Context, addr string) error {
	radio := m.opts.Radio
	radio.SetOutputPower(OutputPowerDBm)
	radio.SetMode(wifi.ModeAP)
	if err := radio.SoftAP(APName, ""); err != nil {
		return fmt.Errorf("start recovery access point: %w", err)
	}
	m.ip = radio.SoftAPIP()

	dns, err := m.opts.NewResponder(m.ip)
	if err != nil {
		return fmt.Errorf("start dns: %w", err)
	}
	dns.Start(ctx)

	m.router = m.routes()
	m.server = &http.Server{
		Handler:     m.router,
		ReadTimeout: 15 * time.Second,
		// uploads can be slow over a low power link
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	m.server.Addr = ln.Addr().String()
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Recovery web server stopped")
		}
	}()

	m.opts.Scheduler.PostRecurringTask(func() { dns.ProcessNextRequest() })

	log.Warn().
		Str("ap", APName).
		Str("ip", m.ip.String()).
		Str("addr", m.server.Addr).
		Msg("Recovery mode active")
	return nil
}

func (m *Mode) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(api.RequestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(m.redirectToUpdate)
	r.MethodNotAllowed(m.redirectToUpdate)
	m.opts.Updater.Register(r)
	return r
}

func (m *Mode) redirectToUpdate(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "http://"+m.ip.String()+ota.Path, http.StatusFound)
}

// Handler returns the recovery router once Start succeeded.
func (m *Mode) Handler() http.Handler {
	return m.router
}

// Addr returns the bound web server address.
func (m *Mode) Addr() string {
	if m.server == nil {
		return ""
	}
	return m.server.Addr
}

// Shutdown stops the web server.
func (m *Mode) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
