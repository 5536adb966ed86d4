package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/owie-project/owie-netd/internal/web"
)

// setupPageRoutes sets up the device pages
func (s *WebServer) setupPageRoutes(r chi.Router) {
	r.NotFound(s.HandleNotFound)
	r.MethodNotAllowed(s.HandleNotFound)

	// Pages
	r.Get("/", s.servePage(web.IndexPage))
	r.Get("/monitor", s.servePage(web.MonitorPage))

	// Static assets
	r.Get("/styles.css", s.servePage(web.Styles))
	r.Get("/scripts.js", s.servePage(web.Scripts))
	r.Get("/index.js", s.servePage(web.IndexScript))
	r.Get("/monitor.js", s.servePage(web.MonitorScript))

	// Forms; any other method is a 404
	r.HandleFunc("/wifi", s.byMethod(methodHandlers{
		"GET":  s.servePage(web.WiFiPage),
		"POST": s.HandleWiFiSubmit,
	}))
	r.HandleFunc("/settings", s.byMethod(methodHandlers{
		"GET":  s.servePage(web.SettingsPage),
		"POST": s.HandleSettingsSubmit,
	}))

	// Live streams
	if s.opts.Telemetry != nil {
		r.Handle("/socket", s.opts.Telemetry)
	}
	if s.opts.RawData != nil {
		r.Handle("/rawdata", s.opts.RawData)
	}

	// Firmware update
	if s.opts.Updater != nil {
		s.opts.Updater.Register(r)
	}
}
