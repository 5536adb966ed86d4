package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/settings"
	"github.com/owie-project/owie-netd/internal/validation"
	"github.com/owie-project/owie-netd/internal/web"
)

// Reply bodies shown to the browser.
const (
	msgInvalidWiFi   = "Invalid SSID or Password."
	msgWiFiSaved     = "WiFi settings saved, restarting..."
	msgInvalidSerial = "Invalid BMS Serial number."
	msgInvalidAPPass = "Invalid AP password."
	msgSettingsSaved = "Settings saved, restarting..."
	msgSaveFailed    = "Failed to save settings."
)

const maxFormMemory = 32 << 10

type methodHandlers map[string]http.HandlerFunc

// byMethod dispatches on the request method, answering 404 for methods
// with no handler.
func (s *WebServer) byMethod(handlers methodHandlers) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}
}

// servePage serves an embedded asset, expanding placeholders for templated
// pages.
func (s *WebServer) servePage(a web.Asset) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := web.Read(a)
		if err != nil {
			log.Error().Err(err).Msg("Missing asset")
			http.Error(w, "asset unavailable", http.StatusInternalServerError)
			return
		}
		if a.Templated {
			current, err := s.opts.Settings.Snapshot(r.Context())
			if err != nil {
				log.Warn().Err(err).Str("page", a.Name).Msg("Settings unavailable for page")
				http.Error(w, "settings unavailable", http.StatusServiceUnavailable)
				return
			}
			body = Render(body, Placeholders(current))
		}
		w.Header().Set("Content-Type", a.ContentType)
		w.Write(body)
	}
}

// HandleWiFiSubmit stores station network credentials. An invalid
// submission is still answered with 200 so the page shows the message.
func (s *WebServer) HandleWiFiSubmit(w http.ResponseWriter, r *http.Request) {
	var form settings.WiFiForm
	if err := s.bindForm(r, &form); err != nil {
		s.respond(w, http.StatusOK, msgInvalidWiFi)
		return
	}

	err := s.opts.Settings.UpdateWiFi(r.Context(), form)
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, msgWiFiSaved)
	case errors.Is(err, settings.ErrInvalidWiFi):
		s.respond(w, http.StatusOK, msgInvalidWiFi)
	default:
		log.Error().Err(err).Msg("WiFi settings not saved")
		s.respond(w, http.StatusInternalServerError, msgSaveFailed)
	}
}

// HandleSettingsSubmit stores the BMS serial override and the device access
// point password.
func (s *WebServer) HandleSettingsSubmit(w http.ResponseWriter, r *http.Request) {
	var form settings.DeviceForm
	if err := s.bindForm(r, &form); err != nil {
		s.respond(w, http.StatusBadRequest, msgInvalidSerial)
		return
	}

	err := s.opts.Settings.UpdateDevice(r.Context(), form)
	switch {
	case err == nil:
		s.respond(w, http.StatusOK, msgSettingsSaved)
	case errors.Is(err, settings.ErrInvalidSerial):
		s.respond(w, http.StatusBadRequest, msgInvalidSerial)
	case errors.Is(err, settings.ErrInvalidAPPassword):
		s.respond(w, http.StatusBadRequest, msgInvalidAPPass)
	default:
		log.Error().Err(err).Msg("Device settings not saved")
		s.respond(w, http.StatusInternalServerError, msgSaveFailed)
	}
}

// HandleNotFound answers 404 for requests addressed to the published host
// name; everything else is captive-portal traffic and goes to the index.
func (s *WebServer) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.Contains(r.Host, "owie.local") {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "http://"+s.opts.APIP.String()+"/", http.StatusFound)
}

// bindForm reads body parameters from a multipart or urlencoded POST.
func (s *WebServer) bindForm(r *http.Request, dst interface{}) error {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return err
		}
		if err := r.ParseForm(); err != nil {
			return err
		}
	}
	return validation.BindForm(r.PostForm, dst)
}

func (s *WebServer) respond(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", web.HTML)
	w.WriteHeader(status)
	io.WriteString(w, msg)
}
