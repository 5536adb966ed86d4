package ota

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/web"
)

// Path is the firmware update endpoint.
const Path = "/update"

// formField is the multipart field carrying the image.
const formField = "firmware"

// Restarter schedules a deferred device restart.
type Restarter interface {
	RestartSoon()
}

var errTooLarge = errors.New("firmware image too large")

// Updater accepts a firmware image over HTTP, stores it at a fixed path and
// restarts the device into it.
type Updater struct {
	path      string
	maxSize   int64
	restarter Restarter
}

// NewUpdater creates an updater writing to path. Images larger than maxSize
// bytes are refused.
func NewUpdater(path string, maxSize int64, restarter Restarter) *Updater {
	return &Updater{path: path, maxSize: maxSize, restarter: restarter}
}

// Register mounts the update page and upload handler on r.
func (u *Updater) Register(r chi.Router) {
	r.Get(Path, u.HandleForm)
	r.Post(Path, u.HandleUpload)
}

// HandleForm serves the upload page.
func (u *Updater) HandleForm(w http.ResponseWriter, r *http.Request) {
	page, err := web.Read(web.UpdatePage)
	if err != nil {
		http.Error(w, "update page unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", web.HTML)
	w.Write(page)
}

// HandleUpload stores the uploaded image and schedules a restart.
func (u *Updater) HandleUpload(w http.ResponseWriter, r *http.Request) {
	// room for the multipart envelope around the image
	r.Body = http.MaxBytesReader(w, r.Body, u.maxSize+64<<10)

	file, header, err := r.FormFile(formField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			u.reply(w, http.StatusRequestEntityTooLarge, "Firmware too large.")
			return
		}
		u.reply(w, http.StatusBadRequest, "No firmware uploaded.")
		return
	}
	defer file.Close()

	n, err := u.store(file)
	switch {
	case errors.Is(err, errTooLarge):
		u.reply(w, http.StatusRequestEntityTooLarge, "Firmware too large.")
		return
	case err != nil:
		log.Error().Err(err).Str("path", u.path).Msg("Failed to store firmware")
		u.reply(w, http.StatusInternalServerError, "Update failed.")
		return
	case n == 0:
		u.reply(w, http.StatusBadRequest, "No firmware uploaded.")
		return
	}

	log.Info().
		Str("file", header.Filename).
		Int64("bytes", n).
		Str("path", u.path).
		Msg("Firmware stored")

	u.restarter.RestartSoon()
	u.reply(w, http.StatusOK, "Update complete, restarting...")
}

// store writes src next to the target and renames it into place, so a
// partial upload never replaces a good image.
func (u *Updater) store(src io.Reader) (int64, error) {
	dir := filepath.Dir(u.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create firmware dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".firmware-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(src, u.maxSize+1))
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("write firmware: %w", err)
	}
	if n > u.maxSize {
		tmp.Close()
		return 0, errTooLarge
	}
	if n == 0 {
		tmp.Close()
		return 0, nil
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("sync firmware: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close firmware: %w", err)
	}
	if err := os.Rename(tmp.Name(), u.path); err != nil {
		return 0, fmt.Errorf("install firmware: %w", err)
	}
	return n, nil
}

func (u *Updater) reply(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", web.HTML)
	w.WriteHeader(status)
	io.WriteString(w, msg)
}
