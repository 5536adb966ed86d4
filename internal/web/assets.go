package web

import (
	"embed"
	"fmt"
	"io/fs"
)

// Static holds the pages, stylesheets and scripts served by the device.
//
//go:embed static/*
var Static embed.FS

// Asset is one embedded file and the content type it is served with.
type Asset struct {
	Name        string
	ContentType string
	// Templated assets have %PLACEHOLDER% tokens expanded on every request.
	Templated bool
}

const (
	HTML       = "text/html"
	CSS        = "text/css"
	JavaScript = "application/javascript"
)

// Page and script names.
var (
	IndexPage     = Asset{Name: "index.html", ContentType: HTML, Templated: true}
	WiFiPage      = Asset{Name: "wifi.html", ContentType: HTML, Templated: true}
	MonitorPage   = Asset{Name: "monitor.html", ContentType: HTML, Templated: true}
	SettingsPage  = Asset{Name: "settings.html", ContentType: HTML, Templated: true}
	UpdatePage    = Asset{Name: "update.html", ContentType: HTML}
	Styles        = Asset{Name: "styles.css", ContentType: CSS}
	Scripts       = Asset{Name: "scripts.js", ContentType: JavaScript}
	IndexScript   = Asset{Name: "index.js", ContentType: JavaScript}
	MonitorScript = Asset{Name: "monitor.js", ContentType: JavaScript}
)

// Read returns the bytes of an embedded asset.
func Read(a Asset) ([]byte, error) {
	data, err := fs.ReadFile(Static, "static/"+a.Name)
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", a.Name, err)
	}
	return data, nil
}

// MustRead is Read for assets known to be embedded.
func MustRead(a Asset) []byte {
	data, err := Read(a)
	if err != nil {
		panic(err)
	}
	return data
}
