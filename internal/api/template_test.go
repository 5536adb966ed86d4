package api

import (
	"testing"

	"github.com/owie-project/owie-netd/internal/models"
	"github.com/owie-project/owie-netd/internal/telemetry"
)

func TestRender(t *testing.T) {
	values := map[string]string{"A": "1", "B": "<b>"}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "hello", want: "hello"},
		{name: "single", in: "v=%A%", want: "v=1"},
		{name: "adjacent", in: "%A%%A%", want: "11"},
		{name: "escaped percent", in: "100%%", want: "100%"},
		{name: "escaped value", in: "%B%", want: "&lt;b&gt;"},
		{name: "unknown", in: "[%NOPE%]", want: "[" + UnknownPlaceholder + "]"},
		{name: "unterminated", in: "50% off", want: "50% off"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := string(Render([]byte(tt.in), values)); got != tt.want {
				t.Fatalf("Render(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders(models.Settings{
		APName:                "home",
		APPassword:            "secret",
		APSelfPassword:        "selfpass",
		BMSSerial:             4242,
		GracefulShutdownCount: 3,
	})
	want := map[string]string{
		"OWIE_version":            telemetry.Version,
		"SSID":                    "home",
		"PASS":                    "****",
		"GRACEFUL_SHUTDOWN_COUNT": "3",
		"BMS_SERIAL_OVERRIDE":     "4242",
		"AP_PASSWORD":             "selfpass",
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}

	empty := Placeholders(models.Settings{})
	if empty["PASS"] != "" || empty["BMS_SERIAL_OVERRIDE"] != "" || empty["GRACEFUL_SHUTDOWN_COUNT"] != "0" {
		t.Fatalf("zero settings placeholders = %v", empty)
	}
}
