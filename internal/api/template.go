package api

import (
	"bytes"
	"html"
	"strconv"

	"github.com/owie-project/owie-netd/internal/models"
	"github.com/owie-project/owie-netd/internal/telemetry"
)

// UnknownPlaceholder replaces any %NAME% token without a value, so a
// missing substitution is obvious in the browser.
const UnknownPlaceholder = "<script>alert('UNKNOWN PLACEHOLDER')</script>"

// maskedPassword is shown instead of a configured station password.
const maskedPassword = "****"

// Placeholders returns the template values for the given settings.
func Placeholders(s models.Settings) map[string]string {
	pass := ""
	if s.APPassword != "" {
		pass = maskedPassword
	}
	serial := ""
	if s.BMSSerial != 0 {
		serial = strconv.FormatUint(uint64(s.BMSSerial), 10)
	}
	return map[string]string{
		"OWIE_version":            telemetry.Version,
		"SSID":                    s.APName,
		"PASS":                    pass,
		"GRACEFUL_SHUTDOWN_COUNT": strconv.FormatUint(uint64(s.GracefulShutdownCount), 10),
		"BMS_SERIAL_OVERRIDE":     serial,
		"AP_PASSWORD":             s.APSelfPassword,
	}
}

// Render expands %NAME% tokens in tpl. "%%" yields a literal percent sign
// and an unterminated token is copied through unchanged. Values are HTML
// escaped.
func Render(tpl []byte, values map[string]string) []byte {
	var out bytes.Buffer
	out.Grow(len(tpl))
	for {
		start := bytes.IndexByte(tpl, '%')
		if start < 0 {
			out.Write(tpl)
			break
		}
		end := bytes.IndexByte(tpl[start+1:], '%')
		if end < 0 {
			out.Write(tpl)
			break
		}
		end += start + 1

		out.Write(tpl[:start])
		name := string(tpl[start+1 : end])
		switch v, ok := values[name]; {
		case name == "":
			out.WriteByte('%')
		case ok:
			out.WriteString(html.EscapeString(v))
		default:
			out.WriteString(UnknownPlaceholder)
		}
		tpl = tpl[end+1:]
	}
	return out.Bytes()
}
