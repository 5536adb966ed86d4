package web

import (
	"bytes"
	"testing"
)

func TestEveryAssetIsEmbedded(t *testing.T) {
	for _, a := range []Asset{IndexPage, WiFiPage, MonitorPage, SettingsPage, UpdatePage, Styles, Scripts, IndexScript, MonitorScript} {
		data, err := Read(a)
		if err != nil {
			t.Fatalf("%s: %v", a.Name, err)
		}
		if len(data) == 0 {
			t.Fatalf("%s is empty", a.Name)
		}
	}
}

func TestFormsUseDeviceFieldNames(t *testing.T) {
	wifi := MustRead(WiFiPage)
	for _, field := range []string{`name="s"`, `name="p"`, "%SSID%", "%PASS%"} {
		if !bytes.Contains(wifi, []byte(field)) {
			t.Fatalf("wifi page missing %s", field)
		}
	}
	settings := MustRead(SettingsPage)
	for _, field := range []string{`name="bs"`, `name="pw"`, "%BMS_SERIAL_OVERRIDE%", "%AP_PASSWORD%"} {
		if !bytes.Contains(settings, []byte(field)) {
			t.Fatalf("settings page missing %s", field)
		}
	}
}

func TestReadUnknownAsset(t *testing.T) {
	if _, err := Read(Asset{Name: "missing.html"}); err == nil {
		t.Fatal("expected error for missing asset")
	}
}
