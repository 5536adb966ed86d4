package models

// CellCount is the number of series cells reported in every telemetry
// message.
const CellCount = 15

// TelemetryMessage is the structured snapshot broadcast to live viewers.
// Numeric values are pre-formatted strings so the page can print them as-is.
type TelemetryMessage struct {
	Version       string   `json:"version"`
	Voltage       string   `json:"voltage"`
	Amperage      string   `json:"amperage"`
	SOC           string   `json:"soc"`
	OverriddenSOC string   `json:"overriddenSoc"`
	UsedCharge    string   `json:"usedCharge"`
	RegenCharge   string   `json:"regenCharge"`
	Uptime        string   `json:"uptime"`
	Cells         []string `json:"cells"`
}
