package telemetry

import (
	"strconv"
	"strings"
	"time"

	"github.com/owie-project/owie-netd/internal/bms"
	"github.com/owie-project/owie-netd/internal/models"
)

// Version tags every message and the pages.
const Version = "0.0.2"

// FormatUptime renders d as "XhYmZs", leaving out the hour segment below one
// hour. Sub-second precision is dropped.
func FormatUptime(d time.Duration) string {
	secs := int64(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	hrs := secs / 3600
	mins := (secs % 3600) / 60
	secs %= 60

	var b strings.Builder
	if hrs > 0 {
		b.WriteString(strconv.FormatInt(hrs, 10))
		b.WriteByte('h')
	}
	b.WriteString(strconv.FormatInt(mins, 10))
	b.WriteByte('m')
	b.WriteString(strconv.FormatInt(secs, 10))
	b.WriteByte('s')
	return b.String()
}

// Snapshot reads the relay once and formats the broadcast message. The cell
// list always has models.CellCount entries: missing readings show as 0.00,
// extra ones are not sent.
func Snapshot(relay bms.Relay, uptime time.Duration) models.TelemetryMessage {
	cells := make([]string, models.CellCount)
	readings := relay.CellMillivolts()
	for i := range cells {
		var mv uint16
		if i < len(readings) {
			mv = readings[i]
		}
		cells[i] = millis(int64(mv), 2)
	}

	return models.TelemetryMessage{
		Version:       Version,
		Voltage:       millis(int64(relay.TotalVoltageMillivolts()), 2),
		Amperage:      strconv.FormatFloat(float64(relay.CurrentAmps()), 'f', 1, 32),
		SOC:           strconv.Itoa(int(relay.BMSReportedSOC())),
		OverriddenSOC: strconv.Itoa(int(relay.OverriddenSOC())),
		UsedCharge:    strconv.FormatInt(int64(relay.UsedChargeMah()), 10),
		RegenCharge:   strconv.FormatInt(int64(relay.RegeneratedChargeMah()), 10),
		Uptime:        FormatUptime(uptime),
		Cells:         cells,
	}
}

// millis formats a milli-unit reading in whole units.
func millis(v int64, prec int) string {
	return strconv.FormatFloat(float64(v)/1000, 'f', prec, 64)
}
