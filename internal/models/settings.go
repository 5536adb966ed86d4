package models

// Storage capacities of the bounded Settings fields, in bytes.
const (
	APNameCapacity         = 32
	APPasswordCapacity     = 64
	APSelfPasswordCapacity = 64
)

// MinAPSelfPasswordLength is the shortest non-empty self-AP password that
// still lets the network show up as a WPA2 access point.
const MinAPSelfPasswordLength = 8

// Settings is the persisted device configuration.
type Settings struct {
	// APName is the SSID of the network to join in station mode; empty
	// means the device only hosts its own access point.
	APName     string `yaml:"ap_name" json:"apName" db:"ap_name"`
	APPassword string `yaml:"ap_password" json:"apPassword" db:"ap_password"`
	// APSelfPassword protects the device's own access point; empty means
	// an open network.
	APSelfPassword string `yaml:"ap_self_password" json:"apSelfPassword" db:"ap_self_password"`
	// BMSSerial overrides the serial reported to the BMS; 0 means no
	// override.
	BMSSerial             uint32 `yaml:"bms_serial" json:"bmsSerial" db:"bms_serial"`
	GracefulShutdownCount uint32 `yaml:"graceful_shutdown_count" json:"gracefulShutdownCount" db:"graceful_shutdown_count"`
}

// StationMode reports whether the device should join an existing network.
func (s *Settings) StationMode() bool {
	return s.APName != ""
}

// Fits reports whether every bounded field is within its capacity.
func (s *Settings) Fits() bool {
	return len(s.APName) <= APNameCapacity &&
		len(s.APPassword) <= APPasswordCapacity &&
		len(s.APSelfPassword) <= APSelfPasswordCapacity
}

// BoundedCopy returns v cut to at most capacity bytes.
func BoundedCopy(v string, capacity int) string {
	if len(v) > capacity {
		return v[:capacity]
	}
	return v
}
