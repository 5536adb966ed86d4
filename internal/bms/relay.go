package bms

// Relay is the live measurement source sitting on the BMS link.
type Relay interface {
	TotalVoltageMillivolts() int32
	CurrentAmps() float32
	BMSReportedSOC() int8
	OverriddenSOC() int8
	UsedChargeMah() int32
	RegeneratedChargeMah() int32
	// CellMillivolts returns the per-cell readings in pack order.
	CellMillivolts() []uint16
}

// FrameHandler receives raw protocol frames as they cross the link.
type FrameHandler func(frame []byte)
