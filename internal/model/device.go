package model

// ConnectionStatus reflects whether a device was last reachable over the
// transport (spec §3).
type ConnectionStatus int

const (
	ConnectionClosed ConnectionStatus = iota
	ConnectionActive
)

func (s ConnectionStatus) String() string {
	if s == ConnectionActive {
		return "active"
	}
	return "closed"
}

// DeviceKind distinguishes the appliance device class from the other
// hardware kinds the registry loads before it (spec §4.B: "appliance
// devices are loaded after transport and IO devices").
type DeviceKind int

const (
	DeviceKindTransport DeviceKind = iota
	DeviceKindIO
	DeviceKindAppliance
)

// Device is one row of the in-memory hardware registry (spec §3, §4.B).
type Device struct {
	RecordNumber int64
	DeviceID     string
	Kind         DeviceKind

	Address     string // may be empty when AddressAuto is set
	AddressAuto bool   // address is learned from a sibling subsystem
	Password    string

	Status ConnectionStatus

	MaxSeq int // slot table capacity (spec §3: "N bounded by a known maximum sequence count")
}

// ClearLearnedAddress drops an auto-learned address so the next probe
// re-acquires it (spec §4.B, §4.E step 2).
func (d *Device) ClearLearnedAddress() {
	if d.AddressAuto {
		d.Address = ""
	}
}
