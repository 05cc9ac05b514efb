package rockusb

import "strconv"

// Device is one physically attached Rockchip target awaiting flashing,
// built from a descriptor line of the tool's enumeration output.
// Immutable once parsed.
type Device struct {
	// DevNo is the selection number reported by the tool. Unique among
	// currently enumerated devices, not stable across rescans.
	DevNo int

	// VendorID and ProductID are the hex USB identifiers as printed by
	// the tool (without the 0x prefix). Opaque, reporting only.
	VendorID  string
	ProductID string

	// LocationID identifies the physical USB port path and is the
	// stable handle for log output when several devices are attached.
	LocationID int
}

// ParseDevices extracts every well-formed descriptor line
// (DevNo=<int>,Vid=0x<hex>,Pid=0x<hex>,LocationID=<int>) from raw
// enumeration output, in order of appearance. Surrounding banner text
// is not an error; no descriptor lines means an empty slice.
func ParseDevices(text string) []Device {
	matches := reDescriptor.FindAllStringSubmatch(text, -1)
	devices := make([]Device, 0, len(matches))
	for _, m := range matches {
		devno, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		location, err := strconv.Atoi(m[4])
		if err != nil {
			continue
		}
		devices = append(devices, Device{
			DevNo:      devno,
			VendorID:   m[2],
			ProductID:  m[3],
			LocationID: location,
		})
	}
	return devices
}
