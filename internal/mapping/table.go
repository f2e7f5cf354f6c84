package mapping

// Bridge attribute names, as published on MQTT.
const (
	AttrState        = "state"
	AttrBrightness   = "brightness"
	AttrColor        = "color"
	AttrAvailability = "availability"
)

// Vendor property and command names.
const (
	PropPowerState = "powerState"
	PropBrightness = "brightness"
	PropColor      = "color"
	PropOnline     = "online"

	CmdTurn       = "turn"
	CmdBrightness = "brightness"
	CmdColor      = "color"
)

// VendorBrightnessMax is the top of the vendor's brightness range.
const VendorBrightnessMax = 100

// Entry converts one destination attribute. The first key of Sources
// present in the input is used.
type Entry struct {
	Dest       string
	Sources    []string
	Transforms []Transform
}

// Table is an ordered list of entries. Output order follows table order.
type Table []Entry

// VendorToBridge returns the table applied to vendor state before
// publishing. brightnessScale is the top of the public brightness range.
func VendorToBridge(brightnessScale int) Table {
	return Table{
		{Dest: AttrState, Sources: []string{PropPowerState}, Transforms: []Transform{Enum("on", "ON", "OFF")}},
		{Dest: AttrBrightness, Sources: []string{PropBrightness}, Transforms: []Transform{Scale(VendorBrightnessMax, brightnessScale)}},
		{Dest: AttrColor, Sources: []string{PropColor}, Transforms: []Transform{ToRGB()}},
		{Dest: AttrAvailability, Sources: []string{PropOnline}, Transforms: []Transform{BoolEnum("online", "offline")}},
	}
}

// BridgeToVendor returns the table applied to inbound MQTT commands.
// The power entry accepts both "state" (Home Assistant's JSON schema key)
// and "turn".
func BridgeToVendor(brightnessScale int) Table {
	return Table{
		{Dest: CmdTurn, Sources: []string{AttrState, CmdTurn}, Transforms: []Transform{Enum("ON", "on", "off")}},
		{Dest: CmdBrightness, Sources: []string{AttrBrightness}, Transforms: []Transform{Scale(brightnessScale, VendorBrightnessMax)}},
		{Dest: CmdColor, Sources: []string{AttrColor}, Transforms: []Transform{ToRGB()}},
	}
}
