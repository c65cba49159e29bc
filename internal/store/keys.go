package store

// Preference keys. The names match the ones the Android app stores so an
// exported preference file can be imported as is.
const (
	KeyDNSToggleOff         = "dns_toggle_off"
	KeyDNSToggleAuto        = "dns_toggle_auto"
	KeyDNSAutoRevert        = "dns_enable_auto_revert"
	KeyDNSAutoRevertDelay   = "dns_auto_revert_delay_seconds"
	KeyDNSHostnames         = "dns_hostnames_list_v2"
	KeyUSBToggleEnable      = "usb_toggle_enable"
	KeyUSBToggleDisable     = "usb_toggle_disable"
	KeyUSBAutoRevert        = "usb_enable_auto_revert"
	KeyUSBAutoRevertDelay   = "usb_auto_revert_delay_seconds"
	KeyVPNDetection         = "vpn_detection_enabled"
	KeyVPNDetectionMode     = "vpn_detection_mode"
	KeyNetworkDetection     = "network_type_detection_enabled"
	KeyNetworkDetectionMode = "network_type_detection_mode"
	KeyDNSStateOnWifi       = "dns_state_on_wifi"
	KeyDNSHostnameOnWifi    = "dns_hostname_on_wifi"
	KeyDNSStateOnMobile     = "dns_state_on_mobile"
	KeyDNSHostnameOnMobile  = "dns_hostname_on_mobile"
)

// Runtime state that has to survive a restart.
const (
	KeyDNSPendingRevert    = "dns_pending_revert"
	KeyUSBPendingRevert    = "usb_pending_revert"
	KeyVPNPreviousMode     = "vpn_previous_dns_mode"
	KeyVPNPreviousHostname = "vpn_previous_dns_hostname"
	KeyVPNPreviousAt       = "vpn_previous_dns_captured_at"
	KeyLastNetworkType     = "last_network_type"
)

// Kind is the value type of a preference.
type Kind string

const (
	KindBool      Kind = "bool"
	KindInt       Kind = "int"
	KindString    Kind = "string"
	KindDetection Kind = "detection_mode"
	KindDNSMode   Kind = "dns_mode"
)

// Definition describes a user-editable preference.
type Definition struct {
	Key     string `json:"key"`
	Kind    Kind   `json:"kind"`
	Default string `json:"default"`
}

// Definitions lists every user-editable preference with its default.
var Definitions = []Definition{
	{KeyDNSToggleOff, KindBool, "true"},
	{KeyDNSToggleAuto, KindBool, "true"},
	{KeyDNSAutoRevert, KindBool, "false"},
	{KeyDNSAutoRevertDelay, KindInt, "5"},
	{KeyUSBToggleEnable, KindBool, "true"},
	{KeyUSBToggleDisable, KindBool, "true"},
	{KeyUSBAutoRevert, KindBool, "false"},
	{KeyUSBAutoRevertDelay, KindInt, "5"},
	{KeyVPNDetection, KindBool, "false"},
	{KeyVPNDetectionMode, KindDetection, string(TileOnly)},
	{KeyNetworkDetection, KindBool, "false"},
	{KeyNetworkDetectionMode, KindDetection, string(TileOnly)},
	{KeyDNSStateOnWifi, KindDNSMode, "off"},
	{KeyDNSHostnameOnWifi, KindString, ""},
	{KeyDNSStateOnMobile, KindDNSMode, "opportunistic"},
	{KeyDNSHostnameOnMobile, KindString, ""},
}

// Lookup returns the definition for key.
func Lookup(key string) (Definition, bool) {
	for _, d := range Definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}
