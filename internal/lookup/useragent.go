// Package lookup derives session metadata at login time: device and
// browser from the User-Agent string, and an approximate location
// from the client IP.
package lookup

import "strings"

// Device categories
const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceUnknown = "Unknown"
)

// ParseUserAgent extracts a coarse device category and browser name
// from a User-Agent header. The output is display metadata only and
// never feeds access decisions, so a rough match is acceptable.
func ParseUserAgent(userAgent string) (device, browser string) {
	if userAgent == "" {
		return DeviceUnknown, "Unknown"
	}

	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		device = DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		device = DeviceMobile
	default:
		device = DeviceDesktop
	}

	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge"):
		browser = "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		browser = "Opera"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	default:
		browser = "Unknown"
	}

	return device, browser
}
