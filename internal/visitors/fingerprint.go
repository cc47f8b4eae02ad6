package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/goccy/go-json"

	"hayzedd/internal/pkg/user_agent"
)

// DeviceInfo is the structured device record stored on every session.
type DeviceInfo struct {
	Type           string `json:"type"`
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
	IsMobile       bool   `json:"isMobile"`
	IsTablet       bool   `json:"isTablet"`
	IsDesktop      bool   `json:"isDesktop"`
}

// ResolveDevice parses a user agent into a DeviceInfo. It never fails:
// unresolved fields are reported as user_agent.Unknown.
func ResolveDevice(userAgent string) DeviceInfo {
	ua := user_agent.ParseUserAgent(userAgent)
	return DeviceInfo{
		Type:           ua.Device,
		Browser:        ua.Browser,
		BrowserVersion: ua.BrowserVersion,
		OS:             ua.OS,
		OSVersion:      ua.OSVersion,
		IsMobile:       ua.Mobile,
		IsTablet:       ua.Tablet,
		IsDesktop:      ua.Desktop,
	}
}

// fingerprintInput is hashed in declaration order, so field order is part
// of the fingerprint format.
type fingerprintInput struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
	Device         string `json:"device"`
	IPAddress      string `json:"ipAddress"`
	Language       string `json:"language"`
	Encoding       string `json:"encoding"`
}

// Fingerprint derives the device fingerprint used to group requests into
// sessions. Only the network prefix of the address is hashed, so two
// devices behind the same /24 with identical headers collapse into one
// visitor.
func Fingerprint(userAgent, ipAddress, acceptLanguage, acceptEncoding string) string {
	ua := user_agent.ParseUserAgent(userAgent)

	device := ua.Device
	if device == "" {
		device = user_agent.DeviceDesktop
	}

	input := fingerprintInput{
		Browser:        lowerUnknown(ua.Browser),
		BrowserVersion: lowerUnknown(ua.BrowserVersion),
		OS:             lowerUnknown(ua.OS),
		OSVersion:      lowerUnknown(ua.OSVersion),
		Device:         device,
		IPAddress:      NetworkPrefix(ipAddress),
		Language:       orUnknown(acceptLanguage),
		Encoding:       orUnknown(acceptEncoding),
	}

	// Marshalling a flat struct of strings cannot fail.
	data, _ := json.Marshal(input)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func lowerUnknown(s string) string {
	if s == "" || s == user_agent.Unknown {
		return "unknown"
	}
	return s
}
