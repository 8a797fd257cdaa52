package asset

import (
	"path"
	"strings"

	"github.com/ensam-campus/wayfinder/internal/config"
)

// DeviceClass is the viewport class used to pick a video variant.
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceTablet  DeviceClass = "tablet"
	DeviceDesktop DeviceClass = "desktop"
)

// ClassifyViewport maps a viewport width in pixels to a device class.
// A non-positive width means unknown and maps to desktop.
func ClassifyViewport(widthPx int, t config.Tuning) DeviceClass {
	switch {
	case widthPx <= 0:
		return DeviceDesktop
	case widthPx < t.MobileBreakpointPx:
		return DeviceMobile
	case widthPx < t.TabletBreakpointPx:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// VideoVariant returns the device-class variant of videoPath, e.g.
// "/v/a.mp4" becomes "/v/a_mobile.mp4" on phones.
func VideoVariant(videoPath string, class DeviceClass, t config.Tuning) string {
	var suffix string
	switch class {
	case DeviceMobile:
		suffix = t.MobileSuffix
	case DeviceTablet:
		suffix = t.TabletSuffix
	}
	if suffix == "" {
		return videoPath
	}
	ext := path.Ext(videoPath)
	return strings.TrimSuffix(videoPath, ext) + suffix + ext
}
