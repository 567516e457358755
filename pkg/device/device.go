// Package device derives editor tuning parameters from the runtime environment.
package device

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/aretw0/moments/pkg/domain"
)

// Environment describes the client hosting the editor.
type Environment struct {
	UserAgent string

	// MobileHint is the Sec-CH-UA-Mobile client hint: "?1", "?0" or empty.
	MobileHint string

	Platform       string
	MaxTouchPoints int
}

var (
	handheldUA = regexp.MustCompile(`(?i)android|iphone|ipad|ipod|mobile|blackberry|iemobile|opera mini|silk|kindle|webos`)
	desktopUA  = regexp.MustCompile(`(?i)windows nt|macintosh|mac os x|x11|linux x86_64|cros`)
)

// Resolve returns the profile for env. It never fails: environments that can't be
// recognized as desktop get the conservative mobile bound.
func Resolve(env Environment) domain.DeviceProfile {
	if isMobile(env) {
		return domain.DeviceProfile{Mobile: true, MaxRasterDimension: domain.MobileMaxRasterDimension}
	}
	if desktopUA.MatchString(env.UserAgent) {
		return domain.DeviceProfile{Mobile: false, MaxRasterDimension: domain.DesktopMaxRasterDimension}
	}
	return domain.DeviceProfile{Mobile: false, MaxRasterDimension: domain.MobileMaxRasterDimension}
}

func isMobile(env Environment) bool {
	switch strings.TrimSpace(env.MobileHint) {
	case "?1":
		return true
	case "?0":
		// iPadOS reports a desktop UA; touch points give it away.
		return isTouchMac(env)
	}
	if handheldUA.MatchString(env.UserAgent) {
		return true
	}
	return isTouchMac(env)
}

func isTouchMac(env Environment) bool {
	return env.MaxTouchPoints > 1 && strings.Contains(strings.ToLower(env.Platform+" "+env.UserAgent), "mac")
}

// EnvironmentFromRequest reads the environment from request headers.
func EnvironmentFromRequest(r *http.Request) Environment {
	return Environment{
		UserAgent:  r.Header.Get("User-Agent"),
		MobileHint: r.Header.Get("Sec-CH-UA-Mobile"),
		Platform:   strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`),
	}
}
