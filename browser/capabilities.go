package browser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// Identity is what a remote browser reports about itself.
type Identity struct {
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
}

const identityScript = `return {userAgent: navigator.userAgent, platform: navigator.platform};`

var browserAliases = map[string][]string{
	"chrome":   {"Chrome", "HeadlessChrome", "Chromium"},
	"chromium": {"Chromium", "HeadlessChrome", "Chrome"},
	"edge":     {"Edg"},
	"msedge":   {"Edg"},
	"opera":    {"OPR"},
}

var platformMarkers = map[string][]string{
	"WINDOWS": {"Windows", "Win32", "Win64"},
	"XP":      {"Windows NT 5.1", "Windows NT 5.2"},
	"VISTA":   {"Windows NT 6.0"},
	"MAC":     {"Macintosh", "MacIntel", "Mac OS X"},
	"UNIX":    {"X11", "Linux", "BSD"},
	"LINUX":   {"Linux"},
	"ANDROID": {"Android"},
}

// Matches reports whether the browser identified by id satisfies caps. An
// unset field matches anything.
func (id Identity) Matches(caps types.Capabilities) error {
	if caps.Browser != "" {
		version, ok := id.browserVersion(caps.Browser)
		if !ok {
			return fmt.Errorf("browser %q not found in user agent %q", caps.Browser, id.UserAgent)
		}
		if caps.Version != "" && !versionMatches(version, caps.Version) {
			return fmt.Errorf("browser version %s does not match %s", version, caps.Version)
		}
	}
	if caps.Platform != "" && caps.Platform != "ANY" {
		markers, ok := platformMarkers[caps.Platform]
		if !ok {
			return fmt.Errorf("unknown platform %q", caps.Platform)
		}
		found := false
		for _, m := range markers {
			if strings.Contains(id.UserAgent, m) || strings.Contains(id.Platform, m) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("platform %s does not match %q", caps.Platform, id.Platform)
		}
	}
	return nil
}

// browserVersion returns the version token following the browser's product
// name in the user agent, e.g. "126.0.6478.126" for Chrome/126.0.6478.126.
func (id Identity) browserVersion(browser string) (string, bool) {
	names, ok := browserAliases[strings.ToLower(browser)]
	if !ok {
		names = []string{browser}
	}
	for _, name := range names {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(name) + `/([0-9][0-9A-Za-z.]*)`)
		if m := re.FindStringSubmatch(id.UserAgent); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// versionMatches compares dotted versions by prefix, so "126" matches
// "126.0.6478.126" but not "1260.1".
func versionMatches(actual, want string) bool {
	return actual == want || strings.HasPrefix(actual, want+".")
}
