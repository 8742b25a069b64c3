package types

import (
	"fmt"
	"slices"
	"strings"
)

// Platforms lists the platform names a remote browser may be requested on.
var Platforms = []string{"ANY", "WINDOWS", "XP", "VISTA", "MAC", "UNIX", "LINUX", "ANDROID"}

// Capabilities is a sparse description of a desired remote browser.
// Empty fields mean "any".
type Capabilities struct {
	Browser  string `yaml:"browser,omitempty" json:"browser,omitempty"`
	Version  string `yaml:"version,omitempty" json:"version,omitempty"`
	Platform string `yaml:"platform,omitempty" json:"platform,omitempty" validate:"omitempty,platform"`
}

// ParseCapabilities parses the "browser[:version[:platform]]" notation used on
// the command line.
func ParseCapabilities(s string) (Capabilities, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return Capabilities{}, fmt.Errorf("invalid capabilities %q: expected browser[:version[:platform]]", s)
	}
	var c Capabilities
	c.Browser = parts[0]
	if len(parts) > 1 {
		c.Version = parts[1]
	}
	if len(parts) > 2 {
		c.Platform = strings.ToUpper(parts[2])
	}
	if err := c.Check(); err != nil {
		return Capabilities{}, err
	}
	return c, nil
}

// Check reports whether the platform is a known one
func (c Capabilities) Check() error {
	if c.Platform != "" && !IsPlatform(c.Platform) {
		return fmt.Errorf("unknown platform %q, must be one of %s", c.Platform, strings.Join(Platforms, ", "))
	}
	return nil
}

func IsPlatform(p string) bool {
	return slices.Contains(Platforms, p)
}

func (c Capabilities) IsAny() bool {
	return c.Browser == "" && c.Version == "" && (c.Platform == "" || c.Platform == "ANY")
}

func (c Capabilities) String() string {
	s := "Any browser"
	if c.Browser != "" {
		s = c.Browser
	}
	if c.Version != "" {
		s += " " + c.Version
	}
	if c.Platform != "" {
		s += " on " + c.Platform
	}
	return s
}
