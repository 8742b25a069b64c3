package selenese

import (
	"fmt"
	"regexp"
)

type LocatorKind int

const (
	LocatorName LocatorKind = iota
	LocatorLink
	LocatorCSS
	LocatorXPath
	LocatorID
)

func (k LocatorKind) String() string {
	switch k {
	case LocatorName:
		return "name"
	case LocatorLink:
		return "link"
	case LocatorCSS:
		return "css"
	case LocatorXPath:
		return "xpath"
	case LocatorID:
		return "id"
	default:
		return fmt.Sprintf("LocatorKind(%d)", int(k))
	}
}

// ElementLocator identifies one or more page elements.
type ElementLocator struct {
	Kind  LocatorKind
	Value string
	Raw   string
}

type locatorPattern struct {
	kind LocatorKind
	re   *regexp.Regexp
}

// The bare id form matches anything and must stay last.
var elementLocatorPatterns = []locatorPattern{
	{LocatorName, regexp.MustCompile(`^name=(.*)$`)},
	{LocatorLink, regexp.MustCompile(`^link=(.*)$`)},
	{LocatorCSS, regexp.MustCompile(`^css=(.*)$`)},
	{LocatorXPath, regexp.MustCompile(`^xpath=(.*)$`)},
	{LocatorXPath, regexp.MustCompile(`^(//.*)$`)},
	{LocatorID, regexp.MustCompile(`^(?:id(?:entifier)?=)?(.*)$`)},
}

// ParseElementLocator parses name=, link=, css=, xpath=, //..., id= and bare
// id locators, in that order of precedence.
func ParseElementLocator(raw string) (ElementLocator, error) {
	for _, p := range elementLocatorPatterns {
		if m := p.re.FindStringSubmatch(raw); m != nil {
			return ElementLocator{Kind: p.kind, Value: m[1], Raw: raw}, nil
		}
	}
	return ElementLocator{}, &InvalidArgumentError{Argument: raw, Reason: "not a valid element locator"}
}

func (l ElementLocator) String() string {
	return l.Kind.String() + "=" + l.Value
}
