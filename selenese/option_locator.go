package selenese

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type OptionLocatorKind int

const (
	OptionRegexp OptionLocatorKind = iota
	OptionLabel
	OptionValue
	OptionIndex
	OptionID
)

func (k OptionLocatorKind) String() string {
	switch k {
	case OptionRegexp:
		return "regexp"
	case OptionLabel:
		return "label"
	case OptionValue:
		return "value"
	case OptionIndex:
		return "index"
	case OptionID:
		return "id"
	default:
		return fmt.Sprintf("OptionLocatorKind(%d)", int(k))
	}
}

// Option describes one <option> of a <select> element.
type Option struct {
	// Index is the option's offset from zero within the select, the
	// definition Selenium IDE documents for index= locators.
	Index int
	Label string
	Value string
	ID    string
}

// OptionLocator selects an option within a <select> element.
type OptionLocator struct {
	Kind  OptionLocatorKind
	Value string
	Index int
	Raw   string

	pattern *regexp.Regexp
}

type optionPattern struct {
	kind OptionLocatorKind
	re   *regexp.Regexp
}

// label=regexp: must be tried before label=, which also matches it.
var optionLocatorPatterns = []optionPattern{
	{OptionRegexp, regexp.MustCompile(`^label=regexp:(.*)$`)},
	{OptionLabel, regexp.MustCompile(`^label=(.*)$`)},
	{OptionValue, regexp.MustCompile(`^value=(.*)$`)},
	{OptionIndex, regexp.MustCompile(`^index=([0-9]+)$`)},
	{OptionID, regexp.MustCompile(`^id=(.*)$`)},
}

func ParseOptionLocator(raw string) (OptionLocator, error) {
	for _, p := range optionLocatorPatterns {
		m := p.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		loc := OptionLocator{Kind: p.kind, Value: m[1], Raw: raw}
		switch p.kind {
		case OptionRegexp:
			re, err := regexp.Compile(m[1])
			if err != nil {
				return OptionLocator{}, &InvalidArgumentError{Argument: raw, Reason: err.Error()}
			}
			loc.pattern = re
		case OptionIndex:
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				return OptionLocator{}, &InvalidArgumentError{Argument: raw, Reason: err.Error()}
			}
			loc.Index = idx
		}
		return loc, nil
	}
	return OptionLocator{}, &InvalidArgumentError{Argument: raw, Reason: "not a valid option locator"}
}

// Matches reports whether o is selected by the locator. Labels are compared
// after whitespace normalization.
func (l OptionLocator) Matches(o Option) bool {
	switch l.Kind {
	case OptionRegexp:
		return l.pattern.MatchString(normalizeSpace(o.Label))
	case OptionLabel:
		return normalizeSpace(o.Label) == normalizeSpace(l.Value)
	case OptionValue:
		return o.Value == l.Value
	case OptionIndex:
		return o.Index == l.Index
	case OptionID:
		return o.ID == l.Value
	default:
		return false
	}
}

// Find returns the position in options of the single matching option.
func (l OptionLocator) Find(options []Option) (int, error) {
	found, count := -1, 0
	for i, o := range options {
		if l.Matches(o) {
			if found < 0 {
				found = i
			}
			count++
		}
	}
	switch count {
	case 0:
		return -1, &ElementNotFoundError{Locator: l.Raw}
	case 1:
		return found, nil
	default:
		return -1, &TooManyElementsError{Locator: l.Raw, Count: count}
	}
}

func (l OptionLocator) String() string {
	return l.Raw
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
