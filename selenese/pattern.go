package selenese

import (
	"regexp"
	"strings"
)

type PatternKind int

const (
	PatternExact PatternKind = iota
	PatternGlob
	PatternRegexp
	PatternRegexpI
)

// MatchPattern is a compiled string-match pattern used by text, location and
// eval assertions.
type MatchPattern struct {
	Kind PatternKind
	Raw  string
	re   *regexp.Regexp
}

// ParseMatchPattern compiles regexp:, regexpi:, glob: and exact: patterns.
// A pattern with no prefix is exact.
func ParseMatchPattern(raw string) (*MatchPattern, error) {
	var (
		kind PatternKind
		expr string
	)
	switch {
	case strings.HasPrefix(raw, "regexp:"):
		kind, expr = PatternRegexp, strings.TrimPrefix(raw, "regexp:")
	case strings.HasPrefix(raw, "regexpi:"):
		kind, expr = PatternRegexpI, "(?i)"+strings.TrimPrefix(raw, "regexpi:")
	case strings.HasPrefix(raw, "glob:"):
		kind, expr = PatternGlob, globToRegexp(strings.TrimPrefix(raw, "glob:"))
	case strings.HasPrefix(raw, "exact:"):
		kind, expr = PatternExact, "^"+regexp.QuoteMeta(strings.TrimPrefix(raw, "exact:"))+"$"
	default:
		kind, expr = PatternExact, "^"+regexp.QuoteMeta(raw)+"$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &InvalidArgumentError{Argument: raw, Reason: err.Error()}
	}
	return &MatchPattern{Kind: kind, Raw: raw, re: re}, nil
}

// globToRegexp quotes everything but the * and ? wildcards.
func globToRegexp(glob string) string {
	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

// Matches reports whether s matches. regexp patterns search, the other
// kinds must match the whole string.
func (p *MatchPattern) Matches(s string) bool {
	return p.re.MatchString(s)
}

func (p *MatchPattern) String() string {
	return p.Raw
}
