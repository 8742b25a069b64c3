package selenese

import (
	"fmt"
	"regexp"
)

// maxSubstitutionPasses bounds ${var} expansion so self-referencing
// values cannot loop forever.
const maxSubstitutionPasses = 64

var placeholderRegex = regexp.MustCompile(`\$\{([^{}]*)\}`)

// Variables is the variable store of one browser session. It is only used
// from the goroutine driving that session.
type Variables struct {
	values map[string]string
}

func NewVariables() *Variables {
	return &Variables{values: make(map[string]string)}
}

func (v *Variables) Set(name, value string) {
	v.values[name] = value
}

func (v *Variables) Get(name string) (string, bool) {
	val, ok := v.values[name]
	return val, ok
}

func (v *Variables) Len() int {
	return len(v.values)
}

// Substitute replaces every ${name} placeholder in s, repeating until no
// placeholder is left so that values may themselves reference variables.
func (v *Variables) Substitute(s string) (string, error) {
	orig := s
	for pass := 0; pass < maxSubstitutionPasses; pass++ {
		if !placeholderRegex.MatchString(s) {
			return s, nil
		}
		var missing string
		s = placeholderRegex.ReplaceAllStringFunc(s, func(m string) string {
			name := placeholderRegex.FindStringSubmatch(m)[1]
			val, ok := v.values[name]
			if !ok {
				if missing == "" {
					missing = name
				}
				return m
			}
			return val
		})
		if missing != "" {
			return "", &InvalidArgumentError{Argument: orig, Reason: fmt.Sprintf("variable %q is not set", missing)}
		}
	}
	return "", &InvalidArgumentError{Argument: orig, Reason: "variable substitution does not terminate"}
}
