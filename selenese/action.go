package selenese

import "sort"

// Action is a Selenese verb and the exact number of arguments it takes.
type Action struct {
	Name          string
	ArgumentCount int
}

var actions = []Action{
	{"assertElementNotPresent", 1},
	{"assertElementPresent", 1},
	{"assertEval", 2},
	{"assertLocation", 1},
	{"assertNotVisible", 1},
	{"assertText", 2},
	{"assertVisible", 1},
	{"check", 1},
	{"click", 1},
	{"dragAndDropToObject", 2},
	{"echo", 1},
	{"getEval", 1},
	{"open", 1},
	{"pause", 1},
	{"select", 2},
	{"storeEval", 2},
	{"type", 2},
	{"uncheck", 1},
	{"waitForElementNotPresent", 1},
	{"waitForElementPresent", 1},
	{"waitForEval", 2},
	{"waitForLocation", 1},
	{"waitForNotEval", 2},
	{"waitForNotLocation", 1},
	{"waitForVisible", 1},
}

var actionsByName = func() map[string]Action {
	m := make(map[string]Action, len(actions))
	for _, a := range actions {
		m[a.Name] = a
	}
	return m
}()

// LookupAction returns the action with the given name.
func LookupAction(name string) (Action, error) {
	a, ok := actionsByName[name]
	if !ok {
		return Action{}, &UnknownActionError{Name: name}
	}
	return a, nil
}

// Actions returns every supported action sorted by name.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
