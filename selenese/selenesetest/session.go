// Package selenesetest provides in-memory Session and Dialer implementations
// for testing code that drives browsers.
package selenesetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum-optimism/infra/op-selenese/selenese"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

const clockScript = "return new Date().getTime();"

// Session is a scriptable in-memory browser session. Elements are keyed by
// the canonical locator string, e.g. "id=user" for both "user" and "id=user".
type Session struct {
	mu sync.Mutex

	SessionID string
	URL       string
	Elements  map[string][]*Element
	// Scripts maps exact script bodies to their results.
	Scripts map[string]any
	// ScriptFunc handles scripts missing from Scripts.
	ScriptFunc func(script string, args ...any) (any, error)
	// Clock returns the remote time in milliseconds.
	Clock func() int64
	// Err fails every call when set.
	Err error
	// QuitErr fails every Quit call when set.
	QuitErr       error
	ScreenshotPNG []byte
	PageErrors    []string

	Navigations []string
	quitCalls   atomic.Int32
}

func NewSession(id string) *Session {
	return &Session{
		SessionID: id,
		URL:       "about:blank",
		Elements:  make(map[string][]*Element),
		Scripts:   make(map[string]any),
	}
}

var _ selenese.Session = (*Session)(nil)

// Add registers elements under the canonical form of locator.
func (s *Session) Add(locator string, els ...*Element) *Session {
	loc, err := selenese.ParseElementLocator(locator)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range els {
		el.session = s
	}
	s.Elements[loc.String()] = append(s.Elements[loc.String()], els...)
	return s
}

// Remove drops every element registered under locator.
func (s *Session) Remove(locator string) {
	loc, err := selenese.ParseElementLocator(locator)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Elements, loc.String())
}

func (s *Session) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.URL = url
}

func (s *Session) QuitCalls() int {
	return int(s.quitCalls.Load())
}

func (s *Session) ID() string {
	return s.SessionID
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.URL = url
	s.Navigations = append(s.Navigations, url)
	return nil
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.URL, nil
}

func (s *Session) FindElements(ctx context.Context, loc selenese.ElementLocator) ([]selenese.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []selenese.Element
	for _, el := range s.Elements[loc.String()] {
		out = append(out, el)
	}
	return out, nil
}

func (s *Session) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	s.mu.Lock()
	if s.Err != nil {
		err := s.Err
		s.mu.Unlock()
		return nil, err
	}
	if v, ok := s.Scripts[script]; ok {
		s.mu.Unlock()
		return v, nil
	}
	fn, clock := s.ScriptFunc, s.Clock
	s.mu.Unlock()

	switch {
	case script == clockScript && clock != nil:
		return float64(clock()), nil
	case strings.Contains(script, "window.onerror"):
		return nil, nil
	case strings.Contains(script, "window.__seleneseErrors = [];"):
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]any, 0, len(s.PageErrors))
		for _, e := range s.PageErrors {
			out = append(out, e)
		}
		s.PageErrors = nil
		return out, nil
	case fn != nil:
		return fn(script, args...)
	}
	return nil, fmt.Errorf("unexpected script %q", script)
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	if s.ScreenshotPNG == nil {
		return nil, errors.New("no screenshot available")
	}
	return s.ScreenshotPNG, nil
}

func (s *Session) Quit(ctx context.Context) error {
	s.quitCalls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QuitErr
}

// Element is an in-memory page element.
type Element struct {
	mu sync.Mutex

	Label    string
	Hidden   bool
	Disabled bool
	Selected bool
	// Checkbox elements toggle Selected when clicked.
	Checkbox bool
	Content  string
	Value    string
	// OptionList holds the options of a select element.
	OptionList []selenese.Option
	Chosen     int
	OnClick    func(s *Session)

	Clicks    int
	DroppedOn *Element

	session *Session
}

var _ selenese.Element = (*Element)(nil)

func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	e.Clicks++
	if e.Checkbox {
		e.Selected = !e.Selected
	}
	onClick, s := e.OnClick, e.session
	e.mu.Unlock()
	if onClick != nil {
		onClick(s)
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Value = ""
	return nil
}

func (e *Element) SendKeys(ctx context.Context, keys string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Value += keys
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Content, nil
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Hidden, nil
}

// SetHidden changes the element's visibility while a test is running.
func (e *Element) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Hidden = hidden
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.Disabled, nil
}

func (e *Element) IsSelected(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Selected, nil
}

func (e *Element) Options(ctx context.Context) ([]selenese.Option, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.OptionList, nil
}

func (e *Element) SelectOption(ctx context.Context, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.OptionList) {
		return fmt.Errorf("option index %d out of range", index)
	}
	e.Chosen = index
	return nil
}

func (e *Element) DragTo(ctx context.Context, target selenese.Element) error {
	t, ok := target.(*Element)
	if !ok {
		return fmt.Errorf("unexpected element type %T", target)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.DroppedOn = t
	return nil
}

// Dialer hands out sessions built by New. Failures, if any, are returned
// by the first dial attempts in order.
type Dialer struct {
	mu       sync.Mutex
	New      func(caps types.Capabilities) *Session
	Failures []error

	attempts atomic.Int32
	sessions []*Session
}

var _ selenese.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(ctx context.Context, caps types.Capabilities) (selenese.Session, error) {
	d.attempts.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Failures) > 0 {
		err := d.Failures[0]
		d.Failures = d.Failures[1:]
		return nil, err
	}
	s := d.New(caps)
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *Dialer) Attempts() int {
	return int(d.attempts.Load())
}

func (d *Dialer) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Session, len(d.sessions))
	copy(out, d.sessions)
	return out
}
