package selenese

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

const (
	DefaultWaitTimeout  = 30 * time.Minute
	DefaultPollInterval = 100 * time.Millisecond
)

// InterpreterConfig configures an Interpreter.
type InterpreterConfig struct {
	// BaseURL is prepended to the argument of open.
	BaseURL string
	// WaitTimeout bounds every waitFor* action.
	WaitTimeout time.Duration
	// PollInterval is the delay between two evaluations of a waitFor*
	// condition and between two remote clock reads of pause.
	PollInterval time.Duration
	Log          log.Logger
}

type handler func(ctx context.Context, x *execution, args []string) error

// execution is the state one command runs against.
type execution struct {
	session Session
	vars    *Variables
	log     log.Logger
}

// Interpreter executes commands against a Session. It holds no per-session
// state and is safe for concurrent use.
type Interpreter struct {
	cfg      InterpreterConfig
	handlers map[string]handler
}

func NewInterpreter(cfg InterpreterConfig) *Interpreter {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	in := &Interpreter{cfg: cfg}
	in.handlers = map[string]handler{
		"assertElementNotPresent":  in.assertElementNotPresent,
		"assertElementPresent":     in.assertElementPresent,
		"assertEval":               in.assertEval,
		"assertLocation":           in.assertLocation,
		"assertNotVisible":         in.assertNotVisible,
		"assertText":               in.assertText,
		"assertVisible":            in.assertVisible,
		"check":                    in.check,
		"click":                    in.click,
		"dragAndDropToObject":      in.dragAndDropToObject,
		"echo":                     in.echo,
		"getEval":                  in.getEval,
		"open":                     in.open,
		"pause":                    in.pause,
		"select":                   in.selectOption,
		"storeEval":                in.storeEval,
		"type":                     in.typeText,
		"uncheck":                  in.uncheck,
		"waitForElementNotPresent": in.waitForElementNotPresent,
		"waitForElementPresent":    in.waitForElementPresent,
		"waitForEval":              in.waitForEval,
		"waitForLocation":          in.waitForLocation,
		"waitForNotEval":           in.waitForNotEval,
		"waitForNotLocation":       in.waitForNotLocation,
		"waitForVisible":           in.waitForVisible,
	}
	return in
}

// Execute runs cmd against session, resolving its arguments against vars.
func (in *Interpreter) Execute(ctx context.Context, session Session, vars *Variables, cmd *Command) error {
	h, ok := in.handlers[cmd.Name()]
	if !ok {
		return &UnknownActionError{Name: cmd.Name()}
	}
	args, err := cmd.Resolve(vars)
	if err != nil {
		return err
	}
	x := &execution{
		session: session,
		vars:    vars,
		log:     in.cfg.Log.New("session", session.ID(), "action", cmd.Name()),
	}
	return h(ctx, x, args)
}

// Supports reports whether the interpreter has a handler for the action.
func (in *Interpreter) Supports(name string) bool {
	_, ok := in.handlers[name]
	return ok
}

// Navigation

func (in *Interpreter) open(ctx context.Context, x *execution, args []string) error {
	return x.session.Navigate(ctx, JoinURL(in.cfg.BaseURL, args[0]))
}

// JoinURL joins base and path with exactly one slash.
func JoinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func (in *Interpreter) assertLocation(ctx context.Context, x *execution, args []string) error {
	p, err := ParseMatchPattern(args[0])
	if err != nil {
		return err
	}
	return locationMatches(ctx, x.session, p, true)
}

func (in *Interpreter) waitForLocation(ctx context.Context, x *execution, args []string) error {
	p, err := ParseMatchPattern(args[0])
	if err != nil {
		return err
	}
	return in.waitFor(ctx, func(ctx context.Context) error {
		return locationMatches(ctx, x.session, p, true)
	})
}

func (in *Interpreter) waitForNotLocation(ctx context.Context, x *execution, args []string) error {
	p, err := ParseMatchPattern(args[0])
	if err != nil {
		return err
	}
	return in.waitFor(ctx, func(ctx context.Context) error {
		return locationMatches(ctx, x.session, p, false)
	})
}

func locationMatches(ctx context.Context, s Session, p *MatchPattern, want bool) error {
	url, err := s.CurrentURL(ctx)
	if err != nil {
		return err
	}
	return matchValue(url, p, want)
}

// Element presence and visibility

func (in *Interpreter) assertElementPresent(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	return elementPresent(ctx, x.session, loc, true)
}

func (in *Interpreter) assertElementNotPresent(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	return elementPresent(ctx, x.session, loc, false)
}

func (in *Interpreter) waitForElementPresent(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	return in.waitFor(ctx, func(ctx context.Context) error {
		return elementPresent(ctx, x.session, loc, true)
	})
}

func (in *Interpreter) waitForElementNotPresent(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	return in.waitFor(ctx, func(ctx context.Context) error {
		return elementPresent(ctx, x.session, loc, false)
	})
}

func elementPresent(ctx context.Context, s Session, loc ElementLocator, want bool) error {
	els, err := s.FindElements(ctx, loc)
	if err != nil {
		return err
	}
	switch {
	case want && len(els) == 0:
		return &ElementNotFoundError{Locator: loc.Raw}
	case !want && len(els) > 0:
		return assertionf("element %s is present", loc.Raw)
	}
	return nil
}

func (in *Interpreter) assertVisible(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	return elementVisible(ctx, x.session, loc, true)
}

func (in *Interpreter) assertNotVisible(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	return elementVisible(ctx, x.session, loc, false)
}

func (in *Interpreter) waitForVisible(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	return in.waitFor(ctx, func(ctx context.Context) error {
		return anyVisible(ctx, x.session, loc)
	})
}

// anyVisible holds once at least one element matched by loc is displayed.
func anyVisible(ctx context.Context, s Session, loc ElementLocator) error {
	els, err := s.FindElements(ctx, loc)
	if err != nil {
		return err
	}
	if len(els) == 0 {
		return &ElementNotFoundError{Locator: loc.Raw}
	}
	for _, el := range els {
		visible, err := el.IsDisplayed(ctx)
		if err != nil {
			return err
		}
		if visible {
			return nil
		}
	}
	return assertionf("no element matching %s is visible", loc.Raw)
}

func elementVisible(ctx context.Context, s Session, loc ElementLocator, want bool) error {
	el, err := findElement(ctx, s, loc)
	if err != nil {
		return err
	}
	visible, err := el.IsDisplayed(ctx)
	if err != nil {
		return err
	}
	if visible != want {
		if want {
			return assertionf("element %s is not visible", loc.Raw)
		}
		return assertionf("element %s is visible", loc.Raw)
	}
	return nil
}

func (in *Interpreter) assertText(ctx context.Context, x *execution, args []string) error {
	loc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	p, err := ParseMatchPattern(args[1])
	if err != nil {
		return err
	}
	el, err := findElement(ctx, x.session, loc)
	if err != nil {
		return err
	}
	text, err := el.Text(ctx)
	if err != nil {
		return err
	}
	return matchValue(text, p, true)
}

// Input

func (in *Interpreter) click(ctx context.Context, x *execution, args []string) error {
	return in.eachVisible(ctx, x, args[0], func(el Element) error {
		return el.Click(ctx)
	})
}

func (in *Interpreter) check(ctx context.Context, x *execution, args []string) error {
	return in.eachVisible(ctx, x, args[0], func(el Element) error {
		return setChecked(ctx, el, true)
	})
}

func (in *Interpreter) uncheck(ctx context.Context, x *execution, args []string) error {
	return in.eachVisible(ctx, x, args[0], func(el Element) error {
		return setChecked(ctx, el, false)
	})
}

func setChecked(ctx context.Context, el Element, want bool) error {
	checked, err := el.IsSelected(ctx)
	if err != nil {
		return err
	}
	if checked == want {
		return nil
	}
	return el.Click(ctx)
}

func (in *Interpreter) typeText(ctx context.Context, x *execution, args []string) error {
	return in.eachVisible(ctx, x, args[0], func(el Element) error {
		enabled, err := el.IsEnabled(ctx)
		if err != nil {
			return err
		}
		if !enabled {
			x.log.Warn("Element is disabled, not typing", "locator", args[0])
			return nil
		}
		if err := el.Clear(ctx); err != nil {
			return err
		}
		return el.SendKeys(ctx, args[1])
	})
}

func (in *Interpreter) selectOption(ctx context.Context, x *execution, args []string) error {
	optLoc, err := ParseOptionLocator(args[1])
	if err != nil {
		return err
	}
	return in.eachVisible(ctx, x, args[0], func(el Element) error {
		options, err := el.Options(ctx)
		if err != nil {
			return err
		}
		idx, err := optLoc.Find(options)
		if err != nil {
			return fmt.Errorf("option of %s: %w", args[0], err)
		}
		return el.SelectOption(ctx, idx)
	})
}

func (in *Interpreter) dragAndDropToObject(ctx context.Context, x *execution, args []string) error {
	srcLoc, err := ParseElementLocator(args[0])
	if err != nil {
		return err
	}
	dstLoc, err := ParseElementLocator(args[1])
	if err != nil {
		return err
	}
	src, err := findElement(ctx, x.session, srcLoc)
	if err != nil {
		return err
	}
	dst, err := findElement(ctx, x.session, dstLoc)
	if err != nil {
		return err
	}
	return src.DragTo(ctx, dst)
}

// eachVisible applies fn to every visible element matched by the locator.
// Locators may legitimately match several elements across layouts, so more
// than one match is not an error.
func (in *Interpreter) eachVisible(ctx context.Context, x *execution, raw string, fn func(Element) error) error {
	loc, err := ParseElementLocator(raw)
	if err != nil {
		return err
	}
	els, err := findElements(ctx, x, loc)
	if err != nil {
		return err
	}
	acted := 0
	for _, el := range els {
		visible, err := el.IsDisplayed(ctx)
		if err != nil {
			return err
		}
		if !visible {
			continue
		}
		if err := fn(el); err != nil {
			return err
		}
		acted++
	}
	if acted == 0 {
		x.log.Warn("No visible element matches locator", "locator", raw, "matched", len(els))
	}
	return nil
}

func findElements(ctx context.Context, x *execution, loc ElementLocator) ([]Element, error) {
	els, err := x.session.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(els) == 0 {
		return nil, &ElementNotFoundError{Locator: loc.Raw}
	}
	if len(els) > 1 {
		x.log.Debug("Locator matches several elements", "locator", loc.Raw, "count", len(els))
	}
	return els, nil
}

func findElement(ctx context.Context, s Session, loc ElementLocator) (Element, error) {
	els, err := s.FindElements(ctx, loc)
	if err != nil {
		return nil, err
	}
	switch len(els) {
	case 0:
		return nil, &ElementNotFoundError{Locator: loc.Raw}
	case 1:
		return els[0], nil
	default:
		return nil, &TooManyElementsError{Locator: loc.Raw, Count: len(els)}
	}
}

// Scripts

func (in *Interpreter) echo(ctx context.Context, x *execution, args []string) error {
	x.log.Info("echo", "message", args[0])
	return nil
}

func (in *Interpreter) getEval(ctx context.Context, x *execution, args []string) error {
	v, err := Eval(ctx, x.session, args[0])
	if err != nil {
		return err
	}
	x.log.Info("getEval", "script", args[0], "result", v)
	return nil
}

func (in *Interpreter) storeEval(ctx context.Context, x *execution, args []string) error {
	v, err := Eval(ctx, x.session, args[0])
	if err != nil {
		return err
	}
	x.vars.Set(args[1], v)
	x.log.Debug("Stored variable", "name", args[1], "value", v)
	return nil
}

func (in *Interpreter) assertEval(ctx context.Context, x *execution, args []string) error {
	p, err := ParseMatchPattern(args[1])
	if err != nil {
		return err
	}
	return evalMatches(ctx, x.session, args[0], p, true)
}

func (in *Interpreter) waitForEval(ctx context.Context, x *execution, args []string) error {
	p, err := ParseMatchPattern(args[1])
	if err != nil {
		return err
	}
	return in.waitFor(ctx, func(ctx context.Context) error {
		return evalMatches(ctx, x.session, args[0], p, true)
	})
}

func (in *Interpreter) waitForNotEval(ctx context.Context, x *execution, args []string) error {
	p, err := ParseMatchPattern(args[1])
	if err != nil {
		return err
	}
	return in.waitFor(ctx, func(ctx context.Context) error {
		return evalMatches(ctx, x.session, args[0], p, false)
	})
}

func evalMatches(ctx context.Context, s Session, script string, p *MatchPattern, want bool) error {
	v, err := Eval(ctx, s, script)
	if err != nil {
		return err
	}
	return matchValue(v, p, want)
}

// Eval evaluates a JavaScript expression remotely and returns its string form.
func Eval(ctx context.Context, s Session, script string) (string, error) {
	expr := strings.TrimRight(strings.TrimSpace(script), ";")
	v, err := s.ExecuteScript(ctx, "return ("+expr+");")
	if err != nil {
		return "", err
	}
	return Stringify(v), nil
}

// Stringify renders a decoded script result the way JavaScript would
// concatenate it to a string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func matchValue(actual string, p *MatchPattern, want bool) error {
	if p.Matches(actual) == want {
		return nil
	}
	if want {
		return assertionf("%q does not match %s", actual, p)
	}
	return assertionf("%q matches %s", actual, p)
}

// Timing

// pause blocks until the remote browser clock has advanced by the requested
// number of milliseconds.
func (in *Interpreter) pause(ctx context.Context, x *execution, args []string) error {
	ms, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil || ms < 0 {
		return &InvalidArgumentError{Argument: args[0], Reason: "pause expects a non-negative number of milliseconds"}
	}
	start, err := remoteNow(ctx, x.session)
	if err != nil {
		return err
	}
	for {
		now, err := remoteNow(ctx, x.session)
		if err != nil {
			return err
		}
		remaining := ms - (now - start)
		if remaining <= 0 {
			return nil
		}
		wait := min(time.Duration(remaining)*time.Millisecond, in.cfg.PollInterval)
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func remoteNow(ctx context.Context, s Session) (int64, error) {
	v, err := s.ExecuteScript(ctx, "return new Date().getTime();")
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case json.Number:
		return t.Int64()
	default:
		return 0, fmt.Errorf("unexpected remote time value %v (%T)", v, v)
	}
}

// waitFor polls check until it succeeds or WaitTimeout elapses. Only
// assertion-class errors are retried.
func (in *Interpreter) waitFor(ctx context.Context, check func(context.Context) error) error {
	deadline := time.Now().Add(in.cfg.WaitTimeout)
	for {
		err := check(ctx)
		if err == nil {
			return nil
		}
		if Classify(err) != types.CauseAssertion {
			return err
		}
		if !time.Now().Before(deadline) {
			return &WaitTimeoutError{Timeout: in.cfg.WaitTimeout, Last: err}
		}
		if serr := sleep(ctx, in.cfg.PollInterval); serr != nil {
			return fmt.Errorf("wait interrupted: %w", serr)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
