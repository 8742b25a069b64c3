package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-selenese/selenese"
)

// Session is one browser tab.
type Session struct {
	id     string
	ctx    context.Context // tab context, cancelled on Quit
	cancel context.CancelFunc
	log    log.Logger
}

var _ selenese.Session = (*Session)(nil)

func (s *Session) ID() string {
	return s.id
}

// run executes actions on the tab, aborting them when ctx is done without
// closing the tab.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if s.ctx.Err() != nil {
		return fmt.Errorf("%w: %w", selenese.ErrSessionDead, err)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", err, context.Cause(ctx))
	}
	return err
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := s.run(ctx, chromedp.Location(&url))
	return url, err
}

func (s *Session) FindElements(ctx context.Context, loc selenese.ElementLocator) ([]selenese.Element, error) {
	sel, by, err := query(loc)
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	out := make([]selenese.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{session: s, node: n})
	}
	return out, nil
}

// scriptWrapper runs a script as a function body and returns its result
// JSON encoded, mapping undefined to null.
const scriptWrapper = `(function() {
  var r = (function() { %s }).apply(null, %s);
  var s = JSON.stringify(r === undefined ? null : r);
  return s === undefined ? "null" : s;
})()`

func (s *Session) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	encodedArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("script arguments: %w", err)
	}
	var encoded string
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(scriptWrapper, script, encodedArgs), &encoded)); err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(encoded), &v); err != nil {
		return nil, fmt.Errorf("malformed script result %q: %w", encoded, err)
	}
	return v, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Quit closes the tab and releases the connection. Closing an already
// closed session is not an error.
func (s *Session) Quit(ctx context.Context) error {
	if s.ctx.Err() != nil {
		s.cancel()
		return nil
	}
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close tab %s: %w", s.id, err)
	}
	return nil
}

// Element is a DOM node of a Session.
type Element struct {
	session *Session
	node    *cdp.Node
}

var _ selenese.Element = (*Element)(nil)

// call invokes fn with this bound to the element and decodes its result
// into res, which may be nil.
func (e *Element) call(ctx context.Context, fn string, res any, args ...*runtime.CallArgument) error {
	return e.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.BackendNodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node: %w", err)
		}
		result, exception, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithArguments(args).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exception != nil {
			return exception
		}
		if res == nil || result == nil || len(result.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(result.Value), res)
	}))
}

func (e *Element) bool(ctx context.Context, fn string) (bool, error) {
	var b bool
	err := e.call(ctx, fn, &b)
	return b, err
}

func (e *Element) Click(ctx context.Context) error {
	return e.call(ctx, `function() { this.scrollIntoView({block: "center"}); this.click(); }`, nil)
}

func (e *Element) Clear(ctx context.Context) error {
	return e.call(ctx, `function() {
  this.value = "";
  this.dispatchEvent(new Event("input", {bubbles: true}));
  this.dispatchEvent(new Event("change", {bubbles: true}));
}`, nil)
}

func (e *Element) SendKeys(ctx context.Context, keys string) error {
	if err := e.call(ctx, `function() { this.focus(); }`, nil); err != nil {
		return err
	}
	if err := e.session.run(ctx, input.InsertText(keys)); err != nil {
		return err
	}
	return e.call(ctx, `function() { this.dispatchEvent(new Event("change", {bubbles: true})); }`, nil)
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.call(ctx, `function() { return this.innerText !== undefined ? this.innerText : this.textContent; }`, &text)
	return strings.TrimSpace(text), err
}

func (e *Element) IsDisplayed(ctx context.Context) (bool, error) {
	return e.bool(ctx, `function() {
  var style = window.getComputedStyle(this);
  if (style.visibility === "hidden" || style.display === "none") { return false; }
  return !!(this.offsetWidth || this.offsetHeight || this.getClientRects().length);
}`)
}

func (e *Element) IsEnabled(ctx context.Context) (bool, error) {
	return e.bool(ctx, `function() { return !this.disabled; }`)
}

func (e *Element) IsSelected(ctx context.Context) (bool, error) {
	return e.bool(ctx, `function() { return !!(this.checked || this.selected); }`)
}

func (e *Element) Options(ctx context.Context) ([]selenese.Option, error) {
	var raw []struct {
		Label string `json:"label"`
		Value string `json:"value"`
		ID    string `json:"id"`
	}
	err := e.call(ctx, `function() {
  return Array.prototype.map.call(this.options || [], function(o) {
    return {label: o.label || o.text, value: o.value, id: o.id};
  });
}`, &raw)
	if err != nil {
		return nil, err
	}
	out := make([]selenese.Option, len(raw))
	for i, o := range raw {
		out[i] = selenese.Option{Index: i, Label: o.Label, Value: o.Value, ID: o.ID}
	}
	return out, nil
}

func (e *Element) SelectOption(ctx context.Context, index int) error {
	return e.call(ctx, fmt.Sprintf(`function() {
  this.selectedIndex = %d;
  this.dispatchEvent(new Event("input", {bubbles: true}));
  this.dispatchEvent(new Event("change", {bubbles: true}));
}`, index), nil)
}

// DragTo presses the mouse on the element's center, moves to the target's
// center and releases it there.
func (e *Element) DragTo(ctx context.Context, target selenese.Element) error {
	t, ok := target.(*Element)
	if !ok {
		return fmt.Errorf("cannot drag onto %T", target)
	}
	return e.session.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(e.node.BackendNodeID).Do(ctx); err != nil {
			return err
		}
		fromX, fromY, err := center(ctx, e.node)
		if err != nil {
			return err
		}
		toX, toY, err := center(ctx, t.node)
		if err != nil {
			return err
		}
		steps := []*input.DispatchMouseEventParams{
			input.DispatchMouseEvent(input.MouseMoved, fromX, fromY),
			input.DispatchMouseEvent(input.MousePressed, fromX, fromY).WithButton(input.Left).WithClickCount(1),
			input.DispatchMouseEvent(input.MouseMoved, (fromX+toX)/2, (fromY+toY)/2).WithButton(input.Left),
			input.DispatchMouseEvent(input.MouseMoved, toX, toY).WithButton(input.Left),
			input.DispatchMouseEvent(input.MouseReleased, toX, toY).WithButton(input.Left).WithClickCount(1),
		}
		for _, step := range steps {
			if err := step.Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}

func center(ctx context.Context, n *cdp.Node) (float64, float64, error) {
	box, err := dom.GetBoxModel().WithBackendNodeID(n.BackendNodeID).Do(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("box model: %w", err)
	}
	return quadCenter(box.Content)
}

func quadCenter(q dom.Quad) (float64, float64, error) {
	if len(q) != 8 {
		return 0, 0, fmt.Errorf("element has no layout box")
	}
	var x, y float64
	for i := 0; i < len(q); i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4, nil
}
