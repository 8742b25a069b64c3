// Package browser drives remote Chromium browsers over the DevTools
// protocol.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/chromedp/chromedp"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-selenese/selenese"
	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// Dialer opens one browser tab per session on a remote DevTools endpoint.
type Dialer struct {
	url string
	log log.Logger
}

var _ selenese.Dialer = (*Dialer)(nil)

// NewDialer returns a dialer for the DevTools endpoint at host:port.
func NewDialer(host string, port int, logger log.Logger) *Dialer {
	return &Dialer{
		url: "http://" + net.JoinHostPort(host, strconv.Itoa(port)),
		log: logger,
	}
}

// URL returns the DevTools endpoint the dialer connects to.
func (d *Dialer) URL() string {
	return d.url
}

func (d *Dialer) Dial(ctx context.Context, caps types.Capabilities) (selenese.Session, error) {
	// The session outlives the dial call.
	parent := context.WithoutCancel(ctx)
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(parent, d.url)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	// The first Run allocates the tab and must not carry a deadline, so the
	// caller's cancellation is forwarded by hand.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	stop()
	if err != nil {
		cancel()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("dial interrupted: %w", context.Cause(ctx))
		}
		return nil, fmt.Errorf("%w: %s: %w", selenese.ErrUnreachable, d.url, err)
	}

	s := &Session{
		id:     string(chromedp.FromContext(tabCtx).Target.TargetID),
		ctx:    tabCtx,
		cancel: cancel,
	}
	s.log = d.log.New("session", s.id)

	identity, err := s.identity(ctx)
	if err != nil {
		_ = s.Quit(ctx)
		return nil, fmt.Errorf("failed to identify browser: %w", err)
	}
	if err := identity.Matches(caps); err != nil {
		_ = s.Quit(ctx)
		return nil, fmt.Errorf("%w: %s: %w", selenese.ErrCapabilitiesNotFound, caps, err)
	}
	s.log.Debug("Browser session opened", "userAgent", identity.UserAgent, "platform", identity.Platform)
	return s, nil
}

func (s *Session) identity(ctx context.Context) (Identity, error) {
	var id Identity
	v, err := s.ExecuteScript(ctx, identityScript)
	if err != nil {
		return id, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return id, err
	}
	if err := json.Unmarshal(raw, &id); err != nil {
		return id, err
	}
	if id.UserAgent == "" {
		return id, errors.New("browser reported an empty user agent")
	}
	return id, nil
}
