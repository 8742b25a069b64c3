package selenese

import (
	"context"

	"github.com/ethereum-optimism/infra/op-selenese/types"
)

// Session is one live remote browser.
type Session interface {
	// ID returns the remote session identifier.
	ID() string
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	FindElements(ctx context.Context, loc ElementLocator) ([]Element, error)
	// ExecuteScript runs script as the body of a function and returns its
	// result decoded from JSON.
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	Quit(ctx context.Context) error
}

// Element is a handle on one page element of a Session.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, keys string) error
	Text(ctx context.Context) (string, error)
	IsDisplayed(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	IsSelected(ctx context.Context) (bool, error)
	// Options lists the <option> children of a <select> element.
	Options(ctx context.Context) ([]Option, error)
	// SelectOption selects the option at the given position of Options.
	SelectOption(ctx context.Context, index int) error
	DragTo(ctx context.Context, target Element) error
}

// Dialer opens sessions on a remote browser server.
type Dialer interface {
	// Dial returns ErrUnreachable (wrapped) when the server cannot be
	// reached and ErrCapabilitiesNotFound when no browser matches caps.
	Dial(ctx context.Context, caps types.Capabilities) (Session, error)
}
