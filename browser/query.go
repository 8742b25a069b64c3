package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/ethereum-optimism/infra/op-selenese/selenese"
)

// query translates an element locator into a chromedp selector and the
// query option that interprets it.
func query(loc selenese.ElementLocator) (string, chromedp.QueryOption, error) {
	switch loc.Kind {
	case selenese.LocatorCSS:
		return loc.Value, chromedp.ByQueryAll, nil
	case selenese.LocatorXPath:
		return loc.Value, chromedp.BySearch, nil
	case selenese.LocatorID:
		return fmt.Sprintf("//*[@id=%s]", xpathLiteral(loc.Value)), chromedp.BySearch, nil
	case selenese.LocatorName:
		return fmt.Sprintf("//*[@name=%s]", xpathLiteral(loc.Value)), chromedp.BySearch, nil
	case selenese.LocatorLink:
		return fmt.Sprintf("//a[normalize-space(.)=%s]", xpathLiteral(strings.TrimSpace(loc.Value))), chromedp.BySearch, nil
	}
	return "", nil, &selenese.InvalidArgumentError{Argument: loc.Raw, Reason: "unsupported locator kind " + loc.Kind.String()}
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath has no escape
// sequences, so strings holding both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	var b strings.Builder
	b.WriteString("concat(")
	for i, p := range parts {
		if i > 0 {
			b.WriteString(`, '"', `)
		}
		b.WriteString(`"` + p + `"`)
	}
	b.WriteString(")")
	return b.String()
}
