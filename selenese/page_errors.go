package selenese

import "context"

const installErrorHookScript = `if (!window.__seleneseErrors) {
  window.__seleneseErrors = [];
  var previous = window.onerror;
  window.onerror = function(message, source, line) {
    window.__seleneseErrors.push(message + " (" + source + ":" + line + ")");
    return previous ? previous.apply(this, arguments) : false;
  };
}
return null;`

const collectErrorsScript = `var errors = window.__seleneseErrors || [];
window.__seleneseErrors = [];
return errors;`

// InstallErrorHook starts collecting uncaught JavaScript errors of the
// current page. It must be reinstalled after each navigation.
func InstallErrorHook(ctx context.Context, s Session) error {
	_, err := s.ExecuteScript(ctx, installErrorHookScript)
	return err
}

// CollectPageErrors returns and clears the JavaScript errors collected since
// the hook was installed.
func CollectPageErrors(ctx context.Context, s Session) ([]string, error) {
	v, err := s.ExecuteScript(ctx, collectErrorsScript)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		out = append(out, Stringify(e))
	}
	return out, nil
}
