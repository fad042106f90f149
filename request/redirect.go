package request

import (
	"net/http"

	"github.com/firasghr/wreqbridge/errs"
)

// maxRedirects bounds RedirectFollow, matching net/http's own historical
// default so behavior is unsurprising to callers used to plain http.Client.
const maxRedirects = 10

// checkRedirectFor maps a RedirectPolicy onto an http.Client.CheckRedirect
// function (§4.H.1).
func checkRedirectFor(policy RedirectPolicy) func(req *http.Request, via []*http.Request) error {
	switch policy {
	case RedirectManual:
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	case RedirectError:
		return func(req *http.Request, via []*http.Request) error {
			return errs.New(errs.RedirectDisabled, "redirect to "+req.URL.String()+" disabled by redirect policy", nil)
		}
	default: // RedirectFollow
		return func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		}
	}
}
