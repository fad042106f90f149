// Package errs defines the bridge-wide error-kind taxonomy (SPEC_FULL.md §7)
// shared by request, wsbridge, logger, and bridge so every
// failing operation carries a stable machine-checkable Kind alongside a
// human-readable, full-cause-chain message.
package errs

// Kind identifies which of the documented failure categories an Error
// belongs to (§7).
type Kind string

const (
	BadMethod          Kind = "bad-method"
	ClientBuild        Kind = "client-build"
	TransportNotFound  Kind = "transport-not-found"
	SessionNotFound    Kind = "session-not-found"
	BodyHandleNotFound Kind = "body-handle-not-found"
	RequestAborted     Kind = "request-aborted"
	SendFailed         Kind = "send-failed"
	RedirectDisabled   Kind = "redirect-disabled"
	WSUpgradeFailed    Kind = "ws-upgrade-failed"
	WSSendFailed       Kind = "ws-send-failed"
	WSCloseFailed      Kind = "ws-close-failed"
)

// Error pairs a Kind with a message and an optional cause, so callers on the
// FFI boundary (bridge package) can both inspect Kind programmatically and
// print the full cause chain for the host (§6: "error text is the full
// cause chain joined by ': '").
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// New builds an *Error. cause may be nil.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the Kind from err if it is (or wraps) an *Error, or ""
// otherwise.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
