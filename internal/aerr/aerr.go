// Package aerr defines the structured error taxonomy used across the
// discovery core. It replaces the free-form error strings of a typical
// C-style protocol implementation with a small Kind enum plus a wrapped
// cause, so callers can branch with errors.Is/As instead of substring
// matching on messages.
package aerr

import "fmt"

// Kind identifies which class of failure occurred. The comment on each
// constant below states the condition it covers; SPEC_FULL.md §7
// describes how kinds are represented and which conditions never
// become an Error.
type Kind int

const (
	// KindInvalidArgument covers a null/empty identifier, an oversized
	// identifier, or an oversized encoded response. Fatal, raised before
	// any socket is opened.
	KindInvalidArgument Kind = iota
	// KindSocketSetup covers create/bind/setsockopt failures.
	KindSocketSetup
	// KindIPv6Unsupported is returned on the discoverer's first IPv6
	// broadcast attempt.
	KindIPv6Unsupported
	// KindSend covers a responder sendto or discoverer broadcast sendto
	// failure. Fatal.
	KindSend
	// KindRecv covers a responder recvfrom failure that is not a timeout.
	// Fatal.
	KindRecv
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindSocketSetup:
		return "socket setup failure"
	case KindIPv6Unsupported:
		return "ipv6 multicast unsupported"
	case KindSend:
		return "send failure"
	case KindRecv:
		return "recv failure"
	default:
		return "unknown error"
	}
}

// Error is the structured error type returned by the wire, socket,
// responder, and discoverer packages for every fatal condition. Transient
// conditions (receive timeout, malformed datagram, peer name resolution
// failure) are handled locally and never surface as an Error; see
// SPEC_FULL.md §7.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Kind, allowing
// errors.Is(err, &aerr.Error{Kind: aerr.KindSend}) style checks —
// callers instead typically use errors.As to recover the Kind field
// directly.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
