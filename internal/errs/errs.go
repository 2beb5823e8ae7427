// Package errs implements the typed error taxonomy of the coordination
// fabric (see design §7). Errors carry a Kind so callers can branch on
// category without string matching, while still composing with
// github.com/pkg/errors for context wrapping and cause chains.
package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind categorizes an error for caller-visible handling policy.
type Kind int

const (
	Internal Kind = iota
	InvalidArgument
	AuthenticationFailed
	ReplayDetected
	SessionExpired
	SessionNotFound
	HandshakeFailed
	PreconditionFailed
	InsufficientFunds
	QuorumNotReached
	VotingClosed
	ProposalNotFound
	TimelockNotElapsed
	TimelockPaused
	Expired
	NotFound
	RateLimited
	Unavailable
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "InvalidArgument"
	case AuthenticationFailed:
		return "AuthenticationFailed"
	case ReplayDetected:
		return "ReplayDetected"
	case SessionExpired:
		return "SessionExpired"
	case SessionNotFound:
		return "SessionNotFound"
	case HandshakeFailed:
		return "HandshakeFailed"
	case PreconditionFailed:
		return "PreconditionFailed"
	case InsufficientFunds:
		return "InsufficientFunds"
	case QuorumNotReached:
		return "QuorumNotReached"
	case VotingClosed:
		return "VotingClosed"
	case ProposalNotFound:
		return "ProposalNotFound"
	case TimelockNotElapsed:
		return "TimelockNotElapsed"
	case TimelockPaused:
		return "TimelockPaused"
	case Expired:
		return "Expired"
	case NotFound:
		return "NotFound"
	case RateLimited:
		return "RateLimited"
	case Unavailable:
		return "Unavailable"
	case Cancelled:
		return "Cancelled"
	default:
		return "Internal"
	}
}

// Error is the concrete typed error value.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// KindOf extracts the taxonomy Kind from err, or Internal if err does not
// carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Internal
}

// Is reports whether err (or any error in its chain) has the given Kind.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// New builds a new Error of the given kind with a formatted message.
func New(k Kind, format string, args ...interface{}) error {
	return &Error{kind: k, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and message to an existing error, preserving it as
// the cause (retrievable via errors.Unwrap / errors.As).
func Wrap(k Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{kind: k, msg: fmt.Sprintf(format, args...), err: err}
}

// Retryable reports whether the kind is a transient category a caller may
// retry with bounded exponential backoff (Unavailable, RateLimited).
func Retryable(err error) bool {
	k := KindOf(err)
	return k == Unavailable || k == RateLimited
}

// Security reports whether the kind is a security-relevant category that
// must be surfaced to the caller AND logged as a security event.
func Security(err error) bool {
	k := KindOf(err)
	return k == AuthenticationFailed || k == ReplayDetected
}
