// Package fault defines the typed error taxonomy used across the
// orchestration core. Errors are classified at the source (HTTP status,
// precondition checks) so callers never have to sniff message strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy decisions.
type Kind int

const (
	KindUnknown Kind = iota

	// KindCredentialInvalid is a fatal pre-flight failure: stored Partner
	// credentials are missing, expired, or rejected.
	KindCredentialInvalid

	// KindInvalidArgument is a caller error, fatal before any remote call.
	KindInvalidArgument

	// KindTransient covers network errors and 5xx responses; retried a
	// small fixed number of times before surfacing.
	KindTransient

	// KindPermanent covers 4xx/validation responses; surfaced immediately.
	KindPermanent

	// KindPollTimeout means the local poll loop gave up while the remote
	// job may still be running. Ambiguous, not a definitive failure.
	KindPollTimeout

	// KindActivationTimeout is a per-item activation timeout, isolated to
	// that item.
	KindActivationTimeout

	// KindNoFailuresToRetry is the retry coordinator's precondition error.
	KindNoFailuresToRetry
)

func (k Kind) String() string {
	switch k {
	case KindCredentialInvalid:
		return "credential_invalid"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindPollTimeout:
		return "poll_timeout"
	case KindActivationTimeout:
		return "activation_timeout"
	case KindNoFailuresToRetry:
		return "no_failures_to_retry"
	default:
		return "unknown"
	}
}

// Stable codes surfaced to the UI layer and recorded on reports.
const (
	CodeCredentialsMissing = "CredentialsMissing"
	CodeCredentialsExpired = "CredentialsExpired"
	CodeInvalidArgument    = "InvalidArgument"
	CodeNetworkError       = "NetworkError"
	CodePartnerUnavailable = "PartnerUnavailable"
	CodeCircuitOpen        = "CircuitOpen"
	CodePollTimeout        = "PollTimeout"
	CodeActivationTimeout  = "ActivationTimeout"
	CodeNoFailuresToRetry  = "NoFailuresToRetry"
	CodeSubmitFailed       = "SubmitFailed"
	CodeRunCanceled        = "RunCanceled"
)

// Error carries a kind, a stable code and a human-readable message.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, code, format string, args ...any) *Error {
	return &Error{Kind: kind, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// KindOf returns the kind of err, or KindUnknown when err carries no
// classification. Unwraps through fmt.Errorf chains.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// CodeOf returns the stable code of err, or empty when unclassified.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
