package tupw

import "errors"

// Kind classifies a failure the way callers need to branch on it, per
// the five error kinds this package can produce.
type Kind string

const (
	// KindIllegalArgument covers malformed input: bad lengths, bad
	// entropy, malformed tokens, out-of-range packed integers, invalid
	// Base32/Base64 characters, malformed blinding headers, unknown
	// format ids.
	KindIllegalArgument Kind = "illegal-argument"
	// KindDataIntegrity means the authentication tag did not match.
	KindDataIntegrity Kind = "data-integrity"
	// KindCharacterCoding means decrypted plaintext was requested as
	// text but is not valid UTF-8.
	KindCharacterCoding Kind = "character-coding"
	// KindDestroyed means an engine or masked container was used after
	// destroy() — a lifecycle bug in the caller.
	KindDestroyed Kind = "destroyed"
	// KindCryptographicInvariant means a lower-level crypto primitive
	// reported an impossible error. Must never occur against a
	// conforming primitive; wrapped and surfaced unchanged.
	KindCryptographicInvariant Kind = "cryptographic-invariant"
)

// Error is the single error type this package returns. Callers branch on
// Kind rather than on Go types.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is lets callers write errors.Is(err, &tupw.Error{Kind: tupw.KindDataIntegrity})
// by comparing Kind alone, ignoring Message and cause. The more direct
// spelling for most callers is IsKind(err, kind).
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func newErr(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// IsKind reports whether err is a *Error of the given Kind, unwrapping
// as needed.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
