package meetup

import (
	"errors"

	"travelquest/backend/internal/storage"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")

	// Business-rule refusals. Expected outcomes, shown to the user verbatim.
	ErrAlreadyPending        = errors.New("a verification request is already pending for this pair")
	ErrAlreadyAccepted       = errors.New("a verification request was already accepted for this pair")
	ErrRateLimited           = errors.New("verification request limit reached for this pair")
	ErrAlreadyResolved       = errors.New("verification request is already resolved")
	ErrConflictingAcceptance = errors.New("another verification request was already accepted for this pair")

	// Data-integrity failures.
	ErrProfileNotFound      = errors.New("profile not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrRequestNotFound      = errors.New("verification request not found")

	// ErrPairMismatch means a pair key resolved to a conversation of other
	// users. It maps to CodeInternal.
	ErrPairMismatch = errors.New("conversation does not belong to the pair")

	// ErrAborted means the store gave up after repeated conflicts. The
	// whole operation is safe to retry.
	ErrAborted = storage.ErrAborted
)

// Error codes, stable across releases. Clients and message catalogs key on
// them.
const (
	CodeInvalidArgument       = "InvalidArgument"
	CodeAlreadyPending        = "AlreadyPending"
	CodeAlreadyAccepted       = "AlreadyAccepted"
	CodeRateLimited           = "RateLimited"
	CodeAlreadyResolved       = "AlreadyResolved"
	CodeConflictingAcceptance = "ConflictingAcceptance"
	CodeProfileNotFound       = "ProfileNotFound"
	CodeConversationNotFound  = "ConversationNotFound"
	CodeRequestNotFound       = "RequestNotFound"
	CodeConflict              = "Conflict"
	CodeInternal              = "Internal"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidArgument, CodeInvalidArgument},
	{ErrAlreadyPending, CodeAlreadyPending},
	{ErrAlreadyAccepted, CodeAlreadyAccepted},
	{ErrRateLimited, CodeRateLimited},
	{ErrAlreadyResolved, CodeAlreadyResolved},
	{ErrConflictingAcceptance, CodeConflictingAcceptance},
	{ErrProfileNotFound, CodeProfileNotFound},
	{ErrConversationNotFound, CodeConversationNotFound},
	{ErrRequestNotFound, CodeRequestNotFound},
	{ErrAborted, CodeConflict},
}

// Code maps err to its stable code. It returns "" for nil and CodeInternal
// for errors outside the taxonomy.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsRefusal reports whether err is a business-rule refusal rather than a
// failure.
func IsRefusal(err error) bool {
	switch {
	case errors.Is(err, ErrAlreadyPending),
		errors.Is(err, ErrAlreadyAccepted),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrConflictingAcceptance):
		return true
	}
	return false
}
