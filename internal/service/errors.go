package service

import "errors"

// Validation errors, rejected before any store mutation.
var (
	ErrMissingRoom     = errors.New("room is required")
	ErrMissingUsername = errors.New("username is required")
	ErrEmptyMessage    = errors.New("message text is empty")
	ErrMessageTooLong  = errors.New("message text exceeds the maximum length")
	ErrNotRoomOwner    = errors.New("only the room owner may update the profile")
)

// IsValidation reports whether err is one of the pre-mutation validation
// errors, so handlers can map them to 400 without enumerating.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingRoom) ||
		errors.Is(err, ErrMissingUsername) ||
		errors.Is(err, ErrEmptyMessage) ||
		errors.Is(err, ErrMessageTooLong)
}
