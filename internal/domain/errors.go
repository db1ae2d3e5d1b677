package domain

import "errors"

var (
	// ErrInvalidRequest is returned for malformed or missing caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSessionNotFound is returned when a gate session does not exist.
	ErrSessionNotFound = errors.New("gate session not found")
	// ErrDuplicateSession indicates a session id was reused.
	ErrDuplicateSession = errors.New("gate session already exists")
	// ErrAccessDenied guards the withheld comment of an unsolved or unknown session.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidQuiz indicates a quiz that cannot be used to gate a comment.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrFeedUnavailable is returned when no comment feed is configured.
	ErrFeedUnavailable = errors.New("comment feed unavailable")
)
