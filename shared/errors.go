package shared

import "errors"

var (
	ErrNoLogger        = errors.New("no logger provided")
	ErrNoMeetingStore  = errors.New("no meeting store provided")
	ErrNoAgentStore    = errors.New("no agent store provided")
	ErrNoCallTransport = errors.New("no call transport provided")
	ErrNoDialer        = errors.New("no transport dialer provided")

	ErrSignatureInvalid   = errors.New("invalid webhook signature")
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrMeetingNotFound    = errors.New("meeting not found")
	ErrMeetingNotEligible = errors.New("meeting not eligible for a session")
	ErrAgentNotFound      = errors.New("agent not found")

	ErrSessionSetupTimeout = errors.New("session setup timeout")
	ErrSessionClosed       = errors.New("session closed")
	ErrNoActiveSession     = errors.New("no active session")
)
