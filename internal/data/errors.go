package data

import "errors"

// Shared sentinel errors for data-layer repositories.
var (
	// Job repository sentinels.
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrJobIDRequired     = errors.New("job_id is required")

	// Result repository sentinels.
	ErrResultNotFound = errors.New("result not found")
	ErrResultExpired  = errors.New("result expired")

	// Voice catalog sentinels.
	ErrVoiceNotFound = errors.New("voice not found")

	// History repository sentinels.
	ErrHistoryNotConfigured = errors.New("history repository not configured")
)
