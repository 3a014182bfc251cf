package ingest

import "errors"

// Sentinel errors callers branch on with errors.Is.
var (
	// ErrFeedTooLarge is returned when a remote feed declares or delivers more
	// bytes than the configured cap.
	ErrFeedTooLarge = errors.New("feed exceeds maximum size")

	// ErrFeedParse wraps syndication parse failures.
	ErrFeedParse = errors.New("feed parse failed")

	// ErrMemoryCritical indicates the memory guard refused to start new work.
	ErrMemoryCritical = errors.New("memory tier critical")

	// ErrDuplicateURL is returned by stores when an insert hits the URL
	// uniqueness guard. Callers treat it as steady-state, not a failure.
	ErrDuplicateURL = errors.New("article url already exists")
)
