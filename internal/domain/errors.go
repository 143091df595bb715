package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrTokenUnmapped marks an outcome token with no known condition
	// mapping. Events on such tokens are dropped and counted against
	// confidence, never fatal.
	ErrTokenUnmapped = errors.New("token not mapped to a condition")

	// ErrResolutionAmbiguous marks malformed payout data; the condition is
	// treated as unresolved.
	ErrResolutionAmbiguous = errors.New("resolution payout data is malformed")

	// ErrPriceUnavailable marks a missing mark-to-market reference price;
	// the position is valued at zero with a warning.
	ErrPriceUnavailable = errors.New("no reference price available")

	// ErrFetchTimeout marks an external lookup that exceeded its deadline.
	// The affected wallet is reported as failed or partial, never silently
	// zero-filled.
	ErrFetchTimeout = errors.New("external fetch timed out")

	// ErrNoEvents marks a wallet with no usable activity at all.
	ErrNoEvents = errors.New("wallet has no events")

	// ErrLockHeld is returned when a distributed lock is already held by
	// another party.
	ErrLockHeld = errors.New("lock already held")

	// ErrRateLimited is returned when an external API rejects a request for
	// exceeding its rate limit.
	ErrRateLimited = errors.New("rate limited")

	// ErrWSDisconnect marks a closed or unusable WebSocket connection.
	ErrWSDisconnect = errors.New("websocket disconnected")
)
