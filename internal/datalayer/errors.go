package datalayer

import (
	"errors"

	"finance-datalayer/internal/apiclient"
	"finance-datalayer/internal/resource"
)

var (
	ErrNotAvailableOffline = errors.New("resource not available offline")
	ErrNotFoundInCache     = errors.New("resource not found in cache for offline update")
	// ErrQueuedForRetry accompanies a backend error when the mutation was
	// queued for background replay.
	ErrQueuedForRetry  = errors.New("operation queued for retry")
	ErrUnknownResource = resource.ErrUnknownKind
)

// transient reports whether err is worth trying on another tier or replaying
// later: no response at all, or a 5xx.
func transient(err error) bool {
	return apiclient.IsRetryable(err)
}

// unreachable reports whether no response was received at all. Only these
// failures let a create degrade to a local write.
func unreachable(err error) bool {
	return apiclient.IsNetwork(err)
}
