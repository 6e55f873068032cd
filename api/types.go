package api

import (
	"context"

	"board-api/board"
)

// Authenticator resolves the acting user from request credentials.
type Authenticator interface {
	ActorFromAuthHeader(string) (board.Actor, error)
}

// Deduper prevents double-processing of repeated create submissions.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, userID, key string) error
}
