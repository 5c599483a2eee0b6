package verification

import (
	"context"
	"time"
)

// ResolveFunc inspects a locked verification and returns the status to
// store. An empty status leaves the record untouched and discards anything
// fn wrote through ctx. The error is returned to the caller of Resolve even
// when a status is stored.
type ResolveFunc func(ctx context.Context, v Verification) (Status, error)

// Store persists verifications.
type Store interface {
	Create(ctx context.Context, v Verification) error
	Get(ctx context.Context, id string) (Verification, error)
	// Decide moves a pending verification to status. It fails with
	// ErrAlreadyDecided when the record is no longer pending.
	Decide(ctx context.Context, id string, status Status, at time.Time) (Verification, error)
	// Resolve holds an exclusive lock on the record while fn runs. Writes fn
	// makes through ctx commit together with the stored status.
	Resolve(ctx context.Context, id string, at time.Time, fn ResolveFunc) (Verification, error)
	List(ctx context.Context, filter Filter) ([]Verification, int, error)
}
