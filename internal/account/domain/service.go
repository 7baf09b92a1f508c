package domain

import (
	"context"
	"time"
)

// Observation carries the identity-provider signals seen on a request.
type Observation struct {
	AccountID        string
	Email            string
	EmailConfirmedAt *time.Time
}

type Service interface {
	// Observe reconciles fresh identity-provider signals into the store:
	// the account is created lazily on first sight and a newly reported
	// email confirmation is written through before any state is resolved.
	Observe(ctx context.Context, obs Observation) (*Account, error)
	Get(ctx context.Context, id string) (*Account, error)
	// State returns the resolved lifecycle state for an account id. A
	// missing account resolves to pending_email.
	State(ctx context.Context, id string) (State, error)
}
