package notify

import "context"

// Provider delivers outbound account notifications. Callers treat it as
// fire-and-forget: a delivery failure never rolls back state.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
