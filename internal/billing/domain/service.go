package domain

import (
	"context"
	"net/http"
)

type Service interface {
	// Process verifies the delivery signature before any parsing, then
	// applies the event transition idempotently. ErrInvalidSignature is
	// the only hard rejection; every other disposition is a Result.
	Process(ctx context.Context, payload []byte, headers http.Header) (Result, error)
}
