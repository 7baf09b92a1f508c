package webhook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tolerance := 5 * time.Minute

	t.Run("valid signature", func(t *testing.T) {
		header := SignPayload(secret, payload, now)
		assert.NoError(t, verifySignature(secret, payload, header, now, tolerance))
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := SignPayload("whsec_other", payload, now)
		assert.Error(t, verifySignature(secret, payload, header, now, tolerance))
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := SignPayload(secret, payload, now)
		assert.Error(t, verifySignature(secret, []byte(`{"id":"evt_2"}`), header, now, tolerance))
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := SignPayload(secret, payload, now.Add(-10*time.Minute))
		assert.Error(t, verifySignature(secret, payload, header, now, tolerance))
	})

	t.Run("timestamp within tolerance", func(t *testing.T) {
		header := SignPayload(secret, payload, now.Add(-4*time.Minute))
		assert.NoError(t, verifySignature(secret, payload, header, now, tolerance))
	})

	t.Run("malformed header", func(t *testing.T) {
		assert.Error(t, verifySignature(secret, payload, "v1=deadbeef", now, tolerance))
		assert.Error(t, verifySignature(secret, payload, "t=12345", now, tolerance))
		assert.Error(t, verifySignature(secret, payload, "", now, tolerance))
	})

	t.Run("extra signatures still match", func(t *testing.T) {
		header := SignPayload(secret, payload, now) + ",v1=deadbeef"
		assert.NoError(t, verifySignature(secret, payload, header, now, tolerance))
	})
}
