package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
	billingdomain "github.com/dutywise/dutywise/internal/billing/domain"
	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
	totpdomain "github.com/dutywise/dutywise/internal/totp/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// rateLimitError carries the reset time into the response headers.
type rateLimitError struct {
	result securitydomain.CheckResult
}

func (rateLimitError) Error() string { return securitydomain.ErrRateLimited.Error() }

func (rateLimitError) Unwrap() error { return securitydomain.ErrRateLimited }

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		var rle *rateLimitError
		if errors.As(lastErr.Err, &rle) {
			c.Header("X-RateLimit-Remaining", "0")
			if !rle.result.ResetAt.IsZero() {
				c.Header("X-RateLimit-Reset", strconv.FormatInt(rle.result.ResetAt.Unix(), 10))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many attempts, retry later",
			}})
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, billingdomain.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, totpdomain.ErrInvalidCode):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "invalid_code",
			Message: "the code is not valid",
		}
	case errors.Is(err, totpdomain.ErrBackupCodeInvalidOrUsed):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "backup_code_invalid_or_used",
			Message: "the backup code is not valid or was already used",
		}
	case errors.Is(err, totpdomain.ErrNotEnrolled),
		errors.Is(err, totpdomain.ErrInvalidSecret):
		return http.StatusBadRequest, errorPayload{
			Type:    "not_enrolled",
			Message: "totp is not enrolled for this account",
		}
	case errors.Is(err, accountdomain.ErrAccountNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "account not found",
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "authentication required",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
