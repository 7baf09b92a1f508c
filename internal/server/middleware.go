package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
	"github.com/dutywise/dutywise/internal/accessguard"
)

const (
	ctxAccountID = "account_id"
	ctxAccount   = "account"
	ctxLifecycle = "lifecycle_state"
)

// RequestLogger logs each request with a correlation id and safe fields.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if lastErr := c.Errors.Last(); lastErr != nil {
			fields = append(fields, zap.String("error", lastErr.Err.Error()))
		}

		switch {
		case strings.EqualFold(route, "/metrics"):
			log.Debug("http_request", fields...)
		case status >= http.StatusInternalServerError:
			log.Error("http_request", fields...)
		default:
			log.Info("http_request", fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader("X-Request-Id"))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header("X-Request-Id", requestID)
	return requestID
}

// IdentityContext reconciles the identity headers set by the fronting
// proxy into the account store and resolves the lifecycle state for the
// request. Requests without an identity are rejected.
func (s *Server) IdentityContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := strings.TrimSpace(c.GetHeader("X-Identity-Id"))
		if accountID == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		obs := accountdomain.Observation{
			AccountID: accountID,
			Email:     strings.TrimSpace(c.GetHeader("X-Identity-Email")),
		}
		if raw := strings.TrimSpace(c.GetHeader("X-Identity-Email-Confirmed-At")); raw != "" {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				obs.EmailConfirmedAt = &ts
			}
		}

		acct, err := s.accountSvc.Observe(c.Request.Context(), obs)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(ctxAccountID, accountID)
		c.Set(ctxAccount, acct)
		c.Set(ctxLifecycle, accountdomain.Resolve(acct))
		c.Next()
	}
}

// RequireAccess enforces a route requirement against the resolved
// lifecycle state. A disallowed request gets the redirect target instead
// of the resource.
func (s *Server) RequireAccess(req accessguard.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, ok := lifecycleFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		decision := accessguard.Authorize(state, req)
		if !decision.Allow {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"allow":    false,
				"redirect": decision.Redirect,
			})
			return
		}
		c.Next()
	}
}

func accountIDFromContext(c *gin.Context) string {
	return c.GetString(ctxAccountID)
}

func accountFromContext(c *gin.Context) (*accountdomain.Account, bool) {
	value, ok := c.Get(ctxAccount)
	if !ok {
		return nil, false
	}
	acct, ok := value.(*accountdomain.Account)
	return acct, ok
}

func lifecycleFromContext(c *gin.Context) (accountdomain.LifecycleState, bool) {
	value, ok := c.Get(ctxLifecycle)
	if !ok {
		return "", false
	}
	state, ok := value.(accountdomain.LifecycleState)
	return state, ok
}
