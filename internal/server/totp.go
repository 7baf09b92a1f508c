package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
	totpdomain "github.com/dutywise/dutywise/internal/totp/domain"
)

const suspiciousBlockTTL = 24 * time.Hour

type totpEnableRequest struct {
	Secret string `json:"secret" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

type totpCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

// HandleTOTPSetup issues a candidate secret and provisioning URI. Nothing
// is persisted until the caller proves possession via enable.
func (s *Server) HandleTOTPSetup(c *gin.Context) {
	acct, ok := accountFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	enrollment, err := s.totpSvc.GenerateSecret(c.Request.Context(), acct.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, enrollment)
}

// HandleTOTPEnable verifies the first code against the candidate secret
// and, on success, persists the secret and returns the one-time backup
// codes.
func (s *Server) HandleTOTPEnable(c *gin.Context) {
	accountID := accountIDFromContext(c)
	var req totpEnableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.checkRateLimit(c, accountID, securitydomain.ActionTOTPVerify); err != nil {
		AbortWithError(c, err)
		return
	}

	codes, err := s.totpSvc.Enable(c.Request.Context(), accountID, req.Secret, req.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled":      true,
		"backup_codes": codes,
	})
}

// HandleTOTPDisable requires a valid current code before tearing down the
// enrollment.
func (s *Server) HandleTOTPDisable(c *gin.Context) {
	accountID := accountIDFromContext(c)
	var req totpCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.checkRateLimit(c, accountID, securitydomain.ActionTOTPVerify); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.totpSvc.Disable(c.Request.Context(), accountID, req.Code); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// HandleTOTPVerify checks a code against the stored secret. Every attempt
// is rate limited and recorded; repeated failures feed the suspicion
// heuristic.
func (s *Server) HandleTOTPVerify(c *gin.Context) {
	acct, ok := accountFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	var req totpCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.checkRateLimit(c, acct.ID, securitydomain.ActionTOTPVerify); err != nil {
		AbortWithError(c, err)
		return
	}

	if !acct.TOTPEnabled || acct.TOTPSecret == nil {
		AbortWithError(c, totpdomain.ErrNotEnrolled)
		return
	}

	valid := s.totpSvc.VerifyCode(*acct.TOTPSecret, req.Code, s.clock.Now())
	s.recordAttempt(c, acct.ID, securitydomain.ActionTOTPVerify, valid)
	if !valid {
		s.flagSuspicious(c, acct.ID)
		AbortWithError(c, totpdomain.ErrInvalidCode)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// HandleBackupCodeConsume claims one unused backup code.
func (s *Server) HandleBackupCodeConsume(c *gin.Context) {
	accountID := accountIDFromContext(c)
	var req totpCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.checkRateLimit(c, accountID, securitydomain.ActionBackupCode); err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.totpSvc.ConsumeBackupCode(c.Request.Context(), accountID, req.Code); err != nil {
		s.flagSuspicious(c, accountID)
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"consumed": true})
}

// HandleBackupCodeRegenerate invalidates every outstanding backup code
// and returns a fresh batch.
func (s *Server) HandleBackupCodeRegenerate(c *gin.Context) {
	accountID := accountIDFromContext(c)

	codes, err := s.totpSvc.RegenerateBackupCodes(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}

func (s *Server) checkRateLimit(c *gin.Context, identifier, action string) error {
	result, err := s.securitySvc.Check(c.Request.Context(), identifier, action, c.ClientIP())
	if err != nil {
		return err
	}
	if !result.Allowed {
		return &rateLimitError{result: result}
	}
	return nil
}

func (s *Server) recordAttempt(c *gin.Context, identifier, action string, success bool) {
	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	event := securitydomain.SecurityEvent{
		EventType:  action,
		Identifier: identifier,
		IP:         &ip,
		UserAgent:  &userAgent,
		Success:    success,
	}
	if err := s.securitySvc.Log(c.Request.Context(), event); err != nil {
		s.log.Warn("record security event", zap.Error(err))
	}
}

func (s *Server) flagSuspicious(c *gin.Context, identifier string) {
	report, err := s.securitySvc.DetectSuspicious(c.Request.Context(), identifier)
	if err != nil {
		s.log.Warn("detect suspicious activity", zap.Error(err))
		return
	}
	if report.ShouldBlock {
		if err := s.securitySvc.BlockIP(c.Request.Context(), c.ClientIP(), report.Reason, suspiciousBlockTTL); err != nil {
			s.log.Warn("block ip", zap.Error(err))
		}
	}
}
