package service

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/dutywise/dutywise/internal/account/domain"
	"github.com/dutywise/dutywise/internal/clock"
	"github.com/dutywise/dutywise/internal/config"
	securitydomain "github.com/dutywise/dutywise/internal/security/domain"
	"github.com/dutywise/dutywise/internal/totp/domain"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Codes avoid ambiguous characters so users can read them back reliably.
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ23456789"

const maxUpdateAttempts = 3

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Accounts accountdomain.Repository
	Security securitydomain.Service
	Cfg      config.Config
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	accounts accountdomain.Repository
	security securitydomain.Service
	issuer   string
	count    int
	length   int
}

func NewService(p Params) domain.Service {
	count := p.Cfg.BackupCodeCount
	if count <= 0 {
		count = 8
	}
	length := p.Cfg.BackupCodeLength
	if length < 8 {
		length = 10
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("totp.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		accounts: p.Accounts,
		security: p.Security,
		issuer:   p.Cfg.TOTPIssuer,
		count:    count,
		length:   length,
	}
}

func (s *Service) GenerateSecret(ctx context.Context, label string) (*domain.Enrollment, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "account"
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: label,
		SecretSize:  20, // 160 bits
	})
	if err != nil {
		return nil, err
	}

	return &domain.Enrollment{
		Secret:     key.Secret(),
		OtpauthURI: key.URL(),
	}, nil
}

func (s *Service) VerifyCode(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return false
	}
	if strings.TrimSpace(secret) == "" {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (s *Service) Enable(ctx context.Context, accountID, secret, code string) ([]string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, domain.ErrInvalidSecret
	}

	// Proof of possession precedes commitment: the candidate secret is
	// only persisted after a valid code.
	if !s.VerifyCode(secret, code, s.clock.Now()) {
		s.audit(ctx, accountID, "totp_enable", false)
		return nil, domain.ErrInvalidCode
	}

	acct, err := s.accounts.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}

	codes, hashes, err := s.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.updateWithRetry(ctx, tx, acct, map[string]any{
			"totp_secret":  secret,
			"totp_enabled": true,
		}); err != nil {
			return err
		}
		return s.replaceBackupCodes(ctx, tx, accountID, hashes)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "totp_enable", true)
	return codes, nil
}

func (s *Service) Disable(ctx context.Context, accountID, code string) error {
	acct, err := s.accounts.FindByID(ctx, s.db, accountID)
	if err != nil {
		return err
	}
	if !acct.TOTPEnabled || acct.TOTPSecret == nil {
		return domain.ErrNotEnrolled
	}

	if !s.VerifyCode(*acct.TOTPSecret, code, s.clock.Now()) {
		s.audit(ctx, accountID, "totp_disable", false)
		return domain.ErrInvalidCode
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.updateWithRetry(ctx, tx, acct, map[string]any{
			"totp_secret":  nil,
			"totp_enabled": false,
		}); err != nil {
			return err
		}
		return tx.Where("account_id = ?", accountID).Delete(&domain.BackupCode{}).Error
	})
	if err != nil {
		return err
	}

	s.audit(ctx, accountID, "totp_disable", true)
	return nil
}

func (s *Service) ConsumeBackupCode(ctx context.Context, accountID, code string) error {
	code = normalizeBackupCode(code)
	if len(code) < 8 {
		return domain.ErrBackupCodeInvalidOrUsed
	}

	var candidates []domain.BackupCode
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND used_at IS NULL", accountID).
		Find(&candidates).Error
	if err != nil {
		return err
	}

	for _, candidate := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidate.CodeHash), []byte(code)) != nil {
			continue
		}

		// Claim-if-unused: two requests racing on the same code cannot
		// both see a row flip.
		claim := s.db.WithContext(ctx).Model(&domain.BackupCode{}).
			Where("id = ? AND used_at IS NULL", candidate.ID).
			Update("used_at", s.clock.Now())
		if claim.Error != nil {
			return claim.Error
		}
		if claim.RowsAffected == 0 {
			break
		}

		s.audit(ctx, accountID, "backup_code_consume", true)
		return nil
	}

	s.audit(ctx, accountID, "backup_code_consume", false)
	return domain.ErrBackupCodeInvalidOrUsed
}

func (s *Service) RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	acct, err := s.accounts.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.TOTPEnabled {
		return nil, domain.ErrNotEnrolled
	}

	codes, hashes, err := s.generateBackupCodes()
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.replaceBackupCodes(ctx, tx, accountID, hashes)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, accountID, "backup_code_regenerate", true)
	return codes, nil
}

func (s *Service) replaceBackupCodes(ctx context.Context, tx *gorm.DB, accountID string, hashes []string) error {
	if err := tx.WithContext(ctx).
		Where("account_id = ?", accountID).
		Delete(&domain.BackupCode{}).Error; err != nil {
		return err
	}

	batchID := s.genID.Generate()
	now := s.clock.Now()
	rows := make([]domain.BackupCode, 0, len(hashes))
	for _, hash := range hashes {
		rows = append(rows, domain.BackupCode{
			ID:        s.genID.Generate(),
			AccountID: accountID,
			BatchID:   batchID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

func (s *Service) generateBackupCodes() ([]string, []string, error) {
	codes := make([]string, 0, s.count)
	hashes := make([]string, 0, s.count)
	for i := 0; i < s.count; i++ {
		code, err := randomCode(s.length)
		if err != nil {
			return nil, nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			return nil, nil, err
		}
		codes = append(codes, code)
		hashes = append(hashes, string(hash))
	}
	return codes, hashes, nil
}

func (s *Service) updateWithRetry(ctx context.Context, tx *gorm.DB, acct *accountdomain.Account, fields map[string]any) error {
	current := acct
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.accounts.UpdateFields(ctx, tx, current.ID, current.Version, fields)
		if err == nil {
			return nil
		}
		if !errors.Is(err, accountdomain.ErrVersionConflict) {
			return err
		}
		current, err = s.accounts.FindByID(ctx, tx, current.ID)
		if err != nil {
			return err
		}
	}
	return accountdomain.ErrVersionConflict
}

func (s *Service) audit(ctx context.Context, accountID, eventType string, success bool) {
	risk := securitydomain.RiskLow
	if !success {
		risk = securitydomain.RiskMedium
	}
	if err := s.security.Log(ctx, securitydomain.SecurityEvent{
		EventType:  eventType,
		Identifier: accountID,
		Success:    success,
		RiskLevel:  risk,
	}); err != nil {
		s.log.Warn("failed to audit totp operation",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func randomCode(length int) (string, error) {
	alphabet := big.NewInt(int64(len(backupCodeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, alphabet)
		if err != nil {
			return "", err
		}
		out[i] = backupCodeAlphabet[idx.Int64()]
	}
	return string(out), nil
}

func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
