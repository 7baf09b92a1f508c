package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dutywise/dutywise/internal/account/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("account.service"),
		repo: p.Repo,
	}
}

func (s *Service) Observe(ctx context.Context, obs domain.Observation) (*domain.Account, error) {
	id := strings.TrimSpace(obs.AccountID)
	if id == "" {
		return nil, domain.ErrInvalidAccount
	}

	acct, err := s.repo.EnsureAccount(ctx, s.db, &domain.Account{
		ID:                 id,
		Email:              strings.TrimSpace(obs.Email),
		SubscriptionStatus: domain.SubscriptionNone,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	// Write-through: a confirmation reported by the identity provider but
	// not yet stored must land before the state is resolved, so it is
	// never lost to a stale local copy.
	if obs.EmailConfirmedAt != nil && acct.EmailConfirmedAt == nil {
		if err := s.repo.MarkEmailConfirmed(ctx, s.db, acct.ID, *obs.EmailConfirmedAt); err != nil {
			return nil, err
		}
		acct, err = s.repo.FindByID(ctx, s.db, acct.ID)
		if err != nil {
			return nil, err
		}
	}

	return acct, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Account, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) State(ctx context.Context, id string) (domain.State, error) {
	acct, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.StateOf(domain.StatePendingEmail), nil
		}
		return domain.State{}, err
	}
	return domain.StateOf(domain.Resolve(acct)), nil
}
