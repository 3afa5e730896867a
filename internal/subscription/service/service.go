package service

import (
	"context"
	"fmt"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/internal/subscription/core"
	"canteen-system/pkg/logger"
)

type SubscriptionService struct {
	repo core.ISubscriptionRepo
	log  *logger.Logger
	now  func() time.Time
}

func NewSubscriptionService(repo core.ISubscriptionRepo, log *logger.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (s *SubscriptionService) WithClock(now func() time.Time) *SubscriptionService {
	s.now = now
	return s
}

func (s *SubscriptionService) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	return s.repo.ListPlans(ctx)
}

func (s *SubscriptionService) Purchase(ctx context.Context, userID, planID int64) (domain.Entitlement, error) {
	ent, err := s.repo.Purchase(ctx, userID, planID, s.now().UTC())
	if err != nil {
		return domain.Entitlement{}, err
	}

	s.log.Info("", "subscription_purchased",
		fmt.Sprintf("user %d purchased plan %d", userID, planID))
	return ent, nil
}

// My returns the caller's active entitlement alongside its plan.
func (s *SubscriptionService) My(ctx context.Context, userID int64) (domain.Entitlement, domain.Plan, error) {
	return s.repo.ActiveEntitlement(ctx, userID, s.now().UTC())
}
