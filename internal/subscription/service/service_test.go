package service

import (
	"context"
	"testing"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	plans map[int64]domain.Plan
	ents  []domain.Entitlement
}

func (f *fakeRepo) ListPlans(_ context.Context) ([]domain.Plan, error) {
	out := make([]domain.Plan, 0, len(f.plans))
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) GetPlan(_ context.Context, id int64) (domain.Plan, error) {
	p, ok := f.plans[id]
	if !ok {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	return p, nil
}

func (f *fakeRepo) ActiveEntitlement(_ context.Context, userID int64, now time.Time) (domain.Entitlement, domain.Plan, error) {
	var found *domain.Entitlement
	for i := range f.ents {
		e := &f.ents[i]
		if e.UserID == userID && e.IsActive && e.EndDate.After(now) {
			if found != nil {
				return domain.Entitlement{}, domain.Plan{}, domain.ErrEntitlementConflict
			}
			found = e
		}
	}
	if found == nil {
		return domain.Entitlement{}, domain.Plan{}, domain.ErrNoEntitlement
	}
	return *found, f.plans[found.SubscriptionID], nil
}

func (f *fakeRepo) Purchase(_ context.Context, userID, planID int64, now time.Time) (domain.Entitlement, error) {
	plan, ok := f.plans[planID]
	if !ok {
		return domain.Entitlement{}, domain.ErrPlanNotFound
	}
	for i := range f.ents {
		if f.ents[i].UserID == userID {
			f.ents[i].IsActive = false
		}
	}
	var remaining *int
	if plan.MealLimit != nil {
		n := *plan.MealLimit
		remaining = &n
	}
	ent := domain.Entitlement{
		ID:             int64(len(f.ents) + 1),
		UserID:         userID,
		SubscriptionID: planID,
		StartDate:      now,
		EndDate:        now.Add(time.Duration(plan.DurationDays) * 24 * time.Hour),
		RemainingMeals: remaining,
		IsActive:       true,
	}
	f.ents = append(f.ents, ent)
	return ent, nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

var testTime = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func newService(repo *fakeRepo) *SubscriptionService {
	svc := NewSubscriptionService(repo, logger.NewWithWriter("test", nullWriter{}))
	return svc.WithClock(func() time.Time { return testTime })
}

func TestPurchaseSeedsEntitlementFromPlan(t *testing.T) {
	repo := &fakeRepo{plans: map[int64]domain.Plan{
		1: {ID: 1, MealLimit: intPtr(30), DurationDays: 30, DiscountPercentage: 10},
	}}
	svc := newService(repo)

	ent, err := svc.Purchase(context.Background(), 10, 1)
	require.NoError(t, err)

	require.NotNil(t, ent.RemainingMeals)
	assert.Equal(t, 30, *ent.RemainingMeals)
	assert.Equal(t, testTime.Add(30*24*time.Hour), ent.EndDate)
	assert.True(t, ent.IsActive)
}

func TestPurchaseUnknownPlan(t *testing.T) {
	svc := newService(&fakeRepo{plans: map[int64]domain.Plan{}})
	_, err := svc.Purchase(context.Background(), 10, 99)
	assert.ErrorIs(t, err, domain.ErrPlanNotFound)
}

func TestRepurchaseDeactivatesPrior(t *testing.T) {
	repo := &fakeRepo{plans: map[int64]domain.Plan{
		1: {ID: 1, MealLimit: intPtr(30), DurationDays: 30},
		2: {ID: 2, DurationDays: 30}, // unlimited
	}}
	svc := newService(repo)

	_, err := svc.Purchase(context.Background(), 10, 1)
	require.NoError(t, err)
	_, err = svc.Purchase(context.Background(), 10, 2)
	require.NoError(t, err)

	ent, plan, err := svc.My(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ent.SubscriptionID)
	assert.Equal(t, int64(2), plan.ID)
	assert.Nil(t, ent.RemainingMeals)
}

func TestMyWithoutEntitlement(t *testing.T) {
	svc := newService(&fakeRepo{plans: map[int64]domain.Plan{}})
	_, _, err := svc.My(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrNoEntitlement)
}
