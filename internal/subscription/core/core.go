package core

import (
	"context"
	"time"

	"canteen-system/internal/domain"
)

const WaitTime = 5

type ISubscriptionRepo interface {
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	GetPlan(ctx context.Context, id int64) (domain.Plan, error)

	// ActiveEntitlement returns the user's single active, unexpired
	// entitlement with its plan, domain.ErrNoEntitlement when none, and
	// domain.ErrEntitlementConflict when the store holds more than one.
	ActiveEntitlement(ctx context.Context, userID int64, now time.Time) (domain.Entitlement, domain.Plan, error)

	// Purchase deactivates any prior active entitlement and creates the
	// new one in the same transaction.
	Purchase(ctx context.Context, userID, planID int64, now time.Time) (domain.Entitlement, error)
}
