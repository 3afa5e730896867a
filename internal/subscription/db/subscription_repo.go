package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewSubscriptionRepo(pool *pgxpool.Pool, log *logger.Logger) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool, log: log}
}

const planColumns = `id, name, description, price, duration_days, meal_limit,
	discount_percentage, daily_limit, allowed_from, allowed_to,
	branch_restriction, is_active`

func scanPlan(row pgx.Row) (domain.Plan, error) {
	var p domain.Plan
	var allowedFrom, allowedTo pgtype.Time
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.DurationDays, &p.MealLimit,
		&p.DiscountPercentage, &p.DailyLimit, &allowedFrom, &allowedTo,
		&p.BranchRestriction, &p.IsActive,
	)
	if err != nil {
		return domain.Plan{}, err
	}
	p.AllowedFrom = timeOfDayFromPg(allowedFrom)
	p.AllowedTo = timeOfDayFromPg(allowedTo)
	return p, nil
}

func timeOfDayFromPg(t pgtype.Time) *domain.TimeOfDay {
	if !t.Valid {
		return nil
	}
	minutes := int(t.Microseconds / 60_000_000)
	tod := domain.TimeOfDay{Hour: minutes / 60, Minute: minutes % 60}
	return &tod
}

func (r *SubscriptionRepo) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+planColumns+` FROM subscriptions WHERE is_active ORDER BY price`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []domain.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	return plans, rows.Err()
}

func (r *SubscriptionRepo) GetPlan(ctx context.Context, id int64) (domain.Plan, error) {
	plan, err := scanPlan(r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM subscriptions WHERE id = $1 AND is_active`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	if err != nil {
		return domain.Plan{}, fmt.Errorf("get plan %d: %w", id, err)
	}
	return plan, nil
}

func (r *SubscriptionRepo) ActiveEntitlement(ctx context.Context, userID int64, now time.Time) (domain.Entitlement, domain.Plan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT us.id, us.user_id, us.subscription_id, us.start_date, us.end_date,
		        us.remaining_meals, us.is_active
		 FROM user_subscriptions us
		 WHERE us.user_id = $1 AND us.is_active AND us.end_date > $2`,
		userID, now)
	if err != nil {
		return domain.Entitlement{}, domain.Plan{}, fmt.Errorf("lookup entitlement: %w", err)
	}
	defer rows.Close()

	var ent domain.Entitlement
	found := 0
	for rows.Next() {
		found++
		if found > 1 {
			r.log.Error("", "entitlement_conflict",
				fmt.Sprintf("user %d holds multiple active subscriptions", userID),
				domain.ErrEntitlementConflict)
			return domain.Entitlement{}, domain.Plan{}, domain.ErrEntitlementConflict
		}
		err = rows.Scan(&ent.ID, &ent.UserID, &ent.SubscriptionID, &ent.StartDate,
			&ent.EndDate, &ent.RemainingMeals, &ent.IsActive)
		if err != nil {
			return domain.Entitlement{}, domain.Plan{}, fmt.Errorf("scan entitlement: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Entitlement{}, domain.Plan{}, fmt.Errorf("read entitlement: %w", err)
	}
	if found == 0 {
		return domain.Entitlement{}, domain.Plan{}, domain.ErrNoEntitlement
	}

	plan, err := r.GetPlan(ctx, ent.SubscriptionID)
	if err != nil {
		return domain.Entitlement{}, domain.Plan{}, err
	}
	return ent, plan, nil
}

// Purchase replaces the user's current entitlement: the prior active one is
// deactivated and the new one inserted in the same transaction, preserving
// the at-most-one-active invariant.
func (r *SubscriptionRepo) Purchase(ctx context.Context, userID, planID int64, now time.Time) (domain.Entitlement, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var plan domain.Plan
	plan, err = scanPlan(tx.QueryRow(ctx,
		`SELECT `+planColumns+` FROM subscriptions WHERE id = $1 AND is_active FOR SHARE`, planID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Entitlement{}, domain.ErrPlanNotFound
	}
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("get plan %d: %w", planID, err)
	}

	// Lock and deactivate whatever is currently active for the user.
	_, err = tx.Exec(ctx,
		`UPDATE user_subscriptions SET is_active = FALSE
		 WHERE id IN (
			SELECT id FROM user_subscriptions
			WHERE user_id = $1 AND is_active
			FOR UPDATE
		 )`,
		userID)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("deactivate prior entitlement: %w", err)
	}

	ent := domain.Entitlement{
		UserID:         userID,
		SubscriptionID: plan.ID,
		StartDate:      now,
		EndDate:        now.Add(time.Duration(plan.DurationDays) * 24 * time.Hour),
		RemainingMeals: plan.MealLimit,
		IsActive:       true,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO user_subscriptions (
			user_id, subscription_id, start_date, end_date, remaining_meals, is_active
		) VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id`,
		ent.UserID, ent.SubscriptionID, ent.StartDate, ent.EndDate, ent.RemainingMeals,
	).Scan(&ent.ID)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("insert entitlement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Entitlement{}, fmt.Errorf("commit transaction: %w", err)
	}
	return ent, nil
}
