package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/internal/order/core"
	"canteen-system/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the row scanning
// helpers work inside and outside transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type OrderRepo struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

func NewOrderRepo(pool *pgxpool.Pool, log *logger.Logger) *OrderRepo {
	return &OrderRepo{pool: pool, log: log}
}

const orderColumns = `id, user_id, branch_id, total_price, status, qr_code, qr_used,
	qr_expire_at, paid_by_subscription, subscription_id, discount_percentage,
	created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(
		&o.ID, &o.UserID, &o.BranchID, &o.TotalPrice, &status, &o.QRCode, &o.QRUsed,
		&o.QRExpireAt, &o.PaidBySubscription, &o.SubscriptionID, &o.DiscountPercentage,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

// Create runs the whole order transaction: everything between the branch
// check and the final insert commits as one unit, and the
// entitlement row stays locked for the duration so concurrent orders by the
// same user serialize on it.
func (r *OrderRepo) Create(ctx context.Context, params core.CreateOrderParams) (domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Branch must exist and be active.
	var branchOK bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM branches WHERE id = $1 AND is_active)`,
		params.BranchID,
	).Scan(&branchOK)
	if err != nil {
		return domain.Order{}, fmt.Errorf("check branch: %w", err)
	}
	if !branchOK {
		return domain.Order{}, fmt.Errorf("%w: branch %d", domain.ErrBranchNotFound, params.BranchID)
	}

	// Resolve every line item against the branch catalog and sum the
	// pre-discount total.
	total := 0.0
	items := make([]domain.OrderItem, 0, len(params.Items))
	for _, item := range params.Items {
		var foodID int64
		var unitPrice float64
		err = tx.QueryRow(ctx,
			`SELECT id, price FROM foods WHERE id = $1 AND branch_id = $2 AND is_available`,
			item.FoodID, params.BranchID,
		).Scan(&foodID, &unitPrice)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, fmt.Errorf("%w: food %d", domain.ErrFoodNotFound, item.FoodID)
		}
		if err != nil {
			return domain.Order{}, fmt.Errorf("resolve food %d: %w", item.FoodID, err)
		}

		linePrice := unitPrice * float64(item.Quantity)
		total += linePrice
		items = append(items, domain.OrderItem{
			FoodID:   foodID,
			Quantity: item.Quantity,
			Price:    linePrice,
		})
	}

	// Entitlement lookup with a row lock. Two concurrent orders against
	// the same entitlement queue up here, so the meal-count check below
	// sees the decrement made by the winner.
	ent, plan, err := r.lockActiveEntitlement(ctx, tx, params.UserID, params.Now)
	if err != nil && !errors.Is(err, domain.ErrNoEntitlement) {
		return domain.Order{}, err
	}

	paidBySubscription := false
	var subscriptionID *int64
	capturedRate := 0.0

	if err == nil {
		usedToday, countErr := r.countUsedToday(ctx, tx, params.UserID, ent.SubscriptionID, params.Now)
		if countErr != nil {
			return domain.Order{}, countErr
		}

		if usageErr := domain.CheckUsage(plan, ent, usedToday, params.Now); usageErr != nil {
			return domain.Order{}, usageErr
		}

		if ent.RemainingMeals != nil {
			tag, decErr := tx.Exec(ctx,
				`UPDATE user_subscriptions
				 SET remaining_meals = remaining_meals - 1
				 WHERE id = $1 AND remaining_meals > 0`,
				ent.ID,
			)
			if decErr != nil {
				return domain.Order{}, fmt.Errorf("decrement remaining meals: %w", decErr)
			}
			if tag.RowsAffected() == 0 {
				return domain.Order{}, domain.ErrQuotaExhausted
			}
		}

		total = domain.ApplyDiscount(total, plan.DiscountPercentage)
		paidBySubscription = true
		subID := ent.SubscriptionID
		subscriptionID = &subID
		capturedRate = plan.DiscountPercentage
	}

	order := domain.Order{
		UserID:             params.UserID,
		BranchID:           params.BranchID,
		TotalPrice:         total,
		Status:             domain.StatusPending,
		QRCode:             params.QRCode,
		QRUsed:             false,
		QRExpireAt:         params.QRExpireAt,
		PaidBySubscription: paidBySubscription,
		SubscriptionID:     subscriptionID,
		DiscountPercentage: capturedRate,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO orders (
			user_id, branch_id, total_price, status, qr_code, qr_used,
			qr_expire_at, paid_by_subscription, subscription_id, discount_percentage
		) VALUES ($1, $2, $3, $4, $5, FALSE, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`,
		order.UserID, order.BranchID, order.TotalPrice, string(order.Status),
		order.QRCode, order.QRExpireAt, order.PaidBySubscription,
		order.SubscriptionID, order.DiscountPercentage,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRow(ctx,
			`INSERT INTO order_items (order_id, food_id, quantity, price)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			order.ID, items[i].FoodID, items[i].Quantity, items[i].Price,
		).Scan(&items[i].ID)
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert order item: %w", err)
		}
	}
	order.Items = items

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

// lockActiveEntitlement finds the user's single active, unexpired
// entitlement and locks its row. Finding more than one is a data-integrity
// fault, not a user error.
func (r *OrderRepo) lockActiveEntitlement(ctx context.Context, tx pgx.Tx, userID int64, now time.Time) (domain.Entitlement, domain.Plan, error) {
	rows, err := tx.Query(ctx,
		`SELECT us.id, us.user_id, us.subscription_id, us.start_date, us.end_date,
		        us.remaining_meals, us.is_active,
		        s.discount_percentage, s.daily_limit, s.allowed_from, s.allowed_to
		 FROM user_subscriptions us
		 JOIN subscriptions s ON s.id = us.subscription_id
		 WHERE us.user_id = $1 AND us.is_active AND us.end_date > $2
		 FOR UPDATE OF us`,
		userID, now,
	)
	if err != nil {
		return domain.Entitlement{}, domain.Plan{}, fmt.Errorf("lookup entitlement: %w", err)
	}
	defer rows.Close()

	var ent domain.Entitlement
	var plan domain.Plan
	found := 0
	for rows.Next() {
		found++
		if found > 1 {
			r.log.Error("", "entitlement_conflict",
				fmt.Sprintf("user %d holds multiple active subscriptions", userID),
				domain.ErrEntitlementConflict)
			return domain.Entitlement{}, domain.Plan{}, domain.ErrEntitlementConflict
		}

		var allowedFrom, allowedTo pgtype.Time
		err = rows.Scan(
			&ent.ID, &ent.UserID, &ent.SubscriptionID, &ent.StartDate, &ent.EndDate,
			&ent.RemainingMeals, &ent.IsActive,
			&plan.DiscountPercentage, &plan.DailyLimit, &allowedFrom, &allowedTo,
		)
		if err != nil {
			return domain.Entitlement{}, domain.Plan{}, fmt.Errorf("scan entitlement: %w", err)
		}
		plan.ID = ent.SubscriptionID
		plan.AllowedFrom = timeOfDayFromPg(allowedFrom)
		plan.AllowedTo = timeOfDayFromPg(allowedTo)
	}
	if err := rows.Err(); err != nil {
		return domain.Entitlement{}, domain.Plan{}, fmt.Errorf("read entitlement: %w", err)
	}
	if found == 0 {
		return domain.Entitlement{}, domain.Plan{}, domain.ErrNoEntitlement
	}
	return ent, plan, nil
}

func timeOfDayFromPg(t pgtype.Time) *domain.TimeOfDay {
	if !t.Valid {
		return nil
	}
	minutes := int(t.Microseconds / 60_000_000)
	tod := domain.TimeOfDay{Hour: minutes / 60, Minute: minutes % 60}
	return &tod
}

func (r *OrderRepo) countUsedToday(ctx context.Context, q querier, userID, subscriptionID int64, now time.Time) (int, error) {
	var count int
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders
		 WHERE user_id = $1 AND subscription_id = $2 AND created_at >= $3`,
		userID, subscriptionID, domain.StartOfDay(now),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count today's subscription orders: %w", err)
	}
	return count, nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id int64) (domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %d: %w", id, err)
	}

	order.Items, err = r.loadItems(ctx, r.pool, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
}

func (r *OrderRepo) LastByUser(ctx context.Context, userID int64) (domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT 1`,
		userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get last order: %w", err)
	}

	order.Items, err = r.loadItems(ctx, r.pool, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *OrderRepo) ListByBranchStatus(ctx context.Context, branchID int64, statuses []domain.OrderStatus) ([]domain.Order, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE branch_id = $1 AND status = ANY($2) ORDER BY created_at`,
		branchID, names)
}

// ListActive returns pending and accepted orders, branch-scoped when the
// caller has a branch.
func (r *OrderRepo) ListActive(ctx context.Context, branchID *int64) ([]domain.Order, error) {
	if branchID != nil {
		return r.ListByBranchStatus(ctx, *branchID,
			[]domain.OrderStatus{domain.StatusPending, domain.StatusAccepted})
	}
	return r.list(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE status = ANY($1) ORDER BY created_at`,
		[]string{string(domain.StatusPending), string(domain.StatusAccepted)})
}

func (r *OrderRepo) list(ctx context.Context, sql string, args ...any) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

func (r *OrderRepo) loadItems(ctx context.Context, q querier, orderID int64) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT id, order_id, food_id, quantity, price
		 FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.FoodID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// VerifyQR checks the token without consuming it.
func (r *OrderRepo) VerifyQR(ctx context.Context, token string, now time.Time) (domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE qr_code = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrQRNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lookup qr code: %w", err)
	}

	if order.QRUsed {
		return domain.Order{}, domain.ErrQRUsed
	}
	if order.QRExpireAt.Before(now) {
		return domain.Order{}, domain.ErrQRExpired
	}

	order.Items, err = r.loadItems(ctx, r.pool, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Accept performs the QR-gated pending→accepted transition. The order row
// is locked first, so concurrent redemption attempts on the same token
// resolve to exactly one winner; the loser observes qr_used=true.
func (r *OrderRepo) Accept(ctx context.Context, orderID int64, token string, now time.Time) (domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order %d: %w", orderID, err)
	}

	if order.QRCode != token {
		return domain.Order{}, domain.ErrQRNotFound
	}
	if order.Status != domain.StatusPending {
		return domain.Order{}, transitionError(order.Status, domain.StatusAccepted)
	}
	if order.QRUsed {
		return domain.Order{}, domain.ErrQRUsed
	}
	if order.QRExpireAt.Before(now) {
		return domain.Order{}, domain.ErrQRExpired
	}

	err = tx.QueryRow(ctx,
		`UPDATE orders SET status = $2, qr_used = TRUE, updated_at = now()
		 WHERE id = $1 RETURNING updated_at`,
		orderID, string(domain.StatusAccepted),
	).Scan(&order.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("accept order %d: %w", orderID, err)
	}
	order.Status = domain.StatusAccepted
	order.QRUsed = true

	order.Items, err = r.loadItems(ctx, tx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

// Transition advances the staff pipeline. The terminal 'given' step also
// writes the branch revenue row inside the same transaction, reporting the
// discount with the rate captured at order creation.
func (r *OrderRepo) Transition(ctx context.Context, orderID int64, next domain.OrderStatus) (domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order %d: %w", orderID, err)
	}

	if !order.Status.CanTransitionTo(next) {
		return domain.Order{}, transitionError(order.Status, next)
	}

	err = tx.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = now()
		 WHERE id = $1 RETURNING updated_at`,
		orderID, string(next),
	).Scan(&order.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order status: %w", err)
	}
	order.Status = next

	if next == domain.StatusGiven {
		discountAmount := 0.0
		if order.PaidBySubscription {
			discountAmount = domain.DiscountAmount(order.TotalPrice, order.DiscountPercentage)
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO branch_revenue (
				branch_id, order_id, subscription_id, user_id,
				amount, discount_amount, final_amount
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			order.BranchID, order.ID, order.SubscriptionID, order.UserID,
			order.TotalPrice, discountAmount, order.TotalPrice-discountAmount,
		)
		if err != nil {
			return domain.Order{}, fmt.Errorf("insert branch revenue: %w", err)
		}
	}

	order.Items, err = r.loadItems(ctx, tx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

// Cancel is the client-side pending→cancelled transition; only the order's
// owner may cancel, and only before acceptance.
func (r *OrderRepo) Cancel(ctx context.Context, orderID, userID int64) (domain.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order %d: %w", orderID, err)
	}

	if order.UserID != userID {
		return domain.Order{}, domain.ErrNotOrderOwner
	}
	if !order.Status.CanTransitionTo(domain.StatusCancelled) {
		return domain.Order{}, transitionError(order.Status, domain.StatusCancelled)
	}

	err = tx.QueryRow(ctx,
		`UPDATE orders SET status = $2, updated_at = now()
		 WHERE id = $1 RETURNING updated_at`,
		orderID, string(domain.StatusCancelled),
	).Scan(&order.UpdatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("cancel order %d: %w", orderID, err)
	}
	order.Status = domain.StatusCancelled

	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit transaction: %w", err)
	}
	return order, nil
}

func transitionError(from, to domain.OrderStatus) error {
	return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, to)
}
