package core

import (
	"context"
	"time"

	"canteen-system/internal/domain"
)

// WaitTime is the per-operation DB timeout in seconds.
const WaitTime = 5

// MaxItemsPerOrder bounds a single order's line items.
const MaxItemsPerOrder = 20

type ItemRequest struct {
	FoodID   int64 `json:"food_id"`
	Quantity int   `json:"quantity"`
}

// CreateOrderParams is the fully prepared input for the order transaction:
// the service validates the shape, stamps the clock and issues the QR
// credential before handing it to the repo.
type CreateOrderParams struct {
	UserID     int64
	BranchID   int64
	Items      []ItemRequest
	QRCode     string
	QRExpireAt time.Time
	Now        time.Time
}

type IOrderRepo interface {
	// Create runs the whole order transaction: catalog validation, price
	// computation, entitlement consumption and the insert, all-or-nothing.
	Create(ctx context.Context, params CreateOrderParams) (domain.Order, error)

	GetByID(ctx context.Context, id int64) (domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	LastByUser(ctx context.Context, userID int64) (domain.Order, error)
	ListByBranchStatus(ctx context.Context, branchID int64, statuses []domain.OrderStatus) ([]domain.Order, error)
	ListActive(ctx context.Context, branchID *int64) ([]domain.Order, error)

	// VerifyQR is the read-only check; it consumes nothing.
	VerifyQR(ctx context.Context, token string, now time.Time) (domain.Order, error)
	// Accept is the QR-gated pending→accepted transition. Exactly one
	// caller wins under concurrent redemption.
	Accept(ctx context.Context, orderID int64, token string, now time.Time) (domain.Order, error)
	// Transition advances the staff pipeline; at 'given' it also writes
	// the branch revenue row in the same transaction.
	Transition(ctx context.Context, orderID int64, next domain.OrderStatus) (domain.Order, error)
	Cancel(ctx context.Context, orderID, userID int64) (domain.Order, error)
}

type IEventPublisher interface {
	PublishNewOrder(ctx context.Context, order domain.OrderProjection) error
	PublishOrderUpdate(ctx context.Context, order domain.OrderProjection) error
}
