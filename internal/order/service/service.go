package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/internal/order/core"
	"canteen-system/pkg/logger"
)

type OrderService struct {
	repo      core.IOrderRepo
	publisher core.IEventPublisher
	qrExpiry  time.Duration
	log       *logger.Logger
	now       func() time.Time
}

func NewOrderService(repo core.IOrderRepo, publisher core.IEventPublisher, qrExpiry time.Duration, log *logger.Logger) *OrderService {
	return &OrderService{
		repo:      repo,
		publisher: publisher,
		qrExpiry:  qrExpiry,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service clock, for tests.
func (s *OrderService) WithClock(now func() time.Time) *OrderService {
	s.now = now
	return s
}

// Create validates the request shape, issues the QR credential and runs the
// order transaction. A broker publish failure after commit is logged but
// does not undo the order; once committed it is final.
func (s *OrderService) Create(ctx context.Context, userID, branchID int64, items []core.ItemRequest) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, domain.ErrEmptyOrder
	}
	if len(items) > core.MaxItemsPerOrder {
		return domain.Order{}, fmt.Errorf("%w: at most %d items", domain.ErrEmptyOrder, core.MaxItemsPerOrder)
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: food %d", domain.ErrInvalidQuantity, item.FoodID)
		}
	}

	token, err := generateQRToken()
	if err != nil {
		return domain.Order{}, fmt.Errorf("generate qr token: %w", err)
	}

	now := s.now().UTC()
	order, err := s.repo.Create(ctx, core.CreateOrderParams{
		UserID:     userID,
		BranchID:   branchID,
		Items:      items,
		QRCode:     token,
		QRExpireAt: now.Add(s.qrExpiry),
		Now:        now,
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("", "order_created",
		fmt.Sprintf("order %d created for user %d, total %.2f", order.ID, userID, order.TotalPrice))

	if err := s.publisher.PublishNewOrder(ctx, domain.ProjectOrderPublic(order)); err != nil {
		s.log.Error("", "publish_failed", "Failed to publish new_order event", err)
	}
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, orderID int64) (domain.Order, error) {
	return s.repo.GetByID(ctx, orderID)
}

func (s *OrderService) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *OrderService) LastByUser(ctx context.Context, userID int64) (domain.Order, error) {
	return s.repo.LastByUser(ctx, userID)
}

func (s *OrderService) ListByBranchStatus(ctx context.Context, branchID int64, statuses ...domain.OrderStatus) ([]domain.Order, error) {
	return s.repo.ListByBranchStatus(ctx, branchID, statuses)
}

func (s *OrderService) ListActive(ctx context.Context, branchID *int64) ([]domain.Order, error) {
	return s.repo.ListActive(ctx, branchID)
}

// VerifyQR is the cashier's read-only check before acceptance.
func (s *OrderService) VerifyQR(ctx context.Context, token string) (domain.Order, error) {
	return s.repo.VerifyQR(ctx, token, s.now().UTC())
}

// Accept redeems the QR token and moves the order to accepted.
func (s *OrderService) Accept(ctx context.Context, orderID int64, token string) (domain.Order, error) {
	order, err := s.repo.Accept(ctx, orderID, token, s.now().UTC())
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("", "order_accepted", fmt.Sprintf("order %d accepted", order.ID))
	s.publishUpdate(ctx, order)
	return order, nil
}

// Transition drives the staff pipeline. The accepted state is reachable
// only through Accept, which enforces the QR gate; asking for it here is an
// illegal transition regardless of the current state.
func (s *OrderService) Transition(ctx context.Context, orderID int64, next domain.OrderStatus) (domain.Order, error) {
	if next == domain.StatusAccepted {
		return domain.Order{}, fmt.Errorf("%w: accepted requires qr redemption", domain.ErrIllegalTransition)
	}

	order, err := s.repo.Transition(ctx, orderID, next)
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("", "order_status_changed",
		fmt.Sprintf("order %d moved to %s", order.ID, order.Status))
	s.publishUpdate(ctx, order)
	return order, nil
}

func (s *OrderService) Cancel(ctx context.Context, orderID, userID int64) (domain.Order, error) {
	order, err := s.repo.Cancel(ctx, orderID, userID)
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("", "order_cancelled", fmt.Sprintf("order %d cancelled by owner", order.ID))
	s.publishUpdate(ctx, order)
	return order, nil
}

func (s *OrderService) publishUpdate(ctx context.Context, order domain.Order) {
	if err := s.publisher.PublishOrderUpdate(ctx, domain.ProjectOrderPublic(order)); err != nil {
		s.log.Error("", "publish_failed", "Failed to publish order_update event", err)
	}
}

// generateQRToken returns 32 bytes of cryptographic randomness, URL-safe
// base64 encoded. Uniqueness is additionally backed by the column's unique
// constraint; a collision there is treated as an integrity fault upstream.
func generateQRToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
