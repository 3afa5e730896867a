package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"canteen-system/internal/auth"
	"canteen-system/internal/domain"
	"canteen-system/internal/order/core"
	"canteen-system/internal/order/service"
	"canteen-system/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderHandler struct {
	orders *service.OrderService
	log    *logger.Logger
}

func NewOrderHandler(orders *service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

// Register attaches the client- and cashier-facing order endpoints. Auth
// middleware is expected to sit above this router.
func (h *OrderHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleClient))
		r.Post("/client/orders", h.Create())
		r.Get("/client/orders", h.ListMine())
		r.Get("/client/orders/last", h.LastMine())
		r.Get("/client/orders/{id}", h.GetMine())
		r.Post("/client/orders/{id}/cancel", h.Cancel())
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleCashier, domain.RoleCanteen, domain.RoleAdmin, domain.RoleOwner))
		r.Post("/cashier/orders/verify-qr/{token}", h.VerifyQR())
		r.Post("/cashier/orders/{id}/accept", h.Accept())
		r.Post("/cashier/orders/{id}/cooking", h.Transition(domain.StatusCooking))
		r.Post("/cashier/orders/{id}/ready", h.Transition(domain.StatusReady))
		r.Post("/cashier/orders/{id}/given", h.Transition(domain.StatusGiven))
		r.Get("/cashier/orders/pending", h.ListBranch(domain.StatusPending))
		r.Get("/cashier/orders/accepted", h.ListBranch(domain.StatusAccepted))
	})
}

type createOrderRequest struct {
	BranchID int64              `json:"branch_id"`
	Items    []core.ItemRequest `json:"items"`
}

func (h *OrderHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		principal, _ := auth.PrincipalFrom(r.Context())

		var req createOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := opContext(r.Context())
		defer cancel()

		order, err := h.orders.Create(ctx, principal.UserID, req.BranchID, req.Items)
		if err != nil {
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				h.log.Error(requestID, "create_order_failed", "Failed to create order", err)
			}
			jsonError(w, code, err)
			return
		}

		h.log.Info(requestID, "order_created", "Order created")
		jsonResponse(w, http.StatusCreated, domain.ProjectOrder(order))
	}
}

func (h *OrderHandler) ListMine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.PrincipalFrom(r.Context())

		ctx, cancel := opContext(r.Context())
		defer cancel()

		orders, err := h.orders.ListByUser(ctx, principal.UserID)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, projectAll(orders))
	}
}

func (h *OrderHandler) LastMine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.PrincipalFrom(r.Context())

		ctx, cancel := opContext(r.Context())
		defer cancel()

		order, err := h.orders.LastByUser(ctx, principal.UserID)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, domain.ProjectOrder(order))
	}
}

func (h *OrderHandler) GetMine() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.PrincipalFrom(r.Context())

		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := opContext(r.Context())
		defer cancel()

		order, err := h.orders.Get(ctx, orderID)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		if order.UserID != principal.UserID {
			jsonError(w, http.StatusNotFound, domain.ErrOrderNotFound)
			return
		}
		jsonResponse(w, http.StatusOK, domain.ProjectOrder(order))
	}
}

func (h *OrderHandler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.PrincipalFrom(r.Context())

		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := opContext(r.Context())
		defer cancel()

		order, err := h.orders.Cancel(ctx, orderID, principal.UserID)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, domain.ProjectOrder(order))
	}
}

func (h *OrderHandler) VerifyQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := chi.URLParam(r, "token")

		ctx, cancel := opContext(r.Context())
		defer cancel()

		order, err := h.orders.VerifyQR(ctx, token)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"valid": true,
			"order": domain.ProjectOrderPublic(order),
		})
	}
}

type acceptRequest struct {
	QRToken string `json:"qr_token"`
}

func (h *OrderHandler) Accept() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()

		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		var req acceptRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := opContext(r.Context())
		defer cancel()

		order, err := h.orders.Accept(ctx, orderID, req.QRToken)
		if err != nil {
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				h.log.Error(requestID, "accept_order_failed", "Failed to accept order", err)
			}
			jsonError(w, code, err)
			return
		}
		jsonResponse(w, http.StatusOK, domain.ProjectOrderPublic(order))
	}
}

func (h *OrderHandler) Transition(next domain.OrderStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()

		orderID, err := pathID(r, "id")
		if err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := opContext(r.Context())
		defer cancel()

		order, err := h.orders.Transition(ctx, orderID, next)
		if err != nil {
			code := statusFor(err)
			if code == http.StatusInternalServerError {
				h.log.Error(requestID, "transition_failed", "Failed to change order status", err)
			}
			jsonError(w, code, err)
			return
		}
		jsonResponse(w, http.StatusOK, domain.ProjectOrderPublic(order))
	}
}

func (h *OrderHandler) ListBranch(status domain.OrderStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.PrincipalFrom(r.Context())
		if principal.BranchID == nil {
			jsonError(w, http.StatusBadRequest, domain.ErrBranchNotFound)
			return
		}

		ctx, cancel := opContext(r.Context())
		defer cancel()

		orders, err := h.orders.ListByBranchStatus(ctx, *principal.BranchID, status)
		if err != nil {
			jsonError(w, statusFor(err), err)
			return
		}
		jsonResponse(w, http.StatusOK, projectAllPublic(orders))
	}
}

func projectAll(orders []domain.Order) []domain.OrderProjection {
	projections := make([]domain.OrderProjection, 0, len(orders))
	for _, o := range orders {
		projections = append(projections, domain.ProjectOrder(o))
	}
	return projections
}

func projectAllPublic(orders []domain.Order) []domain.OrderProjection {
	projections := make([]domain.OrderProjection, 0, len(orders))
	for _, o := range orders {
		projections = append(projections, domain.ProjectOrderPublic(o))
	}
	return projections
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func opContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, core.WaitTime*time.Second)
}
