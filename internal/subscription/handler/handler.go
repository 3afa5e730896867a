package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"canteen-system/internal/auth"
	"canteen-system/internal/domain"
	"canteen-system/internal/subscription/core"
	"canteen-system/internal/subscription/service"
	"canteen-system/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SubscriptionHandler struct {
	subscriptions *service.SubscriptionService
	log           *logger.Logger
}

func NewSubscriptionHandler(subscriptions *service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, log: log}
}

func (h *SubscriptionHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(domain.RoleClient))
		r.Get("/client/subscriptions", h.ListPlans())
		r.Post("/client/subscriptions/purchase", h.Purchase())
		r.Get("/client/subscriptions/my", h.My())
	})
}

func (h *SubscriptionHandler) ListPlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := opContext(r.Context())
		defer cancel()

		plans, err := h.subscriptions.ListPlans(ctx)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, err)
			return
		}
		jsonResponse(w, http.StatusOK, plans)
	}
}

type purchaseRequest struct {
	SubscriptionID int64 `json:"subscription_id"`
}

func (h *SubscriptionHandler) Purchase() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		principal, _ := auth.PrincipalFrom(r.Context())

		var req purchaseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		ctx, cancel := opContext(r.Context())
		defer cancel()

		ent, err := h.subscriptions.Purchase(ctx, principal.UserID, req.SubscriptionID)
		if err != nil {
			if errors.Is(err, domain.ErrPlanNotFound) {
				jsonError(w, http.StatusNotFound, err)
				return
			}
			h.log.Error(requestID, "purchase_failed", "Failed to purchase subscription", err)
			jsonError(w, http.StatusInternalServerError, err)
			return
		}
		jsonResponse(w, http.StatusCreated, ent)
	}
}

func (h *SubscriptionHandler) My() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := auth.PrincipalFrom(r.Context())

		ctx, cancel := opContext(r.Context())
		defer cancel()

		ent, plan, err := h.subscriptions.My(ctx, principal.UserID)
		if err != nil {
			if errors.Is(err, domain.ErrNoEntitlement) {
				jsonError(w, http.StatusNotFound, err)
				return
			}
			jsonError(w, http.StatusInternalServerError, err)
			return
		}
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"subscription": ent,
			"plan":         plan,
		})
	}
}

func jsonResponse(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}

func opContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, core.WaitTime*time.Second)
}
