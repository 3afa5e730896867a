// Package ws is the wire boundary of the broadcast hub: it upgrades HTTP
// requests, authenticates the principal and runs the per-connection receive
// loop.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"canteen-system/internal/auth"
	"canteen-system/internal/domain"
	"canteen-system/internal/hub"
	"canteen-system/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Close codes mirroring the auth failure modes.
const (
	closeTokenRequired = 4001
	closeInvalidRole   = 4002
	closeRoleMismatch  = 4003
	closeBadToken      = 4004
)

// OrderAPI is the slice of the order service the receive loop drives.
type OrderAPI interface {
	Transition(ctx context.Context, orderID int64, next domain.OrderStatus) (domain.Order, error)
	ListActive(ctx context.Context, branchID *int64) ([]domain.Order, error)
}

type Handler struct {
	hub      *hub.Hub
	orders   OrderAPI
	verifier *auth.Verifier
	upgrader websocket.Upgrader
	log      *logger.Logger
}

func NewHandler(h *hub.Hub, orders OrderAPI, verifier *auth.Verifier, log *logger.Logger) *Handler {
	return &Handler{
		hub:      h,
		orders:   orders,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth happens via the token, not the origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: log,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{role}", h.Serve())
	return r
}

func (h *Handler) Serve() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := domain.Role(chi.URLParam(r, "role"))
		token := r.URL.Query().Get("token")

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.log.Error("", "ws_upgrade_failed", "Failed to upgrade connection", err)
			return
		}

		if !role.Valid() {
			closeWith(conn, closeInvalidRole, "invalid role")
			return
		}
		if token == "" {
			closeWith(conn, closeTokenRequired, "token required")
			return
		}

		principal, err := h.verifier.Verify(token)
		if err != nil {
			closeWith(conn, closeBadToken, "token verification failed")
			return
		}
		if principal.Role != role {
			closeWith(conn, closeRoleMismatch, "role mismatch")
			return
		}

		if err := h.hub.Connect(conn, role, principal.BranchID); err != nil {
			conn.Close()
			return
		}
		defer func() {
			h.hub.Disconnect(conn)
			conn.Close()
		}()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			h.HandleMessage(r.Context(), conn, principal, payload)
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}

// inboundMessage covers every inbound shape. order_status_update carries
// its parameters in data, with a flat fallback kept for older clients.
type inboundMessage struct {
	Type      string      `json:"type"`
	Timestamp interface{} `json:"timestamp,omitempty"`
	Data      struct {
		OrderID int64  `json:"order_id"`
		Status  string `json:"status"`
	} `json:"data"`
	OrderID int64  `json:"order_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// wireStatus maps the restricted inbound status vocabulary onto the state
// machine. "accepted" parses but the order service refuses it: acceptance
// goes through QR redemption, never through a plain status message.
var wireStatus = map[string]domain.OrderStatus{
	"pending":   domain.StatusPending,
	"accepted":  domain.StatusAccepted,
	"completed": domain.StatusGiven,
	"cancelled": domain.StatusCancelled,
}

// HandleMessage dispatches one inbound frame. A malformed frame earns an
// error reply, never a dropped connection.
func (h *Handler) HandleMessage(ctx context.Context, conn hub.Conn, principal auth.Principal, payload []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Type == "" {
		h.replyError(conn, "invalid message format")
		return
	}

	switch msg.Type {
	case hub.TypePing:
		_ = h.hub.SendPersonal(conn, hub.Message{
			Type:      hub.TypePong,
			Timestamp: msg.Timestamp,
		})

	case "order_status_update":
		h.handleStatusUpdate(ctx, conn, principal, msg)

	case "get_active_orders":
		h.handleActiveOrders(ctx, conn, principal)

	default:
		h.replyError(conn, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (h *Handler) handleStatusUpdate(ctx context.Context, conn hub.Conn, principal auth.Principal, msg inboundMessage) {
	if !principal.Role.Staff() {
		h.replyError(conn, "order status updates are staff-only")
		return
	}

	orderID := msg.Data.OrderID
	status := msg.Data.Status
	if orderID == 0 {
		orderID = msg.OrderID
	}
	if status == "" {
		status = msg.Status
	}
	if orderID == 0 || status == "" {
		h.replyError(conn, "order_id and status are required")
		return
	}

	next, ok := wireStatus[status]
	if !ok {
		h.replyError(conn, "invalid status, must be one of: pending, accepted, completed, cancelled")
		return
	}

	if _, err := h.orders.Transition(ctx, orderID, next); err != nil {
		if isBusinessError(err) {
			h.replyError(conn, err.Error())
			return
		}
		h.log.Error("", "ws_status_update_failed", "Failed to update order status", err)
		h.replyError(conn, "failed to update order status")
	}
	// The update broadcast rides the event pipeline; nothing to send here.
}

func (h *Handler) handleActiveOrders(ctx context.Context, conn hub.Conn, principal auth.Principal) {
	orders, err := h.orders.ListActive(ctx, principal.BranchID)
	if err != nil {
		h.log.Error("", "ws_active_orders_failed", "Failed to list active orders", err)
		h.replyError(conn, "failed to list active orders")
		return
	}

	projections := make([]domain.OrderProjection, 0, len(orders))
	for _, o := range orders {
		projections = append(projections, domain.ProjectOrderPublic(o))
	}
	_ = h.hub.SendPersonal(conn, hub.Message{
		Type: hub.TypeActiveOrders,
		Data: projections,
	})
}

func (h *Handler) replyError(conn hub.Conn, reason string) {
	_ = h.hub.SendPersonal(conn, hub.Message{
		Type:    hub.TypeError,
		Message: reason,
	})
}

func isBusinessError(err error) bool {
	return errors.Is(err, domain.ErrIllegalTransition) ||
		errors.Is(err, domain.ErrOrderNotFound) ||
		errors.Is(err, domain.ErrUnknownStatus)
}
