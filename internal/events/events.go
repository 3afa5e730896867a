// Package events carries order lifecycle events over the broker. Running
// the hub off the broker instead of direct calls keeps the fan-out behind a
// substitutable backplane: a multi-instance deployment only needs every
// instance to subscribe.
package events

import (
	"canteen-system/internal/domain"
)

// Routing keys on the orders topic exchange.
const (
	RoutingKeyNewOrder    = "order.new"
	RoutingKeyOrderUpdate = "order.update"
)

// Event types.
const (
	TypeNewOrder     = "new_order"
	TypeOrderUpdate  = "order_update"
	TypeNotification = "notification"
)

type OrderEvent struct {
	Type  string                 `json:"type"`
	Order domain.OrderProjection `json:"order"`
}

type NotificationEvent struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Message  string       `json:"message"`
	Kind     string       `json:"kind"`
	Role     *domain.Role `json:"role,omitempty"`
	BranchID *int64       `json:"branch_id,omitempty"`
}
