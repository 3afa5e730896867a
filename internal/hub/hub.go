// Package hub owns the live-connection registry and all fan-out. It is the
// only writer to the connections it holds; callers go through Connect,
// Disconnect and the broadcast operations, never the maps.
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/pkg/logger"

	"github.com/gorilla/websocket"
)

// Message types of the wire envelope.
const (
	TypeConnection   = "connection"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeOrderUpdate  = "order_update"
	TypeNewOrder     = "new_order"
	TypeNotification = "notification"
	TypeActiveOrders = "active_orders"
	TypeError        = "error"
)

// Message is the `{type, data}` envelope every frame carries. The extra
// fields show up only on the message types that use them.
type Message struct {
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	Role      string      `json:"role,omitempty"`
	BranchID  *int64      `json:"branch_id,omitempty"`
	Timestamp interface{} `json:"timestamp,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// Conn is the slice of a websocket connection the hub needs. Satisfied by
// *websocket.Conn; tests substitute fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// client wraps a connection with its registration and a write lock, since
// websocket connections allow one concurrent writer.
type client struct {
	conn     Conn
	role     domain.Role
	branchID *int64
	mu       sync.Mutex
}

// send writes one frame under a deadline, so a hung peer costs at most
// writeWait and never wedges the hub.
func (c *client) send(payload []byte, writeWait time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

const defaultWriteWait = 5 * time.Second

type Hub struct {
	mu        sync.RWMutex
	roles     map[domain.Role]map[Conn]*client
	branches  map[int64]map[Conn]*client
	clients   map[Conn]*client
	writeWait time.Duration
	log       *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		roles: map[domain.Role]map[Conn]*client{
			domain.RoleOwner:   {},
			domain.RoleAdmin:   {},
			domain.RoleCanteen: {},
			domain.RoleCashier: {},
			domain.RoleClient:  {},
		},
		branches:  map[int64]map[Conn]*client{},
		clients:   map[Conn]*client{},
		writeWait: defaultWriteWait,
		log:       log,
	}
}

// Connect registers the connection under its role and, when present, its
// branch, then sends the connection acknowledgement.
func (h *Hub) Connect(conn Conn, role domain.Role, branchID *int64) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRole, role)
	}

	c := &client{conn: conn, role: role, branchID: branchID}

	h.mu.Lock()
	h.clients[conn] = c
	h.roles[role][conn] = c
	if branchID != nil {
		if h.branches[*branchID] == nil {
			h.branches[*branchID] = map[Conn]*client{}
		}
		h.branches[*branchID][conn] = c
	}
	h.mu.Unlock()

	h.log.Info("", "ws_connected",
		fmt.Sprintf("connection registered: role=%s branch=%v", role, branchID))

	return h.sendTo(c, Message{
		Type:     TypeConnection,
		Message:  "connection established",
		Role:     string(role),
		BranchID: branchID,
	})
}

// Disconnect removes the connection from every set it belongs to.
// Idempotent; unknown connections are a no-op.
func (h *Hub) Disconnect(conn Conn) {
	h.mu.Lock()
	c, ok := h.clients[conn]
	if ok {
		delete(h.clients, conn)
		delete(h.roles[c.role], conn)
		if c.branchID != nil {
			delete(h.branches[*c.branchID], conn)
			if len(h.branches[*c.branchID]) == 0 {
				delete(h.branches, *c.branchID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		h.log.Info("", "ws_disconnected",
			fmt.Sprintf("connection removed: role=%s branch=%v", c.role, c.branchID))
	}
}

// Registered reports whether the connection is currently in the registry.
func (h *Hub) Registered(conn Conn) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[conn]
	return ok
}

// SendPersonal delivers one message to a single connection.
func (h *Hub) SendPersonal(conn Conn, msg Message) error {
	h.mu.RLock()
	c, ok := h.clients[conn]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection not registered")
	}
	return h.sendTo(c, msg)
}

func (h *Hub) sendTo(c *client, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.send(payload, h.writeWait); err != nil {
		h.drop(c, err)
		return err
	}
	return nil
}

// BroadcastToRole sends the message to every live connection registered
// under the role. A failed send drops that one connection and delivery to
// the rest continues.
func (h *Hub) BroadcastToRole(msg Message, role domain.Role) {
	h.broadcast(msg, h.snapshotRole(role))
}

// BroadcastToBranch sends the message to every live connection registered
// under the branch, with the same per-connection failure isolation.
func (h *Hub) BroadcastToBranch(msg Message, branchID int64) {
	h.broadcast(msg, h.snapshotBranch(branchID))
}

func (h *Hub) snapshotRole(role domain.Role) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make([]*client, 0, len(h.roles[role]))
	for _, c := range h.roles[role] {
		targets = append(targets, c)
	}
	return targets
}

func (h *Hub) snapshotBranch(branchID int64) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make([]*client, 0, len(h.branches[branchID]))
	for _, c := range h.branches[branchID] {
		targets = append(targets, c)
	}
	return targets
}

func (h *Hub) broadcast(msg Message, targets []*client) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("", "marshal_failed", "Failed to marshal broadcast message", err)
		return
	}
	for _, c := range targets {
		if err := c.send(payload, h.writeWait); err != nil {
			h.drop(c, err)
		}
	}
}

// drop treats a send failure as an implicit disconnect.
func (h *Hub) drop(c *client, cause error) {
	h.log.Warn("", "ws_send_failed",
		fmt.Sprintf("send failed, dropping connection: role=%s: %v", c.role, cause))
	h.Disconnect(c.conn)
	_ = c.conn.Close()
}

// BroadcastOrderUpdate fans an order status change out to the cashiers, the
// admin roles and the order's branch, in that order. Each target set is
// delivered independently.
func (h *Hub) BroadcastOrderUpdate(order domain.OrderProjection) {
	msg := Message{Type: TypeOrderUpdate, Data: order}
	h.BroadcastToRole(msg, domain.RoleCashier)
	h.BroadcastToRole(msg, domain.RoleAdmin)
	h.BroadcastToRole(msg, domain.RoleCanteen)
	h.BroadcastToBranch(msg, order.BranchID)
}

// BroadcastNewOrder announces a freshly created order to the same audience
// as BroadcastOrderUpdate.
func (h *Hub) BroadcastNewOrder(order domain.OrderProjection) {
	msg := Message{Type: TypeNewOrder, Data: order}
	h.BroadcastToRole(msg, domain.RoleCashier)
	h.BroadcastToRole(msg, domain.RoleAdmin)
	h.BroadcastToRole(msg, domain.RoleCanteen)
	h.BroadcastToBranch(msg, order.BranchID)
}

// Notification is the payload of a notification frame.
type Notification struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// SendNotification targets a role when given one, otherwise a branch when
// given one, otherwise everyone.
func (h *Hub) SendNotification(n Notification, role *domain.Role, branchID *int64) {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	msg := Message{Type: TypeNotification, Data: n}

	switch {
	case role != nil:
		h.BroadcastToRole(msg, *role)
	case branchID != nil:
		h.BroadcastToBranch(msg, *branchID)
	default:
		for _, r := range []domain.Role{
			domain.RoleOwner, domain.RoleAdmin, domain.RoleCanteen,
			domain.RoleCashier, domain.RoleClient,
		} {
			h.BroadcastToRole(msg, r)
		}
	}
}

// Shutdown closes every live connection and empties the registry.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[Conn]*client{}
	for role := range h.roles {
		h.roles[role] = map[Conn]*client{}
	}
	h.branches = map[int64]map[Conn]*client{}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}
