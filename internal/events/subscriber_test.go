package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/internal/hub"
	"canteen-system/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) Close() error                     { return nil }

func (c *fakeConn) last(t *testing.T) hub.Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.frames)
	var msg hub.Message
	require.NoError(t, json.Unmarshal(c.frames[len(c.frames)-1], &msg))
	return msg
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

// The dispatch path from broker body to hub broadcast needs no live broker;
// the subscriber only touches the channel inside Start.
func newDispatchTest(t *testing.T, role domain.Role) (*Subscriber, *fakeConn) {
	t.Helper()
	log := logger.NewWithWriter("test", nullWriter{})
	h := hub.NewHub(log)
	conn := &fakeConn{}
	require.NoError(t, h.Connect(conn, role, nil))
	conn.frames = nil
	return NewSubscriber(nil, h, log), conn
}

func TestHandleOrderEventNewOrder(t *testing.T) {
	sub, conn := newDispatchTest(t, domain.RoleCashier)

	body, err := json.Marshal(OrderEvent{
		Type:  TypeNewOrder,
		Order: domain.OrderProjection{ID: 9, BranchID: 3, Status: domain.StatusPending},
	})
	require.NoError(t, err)

	require.NoError(t, sub.handleOrderEvent(body))
	assert.Equal(t, hub.TypeNewOrder, conn.last(t).Type)
}

func TestHandleOrderEventUpdate(t *testing.T) {
	sub, conn := newDispatchTest(t, domain.RoleAdmin)

	body, err := json.Marshal(OrderEvent{
		Type:  TypeOrderUpdate,
		Order: domain.OrderProjection{ID: 9, BranchID: 3, Status: domain.StatusReady},
	})
	require.NoError(t, err)

	require.NoError(t, sub.handleOrderEvent(body))
	assert.Equal(t, hub.TypeOrderUpdate, conn.last(t).Type)
}

func TestHandleOrderEventRejectsUnknownType(t *testing.T) {
	sub, conn := newDispatchTest(t, domain.RoleCashier)

	assert.Error(t, sub.handleOrderEvent([]byte(`{"type":"order_deleted"}`)))
	assert.Error(t, sub.handleOrderEvent([]byte(`{not json`)))
	assert.Empty(t, conn.frames)
}

func TestHandleNotificationRoleTargeted(t *testing.T) {
	sub, conn := newDispatchTest(t, domain.RoleCashier)

	role := domain.RoleCashier
	body, err := json.Marshal(NotificationEvent{
		Type: TypeNotification, Title: "shift", Message: "closing soon", Role: &role,
	})
	require.NoError(t, err)

	require.NoError(t, sub.handleNotification(body))
	msg := conn.last(t)
	assert.Equal(t, hub.TypeNotification, msg.Type)
}

func TestHandleNotificationRejectsUnknownRole(t *testing.T) {
	sub, conn := newDispatchTest(t, domain.RoleCashier)

	bad := domain.Role("superuser")
	body, err := json.Marshal(NotificationEvent{Type: TypeNotification, Role: &bad})
	require.NoError(t, err)

	assert.ErrorIs(t, sub.handleNotification(body), domain.ErrUnknownRole)
	assert.Empty(t, conn.frames)
}
