package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"canteen-system/internal/domain"
	"canteen-system/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	fail   bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("write: broken pipe")
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) messages(t *testing.T) []Message {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, 0, len(c.frames))
	for _, frame := range c.frames {
		var msg Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) lastType(t *testing.T) string {
	t.Helper()
	msgs := c.messages(t)
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1].Type
}

func newTestHub() *Hub {
	return NewHub(logger.NewWithWriter("test", nullWriter{}))
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func int64Ptr(n int64) *int64 { return &n }

func TestConnectSendsAck(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}

	require.NoError(t, h.Connect(conn, domain.RoleCashier, int64Ptr(3)))
	assert.True(t, h.Registered(conn))

	msgs := conn.messages(t)
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeConnection, msgs[0].Type)
	assert.Equal(t, string(domain.RoleCashier), msgs[0].Role)
	require.NotNil(t, msgs[0].BranchID)
	assert.Equal(t, int64(3), *msgs[0].BranchID)
}

func TestConnectRejectsUnknownRole(t *testing.T) {
	h := newTestHub()
	err := h.Connect(&fakeConn{}, domain.Role("superuser"), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownRole)
}

func TestBroadcastToRole(t *testing.T) {
	h := newTestHub()
	cashierA := &fakeConn{}
	cashierB := &fakeConn{}
	client := &fakeConn{}
	require.NoError(t, h.Connect(cashierA, domain.RoleCashier, nil))
	require.NoError(t, h.Connect(cashierB, domain.RoleCashier, nil))
	require.NoError(t, h.Connect(client, domain.RoleClient, nil))

	h.BroadcastToRole(Message{Type: TypeNotification, Message: "hi"}, domain.RoleCashier)

	assert.Equal(t, TypeNotification, cashierA.lastType(t))
	assert.Equal(t, TypeNotification, cashierB.lastType(t))
	assert.Len(t, client.messages(t), 1, "other roles get only their connect ack")
}

func TestBroadcastToBranch(t *testing.T) {
	h := newTestHub()
	branch3 := &fakeConn{}
	branch4 := &fakeConn{}
	require.NoError(t, h.Connect(branch3, domain.RoleClient, int64Ptr(3)))
	require.NoError(t, h.Connect(branch4, domain.RoleClient, int64Ptr(4)))

	h.BroadcastToBranch(Message{Type: TypeNotification}, 3)

	assert.Len(t, branch3.messages(t), 2)
	assert.Len(t, branch4.messages(t), 1)
}

func TestFailedSendDropsOnlyThatConnection(t *testing.T) {
	h := newTestHub()
	healthy := &fakeConn{}
	broken := &fakeConn{}
	require.NoError(t, h.Connect(healthy, domain.RoleCashier, nil))
	require.NoError(t, h.Connect(broken, domain.RoleCashier, nil))
	broken.fail = true

	h.BroadcastToRole(Message{Type: TypeNotification}, domain.RoleCashier)

	assert.Equal(t, TypeNotification, healthy.lastType(t))
	assert.False(t, h.Registered(broken))
	assert.True(t, broken.closed)
	assert.True(t, h.Registered(healthy))
}

func TestBroadcastOrderUpdateAudience(t *testing.T) {
	h := newTestHub()
	cashier := &fakeConn{}
	admin := &fakeConn{}
	canteen := &fakeConn{}
	owner := &fakeConn{}
	branchClient := &fakeConn{}
	otherClient := &fakeConn{}
	require.NoError(t, h.Connect(cashier, domain.RoleCashier, nil))
	require.NoError(t, h.Connect(admin, domain.RoleAdmin, nil))
	require.NoError(t, h.Connect(canteen, domain.RoleCanteen, nil))
	require.NoError(t, h.Connect(owner, domain.RoleOwner, nil))
	require.NoError(t, h.Connect(branchClient, domain.RoleClient, int64Ptr(7)))
	require.NoError(t, h.Connect(otherClient, domain.RoleClient, int64Ptr(8)))

	h.BroadcastOrderUpdate(domain.OrderProjection{ID: 1, BranchID: 7, Status: domain.StatusReady})

	assert.Equal(t, TypeOrderUpdate, cashier.lastType(t))
	assert.Equal(t, TypeOrderUpdate, admin.lastType(t))
	assert.Equal(t, TypeOrderUpdate, canteen.lastType(t))
	assert.Equal(t, TypeOrderUpdate, branchClient.lastType(t))
	assert.Len(t, owner.messages(t), 1, "owners are not in the order audience")
	assert.Len(t, otherClient.messages(t), 1)
}

func TestSendNotificationTargeting(t *testing.T) {
	h := newTestHub()
	admin := &fakeConn{}
	branchConn := &fakeConn{}
	require.NoError(t, h.Connect(admin, domain.RoleAdmin, nil))
	require.NoError(t, h.Connect(branchConn, domain.RoleClient, int64Ptr(2)))

	role := domain.RoleAdmin
	h.SendNotification(Notification{Title: "role"}, &role, nil)
	assert.Len(t, admin.messages(t), 2)
	assert.Len(t, branchConn.messages(t), 1)

	h.SendNotification(Notification{Title: "branch"}, nil, int64Ptr(2))
	assert.Len(t, admin.messages(t), 2)
	assert.Len(t, branchConn.messages(t), 2)

	h.SendNotification(Notification{Title: "all"}, nil, nil)
	assert.Len(t, admin.messages(t), 3)
	assert.Len(t, branchConn.messages(t), 3)
}

func TestSendPersonal(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	require.NoError(t, h.Connect(conn, domain.RoleClient, nil))

	require.NoError(t, h.SendPersonal(conn, Message{Type: TypePong}))
	assert.Equal(t, TypePong, conn.lastType(t))

	stranger := &fakeConn{}
	assert.Error(t, h.SendPersonal(stranger, Message{Type: TypePong}))
}

func TestDisconnectIdempotent(t *testing.T) {
	h := newTestHub()
	conn := &fakeConn{}
	require.NoError(t, h.Connect(conn, domain.RoleClient, int64Ptr(1)))

	h.Disconnect(conn)
	assert.False(t, h.Registered(conn))
	h.Disconnect(conn) // second call is a no-op

	h.BroadcastToBranch(Message{Type: TypeNotification}, 1)
	assert.Len(t, conn.messages(t), 1)
}

func TestShutdownClosesEverything(t *testing.T) {
	h := newTestHub()
	a := &fakeConn{}
	b := &fakeConn{}
	require.NoError(t, h.Connect(a, domain.RoleCashier, nil))
	require.NoError(t, h.Connect(b, domain.RoleClient, int64Ptr(1)))

	h.Shutdown()

	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.False(t, h.Registered(a))
	assert.False(t, h.Registered(b))
}
