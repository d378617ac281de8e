package dispatcher

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/auth"
	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/connection"
	"github.com/robustmq/robustmq/pkg/metastore"
	"github.com/robustmq/robustmq/pkg/packet"
	"github.com/robustmq/robustmq/pkg/storage"
)

func newTestDispatcher() (*Manager, *connection.Manager) {
	connections := connection.NewManager()
	d := NewManager(connections, cache.NewManager(), storage.NewMemoryAdapter(), packet.NewMQTTCodec(), nil)
	return d, connections
}

func TestHandleConnectReturnsConnack(t *testing.T) {
	d, connections := newTestDispatcher()
	conn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	connections.AddConnection(conn)

	resp, send := d.Apply(conn, conn.Addr, &packet.ConnectPacket{ClientID: "client-a", ProtocolVersion: packet.Version311})

	require.True(t, send)
	ack, ok := resp.(*packet.ConnackPacket)
	require.True(t, ok)
	assert.Equal(t, packet.ReasonSuccess, ack.Reason)
	assert.Equal(t, connection.StateEstablished, conn.State)

	session, ok := d.Cache.GetSession("client-a")
	require.True(t, ok)
	assert.Equal(t, conn.ID, session.ConnID)
}

func TestHandleSubscribeAndWildcardFanOut(t *testing.T) {
	d, connections := newTestDispatcher()

	subConn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	subConn.ClientID = "subscriber"
	connections.AddConnection(subConn)
	connections.AddTCPWrite(subConn.ID, connection.NewWriteSink(discardWriter{}, nil))
	d.Cache.PutSession(&cache.Session{ClientID: "subscriber", ConnID: subConn.ID, Subscriptions: map[string]packet.SubscribeFilter{}})

	resp, send := d.Apply(subConn, subConn.Addr, &packet.SubscribePacket{
		PacketID: 1,
		Filters:  []packet.SubscribeFilter{{Topic: "sensors/#", QoS: packet.QoS1}},
	})
	require.True(t, send)
	suback := resp.(*packet.SubackPacket)
	assert.Equal(t, []packet.ReasonCode{packet.ReasonCode(packet.QoS1)}, suback.Reasons)

	assert.ElementsMatch(t, []string{"subscriber"}, d.Cache.Subscribers("sensors/room1/temp"))
}

func TestHandlePublishQoSLevels(t *testing.T) {
	d, connections := newTestDispatcher()
	conn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	connections.AddConnection(conn)

	_, send := d.Apply(conn, conn.Addr, &packet.PublishPacket{Topic: "t/a", Payload: []byte("x"), QoS: packet.QoS0})
	assert.False(t, send)

	resp, send := d.Apply(conn, conn.Addr, &packet.PublishPacket{Topic: "t/a", Payload: []byte("x"), QoS: packet.QoS1, PacketID: 5})
	require.True(t, send)
	assert.Equal(t, uint16(5), resp.(*packet.PubackPacket).PacketID)

	resp, send = d.Apply(conn, conn.Addr, &packet.PublishPacket{Topic: "t/a", Payload: []byte("x"), QoS: packet.QoS2, PacketID: 6})
	require.True(t, send)
	assert.Equal(t, uint16(6), resp.(*packet.PubrecPacket).PacketID)
}

func TestHandleDisconnectClearsSession(t *testing.T) {
	d, connections := newTestDispatcher()
	conn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	conn.ClientID = "client-a"
	connections.AddConnection(conn)
	d.Cache.PutSession(&cache.Session{ClientID: "client-a", ConnID: conn.ID, Subscriptions: map[string]packet.SubscribeFilter{"t/a": {Topic: "t/a"}}})
	d.Cache.Subscribe("t/a", "client-a")

	_, send := d.Apply(conn, conn.Addr, &packet.DisconnectPacket{})
	assert.False(t, send)

	_, ok := d.Cache.GetSession("client-a")
	assert.False(t, ok)
	assert.Empty(t, d.Cache.Subscribers("t/a"))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHandleConnectRejectsBadCredentials(t *testing.T) {
	d, connections := newTestDispatcher()
	backend := auth.NewMemoryBackend()
	hash, err := auth.HashPassword([]byte("s3cret"))
	require.NoError(t, err)
	backend.PutUser(&metastore.ACLUser{Username: "alice", PasswordHash: hash})
	d.Auth = auth.NewDriver(backend, false)

	conn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	connections.AddConnection(conn)

	resp, send := d.Apply(conn, conn.Addr, &packet.ConnectPacket{
		ClientID: "client-a", ProtocolVersion: packet.Version311,
		Username: "alice", Password: []byte("wrong"),
	})

	require.True(t, send)
	ack := resp.(*packet.ConnackPacket)
	assert.Equal(t, packet.ReasonBadUserNameOrPassword, ack.Reason)
	assert.Equal(t, connection.StateNew, conn.State)
	_, ok := d.Cache.GetSession("client-a")
	assert.False(t, ok)
}

func TestHandleConnectAdmitsGoodCredentials(t *testing.T) {
	d, connections := newTestDispatcher()
	backend := auth.NewMemoryBackend()
	hash, err := auth.HashPassword([]byte("s3cret"))
	require.NoError(t, err)
	backend.PutUser(&metastore.ACLUser{Username: "alice", PasswordHash: hash})
	d.Auth = auth.NewDriver(backend, false)

	conn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	connections.AddConnection(conn)

	resp, send := d.Apply(conn, conn.Addr, &packet.ConnectPacket{
		ClientID: "client-a", ProtocolVersion: packet.Version311,
		Username: "alice", Password: []byte("s3cret"),
	})

	require.True(t, send)
	assert.Equal(t, packet.ReasonSuccess, resp.(*packet.ConnackPacket).Reason)
	assert.Equal(t, "alice", conn.Username)
}

func TestHandlePublishRefusedWithoutACLGrant(t *testing.T) {
	d, connections := newTestDispatcher()
	d.Auth = auth.NewDriver(auth.NewMemoryBackend(), false)

	conn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	conn.Username = "alice"
	connections.AddConnection(conn)

	resp, send := d.Apply(conn, conn.Addr, &packet.PublishPacket{
		Topic: "t/a", Payload: []byte("x"), QoS: packet.QoS1, PacketID: 1,
	})

	require.True(t, send)
	assert.Equal(t, packet.ReasonNotAuthorized, resp.(*packet.PubackPacket).Reason)
}

func TestHandleSubscribeReturnsNotAuthorizedPerFilter(t *testing.T) {
	d, connections := newTestDispatcher()
	backend := auth.NewMemoryBackend()
	backend.PutRule(&metastore.ACLRule{
		ID: "r1", Username: "alice", Topic: "sensors/#",
		Permission: metastore.PermissionAllow, Action: metastore.ActionSubscribe,
	})
	d.Auth = auth.NewDriver(backend, false)

	conn := connection.NewConnection(connections.NextConnID(), &net.TCPAddr{}, connection.KindTCP)
	conn.ClientID = "alice"
	conn.Username = "alice"
	connections.AddConnection(conn)

	resp, send := d.Apply(conn, conn.Addr, &packet.SubscribePacket{
		PacketID: 1,
		Filters: []packet.SubscribeFilter{
			{Topic: "sensors/room1/temp", QoS: packet.QoS0},
			{Topic: "billing/#", QoS: packet.QoS0},
		},
	})

	require.True(t, send)
	suback := resp.(*packet.SubackPacket)
	assert.Equal(t, []packet.ReasonCode{packet.ReasonCode(packet.QoS0), packet.ReasonNotAuthorized}, suback.Reasons)
}
