package connection

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextConnIDIsMonotonicAndUnique(t *testing.T) {
	m := NewManager()
	a := m.NextConnID()
	b := m.NextConnID()
	assert.NotEqual(t, a, b)
	assert.Greater(t, b, a)
}

func TestAddAndGetConnection(t *testing.T) {
	m := NewManager()
	conn := NewConnection(m.NextConnID(), &net.TCPAddr{}, KindTCP)
	m.AddConnection(conn)

	got, ok := m.GetConnect(conn.ID)
	require.True(t, ok)
	assert.Equal(t, conn, got)
	assert.Equal(t, 1, m.Count())

	_, ok = m.GetConnect(conn.ID + 1)
	assert.False(t, ok)
}

func TestWriteTCPFrameMissingSink(t *testing.T) {
	m := NewManager()
	err := m.WriteTCPFrame(42, []byte("hello"))
	assert.Error(t, err)
}

func TestWriteTCPFrameWritesThroughSink(t *testing.T) {
	m := NewManager()
	var buf bytes.Buffer
	m.AddTCPWrite(7, NewWriteSink(&buf, nil))

	require.NoError(t, m.WriteTCPFrame(7, []byte("frame")))
	assert.Equal(t, "frame", buf.String())
}

func TestCloseConnectUnregistersAndSignalsStop(t *testing.T) {
	m := NewManager()
	conn := NewConnection(m.NextConnID(), &net.TCPAddr{}, KindTCP)
	m.AddConnection(conn)
	m.AddTCPWrite(conn.ID, NewWriteSink(&bytes.Buffer{}, nil))

	m.CloseConnect(conn.ID)

	_, ok := m.GetConnect(conn.ID)
	assert.False(t, ok)
	assert.Equal(t, StateClosed, conn.State)

	select {
	case <-conn.Stop:
	default:
		t.Fatal("expected conn.Stop to be closed")
	}

	// Closing twice must not panic on a double-close of Stop.
	assert.NotPanics(t, func() { m.CloseConnect(conn.ID) })
}
