package connection

import (
	"net"

	"github.com/robustmq/robustmq/pkg/packet"
)

// Kind identifies the transport a Connection was accepted over.
type Kind int

const (
	KindTCP Kind = iota
	KindTCPS
	KindWS
	KindWSS
	KindQUIC
)

// State is the per-connection lifecycle from the server's view, spec
// section 4.5: New -> Handshaking -> Established -> Closing -> Closed.
type State int

const (
	StateNew State = iota
	StateHandshaking
	StateEstablished
	StateClosing
	StateClosed
)

// Connection is the server-side record for one client socket.
type Connection struct {
	ID       uint64
	Addr     net.Addr
	Kind     Kind
	Protocol packet.ProtocolVersion
	State    State

	// ClientID and Username are set once the CONNECT packet is processed
	// and the connection is admitted; Username is copied from the CONNECT
	// packet whether or not secret-free login is on. Stop is created by
	// NewConnection.
	ClientID string
	Username string
	Stop     chan struct{}
}

// NewConnection builds a Connection in the New state.
func NewConnection(id uint64, addr net.Addr, kind Kind) *Connection {
	return &Connection{
		ID:    id,
		Addr:  addr,
		Kind:  kind,
		State: StateNew,
		Stop:  make(chan struct{}),
	}
}
