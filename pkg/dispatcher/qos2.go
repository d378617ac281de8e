package dispatcher

import (
	"sync"
	"time"
)

// qos2RetransmitTimeout bounds how long a half-finished QoS2 handshake
// is kept before it is eligible for cleanup, per the exactly-once
// handshake's open-question resolution (retransmission is the peer's
// responsibility; this is a bound on state growth, not an active
// resend timer).
const qos2RetransmitTimeout = 20 * time.Second

type qos2Phase int

const (
	phasePubrecSent qos2Phase = iota
	phasePubrelReceived
)

type qos2State struct {
	phase    qos2Phase
	deadline time.Time
}

// qos2Table tracks the receiver-side state of the QoS2 four-way
// handshake (PUBLISH -> PUBREC -> PUBREL -> PUBCOMP) per in-flight
// packet id, so a completed handshake's packet id can be reused. One
// table serves every connection of a Manager and is keyed by packet id
// alone. A PUBREL is answered with PUBCOMP whether or not its id is
// tracked. The table is not consulted when a PUBLISH arrives, so a
// duplicate QoS2 PUBLISH is delivered to subscribers again and gets a
// fresh PUBREC.
type qos2Table struct {
	mu   sync.Mutex
	byID map[uint16]*qos2State
}

func newQoS2Table() *qos2Table {
	return &qos2Table{byID: make(map[uint16]*qos2State)}
}

// startIncoming records that a PUBLISH with packetID has been
// acknowledged with a PUBREC, awaiting the peer's PUBREL. Safe to call
// again for a duplicate (Dup-flagged) PUBLISH of the same id.
func (t *qos2Table) startIncoming(packetID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[packetID] = &qos2State{
		phase:    phasePubrecSent,
		deadline: time.Now().Add(qos2RetransmitTimeout),
	}
}

// completeIncoming marks packetID's handshake finished on receipt of
// PUBREL, freeing the id for reuse. Called even if the id was never
// tracked (a retransmitted PUBREL after this side already replied and
// forgot the state), so the PUBCOMP reply stays idempotent.
func (t *qos2Table) completeIncoming(packetID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, packetID)
}

// completeOutgoing clears the sender-side id on receipt of PUBCOMP for
// a publish this node originated (broker-to-subscriber QoS2 delivery).
func (t *qos2Table) completeOutgoing(packetID uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, packetID)
}

// sweepExpired drops handshake state past its deadline, bounding memory
// for clients that vanish mid-handshake. Manager.Start's ticker calls it
// every qos2SweepInterval, off the hot packet path.
func (t *qos2Table) sweepExpired(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, st := range t.byID {
		if now.After(st.deadline) {
			delete(t.byID, id)
		}
	}
}
