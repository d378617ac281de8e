package packet

import (
	"encoding/binary"
	"fmt"
	"io"
)

// packet type values occupy the fixed header's high nibble (MQTT 3.1.1
// section 2.2.1 / MQTT 5.0 section 2.1.2 — identical across versions).
const (
	ptConnect     = 1
	ptConnack     = 2
	ptPublish     = 3
	ptPuback      = 4
	ptPubrec      = 5
	ptPubrel      = 6
	ptPubcomp     = 7
	ptSubscribe   = 8
	ptSuback      = 9
	ptUnsubscribe = 10
	ptUnsuback    = 11
	ptPingreq     = 12
	ptPingresp    = 13
	ptDisconnect  = 14
)

// MQTTCodec implements Codec against the MQTT 3.1, 3.1.1 and 5.0 wire
// formats. A connection's negotiated ProtocolVersion gates only the
// properties blocks MQTT 5 adds on top of the 3.1.1 frame shapes; the
// fixed header and remaining-length encoding are shared across all three.
type MQTTCodec struct{}

// NewMQTTCodec builds the production Codec used by pkg/network.
func NewMQTTCodec() *MQTTCodec { return &MQTTCodec{} }

// Decode implements Codec.
func (c *MQTTCodec) Decode(buf []byte, version ProtocolVersion) ([]Packet, int, error) {
	var packets []Packet
	total := 0
	for {
		frame := buf[total:]
		if len(frame) < 2 {
			break
		}
		remLen, n, ok := decodeVarInt(frame[1:])
		if !ok {
			if len(frame)-1 >= 4 {
				return packets, total, fmt.Errorf("packet: remaining length field exceeds 4 bytes")
			}
			break
		}
		headerLen := 1 + n
		frameLen := headerLen + remLen
		if len(frame) < frameLen {
			break
		}
		pkt, err := decodeFrame(frame[0], frame[headerLen:frameLen], version)
		if err != nil {
			return packets, total, err
		}
		packets = append(packets, pkt)
		total += frameLen
	}
	return packets, total, nil
}

// Encode implements Codec.
func (c *MQTTCodec) Encode(w Wrapper) ([]byte, error) {
	switch p := w.Packet.(type) {
	case *ConnectPacket:
		return encodeConnect(p), nil
	case *ConnackPacket:
		return encodeConnack(p, w.ProtocolVersion), nil
	case *PublishPacket:
		return encodePublish(p, w.ProtocolVersion), nil
	case *PubackPacket:
		return encodePacketIDReason(ptPuback, 0, p.PacketID, p.Reason, w.ProtocolVersion), nil
	case *PubrecPacket:
		return encodePacketIDReason(ptPubrec, 0, p.PacketID, p.Reason, w.ProtocolVersion), nil
	case *PubrelPacket:
		return encodePacketIDReason(ptPubrel, 0x02, p.PacketID, p.Reason, w.ProtocolVersion), nil
	case *PubcompPacket:
		return encodePacketIDReason(ptPubcomp, 0, p.PacketID, p.Reason, w.ProtocolVersion), nil
	case *SubscribePacket:
		return encodeSubscribe(p, w.ProtocolVersion), nil
	case *SubackPacket:
		return encodeSuback(p, w.ProtocolVersion), nil
	case *UnsubscribePacket:
		return encodeUnsubscribe(p, w.ProtocolVersion), nil
	case *UnsubackPacket:
		return encodeUnsuback(p, w.ProtocolVersion), nil
	case *PingreqPacket:
		return frame(ptPingreq, 0, nil), nil
	case *PingrespPacket:
		return frame(ptPingresp, 0, nil), nil
	case *DisconnectPacket:
		return encodeDisconnect(p, w.ProtocolVersion), nil
	default:
		return nil, fmt.Errorf("packet: encode: unsupported packet type %T", w.Packet)
	}
}

// --- variable byte integer (MQTT 3.1.1 section 2.2.3) ---

func decodeVarInt(buf []byte) (value int, n int, ok bool) {
	multiplier := 1
	for i := 0; i < 4 && i < len(buf); i++ {
		b := buf[i]
		value += int(b&0x7f) * multiplier
		n++
		if b&0x80 == 0 {
			return value, n, true
		}
		multiplier *= 128
	}
	return 0, 0, false
}

func encodeVarInt(value int) []byte {
	var out []byte
	for {
		b := byte(value % 128)
		value /= 128
		if value > 0 {
			b |= 0x80
		}
		out = append(out, b)
		if value == 0 {
			break
		}
	}
	return out
}

func frame(ptype byte, flags byte, body []byte) []byte {
	out := append([]byte{(ptype << 4) | flags}, encodeVarInt(len(body))...)
	return append(out, body...)
}

// --- cursor-based reader over one already-framed packet body ---

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) byte() (byte, error) {
	if r.remaining() < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint16() (uint16, error) {
	if r.remaining() < 2 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) bytesN(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) string() (string, error) {
	n, err := r.uint16()
	if err != nil {
		return "", err
	}
	b, err := r.bytesN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) varInt() (int, error) {
	v, n, ok := decodeVarInt(r.buf[r.pos:])
	if !ok {
		return 0, io.ErrUnexpectedEOF
	}
	r.pos += n
	return v, nil
}

func appendString(buf []byte, s string) []byte {
	buf = appendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func appendUint16(buf []byte, v uint16) []byte {
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], v)
	return append(buf, n[:]...)
}

// --- MQTT 5 properties (MQTT 5.0 section 2.2.2) ---
//
// Each property identifier has a fixed wire encoding independent of which
// packet carries it, so one parser serves every packet type; callers only
// look at the fields they care about and ignore the rest.

type propType int

const (
	propByte propType = iota
	propTwoByteInt
	propFourByteInt
	propVarInt
	propUTF8String
	propUTF8StringPair
	propBinaryData
)

var propertyTypes = map[byte]propType{
	0x01: propByte,
	0x02: propFourByteInt,
	0x03: propUTF8String,
	0x08: propUTF8String,
	0x09: propBinaryData,
	0x0B: propVarInt,
	0x11: propFourByteInt,
	0x12: propUTF8String,
	0x13: propTwoByteInt,
	0x15: propUTF8String,
	0x16: propBinaryData,
	0x17: propByte,
	0x18: propFourByteInt,
	0x19: propByte,
	0x1A: propUTF8String,
	0x1C: propUTF8String,
	0x1F: propUTF8String,
	0x21: propTwoByteInt,
	0x22: propTwoByteInt,
	0x23: propTwoByteInt,
	0x24: propByte,
	0x25: propByte,
	0x26: propUTF8StringPair,
	0x27: propFourByteInt,
	0x28: propByte,
	0x29: propByte,
	0x2A: propByte,
}

type decodedProperties struct {
	userProperties  map[string]string
	subscriptionIDs []uint32
	serverKeepAlive uint16
	receiveMax      uint16
	topicAliasMax   uint16
	maxPacketSize   uint32
}

func parseProperties(r *reader) (*decodedProperties, error) {
	length, err := r.varInt()
	if err != nil {
		return nil, err
	}
	end := r.pos + length
	props := &decodedProperties{}
	for r.pos < end {
		id, err := r.byte()
		if err != nil {
			return nil, err
		}
		kind, known := propertyTypes[id]
		if !known {
			return nil, fmt.Errorf("packet: unknown property identifier 0x%02x", id)
		}
		switch kind {
		case propByte:
			if _, err := r.byte(); err != nil {
				return nil, err
			}
		case propTwoByteInt:
			v, err := r.uint16()
			if err != nil {
				return nil, err
			}
			switch id {
			case 0x13:
				props.serverKeepAlive = v
			case 0x21:
				props.receiveMax = v
			case 0x22:
				props.topicAliasMax = v
			}
		case propFourByteInt:
			b, err := r.bytesN(4)
			if err != nil {
				return nil, err
			}
			if id == 0x27 {
				props.maxPacketSize = binary.BigEndian.Uint32(b)
			}
		case propVarInt:
			v, err := r.varInt()
			if err != nil {
				return nil, err
			}
			props.subscriptionIDs = append(props.subscriptionIDs, uint32(v))
		case propUTF8String:
			if _, err := r.string(); err != nil {
				return nil, err
			}
		case propUTF8StringPair:
			k, err := r.string()
			if err != nil {
				return nil, err
			}
			v, err := r.string()
			if err != nil {
				return nil, err
			}
			if props.userProperties == nil {
				props.userProperties = map[string]string{}
			}
			props.userProperties[k] = v
		case propBinaryData:
			n, err := r.uint16()
			if err != nil {
				return nil, err
			}
			if _, err := r.bytesN(int(n)); err != nil {
				return nil, err
			}
		}
	}
	return props, nil
}

type propertyWriter struct{ buf []byte }

func (w *propertyWriter) writeTwoByteInt(id byte, v uint16) {
	w.buf = append(w.buf, id)
	w.buf = appendUint16(w.buf, v)
}

func (w *propertyWriter) writeFourByteInt(id byte, v uint32) {
	w.buf = append(w.buf, id)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *propertyWriter) writeVarInt(id byte, v int) {
	w.buf = append(w.buf, id)
	w.buf = append(w.buf, encodeVarInt(v)...)
}

func (w *propertyWriter) writeStringPair(id byte, k, v string) {
	w.buf = append(w.buf, id)
	w.buf = appendString(w.buf, k)
	w.buf = appendString(w.buf, v)
}

func (w *propertyWriter) bytes() []byte {
	return append(encodeVarInt(len(w.buf)), w.buf...)
}

// --- per-packet decode ---

func decodeFrame(b0 byte, body []byte, version ProtocolVersion) (Packet, error) {
	ptype := b0 >> 4
	flags := b0 & 0x0f
	switch ptype {
	case ptConnect:
		return decodeConnect(body)
	case ptConnack:
		return decodeConnack(body, version)
	case ptPublish:
		return decodePublish(body, version, flags)
	case ptPuback:
		id, reason, err := decodePacketIDReason(body, version)
		return &PubackPacket{PacketID: id, Reason: reason}, err
	case ptPubrec:
		id, reason, err := decodePacketIDReason(body, version)
		return &PubrecPacket{PacketID: id, Reason: reason}, err
	case ptPubrel:
		id, reason, err := decodePacketIDReason(body, version)
		return &PubrelPacket{PacketID: id, Reason: reason}, err
	case ptPubcomp:
		id, reason, err := decodePacketIDReason(body, version)
		return &PubcompPacket{PacketID: id, Reason: reason}, err
	case ptSubscribe:
		return decodeSubscribe(body, version)
	case ptSuback:
		return decodeSuback(body, version)
	case ptUnsubscribe:
		return decodeUnsubscribe(body, version)
	case ptUnsuback:
		return decodeUnsuback(body, version)
	case ptPingreq:
		return &PingreqPacket{}, nil
	case ptPingresp:
		return &PingrespPacket{}, nil
	case ptDisconnect:
		return decodeDisconnect(body, version)
	default:
		return nil, fmt.Errorf("packet: unknown packet type %d", ptype)
	}
}

func decodeConnect(body []byte) (*ConnectPacket, error) {
	r := &reader{buf: body}
	if _, err := r.string(); err != nil { // protocol name, "MQTT" or "MQIsdp"
		return nil, err
	}
	level, err := r.byte()
	if err != nil {
		return nil, err
	}
	version := ProtocolVersion(level)
	flags, err := r.byte()
	if err != nil {
		return nil, err
	}
	keepAlive, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if version == Version5 {
		if _, err := parseProperties(r); err != nil {
			return nil, err
		}
	}
	clientID, err := r.string()
	if err != nil {
		return nil, err
	}

	p := &ConnectPacket{
		ProtocolVersion: version,
		ClientID:        clientID,
		CleanStart:      flags&0x02 != 0,
		KeepAliveSec:    keepAlive,
	}

	if flags&0x04 != 0 { // will flag
		if version == Version5 {
			if _, err := parseProperties(r); err != nil {
				return nil, err
			}
		}
		topic, err := r.string()
		if err != nil {
			return nil, err
		}
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		payload, err := r.bytesN(int(n))
		if err != nil {
			return nil, err
		}
		p.WillTopic = topic
		p.WillPayload = payload
		p.WillQoS = QoS((flags >> 3) & 0x03)
		p.WillRetain = flags&0x20 != 0
	}
	if flags&0x80 != 0 { // username flag
		u, err := r.string()
		if err != nil {
			return nil, err
		}
		p.Username = u
	}
	if flags&0x40 != 0 { // password flag
		n, err := r.uint16()
		if err != nil {
			return nil, err
		}
		pw, err := r.bytesN(int(n))
		if err != nil {
			return nil, err
		}
		p.Password = pw
	}
	return p, nil
}

func decodeConnack(body []byte, version ProtocolVersion) (*ConnackPacket, error) {
	r := &reader{buf: body}
	ackFlags, err := r.byte()
	if err != nil {
		return nil, err
	}
	reasonByte, err := r.byte()
	if err != nil {
		return nil, err
	}
	p := &ConnackPacket{SessionPresent: ackFlags&0x01 != 0, Reason: ReasonCode(reasonByte)}
	if version == Version5 && r.remaining() > 0 {
		props, err := parseProperties(r)
		if err != nil {
			return nil, err
		}
		p.ServerKeepAlive = props.serverKeepAlive
		p.ReceiveMax = props.receiveMax
		p.TopicAliasMax = props.topicAliasMax
		p.MaxPacketSize = props.maxPacketSize
	}
	return p, nil
}

func decodePublish(body []byte, version ProtocolVersion, flags byte) (*PublishPacket, error) {
	r := &reader{buf: body}
	topic, err := r.string()
	if err != nil {
		return nil, err
	}
	qos := QoS((flags >> 1) & 0x03)
	var packetID uint16
	if qos > QoS0 {
		packetID, err = r.uint16()
		if err != nil {
			return nil, err
		}
	}
	p := &PublishPacket{
		PacketID: packetID,
		Topic:    topic,
		QoS:      qos,
		Retain:   flags&0x01 != 0,
		Dup:      flags&0x08 != 0,
	}
	if version == Version5 {
		props, err := parseProperties(r)
		if err != nil {
			return nil, err
		}
		p.Properties.UserProperties = props.userProperties
		p.Properties.SubscriptionIdentifiers = props.subscriptionIDs
	}
	p.Payload = r.buf[r.pos:]
	return p, nil
}

func decodePacketIDReason(body []byte, version ProtocolVersion) (uint16, ReasonCode, error) {
	r := &reader{buf: body}
	id, err := r.uint16()
	if err != nil {
		return 0, 0, err
	}
	reason := ReasonSuccess
	if r.remaining() > 0 {
		b, err := r.byte()
		if err != nil {
			return 0, 0, err
		}
		reason = ReasonCode(b)
		if version == Version5 && r.remaining() > 0 {
			if _, err := parseProperties(r); err != nil {
				return 0, 0, err
			}
		}
	}
	return id, reason, nil
}

func decodeSubscribe(body []byte, version ProtocolVersion) (*SubscribePacket, error) {
	r := &reader{buf: body}
	id, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if version == Version5 {
		if _, err := parseProperties(r); err != nil {
			return nil, err
		}
	}
	var filters []SubscribeFilter
	for r.remaining() > 0 {
		topic, err := r.string()
		if err != nil {
			return nil, err
		}
		opts, err := r.byte()
		if err != nil {
			return nil, err
		}
		filters = append(filters, SubscribeFilter{Topic: topic, QoS: QoS(opts & 0x03)})
	}
	return &SubscribePacket{PacketID: id, Filters: filters}, nil
}

func decodeSuback(body []byte, version ProtocolVersion) (*SubackPacket, error) {
	r := &reader{buf: body}
	id, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if version == Version5 {
		if _, err := parseProperties(r); err != nil {
			return nil, err
		}
	}
	var reasons []ReasonCode
	for r.remaining() > 0 {
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		reasons = append(reasons, ReasonCode(b))
	}
	return &SubackPacket{PacketID: id, Reasons: reasons}, nil
}

func decodeUnsubscribe(body []byte, version ProtocolVersion) (*UnsubscribePacket, error) {
	r := &reader{buf: body}
	id, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if version == Version5 {
		if _, err := parseProperties(r); err != nil {
			return nil, err
		}
	}
	var topics []string
	for r.remaining() > 0 {
		t, err := r.string()
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return &UnsubscribePacket{PacketID: id, Topics: topics}, nil
}

func decodeUnsuback(body []byte, version ProtocolVersion) (*UnsubackPacket, error) {
	r := &reader{buf: body}
	id, err := r.uint16()
	if err != nil {
		return nil, err
	}
	var reasons []ReasonCode
	if version == Version5 {
		if _, err := parseProperties(r); err != nil {
			return nil, err
		}
		for r.remaining() > 0 {
			b, err := r.byte()
			if err != nil {
				return nil, err
			}
			reasons = append(reasons, ReasonCode(b))
		}
	}
	return &UnsubackPacket{PacketID: id, Reasons: reasons}, nil
}

func decodeDisconnect(body []byte, version ProtocolVersion) (*DisconnectPacket, error) {
	if len(body) == 0 {
		return &DisconnectPacket{Reason: ReasonSuccess}, nil
	}
	r := &reader{buf: body}
	b, err := r.byte()
	if err != nil {
		return nil, err
	}
	if version == Version5 && r.remaining() > 0 {
		if _, err := parseProperties(r); err != nil {
			return nil, err
		}
	}
	return &DisconnectPacket{Reason: ReasonCode(b)}, nil
}

// --- per-packet encode ---

func encodeConnect(p *ConnectPacket) []byte {
	protoName := "MQTT"
	if p.ProtocolVersion == Version31 {
		protoName = "MQIsdp"
	}
	body := appendString(nil, protoName)
	body = append(body, byte(p.ProtocolVersion))

	flags := byte(0)
	if p.CleanStart {
		flags |= 0x02
	}
	willFlag := p.WillTopic != ""
	if willFlag {
		flags |= 0x04
		flags |= byte(p.WillQoS) << 3
		if p.WillRetain {
			flags |= 0x20
		}
	}
	if p.Password != nil {
		flags |= 0x40
	}
	if p.Username != "" {
		flags |= 0x80
	}
	body = append(body, flags)
	body = appendUint16(body, p.KeepAliveSec)
	if p.ProtocolVersion == Version5 {
		body = append(body, (&propertyWriter{}).bytes()...)
	}
	body = appendString(body, p.ClientID)
	if willFlag {
		if p.ProtocolVersion == Version5 {
			body = append(body, (&propertyWriter{}).bytes()...)
		}
		body = appendString(body, p.WillTopic)
		body = appendUint16(body, uint16(len(p.WillPayload)))
		body = append(body, p.WillPayload...)
	}
	if p.Username != "" {
		body = appendString(body, p.Username)
	}
	if p.Password != nil {
		body = appendUint16(body, uint16(len(p.Password)))
		body = append(body, p.Password...)
	}
	return frame(ptConnect, 0, body)
}

func encodeConnack(p *ConnackPacket, version ProtocolVersion) []byte {
	sessionPresent := byte(0)
	if p.SessionPresent {
		sessionPresent = 1
	}
	reason := byte(p.Reason)
	if version != Version5 {
		switch p.Reason {
		case ReasonSuccess:
			reason = 0x00
		case ReasonBadUserNameOrPassword:
			reason = 0x04
		case ReasonNotAuthorized:
			reason = 0x05
		default:
			reason = 0x03 // server unavailable
		}
	}
	body := []byte{sessionPresent, reason}
	if version == Version5 {
		pw := &propertyWriter{}
		if p.ServerKeepAlive > 0 {
			pw.writeTwoByteInt(0x13, p.ServerKeepAlive)
		}
		if p.ReceiveMax > 0 {
			pw.writeTwoByteInt(0x21, p.ReceiveMax)
		}
		if p.TopicAliasMax > 0 {
			pw.writeTwoByteInt(0x22, p.TopicAliasMax)
		}
		if p.MaxPacketSize > 0 {
			pw.writeFourByteInt(0x27, p.MaxPacketSize)
		}
		body = append(body, pw.bytes()...)
	}
	return frame(ptConnack, 0, body)
}

func encodePublish(p *PublishPacket, version ProtocolVersion) []byte {
	body := appendString(nil, p.Topic)
	if p.QoS > QoS0 {
		body = appendUint16(body, p.PacketID)
	}
	if version == Version5 {
		pw := &propertyWriter{}
		for k, v := range p.Properties.UserProperties {
			pw.writeStringPair(0x26, k, v)
		}
		for _, id := range p.Properties.SubscriptionIdentifiers {
			pw.writeVarInt(0x0B, int(id))
		}
		body = append(body, pw.bytes()...)
	}
	body = append(body, p.Payload...)

	flags := byte(p.QoS) << 1
	if p.Dup {
		flags |= 0x08
	}
	if p.Retain {
		flags |= 0x01
	}
	return frame(ptPublish, flags, body)
}

func encodePacketIDReason(ptype byte, flags byte, id uint16, reason ReasonCode, version ProtocolVersion) []byte {
	body := appendUint16(nil, id)
	if version == Version5 && reason != ReasonSuccess {
		body = append(body, byte(reason))
	}
	return frame(ptype, flags, body)
}

func encodeSubscribe(p *SubscribePacket, version ProtocolVersion) []byte {
	body := appendUint16(nil, p.PacketID)
	if version == Version5 {
		body = append(body, (&propertyWriter{}).bytes()...)
	}
	for _, f := range p.Filters {
		body = appendString(body, f.Topic)
		body = append(body, byte(f.QoS))
	}
	return frame(ptSubscribe, 0x02, body)
}

func encodeSuback(p *SubackPacket, version ProtocolVersion) []byte {
	body := appendUint16(nil, p.PacketID)
	if version == Version5 {
		body = append(body, (&propertyWriter{}).bytes()...)
	}
	for _, r := range p.Reasons {
		if version != Version5 && r >= ReasonUnspecifiedError {
			r = 0x80 // the only 3.1.1 SUBACK failure code
		}
		body = append(body, byte(r))
	}
	return frame(ptSuback, 0, body)
}

func encodeUnsubscribe(p *UnsubscribePacket, version ProtocolVersion) []byte {
	body := appendUint16(nil, p.PacketID)
	if version == Version5 {
		body = append(body, (&propertyWriter{}).bytes()...)
	}
	for _, t := range p.Topics {
		body = appendString(body, t)
	}
	return frame(ptUnsubscribe, 0x02, body)
}

func encodeUnsuback(p *UnsubackPacket, version ProtocolVersion) []byte {
	body := appendUint16(nil, p.PacketID)
	if version == Version5 {
		body = append(body, (&propertyWriter{}).bytes()...)
		for _, r := range p.Reasons {
			body = append(body, byte(r))
		}
	}
	return frame(ptUnsuback, 0, body)
}

func encodeDisconnect(p *DisconnectPacket, version ProtocolVersion) []byte {
	if version != Version5 || p.Reason == ReasonSuccess {
		return frame(ptDisconnect, 0, nil)
	}
	return frame(ptDisconnect, 0, []byte{byte(p.Reason)})
}
