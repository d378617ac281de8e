package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTripConnect(t *testing.T) {
	tests := []struct {
		name string
		pkt  *ConnectPacket
	}{
		{
			name: "311 no will no auth",
			pkt: &ConnectPacket{
				ProtocolVersion: Version311,
				ClientID:        "client-a",
				CleanStart:      true,
				KeepAliveSec:    60,
			},
		},
		{
			name: "311 with will and credentials",
			pkt: &ConnectPacket{
				ProtocolVersion: Version311,
				ClientID:        "client-b",
				CleanStart:      false,
				KeepAliveSec:    30,
				Username:        "alice",
				Password:        []byte("secret"),
				WillTopic:       "devices/b/status",
				WillPayload:     []byte("offline"),
				WillQoS:         QoS1,
				WillRetain:      true,
			},
		},
		{
			name: "v5 with will",
			pkt: &ConnectPacket{
				ProtocolVersion: Version5,
				ClientID:        "client-c",
				CleanStart:      true,
				KeepAliveSec:    45,
				WillTopic:       "devices/c/status",
				WillPayload:     []byte("bye"),
				WillQoS:         QoS2,
			},
		},
	}

	codec := NewMQTTCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := encodeConnect(tt.pkt)
			packets, consumed, err := codec.Decode(wire, VersionUnknown)
			require.NoError(t, err)
			assert.Equal(t, len(wire), consumed)
			require.Len(t, packets, 1)

			got, ok := packets[0].(*ConnectPacket)
			require.True(t, ok)
			assert.Equal(t, tt.pkt.ProtocolVersion, got.ProtocolVersion)
			assert.Equal(t, tt.pkt.ClientID, got.ClientID)
			assert.Equal(t, tt.pkt.CleanStart, got.CleanStart)
			assert.Equal(t, tt.pkt.KeepAliveSec, got.KeepAliveSec)
			assert.Equal(t, tt.pkt.Username, got.Username)
			assert.Equal(t, tt.pkt.Password, got.Password)
			assert.Equal(t, tt.pkt.WillTopic, got.WillTopic)
			assert.Equal(t, tt.pkt.WillPayload, got.WillPayload)
			if tt.pkt.WillTopic != "" {
				assert.Equal(t, tt.pkt.WillQoS, got.WillQoS)
				assert.Equal(t, tt.pkt.WillRetain, got.WillRetain)
			}
		})
	}
}

func TestCodecRoundTripPublish(t *testing.T) {
	tests := []struct {
		name    string
		version ProtocolVersion
		pkt     *PublishPacket
	}{
		{
			name:    "qos0 no packet id",
			version: Version311,
			pkt:     &PublishPacket{Topic: "a/b", Payload: []byte("hello"), QoS: QoS0},
		},
		{
			name:    "qos1 retained",
			version: Version311,
			pkt:     &PublishPacket{PacketID: 7, Topic: "a/b", Payload: []byte("hello"), QoS: QoS1, Retain: true},
		},
		{
			name:    "qos2 dup",
			version: Version311,
			pkt:     &PublishPacket{PacketID: 42, Topic: "a/b/c", Payload: []byte("world"), QoS: QoS2, Dup: true},
		},
		{
			name:    "v5 with user properties",
			version: Version5,
			pkt: &PublishPacket{
				PacketID: 9,
				Topic:    "a/b",
				Payload:  []byte("v5 payload"),
				QoS:      QoS1,
				Properties: PublishProperties{
					UserProperties: map[string]string{"robustmq-shared-sub-rewrite": "true"},
				},
			},
		},
	}

	codec := NewMQTTCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := codec.Encode(Wrapper{ProtocolVersion: tt.version, Packet: tt.pkt})
			require.NoError(t, err)

			packets, consumed, err := codec.Decode(wire, tt.version)
			require.NoError(t, err)
			assert.Equal(t, len(wire), consumed)
			require.Len(t, packets, 1)

			got, ok := packets[0].(*PublishPacket)
			require.True(t, ok)
			assert.Equal(t, tt.pkt.Topic, got.Topic)
			assert.Equal(t, tt.pkt.Payload, got.Payload)
			assert.Equal(t, tt.pkt.QoS, got.QoS)
			assert.Equal(t, tt.pkt.Retain, got.Retain)
			assert.Equal(t, tt.pkt.Dup, got.Dup)
			if tt.pkt.QoS > QoS0 {
				assert.Equal(t, tt.pkt.PacketID, got.PacketID)
			}
			if tt.version == Version5 {
				assert.Equal(t, tt.pkt.Properties.UserProperties, got.Properties.UserProperties)
			}
		})
	}
}

func TestCodecRoundTripAckPackets(t *testing.T) {
	codec := NewMQTTCodec()

	puback := &PubackPacket{PacketID: 11, Reason: ReasonSuccess}
	wire, err := codec.Encode(Wrapper{ProtocolVersion: Version311, Packet: puback})
	require.NoError(t, err)
	packets, consumed, err := codec.Decode(wire, Version311)
	require.NoError(t, err)
	assert.Equal(t, len(wire), consumed)
	require.Len(t, packets, 1)
	got, ok := packets[0].(*PubackPacket)
	require.True(t, ok)
	assert.Equal(t, puback.PacketID, got.PacketID)

	pubrel := &PubrelPacket{PacketID: 22, Reason: ReasonSuccess}
	wire, err = codec.Encode(Wrapper{ProtocolVersion: Version311, Packet: pubrel})
	require.NoError(t, err)
	assert.Equal(t, byte(0x62), wire[0], "PUBREL must set the reserved 0010 flag bits")
}

func TestCodecRoundTripSubscribeUnsubscribe(t *testing.T) {
	codec := NewMQTTCodec()

	sub := &SubscribePacket{
		PacketID: 5,
		Filters: []SubscribeFilter{
			{Topic: "sensors/+/temp", QoS: QoS1},
			{Topic: "$share/workers/jobs/#", QoS: QoS2},
		},
	}
	wire, err := codec.Encode(Wrapper{ProtocolVersion: Version311, Packet: sub})
	require.NoError(t, err)
	packets, consumed, err := codec.Decode(wire, Version311)
	require.NoError(t, err)
	assert.Equal(t, len(wire), consumed)
	require.Len(t, packets, 1)
	got, ok := packets[0].(*SubscribePacket)
	require.True(t, ok)
	assert.Equal(t, sub.Filters, got.Filters)

	unsub := &UnsubscribePacket{PacketID: 6, Topics: []string{"sensors/+/temp", "$share/workers/jobs/#"}}
	wire, err = codec.Encode(Wrapper{ProtocolVersion: Version311, Packet: unsub})
	require.NoError(t, err)
	packets, consumed, err = codec.Decode(wire, Version311)
	require.NoError(t, err)
	assert.Equal(t, len(wire), consumed)
	require.Len(t, packets, 1)
	gotUnsub, ok := packets[0].(*UnsubscribePacket)
	require.True(t, ok)
	assert.Equal(t, unsub.Topics, gotUnsub.Topics)
}

func TestCodecDecodeWaitsForCompleteFrame(t *testing.T) {
	codec := NewMQTTCodec()
	wire, err := codec.Encode(Wrapper{ProtocolVersion: Version311, Packet: &PingreqPacket{}})
	require.NoError(t, err)
	require.Equal(t, []byte{0xc0, 0x00}, wire)

	packets, consumed, err := codec.Decode(wire[:1], Version311)
	require.NoError(t, err)
	assert.Equal(t, 0, consumed)
	assert.Empty(t, packets)
}

func TestCodecDecodeMultipleFramesInOneBuffer(t *testing.T) {
	codec := NewMQTTCodec()
	ping, _ := codec.Encode(Wrapper{ProtocolVersion: Version311, Packet: &PingreqPacket{}})
	disconnect, _ := codec.Encode(Wrapper{ProtocolVersion: Version311, Packet: &DisconnectPacket{}})

	buf := append(append([]byte{}, ping...), disconnect...)
	packets, consumed, err := codec.Decode(buf, Version311)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	require.Len(t, packets, 2)
	assert.Equal(t, KindPingreq, packets[0].Kind())
	assert.Equal(t, KindDisconnect, packets[1].Kind())
}

func TestVarIntRoundTrip(t *testing.T) {
	for _, v := range []int{0, 1, 127, 128, 16383, 16384, 2097151, 268435455} {
		encoded := encodeVarInt(v)
		decoded, n, ok := decodeVarInt(encoded)
		require.True(t, ok)
		assert.Equal(t, v, decoded)
		assert.Equal(t, len(encoded), n)
	}
}
