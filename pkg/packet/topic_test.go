package packet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"exact match", "sport/tennis/player1", "sport/tennis/player1", true},
		{"exact mismatch", "sport/tennis/player1", "sport/tennis/player2", false},
		{"single-level wildcard", "sport/+/player1", "sport/tennis/player1", true},
		{"single-level wildcard does not cross levels", "sport/+", "sport/tennis/player1", false},
		{"multi-level wildcard", "sport/tennis/#", "sport/tennis/player1/ranking", true},
		{"multi-level wildcard matches parent level", "sport/tennis/#", "sport/tennis", true},
		{"bare multi-level wildcard", "#", "anything/goes/here", true},
		{"shared-sub style filter", "t/#", "t/x", true},
		{"shared-sub style filter miss", "t/#", "u/x", false},
		{"wildcard does not match leading dollar topic", "+/monitor", "$SYS/monitor", false},
		{"wildcard does not match leading dollar topic via hash", "#", "$SYS/broker/load", false},
		{"exact dollar topic still matches", "$SYS/broker/load", "$SYS/broker/load", true},
		{"hash after matching dollar prefix", "$SYS/#", "$SYS/broker/load", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TopicMatches(tt.filter, tt.topic))
		})
	}
}
