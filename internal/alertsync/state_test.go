package alertsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateDisconnected, true},
		{StateConnecting, StateError, true},
		{StateConnected, StateDisconnected, true},
		{StateConnected, StateConnecting, true},
		{StateConnected, StateError, false},
		{StateDisconnected, StateConnecting, true},
		{StateDisconnected, StateError, true},
		{StateDisconnected, StateConnected, false},
		{StateError, StateConnecting, true},
		{StateError, StateConnected, false},
		{StateError, StateDisconnected, false},
		{StateError, StateError, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			got, err := Transition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, got)
			} else {
				assert.Error(t, err)
				assert.Equal(t, tt.from, got)
			}
			assert.Equal(t, tt.ok, CanTransition(tt.from, tt.to))
		})
	}
}
