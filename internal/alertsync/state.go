package alertsync

import "fmt"

// State 实时连接状态
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateError        State = "error"
)

// transitions 允许的状态迁移，原地迁移视为无操作
var transitions = map[State][]State{
	StateConnecting:   {StateConnected, StateDisconnected, StateError},
	StateConnected:    {StateDisconnected, StateConnecting},
	StateDisconnected: {StateConnecting, StateError},
	StateError:        {StateConnecting},
}

// CanTransition from -> to 是否在迁移表中
func CanTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition 校验并返回新状态
func Transition(from, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("invalid state transition %s -> %s", from, to)
	}
	return to, nil
}
