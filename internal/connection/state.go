package connection

import "fmt"

// ConnectionState is the lifecycle state of the single sync connection.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Degraded
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Degraded:
		return "degraded"
	case Reconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// HasHandle reports whether a handle is attached in this state.
func (s ConnectionState) HasHandle() bool {
	return s == Connected || s == Degraded
}

var legalTransitions = map[ConnectionState][]ConnectionState{
	Disconnected: {Connecting},
	Connecting:   {Connected},
	Connected:    {Degraded, Reconnecting, Disconnected},
	Degraded:     {Connected, Reconnecting, Disconnected},
	Reconnecting: {Connecting, Disconnected},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to ConnectionState) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
