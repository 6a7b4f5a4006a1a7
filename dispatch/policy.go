package dispatch

import "fmt"

// ConnectionPolicy controls how long a device connection is held.
type ConnectionPolicy int

const (
	// PerMessage opens and closes the port around every transmitted message.
	PerMessage ConnectionPolicy = iota
	// PerDispatch opens the port on the first transmitted message and keeps
	// it until the dispatch returns. The device stays claimed through delays.
	PerDispatch
)

func (p ConnectionPolicy) String() string {
	switch p {
	case PerMessage:
		return "per-message"
	case PerDispatch:
		return "per-dispatch"
	default:
		return fmt.Sprintf("ConnectionPolicy(%d)", int(p))
	}
}

// ParseConnectionPolicy reads the config spelling of a policy. Empty means PerMessage.
func ParseConnectionPolicy(s string) (ConnectionPolicy, error) {
	switch s {
	case "", "per-message":
		return PerMessage, nil
	case "per-dispatch":
		return PerDispatch, nil
	}
	return PerMessage, fmt.Errorf("dispatch: unknown connection policy %q", s)
}
