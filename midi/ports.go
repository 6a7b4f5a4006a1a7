package midi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"
)

var ErrEnumerationTimeout = errors.New("midi: port enumeration timed out")

// DefaultEnumerationTimeout bounds a single port listing (CoreMIDI can hang)
const DefaultEnumerationTimeout = 3 * time.Second

// Port is an output port. drivers.Out satisfies it.
type Port interface {
	Open() error
	Close() error
	Send(data []byte) error
	String() string
}

// Enumerator lists the output ports the platform reports right now. The list
// is ordinal: index 0 is the first port reported, and it can shift between
// calls as devices come and go. Implementations must not cache it.
type Enumerator interface {
	Outs(ctx context.Context) ([]Port, error)
}

// EnumeratorFunc adapts a function to Enumerator.
type EnumeratorFunc func(ctx context.Context) ([]Port, error)

func (f EnumeratorFunc) Outs(ctx context.Context) ([]Port, error) {
	return f(ctx)
}

// DriverEnumerator lists the ports of the registered gomidi driver. The CLI
// registers rtmididrv with a blank import.
type DriverEnumerator struct {
	Timeout time.Duration
}

func (e DriverEnumerator) Outs(ctx context.Context) ([]Port, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultEnumerationTimeout
	}

	type result struct {
		outs []drivers.Out
		err  error
	}

	// the driver call cannot be interrupted, so it runs aside and is abandoned on timeout
	ch := make(chan result, 1)
	go func() {
		outs, err := drivers.Outs()
		ch <- result{outs: outs, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		ports := make([]Port, len(r.outs))
		for i, out := range r.outs {
			ports[i] = out
		}
		return ports, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrEnumerationTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PortInfo describes one enumerated output port.
type PortInfo struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// ListOutputs returns the current output ports with their selector index.
func ListOutputs(ctx context.Context, e Enumerator) ([]PortInfo, error) {
	ports, err := e.Outs(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]PortInfo, len(ports))
	for i, p := range ports {
		infos[i] = PortInfo{Index: i, Name: p.String()}
	}
	return infos, nil
}
