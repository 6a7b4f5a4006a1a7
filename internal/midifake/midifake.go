// Package midifake provides in-memory MIDI output ports that record every
// transmission, for tests of the connection and dispatch layers.
package midifake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-midipreset/midi"
)

// Transmission is one Send observed on a port.
type Transmission struct {
	Port int
	Data []byte
	At   time.Time
}

// Bus is a set of fake output ports behind a midi.Enumerator.
type Bus struct {
	mu      sync.Mutex
	ports   []*Port
	sent    []Transmission
	enums   int
	enumErr error
	hook    func(Transmission)
}

// NewBus creates a bus with the given port names.
func NewBus(names ...string) *Bus {
	b := &Bus{}
	for i, name := range names {
		b.ports = append(b.ports, &Port{bus: b, index: i, name: name})
	}
	return b
}

// Outs implements midi.Enumerator.
func (b *Bus) Outs(ctx context.Context) ([]midi.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enums++
	if b.enumErr != nil {
		return nil, b.enumErr
	}
	out := make([]midi.Port, len(b.ports))
	for i, p := range b.ports {
		out[i] = p
	}
	return out, nil
}

// Port returns the fake at index i.
func (b *Bus) Port(i int) *Port {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ports[i]
}

// Unplug removes the last port, as if the device was disconnected.
func (b *Bus) Unplug() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.ports) > 0 {
		b.ports = b.ports[:len(b.ports)-1]
	}
}

// FailEnumeration makes every following Outs call fail with err (nil clears it).
func (b *Bus) FailEnumeration(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enumErr = err
}

// OnSend registers a callback run after each successful Send.
func (b *Bus) OnSend(fn func(Transmission)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = fn
}

// Sent returns a copy of every successful transmission, in order.
func (b *Bus) Sent() []Transmission {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Transmission, len(b.sent))
	copy(out, b.sent)
	return out
}

// Enumerations counts Outs calls.
func (b *Bus) Enumerations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enums
}

func (b *Bus) record(t Transmission) {
	b.mu.Lock()
	b.sent = append(b.sent, t)
	hook := b.hook
	b.mu.Unlock()
	if hook != nil {
		hook(t)
	}
}

// Port is a fake output port.
type Port struct {
	bus   *Bus
	index int
	name  string

	mu      sync.Mutex
	open    bool
	opens   int
	closes  int
	openErr error
	sendErr error
}

func (p *Port) String() string { return p.name }

func (p *Port) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return p.openErr
	}
	if p.open {
		return fmt.Errorf("midifake: %s already open", p.name)
	}
	p.open = true
	p.opens++
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return fmt.Errorf("midifake: %s not open", p.name)
	}
	p.open = false
	p.closes++
	return nil
}

func (p *Port) Send(data []byte) error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return fmt.Errorf("midifake: send on closed port %s", p.name)
	}
	if p.sendErr != nil {
		err := p.sendErr
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	p.bus.record(Transmission{Port: p.index, Data: buf, At: time.Now()})
	return nil
}

// FailOpen makes Open return err (nil clears it).
func (p *Port) FailOpen(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openErr = err
}

// FailSend makes Send return err (nil clears it).
func (p *Port) FailSend(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendErr = err
}

// IsOpen reports whether the port is currently open.
func (p *Port) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Opens and Closes count successful Open/Close calls.
func (p *Port) Opens() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.opens
}

func (p *Port) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}
