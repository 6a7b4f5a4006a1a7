package midi

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDeviceNotFound = errors.New("midi: device not found")
	ErrConnection     = errors.New("midi: connection failed")
	ErrTransmit       = errors.New("midi: transmit failed")
	ErrClosed         = errors.New("midi: connection closed")
)

// Conn is an open output port. It is released by Close, which consumes it:
// the underlying port is closed exactly once and every later call returns
// ErrClosed.
type Conn struct {
	mu    sync.Mutex
	port  Port
	index int
	name  string
}

// Open enumerates the output ports and opens the one at index. The port list
// is queried on every call.
func Open(ctx context.Context, e Enumerator, index int) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := e.Outs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: enumerate outputs: %w", ErrConnection, err)
	}
	if index < 0 || index >= len(ports) {
		return nil, fmt.Errorf("%w: index %d, %d output ports available", ErrDeviceNotFound, index, len(ports))
	}

	port := ports[index]
	if err := port.Open(); err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrConnection, port.String(), err)
	}

	return &Conn{port: port, index: index, name: port.String()}, nil
}

// Index is the selector the connection was opened with.
func (c *Conn) Index() int { return c.index }

// Name is the port name reported at open time.
func (c *Conn) Name() string { return c.name }

// Send transmits data as a single message. No buffering.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return ErrClosed
	}
	if err := c.port.Send(data); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrTransmit, c.name, err)
	}
	return nil
}

// Close releases the port.
func (c *Conn) Close() error {
	c.mu.Lock()
	port := c.port
	c.port = nil
	c.mu.Unlock()

	if port == nil {
		return ErrClosed
	}
	if err := port.Close(); err != nil {
		return fmt.Errorf("midi: close %q: %w", c.name, err)
	}
	return nil
}

// Use opens the port at index, runs fn and closes the port on every path.
// A close failure is joined to fn's error.
func Use(ctx context.Context, e Enumerator, index int, fn func(*Conn) error) (err error) {
	conn, err := Open(ctx, e, index)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(conn)
}
