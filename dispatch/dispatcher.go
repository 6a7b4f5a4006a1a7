// Package dispatch sends an ordered sequence of MIDI messages to one output
// port. Messages are processed strictly in order on the calling goroutine;
// a failed message is reported and skipped, it never aborts the sequence.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"go-midipreset/logging"
	"go-midipreset/midi"
)

var ErrUnknownMessage = errors.New("dispatch: unknown message type")

const resultCompleted = "completed"

// Outcome describes what happened to one message of a sequence.
type Outcome struct {
	Device   int
	Position int
	Message  midi.Message
	Bytes    []byte
	Err      error
}

// Hooks are optional per-message callbacks, run synchronously on the
// dispatching goroutine.
type Hooks struct {
	OnSent   func(context.Context, Outcome)
	OnFailed func(context.Context, Outcome)
	OnDelay  func(context.Context, Outcome)
}

// Dispatcher transmits message sequences. It holds no state between calls
// other than the per-device locks, so one Dispatcher serves any number of
// concurrent callers.
type Dispatcher struct {
	ports    midi.Enumerator
	logger   *slog.Logger
	hooks    Hooks
	metrics  *Metrics
	policy   ConnectionPolicy
	interval time.Duration
	locks    *deviceLocks
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger outcomes are reported to.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHooks installs per-message callbacks.
func WithHooks(h Hooks) Option {
	return func(d *Dispatcher) {
		d.hooks = h
	}
}

// WithMetrics feeds the given collectors.
func WithMetrics(m *Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithConnectionPolicy selects how long a device connection lives.
func WithConnectionPolicy(p ConnectionPolicy) Option {
	return func(d *Dispatcher) {
		d.policy = p
	}
}

// WithSendInterval enforces a minimum gap between two transmissions of the
// same dispatch. Zero disables pacing.
func WithSendInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		d.interval = interval
	}
}

// New creates a Dispatcher that resolves device indexes against ports.
func New(ports midi.Enumerator, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ports:  ports,
		logger: logging.NewNop(),
		policy: PerMessage,
		locks:  newDeviceLocks(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch sends messages to the output port at index device, in order.
// Empty is skipped, Delay blocks for its duration, ProgramChange and
// ControlChange are encoded and transmitted. Outcomes are reported per
// message through the logger, hooks and metrics; nothing is returned.
//
// Dispatches to the same device are serialized: a second call waits until the
// first has returned. Cancelling ctx stops the sequence at the next message
// boundary, including while waiting for the device or sleeping in a Delay.
func (d *Dispatcher) Dispatch(ctx context.Context, device int, messages []midi.Message) {
	start := time.Now()
	log := d.logger.With("device", device)
	result := resultCompleted

	d.metrics.begin()
	defer func() {
		d.metrics.end(result, time.Since(start))
	}()

	unlock, err := d.locks.Lock(ctx, device)
	if err != nil {
		result = resultCanceled
		log.Warn("dispatch canceled while waiting for device", "err", err, "pending", len(messages))
		return
	}
	defer unlock()

	r := &run{d: d, device: device, log: log}
	if d.interval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(d.interval), 1)
	}
	defer r.close()

	log.Debug("dispatch started", "messages", len(messages), "policy", d.policy)

	for i, m := range messages {
		if err := ctx.Err(); err != nil {
			result = resultCanceled
			log.Warn("dispatch canceled", "err", err, "position", i, "pending", len(messages)-i)
			return
		}

		o := Outcome{Device: device, Position: i, Message: m}
		switch msg := m.(type) {
		case midi.Empty:
			d.metrics.message(string(midi.KindEmpty), resultSkipped)

		case midi.Delay:
			if err := sleep(ctx, msg.Duration()); err != nil {
				result = resultCanceled
				log.Warn("dispatch canceled during delay", "err", err, "position", i, "pending", len(messages)-i)
				return
			}
			d.metrics.message(string(midi.KindDelay), resultDelayed)
			if d.hooks.OnDelay != nil {
				d.hooks.OnDelay(ctx, o)
			}

		case midi.ProgramChange, midi.ControlChange:
			r.transmit(ctx, o)

		default:
			o.Err = fmt.Errorf("%w: %T", ErrUnknownMessage, m)
			d.failed(ctx, log, o)
		}
	}

	log.Info("dispatch finished", "messages", len(messages), "elapsed", time.Since(start))
}

func (d *Dispatcher) sent(ctx context.Context, log *slog.Logger, o Outcome) {
	log.Info("message sent",
		"position", o.Position,
		"message", o.Message.String(),
		"bytes", fmt.Sprintf("% X", o.Bytes),
	)
	d.metrics.message(string(o.Message.Kind()), resultSent)
	if d.hooks.OnSent != nil {
		d.hooks.OnSent(ctx, o)
	}
}

func (d *Dispatcher) failed(ctx context.Context, log *slog.Logger, o Outcome) {
	kind := "unknown"
	desc := fmt.Sprintf("%T", o.Message)
	if o.Message != nil {
		kind = string(o.Message.Kind())
		desc = o.Message.String()
	}
	log.Error("message failed", "position", o.Position, "message", desc, "err", o.Err)
	d.metrics.message(kind, resultFailed)
	if d.hooks.OnFailed != nil {
		d.hooks.OnFailed(ctx, o)
	}
}

// run is the state of one Dispatch call.
type run struct {
	d       *Dispatcher
	device  int
	log     *slog.Logger
	limiter *rate.Limiter
	conn    *midi.Conn // PerDispatch only
}

func (r *run) transmit(ctx context.Context, o Outcome) {
	b, err := midi.Encode(o.Message)
	if err != nil {
		o.Err = err
		r.d.failed(ctx, r.log, o)
		return
	}
	o.Bytes = b

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			o.Err = err
			r.d.failed(ctx, r.log, o)
			return
		}
	}

	if err := r.send(ctx, b); err != nil {
		o.Err = err
		r.d.failed(ctx, r.log, o)
		return
	}
	r.d.sent(ctx, r.log, o)
}

func (r *run) send(ctx context.Context, b []byte) error {
	if r.d.policy == PerDispatch {
		if r.conn == nil {
			conn, err := midi.Open(ctx, r.d.ports, r.device)
			if err != nil {
				return err
			}
			r.log.Debug("output opened", "index", conn.Index(), "port", conn.Name())
			r.conn = conn
		}
		if err := r.conn.Send(b); err != nil {
			// the port may be gone; the next message reopens
			r.close()
			return err
		}
		return nil
	}

	delivered := false
	err := midi.Use(ctx, r.d.ports, r.device, func(c *midi.Conn) error {
		if err := c.Send(b); err != nil {
			return err
		}
		delivered = true
		return nil
	})
	if delivered && err != nil {
		r.log.Warn("closing output failed", "err", err)
		return nil
	}
	return err
}

func (r *run) close() {
	if r.conn == nil {
		return
	}
	if err := r.conn.Close(); err != nil {
		r.log.Warn("closing output failed", "err", err)
	}
	r.conn = nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
