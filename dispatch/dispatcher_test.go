package dispatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-midipreset/internal/midifake"
	"go-midipreset/logging"
	"go-midipreset/midi"
)

// recorder collects hook outcomes.
type recorder struct {
	mu     sync.Mutex
	sent   []Outcome
	failed []Outcome
	delays []Outcome
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnSent:   func(_ context.Context, o Outcome) { r.add(&r.sent, o) },
		OnFailed: func(_ context.Context, o Outcome) { r.add(&r.failed, o) },
		OnDelay:  func(_ context.Context, o Outcome) { r.add(&r.delays, o) },
	}
}

func (r *recorder) add(dst *[]Outcome, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*dst = append(*dst, o)
}

func positions(outcomes []Outcome) []int {
	var out []int
	for _, o := range outcomes {
		out = append(out, o.Position)
	}
	return out
}

func TestDispatchOrderAndDelay(t *testing.T) {
	bus := midifake.NewBus("A", "B")
	d := New(bus)

	msgs := []midi.Message{
		midi.ProgramChange{Channel: 1, Program: 10},
		midi.Delay{Millis: 50},
		midi.ControlChange{Channel: 1, Controller: 20, Value: 64},
	}

	start := time.Now()
	d.Dispatch(context.Background(), 1, msgs)
	elapsed := time.Since(start)

	sent := bus.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []byte{0xC1, 10}, sent[0].Data)
	assert.Equal(t, []byte{0xB1, 20, 64}, sent[1].Data)
	assert.Equal(t, 1, sent[0].Port)
	assert.Equal(t, 1, sent[1].Port)
	assert.GreaterOrEqual(t, sent[1].At.Sub(sent[0].At), 50*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestDispatchDoesNotMutateInput(t *testing.T) {
	bus := midifake.NewBus("A")
	msgs := []midi.Message{midi.ProgramChange{Program: 1}, midi.Empty{}}
	orig := append([]midi.Message(nil), msgs...)

	New(bus).Dispatch(context.Background(), 0, msgs)
	assert.Equal(t, orig, msgs)
}

func TestDispatchDeviceNotFoundContinues(t *testing.T) {
	bus := midifake.NewBus("A", "B")
	rec := &recorder{}
	d := New(bus, WithHooks(rec.hooks()))

	msgs := []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.Delay{Millis: 1},
		midi.ControlChange{Controller: 7, Value: 100},
		midi.Empty{},
		midi.ProgramChange{Program: 2},
	}
	d.Dispatch(context.Background(), 5, msgs)

	assert.Empty(t, bus.Sent())
	assert.Empty(t, rec.sent)
	assert.Equal(t, []int{0, 2, 4}, positions(rec.failed))
	for _, o := range rec.failed {
		assert.ErrorIs(t, o.Err, midi.ErrDeviceNotFound)
		assert.Equal(t, 5, o.Device)
	}
	assert.Equal(t, []int{1}, positions(rec.delays))
}

func TestDispatchEmptyOnly(t *testing.T) {
	bus := midifake.NewBus("A")
	rec := &recorder{}
	New(bus, WithHooks(rec.hooks())).Dispatch(context.Background(), 0, []midi.Message{midi.Empty{}, midi.Empty{}})

	assert.Zero(t, bus.Enumerations())
	assert.Empty(t, bus.Sent())
	assert.Empty(t, rec.failed)
	assert.Empty(t, rec.sent)
}

func TestDispatchInvalidChannelSkipsConnection(t *testing.T) {
	bus := midifake.NewBus("A")
	rec := &recorder{}
	d := New(bus, WithHooks(rec.hooks()))

	d.Dispatch(context.Background(), 0, []midi.Message{
		midi.ProgramChange{Channel: 16, Program: 1},
		midi.ProgramChange{Channel: 0, Program: 1},
	})

	require.Len(t, rec.failed, 1)
	assert.ErrorIs(t, rec.failed[0].Err, midi.ErrInvalidChannelRange)
	assert.Equal(t, 1, bus.Enumerations())
	require.Len(t, bus.Sent(), 1)
	assert.Equal(t, []byte{0xC0, 1}, bus.Sent()[0].Data)
}

func TestDispatchUnknownMessage(t *testing.T) {
	bus := midifake.NewBus("A")
	rec := &recorder{}
	New(bus, WithHooks(rec.hooks())).Dispatch(context.Background(), 0, []midi.Message{nil, midi.ProgramChange{}})

	require.Len(t, rec.failed, 1)
	assert.ErrorIs(t, rec.failed[0].Err, ErrUnknownMessage)
	assert.Len(t, rec.sent, 1)
}

func TestDispatchTransmitFailureClosesAndContinues(t *testing.T) {
	bus := midifake.NewBus("A")
	bus.Port(0).FailSend(errors.New("cable pulled"))
	rec := &recorder{}

	New(bus, WithHooks(rec.hooks())).Dispatch(context.Background(), 0, []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.ControlChange{Controller: 1, Value: 1},
	})

	require.Len(t, rec.failed, 2)
	for _, o := range rec.failed {
		assert.ErrorIs(t, o.Err, midi.ErrTransmit)
	}
	assert.Equal(t, 2, bus.Port(0).Opens())
	assert.Equal(t, 2, bus.Port(0).Closes())
	assert.False(t, bus.Port(0).IsOpen())
}

func TestDispatchConnectionErrorContinues(t *testing.T) {
	bus := midifake.NewBus("A")
	bus.Port(0).FailOpen(errors.New("port busy"))
	rec := &recorder{}

	New(bus, WithHooks(rec.hooks())).Dispatch(context.Background(), 0, []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.ProgramChange{Program: 2},
	})

	require.Len(t, rec.failed, 2)
	assert.ErrorIs(t, rec.failed[1].Err, midi.ErrConnection)
}

func TestPerMessagePolicyReopensEveryMessage(t *testing.T) {
	bus := midifake.NewBus("A")
	New(bus).Dispatch(context.Background(), 0, []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.ProgramChange{Program: 2},
		midi.ControlChange{Controller: 3, Value: 4},
	})

	assert.Len(t, bus.Sent(), 3)
	assert.Equal(t, 3, bus.Enumerations())
	assert.Equal(t, 3, bus.Port(0).Opens())
	assert.Equal(t, 3, bus.Port(0).Closes())
}

func TestPerDispatchPolicyHoldsOneConnection(t *testing.T) {
	bus := midifake.NewBus("A")
	d := New(bus, WithConnectionPolicy(PerDispatch))

	var openDuringDelay bool
	d.hooks.OnDelay = func(context.Context, Outcome) { openDuringDelay = bus.Port(0).IsOpen() }

	d.Dispatch(context.Background(), 0, []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.Delay{Millis: 1},
		midi.ProgramChange{Program: 2},
	})

	assert.Len(t, bus.Sent(), 2)
	assert.Equal(t, 1, bus.Enumerations())
	assert.Equal(t, 1, bus.Port(0).Opens())
	assert.Equal(t, 1, bus.Port(0).Closes())
	assert.True(t, openDuringDelay)
	assert.False(t, bus.Port(0).IsOpen())
}

func TestPerDispatchPolicyLogsOpenedPort(t *testing.T) {
	bus := midifake.NewBus("A", "B")
	var buf bytes.Buffer
	d := New(bus, WithConnectionPolicy(PerDispatch), WithLogger(logging.New(&buf, slog.LevelDebug)))

	d.Dispatch(context.Background(), 1, []midi.Message{midi.ProgramChange{Program: 1}})

	out := buf.String()
	assert.Contains(t, out, "output opened")
	assert.Contains(t, out, "index=1")
	assert.Contains(t, out, "port=B")
}

func TestPerDispatchPolicyReopensAfterTransmitFailure(t *testing.T) {
	bus := midifake.NewBus("A")
	bus.Port(0).FailSend(errors.New("glitch"))

	d := New(bus, WithConnectionPolicy(PerDispatch), WithHooks(Hooks{
		OnFailed: func(context.Context, Outcome) { bus.Port(0).FailSend(nil) },
	}))
	d.Dispatch(context.Background(), 0, []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.ProgramChange{Program: 2},
	})

	require.Len(t, bus.Sent(), 1)
	assert.Equal(t, []byte{0xC0, 2}, bus.Sent()[0].Data)
	assert.Equal(t, 2, bus.Port(0).Opens())
	assert.False(t, bus.Port(0).IsOpen())
}

func TestDispatchCancelDuringDelay(t *testing.T) {
	bus := midifake.NewBus("A")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	New(bus).Dispatch(ctx, 0, []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.Delay{Millis: 10_000},
		midi.ProgramChange{Program: 2},
	})

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, bus.Sent(), 1)
}

func TestDispatchOversizedDelayBlocksUntilCanceled(t *testing.T) {
	bus := midifake.NewBus("A")
	rec := &recorder{}
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	start := time.Now()
	New(bus, WithHooks(rec.hooks())).Dispatch(ctx, 0, []midi.Message{
		midi.Delay{Millis: math.MaxUint64},
		midi.ProgramChange{Program: 1},
	})

	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Empty(t, bus.Sent())
	assert.Empty(t, rec.delays)
	assert.Empty(t, rec.sent)
}

func TestDispatchCanceledBeforeStart(t *testing.T) {
	bus := midifake.NewBus("A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	New(bus).Dispatch(ctx, 0, []midi.Message{midi.ProgramChange{}})
	assert.Zero(t, bus.Enumerations())
	assert.Empty(t, bus.Sent())
}

func TestConcurrentDispatchSameDeviceIsSerialized(t *testing.T) {
	bus := midifake.NewBus("A")
	d := New(bus)

	seqA := []midi.Message{
		midi.ProgramChange{Program: 1}, midi.Delay{Millis: 5},
		midi.ProgramChange{Program: 2}, midi.Delay{Millis: 5},
		midi.ProgramChange{Program: 3},
	}
	seqB := []midi.Message{
		midi.ControlChange{Controller: 1}, midi.Delay{Millis: 5},
		midi.ControlChange{Controller: 2}, midi.Delay{Millis: 5},
		midi.ControlChange{Controller: 3},
	}

	var wg sync.WaitGroup
	for _, seq := range [][]midi.Message{seqA, seqB} {
		wg.Add(1)
		go func(seq []midi.Message) {
			defer wg.Done()
			d.Dispatch(context.Background(), 0, seq)
		}(seq)
	}
	wg.Wait()

	sent := bus.Sent()
	require.Len(t, sent, 6)
	first := sent[0].Data[0]
	for i, tx := range sent {
		if i < 3 {
			assert.Equal(t, first, tx.Data[0], "transmission %d interleaved", i)
		} else {
			assert.NotEqual(t, first, tx.Data[0], "transmission %d interleaved", i)
		}
	}
	assert.Zero(t, d.locks.size())
}

func TestDispatchDifferentDevicesRunInParallel(t *testing.T) {
	bus := midifake.NewBus("A", "B")
	d := New(bus)

	start := time.Now()
	var wg sync.WaitGroup
	for dev := 0; dev < 2; dev++ {
		wg.Add(1)
		go func(dev int) {
			defer wg.Done()
			d.Dispatch(context.Background(), dev, []midi.Message{midi.Delay{Millis: 100}, midi.ProgramChange{}})
		}(dev)
	}
	wg.Wait()

	assert.Len(t, bus.Sent(), 2)
	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestDispatchSendInterval(t *testing.T) {
	bus := midifake.NewBus("A")
	New(bus, WithSendInterval(30*time.Millisecond)).Dispatch(context.Background(), 0, []midi.Message{
		midi.ProgramChange{Program: 1},
		midi.ProgramChange{Program: 2},
		midi.ProgramChange{Program: 3},
	})

	sent := bus.Sent()
	require.Len(t, sent, 3)
	assert.GreaterOrEqual(t, sent[2].At.Sub(sent[0].At), 55*time.Millisecond)
}

func TestDispatchMetrics(t *testing.T) {
	bus := midifake.NewBus("A")
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	New(bus, WithMetrics(m)).Dispatch(context.Background(), 0, []midi.Message{
		midi.Empty{},
		midi.Delay{Millis: 1},
		midi.ProgramChange{Program: 1},
		midi.ControlChange{Channel: 20},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("empty", resultSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("delay", resultDelayed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("program_change", resultSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("control_change", resultFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatches.WithLabelValues(resultCompleted)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
}

func TestDispatchLogsOutcomes(t *testing.T) {
	bus := midifake.NewBus("A")
	var buf bytes.Buffer
	d := New(bus, WithLogger(logging.New(&buf, slog.LevelInfo)))

	d.Dispatch(context.Background(), 0, []midi.Message{midi.ProgramChange{Program: 5}})
	d.Dispatch(context.Background(), 3, []midi.Message{midi.ProgramChange{Program: 5}})

	out := buf.String()
	assert.Contains(t, out, "message sent")
	assert.Contains(t, out, `bytes="C0 05"`)
	assert.Contains(t, out, "message failed")
	assert.Contains(t, out, "device not found")
}

func TestParseConnectionPolicy(t *testing.T) {
	p, err := ParseConnectionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PerMessage, p)

	p, err = ParseConnectionPolicy("per-dispatch")
	require.NoError(t, err)
	assert.Equal(t, PerDispatch, p)
	assert.Equal(t, "per-dispatch", p.String())

	_, err = ParseConnectionPolicy("forever")
	assert.Error(t, err)
}
