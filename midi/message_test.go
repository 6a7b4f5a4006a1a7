package midi

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeProgramChange(t *testing.T) {
	for c := 0; c <= 15; c++ {
		for p := 0; p <= 127; p++ {
			b, err := Encode(ProgramChange{Channel: uint8(c), Program: uint8(p)})
			require.NoError(t, err)
			require.Equal(t, []byte{0xC0 + byte(c), byte(p)}, b)
		}
	}
}

func TestEncodeControlChange(t *testing.T) {
	for c := 0; c <= 15; c++ {
		for n := 0; n <= 127; n++ {
			for v := 0; v <= 127; v++ {
				b, err := Encode(ControlChange{Channel: uint8(c), Controller: uint8(n), Value: uint8(v)})
				if err != nil || len(b) != 3 || b[0] != 0xB0+byte(c) || b[1] != byte(n) || b[2] != byte(v) {
					t.Fatalf("CC{%d,%d,%d}: got % X, err %v", c, n, v, b, err)
				}
			}
		}
	}
}

func TestEncodeNoWireEffect(t *testing.T) {
	for _, m := range []Message{Empty{}, Delay{}, Delay{Millis: 250}} {
		b, err := Encode(m)
		assert.NoError(t, err)
		assert.Nil(t, b, m.String())
		assert.False(t, Transmittable(m))
	}
	assert.True(t, Transmittable(ProgramChange{}))
	assert.True(t, Transmittable(ControlChange{}))
}

func TestEncodeRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want error
	}{
		{"pc channel 16", ProgramChange{Channel: 16}, ErrInvalidChannelRange},
		{"cc channel 255", ControlChange{Channel: 255}, ErrInvalidChannelRange},
		{"pc program 128", ProgramChange{Program: 128}, ErrInvalidDataRange},
		{"cc controller 200", ControlChange{Controller: 200}, ErrInvalidDataRange},
		{"cc value 128", ControlChange{Value: 128}, ErrInvalidDataRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Encode(tt.msg)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, b)
		})
	}
}

func TestDelayBounds(t *testing.T) {
	assert.Equal(t, 250*time.Millisecond, Delay{Millis: 250}.Duration())
	assert.NoError(t, Validate(Delay{Millis: MaxDelayMillis}))
	assert.Positive(t, Delay{Millis: MaxDelayMillis}.Duration())

	for _, ms := range []uint64{MaxDelayMillis + 1, 10_000_000_000_000, 1 << 62, math.MaxUint64} {
		d := Delay{Millis: ms}
		assert.ErrorIs(t, Validate(d), ErrInvalidDelay, "ms=%d", ms)
		_, err := Encode(d)
		assert.ErrorIs(t, err, ErrInvalidDelay, "ms=%d", ms)
		assert.Equal(t, time.Duration(math.MaxInt64), d.Duration(), "ms=%d", ms)
	}
}

func TestEncodeIsIdempotent(t *testing.T) {
	msgs := []Message{
		ProgramChange{Channel: 3, Program: 42},
		ControlChange{Channel: 9, Controller: 7, Value: 100},
	}
	for _, m := range msgs {
		a, err := Encode(m)
		require.NoError(t, err)
		b, err := Encode(m)
		require.NoError(t, err)
		assert.Equal(t, a, b)

		// the returned slice is not shared state
		a[0] = 0
		c, _ := Encode(m)
		assert.Equal(t, b, c)
	}
}

func TestEncodeNil(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)
}

func TestConstructorsValidate(t *testing.T) {
	pc, err := NewProgramChange(0, 10)
	require.NoError(t, err)
	assert.Equal(t, ProgramChange{Channel: 0, Program: 10}, pc)

	_, err = NewProgramChange(16, 0)
	assert.ErrorIs(t, err, ErrInvalidChannelRange)

	cc, err := NewControlChange(15, 20, 64)
	require.NoError(t, err)
	assert.Equal(t, ControlChange{Channel: 15, Controller: 20, Value: 64}, cc)

	_, err = NewControlChange(1, 20, 128)
	assert.ErrorIs(t, err, ErrInvalidDataRange)
}

func TestChannelNumbers(t *testing.T) {
	for n := 1; n <= 16; n++ {
		ch, err := ChannelFromNumber(n)
		require.NoError(t, err)
		assert.Equal(t, n, ChannelNumber(ch))
	}
	for _, n := range []int{0, 17, -1} {
		_, err := ChannelFromNumber(n)
		assert.ErrorIs(t, err, ErrInvalidChannelRange, "n=%d", n)
	}
}

func TestKindsAndDefaults(t *testing.T) {
	for _, k := range Kinds() {
		assert.Equal(t, k, Default(k).Kind())
	}
	assert.Equal(t, ControlChange{Controller: SceneSelect}, Default(KindControlChange))
	assert.Equal(t, Empty{}, Default("bogus"))
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "Empty", Empty{}.String())
	assert.Equal(t, "Delay: 0 ms", Delay{}.String())
	assert.Contains(t, Delay{Millis: 50}.String(), "50")
	assert.Equal(t, "PC: ch 1 program 10", ProgramChange{Channel: 0, Program: 10}.String())
	assert.Equal(t, "CC: ch 16 controller 20 value 64", ControlChange{Channel: 15, Controller: 20, Value: 64}.String())
}
