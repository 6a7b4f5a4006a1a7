package midi

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hako/durafmt"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// Status bytes of the channel-voice messages we produce (channel in the low nibble)
const (
	StatusControlChange uint8 = 0xB0
	StatusProgramChange uint8 = 0xC0
)

const (
	MaxChannel  uint8 = 15  // zero-based wire channel
	MaxDataByte uint8 = 127 // data bytes have the high bit clear

	// MaxDelayMillis is the longest delay that fits in a time.Duration.
	MaxDelayMillis = uint64(math.MaxInt64 / int64(time.Millisecond))
)

var (
	ErrInvalidChannelRange = errors.New("midi: channel out of range")
	ErrInvalidDataRange    = errors.New("midi: data byte out of range")
	ErrInvalidDelay        = errors.New("midi: delay out of range")
)

// Kind tags a Message case. Values are stable and used in preset records.
type Kind string

const (
	KindEmpty         Kind = "empty"
	KindDelay         Kind = "delay"
	KindProgramChange Kind = "program_change"
	KindControlChange Kind = "control_change"
)

// Kinds lists every message kind in editor order.
func Kinds() []Kind {
	return []Kind{KindEmpty, KindDelay, KindProgramChange, KindControlChange}
}

// Message is one entry of a preset. The set of cases is closed: Empty, Delay,
// ProgramChange and ControlChange are the only implementations.
type Message interface {
	Kind() Kind
	String() string
	message()
}

// Empty is a placeholder with no wire effect.
type Empty struct{}

// Delay pauses dispatch. It is never transmitted.
type Delay struct {
	Millis uint64
}

// ProgramChange selects a program on Channel (zero-based, 0-15).
type ProgramChange struct {
	Channel uint8
	Program uint8
}

// ControlChange sets Controller to Value on Channel (zero-based, 0-15).
type ControlChange struct {
	Channel    uint8
	Controller uint8
	Value      uint8
}

func (Empty) message()         {}
func (Delay) message()         {}
func (ProgramChange) message() {}
func (ControlChange) message() {}

func (Empty) Kind() Kind         { return KindEmpty }
func (Delay) Kind() Kind         { return KindDelay }
func (ProgramChange) Kind() Kind { return KindProgramChange }
func (ControlChange) Kind() Kind { return KindControlChange }

func (Empty) String() string { return "Empty" }

func (d Delay) String() string {
	if d.Millis == 0 {
		return "Delay: 0 ms"
	}
	return "Delay: " + durafmt.Parse(d.Duration()).String()
}

func (pc ProgramChange) String() string {
	return fmt.Sprintf("PC: ch %d program %d", ChannelNumber(pc.Channel), pc.Program)
}

func (cc ControlChange) String() string {
	return fmt.Sprintf("CC: ch %d controller %d value %d", ChannelNumber(cc.Channel), cc.Controller, cc.Value)
}

// Duration converts the delay to a time.Duration, saturating at the
// largest representable duration.
func (d Delay) Duration() time.Duration {
	if d.Millis > MaxDelayMillis {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d.Millis) * time.Millisecond
}

// ChannelNumber returns the user-facing channel number (1-16) for a wire channel.
func ChannelNumber(ch uint8) int {
	return int(ch) + 1
}

// ChannelFromNumber converts a user-facing channel number (1-16) to the wire channel.
func ChannelFromNumber(n int) (uint8, error) {
	if n < 1 || n > int(MaxChannel)+1 {
		return 0, fmt.Errorf("%w: channel number %d (want 1-16)", ErrInvalidChannelRange, n)
	}
	return uint8(n - 1), nil
}

// NewProgramChange builds a validated ProgramChange from a wire channel.
func NewProgramChange(channel, program uint8) (ProgramChange, error) {
	pc := ProgramChange{Channel: channel, Program: program}
	if err := Validate(pc); err != nil {
		return ProgramChange{}, err
	}
	return pc, nil
}

// NewControlChange builds a validated ControlChange from a wire channel.
func NewControlChange(channel, controller, value uint8) (ControlChange, error) {
	cc := ControlChange{Channel: channel, Controller: controller, Value: value}
	if err := Validate(cc); err != nil {
		return ControlChange{}, err
	}
	return cc, nil
}

// Validate reports whether m can be encoded.
func Validate(m Message) error {
	switch msg := m.(type) {
	case Empty:
		return nil
	case Delay:
		return checkDelay(msg.Millis)
	case ProgramChange:
		if err := checkChannel(msg.Channel); err != nil {
			return err
		}
		return checkData("program", msg.Program)
	case ControlChange:
		if err := checkChannel(msg.Channel); err != nil {
			return err
		}
		if err := checkData("controller", msg.Controller); err != nil {
			return err
		}
		return checkData("value", msg.Value)
	case nil:
		return errors.New("midi: nil message")
	default:
		return fmt.Errorf("midi: unsupported message type %T", m)
	}
}

// Encode returns the wire bytes for m. Empty and Delay encode to nil: they are
// handled by the dispatcher and never transmitted. Out-of-range fields are
// rejected, never masked into a neighbouring status family.
func Encode(m Message) ([]byte, error) {
	if err := Validate(m); err != nil {
		return nil, err
	}
	switch msg := m.(type) {
	case ProgramChange:
		return gomidi.ProgramChange(msg.Channel, msg.Program).Bytes(), nil
	case ControlChange:
		return gomidi.ControlChange(msg.Channel, msg.Controller, msg.Value).Bytes(), nil
	default:
		return nil, nil
	}
}

// Transmittable reports whether m produces wire bytes.
func Transmittable(m Message) bool {
	switch m.(type) {
	case ProgramChange, ControlChange:
		return true
	}
	return false
}

// SceneSelect is the controller number new control changes default to
// (scene select on Fractal units).
const SceneSelect uint8 = 34

// Default returns the value a new message of kind k starts from in an editor.
func Default(k Kind) Message {
	switch k {
	case KindDelay:
		return Delay{}
	case KindProgramChange:
		return ProgramChange{}
	case KindControlChange:
		return ControlChange{Controller: SceneSelect}
	default:
		return Empty{}
	}
}

func checkChannel(ch uint8) error {
	if ch > MaxChannel {
		return fmt.Errorf("%w: %d (want 0-15)", ErrInvalidChannelRange, ch)
	}
	return nil
}

func checkData(field string, v uint8) error {
	if v > MaxDataByte {
		return fmt.Errorf("%w: %s %d (want 0-127)", ErrInvalidDataRange, field, v)
	}
	return nil
}

func checkDelay(ms uint64) error {
	if ms > MaxDelayMillis {
		return fmt.Errorf("%w: %d ms (max %d)", ErrInvalidDelay, ms, MaxDelayMillis)
	}
	return nil
}
