// Package preset is the collaborator side of dispatch: named message
// sequences bound to a device index, their record format, and the stores
// that keep them.
package preset

import (
	"context"
	"errors"
	"slices"
	"strings"
	"unicode"

	"go-midipreset/midi"
)

var (
	ErrNotFound      = errors.New("preset: not found")
	ErrInvalidRecord = errors.New("preset: invalid record")
)

// Preset is a named, ordered message sequence for one output port.
type Preset struct {
	ID       string
	Label    string
	Device   int
	Colour   string
	Messages []midi.Message
}

// DefaultColour is the card colour of a new preset.
const DefaultColour = "red"

// New returns an empty preset with editor defaults.
func New(id string) Preset {
	return Preset{ID: id, Label: "New Preset", Colour: DefaultColour}
}

// Sender is what Send hands a preset to. *dispatch.Dispatcher implements it.
type Sender interface {
	Dispatch(ctx context.Context, device int, messages []midi.Message)
}

// Send dispatches p's messages to its device. The sender receives its own
// copy of the sequence.
func Send(ctx context.Context, s Sender, p Preset) {
	s.Dispatch(ctx, p.Device, slices.Clone(p.Messages))
}

// SendTo is Send with the device overridden.
func SendTo(ctx context.Context, s Sender, p Preset, device int) {
	s.Dispatch(ctx, device, slices.Clone(p.Messages))
}

// Slug derives an ID from a label: lower case, runs of other characters
// collapsed to a single dash.
func Slug(label string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(label) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
