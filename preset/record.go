package preset

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"go-midipreset/midi"
)

// record is the stored shape of a Preset. Messages are kind-tagged maps with
// 1-based channel numbers:
//
//	{kind: program_change, channel: 1, program: 10}
//	{kind: control_change, channel: 1, controller: 34, value: 2}
//	{kind: delay, ms: 50}
//	{kind: empty}
type record struct {
	ID       string           `json:"id" yaml:"id"`
	Label    string           `json:"label" yaml:"label"`
	Device   int              `json:"device" yaml:"device"`
	Colour   string           `json:"colour,omitempty" yaml:"colour,omitempty"`
	Messages []map[string]any `json:"messages" yaml:"messages"`
}

func (p Preset) record() record {
	return record{
		ID:       p.ID,
		Label:    p.Label,
		Device:   p.Device,
		Colour:   p.Colour,
		Messages: EncodeMessages(p.Messages),
	}
}

func (r record) preset() (Preset, error) {
	msgs, err := DecodeMessages(r.Messages)
	if err != nil {
		return Preset{}, err
	}
	if r.Device < 0 {
		return Preset{}, fmt.Errorf("%w: negative device %d", ErrInvalidRecord, r.Device)
	}
	p := Preset{
		ID:       r.ID,
		Label:    r.Label,
		Device:   r.Device,
		Colour:   r.Colour,
		Messages: msgs,
	}
	if p.ID == "" {
		p.ID = Slug(p.Label)
	}
	if p.Colour == "" {
		p.Colour = DefaultColour
	}
	return p, nil
}

// checkMessages rejects messages the record codec could not read back.
func checkMessages(msgs []midi.Message) error {
	for i, m := range msgs {
		if err := midi.Validate(m); err != nil {
			return fmt.Errorf("%w: message %d: %w", ErrInvalidRecord, i+1, err)
		}
	}
	return nil
}

func (p Preset) MarshalJSON() ([]byte, error) {
	if err := checkMessages(p.Messages); err != nil {
		return nil, err
	}
	return json.Marshal(p.record())
}

func (p *Preset) UnmarshalJSON(data []byte) error {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	out, err := r.preset()
	if err != nil {
		return err
	}
	*p = out
	return nil
}

func (p Preset) MarshalYAML() (any, error) {
	if err := checkMessages(p.Messages); err != nil {
		return nil, err
	}
	return p.record(), nil
}

func (p *Preset) UnmarshalYAML(value *yaml.Node) error {
	var r record
	if err := value.Decode(&r); err != nil {
		return err
	}
	out, err := r.preset()
	if err != nil {
		return err
	}
	*p = out
	return nil
}

// EncodeMessages converts messages to their record maps.
func EncodeMessages(msgs []midi.Message) []map[string]any {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, EncodeMessage(m))
	}
	return out
}

// EncodeMessage converts one message to its record map.
func EncodeMessage(m midi.Message) map[string]any {
	switch msg := m.(type) {
	case midi.Delay:
		return map[string]any{"kind": string(midi.KindDelay), "ms": msg.Millis}
	case midi.ProgramChange:
		return map[string]any{
			"kind":    string(midi.KindProgramChange),
			"channel": midi.ChannelNumber(msg.Channel),
			"program": int(msg.Program),
		}
	case midi.ControlChange:
		return map[string]any{
			"kind":       string(midi.KindControlChange),
			"channel":    midi.ChannelNumber(msg.Channel),
			"controller": int(msg.Controller),
			"value":      int(msg.Value),
		}
	default:
		return map[string]any{"kind": string(midi.KindEmpty)}
	}
}

// DecodeMessages converts record maps to messages, validating every field.
func DecodeMessages(raw []map[string]any) ([]midi.Message, error) {
	msgs := make([]midi.Message, 0, len(raw))
	for i, r := range raw {
		m, err := DecodeMessage(r)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

type delayFields struct {
	Ms *int64 `mapstructure:"ms"`
}

type programFields struct {
	Channel *int `mapstructure:"channel"`
	Program *int `mapstructure:"program"`
}

type controlFields struct {
	Channel    *int `mapstructure:"channel"`
	Controller *int `mapstructure:"controller"`
	Value      *int `mapstructure:"value"`
}

// DecodeMessage converts one record map to a message.
func DecodeMessage(raw map[string]any) (midi.Message, error) {
	kind, _ := raw["kind"].(string)
	fields := maps.Clone(raw)
	delete(fields, "kind")

	switch midi.Kind(kind) {
	case midi.KindEmpty:
		if err := decodeFields(fields, &struct{}{}); err != nil {
			return nil, err
		}
		return midi.Empty{}, nil

	case midi.KindDelay:
		var f delayFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		if f.Ms == nil || *f.Ms < 0 {
			return nil, fmt.Errorf("%w: delay needs a non-negative ms", ErrInvalidRecord)
		}
		if uint64(*f.Ms) > midi.MaxDelayMillis {
			return nil, fmt.Errorf("%w: %w: %d ms (max %d)", ErrInvalidRecord, midi.ErrInvalidDelay, *f.Ms, midi.MaxDelayMillis)
		}
		return midi.Delay{Millis: uint64(*f.Ms)}, nil

	case midi.KindProgramChange:
		var f programFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		ch, err := channel(f.Channel)
		if err != nil {
			return nil, err
		}
		program, err := dataByte("program", f.Program)
		if err != nil {
			return nil, err
		}
		return midi.ProgramChange{Channel: ch, Program: program}, nil

	case midi.KindControlChange:
		var f controlFields
		if err := decodeFields(fields, &f); err != nil {
			return nil, err
		}
		ch, err := channel(f.Channel)
		if err != nil {
			return nil, err
		}
		controller, err := dataByte("controller", f.Controller)
		if err != nil {
			return nil, err
		}
		value, err := dataByte("value", f.Value)
		if err != nil {
			return nil, err
		}
		return midi.ControlChange{Channel: ch, Controller: controller, Value: value}, nil
	}
	return nil, fmt.Errorf("%w: unknown message kind %q", ErrInvalidRecord, kind)
}

func decodeFields(fields map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(fields); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

func channel(n *int) (uint8, error) {
	if n == nil {
		return 0, fmt.Errorf("%w: missing channel", ErrInvalidRecord)
	}
	ch, err := midi.ChannelFromNumber(*n)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return ch, nil
}

func dataByte(field string, n *int) (uint8, error) {
	if n == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrInvalidRecord, field)
	}
	if *n < 0 || *n > int(midi.MaxDataByte) {
		return 0, fmt.Errorf("%w: %w: %s %d (want 0-127)", ErrInvalidRecord, midi.ErrInvalidDataRange, field, *n)
	}
	return uint8(*n), nil
}
