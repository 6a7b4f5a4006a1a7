package midi

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrSyntax = errors.New("midi: invalid message syntax")

// ParseMessage reads the compact form used on the command line:
//
//	empty
//	delay:<ms>
//	pc:<channel 1-16>:<program>
//	cc:<channel 1-16>:<controller>:<value>
func ParseMessage(s string) (Message, error) {
	fields := strings.Split(strings.ToLower(strings.TrimSpace(s)), ":")
	switch fields[0] {
	case "empty", "":
		if len(fields) != 1 {
			return nil, fmt.Errorf("%w: %q", ErrSyntax, s)
		}
		return Empty{}, nil

	case "delay", "d":
		if len(fields) != 2 {
			return nil, fmt.Errorf("%w: %q (want delay:<ms>)", ErrSyntax, s)
		}
		ms, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrSyntax, s, err)
		}
		if err := checkDelay(ms); err != nil {
			return nil, err
		}
		return Delay{Millis: ms}, nil

	case "pc":
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: %q (want pc:<channel>:<program>)", ErrSyntax, s)
		}
		ch, err := parseChannel(fields[1])
		if err != nil {
			return nil, err
		}
		program, err := parseData(fields[2])
		if err != nil {
			return nil, err
		}
		return NewProgramChange(ch, program)

	case "cc":
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: %q (want cc:<channel>:<controller>:<value>)", ErrSyntax, s)
		}
		ch, err := parseChannel(fields[1])
		if err != nil {
			return nil, err
		}
		controller, err := parseData(fields[2])
		if err != nil {
			return nil, err
		}
		value, err := parseData(fields[3])
		if err != nil {
			return nil, err
		}
		return NewControlChange(ch, controller, value)
	}
	return nil, fmt.Errorf("%w: unknown kind %q", ErrSyntax, fields[0])
}

// ParseMessages parses each argument in order, stopping at the first error.
func ParseMessages(args []string) ([]Message, error) {
	msgs := make([]Message, 0, len(args))
	for i, a := range args {
		m, err := ParseMessage(a)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// FormatMessage is the inverse of ParseMessage.
func FormatMessage(m Message) string {
	switch msg := m.(type) {
	case Delay:
		return fmt.Sprintf("delay:%d", msg.Millis)
	case ProgramChange:
		return fmt.Sprintf("pc:%d:%d", ChannelNumber(msg.Channel), msg.Program)
	case ControlChange:
		return fmt.Sprintf("cc:%d:%d:%d", ChannelNumber(msg.Channel), msg.Controller, msg.Value)
	default:
		return "empty"
	}
}

func parseChannel(s string) (uint8, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: channel %q", ErrSyntax, s)
	}
	return ChannelFromNumber(n)
}

func parseData(s string) (uint8, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrSyntax, s)
	}
	if n < 0 || n > int(MaxDataByte) {
		return 0, fmt.Errorf("%w: %d (want 0-127)", ErrInvalidDataRange, n)
	}
	return uint8(n), nil
}
