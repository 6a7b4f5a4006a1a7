package theme

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

type RGB [3]uint8

// Hex renders the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// Palette is an ordered list of colours. Names[i] labels Colors[i] and may
// be empty.
type Palette struct {
	Name   string
	Colors []RGB
	Names  []string
}

// CardColours are the names a preset card may use, in picker order.
var CardColours = []string{
	"gray", "slate", "zinc", "neutral", "stone", "red", "orange", "amber", "yellow", "lime",
	"green", "emerald", "teal", "cyan", "sky", "blue", "indigo", "violet", "purple", "fuchsia",
	"pink", "rose",
}

// card fills, the 300 shades of each named hue
var cardFills = []RGB{
	{0xd1, 0xd5, 0xdb}, {0xcb, 0xd5, 0xe1}, {0xd4, 0xd4, 0xd8}, {0xd4, 0xd4, 0xd4}, {0xd6, 0xd3, 0xd1},
	{0xfc, 0xa5, 0xa5}, {0xfd, 0xba, 0x74}, {0xfc, 0xd3, 0x4d}, {0xfd, 0xe0, 0x47}, {0xbe, 0xf2, 0x64},
	{0x86, 0xef, 0xac}, {0x6e, 0xe7, 0xb7}, {0x5e, 0xea, 0xd4}, {0x67, 0xe8, 0xf9}, {0x7d, 0xd3, 0xfc},
	{0x93, 0xc5, 0xfd}, {0xa5, 0xb4, 0xfc}, {0xc4, 0xb5, 0xfd}, {0xd8, 0xb4, 0xfe}, {0xf0, 0xab, 0xfc},
	{0xf9, 0xa8, 0xd4}, {0xfd, 0xa4, 0xaf},
}

// DefaultPalette returns the built-in card palette.
func DefaultPalette() *Palette {
	p := &Palette{
		Name:   "cards",
		Colors: make([]RGB, len(cardFills)),
		Names:  make([]string, len(CardColours)),
	}
	copy(p.Colors, cardFills)
	copy(p.Names, CardColours)
	return p
}

// Named returns the colour labelled name.
func (p *Palette) Named(name string) (RGB, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range p.Names {
		if n != "" && strings.ToLower(n) == name {
			return p.Colors[i], true
		}
	}
	return RGB{}, false
}

// Merge returns a palette with other's named colours replacing or extending
// p's. Unnamed colours in other are ignored.
func (p *Palette) Merge(other *Palette) *Palette {
	out := &Palette{
		Name:   p.Name,
		Colors: append([]RGB(nil), p.Colors...),
		Names:  append([]string(nil), p.Names...),
	}
	if other == nil {
		return out
	}
	for i, name := range other.Names {
		if name == "" {
			continue
		}
		replaced := false
		for j, n := range out.Names {
			if strings.EqualFold(n, name) {
				out.Colors[j] = other.Colors[i]
				replaced = true
				break
			}
		}
		if !replaced {
			out.Colors = append(out.Colors, other.Colors[i])
			out.Names = append(out.Names, strings.ToLower(name))
		}
	}
	return out
}

func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := ParseGPL(f)
	if err != nil {
		return nil, fmt.Errorf("palette %s: %w", path, err)
	}
	return p, nil
}

// ParseGPL reads a GIMP palette. Text after the R G B fields names the colour.
func ParseGPL(r io.Reader) (*Palette, error) {
	p := &Palette{}
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "Name:") {
			p.Name = strings.TrimSpace(strings.TrimPrefix(line, "Name:"))
			continue
		}

		// Skip headers and comments
		if line == "" || line[0] == '#' || strings.HasPrefix(line, "GIMP") || strings.HasPrefix(line, "Columns") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		rgb, ok := parseRGB(fields[:3])
		if !ok {
			continue
		}
		p.Colors = append(p.Colors, rgb)
		p.Names = append(p.Names, strings.Join(fields[3:], " "))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(p.Colors) == 0 {
		return nil, fmt.Errorf("no colors found")
	}

	return p, nil
}

func parseRGB(fields []string) (RGB, bool) {
	var c RGB
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 || v > 255 {
			return RGB{}, false
		}
		c[i] = uint8(v)
	}
	return c, true
}
