package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	Sent    rune // ● transmitted
	Failed  rune // ✗ failed
	Delay   rune // … waited
	Skipped rune // · empty placeholder
}

func New(palette *Palette) *Theme {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			Sent:    '●',
			Failed:  '✗',
			Delay:   '…',
			Skipped: '·',
		},
	}
}

// Load returns the default theme with the named colours of the GIMP palette
// at path merged in. An empty path gives the default theme.
func Load(path string) (*Theme, error) {
	if path == "" {
		return New(nil), nil
	}
	p, err := LoadGPL(path)
	if err != nil {
		return nil, err
	}
	return New(DefaultPalette().Merge(p)), nil
}

// Color roles mapped to card colour names
const (
	RoleMuted   = "slate"
	RoleAccent  = "violet"
	RoleWarning = "amber"
	RoleError   = "rose"
	RoleSuccess = "emerald"
)

func (t *Theme) Muted() lipgloss.Color   { return t.role(RoleMuted) }
func (t *Theme) Accent() lipgloss.Color  { return t.role(RoleAccent) }
func (t *Theme) Warning() lipgloss.Color { return t.role(RoleWarning) }
func (t *Theme) Error() lipgloss.Color   { return t.role(RoleError) }
func (t *Theme) Success() lipgloss.Color { return t.role(RoleSuccess) }

func (t *Theme) role(name string) lipgloss.Color {
	if c, ok := t.Palette.Named(name); ok {
		return lipgloss.Color(c.Hex())
	}
	c, _ := DefaultPalette().Named(name)
	return lipgloss.Color(c.Hex())
}

// Known reports whether name is a colour the palette can draw.
func (t *Theme) Known(name string) bool {
	_, ok := t.Palette.Named(name)
	return ok
}

// Card is the style for a preset card of the named colour. Unknown names
// render unfilled.
func (t *Theme) Card(name string) lipgloss.Style {
	style := lipgloss.NewStyle().Padding(0, 1)
	c, ok := t.Palette.Named(name)
	if !ok {
		return style.Foreground(t.Muted())
	}
	return style.
		Background(lipgloss.Color(c.Hex())).
		Foreground(lipgloss.Color("#111827"))
}

// Swatch renders a small filled block followed by the colour name.
func (t *Theme) Swatch(name string) string {
	c, ok := t.Palette.Named(name)
	if !ok {
		return lipgloss.NewStyle().Foreground(t.Muted()).Render("?? " + name)
	}
	block := lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex())).Render("██")
	return block + " " + strings.ToLower(name)
}
