package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"go-midipreset/dispatch"
	"go-midipreset/theme"
)

// tally counts outcomes of one dispatch while printing them.
type tally struct {
	mu     sync.Mutex
	sent   int
	failed int
}

func (t *tally) err(total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d messages failed", t.failed, total)
}

// progressHooks prints one line per message outcome to w.
func progressHooks(w io.Writer, th *theme.Theme, t *tally) dispatch.Hooks {
	ok := lipgloss.NewStyle().Foreground(th.Success())
	bad := lipgloss.NewStyle().Foreground(th.Error())
	muted := lipgloss.NewStyle().Foreground(th.Muted())

	return dispatch.Hooks{
		OnSent: func(_ context.Context, o dispatch.Outcome) {
			t.mu.Lock()
			t.sent++
			t.mu.Unlock()
			fmt.Fprintf(w, "%s %2d  %-40s %s\n",
				ok.Render(string(th.Symbols.Sent)), o.Position+1, o.Message, muted.Render(fmt.Sprintf("% X", o.Bytes)))
		},
		OnFailed: func(_ context.Context, o dispatch.Outcome) {
			t.mu.Lock()
			t.failed++
			t.mu.Unlock()
			fmt.Fprintf(w, "%s %2d  %-40v %s\n",
				bad.Render(string(th.Symbols.Failed)), o.Position+1, o.Message, bad.Render(o.Err.Error()))
		},
		OnDelay: func(_ context.Context, o dispatch.Outcome) {
			fmt.Fprintf(w, "%s %2d  %s\n", muted.Render(string(th.Symbols.Delay)), o.Position+1, muted.Render(o.Message.String()))
		},
	}
}

func heading(th *theme.Theme, s string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(th.Accent()).Render(s)
}
