package tui

import (
	"fmt"
	"strings"

	"github.com/ajramos/mailsync/internal/services"
)

// toggleDebug shows or hides the engine diagnostics page
func (a *App) toggleDebug() {
	a.debugVisible = !a.debugVisible
	if a.debugVisible {
		a.renderDebug()
		a.Pages.SwitchToPage(pageDebug)
		a.SetFocus(a.debug)
		return
	}
	a.Pages.SwitchToPage(pageMain)
	a.focusList()
}

func (a *App) renderDebug() {
	a.debug.SetText(formatDebug(a.ctrl.Debug()))
}

// formatDebug renders a controller snapshot as plain text
func formatDebug(d services.DebugSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SYNC\n\n")
	fmt.Fprintf(&b, "Folder:          %s\n", d.Folder.Title())
	fmt.Fprintf(&b, "Generation:      latest %d, committed %d\n", d.Latest, d.Committed)
	fmt.Fprintf(&b, "Poller:          %s (%d fetches)\n", d.Poller, d.PollFetches)
	fmt.Fprintf(&b, "Feed emissions:  %d\n", d.FeedEmissions)
	connected := "no"
	if d.Connected {
		connected = "yes"
	}
	fmt.Fprintf(&b, "Connected:       %s\n", connected)
	fmt.Fprintf(&b, "Canonical:       %d messages\n", len(d.Canonical))

	fmt.Fprintf(&b, "\nIN FLIGHT (%d)\n\n", len(d.InFlight))
	for _, id := range d.InFlight {
		fmt.Fprintf(&b, "  %s\n", id)
	}

	fmt.Fprintf(&b, "\nDELTAS (%d)\n\n", len(d.Deltas))
	for _, delta := range d.Deltas {
		state := "pending"
		if delta.Settled {
			state = "settled"
		}
		fmt.Fprintf(&b, "  %s  %s=%t  %s  batch %s\n", delta.ID, delta.Flag, delta.Value, state, shortBatch(delta.Batch))
	}
	b.WriteString("\nEsc to close\n")
	return b.String()
}

func shortBatch(batch string) string {
	if len(batch) > 8 {
		return batch[:8]
	}
	return batch
}
