package tui

import (
	"fmt"
	"strings"

	"github.com/ajramos/mailsync/internal/services"
)

// statusBaseline is the status bar line shown while no notice is active
func (a *App) statusBaseline(v services.MailboxView) string {
	parts := []string{"mailsync"}
	if a.account != "" {
		parts = append(parts, a.account)
	}
	parts = append(parts, fmt.Sprintf("%s %d/%d", v.Folder.Title(), len(v.Messages), v.Total))
	if n := len(v.Selected); n > 0 {
		parts = append(parts, fmt.Sprintf("%d selected", n))
	}
	switch {
	case v.Loading:
		parts = append(parts, "loading")
	case v.LoadError != nil:
		parts = append(parts, "load failed")
	}
	if v.Connected {
		parts = append(parts, "live")
	} else {
		parts = append(parts, "offline")
	}
	if v.Pending > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", v.Pending))
	}
	parts = append(parts, "q quit")
	return strings.Join(parts, " | ")
}
