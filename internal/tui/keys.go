package tui

import (
	"github.com/derailed/tcell/v2"
)

// bindKeys installs the global input capture
func (a *App) bindKeys() {
	a.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		page, _ := a.Pages.GetFrontPage()
		switch page {
		case pageCompose:
			// the compose panel owns every key
			return event
		case pageDebug:
			if event.Key() == tcell.KeyEscape || keyName(event) == a.Keys.Debug {
				a.toggleDebug()
				return nil
			}
			return event
		}

		if a.currentFocus == "search" {
			return event
		}

		switch event.Key() {
		case tcell.KeyTab:
			a.toggleFocus()
			return nil
		case tcell.KeyEscape:
			if a.currentFocus == "text" {
				a.ctrl.Close()
				a.focusList()
				return nil
			}
			if a.searchVisible {
				a.closeSearch()
				return nil
			}
			if len(a.ctrl.View().Selected) > 0 {
				a.ctrl.ClearSelection()
				return nil
			}
			return event
		}

		if a.handleConfigurableKey(event) {
			return nil
		}
		return event
	})
}

// handleConfigurableKey runs the action bound to event. It reports whether
// the key was consumed.
func (a *App) handleConfigurableKey(event *tcell.EventKey) bool {
	key := keyName(event)
	if key == "" {
		return false
	}

	var (
		action string
		run    func()
	)
	switch key {
	case a.Keys.Quit:
		action, run = "quit", a.Stop
	case a.Keys.Compose:
		action, run = "compose", a.composeMessage
	case a.Keys.Refresh:
		action, run = "refresh", a.refreshMailbox
	case a.Keys.Search:
		action, run = "search", a.openSearch
	case a.Keys.ToggleRead:
		action, run = "toggle_read", a.toggleRead
	case a.Keys.Star:
		action, run = "star", a.toggleStar
	case a.Keys.Trash:
		action, run = "trash", a.trashSelected
	case a.Keys.Archive:
		action, run = "archive", a.archiveSelected
	case a.Keys.Spam:
		action, run = "spam", a.spamSelected
	case a.Keys.Select:
		action, run = "select", a.toggleSelect
	case a.Keys.SelectAll:
		action, run = "select_all", a.selectAll
	case a.Keys.NextFolder:
		action, run = "next_folder", func() { a.switchFolder(1) }
	case a.Keys.PrevFolder:
		action, run = "prev_folder", func() { a.switchFolder(-1) }
	case a.Keys.Debug:
		action, run = "debug", a.toggleDebug
	default:
		return false
	}
	a.logf("Configurable shortcut: '%s' -> %s", key, action)
	run()
	return true
}

// keyName names a rune key the way key bindings spell it
func keyName(event *tcell.EventKey) string {
	if event.Key() != tcell.KeyRune {
		return ""
	}
	switch r := event.Rune(); r {
	case ' ':
		return "space"
	case 0:
		return ""
	default:
		return string(r)
	}
}

// toggleFocus moves focus between the list and an opened message
func (a *App) toggleFocus() {
	if a.currentFocus == "list" && a.openedID != "" {
		a.focusText()
		return
	}
	a.focusList()
}
