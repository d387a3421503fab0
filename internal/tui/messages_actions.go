package tui

import (
	"errors"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/ajramos/mailsync/internal/services"
)

// targets returns the ids an action applies to. With a selection the
// controller resolves the ids itself, so nil is returned.
func (a *App) targets() []string {
	if len(a.ctrl.View().Selected) > 0 {
		return nil
	}
	if a.currentFocus == "text" && a.openedID != "" {
		return []string{a.openedID}
	}
	if id := a.getCurrentMessageID(); id != "" {
		return []string{id}
	}
	return nil
}

// toggleRead flips the read state of the message under the cursor, or marks
// the selection read
func (a *App) toggleRead() {
	ids := a.targets()
	if len(ids) == 1 {
		if m, ok := a.findMessage(ids[0]); ok && m.Read {
			a.reportAction("mark unread", a.ctrl.MarkUnread(ids...))
			return
		}
	}
	a.reportAction("mark read", a.ctrl.MarkRead(ids...))
}

func (a *App) toggleStar() {
	ids := a.targets()
	if len(ids) != 1 {
		a.errorHandler.ShowWarning("Star applies to one message at a time")
		return
	}
	a.reportAction("star", a.ctrl.ToggleStar(ids[0]))
}

func (a *App) archiveSelected() {
	a.reportAction("archive", a.ctrl.Archive(a.targets()...))
}

func (a *App) trashSelected() {
	a.reportAction("trash", a.ctrl.Trash(a.targets()...))
}

func (a *App) spamSelected() {
	a.reportAction("spam", a.ctrl.Spam(a.targets()...))
}

// reportAction logs a rejected action. The controller already notified the
// user for rejections it recognises.
func (a *App) reportAction(action string, err error) {
	if err == nil {
		return
	}
	a.logf("action %s: %v", action, err)
	if errors.Is(err, services.ErrNothingSelected) {
		a.errorHandler.ShowWarning("No message selected")
	}
}

func (a *App) toggleSelect() {
	id := a.getCurrentMessageID()
	if id == "" {
		return
	}
	a.ctrl.ToggleSelect(id)
	row, _ := a.list.GetSelection()
	if row+1 < len(a.rowIDs) {
		a.list.Select(row+1, 0)
	}
}

// selectAll selects every visible message, or clears a full selection
func (a *App) selectAll() {
	v := a.ctrl.View()
	if len(v.Messages) > 0 && len(v.Selected) == len(v.Messages) {
		a.ctrl.ClearSelection()
		return
	}
	a.ctrl.SelectAll()
}

// switchFolder moves step folders along the tab bar, wrapping around
func (a *App) switchFolder(step int) {
	folders := mailbox.Folders()
	current := a.ctrl.View().Folder
	idx := 0
	for i, f := range folders {
		if f == current {
			idx = i
			break
		}
	}
	n := len(folders)
	next := folders[((idx+step)%n+n)%n]
	a.openedID, a.openedRendered = "", ""
	go func() {
		if err := a.ctrl.SwitchFolder(next); err != nil {
			a.logf("switch folder %s: %v", next, err)
			a.errorHandler.HandleError(err, "Could not switch folder")
		}
	}()
}

func (a *App) refreshMailbox() {
	a.errorHandler.ShowInfo("Refreshing...")
	go func() {
		if err := a.ctrl.Refresh(a.ctx); err != nil {
			a.logf("refresh: %v", err)
		}
	}()
}

func (a *App) composeMessage() {
	a.ctrl.OpenCompose(services.ComposePayload{})
}

func (a *App) sendCompose(payload services.ComposePayload) {
	if err := a.ctrl.SendCompose(payload); err != nil {
		a.logf("send: %v", err)
		a.errorHandler.HandleError(err, "Could not send message")
	}
}

func (a *App) findMessage(id string) (mailbox.Message, bool) {
	for _, m := range a.ctrl.View().Messages {
		if m.ID == id {
			return m, true
		}
	}
	return mailbox.Message{}, false
}
