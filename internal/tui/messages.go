package tui

import (
	"fmt"

	"github.com/ajramos/mailsync/internal/render"
	"github.com/ajramos/mailsync/internal/services"
	"github.com/derailed/tview"
)

// refresh renders the controller view. It must run on the UI goroutine.
func (a *App) refresh() {
	v := a.ctrl.View()
	a.folders.SetText(render.FolderTabs(v.Folder, "[::r]"))
	a.renderList(v)
	a.renderDetail(v)
	a.renderCompose(v)
	if a.debugVisible {
		a.renderDebug()
	}
	a.errorHandler.SetBaseline(a.statusBaseline(v))
}

// renderList rebuilds the rows, keeping the cursor on the same message
func (a *App) renderList(v services.MailboxView) {
	current := a.getCurrentMessageID()
	prevRow, _ := a.list.GetSelection()

	pending := make(map[string]bool)
	if v.Pending > 0 {
		for _, d := range a.ctrl.Debug().Deltas {
			if !d.Settled {
				pending[d.ID] = true
			}
		}
	}

	a.list.Clear()
	a.rowIDs = a.rowIDs[:0]
	a.list.SetTitle(fmt.Sprintf(" %s (%d/%d) ", v.Folder.Title(), len(v.Messages), v.Total))

	if len(v.Messages) == 0 {
		a.list.SetCell(0, 0, tview.NewTableCell(tview.Escape(emptyListText(v))).
			SetSelectable(false).
			SetExpansion(1))
		return
	}

	width := a.getListWidth()
	target := -1
	for i, m := range v.Messages {
		row, color := a.renderer.FormatRow(m, render.RowState{
			Selected: v.IsSelected(m.ID),
			Pending:  pending[m.ID],
		}, width)
		a.list.SetCell(i, 0, tview.NewTableCell(tview.Escape(row)).
			SetTextColor(color).
			SetReference(m.ID).
			SetExpansion(1))
		a.rowIDs = append(a.rowIDs, m.ID)
		if m.ID == current {
			target = i
		}
	}
	if target < 0 {
		target = min(max(prevRow, 0), len(a.rowIDs)-1)
	}
	a.list.Select(target, 0)
}

func emptyListText(v services.MailboxView) string {
	switch {
	case v.Loading:
		return "Loading messages..."
	case v.LoadError != nil:
		return fmt.Sprintf("Could not load messages: %v", v.LoadError)
	case v.Query != "":
		return fmt.Sprintf("No messages match %q", v.Query)
	default:
		return fmt.Sprintf("No messages in %s", v.Folder.Title())
	}
}

// renderDetail shows the opened message, re-rendering only when it changed
func (a *App) renderDetail(v services.MailboxView) {
	if v.Opened == nil {
		if a.openedID != "" {
			a.text.SetText(detailPlaceholder)
			a.text.SetTitle(" Message ")
		}
		a.openedID, a.openedRendered = "", ""
		if a.currentFocus == "text" {
			a.focusList()
		}
		return
	}
	content := render.FormatMessage(*v.Opened, render.FormatOptions{WrapWidth: a.getFormatWidth()})
	if v.Opened.ID == a.openedID && content == a.openedRendered {
		return
	}
	a.text.SetText(content)
	a.text.SetTitle(fmt.Sprintf(" %s ", tview.Escape(v.Opened.Subject)))
	if v.Opened.ID != a.openedID {
		a.text.ScrollToBeginning()
	}
	a.openedID, a.openedRendered = v.Opened.ID, content
}

// renderCompose shows or hides the compose page following the controller
func (a *App) renderCompose(v services.MailboxView) {
	switch {
	case v.Compose.Open && !a.composeVisible:
		a.composeVisible = true
		a.compose.Load(v.Compose.Draft)
		a.Pages.SwitchToPage(pageCompose)
		a.SetFocus(a.compose.FocusTarget())
		a.currentFocus = "compose"
	case !v.Compose.Open && a.composeVisible:
		a.composeVisible = false
		a.Pages.SwitchToPage(pageMain)
		a.focusList()
	}
	if v.Compose.Open {
		a.compose.SetState(v.Compose)
	}
}

func (a *App) rowID(row int) string {
	if row < 0 || row >= len(a.rowIDs) {
		return ""
	}
	return a.rowIDs[row]
}

// getCurrentMessageID returns the id under the list cursor
func (a *App) getCurrentMessageID() string {
	row, _ := a.list.GetSelection()
	return a.rowID(row)
}

// getListWidth returns the usable row width of the list
func (a *App) getListWidth() int {
	_, _, w, _ := a.list.GetInnerRect()
	if w <= 0 {
		return a.screenWidth
	}
	return w
}

// getFormatWidth returns the wrap width of the message pane
func (a *App) getFormatWidth() int {
	_, _, w, _ := a.text.GetInnerRect()
	if w <= 2 {
		return 0
	}
	return w - 1
}

func (a *App) openMessage(id string) {
	if err := a.ctrl.Open(id); err != nil {
		a.errorHandler.HandleError(err, "Could not open message")
		return
	}
	a.focusText()
}
