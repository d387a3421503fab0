package tui

import (
	"strings"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const detailPlaceholder = "Select a message and press Enter to read it."

// initComponents creates the widgets shared by the pages
func (a *App) initComponents() {
	body := a.colors.Body

	a.folders = tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	a.folders.SetBackgroundColor(body.BgColor.Color())
	a.folders.SetTextColor(body.FgColor.Color())

	// Table rather than List so every row gets its own color
	a.list = tview.NewTable().SetSelectable(true, false)
	a.list.SetBackgroundColor(body.BgColor.Color())
	a.list.SetBorder(a.Config.Layout.ShowBorders).
		SetBorderColor(body.FocusColor.Color()).
		SetBorderAttributes(tcell.AttrBold).
		SetTitle(" Messages ").
		SetTitleAlign(tview.AlignCenter)
	a.list.SetSelectedFunc(func(row, _ int) {
		if id := a.rowID(row); id != "" {
			a.openMessage(id)
		}
	})

	a.search = tview.NewInputField().
		SetLabel("Search: ").
		SetPlaceholder("filter by subject, sender or text").
		SetFieldBackgroundColor(body.BgColor.Color()).
		SetFieldTextColor(body.FgColor.Color()).
		SetLabelColor(body.FocusColor.Color())
	a.search.SetBackgroundColor(body.BgColor.Color())
	a.search.SetChangedFunc(a.applySearch)
	a.search.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.focusList()
		case tcell.KeyEscape:
			a.closeSearch()
		}
	})

	listContainer := tview.NewFlex().SetDirection(tview.FlexRow)
	listContainer.SetBackgroundColor(body.BgColor.Color())
	// search starts hidden: height 0
	listContainer.AddItem(a.search, 0, 0, false)
	listContainer.AddItem(a.list, 0, 1, true)

	a.text = tview.NewTextView().SetDynamicColors(false).SetWrap(true).SetScrollable(true)
	a.text.SetBackgroundColor(body.BgColor.Color())
	a.text.SetTextColor(body.FgColor.Color())
	a.text.SetBorder(a.Config.Layout.ShowBorders).
		SetBorderColor(body.BorderColor.Color()).
		SetBorderAttributes(tcell.AttrBold).
		SetTitle(" Message ").
		SetTitleAlign(tview.AlignCenter)
	a.text.SetText(detailPlaceholder)

	status := tview.NewTextView().SetDynamicColors(false).SetTextAlign(tview.AlignLeft)
	status.SetBackgroundColor(body.BgColor.Color())
	status.SetTextColor(body.FgColor.Color())

	a.debug = tview.NewTextView().SetDynamicColors(false).SetWrap(false).SetScrollable(true)
	a.debug.SetBackgroundColor(body.BgColor.Color())
	a.debug.SetTextColor(body.FgColor.Color())
	a.debug.SetBorder(true).
		SetBorderColor(body.FocusColor.Color()).
		SetTitle(" Debug ").
		SetTitleAlign(tview.AlignCenter)

	a.compose = NewCompositionPanel(a.colors)
	a.compose.SetHandlers(a.sendCompose, a.ctrl.CloseCompose, func(p tview.Primitive) { a.SetFocus(p) })

	a.views["folders"] = a.folders
	a.views["list"] = a.list
	a.views["search"] = a.search
	a.views["listContainer"] = listContainer
	a.views["text"] = a.text
	a.views["status"] = status
	a.views["debug"] = a.debug
}

// createMainLayout stacks folders, list, message and status bar
func (a *App) createMainLayout() tview.Primitive {
	ratio := a.Config.Layout.ListRatio
	if ratio <= 0 || ratio >= 100 {
		ratio = 40
	}
	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow)
	mainFlex.SetBackgroundColor(a.colors.Body.BgColor.Color())
	mainFlex.AddItem(a.folders, 1, 0, false)
	mainFlex.AddItem(a.views["listContainer"], 0, ratio, true)
	mainFlex.AddItem(a.text, 0, 100-ratio, false)
	mainFlex.AddItem(a.views["status"], 1, 0, false)
	a.views["mainFlex"] = mainFlex
	return mainFlex
}

// createCompositionLayout keeps the status bar visible under the compose form
func (a *App) createCompositionLayout() tview.Primitive {
	layout := tview.NewFlex().SetDirection(tview.FlexRow)
	layout.SetBackgroundColor(a.colors.Body.BgColor.Color())
	layout.AddItem(a.compose, 0, 1, true)
	layout.AddItem(a.views["status"], 1, 0, false)
	return layout
}

// updateFocusIndicators highlights the border of the focused pane
func (a *App) updateFocusIndicators(focused string) {
	a.currentFocus = focused
	focus, border := a.colors.Body.FocusColor.Color(), a.colors.Body.BorderColor.Color()
	if focused == "text" {
		a.list.SetBorderColor(border)
		a.text.SetBorderColor(focus)
		return
	}
	a.list.SetBorderColor(focus)
	a.text.SetBorderColor(border)
}

func (a *App) focusList() {
	a.SetFocus(a.list)
	a.updateFocusIndicators("list")
}

func (a *App) focusText() {
	a.SetFocus(a.text)
	a.updateFocusIndicators("text")
}

func (a *App) openSearch() {
	if container, ok := a.views["listContainer"].(*tview.Flex); ok {
		container.ResizeItem(a.search, 1, 0)
	}
	a.searchVisible = true
	a.SetFocus(a.search)
	a.currentFocus = "search"
}

func (a *App) closeSearch() {
	a.search.SetText("")
	if container, ok := a.views["listContainer"].(*tview.Flex); ok {
		container.ResizeItem(a.search, 0, 0)
	}
	a.searchVisible = false
	a.ctrl.Search("")
	a.focusList()
}

func (a *App) applySearch(text string) {
	a.ctrl.Search(strings.TrimSpace(text))
}
