package tui

import (
	"strings"
	"unicode"

	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// EditableTextView is a multiline editor drawn by a TextView. Esc, Tab and
// Ctrl keys other than the editing ones bubble up to the parent.
type EditableTextView struct {
	*tview.TextView

	lines        [][]rune
	cursorLine   int
	cursorColumn int
	placeholder  string
	changed      func(string)
}

// NewEditableTextView creates an empty editor
func NewEditableTextView() *EditableTextView {
	e := &EditableTextView{
		TextView: tview.NewTextView().
			SetDynamicColors(true).
			SetWrap(true).
			SetScrollable(true),
		lines: [][]rune{{}},
	}
	e.updateDisplay()
	return e
}

// SetPlaceholder sets the text shown while the editor is empty
func (e *EditableTextView) SetPlaceholder(text string) *EditableTextView {
	e.placeholder = text
	e.updateDisplay()
	return e
}

// SetChangedFunc sets a handler called after every edit
func (e *EditableTextView) SetChangedFunc(fn func(string)) *EditableTextView {
	e.changed = fn
	return e
}

// SetText replaces the content and moves the cursor to the end
func (e *EditableTextView) SetText(text string) *EditableTextView {
	e.lines = e.lines[:0]
	for _, ln := range strings.Split(text, "\n") {
		e.lines = append(e.lines, []rune(ln))
	}
	e.cursorLine = len(e.lines) - 1
	e.cursorColumn = len(e.lines[e.cursorLine])
	e.updateDisplay()
	return e
}

// GetText returns the edited text
func (e *EditableTextView) GetText() string {
	parts := make([]string, len(e.lines))
	for i, ln := range e.lines {
		parts[i] = string(ln)
	}
	return strings.Join(parts, "\n")
}

// GetCursorPosition returns the cursor line and column
func (e *EditableTextView) GetCursorPosition() (int, int) {
	return e.cursorLine, e.cursorColumn
}

// InputHandler edits the text; it replaces the read-only TextView handler.
func (e *EditableTextView) InputHandler() func(event *tcell.EventKey, setFocus func(p tview.Primitive)) {
	return e.WrapInputHandler(func(event *tcell.EventKey, _ func(p tview.Primitive)) {
		e.handleKey(event)
	})
}

func (e *EditableTextView) handleKey(event *tcell.EventKey) {
	switch event.Key() {
	case tcell.KeyEnter:
		e.insertNewline()
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		e.handleBackspace()
	case tcell.KeyDelete:
		e.handleDelete()
	case tcell.KeyUp:
		e.moveCursor(-1, 0)
	case tcell.KeyDown:
		e.moveCursor(1, 0)
	case tcell.KeyLeft:
		e.moveCursor(0, -1)
	case tcell.KeyRight:
		e.moveCursor(0, 1)
	case tcell.KeyHome:
		e.cursorColumn = 0
		e.updateDisplay()
	case tcell.KeyEnd:
		e.cursorColumn = len(e.lines[e.cursorLine])
		e.updateDisplay()
	case tcell.KeyRune:
		if r := event.Rune(); unicode.IsPrint(r) {
			e.insertCharacter(r)
		}
	}
}

func (e *EditableTextView) insertCharacter(ch rune) {
	line := e.lines[e.cursorLine]
	line = append(line[:e.cursorColumn], append([]rune{ch}, line[e.cursorColumn:]...)...)
	e.lines[e.cursorLine] = line
	e.cursorColumn++
	e.textChanged()
}

func (e *EditableTextView) insertNewline() {
	line := e.lines[e.cursorLine]
	head := append([]rune(nil), line[:e.cursorColumn]...)
	tail := append([]rune(nil), line[e.cursorColumn:]...)
	e.lines[e.cursorLine] = head
	e.lines = append(e.lines[:e.cursorLine+1], append([][]rune{tail}, e.lines[e.cursorLine+1:]...)...)
	e.cursorLine++
	e.cursorColumn = 0
	e.textChanged()
}

func (e *EditableTextView) handleBackspace() {
	switch {
	case e.cursorColumn > 0:
		line := e.lines[e.cursorLine]
		e.lines[e.cursorLine] = append(line[:e.cursorColumn-1], line[e.cursorColumn:]...)
		e.cursorColumn--
	case e.cursorLine > 0:
		prev := e.lines[e.cursorLine-1]
		e.cursorColumn = len(prev)
		e.lines[e.cursorLine-1] = append(prev, e.lines[e.cursorLine]...)
		e.lines = append(e.lines[:e.cursorLine], e.lines[e.cursorLine+1:]...)
		e.cursorLine--
	default:
		return
	}
	e.textChanged()
}

func (e *EditableTextView) handleDelete() {
	line := e.lines[e.cursorLine]
	switch {
	case e.cursorColumn < len(line):
		e.lines[e.cursorLine] = append(line[:e.cursorColumn], line[e.cursorColumn+1:]...)
	case e.cursorLine < len(e.lines)-1:
		e.lines[e.cursorLine] = append(line, e.lines[e.cursorLine+1]...)
		e.lines = append(e.lines[:e.cursorLine+1], e.lines[e.cursorLine+2:]...)
	default:
		return
	}
	e.textChanged()
}

func (e *EditableTextView) moveCursor(dLine, dCol int) {
	if dCol != 0 {
		col := e.cursorColumn + dCol
		switch {
		case col < 0 && e.cursorLine > 0:
			e.cursorLine--
			col = len(e.lines[e.cursorLine])
		case col > len(e.lines[e.cursorLine]) && e.cursorLine < len(e.lines)-1:
			e.cursorLine++
			col = 0
		}
		e.cursorColumn = max(0, min(col, len(e.lines[e.cursorLine])))
	}
	if dLine != 0 {
		e.cursorLine = max(0, min(e.cursorLine+dLine, len(e.lines)-1))
		e.cursorColumn = min(e.cursorColumn, len(e.lines[e.cursorLine]))
	}
	e.updateDisplay()
}

func (e *EditableTextView) textChanged() {
	e.updateDisplay()
	if e.changed != nil {
		e.changed(e.GetText())
	}
}

// updateDisplay redraws the text with a reverse-video cursor
func (e *EditableTextView) updateDisplay() {
	var b strings.Builder
	if len(e.lines) == 1 && len(e.lines[0]) == 0 && e.placeholder != "" {
		b.WriteString("[::r] [::-][::d]")
		b.WriteString(tview.Escape(e.placeholder))
		b.WriteString("[::-]")
		e.TextView.SetText(b.String())
		return
	}
	for i, line := range e.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i != e.cursorLine {
			b.WriteString(tview.Escape(string(line)))
			continue
		}
		b.WriteString(tview.Escape(string(line[:e.cursorColumn])))
		under := " "
		if e.cursorColumn < len(line) {
			under = string(line[e.cursorColumn])
		}
		b.WriteString("[::r]")
		b.WriteString(tview.Escape(under))
		b.WriteString("[::-]")
		if e.cursorColumn < len(line) {
			b.WriteString(tview.Escape(string(line[e.cursorColumn+1:])))
		}
	}
	e.TextView.SetText(b.String())
}
