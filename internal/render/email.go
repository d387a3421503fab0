package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/ajramos/mailsync/internal/config"
	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/derailed/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// MessageColorer picks list row colors from message state
type MessageColorer struct {
	UnreadColor   tcell.Color
	ReadColor     tcell.Color
	SelectedColor tcell.Color
	StarredColor  tcell.Color
}

// NewMessageColorer creates a colorer with the default theme
func NewMessageColorer() *MessageColorer {
	c := &MessageColorer{}
	c.UpdateFromStyles(config.DefaultColors())
	return c
}

// UpdateFromStyles updates colors from configuration
func (mc *MessageColorer) UpdateFromStyles(colors *config.ColorsConfig) {
	if colors == nil {
		return
	}
	mc.UnreadColor = colors.List.Unread.Color()
	mc.ReadColor = colors.List.Read.Color()
	mc.SelectedColor = colors.List.Selected.Color()
	mc.StarredColor = colors.List.Starred.Color()
}

// Color returns the row color. Selection wins over star, star over unread.
func (mc *MessageColorer) Color(m mailbox.Message, state RowState) tcell.Color {
	switch {
	case state.Selected:
		return mc.SelectedColor
	case m.Starred:
		return mc.StarredColor
	case m.Unread():
		return mc.UnreadColor
	default:
		return mc.ReadColor
	}
}

// RowState is view state a row shows next to the message itself
type RowState struct {
	Selected bool
	// Pending marks a message with an unsettled optimistic change
	Pending bool
}

// MessageRenderer formats list rows
type MessageRenderer struct {
	colorer     *MessageColorer
	senderWidth int
	dateWidth   int
	now         func() time.Time
}

// NewMessageRenderer creates a renderer with default colors
func NewMessageRenderer() *MessageRenderer {
	return &MessageRenderer{
		colorer:     NewMessageColorer(),
		senderWidth: 22,
		dateWidth:   6,
		now:         time.Now,
	}
}

// UpdateFromConfig updates the renderer with new colors
func (mr *MessageRenderer) UpdateFromConfig(colors *config.ColorsConfig) {
	mr.colorer.UpdateFromStyles(colors)
}

// FormatRow formats one message as "marks sender | subject - snippet | date",
// padded to maxWidth display cells.
func (mr *MessageRenderer) FormatRow(m mailbox.Message, state RowState, maxWidth int) (string, tcell.Color) {
	if maxWidth < 40 {
		maxWidth = 40
	}
	sender := m.From.Display()
	if sender == "" {
		sender = "(No sender)"
	}
	subject := m.Subject
	if subject == "" {
		subject = "(No subject)"
	}
	if snippet := strings.Join(strings.Fields(m.Snippet), " "); snippet != "" {
		subject += " - " + snippet
	}
	suffix := ""
	if len(m.Attachments) > 0 {
		suffix = " @"
	}

	marks := rowMarks(m, state)
	// marks + " " + sender + " | " + subject + suffix + " | " + date
	subjectWidth := maxWidth - runewidth.StringWidth(marks) - 1 - mr.senderWidth - 6 - mr.dateWidth - runewidth.StringWidth(suffix)
	if subjectWidth < 10 {
		subjectWidth = 10
	}

	row := fmt.Sprintf("%s %s | %s%s | %s",
		marks,
		fitWidth(sender, mr.senderWidth),
		fitWidth(subject, subjectWidth),
		suffix,
		rightFit(formatRelativeTime(m.Timestamp.Time(), mr.now()), mr.dateWidth),
	)
	return row, mr.colorer.Color(m, state)
}

// rowMarks is a fixed four cell column: selection, unread, star, pending
func rowMarks(m mailbox.Message, state RowState) string {
	marks := []byte("    ")
	if state.Selected {
		marks[0] = '>'
	}
	if m.Unread() {
		marks[1] = '*'
	}
	if m.Starred {
		marks[2] = '+'
	}
	if state.Pending {
		marks[3] = '~'
	}
	return string(marks)
}

// FolderTabs renders the folder bar with the active folder highlighted by a
// tview color tag
func FolderTabs(active mailbox.Folder, activeTag string) string {
	var b strings.Builder
	for i, f := range mailbox.Folders() {
		if i > 0 {
			b.WriteString("  ")
		}
		if f == active {
			fmt.Fprintf(&b, "%s<%s>[-:-:-]", activeTag, f.Title())
			continue
		}
		b.WriteString(f.Title())
	}
	return b.String()
}

// fitWidth truncates and pads on the right to fit a fixed width
func fitWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = runewidth.Truncate(s, width, "...")
	if pad := width - runewidth.StringWidth(s); pad > 0 {
		s += strings.Repeat(" ", pad)
	}
	return s
}

// rightFit truncates and right-aligns to width
func rightFit(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if over := runewidth.StringWidth(s) - width; over > 0 {
		s = runewidth.TruncateLeft(s, over, "")
	}
	if pad := width - runewidth.StringWidth(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}

func formatRelativeTime(date, now time.Time) string {
	if date.IsZero() {
		return ""
	}
	diff := now.Sub(date)
	switch {
	case diff < time.Minute:
		return "now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd", int(diff.Hours()/24))
	case date.Year() == now.Year():
		return date.Format("Jan 2")
	default:
		return date.Format("01/06")
	}
}
