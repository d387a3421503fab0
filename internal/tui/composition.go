package tui

import (
	"fmt"
	"strings"

	"github.com/ajramos/mailsync/internal/config"
	"github.com/ajramos/mailsync/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// CompositionPanel is the compose form: To, Cc, Subject and a multiline body.
// Tab cycles fields, Ctrl+S sends and Esc discards.
type CompositionPanel struct {
	*tview.Flex

	toField      *tview.InputField
	ccField      *tview.InputField
	subjectField *tview.InputField
	bodySection  *EditableTextView
	status       *tview.TextView

	focusOrder []tview.Primitive
	focusIndex int
	inReplyTo  string

	onSend   func(services.ComposePayload)
	onCancel func()
	setFocus func(tview.Primitive)
}

// NewCompositionPanel creates the compose form
func NewCompositionPanel(colors *config.ColorsConfig) *CompositionPanel {
	if colors == nil {
		colors = config.DefaultColors()
	}
	c := &CompositionPanel{
		Flex:         tview.NewFlex().SetDirection(tview.FlexRow),
		toField:      newComposeField("To: ", "recipient@example.com, other@example.com", colors),
		ccField:      newComposeField("Cc: ", "", colors),
		subjectField: newComposeField("Subject: ", "Enter email subject", colors),
		bodySection:  NewEditableTextView().SetPlaceholder("Enter your message here..."),
		status:       tview.NewTextView(),
	}
	c.bodySection.SetBackgroundColor(colors.Body.BgColor.Color())
	c.bodySection.SetTextColor(colors.Body.FgColor.Color())
	c.status.SetTextColor(colors.Status.Info.Color())
	c.status.SetBackgroundColor(colors.Body.BgColor.Color())

	c.SetBackgroundColor(colors.Body.BgColor.Color())
	c.SetBorder(true).
		SetBorderColor(colors.Body.FocusColor.Color()).
		SetTitle(" Compose ").
		SetTitleAlign(tview.AlignCenter)
	c.AddItem(c.toField, 1, 0, true)
	c.AddItem(c.ccField, 1, 0, false)
	c.AddItem(c.subjectField, 1, 0, false)
	c.AddItem(c.bodySection, 0, 1, false)
	c.AddItem(c.status, 1, 0, false)

	c.focusOrder = []tview.Primitive{c.toField, c.ccField, c.subjectField, c.bodySection}
	c.SetInputCapture(c.handleInput)
	return c
}

func newComposeField(label, placeholder string, colors *config.ColorsConfig) *tview.InputField {
	f := tview.NewInputField().
		SetLabel(label).
		SetPlaceholder(placeholder).
		SetFieldBackgroundColor(colors.Body.BgColor.Color()).
		SetFieldTextColor(colors.Body.FgColor.Color()).
		SetLabelColor(colors.Body.FocusColor.Color())
	f.SetBackgroundColor(colors.Body.BgColor.Color())
	return f
}

// SetHandlers wires send, cancel and focus changes
func (c *CompositionPanel) SetHandlers(onSend func(services.ComposePayload), onCancel func(), setFocus func(tview.Primitive)) {
	c.onSend, c.onCancel, c.setFocus = onSend, onCancel, setFocus
}

// Load fills the form from draft and focuses the first empty header
func (c *CompositionPanel) Load(draft services.ComposePayload) {
	c.toField.SetText(strings.Join(draft.To, ", "))
	c.ccField.SetText(strings.Join(draft.Cc, ", "))
	c.subjectField.SetText(draft.Subject)
	c.bodySection.SetText(draft.Body)
	c.inReplyTo = draft.InReplyTo
	c.status.SetText("Ctrl+S send | Tab next field | Esc discard")
	c.focusIndex = 0
	if len(draft.To) > 0 {
		c.focusIndex = 3
	}
}

// FocusTarget returns the field that should receive focus
func (c *CompositionPanel) FocusTarget() tview.Primitive {
	return c.focusOrder[c.focusIndex]
}

// Payload reads the form
func (c *CompositionPanel) Payload() services.ComposePayload {
	return services.ComposePayload{
		To:        splitAddresses(c.toField.GetText()),
		Cc:        splitAddresses(c.ccField.GetText()),
		Subject:   strings.TrimSpace(c.subjectField.GetText()),
		Body:      c.bodySection.GetText(),
		InReplyTo: c.inReplyTo,
	}
}

// SetState shows the send progress or failure
func (c *CompositionPanel) SetState(state services.ComposeState) {
	switch {
	case state.Sending:
		c.status.SetText("Sending...")
	case state.Err != nil:
		c.status.SetText(fmt.Sprintf("Send failed: %v", state.Err))
	}
}

func (c *CompositionPanel) handleInput(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyEscape:
		if c.onCancel != nil {
			c.onCancel()
		}
		return nil
	case tcell.KeyCtrlS:
		c.send()
		return nil
	case tcell.KeyTab:
		c.cycleFocus(1)
		return nil
	case tcell.KeyBacktab:
		c.cycleFocus(-1)
		return nil
	}
	return event
}

func (c *CompositionPanel) send() {
	payload := c.Payload()
	if len(payload.To) == 0 {
		c.status.SetText("Add at least one recipient")
		return
	}
	if c.onSend != nil {
		c.onSend(payload)
	}
}

func (c *CompositionPanel) cycleFocus(step int) {
	n := len(c.focusOrder)
	c.focusIndex = ((c.focusIndex+step)%n + n) % n
	if c.setFocus != nil {
		c.setFocus(c.FocusTarget())
	}
}

// splitAddresses splits a recipient field on commas and semicolons
func splitAddresses(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
