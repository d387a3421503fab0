package tui

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/config"
	"github.com/ajramos/mailsync/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

// LogLevel represents the severity of a message
type LogLevel int

const (
	LogLevelInfo LogLevel = iota
	LogLevelWarning
	LogLevelError
	LogLevelSuccess
)

const defaultClearAfter = 5 * time.Second

// ErrorHandler owns the status bar: transient notices over a baseline line
// describing the mailbox. It implements services.Notifier.
type ErrorHandler struct {
	mu         sync.Mutex
	statusView *tview.TextView
	logger     *log.Logger
	colors     config.StatusColors
	baseColor  tcell.Color
	queue      func(func())
	clearAfter time.Duration

	currentStatus string
	currentLevel  LogLevel
	baseline      string
	statusTimer   *time.Timer
}

// NewErrorHandler creates a status bar handler. A nil colors uses the
// default theme.
func NewErrorHandler(statusView *tview.TextView, colors *config.ColorsConfig, logger *log.Logger) *ErrorHandler {
	if colors == nil {
		colors = config.DefaultColors()
	}
	return &ErrorHandler{
		statusView: statusView,
		logger:     logger,
		colors:     colors.Status,
		baseColor:  colors.Body.FgColor.Color(),
		queue:      func(f func()) { f() },
		clearAfter: defaultClearAfter,
		baseline:   "mailsync",
	}
}

// SetQueue sets how display updates reach the UI goroutine
func (eh *ErrorHandler) SetQueue(queue func(func())) {
	if queue != nil {
		eh.queue = queue
	}
}

// SetBaseline sets the text shown when no notice is active
func (eh *ErrorHandler) SetBaseline(text string) {
	eh.mu.Lock()
	eh.baseline = text
	show := eh.currentStatus == ""
	eh.mu.Unlock()
	if show {
		eh.queue(eh.refreshStatusDisplay)
	}
}

// Notify maps a controller notice onto the status bar
func (eh *ErrorHandler) Notify(level services.NoticeLevel, message string) {
	switch level {
	case services.NoticeSuccess:
		eh.ShowMessage(message, LogLevelSuccess)
	case services.NoticeWarning:
		eh.ShowMessage(message, LogLevelWarning)
	case services.NoticeError:
		eh.ShowMessage(message, LogLevelError)
	default:
		eh.ShowMessage(message, LogLevelInfo)
	}
}

// HandleError logs err and shows userMsg
func (eh *ErrorHandler) HandleError(err error, userMsg string) {
	if err == nil {
		return
	}
	if eh.logger != nil {
		eh.logger.Printf("ERROR: %v", err)
	}
	if userMsg == "" {
		userMsg = "An error occurred"
	}
	eh.ShowMessage(fmt.Sprintf("%s: %v", userMsg, err), LogLevelError)
}

// ShowMessage shows msg until it is replaced or clearAfter elapses
func (eh *ErrorHandler) ShowMessage(msg string, level LogLevel) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	if eh.logger != nil {
		eh.logger.Printf("%s: %s", levelToString(level), msg)
	}
	formatted := formatMessage(msg, level)

	eh.mu.Lock()
	if eh.statusTimer != nil {
		eh.statusTimer.Stop()
	}
	eh.currentStatus = formatted
	eh.currentLevel = level
	eh.statusTimer = time.AfterFunc(eh.clearAfter, func() { eh.clearIfCurrent(formatted) })
	eh.mu.Unlock()

	eh.queue(eh.refreshStatusDisplay)
}

// ShowInfo shows an info message
func (eh *ErrorHandler) ShowInfo(msg string) { eh.ShowMessage(msg, LogLevelInfo) }

// ShowSuccess shows a success message
func (eh *ErrorHandler) ShowSuccess(msg string) { eh.ShowMessage(msg, LogLevelSuccess) }

// ShowWarning shows a warning message
func (eh *ErrorHandler) ShowWarning(msg string) { eh.ShowMessage(msg, LogLevelWarning) }

// Current returns the text the status bar shows
func (eh *ErrorHandler) Current() string {
	eh.mu.Lock()
	defer eh.mu.Unlock()
	if eh.currentStatus != "" {
		return eh.currentStatus
	}
	return eh.baseline
}

// Stop cancels a pending auto-clear
func (eh *ErrorHandler) Stop() {
	eh.mu.Lock()
	if eh.statusTimer != nil {
		eh.statusTimer.Stop()
		eh.statusTimer = nil
	}
	eh.mu.Unlock()
}

// clearIfCurrent clears the notice unless a newer one replaced it
func (eh *ErrorHandler) clearIfCurrent(expected string) {
	eh.mu.Lock()
	if eh.currentStatus != expected {
		eh.mu.Unlock()
		return
	}
	eh.currentStatus = ""
	eh.statusTimer = nil
	eh.mu.Unlock()
	eh.queue(eh.refreshStatusDisplay)
}

func (eh *ErrorHandler) refreshStatusDisplay() {
	if eh.statusView == nil {
		return
	}
	eh.mu.Lock()
	text, color := eh.baseline, eh.baseColor
	if eh.currentStatus != "" {
		text, color = eh.currentStatus, eh.levelToColor(eh.currentLevel)
	}
	eh.mu.Unlock()
	eh.statusView.SetTextColor(color)
	eh.statusView.SetText(text)
}

func (eh *ErrorHandler) levelToColor(level LogLevel) tcell.Color {
	switch level {
	case LogLevelWarning:
		return eh.colors.Warning.Color()
	case LogLevelError:
		return eh.colors.Error.Color()
	case LogLevelSuccess:
		return eh.colors.Success.Color()
	default:
		return eh.colors.Info.Color()
	}
}

func formatMessage(msg string, level LogLevel) string {
	var icon string
	switch level {
	case LogLevelWarning:
		icon = "!"
	case LogLevelError:
		icon = "x"
	case LogLevelSuccess:
		icon = "ok"
	default:
		icon = "i"
	}
	return fmt.Sprintf("[%s] %s", icon, msg)
}

func levelToString(level LogLevel) string {
	switch level {
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelSuccess:
		return "SUCCESS"
	default:
		return "UNKNOWN"
	}
}
