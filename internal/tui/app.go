package tui

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/ajramos/mailsync/internal/config"
	"github.com/ajramos/mailsync/internal/render"
	"github.com/ajramos/mailsync/internal/services"
	"github.com/derailed/tcell/v2"
	"github.com/derailed/tview"
)

const (
	pageMain    = "main"
	pageCompose = "compose"
	pageDebug   = "debug"
)

// App is the terminal front end of a MailboxController. Every change to the
// controller's view schedules one coalesced redraw on the UI goroutine.
type App struct {
	*tview.Application
	Pages   *tview.Pages
	Config  *config.Config
	Keys    config.KeyBindings
	account string

	ctrl   *services.MailboxController
	ctx    context.Context
	cancel context.CancelFunc

	views    map[string]tview.Primitive
	list     *tview.Table
	text     *tview.TextView
	folders  *tview.TextView
	search   *tview.InputField
	debug    *tview.TextView
	compose  *CompositionPanel
	renderer *render.MessageRenderer
	colors   *config.ColorsConfig

	errorHandler *ErrorHandler
	logger       *log.Logger

	running atomic.Bool
	dirty   chan struct{}
	// enqueue hands a redraw to the event loop; it may block while the loop is busy
	enqueue func(func())

	// UI goroutine state
	rowIDs         []string
	openedID       string
	openedRendered string
	composeVisible bool
	searchVisible  bool
	debugVisible   bool
	currentFocus   string
	screenWidth    int
	screenHeight   int
}

// NewApp builds the UI around ctrl. account is shown in the status bar.
func NewApp(ctrl *services.MailboxController, cfg *config.Config, account string) *App {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	colors, err := cfg.Colors()
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		Application:  tview.NewApplication(),
		Pages:        tview.NewPages(),
		Config:       cfg,
		Keys:         cfg.Keys,
		account:      account,
		ctrl:         ctrl,
		ctx:          ctx,
		cancel:       cancel,
		views:        make(map[string]tview.Primitive),
		renderer:     render.NewMessageRenderer(),
		colors:       colors,
		dirty:        make(chan struct{}, 1),
		currentFocus: "list",
	}
	a.enqueue = func(f func()) { a.QueueUpdateDraw(f) }
	a.renderer.UpdateFromConfig(colors)
	a.initComponents()
	a.Pages.AddPage(pageMain, a.createMainLayout(), true, true)
	a.Pages.AddPage(pageCompose, a.createCompositionLayout(), true, false)
	a.Pages.AddPage(pageDebug, a.debug, true, false)
	a.SetRoot(a.Pages, true)
	a.bindKeys()

	a.errorHandler = NewErrorHandler(a.views["status"].(*tview.TextView), colors, nil)
	a.errorHandler.SetQueue(a.queueUpdateDraw)
	ctrl.SetNotifier(a.errorHandler)
	ctrl.OnChange(a.markDirty)
	if err != nil {
		a.errorHandler.ShowWarning(fmt.Sprintf("Theme not loaded: %v", err))
	}
	return a
}

// SetLogger sets the UI logger
func (a *App) SetLogger(logger *log.Logger) {
	a.logger = logger
	a.errorHandler.logger = logger
}

// IsRunning reports whether the event loop is running
func (a *App) IsRunning() bool {
	return a.running.Load()
}

// Run mounts the controller, runs the event loop and unmounts on exit
func (a *App) Run() error {
	if err := a.ctrl.Mount(a.ctx); err != nil {
		return fmt.Errorf("mount mailbox: %w", err)
	}
	defer a.ctrl.Unmount()
	defer a.errorHandler.Stop()

	a.refresh()
	a.SetBeforeDrawFunc(a.handleResize)
	a.running.Store(true)
	go a.refreshLoop()

	err := a.Application.Run()
	a.running.Store(false)
	a.cancel()
	return err
}

// markDirty schedules a redraw; it never blocks the caller
func (a *App) markDirty() {
	select {
	case a.dirty <- struct{}{}:
	default:
	}
}

// refreshLoop turns dirty marks into redraws until the app context ends.
// Run cancels the context once the event loop has stopped, so the loop never
// stays parked on a hand-off nobody will take.
func (a *App) refreshLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.dirty:
			if !a.IsRunning() {
				return
			}
			if !a.handOff(a.refresh) {
				return
			}
		}
	}
}

// handOff queues f and waits until the event loop took it or the app
// context ended. It reports whether f was queued.
func (a *App) handOff(f func()) bool {
	queued := make(chan struct{})
	go func() {
		defer close(queued)
		a.enqueue(f)
	}()
	select {
	case <-queued:
		return true
	case <-a.ctx.Done():
		return false
	}
}

// queueUpdateDraw runs f on the UI goroutine while the event loop runs and
// inline otherwise
func (a *App) queueUpdateDraw(f func()) {
	if !a.IsRunning() {
		f()
		return
	}
	go a.handOff(f)
}

// handleResize re-renders rows when the terminal size changes
func (a *App) handleResize(screen tcell.Screen) bool {
	w, h := screen.Size()
	if w != a.screenWidth || h != a.screenHeight {
		a.screenWidth, a.screenHeight = w, h
		a.refresh()
	}
	return false
}

func (a *App) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
