package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
)

// PollerState is the lifecycle of a BootstrapPoller
type PollerState int

const (
	PollerIdle PollerState = iota
	PollerPolling
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerPolling:
		return "polling"
	case PollerStopped:
		return "stopped"
	default:
		return "idle"
	}
}

const (
	defaultPollInterval = 2 * time.Second
	defaultPollCeiling  = 30 * time.Second
)

// pollHandle owns one poll loop. cancel stops it, done is closed once the
// loop goroutine has returned.
type pollHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// BootstrapPoller fetches the active folder on a fixed interval until the
// first non-empty result or until the ceiling elapses, whichever comes first.
// It only shortens the gap before the change feed's first emission and never
// restarts once stopped.
type BootstrapPoller struct {
	store    MailboxStore
	state    *CanonicalState
	interval time.Duration
	ceiling  time.Duration

	mu        sync.Mutex
	status    PollerState
	handle    *pollHandle
	deadline  time.Time
	fetches   int
	lastErr   error
	onFailure func(error)
	onStop    func()

	logger *log.Logger
}

// NewBootstrapPoller creates an idle poller. Non-positive durations use the defaults.
func NewBootstrapPoller(store MailboxStore, state *CanonicalState, interval, ceiling time.Duration) *BootstrapPoller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if ceiling <= 0 {
		ceiling = defaultPollCeiling
	}
	return &BootstrapPoller{store: store, state: state, interval: interval, ceiling: ceiling}
}

// SetLogger sets the logger for debug output
func (p *BootstrapPoller) SetLogger(logger *log.Logger) {
	p.logger = logger
}

// OnFailure registers a callback for failed fetches
func (p *BootstrapPoller) OnFailure(fn func(error)) {
	p.mu.Lock()
	p.onFailure = fn
	p.mu.Unlock()
}

// OnStop registers a callback run once the poller reaches PollerStopped
func (p *BootstrapPoller) OnStop(fn func()) {
	p.mu.Lock()
	p.onStop = fn
	p.mu.Unlock()
}

// Start enters Polling for folder if the poller is idle and the canonical
// list is empty. It reports whether a loop was started.
func (p *BootstrapPoller) Start(ctx context.Context, folder mailbox.Folder) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PollerIdle {
		return false
	}
	if p.state.Len() > 0 {
		p.status = PollerStopped
		p.logf("poller: canonical list not empty, skipping")
		return false
	}
	p.status = PollerPolling
	p.deadline = time.Now().Add(p.ceiling)
	p.spawnLocked(ctx, folder)
	return true
}

// Restart cancels a running loop and starts a new one for folder. The new
// loop keeps the ceiling counted from Start. It does nothing unless the
// poller is Polling.
func (p *BootstrapPoller) Restart(ctx context.Context, folder mailbox.Folder) bool {
	p.mu.Lock()
	if p.status != PollerPolling {
		p.mu.Unlock()
		return false
	}
	old := p.handle
	p.handle = nil
	p.mu.Unlock()

	if old != nil {
		old.cancel()
		<-old.done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PollerPolling {
		return false
	}
	p.spawnLocked(ctx, folder)
	return true
}

// Stop moves the poller to Stopped and cancels its loop without waiting
func (p *BootstrapPoller) Stop() {
	p.mu.Lock()
	h := p.handle
	wasStopped := p.status == PollerStopped
	p.status = PollerStopped
	onStop := p.onStop
	p.mu.Unlock()
	if h != nil {
		h.cancel()
	}
	if !wasStopped && onStop != nil {
		onStop()
	}
}

// Cancel stops the poller and waits until its loop goroutine has exited
func (p *BootstrapPoller) Cancel() {
	p.Stop()
	p.mu.Lock()
	h := p.handle
	p.handle = nil
	p.mu.Unlock()
	if h != nil {
		<-h.done
	}
}

// State returns the current lifecycle state
func (p *BootstrapPoller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Fetches returns how many fetches were issued
func (p *BootstrapPoller) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// LastError returns the error of the most recent failed fetch
func (p *BootstrapPoller) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *BootstrapPoller) spawnLocked(parent context.Context, folder mailbox.Folder) {
	ctx, cancel := context.WithDeadline(parent, p.deadline)
	h := &pollHandle{cancel: cancel, done: make(chan struct{})}
	p.handle = h
	p.logf("poller: polling %s every %s until %s", folder, p.interval, p.deadline.Format(time.TimeOnly))
	go p.run(ctx, h, folder)
}

func (p *BootstrapPoller) run(ctx context.Context, h *pollHandle, folder mailbox.Folder) {
	defer close(h.done)
	defer h.cancel()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if p.fetch(ctx, folder) {
			p.finish(h, "received messages")
			return
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				p.finish(h, "ceiling reached")
			}
			return
		case <-ticker.C:
		}
	}
}

// fetch issues one request and commits the result. It reports whether the
// result was non-empty.
func (p *BootstrapPoller) fetch(ctx context.Context, folder mailbox.Folder) bool {
	if ctx.Err() != nil {
		return false
	}
	p.mu.Lock()
	p.fetches++
	p.mu.Unlock()

	gen := p.state.Issue()
	msgs, err := p.store.FetchMessages(ctx, folder, false)
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		p.mu.Lock()
		p.lastErr = err
		onFailure := p.onFailure
		p.mu.Unlock()
		p.logf("poller: fetch %s failed (retryable=%t): %v", folder, IsRetryableError(err), err)
		if onFailure != nil {
			onFailure(err)
		}
		return false
	}

	reconciled := mailbox.Reconcile(msgs, folder)
	if !p.state.Commit(gen, reconciled) {
		p.logf("poller: result for %s superseded", folder)
	}
	return len(reconciled) > 0
}

func (p *BootstrapPoller) finish(h *pollHandle, reason string) {
	p.mu.Lock()
	if p.handle != h || p.status != PollerPolling {
		p.mu.Unlock()
		return
	}
	p.status = PollerStopped
	onStop := p.onStop
	p.mu.Unlock()
	p.logf("poller: stopped, %s", reason)
	if onStop != nil {
		onStop()
	}
}

func (p *BootstrapPoller) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}
