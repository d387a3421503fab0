package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
)

// ChangeFeedListener keeps a live subscription to the store. Every emission
// is authoritative: it is reconciled for the active folder and replaces the
// canonical list unconditionally.
type ChangeFeedListener struct {
	store MailboxStore
	state *CanonicalState

	mu           sync.Mutex
	session      uint64
	sub          Subscription
	activitySub  Subscription
	identity     IdentityFilter
	folder       mailbox.Folder
	connected    bool
	lastActivity time.Time
	lastBatch    []mailbox.Message
	hasBatch     bool
	emissions    int
	lastErr      error

	onEmission func()
	onCommit   func(folder mailbox.Folder, msgs []mailbox.Message)
	onError    func(error)

	logger *log.Logger
}

// NewChangeFeedListener creates a listener that is not subscribed yet
func NewChangeFeedListener(store MailboxStore, state *CanonicalState) *ChangeFeedListener {
	return &ChangeFeedListener{store: store, state: state}
}

// SetLogger sets the logger for debug output
func (l *ChangeFeedListener) SetLogger(logger *log.Logger) {
	l.logger = logger
}

// OnEmission registers a callback run for each accepted emission before it
// is committed
func (l *ChangeFeedListener) OnEmission(fn func()) {
	l.mu.Lock()
	l.onEmission = fn
	l.mu.Unlock()
}

// OnCommit registers a callback run after each emission has been committed
func (l *ChangeFeedListener) OnCommit(fn func(folder mailbox.Folder, msgs []mailbox.Message)) {
	l.mu.Lock()
	l.onCommit = fn
	l.mu.Unlock()
}

// OnError registers a callback run when the subscription reports an error
func (l *ChangeFeedListener) OnError(fn func(error)) {
	l.mu.Lock()
	l.onError = fn
	l.mu.Unlock()
}

// Start subscribes for identity and reconciles emissions for folder. A
// running subscription is cancelled first.
func (l *ChangeFeedListener) Start(ctx context.Context, identity IdentityFilter, folder mailbox.Folder) error {
	l.Stop()

	l.mu.Lock()
	l.session++
	session := l.session
	l.identity = identity
	l.folder = folder
	l.mu.Unlock()

	sink := FeedSink{
		OnSnapshot: func(batch []mailbox.Message) { l.handleSnapshot(session, batch) },
		OnError:    func(err error) { l.handleError(session, err) },
	}
	sub, err := l.store.Subscribe(ctx, identity, sink)
	if err != nil {
		l.handleError(session, err)
		return fmt.Errorf("subscribe to %s: %w", identity.Account, err)
	}

	var activitySub Subscription
	if as, ok := l.store.(ActivityStore); ok {
		activitySub, err = as.SubscribeActivity(ctx, identity, func(t time.Time) { l.handleActivity(session, t) })
		if err != nil {
			l.logf("feed: activity channel unavailable: %v", err)
			activitySub = nil
		}
	}

	l.mu.Lock()
	if l.session != session {
		// stopped while subscribing
		l.mu.Unlock()
		sub.Unsubscribe()
		if activitySub != nil {
			activitySub.Unsubscribe()
		}
		return nil
	}
	l.sub = sub
	l.activitySub = activitySub
	if l.lastErr == nil {
		l.connected = true
	}
	l.mu.Unlock()
	l.logf("feed: subscribed account=%s folder=%s", identity.Account, folder)
	return nil
}

// Restart switches to folder: the last emission is re-reconciled at once and
// the subscription is renewed for identity
func (l *ChangeFeedListener) Restart(ctx context.Context, identity IdentityFilter, folder mailbox.Folder) error {
	l.Stop()
	l.mu.Lock()
	batch, ok := l.lastBatch, l.hasBatch
	l.mu.Unlock()
	if ok {
		l.commit(folder, batch, nil)
	}
	return l.Start(ctx, identity, folder)
}

// Stop cancels the subscription. Emissions from it are ignored afterwards.
func (l *ChangeFeedListener) Stop() {
	l.mu.Lock()
	l.session++
	sub, activitySub := l.sub, l.activitySub
	l.sub, l.activitySub = nil, nil
	l.connected = false
	l.lastErr = nil
	l.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if activitySub != nil {
		activitySub.Unsubscribe()
	}
}

// Connected reports whether the subscription is healthy
func (l *ChangeFeedListener) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// LastActivity returns the time of the last activity signal
func (l *ChangeFeedListener) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastActivity
}

// LastBatch returns the last raw emission
func (l *ChangeFeedListener) LastBatch() ([]mailbox.Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]mailbox.Message(nil), l.lastBatch...), l.hasBatch
}

// Emissions returns how many emissions were committed
func (l *ChangeFeedListener) Emissions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.emissions
}

// LastError returns the last subscription error
func (l *ChangeFeedListener) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

func (l *ChangeFeedListener) handleSnapshot(session uint64, batch []mailbox.Message) {
	l.mu.Lock()
	if session != l.session {
		l.mu.Unlock()
		return
	}
	l.lastBatch = append([]mailbox.Message(nil), batch...)
	l.hasBatch = true
	l.connected = true
	l.lastErr = nil
	l.emissions++
	folder := l.folder
	onEmission := l.onEmission
	l.mu.Unlock()

	if onEmission != nil {
		onEmission()
	}
	l.commit(folder, batch, func() bool { return l.current(session) })
}

// current reports whether session is still the live subscription
func (l *ChangeFeedListener) current(session uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return session == l.session
}

// commit reconciles batch for folder and replaces the canonical list. A non
// nil valid is checked atomically with the write.
func (l *ChangeFeedListener) commit(folder mailbox.Folder, batch []mailbox.Message, valid func() bool) {
	reconciled := mailbox.Reconcile(batch, folder)
	var gen Generation
	if valid == nil {
		gen = l.state.Replace(reconciled)
	} else {
		var ok bool
		if gen, ok = l.state.ReplaceIf(valid, reconciled); !ok {
			l.logf("feed: dropped emission from a superseded subscription (folder=%s)", folder)
			return
		}
	}
	l.logf("feed: emission gen=%d folder=%s messages=%d", gen, folder, len(reconciled))

	l.mu.Lock()
	onCommit := l.onCommit
	l.mu.Unlock()
	if onCommit != nil {
		onCommit(folder, reconciled)
	}
}

func (l *ChangeFeedListener) handleError(session uint64, err error) {
	l.mu.Lock()
	if session != l.session {
		l.mu.Unlock()
		return
	}
	l.connected = false
	l.lastErr = err
	onError := l.onError
	l.mu.Unlock()

	l.logf("feed: disconnected: %v", err)
	if onError != nil {
		onError(err)
	}
}

func (l *ChangeFeedListener) handleActivity(session uint64, t time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if session != l.session {
		return
	}
	if t.After(l.lastActivity) {
		l.lastActivity = t
	}
}

func (l *ChangeFeedListener) logf(format string, args ...any) {
	if l.logger != nil {
		l.logger.Printf(format, args...)
	}
}
