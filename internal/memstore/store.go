// Package memstore is an in-memory MailboxStore. Every change is committed
// in order and pushed to live subscriptions, which makes it usable both as a
// demo backend and as a deterministic store in tests.
package memstore

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/ajramos/mailsync/internal/services"
	"github.com/google/uuid"
)

// Store keeps messages in memory in insertion order
type Store struct {
	mu       sync.Mutex
	account  string
	messages map[string]mailbox.Message
	order    []string
	subs     map[uint64]*subscriber
	nextSub  uint64
	commits  int

	latency      time.Duration
	fetchErr     error
	subscribeErr error
	flagErrs     map[string]error

	now    func() time.Time
	logger *log.Logger
}

// New creates an empty store owned by account
func New(account string) *Store {
	return &Store{
		account:  account,
		messages: make(map[string]mailbox.Message),
		subs:     make(map[uint64]*subscriber),
		flagErrs: make(map[string]error),
		now:      time.Now,
	}
}

// SetLogger sets the logger for debug output
func (s *Store) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetLatency delays every remote style call by d
func (s *Store) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// FailFlag makes SetFlag on id fail with err until cleared with a nil err
func (s *Store) FailFlag(id string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.flagErrs, id)
		return
	}
	s.flagErrs[id] = err
}

// FailFetch makes FetchMessages fail with err (nil clears)
func (s *Store) FailFetch(err error) {
	s.mu.Lock()
	s.fetchErr = err
	s.mu.Unlock()
}

// FailSubscribe makes Subscribe fail with err (nil clears)
func (s *Store) FailSubscribe(err error) {
	s.mu.Lock()
	s.subscribeErr = err
	s.mu.Unlock()
}

// Load adds or replaces msgs and emits one snapshot
func (s *Store) Load(msgs []mailbox.Message) {
	s.mu.Lock()
	for _, m := range msgs {
		s.putLocked(m)
	}
	s.commitLocked()
	s.mu.Unlock()
	s.logf("memstore: loaded %d messages", len(msgs))
}

// LoadJSON normalizes a JSON array of raw message documents and loads them
func (s *Store) LoadJSON(data []byte) error {
	msgs, err := mailbox.NormalizeJSON(data)
	if err != nil {
		return err
	}
	s.Load(msgs)
	return nil
}

// LoadFile loads a JSON fixture from path
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	if err := s.LoadJSON(data); err != nil {
		return fmt.Errorf("load fixture %s: %w", path, err)
	}
	return nil
}

// Messages returns every stored message in insertion order
func (s *Store) Messages() []mailbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Commits returns how many changes were committed
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Disconnect reports err on every live subscription
func (s *Store) Disconnect(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.kind == feedSubscriber {
			sub.push(event{err: err})
		}
	}
}

// FetchMessages returns the folder's messages
func (s *Store) FetchMessages(ctx context.Context, folder mailbox.Folder, forceRefresh bool) ([]mailbox.Message, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return mailbox.Reconcile(s.snapshotLocked(), folder), nil
}

// Subscribe pushes the full mailbox of the identity on subscribe and after
// every commit. Delivery happens on a dedicated goroutine per subscription.
func (s *Store) Subscribe(ctx context.Context, filter services.IdentityFilter, sink services.FeedSink) (services.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	if filter.Account != "" && filter.Account != s.account {
		return nil, fmt.Errorf("subscribe %s: %w", filter.Account, services.ErrForbidden)
	}
	sub := s.addLocked(ctx, feedSubscriber, func(ev event) {
		if ev.err != nil {
			if sink.OnError != nil {
				sink.OnError(ev.err)
			}
			return
		}
		if sink.OnSnapshot != nil {
			sink.OnSnapshot(ev.batch)
		}
	})
	sub.push(event{batch: s.snapshotLocked()})
	return sub, nil
}

// SubscribeActivity calls onActivity with the commit time of every change
func (s *Store) SubscribeActivity(ctx context.Context, filter services.IdentityFilter, onActivity func(time.Time)) (services.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ctx, activitySubscriber, func(ev event) {
		onActivity(ev.at)
	}), nil
}

// SetFlag applies flag to message id and commits
func (s *Store) SetFlag(ctx context.Context, messageID string, flag mailbox.Flag, value bool) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.flagErrs[messageID]; ok {
		return err
	}
	m, ok := s.messages[messageID]
	if !ok {
		return fmt.Errorf("set flag on %s: %w", messageID, services.ErrMessageNotFound)
	}
	s.messages[messageID] = mailbox.ApplyFlag(m, flag, value)
	s.commitLocked()
	s.logf("memstore: %s %s=%t", messageID, flag, value)
	return nil
}

// SendMessage stores payload as a sent message and commits
func (s *Store) SendMessage(ctx context.Context, payload services.ComposePayload) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if len(payload.To) == 0 {
		return services.ErrMissingRecipients
	}
	m := mailbox.Message{
		ID:        uuid.New().String(),
		Timestamp: mailbox.Timestamp{InternalDate: strconv.FormatInt(s.now().UnixMilli(), 10)},
		Labels:    mailbox.NewLabelSet(mailbox.LabelSent),
		Read:      true,
		Subject:   payload.Subject,
		From:      mailbox.Address{Email: s.account},
		Body:      payload.Body,
		Snippet:   snippet(payload.Body),
	}
	for _, to := range append(append([]string(nil), payload.To...), payload.Cc...) {
		if a := mailbox.ParseAddress(to); !a.IsZero() {
			m.To = append(m.To, a)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(m)
	s.commitLocked()
	s.logf("memstore: sent %s", m.ID)
	return nil
}

func (s *Store) putLocked(m mailbox.Message) {
	if _, exists := s.messages[m.ID]; !exists {
		s.order = append(s.order, m.ID)
	}
	s.messages[m.ID] = m.Clone()
}

func (s *Store) snapshotLocked() []mailbox.Message {
	out := make([]mailbox.Message, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.messages[id].Clone())
	}
	return out
}

// commitLocked pushes the new state to every subscription in commit order
func (s *Store) commitLocked() {
	s.commits++
	at := s.now()
	for _, sub := range s.subs {
		switch sub.kind {
		case feedSubscriber:
			sub.push(event{batch: s.snapshotLocked()})
		case activitySubscriber:
			sub.push(event{at: at})
		}
	}
}

func (s *Store) addLocked(ctx context.Context, kind subscriberKind, deliver func(event)) *subscriber {
	s.nextSub++
	id := s.nextSub
	sub := newSubscriber(kind, deliver)
	sub.detach = func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	s.subs[id] = sub
	sub.stopOnDone = context.AfterFunc(ctx, sub.close)
	go sub.run()
	return sub
}

func (s *Store) wait(ctx context.Context) error {
	s.mu.Lock()
	d := s.latency
	s.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func snippet(body string) string {
	const max = 120
	r := []rune(body)
	if len(r) > max {
		return string(r[:max])
	}
	return body
}
