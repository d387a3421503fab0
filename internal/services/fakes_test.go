package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/stretchr/testify/mock"
)

// MockMailboxStore implements MailboxStore with testify expectations
type MockMailboxStore struct {
	mock.Mock
}

func (m *MockMailboxStore) FetchMessages(ctx context.Context, folder mailbox.Folder, forceRefresh bool) ([]mailbox.Message, error) {
	args := m.Called(ctx, folder, forceRefresh)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]mailbox.Message), args.Error(1)
}

func (m *MockMailboxStore) Subscribe(ctx context.Context, filter IdentityFilter, sink FeedSink) (Subscription, error) {
	args := m.Called(ctx, filter, sink)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Subscription), args.Error(1)
}

func (m *MockMailboxStore) SetFlag(ctx context.Context, messageID string, flag mailbox.Flag, value bool) error {
	args := m.Called(ctx, messageID, flag, value)
	return args.Error(0)
}

func (m *MockMailboxStore) SendMessage(ctx context.Context, payload ComposePayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

type fetchCall struct {
	folder mailbox.Folder
	force  bool
}

type flagCall struct {
	id    string
	flag  mailbox.Flag
	value bool
}

// fakeStore is a scriptable MailboxStore whose feed is driven by the test
type fakeStore struct {
	mu           sync.Mutex
	fetchFn      func(ctx context.Context, folder mailbox.Folder, force bool) ([]mailbox.Message, error)
	setFlagFn    func(ctx context.Context, id string, flag mailbox.Flag, value bool) error
	sendErr      error
	subscribeErr error

	fetches       []fetchCall
	flags         []flagCall
	sent          []ComposePayload
	nextSink      int
	sinks         map[int]FeedSink
	subscriptions int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sinks: make(map[int]FeedSink)}
}

func (f *fakeStore) FetchMessages(ctx context.Context, folder mailbox.Folder, force bool) ([]mailbox.Message, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, fetchCall{folder: folder, force: force})
	fn := f.fetchFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(ctx, folder, force)
}

func (f *fakeStore) Subscribe(ctx context.Context, filter IdentityFilter, sink FeedSink) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.nextSink++
	id := f.nextSink
	f.sinks[id] = sink
	f.subscriptions++
	return SubscriptionFunc(func() {
		f.mu.Lock()
		delete(f.sinks, id)
		f.mu.Unlock()
	}), nil
}

func (f *fakeStore) SetFlag(ctx context.Context, id string, flag mailbox.Flag, value bool) error {
	f.mu.Lock()
	f.flags = append(f.flags, flagCall{id: id, flag: flag, value: value})
	fn := f.setFlagFn
	f.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn(ctx, id, flag, value)
}

func (f *fakeStore) SendMessage(ctx context.Context, payload ComposePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeStore) activeSinks() []FeedSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FeedSink, 0, len(f.sinks))
	for _, s := range f.sinks {
		out = append(out, s)
	}
	return out
}

// emit delivers batch to every live subscription
func (f *fakeStore) emit(batch ...mailbox.Message) {
	for _, s := range f.activeSinks() {
		s.OnSnapshot(batch)
	}
}

// fail reports err on every live subscription
func (f *fakeStore) fail(err error) {
	for _, s := range f.activeSinks() {
		s.OnError(err)
	}
}

func (f *fakeStore) liveSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

func (f *fakeStore) fetchCalls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.fetches...)
}

func (f *fakeStore) flagCalls() []flagCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]flagCall(nil), f.flags...)
}

func (f *fakeStore) setFetch(fn func(ctx context.Context, folder mailbox.Folder, force bool) ([]mailbox.Message, error)) {
	f.mu.Lock()
	f.fetchFn = fn
	f.mu.Unlock()
}

func (f *fakeStore) setSetFlag(fn func(ctx context.Context, id string, flag mailbox.Flag, value bool) error) {
	f.mu.Lock()
	f.setFlagFn = fn
	f.mu.Unlock()
}

// activityStore adds the activity channel to fakeStore
type activityStore struct {
	*fakeStore
	mu        sync.Mutex
	callbacks []func(time.Time)
}

func (a *activityStore) SubscribeActivity(ctx context.Context, filter IdentityFilter, fn func(time.Time)) (Subscription, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
	return SubscriptionFunc(func() {}), nil
}

func (a *activityStore) ping(t time.Time) {
	a.mu.Lock()
	fns := append([]func(time.Time){}, a.callbacks...)
	a.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

// fakeCache is an in-memory SnapshotCache
type fakeCache struct {
	mu    sync.Mutex
	snaps map[string][]mailbox.Message
	saves int
}

func newFakeCache() *fakeCache {
	return &fakeCache{snaps: make(map[string][]mailbox.Message)}
}

func (c *fakeCache) LoadSnapshot(ctx context.Context, account string, folder mailbox.Folder) ([]mailbox.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs, ok := c.snaps[account+"/"+string(folder)]
	if !ok {
		return nil, ErrCacheMiss
	}
	return msgs, nil
}

func (c *fakeCache) SaveSnapshot(ctx context.Context, account string, folder mailbox.Folder, msgs []mailbox.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[account+"/"+string(folder)] = append([]mailbox.Message(nil), msgs...)
	c.saves++
	return nil
}

func (c *fakeCache) saveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

// recordingNotifier collects notices
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

type notice struct {
	level NoticeLevel
	text  string
}

func (r *recordingNotifier) Notify(level NoticeLevel, text string) {
	r.mu.Lock()
	r.notices = append(r.notices, notice{level, text})
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notice(nil), r.notices...)
}

func (r *recordingNotifier) last() (notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

var errBoom = errors.New("boom")

func inboxMsg(id string, internalDate string) mailbox.Message {
	return mailbox.Message{
		ID:        id,
		Timestamp: mailbox.Timestamp{InternalDate: internalDate},
		Labels:    mailbox.NewLabelSet(mailbox.LabelInbox, mailbox.LabelUnread),
		Subject:   "subject " + id,
	}
}
