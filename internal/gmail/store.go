package gmail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/ajramos/mailsync/internal/services"
	"golang.org/x/sync/errgroup"
)

const defaultFeedInterval = 10 * time.Second

// CursorStore persists the History API cursor per account
type CursorStore interface {
	LoadCursor(ctx context.Context, account string) (uint64, error)
	SaveCursor(ctx context.Context, account string, historyID uint64) error
}

// StoreConfig tunes the Gmail store
type StoreConfig struct {
	Account      string
	MaxResults   int64
	FeedInterval time.Duration
	Workers      int
}

// folderQueries narrows the list call per folder; the reconciler applies the
// label predicates afterwards
var folderQueries = map[mailbox.Folder]Query{
	mailbox.FolderInbox:    {LabelIDs: []string{mailbox.LabelInbox}},
	mailbox.FolderSent:     {LabelIDs: []string{mailbox.LabelSent}},
	mailbox.FolderDrafts:   {LabelIDs: []string{mailbox.LabelDraft}},
	mailbox.FolderStarred:  {LabelIDs: []string{mailbox.LabelStarred}},
	mailbox.FolderTrash:    {LabelIDs: []string{mailbox.LabelTrash}, IncludeSpamTrash: true},
	mailbox.FolderSpam:     {LabelIDs: []string{mailbox.LabelSpam}, IncludeSpamTrash: true},
	mailbox.FolderArchived: {Q: "-in:inbox -in:sent -in:drafts -in:chat"},
}

// Store is the Gmail backed MailboxStore. The change feed polls the History
// API and pushes a fresh snapshot of every folder whenever it moves.
type Store struct {
	client  *Client
	cfg     StoreConfig
	cursors CursorStore
	logger  *log.Logger

	mu         sync.Mutex
	activity   map[uint64]func(time.Time)
	nextListen uint64
}

// NewStore creates a store over client
func NewStore(client *Client, cfg StoreConfig) *Store {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}
	if cfg.FeedInterval <= 0 {
		cfg.FeedInterval = defaultFeedInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Store{client: client, cfg: cfg, activity: make(map[uint64]func(time.Time))}
}

// SetLogger sets the logger for debug output
func (s *Store) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetCursorStore enables resuming change detection across restarts
func (s *Store) SetCursorStore(cursors CursorStore) {
	s.cursors = cursors
}

// FetchMessages lists and loads the folder's most recent messages. The store
// keeps no local copy, so every call goes to the API.
func (s *Store) FetchMessages(ctx context.Context, folder mailbox.Folder, forceRefresh bool) ([]mailbox.Message, error) {
	q, ok := folderQueries[folder]
	if !ok {
		return nil, fmt.Errorf("fetch folder %q: %w", folder, services.ErrInvalidInput)
	}
	q.MaxResults = s.cfg.MaxResults
	msgs, err := s.load(ctx, q)
	if err != nil {
		return nil, err
	}
	return mailbox.Reconcile(msgs, folder), nil
}

// snapshot loads the most recent messages of every folder. Each folder is
// listed on its own so a quiet folder keeps its MaxResults window even when
// other folders are busier; ids found in several folders are loaded once.
func (s *Store) snapshot(ctx context.Context) ([]mailbox.Message, error) {
	folders := mailbox.Folders()
	lists := make([][]string, len(folders))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, folder := range folders {
		q, ok := folderQueries[folder]
		if !ok {
			continue
		}
		q.MaxResults = s.cfg.MaxResults
		g.Go(func() error {
			ids, err := s.client.ListMessageIDs(gctx, q)
			if err != nil {
				return fmt.Errorf("snapshot %s: %w", folder, err)
			}
			lists[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var ids []string
	for _, list := range lists {
		for _, id := range list {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	raw, err := s.client.GetMessagesParallel(ctx, ids, s.cfg.Workers)
	if err != nil {
		return nil, err
	}
	return ToMessages(raw), nil
}

func (s *Store) load(ctx context.Context, q Query) ([]mailbox.Message, error) {
	ids, err := s.client.ListMessageIDs(ctx, q)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.GetMessagesParallel(ctx, ids, s.cfg.Workers)
	if err != nil {
		return nil, err
	}
	return ToMessages(raw), nil
}

// Subscribe starts the change feed for the authenticated account
func (s *Store) Subscribe(ctx context.Context, filter services.IdentityFilter, sink services.FeedSink) (services.Subscription, error) {
	if err := s.checkIdentity(filter); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.runFeed(ctx, sink)
	}()
	var once sync.Once
	return services.SubscriptionFunc(func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}), nil
}

// SubscribeActivity reports every observed history change
func (s *Store) SubscribeActivity(ctx context.Context, filter services.IdentityFilter, onActivity func(time.Time)) (services.Subscription, error) {
	if err := s.checkIdentity(filter); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.nextListen++
	id := s.nextListen
	s.activity[id] = onActivity
	s.mu.Unlock()
	return services.SubscriptionFunc(func() {
		s.mu.Lock()
		delete(s.activity, id)
		s.mu.Unlock()
	}), nil
}

func (s *Store) checkIdentity(filter services.IdentityFilter) error {
	if filter.Account != "" && s.cfg.Account != "" && filter.Account != s.cfg.Account {
		return fmt.Errorf("subscribe %s: %w", filter.Account, services.ErrForbidden)
	}
	return nil
}

func (s *Store) runFeed(ctx context.Context, sink services.FeedSink) {
	cursor := s.loadCursor(ctx)
	if cursor == 0 {
		cursor = s.currentHistoryID(ctx, sink)
	}
	s.emitSnapshot(ctx, sink)

	ticker := time.NewTicker(s.cfg.FeedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if cursor == 0 {
			if cursor = s.currentHistoryID(ctx, sink); cursor != 0 {
				s.emitSnapshot(ctx, sink)
			}
			continue
		}

		latest, changed, err := s.client.History(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, services.ErrNotFound) {
				// cursor too old; start over from a full snapshot
				s.logf("gmail: history cursor %d expired", cursor)
				cursor = 0
				continue
			}
			reportError(sink, err)
			continue
		}
		if latest != cursor {
			cursor = latest
			s.saveCursor(ctx, cursor)
			s.notifyActivity(time.Now())
		}
		if changed {
			s.emitSnapshot(ctx, sink)
		}
	}
}

func (s *Store) emitSnapshot(ctx context.Context, sink services.FeedSink) {
	msgs, err := s.snapshot(ctx)
	if err != nil {
		if ctx.Err() == nil {
			reportError(sink, err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	if sink.OnSnapshot != nil {
		sink.OnSnapshot(msgs)
	}
}

func (s *Store) currentHistoryID(ctx context.Context, sink services.FeedSink) uint64 {
	profile, err := s.client.Profile(ctx)
	if err != nil {
		if ctx.Err() == nil {
			reportError(sink, err)
		}
		return 0
	}
	s.saveCursor(ctx, profile.HistoryId)
	return profile.HistoryId
}

func (s *Store) loadCursor(ctx context.Context) uint64 {
	if s.cursors == nil {
		return 0
	}
	id, err := s.cursors.LoadCursor(ctx, s.cfg.Account)
	if err != nil {
		if !errors.Is(err, services.ErrCacheMiss) {
			s.logf("gmail: load cursor: %v", err)
		}
		return 0
	}
	return id
}

func (s *Store) saveCursor(ctx context.Context, id uint64) {
	if s.cursors == nil || id == 0 {
		return
	}
	if err := s.cursors.SaveCursor(ctx, s.cfg.Account, id); err != nil {
		s.logf("gmail: save cursor: %v", err)
	}
}

func (s *Store) notifyActivity(at time.Time) {
	s.mu.Lock()
	fns := make([]func(time.Time), 0, len(s.activity))
	for _, fn := range s.activity {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(at)
	}
}

// SetFlag maps a flag onto Gmail labels or the trash endpoints
func (s *Store) SetFlag(ctx context.Context, messageID string, flag mailbox.Flag, value bool) error {
	var err error
	switch flag {
	case mailbox.FlagRead:
		err = s.toggle(ctx, messageID, value, nil, []string{mailbox.LabelUnread})
	case mailbox.FlagStarred:
		err = s.toggle(ctx, messageID, value, []string{mailbox.LabelStarred}, nil)
	case mailbox.FlagSpam:
		err = s.toggle(ctx, messageID, value, []string{mailbox.LabelSpam}, []string{mailbox.LabelInbox})
	case mailbox.FlagArchived:
		err = s.toggle(ctx, messageID, value, nil, []string{mailbox.LabelInbox})
	case mailbox.FlagTrash:
		if value {
			err = s.client.Trash(ctx, messageID)
		} else {
			err = s.client.Untrash(ctx, messageID)
		}
	default:
		return fmt.Errorf("set %s: %w", flag, services.ErrInvalidInput)
	}
	if errors.Is(err, services.ErrNotFound) {
		return fmt.Errorf("%w: %w", services.ErrMessageNotFound, err)
	}
	return err
}

// toggle adds on and removes off when value is true, and the reverse otherwise
func (s *Store) toggle(ctx context.Context, id string, value bool, on, off []string) error {
	if value {
		return s.client.Modify(ctx, id, on, off)
	}
	return s.client.Modify(ctx, id, off, on)
}

// SendMessage sends payload from the configured account
func (s *Store) SendMessage(ctx context.Context, payload services.ComposePayload) error {
	if len(payload.To) == 0 {
		return services.ErrMissingRecipients
	}
	raw := BuildRaw(s.cfg.Account, payload.To, payload.Cc, payload.Subject, payload.Body, payload.InReplyTo)
	id, err := s.client.Send(ctx, raw)
	if err != nil {
		return err
	}
	s.logf("gmail: sent %s", id)
	return nil
}

func reportError(sink services.FeedSink, err error) {
	if sink.OnError != nil {
		sink.OnError(err)
	}
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
