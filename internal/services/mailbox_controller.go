package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
)

const defaultSelectionGrace = 500 * time.Millisecond

// ControllerConfig tunes a MailboxController
type ControllerConfig struct {
	Identity            IdentityFilter
	Folder              mailbox.Folder
	PollInterval        time.Duration
	PollCeiling         time.Duration
	SelectionGrace      time.Duration
	MutationConcurrency int
}

// ComposeState is the compose modal
type ComposeState struct {
	Open    bool
	Draft   ComposePayload
	Sending bool
	Err     error
}

// MailboxView is an immutable snapshot of everything the UI renders
type MailboxView struct {
	Folder       mailbox.Folder
	Query        string
	Messages     []mailbox.Message
	Total        int
	Selected     []string
	Opened       *mailbox.Message
	Compose      ComposeState
	Connected    bool
	LastActivity time.Time
	Poller       PollerState
	Loading      bool
	LoadError    error
	Pending      int
}

// IsSelected reports whether id is part of the selection
func (v MailboxView) IsSelected(id string) bool {
	i := sort.SearchStrings(v.Selected, id)
	return i < len(v.Selected) && v.Selected[i] == id
}

// DebugSnapshot exposes controller internals for tests and diagnostics
type DebugSnapshot struct {
	Folder        mailbox.Folder
	Latest        Generation
	Committed     Generation
	Canonical     []mailbox.Message
	Deltas        []Delta
	InFlight      []string
	Poller        PollerState
	PollFetches   int
	FeedEmissions int
	Connected     bool
}

// MailboxController owns the local mailbox state: canonical list, active
// folder, filter text, selection, opened message, compose modal and
// connection flags. It coordinates the bootstrap poller, the change feed and
// the mutation service.
type MailboxController struct {
	store     MailboxStore
	cfg       ControllerConfig
	state     *CanonicalState
	mutations *MutationServiceImpl
	feed      *ChangeFeedListener
	notifier  Notifier
	cache     SnapshotCache

	mu         sync.Mutex
	mounted    bool
	ctx        context.Context
	cancel     context.CancelFunc
	poller     *BootstrapPoller
	folder     mailbox.Folder
	query      string
	selection  map[string]struct{}
	opened     string
	compose    ComposeState
	loadErr    error
	graceTimer *time.Timer

	listenersMu sync.RWMutex
	listeners   []func()

	wg     sync.WaitGroup
	logger *log.Logger
}

// NewMailboxController wires the sync engine around store
func NewMailboxController(store MailboxStore, cfg ControllerConfig) *MailboxController {
	if cfg.Folder == "" {
		cfg.Folder = mailbox.FolderInbox
	}
	if cfg.SelectionGrace <= 0 {
		cfg.SelectionGrace = defaultSelectionGrace
	}
	state := NewCanonicalState()
	c := &MailboxController{
		store:     store,
		cfg:       cfg,
		state:     state,
		mutations: NewMutationService(store, state),
		feed:      NewChangeFeedListener(store, state),
		folder:    cfg.Folder,
		selection: make(map[string]struct{}),
	}
	c.mutations.SetConcurrency(cfg.MutationConcurrency)
	c.mutations.SetRefetch(func(ctx context.Context) {
		if err := c.Refresh(ctx); err != nil {
			c.logf("controller: refetch after failed trash: %v", err)
		}
	})
	c.feed.OnEmission(c.stopPolling)
	c.feed.OnCommit(c.handleFeedCommit)
	c.feed.OnError(c.handleFeedError)
	state.OnChange(c.changed)
	return c
}

// SetLogger sets the logger on the controller and every component it owns
func (c *MailboxController) SetLogger(logger *log.Logger) {
	c.logger = logger
	c.state.SetLogger(logger)
	c.mutations.SetLogger(logger)
	c.feed.SetLogger(logger)
}

// SetNotifier sets where user facing notices go
func (c *MailboxController) SetNotifier(n Notifier) {
	c.notifier = n
}

// SetCache enables the snapshot cache
func (c *MailboxController) SetCache(cache SnapshotCache) {
	c.cache = cache
}

// OnChange registers fn to run after any change to the view. fn runs on the
// goroutine that made the change, with no controller lock held.
func (c *MailboxController) OnChange(fn func()) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

func (c *MailboxController) changed() {
	c.listenersMu.RLock()
	fns := append([]func(){}, c.listeners...)
	c.listenersMu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// Mount starts the view: the cached snapshot is shown first, then the
// change feed and, while the list is still empty, the bootstrap poller.
func (c *MailboxController) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted {
		c.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.ctx, c.cancel = ctx, cancel
	c.mounted = true
	c.loadErr = nil
	folder := c.folder
	poller := NewBootstrapPoller(c.store, c.state, c.cfg.PollInterval, c.cfg.PollCeiling)
	poller.SetLogger(c.logger)
	poller.OnFailure(c.recordLoadError)
	poller.OnStop(c.changed)
	c.poller = poller
	c.mu.Unlock()

	c.logf("controller: mount account=%s folder=%s", c.cfg.Identity.Account, folder)
	c.loadCache(ctx, folder)

	if err := c.feed.Start(ctx, c.cfg.Identity, folder); err != nil {
		c.logf("controller: %v", err)
	}
	poller.Start(ctx, folder)
	c.changed()
	return nil
}

// Unmount cancels the poller, the feed and pending timers, then waits for
// in-flight mutations and sends to settle
func (c *MailboxController) Unmount() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	cancel, poller := c.cancel, c.poller
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	c.mu.Unlock()

	cancel()
	poller.Cancel()
	c.feed.Stop()
	c.wg.Wait()
	c.logf("controller: unmounted")
}

// Wait blocks until background mutations and sends have settled
func (c *MailboxController) Wait() {
	c.wg.Wait()
}

// SwitchFolder changes the active folder. Selection and the opened message
// are cleared, the last feed emission is re-reconciled for the new folder and
// the subscription is renewed.
func (c *MailboxController) SwitchFolder(folder mailbox.Folder) error {
	c.mu.Lock()
	if folder == c.folder {
		c.mu.Unlock()
		return nil
	}
	c.folder = folder
	c.selection = make(map[string]struct{})
	c.opened = ""
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
	mounted, ctx, poller := c.mounted, c.ctx, c.poller
	c.mu.Unlock()

	c.logf("controller: switch folder to %s", folder)
	if !mounted {
		c.changed()
		return nil
	}

	if _, ok := c.feed.LastBatch(); !ok {
		if !c.loadCache(ctx, folder) {
			c.state.Replace(nil)
		}
	}
	err := c.feed.Restart(ctx, c.cfg.Identity, folder)
	poller.Restart(ctx, folder)
	c.changed()
	return err
}

// Search sets the filter text
func (c *MailboxController) Search(query string) {
	c.mu.Lock()
	c.query = query
	c.mu.Unlock()
	c.changed()
}

// Select adds ids to the selection
func (c *MailboxController) Select(ids ...string) {
	c.mu.Lock()
	for _, id := range ids {
		if id != "" {
			c.selection[id] = struct{}{}
		}
	}
	c.mu.Unlock()
	c.changed()
}

// ToggleSelect flips the selection state of id
func (c *MailboxController) ToggleSelect(id string) {
	c.mu.Lock()
	if _, ok := c.selection[id]; ok {
		delete(c.selection, id)
	} else if id != "" {
		c.selection[id] = struct{}{}
	}
	c.mu.Unlock()
	c.changed()
}

// SelectAll selects every visible message
func (c *MailboxController) SelectAll() {
	visible := c.View().Messages
	c.mu.Lock()
	for _, m := range visible {
		c.selection[m.ID] = struct{}{}
	}
	c.mu.Unlock()
	c.changed()
}

// ClearSelection empties the selection
func (c *MailboxController) ClearSelection() {
	c.mu.Lock()
	c.selection = make(map[string]struct{})
	c.mu.Unlock()
	c.changed()
}

// Open shows message id in the detail view and marks it read
func (c *MailboxController) Open(id string) error {
	m, ok := c.state.Lookup(id)
	if !ok {
		return fmt.Errorf("open %s: %w", id, ErrMessageNotFound)
	}
	c.mu.Lock()
	c.opened = id
	c.mu.Unlock()
	c.changed()

	if !m.Read && !c.mutations.InFlight(id) {
		if err := c.mutate(MutationMarkRead, []string{id}, nil, true); err != nil {
			c.logf("controller: mark read on open %s: %v", id, err)
		}
	}
	return nil
}

// Close hides the detail view
func (c *MailboxController) Close() {
	c.mu.Lock()
	c.opened = ""
	c.mu.Unlock()
	c.changed()
}

// OpenCompose shows the compose modal with draft
func (c *MailboxController) OpenCompose(draft ComposePayload) {
	c.mu.Lock()
	c.compose = ComposeState{Open: true, Draft: draft}
	c.mu.Unlock()
	c.changed()
}

// CloseCompose discards the compose modal
func (c *MailboxController) CloseCompose() {
	c.mu.Lock()
	c.compose = ComposeState{}
	c.mu.Unlock()
	c.changed()
}

// SendCompose sends payload in the background. The modal closes on success
// and stays open with the error on failure.
func (c *MailboxController) SendCompose(payload ComposePayload) error {
	if len(payload.To) == 0 {
		return ErrMissingRecipients
	}
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	ctx := context.WithoutCancel(c.ctx)
	c.compose = ComposeState{Open: true, Draft: payload, Sending: true}
	c.wg.Add(1)
	c.mu.Unlock()
	c.changed()

	go func() {
		defer c.wg.Done()
		err := c.mutations.Send(ctx, payload)
		c.mu.Lock()
		if err != nil {
			c.compose = ComposeState{Open: true, Draft: payload, Err: err}
		} else {
			c.compose = ComposeState{}
		}
		c.mu.Unlock()
		if err != nil {
			c.notify(NoticeError, fmt.Sprintf("Could not send message: %v", err))
		} else {
			c.notify(NoticeSuccess, "Message sent")
		}
		c.changed()
	}()
	return nil
}

// Refresh forces a fetch of the active folder and commits it
func (c *MailboxController) Refresh(ctx context.Context) error {
	c.mu.Lock()
	folder := c.folder
	c.mu.Unlock()

	gen := c.state.Issue()
	msgs, err := c.store.FetchMessages(ctx, folder, true)
	if err != nil {
		c.notify(NoticeWarning, fmt.Sprintf("Refresh failed: %v", err))
		return fmt.Errorf("refresh %s: %w", folder, err)
	}
	c.state.Commit(gen, mailbox.Reconcile(msgs, folder))
	return nil
}

// MarkRead marks ids (or the selection, or the opened message) read
func (c *MailboxController) MarkRead(ids ...string) error {
	return c.mutate(MutationMarkRead, ids, nil, false)
}

// MarkUnread marks ids (or the selection, or the opened message) unread
func (c *MailboxController) MarkUnread(ids ...string) error {
	v := false
	return c.mutate(MutationMarkRead, ids, &v, false)
}

// ToggleStar flips the star of a single message
func (c *MailboxController) ToggleStar(id string) error {
	var ids []string
	if id != "" {
		ids = []string{id}
	}
	return c.mutate(MutationStar, ids, nil, false)
}

// Archive archives ids (or the selection, or the opened message)
func (c *MailboxController) Archive(ids ...string) error {
	return c.mutate(MutationArchive, ids, nil, false)
}

// Trash moves ids (or the selection, or the opened message) to trash
func (c *MailboxController) Trash(ids ...string) error {
	return c.mutate(MutationTrash, ids, nil, false)
}

// Spam reports ids (or the selection, or the opened message) as spam
func (c *MailboxController) Spam(ids ...string) error {
	return c.mutate(MutationSpam, ids, nil, false)
}

func (c *MailboxController) mutate(kind MutationKind, ids []string, value *bool, quiet bool) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	if len(ids) == 0 {
		ids = sortedKeys(c.selection)
	}
	if len(ids) == 0 && c.opened != "" {
		ids = []string{c.opened}
	}
	if len(ids) == 0 {
		c.mu.Unlock()
		return ErrNothingSelected
	}
	// user actions outlive Unmount, which waits for them instead of
	// cancelling the remote calls
	ctx := context.WithoutCancel(c.ctx)
	c.wg.Add(1)
	c.mu.Unlock()

	p, err := c.mutations.Begin(ctx, MutationRequest{Kind: kind, IDs: ids, Value: value})
	if err != nil {
		c.wg.Done()
		if !quiet {
			c.notify(NoticeWarning, describeRejection(kind, err))
		}
		return err
	}

	if flag, _ := flagFor(kind); flag.Removes() {
		c.mu.Lock()
		for _, id := range ids {
			if c.opened == id {
				c.opened = ""
			}
		}
		c.mu.Unlock()
		c.changed()
	}

	go func() {
		defer c.wg.Done()
		out := p.Dispatch(ctx)
		c.handleOutcome(out, quiet)
	}()
	return nil
}

func (c *MailboxController) handleOutcome(out *MutationOutcome, quiet bool) {
	switch out.Status {
	case OutcomeSucceeded:
		if !quiet {
			c.notify(NoticeSuccess, describeOutcome(out))
		}
		if out.Total() > 1 {
			c.scheduleSelectionClear()
		}
	case OutcomePartial:
		c.notify(NoticeWarning, describeOutcome(out))
	case OutcomeFailed:
		c.notify(NoticeError, describeOutcome(out))
	}
	c.changed()
}

// scheduleSelectionClear clears the selection after the grace period so the
// feed can deliver the corrected list before the checkboxes reset
func (c *MailboxController) scheduleSelectionClear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted {
		return
	}
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(c.cfg.SelectionGrace, func() {
		c.mu.Lock()
		if c.graceTimer != t {
			c.mu.Unlock()
			return
		}
		c.graceTimer = nil
		c.selection = make(map[string]struct{})
		c.mu.Unlock()
		c.changed()
	})
	c.graceTimer = t
}

// View returns the rendered state: filter(applyDeltas(canonical, deltas))
func (c *MailboxController) View() MailboxView {
	c.mu.Lock()
	v := MailboxView{
		Folder:   c.folder,
		Query:    c.query,
		Selected: sortedKeys(c.selection),
		Compose:  c.compose,
	}
	opened, poller, loadErr := c.opened, c.poller, c.loadErr
	c.mu.Unlock()

	rendered := c.state.Rendered()
	v.Total = len(rendered)
	v.Messages = mailbox.Filter(rendered, v.Query)
	if opened != "" {
		if i := mailbox.IndexOf(rendered, opened); i >= 0 {
			m := rendered[i]
			v.Opened = &m
		}
	}
	v.Connected = c.feed.Connected()
	v.LastActivity = c.feed.LastActivity()
	if poller != nil {
		v.Poller = poller.State()
	}
	committed := c.state.Committed()
	v.Loading = !committed && v.Poller == PollerPolling
	if !committed && v.Poller != PollerPolling && loadErr != nil {
		v.LoadError = loadErr
	}
	v.Pending = len(c.state.Deltas())
	return v
}

// Debug returns a snapshot of the engine internals
func (c *MailboxController) Debug() DebugSnapshot {
	c.mu.Lock()
	folder, poller := c.folder, c.poller
	c.mu.Unlock()

	latest, committed := c.state.Generations()
	d := DebugSnapshot{
		Folder:        folder,
		Latest:        latest,
		Committed:     committed,
		Canonical:     c.state.Canonical(),
		Deltas:        c.state.Deltas(),
		InFlight:      c.mutations.InFlightIDs(),
		FeedEmissions: c.feed.Emissions(),
		Connected:     c.feed.Connected(),
	}
	sort.Strings(d.InFlight)
	if poller != nil {
		d.Poller = poller.State()
		d.PollFetches = poller.Fetches()
	}
	return d
}

// loadCache commits the cached snapshot for folder. It reports whether one was found.
func (c *MailboxController) loadCache(ctx context.Context, folder mailbox.Folder) bool {
	if c.cache == nil {
		return false
	}
	gen := c.state.Issue()
	msgs, err := c.cache.LoadSnapshot(ctx, c.cfg.Identity.Account, folder)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logf("controller: load cached %s: %v", folder, err)
		}
		return false
	}
	if !c.state.Commit(gen, mailbox.Reconcile(msgs, folder)) {
		return false
	}
	c.logf("controller: showing %d cached messages for %s", len(msgs), folder)
	return true
}

// stopPolling ends bootstrap polling once the feed delivers. It runs before
// the emission is committed so no poll issued afterwards can write.
func (c *MailboxController) stopPolling() {
	c.mu.Lock()
	poller := c.poller
	c.mu.Unlock()
	if poller != nil {
		poller.Stop()
	}
}

func (c *MailboxController) handleFeedCommit(folder mailbox.Folder, msgs []mailbox.Message) {
	c.mu.Lock()
	ctx, mounted := c.ctx, c.mounted
	c.mu.Unlock()
	if c.cache == nil || !mounted {
		return
	}
	if err := c.cache.SaveSnapshot(ctx, c.cfg.Identity.Account, folder, msgs); err != nil {
		c.logf("controller: save snapshot %s: %v", folder, err)
	}
}

func (c *MailboxController) handleFeedError(err error) {
	c.recordLoadError(err)
	if IsPermanentError(err) {
		c.notify(NoticeError, fmt.Sprintf("Live updates stopped: %v", err))
	} else {
		c.notify(NoticeWarning, fmt.Sprintf("Live updates disconnected: %v", err))
	}
	c.changed()
}

func (c *MailboxController) recordLoadError(err error) {
	c.mu.Lock()
	c.loadErr = err
	c.mu.Unlock()
}

func (c *MailboxController) notify(level NoticeLevel, msg string) {
	c.logf("notice [%s]: %s", level, msg)
	if c.notifier != nil {
		c.notifier.Notify(level, msg)
	}
}

func (c *MailboxController) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func describeRejection(kind MutationKind, err error) string {
	switch {
	case errors.Is(err, ErrMutationInFlight):
		return "Please wait, a previous action on this message is still pending"
	case errors.Is(err, ErrSingleTargetOnly):
		return "Star one message at a time"
	default:
		return fmt.Sprintf("Could not %s: %v", kind, err)
	}
}

func describeOutcome(out *MutationOutcome) string {
	verb := map[MutationKind]string{
		MutationMarkRead: "Marked as read",
		MutationStar:     "Starred",
		MutationSpam:     "Reported as spam",
		MutationArchive:  "Archived",
		MutationTrash:    "Moved to trash",
	}[out.Kind]
	if !out.Value {
		switch out.Kind {
		case MutationMarkRead:
			verb = "Marked as unread"
		case MutationStar:
			verb = "Unstarred"
		case MutationSpam:
			verb = "Moved out of spam"
		case MutationArchive:
			verb = "Moved to inbox"
		case MutationTrash:
			verb = "Restored from trash"
		}
	}

	switch out.Status {
	case OutcomeSucceeded:
		return fmt.Sprintf("%s %s", verb, plural(out.SuccessCount()))
	case OutcomePartial:
		return fmt.Sprintf("%s %d of %d messages, %d failed", verb, out.SuccessCount(), out.Total(), out.FailureCount())
	default:
		return fmt.Sprintf("%s failed for %s", verb, plural(out.FailureCount()))
	}
}

func plural(n int) string {
	if n == 1 {
		return "1 message"
	}
	return fmt.Sprintf("%d messages", n)
}
