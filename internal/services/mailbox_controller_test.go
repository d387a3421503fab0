package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T, store MailboxStore, tweak func(*ControllerConfig)) (*MailboxController, *recordingNotifier) {
	t.Helper()
	cfg := ControllerConfig{
		Identity:       testIdentity,
		Folder:         mailbox.FolderInbox,
		PollInterval:   testInterval,
		PollCeiling:    testCeiling,
		SelectionGrace: 200 * time.Millisecond,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	c := NewMailboxController(store, cfg)
	n := &recordingNotifier{}
	c.SetNotifier(n)
	return c, n
}

func TestMailboxController_PollThenFeedSupersession(t *testing.T) {
	store := newFakeStore()
	store.setFetch(func(ctx context.Context, folder mailbox.Folder, force bool) ([]mailbox.Message, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return []mailbox.Message{inboxMsg("polled", "1")}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	c, _ := newTestController(t, store, func(cfg *ControllerConfig) {
		cfg.PollInterval = time.Second
		cfg.PollCeiling = 5 * time.Second
	})
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()

	assert.Eventually(t, func() bool { return len(c.View().Messages) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	store.emit()
	time.Sleep(50 * time.Millisecond)

	v := c.View()
	assert.Empty(t, v.Messages, "the later feed emission wins")
	assert.Equal(t, PollerStopped, v.Poller)
}

func TestMailboxController_SlowPollCannotOverwriteFeed(t *testing.T) {
	release := make(chan struct{})
	store := newFakeStore()
	store.setFetch(func(ctx context.Context, folder mailbox.Folder, force bool) ([]mailbox.Message, error) {
		<-release
		return []mailbox.Message{inboxMsg("stale", "1")}, nil
	})
	c, _ := newTestController(t, store, func(cfg *ControllerConfig) { cfg.PollCeiling = 5 * time.Second })
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()

	assert.Eventually(t, func() bool { return len(store.fetchCalls()) == 1 }, time.Second, 5*time.Millisecond)
	store.emit(inboxMsg("fresh", "2"))
	close(release)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, []string{"fresh"}, mailbox.IDs(c.View().Messages))
	assert.Equal(t, 1, c.Debug().FeedEmissions)
}

func TestMailboxController_PartialArchiveFailure(t *testing.T) {
	store := newFakeStore()
	store.setSetFlag(func(ctx context.Context, id string, flag mailbox.Flag, value bool) error {
		if id == "b" {
			return errBoom
		}
		return nil
	})
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	store.emit(inboxMsg("a", "3"), inboxMsg("b", "2"), inboxMsg("c", "1"))

	require.NoError(t, c.Archive("a", "b", "c"))
	assert.Empty(t, c.View().Messages, "optimistic removal is immediate")

	c.Wait()
	assert.Equal(t, []string{"b"}, mailbox.IDs(c.View().Messages))
	last, ok := n.last()
	require.True(t, ok)
	assert.Equal(t, NoticeWarning, last.level)
	assert.Equal(t, "Archived 2 of 3 messages, 1 failed", last.text)
}

func TestMailboxController_SelectionClearedAfterGrace(t *testing.T) {
	store := newFakeStore()
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	store.emit(inboxMsg("a", "3"), inboxMsg("b", "2"), inboxMsg("c", "1"))

	c.Select("a", "b")
	require.NoError(t, c.Trash())
	c.Wait()

	assert.Equal(t, []string{"a", "b"}, c.View().Selected, "selection survives until the grace period ends")
	assert.Equal(t, []string{"c"}, mailbox.IDs(c.View().Messages))
	assert.Eventually(t, func() bool { return len(c.View().Selected) == 0 }, time.Second, 10*time.Millisecond)

	last, _ := n.last()
	assert.Equal(t, notice{NoticeSuccess, "Moved to trash 2 messages"}, last)
}

func TestMailboxController_TrashTotalFailureRefetches(t *testing.T) {
	store := newFakeStore()
	store.setSetFlag(func(ctx context.Context, id string, flag mailbox.Flag, value bool) error { return errBoom })
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	store.emit(inboxMsg("a", "1"))
	store.setFetch(func(ctx context.Context, folder mailbox.Folder, force bool) ([]mailbox.Message, error) {
		return []mailbox.Message{inboxMsg("a", "1")}, nil
	})

	require.NoError(t, c.Trash("a"))
	c.Wait()

	assert.Equal(t, []string{"a"}, mailbox.IDs(c.View().Messages))
	assert.Contains(t, store.fetchCalls(), fetchCall{folder: mailbox.FolderInbox, force: true})
	last, _ := n.last()
	assert.Equal(t, NoticeError, last.level)
}

func TestMailboxController_OverlappingMutationRejected(t *testing.T) {
	release := make(chan struct{})
	store := newFakeStore()
	store.setSetFlag(func(ctx context.Context, id string, flag mailbox.Flag, value bool) error {
		<-release
		return nil
	})
	c, _ := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	store.emit(inboxMsg("a", "2"), inboxMsg("b", "1"))

	require.NoError(t, c.MarkRead("a"))
	assert.ErrorIs(t, c.Spam("a"), ErrMutationInFlight)
	assert.ErrorIs(t, c.ToggleStar(""), ErrNothingSelected)

	close(release)
	c.Wait()
	assert.Empty(t, c.Debug().InFlight)
}

func TestMailboxController_DisconnectedKeepsData(t *testing.T) {
	store := newFakeStore()
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	store.emit(inboxMsg("a", "1"))

	store.fail(errBoom)

	v := c.View()
	assert.False(t, v.Connected)
	assert.Equal(t, []string{"a"}, mailbox.IDs(v.Messages))
	assert.NoError(t, v.LoadError)
	last, _ := n.last()
	assert.Equal(t, NoticeWarning, last.level)
}

func TestMailboxController_PermanentFeedErrorIsReportedAsError(t *testing.T) {
	store := newFakeStore()
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	store.emit(inboxMsg("a", "1"))

	store.fail(fmt.Errorf("history: %w", ErrUnauthorized))

	assert.False(t, c.View().Connected)
	last, _ := n.last()
	assert.Equal(t, NoticeError, last.level)
	assert.Contains(t, last.text, "Live updates stopped")
}

func TestMailboxController_UnmountLetsInFlightMutationsFinish(t *testing.T) {
	store := newFakeStore()
	started := make(chan struct{})
	release := make(chan struct{})
	store.setSetFlag(func(ctx context.Context, id string, flag mailbox.Flag, value bool) error {
		close(started)
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	store.emit(inboxMsg("a", "1"))

	require.NoError(t, c.Archive("a"))
	<-started

	unmounted := make(chan struct{})
	go func() {
		defer close(unmounted)
		c.Unmount()
	}()
	select {
	case <-unmounted:
		t.Fatal("Unmount returned before the archive settled")
	case <-time.After(30 * time.Millisecond):
	}
	close(release)
	<-unmounted

	last, ok := n.last()
	require.True(t, ok)
	assert.Equal(t, NoticeSuccess, last.level)
	assert.Empty(t, c.Debug().InFlight)
}

func TestMailboxController_InitialLoadFailure(t *testing.T) {
	store := newFakeStore()
	store.subscribeErr = errBoom
	store.setFetch(func(ctx context.Context, folder mailbox.Folder, force bool) ([]mailbox.Message, error) {
		return nil, errBoom
	})
	c, _ := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()

	assert.True(t, c.View().Loading)
	assert.Eventually(t, func() bool { return c.View().LoadError != nil }, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, c.View().LoadError, errBoom)
}

func TestMailboxController_CachedSnapshotShownFirst(t *testing.T) {
	store := newFakeStore()
	cache := newFakeCache()
	require.NoError(t, cache.SaveSnapshot(context.Background(), testIdentity.Account, mailbox.FolderInbox,
		[]mailbox.Message{inboxMsg("cached", "1")}))
	c, _ := newTestController(t, store, nil)
	c.SetCache(cache)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()

	v := c.View()
	assert.Equal(t, []string{"cached"}, mailbox.IDs(v.Messages))
	assert.Equal(t, PollerStopped, v.Poller, "no bootstrap polling when the list is not empty")
	assert.Empty(t, store.fetchCalls())

	store.emit(inboxMsg("live", "2"))
	assert.Equal(t, []string{"live"}, mailbox.IDs(c.View().Messages))
	assert.Equal(t, 2, cache.saveCount())
	snap, err := cache.LoadSnapshot(context.Background(), testIdentity.Account, mailbox.FolderInbox)
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, mailbox.IDs(snap))
}

func TestMailboxController_SwitchFolder(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	sent := mailbox.Message{ID: "s", Labels: mailbox.NewLabelSet(mailbox.LabelSent), Read: true}
	store.emit(inboxMsg("i", "1"), sent)
	c.Select("i")
	require.NoError(t, c.Open("i"))

	require.NoError(t, c.SwitchFolder(mailbox.FolderSent))

	v := c.View()
	assert.Equal(t, mailbox.FolderSent, v.Folder)
	assert.Equal(t, []string{"s"}, mailbox.IDs(v.Messages))
	assert.Empty(t, v.Selected)
	assert.Nil(t, v.Opened)
	assert.Equal(t, 1, store.liveSubscriptions())
	c.Wait()
}

func TestMailboxController_SearchFiltersWithoutTouchingCanonical(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	a := inboxMsg("a", "2")
	a.Subject = "Invoice March"
	store.emit(a, inboxMsg("b", "1"))

	c.Search("INVOICE")
	v := c.View()
	assert.Equal(t, []string{"a"}, mailbox.IDs(v.Messages))
	assert.Equal(t, 2, v.Total)

	c.SelectAll()
	assert.Equal(t, []string{"a"}, c.View().Selected)

	c.Search("")
	assert.Len(t, c.View().Messages, 2)
	assert.Len(t, c.Debug().Canonical, 2)
	c.ClearSelection()
	assert.Empty(t, c.View().Selected)
	c.ToggleSelect("b")
	assert.True(t, c.View().IsSelected("b"))
	c.ToggleSelect("b")
	assert.False(t, c.View().IsSelected("b"))
}

func TestMailboxController_OpenMarksRead(t *testing.T) {
	store := newFakeStore()
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	store.emit(inboxMsg("a", "1"))

	require.NoError(t, c.Open("a"))
	v := c.View()
	require.NotNil(t, v.Opened)
	assert.True(t, v.Opened.Read)
	c.Wait()

	assert.Equal(t, []flagCall{{id: "a", flag: mailbox.FlagRead, value: true}}, store.flagCalls())
	assert.Empty(t, n.all(), "marking read on open is silent")
	assert.ErrorIs(t, c.Open("missing"), ErrMessageNotFound)

	c.Close()
	assert.Nil(t, c.View().Opened)
}

func TestMailboxController_ArchiveOpenedMessageClosesIt(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()
	m := inboxMsg("a", "1")
	m.Read = true
	store.emit(m)
	require.NoError(t, c.Open("a"))

	require.NoError(t, c.Archive())
	assert.Nil(t, c.View().Opened)
	c.Wait()
}

func TestMailboxController_Compose(t *testing.T) {
	store := newFakeStore()
	c, n := newTestController(t, store, nil)
	require.NoError(t, c.Mount(context.Background()))
	defer c.Unmount()

	c.OpenCompose(ComposePayload{Subject: "draft"})
	assert.True(t, c.View().Compose.Open)
	assert.ErrorIs(t, c.SendCompose(ComposePayload{Subject: "draft"}), ErrMissingRecipients)

	store.sendErr = errBoom
	require.NoError(t, c.SendCompose(ComposePayload{To: []string{"x@example.com"}, Subject: "hi"}))
	c.Wait()
	v := c.View()
	assert.True(t, v.Compose.Open)
	assert.ErrorIs(t, v.Compose.Err, errBoom)

	store.mu.Lock()
	store.sendErr = nil
	store.mu.Unlock()
	require.NoError(t, c.SendCompose(ComposePayload{To: []string{"x@example.com"}, Subject: "hi"}))
	c.Wait()
	assert.False(t, c.View().Compose.Open)
	last, _ := n.last()
	assert.Equal(t, notice{NoticeSuccess, "Message sent"}, last)

	c.OpenCompose(ComposePayload{})
	c.CloseCompose()
	assert.False(t, c.View().Compose.Open)
}

func TestMailboxController_NotMounted(t *testing.T) {
	c, _ := newTestController(t, newFakeStore(), nil)

	assert.ErrorIs(t, c.Archive("a"), ErrNotMounted)
	assert.ErrorIs(t, c.SendCompose(ComposePayload{To: []string{"a@b.c"}}), ErrNotMounted)
	c.Unmount()
}

func TestMailboxController_UnmountStopsEverything(t *testing.T) {
	store := newFakeStore()
	c, _ := newTestController(t, store, func(cfg *ControllerConfig) { cfg.PollCeiling = time.Minute })
	var changes atomic.Int32
	c.OnChange(func() { changes.Add(1) })
	require.NoError(t, c.Mount(context.Background()))
	require.NoError(t, c.Mount(context.Background()))

	c.Unmount()

	assert.Equal(t, 0, store.liveSubscriptions())
	assert.Equal(t, PollerStopped, c.Debug().Poller)
	fetches := len(store.fetchCalls())
	time.Sleep(3 * testInterval)
	assert.Equal(t, fetches, len(store.fetchCalls()))
	assert.Greater(t, changes.Load(), int32(0))
}
