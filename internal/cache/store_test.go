package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache", "mailsync.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func sampleMessages() []mailbox.Message {
	return []mailbox.Message{
		{
			ID:        "a",
			Timestamp: mailbox.Timestamp{InternalDate: "1500"},
			Labels:    mailbox.NewLabelSet(mailbox.LabelInbox, mailbox.LabelUnread),
			Subject:   "hello",
			From:      mailbox.Address{Name: "Alice", Email: "alice@example.com"},
			To:        []mailbox.Address{{Email: "me@example.com"}},
			Body:      "body",
			Attachments: []mailbox.Attachment{
				{Filename: "x.pdf", MimeType: "application/pdf", Size: 10},
			},
		},
		{
			ID:        "b",
			Timestamp: mailbox.Timestamp{Stored: &mailbox.StoreTime{Seconds: 2, Nanos: 5_000_000}},
			Labels:    mailbox.NewLabelSet(mailbox.LabelInbox, mailbox.LabelStarred),
			Read:      true,
			Starred:   true,
		},
	}
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), "  ")
	assert.Error(t, err)

	_, err = Open(context.Background(), "../escape.db")
	assert.ErrorContains(t, err, "directory traversal")
}

func TestOpen_MigratesAndReopens(t *testing.T) {
	s, path := openTestStore(t)
	ver, err := s.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), ver)
	require.NoError(t, s.Close())

	again, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer again.Close()
	ver, err = again.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(migrations), ver)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	_, _, found, err := s.LoadSnapshot(ctx, "me@example.com", mailbox.FolderInbox)
	require.NoError(t, err)
	assert.False(t, found)

	want := sampleMessages()
	require.NoError(t, s.SaveSnapshot(ctx, "me@example.com", mailbox.FolderInbox, want, now))

	got, updated, found, err := s.LoadSnapshot(ctx, "me@example.com", mailbox.FolderInbox)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, now, updated)
	assert.Equal(t, want, got)
	assert.Equal(t, int64(2005), mailbox.Resolve(got[1]))

	_, _, found, err = s.LoadSnapshot(ctx, "me@example.com", mailbox.FolderSent)
	require.NoError(t, err)
	assert.False(t, found, "snapshots are per folder")
}

func TestSnapshot_Upsert(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSnapshot(ctx, "me@example.com", mailbox.FolderInbox, sampleMessages(), time.Now()))
	require.NoError(t, s.SaveSnapshot(ctx, "me@example.com", mailbox.FolderInbox, sampleMessages()[:1], time.Now()))

	got, _, _, err := s.LoadSnapshot(ctx, "me@example.com", mailbox.FolderInbox)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, mailbox.IDs(got))

	require.NoError(t, s.SaveSnapshot(ctx, "me@example.com", mailbox.FolderTrash, nil, time.Now()))
	got, _, found, err := s.LoadSnapshot(ctx, "me@example.com", mailbox.FolderTrash)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, got)

	require.NoError(t, s.DeleteSnapshots(ctx, "me@example.com"))
	_, _, found, err = s.LoadSnapshot(ctx, "me@example.com", mailbox.FolderInbox)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSnapshot_InvalidInputs(t *testing.T) {
	s, _ := openTestStore(t)
	assert.Error(t, s.SaveSnapshot(context.Background(), "", mailbox.FolderInbox, nil, time.Now()))
	assert.Error(t, s.SaveSnapshot(context.Background(), "me@example.com", "", nil, time.Now()))

	var nilStore *Store
	_, _, _, err := nilStore.LoadSnapshot(context.Background(), "me@example.com", mailbox.FolderInbox)
	assert.ErrorContains(t, err, "not initialized")
	assert.NoError(t, nilStore.Close())
}

func TestCursor_RoundTrip(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	_, found, err := s.LoadCursor(ctx, "me@example.com")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.SaveCursor(ctx, "me@example.com", 41))
	require.NoError(t, s.SaveCursor(ctx, "me@example.com", 42))
	id, found, err := s.LoadCursor(ctx, "me@example.com")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(42), id)

	assert.Error(t, s.SaveCursor(ctx, " ", 1))
}
