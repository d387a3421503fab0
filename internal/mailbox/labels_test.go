package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelSet_CopyOnWrite(t *testing.T) {
	base := NewLabelSet(LabelInbox, "", LabelUnread)

	added := base.With(LabelStarred)
	removed := base.Without(LabelUnread)

	assert.Equal(t, []string{LabelInbox, LabelUnread}, base.Slice())
	assert.True(t, added.Has(LabelStarred))
	assert.False(t, removed.Has(LabelUnread))

	var empty LabelSet
	assert.False(t, empty.Has(LabelInbox))
	assert.True(t, empty.With(LabelInbox).Has(LabelInbox))
	assert.Nil(t, empty.Clone())
}

func TestParseFolder(t *testing.T) {
	tests := map[string]Folder{
		"":        FolderInbox,
		" Inbox ": FolderInbox,
		"SENT":    FolderSent,
		"draft":   FolderDrafts,
		"all":     FolderArchived,
		"archive": FolderArchived,
		"custom":  Folder("custom"),
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseFolder(in), "input %q", in)
	}
}

func TestFolder_TitleAndKnown(t *testing.T) {
	assert.Equal(t, "Inbox", FolderInbox.Title())
	assert.Equal(t, "", Folder("").Title())
	assert.True(t, FolderSpam.Known())
	assert.False(t, Folder("work").Known())
	assert.Len(t, Folders(), 7)
}

func TestFlag_Reflects(t *testing.T) {
	m := Message{Read: true, Labels: NewLabelSet(LabelTrash)}

	assert.True(t, FlagRead.Reflects(m, true))
	assert.False(t, FlagStarred.Reflects(m, true))
	assert.True(t, FlagTrash.Reflects(m, true))
	assert.True(t, FlagSpam.Reflects(m, false))
	assert.False(t, Flag("bogus").Reflects(m, true))
}

func TestParseAddress(t *testing.T) {
	assert.Equal(t, Address{Name: "A", Email: "a@x.io"}, ParseAddress("A <a@x.io>"))
	assert.Equal(t, Address{Email: "a@x.io"}, ParseAddress(" a@x.io "))
	assert.Equal(t, Address{Name: "Team Updates"}, ParseAddress("Team Updates"))
	assert.True(t, ParseAddress("").IsZero())
	assert.Equal(t, "A <a@x.io>", Address{Name: "A", Email: "a@x.io"}.String())
	assert.Equal(t, "a@x.io", Address{Email: "a@x.io"}.Display())
}

func TestApplyFlag(t *testing.T) {
	base := Message{ID: "m", Timestamp: Timestamp{InternalDate: "99"}, Labels: NewLabelSet(LabelInbox, LabelUnread)}

	read := ApplyFlag(base, FlagRead, true)
	assert.True(t, read.Read)
	assert.False(t, read.Labels.Has(LabelUnread))
	assert.Equal(t, base.Timestamp, read.Timestamp)
	assert.True(t, base.Labels.Has(LabelUnread), "input must not change")

	starred := ApplyFlag(base, FlagStarred, true)
	assert.True(t, starred.Starred)
	assert.True(t, FolderStarred.Contains(starred.Labels))

	spam := ApplyFlag(base, FlagSpam, true)
	assert.False(t, FolderInbox.Contains(spam.Labels))
	assert.True(t, FolderSpam.Contains(spam.Labels))
	assert.True(t, FolderInbox.Contains(ApplyFlag(spam, FlagSpam, false).Labels))

	archived := ApplyFlag(base, FlagArchived, true)
	assert.Equal(t, []string{LabelArchived, LabelUnread}, archived.Labels.Slice())

	trashed := ApplyFlag(base, FlagTrash, true)
	assert.True(t, FolderTrash.Contains(trashed.Labels))
	assert.False(t, FolderInbox.Contains(trashed.Labels))

	for _, f := range []Flag{FlagRead, FlagStarred, FlagSpam, FlagArchived, FlagTrash} {
		assert.True(t, f.Reflects(ApplyFlag(base, f, true), true), string(f))
	}
	assert.True(t, FlagTrash.Removes())
	assert.False(t, FlagRead.Removes())
}
