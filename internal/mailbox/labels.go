package mailbox

import (
	"sort"
	"strings"
)

// System labels understood by the folder predicates
const (
	LabelInbox    = "INBOX"
	LabelSent     = "SENT"
	LabelTrash    = "TRASH"
	LabelSpam     = "SPAM"
	LabelStarred  = "STARRED"
	LabelArchived = "ARCHIVED"
	LabelDraft    = "DRAFT"
	LabelUnread   = "UNREAD"
)

// LabelSet is an immutable-by-convention set of label names.
// Mutating helpers return a new set.
type LabelSet map[string]struct{}

// NewLabelSet builds a set from the given names, skipping empty strings
func NewLabelSet(labels ...string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		if l == "" {
			continue
		}
		s[l] = struct{}{}
	}
	return s
}

// Has reports whether label is in the set. Safe on a nil set.
func (s LabelSet) Has(label string) bool {
	_, ok := s[label]
	return ok
}

// With returns a copy of s including label
func (s LabelSet) With(label string) LabelSet {
	c := s.Clone()
	if c == nil {
		c = make(LabelSet, 1)
	}
	c[label] = struct{}{}
	return c
}

// Without returns a copy of s excluding label
func (s LabelSet) Without(label string) LabelSet {
	c := s.Clone()
	delete(c, label)
	return c
}

// Clone returns a copy of s (nil stays nil)
func (s LabelSet) Clone() LabelSet {
	if s == nil {
		return nil
	}
	c := make(LabelSet, len(s))
	for l := range s {
		c[l] = struct{}{}
	}
	return c
}

// Slice returns the labels sorted alphabetically
func (s LabelSet) Slice() []string {
	out := make([]string, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Folder identifies a view over the mailbox
type Folder string

const (
	FolderInbox    Folder = "inbox"
	FolderSent     Folder = "sent"
	FolderTrash    Folder = "trash"
	FolderDrafts   Folder = "drafts"
	FolderSpam     Folder = "spam"
	FolderStarred  Folder = "starred"
	FolderArchived Folder = "archived"
)

var folderOrder = []Folder{
	FolderInbox, FolderStarred, FolderSent, FolderDrafts, FolderArchived, FolderSpam, FolderTrash,
}

var folderPredicates = map[Folder]func(LabelSet) bool{
	FolderInbox: func(l LabelSet) bool {
		return l.Has(LabelInbox) && !l.Has(LabelTrash) && !l.Has(LabelSpam)
	},
	FolderSent:     func(l LabelSet) bool { return l.Has(LabelSent) },
	FolderTrash:    func(l LabelSet) bool { return l.Has(LabelTrash) },
	FolderDrafts:   func(l LabelSet) bool { return l.Has(LabelDraft) },
	FolderSpam:     func(l LabelSet) bool { return l.Has(LabelSpam) },
	FolderStarred:  func(l LabelSet) bool { return l.Has(LabelStarred) },
	FolderArchived: func(l LabelSet) bool { return l.Has(LabelArchived) },
}

// Folders returns the known folders in display order
func Folders() []Folder {
	return append([]Folder(nil), folderOrder...)
}

// Known reports whether f has a label predicate
func (f Folder) Known() bool {
	_, ok := folderPredicates[f]
	return ok
}

// Contains reports whether a message with labels belongs to f.
// Unknown folders accept every message.
func (f Folder) Contains(labels LabelSet) bool {
	pred, ok := folderPredicates[f]
	if !ok {
		return true
	}
	return pred(labels)
}

// Title is the human readable folder name
func (f Folder) Title() string {
	if f == "" {
		return ""
	}
	return strings.ToUpper(string(f[:1])) + string(f[1:])
}

// ParseFolder maps user input to a folder, defaulting to inbox
func ParseFolder(s string) Folder {
	f := Folder(strings.ToLower(strings.Join(strings.Fields(s), "")))
	if f == "" {
		return FolderInbox
	}
	if f == "draft" {
		return FolderDrafts
	}
	if f == "archive" || f == "all" {
		return FolderArchived
	}
	return f
}

// Flag names a remote boolean attribute of a message
type Flag string

const (
	FlagRead     Flag = "read"
	FlagStarred  Flag = "starred"
	FlagSpam     Flag = "spam"
	FlagArchived Flag = "archived"
	FlagTrash    Flag = "trash"
)

// Reflects reports whether m already shows flag set to value, as the remote
// store would present it after the mutation was applied.
func (f Flag) Reflects(m Message, value bool) bool {
	switch f {
	case FlagRead:
		return m.Read == value
	case FlagStarred:
		return m.Starred == value
	case FlagSpam:
		return m.Labels.Has(LabelSpam) == value
	case FlagArchived:
		return m.Labels.Has(LabelArchived) == value
	case FlagTrash:
		return m.Labels.Has(LabelTrash) == value
	}
	return false
}

// Removes reports whether setting the flag moves a message out of the
// folder it is being viewed in.
func (f Flag) Removes() bool {
	return f == FlagSpam || f == FlagArchived || f == FlagTrash
}

// ApplyFlag returns a copy of m with flag set to value, expressed the way a
// label based store records it. The timestamp is never touched.
func ApplyFlag(m Message, flag Flag, value bool) Message {
	c := m.Clone()
	toggle := func(label string, on bool) {
		if on {
			c.Labels = c.Labels.With(label)
		} else {
			c.Labels = c.Labels.Without(label)
		}
	}
	switch flag {
	case FlagRead:
		c.Read = value
		toggle(LabelUnread, !value)
	case FlagStarred:
		c.Starred = value
		toggle(LabelStarred, value)
	case FlagSpam:
		toggle(LabelSpam, value)
		toggle(LabelInbox, !value)
	case FlagArchived:
		toggle(LabelArchived, value)
		toggle(LabelInbox, !value)
	case FlagTrash:
		toggle(LabelTrash, value)
	}
	return c
}
