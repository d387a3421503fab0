package mailbox

import (
	"net/mail"
	"strings"
)

// Message is the unit of data kept in the local mailbox view.
// Content fields are carried through untouched; the sync engine only
// reads ID, Timestamp, Labels, Read and Starred.
type Message struct {
	ID        string
	Timestamp Timestamp
	Labels    LabelSet
	Read      bool
	Starred   bool

	Subject     string
	From        Address
	To          []Address
	Snippet     string
	Body        string
	HTML        string
	Attachments []Attachment
}

// Attachment describes a file attached to a message
type Attachment struct {
	Filename string
	MimeType string
	Size     int64
}

// Address is a normalized sender or recipient
type Address struct {
	Name  string
	Email string
}

// ParseAddress parses a header style address ("Name <a@b.c>" or a bare address).
// Unparseable input is kept verbatim as the display name.
func ParseAddress(s string) Address {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}
	}
	if a, err := mail.ParseAddress(s); err == nil {
		return Address{Name: a.Name, Email: a.Address}
	}
	if strings.Contains(s, "@") && !strings.ContainsAny(s, " <>") {
		return Address{Email: s}
	}
	return Address{Name: s}
}

// Display returns the name if known, otherwise the email address
func (a Address) Display() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Email
}

func (a Address) String() string {
	switch {
	case a.Name != "" && a.Email != "":
		return a.Name + " <" + a.Email + ">"
	case a.Email != "":
		return a.Email
	default:
		return a.Name
	}
}

// IsZero reports whether the address carries no information
func (a Address) IsZero() bool { return a.Name == "" && a.Email == "" }

// Clone returns a copy of the message that shares no mutable state with m.
func (m Message) Clone() Message {
	c := m
	c.Labels = m.Labels.Clone()
	if m.To != nil {
		c.To = append([]Address(nil), m.To...)
	}
	if m.Attachments != nil {
		c.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	if m.Timestamp.Stored != nil {
		st := *m.Timestamp.Stored
		c.Timestamp.Stored = &st
	}
	return c
}

// Unread is the inverse of Read, kept for list rendering
func (m Message) Unread() bool { return !m.Read }

// IDs returns the ids of msgs in order
func IDs(msgs []Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}
