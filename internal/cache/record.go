package cache

import "github.com/ajramos/mailsync/internal/mailbox"

// record is the on-disk form of a message. It keeps the timestamp in every
// shape the message carried so resolution after a reload is unchanged.
type record struct {
	ID           string       `json:"id"`
	InternalDate string       `json:"internal_date,omitempty"`
	Stored       *storedTime  `json:"stored,omitempty"`
	Date         string       `json:"date,omitempty"`
	Epoch        string       `json:"epoch,omitempty"`
	Labels       []string     `json:"labels"`
	Read         bool         `json:"read"`
	Starred      bool         `json:"starred"`
	Subject      string       `json:"subject,omitempty"`
	From         address      `json:"from"`
	To           []address    `json:"to,omitempty"`
	Snippet      string       `json:"snippet,omitempty"`
	Body         string       `json:"body,omitempty"`
	HTML         string       `json:"html,omitempty"`
	Attachments  []attachment `json:"attachments,omitempty"`
}

type storedTime struct {
	Seconds int64 `json:"seconds"`
	Nanos   int64 `json:"nanos"`
}

type address struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

func toRecords(msgs []mailbox.Message) []record {
	out := make([]record, 0, len(msgs))
	for _, m := range msgs {
		r := record{
			ID:           m.ID,
			InternalDate: m.Timestamp.InternalDate,
			Date:         m.Timestamp.Date,
			Epoch:        m.Timestamp.Epoch,
			Labels:       m.Labels.Slice(),
			Read:         m.Read,
			Starred:      m.Starred,
			Subject:      m.Subject,
			From:         address(m.From),
			Snippet:      m.Snippet,
			Body:         m.Body,
			HTML:         m.HTML,
		}
		if st := m.Timestamp.Stored; st != nil {
			r.Stored = &storedTime{Seconds: st.Seconds, Nanos: st.Nanos}
		}
		for _, a := range m.To {
			r.To = append(r.To, address(a))
		}
		for _, a := range m.Attachments {
			r.Attachments = append(r.Attachments, attachment(a))
		}
		out = append(out, r)
	}
	return out
}

func fromRecords(recs []record) []mailbox.Message {
	out := make([]mailbox.Message, 0, len(recs))
	for _, r := range recs {
		m := mailbox.Message{
			ID: r.ID,
			Timestamp: mailbox.Timestamp{
				InternalDate: r.InternalDate,
				Date:         r.Date,
				Epoch:        r.Epoch,
			},
			Labels:  mailbox.NewLabelSet(r.Labels...),
			Read:    r.Read,
			Starred: r.Starred,
			Subject: r.Subject,
			From:    mailbox.Address(r.From),
			Snippet: r.Snippet,
			Body:    r.Body,
			HTML:    r.HTML,
		}
		if r.Stored != nil {
			m.Timestamp.Stored = &mailbox.StoreTime{Seconds: r.Stored.Seconds, Nanos: r.Stored.Nanos}
		}
		for _, a := range r.To {
			m.To = append(m.To, mailbox.Address(a))
		}
		for _, a := range r.Attachments {
			m.Attachments = append(m.Attachments, mailbox.Attachment(a))
		}
		out = append(out, m)
	}
	return out
}
