package gmail

import (
	"encoding/base64"
	"io"
	"mime/quotedprintable"
	"strings"

	"github.com/ajramos/mailsync/internal/mailbox"
	"google.golang.org/api/gmail/v1"
)

// folderLabels are the system labels that place a message in a folder. A
// message carrying none of them only lives in "All Mail" and is shown as
// archived.
var folderLabels = []string{
	mailbox.LabelInbox, mailbox.LabelSent, mailbox.LabelTrash, mailbox.LabelSpam, mailbox.LabelDraft,
}

// ToDocument flattens a Gmail message into the raw document shape accepted
// by mailbox.Normalize
func ToDocument(msg *gmail.Message) mailbox.Document {
	if msg == nil {
		return mailbox.Document{}
	}
	doc := mailbox.Document{
		"id":       msg.Id,
		"labelIds": withArchived(msg.LabelIds),
		"snippet":  msg.Snippet,
		"subject":  extractHeader(msg, "Subject"),
		"from":     extractHeader(msg, "From"),
		"to":       joinHeaders(extractHeader(msg, "To"), extractHeader(msg, "Cc")),
		"body": map[string]any{
			"text": ExtractPlainText(msg),
			"html": ExtractHTML(msg),
		},
	}
	if msg.InternalDate > 0 {
		doc["internalDate"] = msg.InternalDate
	}
	if date := extractHeader(msg, "Date"); date != "" {
		doc["date"] = date
	}
	if atts := extractAttachments(msg.Payload); len(atts) > 0 {
		doc["attachments"] = atts
	}
	return doc
}

// ToMessage converts a Gmail message through the normalization boundary
func ToMessage(msg *gmail.Message) mailbox.Message {
	return mailbox.Normalize(ToDocument(msg))
}

// ToMessages converts msgs, skipping nil entries left by failed fetches
func ToMessages(msgs []*gmail.Message) []mailbox.Message {
	out := make([]mailbox.Message, 0, len(msgs))
	for _, m := range msgs {
		if m == nil || m.Id == "" {
			continue
		}
		out = append(out, ToMessage(m))
	}
	return out
}

func withArchived(labelIDs []string) []string {
	out := append([]string(nil), labelIDs...)
	for _, id := range labelIDs {
		for _, l := range folderLabels {
			if id == l {
				return out
			}
		}
	}
	return append(out, mailbox.LabelArchived)
}

func joinHeaders(values ...string) string {
	var parts []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

func extractHeader(msg *gmail.Message, name string) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	for _, header := range msg.Payload.Headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func extractAttachments(part *gmail.MessagePart) []any {
	if part == nil {
		return nil
	}
	var out []any
	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		out = append(out, map[string]any{
			"filename": part.Filename,
			"mimeType": part.MimeType,
			"size":     part.Body.Size,
		})
	}
	for _, p := range part.Parts {
		out = append(out, extractAttachments(p)...)
	}
	return out
}

// ExtractPlainText returns the first text/plain body of msg
func ExtractPlainText(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	return extractPart(msg.Payload, "text/plain")
}

// ExtractHTML returns the first text/html body of msg
func ExtractHTML(msg *gmail.Message) string {
	if msg == nil || msg.Payload == nil {
		return ""
	}
	return extractPart(msg.Payload, "text/html")
}

func extractPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if part.Filename == "" && part.Body != nil && part.Body.Data != "" && strings.EqualFold(part.MimeType, mimeType) {
		return decodeBody(part.Body.Data)
	}
	for _, p := range part.Parts {
		if text := extractPart(p, mimeType); text != "" {
			return text
		}
	}
	return ""
}

// decodeBody decodes base64url data, then quoted-printable when it parses
func decodeBody(data string) string {
	raw, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	decoded, err := io.ReadAll(quotedprintable.NewReader(strings.NewReader(string(raw))))
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}
