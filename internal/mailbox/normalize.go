package mailbox

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Document is a raw message as decoded from a store (JSON object).
type Document = map[string]any

// Normalize converts a raw store document into a Message. Each external field
// has exactly one parser; shape differences between producers are resolved
// here and nowhere else. Malformed fields degrade to their zero value.
func Normalize(doc Document) Message {
	m := Message{
		ID:        parseString(first(doc, "id", "_id", "messageId")),
		Timestamp: parseTimestamp(doc),
		Labels:    parseLabels(first(doc, "labels", "labelIds")),
		Subject:   parseString(doc["subject"]),
		From:      parseAddress(doc["from"]),
		To:        parseAddressList(doc["to"]),
		Snippet:   parseString(doc["snippet"]),
	}
	m.Body, m.HTML = parseBody(doc)
	m.Attachments = parseAttachments(doc["attachments"])

	if v, ok := parseBool(first(doc, "read", "isRead")); ok {
		m.Read = v
	} else {
		m.Read = !m.Labels.Has(LabelUnread)
	}
	if v, ok := parseBool(first(doc, "starred", "isStarred")); ok {
		m.Starred = v
	} else {
		m.Starred = m.Labels.Has(LabelStarred)
	}
	return m
}

// NormalizeJSON decodes a JSON array of documents and normalizes each one.
func NormalizeJSON(data []byte) ([]Message, error) {
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, Normalize(d))
	}
	return out, nil
}

func first(doc Document, keys ...string) any {
	for _, k := range keys {
		if v, ok := doc[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func parseString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatNumber(t)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<62 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	case float64:
		return t != 0, true
	}
	return false, false
}

// parseLabels accepts only arrays; anything else means "no labels".
func parseLabels(v any) LabelSet {
	switch t := v.(type) {
	case []any:
		s := make(LabelSet, len(t))
		for _, e := range t {
			if l, ok := e.(string); ok && l != "" {
				s[l] = struct{}{}
			}
		}
		return s
	case []string:
		return NewLabelSet(t...)
	}
	return LabelSet{}
}

func parseTimestamp(doc Document) Timestamp {
	var ts Timestamp
	ts.InternalDate = parseString(doc["internalDate"])

	for _, key := range []string{"timestamp", "createdAt", "receivedAt", "sentAt"} {
		v, ok := doc[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case map[string]any:
			if ts.Stored == nil {
				ts.Stored = parseStoreTime(t)
			}
		case string:
			if _, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
				if ts.Epoch == "" {
					ts.Epoch = strings.TrimSpace(t)
				}
			} else if ts.Date == "" {
				ts.Date = t
			}
		case float64, json.Number:
			if ts.Epoch == "" {
				ts.Epoch = parseString(t)
			}
		}
	}
	if d := parseString(doc["date"]); d != "" && ts.Date == "" {
		ts.Date = d
	}
	return ts
}

func parseStoreTime(m map[string]any) *StoreTime {
	secs, ok := m["seconds"]
	if !ok {
		secs, ok = m["_seconds"]
	}
	if !ok {
		return nil
	}
	f, ok := secs.(float64)
	if !ok {
		if s, isStr := secs.(string); isStr {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil
			}
			f = float64(n)
		} else {
			return nil
		}
	}
	st := &StoreTime{Seconds: int64(f)}
	nanos, ok := m["nanoseconds"]
	if !ok {
		nanos = m["_nanoseconds"]
	}
	if n, ok := nanos.(float64); ok {
		st.Nanos = int64(n)
	}
	return st
}

// parseAddress accepts "Name <email>", ["Name <email>", ...] or {name, email|address}.
func parseAddress(v any) Address {
	switch t := v.(type) {
	case string:
		return ParseAddress(t)
	case []any:
		for _, e := range t {
			if a := parseAddress(e); !a.IsZero() {
				return a
			}
		}
	case map[string]any:
		a := Address{Name: parseString(t["name"]), Email: parseString(first(t, "email", "address"))}
		if a.Email == "" && a.Name != "" {
			return ParseAddress(a.Name)
		}
		return a
	}
	return Address{}
}

func parseAddressList(v any) []Address {
	switch t := v.(type) {
	case string:
		var out []Address
		for _, part := range strings.Split(t, ",") {
			if a := ParseAddress(part); !a.IsZero() {
				out = append(out, a)
			}
		}
		return out
	case []any:
		var out []Address
		for _, e := range t {
			if a := parseAddress(e); !a.IsZero() {
				out = append(out, a)
			}
		}
		return out
	case map[string]any:
		if a := parseAddress(t); !a.IsZero() {
			return []Address{a}
		}
	}
	return nil
}

func parseBody(doc Document) (string, string) {
	switch t := doc["body"].(type) {
	case string:
		return t, parseString(doc["html"])
	case map[string]any:
		return parseString(first(t, "text", "plain")), parseString(t["html"])
	}
	return "", parseString(doc["html"])
}

func parseAttachments(v any) []Attachment {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]Attachment, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		a := Attachment{
			Filename: parseString(first(obj, "filename", "name")),
			MimeType: parseString(first(obj, "mimeType", "contentType")),
		}
		if n, err := strconv.ParseInt(parseString(obj["size"]), 10, 64); err == nil {
			a.Size = n
		}
		out = append(out, a)
	}
	return out
}
