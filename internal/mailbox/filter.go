package mailbox

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter returns the messages whose subject, body or sender contain query,
// compared case-insensitively. The input slice is never modified; an empty
// query returns a copy of msgs.
func Filter(msgs []Message, query string) []Message {
	query = strings.TrimSpace(query)
	out := make([]Message, 0, len(msgs))
	if query == "" {
		return append(out, msgs...)
	}
	// cases.Caser is stateful, one per call
	fold := cases.Fold()
	needle := fold.String(query)
	for _, m := range msgs {
		if matches(fold, m, needle) {
			out = append(out, m)
		}
	}
	return out
}

// Matches reports whether m matches query under Filter's rules
func Matches(m Message, query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	fold := cases.Fold()
	return matches(fold, m, fold.String(query))
}

func matches(fold cases.Caser, m Message, needle string) bool {
	for _, hay := range []string{m.Subject, m.Body, m.Snippet, m.From.Name, m.From.Email} {
		if hay == "" {
			continue
		}
		if strings.Contains(fold.String(hay), needle) {
			return true
		}
	}
	return false
}
