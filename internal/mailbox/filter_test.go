package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter(t *testing.T) {
	msgs := []Message{
		{ID: "1", Subject: "Quarterly REPORT"},
		{ID: "2", Body: "see the attached report"},
		{ID: "3", From: Address{Name: "Reporter", Email: "r@example.com"}},
		{ID: "4", Subject: "lunch?", Snippet: "tacos"},
		{ID: "5", From: Address{Email: "STRASSE@example.com"}},
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"report", []string{"1", "2", "3"}},
		{"  TACOS ", []string{"4"}},
		{"r@example", []string{"3"}},
		{"Strasse@EXAMPLE", []string{"5"}},
		{"nothing", []string{}},
		{"", []string{"1", "2", "3", "4", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, IDs(Filter(msgs, tt.query)))
		})
	}
}

func TestFilter_DoesNotAliasInput(t *testing.T) {
	msgs := []Message{{ID: "1"}, {ID: "2"}}

	out := Filter(msgs, "")
	out[0].ID = "changed"

	assert.Equal(t, "1", msgs[0].ID)
}

func TestMatches(t *testing.T) {
	m := Message{Subject: "Hello World"}
	assert.True(t, Matches(m, "world"))
	assert.True(t, Matches(m, ""))
	assert.False(t, Matches(m, "moon"))
}
