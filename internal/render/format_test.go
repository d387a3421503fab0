package render

import (
	"testing"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferencePlainLinks(t *testing.T) {
	links, replaced := referencePlainLinks("Check https://example.com/page?x=1#sec and http://foo.bar")
	require.Len(t, links, 2)
	assert.Equal(t, "Check [1] and [2]", replaced)
	assert.Equal(t, "https://example.com/page?x=1#sec", links[0].URL)
	assert.Equal(t, 2, links[1].Index)
}

func TestSanitizeOutsideCode(t *testing.T) {
	in := "Line \u2026 with \u2013 unicode\n```\nkeep \U0001F680 inside code\n```\nBack \u2022 outside\u200B"
	out := sanitizeOutsideCode(in)

	assert.Contains(t, out, "Line ... with - unicode")
	assert.Contains(t, out, "\U0001F680", "code fences are left alone")
	assert.NotContains(t, out, "\u2022")
	assert.NotContains(t, out, "\u200B")
}

func TestHTMLToText(t *testing.T) {
	src := `<html><head><style>x{}</style></head><body>` +
		`<h1>Title</h1><p>Hello <a href="https://example.com">site</a></p>` +
		`<ul><li>one</li><li>two</li></ul><blockquote>quoted</blockquote>` +
		`<script>alert(1)</script></body></html>`

	text, links, err := HTMLToText(src)
	require.NoError(t, err)

	assert.Contains(t, text, "Title\n\nHello site [1]")
	assert.Contains(t, text, "- one\n- two")
	assert.Contains(t, text, "> quoted")
	assert.NotContains(t, text, "x{}")
	assert.NotContains(t, text, "alert")
	require.Len(t, links, 1)
	assert.Equal(t, LinkRef{Index: 1, URL: "https://example.com", Text: "site"}, links[0])
}

func TestHTMLToText_TablesAndPre(t *testing.T) {
	text, _, err := HTMLToText(`<table><tr><td>a</td><td>b</td></tr><tr><td>c</td></tr></table><pre>  x := 1
  y</pre>`)
	require.NoError(t, err)
	assert.Contains(t, text, "a b")
	assert.Contains(t, text, "```\n  x := 1\n  y\n```")
}

func TestWrapTextPreserving(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"quote prefix repeated", "> aaa bbb ccc ddd", 10, "> aaa bbb\n> ccc ddd"},
		{"url kept whole", "see https://example.com/a/very/long/path", 10, "see\nhttps://example.com/a/very/long/path"},
		{"long token cut", "abcdefghijkl", 5, "abcde\nfghij\nkl"},
		{"code untouched", "```\nlong line that should not wrap\n```", 10, "```\nlong line that should not wrap\n```"},
		{"no width", "a b c", 0, "a b c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapTextPreserving(tt.in, tt.width))
		})
	}
}

func TestFormatMessage_HTML(t *testing.T) {
	m := mailbox.Message{
		ID:     "a",
		Labels: mailbox.NewLabelSet(mailbox.LabelInbox),
		From:   mailbox.Address{Name: "Alice", Email: "a@x.test"},
		To:     []mailbox.Address{{Email: "b@x.test"}},
		Body:   "plain version",
		HTML:   `<p>Hi <a href="https://x.test">there</a></p>`,
		Attachments: []mailbox.Attachment{
			{Filename: "report.pdf", MimeType: "application/pdf", Size: 2048},
		},
	}

	out := FormatMessage(m, FormatOptions{WrapWidth: 80})

	assert.Contains(t, out, "From: Alice <a@x.test>\n")
	assert.Contains(t, out, "To: b@x.test\n")
	assert.Contains(t, out, "Subject: (No subject)\n")
	assert.Contains(t, out, "Labels: INBOX\n")
	assert.NotContains(t, out, "Date:")
	assert.Contains(t, out, "Hi there [1]")
	assert.NotContains(t, out, "plain version")
	assert.Contains(t, out, "[ATTACHMENTS]\nreport.pdf (application/pdf, 2.0 KB)\n")
	assert.Contains(t, out, "[LINKS]\n(1) https://x.test\n")
}

func TestFormatMessage_PlainFallback(t *testing.T) {
	m := mailbox.Message{
		Subject:   "S",
		Timestamp: mailbox.Timestamp{Date: "2024-06-15T12:00:00Z"},
		Body:      "see https://example.com now",
	}

	out := FormatMessage(m, FormatOptions{})

	assert.Contains(t, out, "Subject: S\n")
	assert.Regexp(t, `Date: \w{3}, 1[56] Jun 2024`, out)
	assert.Contains(t, out, "see [1] now")
	assert.Contains(t, out, "(1) https://example.com\n")
	assert.NotContains(t, out, "[ATTACHMENTS]")

	assert.Contains(t, FormatMessage(mailbox.Message{}, FormatOptions{}), "(empty message)")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "5.0 MB", humanSize(5*1024*1024))
}
