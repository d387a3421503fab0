package render

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/ajramos/mailsync/internal/mailbox"
	"github.com/mattn/go-runewidth"
	"golang.org/x/net/html"
)

// LinkRef is a hyperlink collected from a body and referenced as [n]
type LinkRef struct {
	Index int
	URL   string
	Text  string
}

// FormatOptions controls terminal formatting of the detail view
type FormatOptions struct {
	WrapWidth int
}

var (
	plainURL = regexp.MustCompile(`(?i)\bhttps?://[\w\-._~:/%?#\[\]@!$&'()*+,;=]+`)
	bareURL  = regexp.MustCompile(`(?i)^[a-z][a-z0-9+\-.]*://\S+$`)
)

// FormatMessage renders an opened message as headers, body, attachments and
// links. The HTML part is preferred when present; the plain part is the
// fallback.
func FormatMessage(m mailbox.Message, opts FormatOptions) string {
	var (
		body  string
		links []LinkRef
	)
	if strings.TrimSpace(m.HTML) != "" {
		if text, l, err := HTMLToText(m.HTML); err == nil {
			body, links = text, l
		}
	}
	if strings.TrimSpace(body) == "" {
		body = m.Body
	}
	body = normalizeNewlines(body)
	if len(links) == 0 {
		links, body = referencePlainLinks(body)
	}
	if opts.WrapWidth > 0 {
		body = WrapTextPreserving(body, opts.WrapWidth)
	}
	body = dedupeConsecutiveLines(sanitizeOutsideCode(body))

	out := &strings.Builder{}
	writeHeaders(out, m)
	out.WriteString("\n")
	if strings.TrimSpace(body) == "" {
		out.WriteString("(empty message)\n")
	} else {
		out.WriteString(body)
		out.WriteString("\n")
	}

	if len(m.Attachments) > 0 {
		out.WriteString("\n[ATTACHMENTS]\n")
		for _, a := range m.Attachments {
			out.WriteString(formatAttachment(a))
			out.WriteString("\n")
		}
	}
	if len(links) > 0 {
		out.WriteString("\n[LINKS]\n")
		for _, l := range links {
			fmt.Fprintf(out, "(%d) %s\n", l.Index, l.URL)
		}
	}
	return out.String()
}

func writeHeaders(out *strings.Builder, m mailbox.Message) {
	header := func(key, value string) {
		if value != "" {
			fmt.Fprintf(out, "%s: %s\n", key, value)
		}
	}
	header("From", m.From.String())
	to := make([]string, 0, len(m.To))
	for _, a := range m.To {
		to = append(to, a.String())
	}
	header("To", strings.Join(to, ", "))
	header("Date", FormatTimestamp(m.Timestamp.Time()))
	subject := m.Subject
	if subject == "" {
		subject = "(No subject)"
	}
	header("Subject", subject)
	header("Labels", strings.Join(m.Labels.Slice(), ", "))
}

func formatAttachment(a mailbox.Attachment) string {
	line := a.Filename
	if line == "" {
		line = "(attachment)"
	}
	var meta []string
	if a.MimeType != "" {
		meta = append(meta, a.MimeType)
	}
	if a.Size > 0 {
		meta = append(meta, humanSize(a.Size))
	}
	if len(meta) > 0 {
		line += " (" + strings.Join(meta, ", ") + ")"
	}
	return line
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// referencePlainLinks replaces plain-text URLs with [n] markers
func referencePlainLinks(input string) ([]LinkRef, string) {
	var links []LinkRef
	replaced := plainURL.ReplaceAllStringFunc(input, func(u string) string {
		links = append(links, LinkRef{Index: len(links) + 1, URL: u, Text: u})
		return fmt.Sprintf("[%d]", len(links))
	})
	return links, replaced
}

// sanitizeOutsideCode sanitizes every line not inside a ``` fence
func sanitizeOutsideCode(s string) string {
	lines := strings.Split(s, "\n")
	inCode := false
	for i, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "```") {
			inCode = !inCode
			continue
		}
		if !inCode {
			lines[i] = sanitizeForTerminal(ln)
		}
	}
	return collapseBlankRuns(strings.Join(lines, "\n"))
}

// sanitizeForTerminal replaces rich-text glyphs that terminals tend to render
// as tofu with ASCII equivalents and drops invisible characters.
func sanitizeForTerminal(s string) string {
	if s == "" {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\u00A0' || r == '\u202F' || (r >= '\u2000' && r <= '\u200A'):
			b.WriteRune(' ')
		case r == '\u200B' || r == '\u200C' || r == '\u200D' || r == '\uFEFF' ||
			r == '\u034F' || r == '\u2060' || r == '\u00AD':
		case r == '\u2013' || r == '\u2014':
			b.WriteRune('-')
		case r == '\u2022' || r == '\u2043' || r == '\u25AA' || r == '\u25CF' || r == '\u25E6':
			b.WriteString("- ")
		case r == '\u2018' || r == '\u2019':
			b.WriteRune('\'')
		case r == '\u201C' || r == '\u201D':
			b.WriteRune('"')
		case r == '\u2026':
			b.WriteString("...")
		case unicode.IsControl(r) && r != '\n' && r != '\t':
		case unicode.Is(unicode.So, r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// dedupeConsecutiveLines drops repeated lines and empty pipe rows left by
// layout tables
func dedupeConsecutiveLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	prev := ""
	for _, ln := range lines {
		cur := strings.TrimRight(ln, " ")
		trimmed := strings.TrimSpace(cur)
		if trimmed != "" && trimmed == prev {
			continue
		}
		if trimmed == "|" || trimmed == "| |" {
			continue
		}
		out = append(out, cur)
		prev = trimmed
	}
	return collapseBlankRuns(strings.Join(out, "\n"))
}

// HTMLToText renders an HTML body as terminal text. Anchors become "label [n]"
// and are returned as links in order of appearance.
func HTMLToText(src string) (string, []LinkRef, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", nil, err
	}
	w := &htmlWriter{}
	w.visit(doc)
	return strings.TrimSpace(collapseBlankRuns(w.b.String())), w.links, nil
}

type htmlWriter struct {
	b          strings.Builder
	links      []LinkRef
	quoteDepth int
	inPre      bool
}

func (w *htmlWriter) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

func (w *htmlWriter) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch strings.ToLower(n.Data) {
	case "head", "style", "script", "title", "meta", "link", "img":
	case "br":
		w.b.WriteByte('\n')
	case "hr":
		w.b.WriteString("\n-----\n")
	case "div", "section", "tr":
		w.children(n)
		w.b.WriteByte('\n')
	case "p":
		w.children(n)
		w.b.WriteString("\n\n")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		if t := strings.TrimSpace(innerText(n)); t != "" {
			w.b.WriteString(t)
			w.b.WriteString("\n\n")
		}
	case "ul", "ol":
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && strings.EqualFold(c.Data, "li") {
				w.b.WriteString("- ")
				w.children(c)
				w.b.WriteByte('\n')
			}
		}
	case "blockquote":
		w.quoteDepth++
		w.children(n)
		w.quoteDepth--
		w.b.WriteByte('\n')
	case "pre":
		if w.inPre {
			w.children(n)
			return
		}
		w.inPre = true
		w.b.WriteString("```\n")
		w.children(n)
		w.b.WriteString("\n```\n")
		w.inPre = false
	case "a":
		w.anchor(n)
	case "td", "th":
		if t := strings.TrimSpace(innerText(n)); t != "" {
			w.b.WriteString(t)
			w.b.WriteString(" ")
		}
	default:
		w.children(n)
	}
}

func (w *htmlWriter) text(data string) {
	if w.inPre {
		w.b.WriteString(data)
		return
	}
	text := sanitizeForTerminal(data)
	if strings.TrimSpace(text) == "" {
		if text != "" && w.b.Len() > 0 {
			if last := w.b.String()[w.b.Len()-1]; last != ' ' && last != '\n' {
				w.b.WriteByte(' ')
			}
		}
		return
	}
	if w.quoteDepth == 0 {
		w.b.WriteString(text)
		return
	}
	prefix := strings.Repeat("> ", min(w.quoteDepth, 3))
	for i, ln := range strings.Split(strings.TrimSpace(text), "\n") {
		if i > 0 {
			w.b.WriteByte('\n')
		}
		w.b.WriteString(prefix)
		w.b.WriteString(strings.TrimRightFunc(ln, unicode.IsSpace))
	}
}

func (w *htmlWriter) anchor(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))
	label := strings.TrimSpace(innerText(n))
	if label == "" {
		for _, key := range []string{"aria-label", "title"} {
			if v := strings.TrimSpace(attr(n, key)); v != "" {
				label = v
				break
			}
		}
	}
	if label == "" {
		label = href
	}
	if href == "" {
		w.b.WriteString(label)
		return
	}
	w.links = append(w.links, LinkRef{Index: len(w.links) + 1, URL: href, Text: label})
	fmt.Fprintf(&w.b, "%s [%d]", label, len(w.links))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(sanitizeForTerminal(n.Data))
		case html.ElementNode:
			if strings.EqualFold(n.Data, "br") {
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// WrapTextPreserving wraps text to width by display cells. Quote prefixes are
// repeated on continuation lines; code fences, PGP blocks and URLs are never
// broken.
func WrapTextPreserving(input string, width int) string {
	if width <= 0 {
		return input
	}
	lines := strings.Split(normalizeNewlines(input), "\n")
	out := make([]string, 0, len(lines))
	inCode, inPGP := false, false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inCode = !inCode
			out = append(out, line)
			continue
		}
		if strings.HasPrefix(line, "-----BEGIN ") {
			inPGP = true
		}
		if inCode || inPGP {
			out = append(out, line)
			if strings.HasPrefix(line, "-----END ") {
				inPGP = false
			}
			continue
		}
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	prefix := ""
	rest := line
	for strings.HasPrefix(rest, "> ") {
		prefix += "> "
		rest = rest[2:]
	}
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return []string{strings.TrimRight(prefix, " ")}
	}
	var (
		out []string
		cur = prefix
	)
	flush := func() {
		out = append(out, strings.TrimRight(cur, " "))
		cur = prefix
	}
	for _, tok := range tokens {
		fresh := cur == prefix
		need := runewidth.StringWidth(tok)
		if !fresh {
			need++
		}
		if runewidth.StringWidth(cur)+need <= width {
			if !fresh {
				cur += " "
			}
			cur += tok
			continue
		}
		if !fresh {
			flush()
		}
		if bareURL.MatchString(tok) || runewidth.StringWidth(prefix+tok) <= width {
			cur += tok
			continue
		}
		// hard cut a single token longer than the line
		for tok != "" {
			room := width - runewidth.StringWidth(cur)
			if room <= 0 {
				flush()
				room = width - runewidth.StringWidth(cur)
				if room <= 0 {
					room = 1
				}
			}
			head := runewidth.Truncate(tok, room, "")
			if head == "" {
				_, size := utf8.DecodeRuneInString(tok)
				head = tok[:size]
			}
			cur += head
			tok = tok[len(head):]
			if tok != "" {
				flush()
			}
		}
	}
	flush()
	return out
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return collapseBlankRuns(s)
}

func collapseBlankRuns(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}

// FormatTimestamp renders a full date for the detail view
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("Mon, 02 Jan 2006 15:04:05 -0700")
}
