package search

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Markers wrap matched query tokens in snippets. The renderer may
// substitute them for terminal highlighting; JSON consumers get them
// verbatim.
const (
	MarkStart = "«"
	MarkEnd   = "»"
)

// snippetContext is how many characters of context surround the first
// matched token.
const snippetContext = 60

// ExtractSnippet returns the first window of text containing any query
// token, with matched tokens wrapped in markers. Returns "" when no
// token occurs, which signals a pure-semantic hit.
func ExtractSnippet(text string, tokens []string) string {
	if text == "" || len(tokens) == 0 {
		return ""
	}

	lower := strings.ToLower(text)
	first := -1
	matchLen := 0
	for _, tok := range tokens {
		if idx := strings.Index(lower, tok); idx >= 0 && (first < 0 || idx < first) {
			first = idx
			matchLen = len(tok)
		}
	}
	if first < 0 {
		return ""
	}

	// Step outward one rune at a time, so context is counted in
	// characters and never splits a code point at either edge.
	start := first
	for n := 0; n < snippetContext && start > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := first + matchLen
	if end > len(text) {
		end = len(text)
	}
	for n := 0; n < snippetContext && end < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}

	window := text[start:end]
	window = markTokens(window, tokens)

	if start > 0 {
		window = "…" + window
	}
	if end < len(text) {
		window += "…"
	}
	return window
}

// markTokens wraps every token occurrence in the window with markers,
// case-insensitively, preserving the original casing.
func markTokens(window string, tokens []string) string {
	lower := strings.ToLower(window)
	type span struct{ start, end int }
	var spans []span

	for _, tok := range tokens {
		from := 0
		for {
			idx := strings.Index(lower[from:], tok)
			if idx < 0 {
				break
			}
			abs := from + idx
			spans = append(spans, span{abs, abs + len(tok)})
			from = abs + len(tok)
		}
	}
	if len(spans) == 0 {
		return window
	}

	// Merge overlaps so nested tokens don't double-mark.
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(window[prev:s.start])
		b.WriteString(MarkStart)
		b.WriteString(window[s.start:s.end])
		b.WriteString(MarkEnd)
		prev = s.end
	}
	b.WriteString(window[prev:])
	return b.String()
}
