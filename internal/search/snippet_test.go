package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestExtractSnippet_MarksToken(t *testing.T) {
	text := "we should implement JWT authentication for the login flow before shipping"
	snippet := ExtractSnippet(text, []string{"authentication"})

	require.Contains(t, snippet, MarkStart+"authentication"+MarkEnd)
	require.Contains(t, snippet, "JWT")
}

func TestExtractSnippet_WindowsLongText(t *testing.T) {
	text := strings.Repeat("padding ", 50) + "authentication" + strings.Repeat(" trailing", 50)
	snippet := ExtractSnippet(text, []string{"authentication"})

	require.Contains(t, snippet, MarkStart+"authentication"+MarkEnd)
	require.True(t, strings.HasPrefix(snippet, "…"))
	require.True(t, strings.HasSuffix(snippet, "…"))
	require.Less(t, len(snippet), 220)
}

func TestExtractSnippet_CaseInsensitive(t *testing.T) {
	snippet := ExtractSnippet("Fixed the Authentication bug today", []string{"authentication"})
	require.Contains(t, snippet, MarkStart+"Authentication"+MarkEnd)
}

func TestExtractSnippet_NoMatch(t *testing.T) {
	require.Empty(t, ExtractSnippet("nothing relevant here", []string{"authentication"}))
}

func TestExtractSnippet_MarksAllOccurrences(t *testing.T) {
	snippet := ExtractSnippet("bug here and bug there", []string{"bug"})
	require.Equal(t, 2, strings.Count(snippet, MarkStart+"bug"+MarkEnd))
}

func TestExtractSnippet_UTF8Boundaries(t *testing.T) {
	text := strings.Repeat("héllö wörld ", 20) + "authentication" + strings.Repeat(" ünïcode", 20)
	snippet := ExtractSnippet(text, []string{"authentication"})
	require.True(t, utf8.ValidString(snippet))
}
