package search

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitizeQuery_Simple(t *testing.T) {
	match, tokens := SanitizeQuery("Authentication Bug")
	require.Equal(t, `"authentication" OR "bug"`, match)
	require.Equal(t, []string{"authentication", "bug"}, tokens)
}

func TestSanitizeQuery_StripsFTSSyntax(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`"quoted phrase"`, []string{"quoted", "phrase"}},
		{`fix: auth-bug (urgent)`, []string{"fix", "auth", "bug", "urgent"}},
		{`project:ccsearch NEAR(x)`, []string{"project", "ccsearch", "near", "x"}},
		{`a* b^ c- {d}`, []string{"a", "b", "c", "d"}},
	}
	for _, tc := range cases {
		_, tokens := SanitizeQuery(tc.in)
		require.Equal(t, tc.want, tokens, "input %q", tc.in)
	}
}

func TestSanitizeQuery_Empty(t *testing.T) {
	for _, q := range []string{"", "   ", `"()"`, "--- !!!"} {
		match, tokens := SanitizeQuery(q)
		require.Empty(t, match, "input %q", q)
		require.Empty(t, tokens, "input %q", q)
	}
}
