package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, text string) *Expr {
	t.Helper()
	expr, err := parse(text)
	require.NoError(t, err, "query %q", text)
	return expr
}

func TestParseEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n"} {
		expr, err := parse(text)
		require.NoError(t, err)
		assert.Nil(t, expr, "query %q must parse to the empty tree", text)
	}
}

func TestParseEquivalences(t *testing.T) {
	// Pairs of queries that must produce identical trees: implicit AND
	// equals explicit AND, operators fold flat, and grouping mirrors
	// precedence (NOT over AND over OR).
	cases := []struct{ left, right string }{
		{"a b", "a AND b"},
		{"a b c", "a AND b AND c"},
		{"a b OR c", "(a AND b) OR c"},
		{"a OR b c", "a OR (b AND c)"},
		{"NOT a b", "(NOT a) AND b"},
		{"NOT a OR b", "(NOT a) OR b"},
		{"a OR b OR c", "(a OR b) OR c"},
		{"state:translated target:hello", "state:translated AND target:hello"},
	}
	for _, tc := range cases {
		left := mustParse(t, tc.left)
		right := mustParse(t, tc.right)
		assertSameShape(t, left, right, tc.left+" vs "+tc.right)
	}
}

// assertSameShape compares trees ignoring the lexer's Quoted flag,
// which does not affect compilation of plain words.
func assertSameShape(t *testing.T, a, b *Expr, label string) {
	t.Helper()
	if a == nil || b == nil {
		assert.Equal(t, a == nil, b == nil, label)
		return
	}
	require.Equal(t, a.Op, b.Op, label)
	if a.Op == ExprTerm {
		require.NotNil(t, a.Term, label)
		require.NotNil(t, b.Term, label)
		assert.Equal(t, a.Term.Field, b.Term.Field, label)
		assert.Equal(t, a.Term.Op, b.Term.Op, label)
		assert.Equal(t, a.Term.Value.Text, b.Term.Value.Text, label)
		assert.Equal(t, a.Term.Value.Regex, b.Term.Value.Regex, label)
		return
	}
	require.Len(t, b.Sub, len(a.Sub), label)
	for i := range a.Sub {
		assertSameShape(t, a.Sub[i], b.Sub[i], label)
	}
}

func TestParseFoldsFlat(t *testing.T) {
	expr := mustParse(t, "a AND b AND c AND d")
	require.Equal(t, ExprAnd, expr.Op)
	assert.Len(t, expr.Sub, 4, "same-precedence chains must fold into one node")

	expr = mustParse(t, "a OR b OR c")
	require.Equal(t, ExprOr, expr.Op)
	assert.Len(t, expr.Sub, 3)
}

func TestParseTerms(t *testing.T) {
	t.Run("field with operator suffix", func(t *testing.T) {
		expr := mustParse(t, "priority:>=100")
		require.Equal(t, ExprTerm, expr.Op)
		assert.Equal(t, "priority", expr.Term.Field)
		assert.Equal(t, ":>=", expr.Term.Op)
		assert.Equal(t, "100", expr.Term.Value.Text)
	})

	t.Run("field names are case-insensitive", func(t *testing.T) {
		expr := mustParse(t, "SOURCE:hello")
		assert.Equal(t, "source", expr.Term.Field)
	})

	t.Run("quoted value keeps spaces", func(t *testing.T) {
		expr := mustParse(t, `source:"hello world"`)
		assert.Equal(t, "hello world", expr.Term.Value.Text)
		assert.True(t, expr.Term.Value.Quoted)
	})

	t.Run("single quotes work too", func(t *testing.T) {
		expr := mustParse(t, `source:'hello world'`)
		assert.Equal(t, "hello world", expr.Term.Value.Text)
	})

	t.Run("regex value", func(t *testing.T) {
		expr := mustParse(t, `source:r"^hello.*"`)
		assert.True(t, expr.Term.Value.Regex)
		assert.Equal(t, "^hello.*", expr.Term.Value.Text)
	})

	t.Run("escaped quote inside a quoted value", func(t *testing.T) {
		expr := mustParse(t, `source:"he said \"hi\""`)
		assert.Equal(t, `he said "hi"`, expr.Term.Value.Text)
	})

	t.Run("date range", func(t *testing.T) {
		expr := mustParse(t, "changed:[2024-01-01 to 2024-03-31]")
		require.NotNil(t, expr.Term.Value.Range)
		assert.Equal(t, "2024-01-01", expr.Term.Value.Range.From)
		assert.Equal(t, "2024-03-31", expr.Term.Value.Range.To)
	})

	t.Run("bare URL is a word, not a field", func(t *testing.T) {
		expr := mustParse(t, "https://example.com/path")
		require.Equal(t, ExprTerm, expr.Op)
		assert.Empty(t, expr.Term.Field)
		assert.Equal(t, "https://example.com/path", expr.Term.Value.Text)
	})

	t.Run("escaped space in a bare word", func(t *testing.T) {
		expr := mustParse(t, `hello\ world`)
		require.Equal(t, ExprTerm, expr.Op)
		assert.Equal(t, "hello world", expr.Term.Value.Text)
	})

	t.Run("quoted keyword is a term", func(t *testing.T) {
		expr := mustParse(t, `"OR"`)
		require.Equal(t, ExprTerm, expr.Op)
		assert.Equal(t, "OR", expr.Term.Value.Text)
	})
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"AND",
		"a AND",
		"a OR",
		"NOT",
		"(a",
		"a)",
		"()",
		`source:"unterminated`,
		"changed:[2024-01-01",
		"changed:[2024-01-01]",
		"source:",
		"\x00",
	}
	for _, text := range cases {
		_, err := parse(text)
		require.Error(t, err, "query %q", text)
		assert.True(t, IsQueryError(err), "query %q must produce a query error", text)
	}
}
