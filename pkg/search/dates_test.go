package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	t.Run("bare year covers the whole year", func(t *testing.T) {
		ts, err := parseTimestamp("2024")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts.From)
		assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 999999000, time.UTC), ts.To)
		assert.False(t, ts.point())
	})

	t.Run("bare date covers the whole day", func(t *testing.T) {
		ts, err := parseTimestamp("2024-03-15")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ts.From)
		assert.Equal(t, time.Date(2024, 3, 15, 23, 59, 59, 999999000, time.UTC), ts.To)
	})

	t.Run("explicit time is a point", func(t *testing.T) {
		ts, err := parseTimestamp("2024-03-15 14:30:00")
		require.NoError(t, err)
		assert.True(t, ts.point())
		assert.Equal(t, time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC), ts.From)
	})

	t.Run("human formats", func(t *testing.T) {
		for _, text := range []string{"Mar 15, 2024", "15 Mar 2024", "2024/03/15", "15.03.2024"} {
			ts, err := parseTimestamp(text)
			require.NoError(t, err, text)
			assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ts.From, text)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		for _, text := range []string{"yesterday", "2024-13-40", "15th of March"} {
			_, err := parseTimestamp(text)
			require.Error(t, err, text)
			assert.True(t, IsQueryError(err), text)
		}
	})
}

func TestParseRange(t *testing.T) {
	t.Run("expands both ends", func(t *testing.T) {
		ts, err := parseRange(&Range{From: "2024-01-01", To: "2024-03-31"})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), ts.From)
		assert.Equal(t, time.Date(2024, 3, 31, 23, 59, 59, 999999000, time.UTC), ts.To)
	})

	t.Run("reversed range", func(t *testing.T) {
		_, err := parseRange(&Range{From: "2024-03-31", To: "2024-01-01"})
		require.Error(t, err)
		assert.True(t, IsQueryError(err))
	})
}

func TestDateQuery(t *testing.T) {
	t.Run("equality on a span becomes a between", func(t *testing.T) {
		q := mustCompile(t, "changed:2024-03-15", KindUnit, nil)
		and, ok := q.(And)
		require.True(t, ok)
		// Date condition plus the content-action conjunct.
		require.Len(t, and, 2)
		span, ok := and[0].(And)
		require.True(t, ok)
		require.Len(t, span, 2)
		assert.Equal(t, OpGte, span[0].(Cond).Op)
		assert.Equal(t, OpLte, span[1].(Cond).Op)
	})

	t.Run("greater-than a span starts after its end", func(t *testing.T) {
		q := mustCompile(t, "added:>2024", KindUnit, nil)
		cond, ok := q.(Cond)
		require.True(t, ok)
		assert.Equal(t, OpGt, cond.Op)
		assert.Equal(t, time.Date(2024, 12, 31, 23, 59, 59, 999999000, time.UTC), cond.Value)
	})

	t.Run("less-than a span stops before its start", func(t *testing.T) {
		q := mustCompile(t, "added:<2024", KindUnit, nil)
		cond := q.(Cond)
		assert.Equal(t, OpLt, cond.Op)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cond.Value)
	})

	t.Run("range term", func(t *testing.T) {
		q := mustCompile(t, "added:[2024-01-01 to 2024-01-31]", KindUnit, nil)
		and, ok := q.(And)
		require.True(t, ok)
		require.Len(t, and, 2)
		assert.Equal(t, OpGte, and[0].(Cond).Op)
		assert.Equal(t, OpLte, and[1].(Cond).Op)
	})

	t.Run("point comparison", func(t *testing.T) {
		// A date-time with a space needs quoting to stay one token.
		q := mustCompile(t, `added:>="2024-03-15 14:00:00"`, KindUnit, nil)
		cond, ok := q.(Cond)
		require.True(t, ok)
		assert.Equal(t, OpGte, cond.Op)
		assert.Equal(t, time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC), cond.Value)
	})
}
