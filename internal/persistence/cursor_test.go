package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/conquest/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{StartedAt: time.Date(2025, time.May, 4, 6, 30, 0, 123, time.UTC), ID: "act-9"}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	assert.True(t, in.StartedAt.Equal(out.StartedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEdgeCases(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Empty(t, EncodeCursor(nil))

	_, err = DecodeCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("bm8tc2VwYXJhdG9y") // "no-separator"
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestNextCursor(t *testing.T) {
	started := time.Date(2025, time.May, 4, 6, 30, 0, 0, time.UTC)
	items := []domain.ActivityAggregate{{ID: "a"}, {ID: "b", StartedAt: started}}

	assert.Nil(t, NextCursor(items, 3))
	next := NextCursor(items, 2)
	require.NotNil(t, next)
	assert.Equal(t, "b", next.ID)
	assert.Equal(t, started, next.StartedAt)
}
