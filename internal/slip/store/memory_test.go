package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketslip/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	first, err := s.Create(ctx, "k1_slip.png", "M1", "R1")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, "M1", first.MarketID)

	_, err = s.Create(ctx, "k2_slip.png", "M1", "R2")
	require.NoError(t, err)

	t.Run("get returns the record", func(t *testing.T) {
		got, err := s.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, err := s.Get(ctx, "not-an-id")
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("list is scoped to the reservation", func(t *testing.T) {
		records, err := s.ListByReservation(ctx, "R1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "k1_slip.png", records[0].StorageKey)

		none, err := s.ListByReservation(ctx, "R404")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("duplicate storage key is rejected", func(t *testing.T) {
		_, err := s.Create(ctx, "k1_slip.png", "M9", "R9")
		assert.True(t, errors.Is(err, sentinel.ErrAlreadyExists))
	})

	t.Run("exists by storage key", func(t *testing.T) {
		ok, err := s.ExistsByStorageKey(ctx, "k2_slip.png")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete reports whether a record existed", func(t *testing.T) {
		removed, err := s.Delete(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, removed)

		removed, err = s.Delete(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, removed)

		records, err := s.ListByReservation(ctx, "R1")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}
