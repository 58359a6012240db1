package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/vkinder/internal/model"
	"github.com/m3rciful/vkinder/internal/store"
)

func TestWithTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, store.WithTx(ctx, s, func(tx store.Tx) error {
		return tx.SaveUser(ctx, model.User{ID: 1, State: model.StateMainMenu})
	}))

	boom := errors.New("boom")
	err := store.WithTx(ctx, s, func(tx store.Tx) error {
		require.NoError(t, tx.SaveUser(ctx, model.User{ID: 1, State: model.StateSearching}))
		require.NoError(t, tx.AddEntry(ctx, model.Favorites, 1, 99))
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, store.WithTx(ctx, s, func(tx store.Tx) error {
		u, err := tx.GetUser(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, model.StateMainMenu, u.State)
		return nil
	}))
	assert.Empty(t, s.Entries(model.Favorites, 1))
}

func TestGetUserNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := store.WithTx(ctx, s, func(tx store.Tx) error {
		_, err := tx.GetUser(ctx, 5)
		return err
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaveAuthRequiresUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := model.AuthRecord{UserID: 4, ProfileID: 40, AccessToken: "a"}

	err := store.WithTx(ctx, s, func(tx store.Tx) error {
		return tx.SaveAuth(ctx, rec)
	})
	assert.ErrorIs(t, err, store.ErrUnknownUser)

	require.NoError(t, store.WithTx(ctx, s, func(tx store.Tx) error {
		if err := tx.SaveUser(ctx, model.User{ID: 4, State: model.StateNewUser}); err != nil {
			return err
		}
		return tx.SaveAuth(ctx, rec)
	}))
}

func TestProgressDefaults(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, store.WithTx(ctx, s, func(tx store.Tx) error {
		p, err := tx.GetProgress(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, model.NewProgress(3), p)
		return nil
	}))
}

func TestListsKeepInsertionOrderAndDedupe(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, store.WithTx(ctx, s, func(tx store.Tx) error {
		for _, id := range []int64{10, 20, 10, 30} {
			require.NoError(t, tx.AddEntry(ctx, model.Blacklist, 1, id))
		}
		n, err := tx.CountEntries(ctx, model.Blacklist, 1)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		e, err := tx.EntryAt(ctx, model.Blacklist, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(30), e.ProfileID)

		_, err = tx.EntryAt(ctx, model.Blacklist, 1, 3)
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	}))
	assert.Equal(t, []int64{10, 20, 30}, s.Entries(model.Blacklist, 1))
}

func TestClassifyMovesBetweenLists(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, store.WithTx(ctx, s, func(tx store.Tx) error {
		require.NoError(t, store.Classify(ctx, tx, model.Favorites, 1, 42))
		return store.Classify(ctx, tx, model.Blacklist, 1, 42)
	}))
	assert.Empty(t, s.Entries(model.Favorites, 1))
	assert.Equal(t, []int64{42}, s.Entries(model.Blacklist, 1))
}

func TestFinishedTxRejectsCalls(t *testing.T) {
	ctx := context.Background()
	s := New()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Error(t, tx.Rollback())
	_, err = tx.GetProgress(ctx, 1)
	assert.Error(t, err)
}
