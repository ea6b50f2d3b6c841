package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemoryItem(t *testing.T, store *MemoryStore, wbs string) EvaluationItem {
	t.Helper()
	var item EvaluationItem
	err := store.WithScopeTx(context.Background(), selfScope().LockKey(), func(tx Tx) error {
		var err error
		item, err = tx.UpsertItem(context.Background(), EvaluationItem{
			PeriodID: period, EmployeeID: employee, Step: StepSelf, WBSItemID: wbs, Content: "draft", CreatedAt: t0, UpdatedAt: t0,
		})
		return err
	})
	require.NoError(t, err)
	return item
}

func TestMemoryTxReadsStagedWritesOverCommitted(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	committed := seedMemoryItem(t, store, "w1")

	err := store.WithScopeTx(ctx, selfScope().LockKey(), func(tx Tx) error {
		updated := committed
		require.True(t, updated.Submit(LevelEvaluator, t0))
		require.NoError(t, tx.UpdateItemSubmission(ctx, updated))
		_, err := tx.UpsertItem(ctx, EvaluationItem{PeriodID: period, EmployeeID: employee, Step: StepSelf, WBSItemID: "w2", CreatedAt: t0})
		require.NoError(t, err)

		items, err := tx.ListItems(ctx, selfScope().ItemFilter())
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, committed.ID, items[0].ID)
		assert.True(t, items[0].SubmittedToEvaluator)
		assert.Equal(t, "w2", items[1].WBSItemID)

		again, err := tx.UpsertItem(ctx, EvaluationItem{PeriodID: period, EmployeeID: employee, Step: StepSelf, WBSItemID: "w1", Content: "final"})
		require.NoError(t, err)
		assert.Equal(t, committed.ID, again.ID)
		assert.True(t, again.SubmittedToEvaluator)

		outside, err := store.GetItem(ctx, committed.ID)
		require.NoError(t, err)
		assert.False(t, outside.SubmittedToEvaluator)
		return nil
	})
	require.NoError(t, err)

	items, err := store.ListItems(ctx, selfScope().ItemFilter())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "final", items[0].Content)
	assert.True(t, items[0].SubmittedToEvaluator)
}

func TestMemoryTxDiscardsWritesOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	committed := seedMemoryItem(t, store, "w1")
	boom := errors.New("abort")

	err := store.WithScopeTx(ctx, selfScope().LockKey(), func(tx Tx) error {
		request := RevisionRequest{ID: "rev-1", PeriodID: period, EmployeeID: employee, Step: StepSelf, RecipientID: employee, Comment: "redo", CreatedAt: t0}
		require.NoError(t, tx.InsertRevision(ctx, request))
		require.Error(t, tx.InsertRevision(ctx, request))

		got, err := tx.GetRevision(ctx, "rev-1")
		require.NoError(t, err)
		assert.Equal(t, "redo", got.Comment)

		updated := committed
		updated.Submit(LevelManager, t0)
		require.NoError(t, tx.UpdateItemSubmission(ctx, updated))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.GetRevision(ctx, "rev-1")
	assert.ErrorIs(t, err, ErrNotFound)
	item, err := store.GetItem(ctx, committed.ID)
	require.NoError(t, err)
	assert.False(t, item.SubmittedToManager)
}
