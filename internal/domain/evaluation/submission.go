package evaluation

import (
	"context"
	"time"
)

// Submit raises the item to level. Submitting to the manager also submits to
// the evaluator so SubmittedToManager never holds without SubmittedToEvaluator.
// It reports whether anything changed; re-submitting is a no-op.
func (i *EvaluationItem) Submit(level Level, now time.Time) bool {
	changed := false
	if !i.SubmittedToEvaluator {
		at := now
		i.SubmittedToEvaluator = true
		i.SubmittedToEvaluatorAt = &at
		changed = true
	}
	if level == LevelManager && !i.SubmittedToManager {
		at := now
		i.SubmittedToManager = true
		i.SubmittedToManagerAt = &at
		changed = true
	}
	if changed {
		i.UpdatedAt = now
	}
	return changed
}

// Reset lowers the item below level. Resetting the evaluator rung takes the
// manager rung with it.
func (i *EvaluationItem) Reset(level Level, mode ResetMode, now time.Time) bool {
	changed := false
	if i.SubmittedToManager || (mode == ResetFull && i.SubmittedToManagerAt != nil) {
		i.SubmittedToManager = false
		if mode == ResetFull {
			i.SubmittedToManagerAt = nil
		}
		changed = true
	}
	if level == LevelEvaluator {
		if i.SubmittedToEvaluator || (mode == ResetFull && i.SubmittedToEvaluatorAt != nil) {
			i.SubmittedToEvaluator = false
			if mode == ResetFull {
				i.SubmittedToEvaluatorAt = nil
			}
			changed = true
		}
	}
	if changed {
		i.UpdatedAt = now
	}
	return changed
}

// submittedSince reports whether the item was submitted at either level after t.
func (i EvaluationItem) submittedSince(t time.Time) bool {
	if i.SubmittedToEvaluator && i.SubmittedToEvaluatorAt != nil && i.SubmittedToEvaluatorAt.After(t) {
		return true
	}
	return i.SubmittedToManager && i.SubmittedToManagerAt != nil && i.SubmittedToManagerAt.After(t)
}

func submitItemTx(ctx context.Context, tx Tx, item EvaluationItem, level Level, now time.Time) (EvaluationItem, error) {
	if !item.Submit(level, now) {
		return item, nil
	}
	if err := tx.UpdateItemSubmission(ctx, item); err != nil {
		return item, err
	}
	return item, nil
}

func resetItemTx(ctx context.Context, tx Tx, item EvaluationItem, level Level, mode ResetMode, now time.Time) (EvaluationItem, error) {
	if !item.Reset(level, mode, now) {
		return item, nil
	}
	if err := tx.UpdateItemSubmission(ctx, item); err != nil {
		return item, err
	}
	return item, nil
}

// cascadeSubmitTx brings every assigned item of the scope up to level, creating
// empty items for assignments nobody has saved yet. It returns how many rows changed.
func cascadeSubmitTx(ctx context.Context, tx Tx, scope Scope, assigned []WBSAssignment, level Level, now time.Time) (int, error) {
	items, err := tx.ListItems(ctx, scope.ItemFilter())
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		seen[item.WBSItemID] = true
	}
	for _, assignment := range assigned {
		if seen[assignment.WBSItemID] {
			continue
		}
		created, err := tx.UpsertItem(ctx, EvaluationItem{
			PeriodID:    scope.PeriodID,
			EmployeeID:  scope.EmployeeID,
			Step:        scope.Step,
			WBSItemID:   assignment.WBSItemID,
			EvaluatorID: scope.ItemFilter().EvaluatorID,
			ProjectID:   assignment.ProjectID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return 0, err
		}
		seen[assignment.WBSItemID] = true
		items = append(items, created)
	}

	changed := 0
	for _, item := range items {
		if !item.Submit(level, now) {
			continue
		}
		if err := tx.UpdateItemSubmission(ctx, item); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// resetScopeTx clears submission state on every item matched by filter.
func resetScopeTx(ctx context.Context, tx Tx, filter ItemFilter, level Level, mode ResetMode, now time.Time) (int, error) {
	items, err := tx.ListItems(ctx, filter)
	if err != nil {
		return 0, err
	}
	changed := 0
	for _, item := range items {
		if !item.Reset(level, mode, now) {
			continue
		}
		if err := tx.UpdateItemSubmission(ctx, item); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}
