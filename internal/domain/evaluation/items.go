package evaluation

import (
	"context"
	"log/slog"
	"strings"
)

// SaveItemInput is a draft of one evaluation item. Saving never submits.
type SaveItemInput struct {
	PeriodID    string   `json:"periodId" validate:"required"`
	EmployeeID  string   `json:"employeeId" validate:"required"`
	Step        Step     `json:"step" validate:"required,oneof=criteria self primary secondary"`
	WBSItemID   string   `json:"wbsItemId" validate:"required"`
	EvaluatorID string   `json:"evaluatorId,omitempty"`
	Content     string   `json:"content"`
	Score       *float64 `json:"score,omitempty"`
}

// SaveItem creates or updates the draft for a WBS item on the employee's plan.
// Submission state of an existing item is preserved.
func (s *Service) SaveItem(ctx context.Context, in SaveItemInput) (item EvaluationItem, err error) {
	const op = "SaveItem"
	scope := Scope{PeriodID: in.PeriodID, EmployeeID: in.EmployeeID, Step: in.Step, EvaluatorID: in.EvaluatorID}
	ctx, span := s.startSpan(ctx, "evaluation.save_item", scope)
	defer func() { s.observe(span, ActionSaveItem, err) }()

	if strings.TrimSpace(in.WBSItemID) == "" {
		return EvaluationItem{}, invalid(op, "wbs item id required")
	}
	if err := s.policy.checkItem(op, in.Content, in.Score); err != nil {
		return EvaluationItem{}, err
	}
	if scope.Step == StepPrimary && strings.TrimSpace(scope.EvaluatorID) == "" {
		return EvaluationItem{}, invalid(op, "evaluator id required for %s step", scope.Step)
	}
	resolved, err := s.resolveScope(ctx, op, scope)
	if err != nil {
		return EvaluationItem{}, err
	}
	var assignment *WBSAssignment
	for i := range resolved.Assigned {
		if resolved.Assigned[i].WBSItemID == in.WBSItemID {
			assignment = &resolved.Assigned[i]
			break
		}
	}
	if assignment == nil {
		return EvaluationItem{}, invalid(op, "wbs item %s is not assigned to employee %s", in.WBSItemID, resolved.EmployeeID)
	}

	err = s.store.WithScopeTx(ctx, resolved.LockKey(), func(tx Tx) error {
		now := s.now()
		saved, err := tx.UpsertItem(ctx, EvaluationItem{
			PeriodID:    resolved.PeriodID,
			EmployeeID:  resolved.EmployeeID,
			Step:        resolved.Step,
			WBSItemID:   assignment.WBSItemID,
			EvaluatorID: resolved.ItemFilter().EvaluatorID,
			ProjectID:   assignment.ProjectID,
			Content:     strings.TrimSpace(in.Content),
			Score:       in.Score,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		item = saved
		return nil
	})
	if err != nil {
		return EvaluationItem{}, transitionFailed(op, err)
	}
	return item, nil
}

// SubmitItem raises one item to level. Resubmitting is a no-op.
func (s *Service) SubmitItem(ctx context.Context, itemID string, level Level) (item EvaluationItem, err error) {
	const op = "SubmitItem"
	if _, ok := ParseLevel(string(level)); !ok {
		return EvaluationItem{}, invalid(op, "unknown submission level %q", level)
	}
	item, err = s.store.GetItem(ctx, itemID)
	if err != nil {
		return EvaluationItem{}, fromStore(op, "evaluation item "+itemID, err)
	}
	ctx, span := s.startSpan(ctx, "evaluation.submit_item", item.Scope())
	defer func() { s.observe(span, ActionSubmitItem, err) }()

	err = s.store.WithScopeTx(ctx, item.Scope().LockKey(), func(tx Tx) error {
		now := s.now()
		current, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return fromStore(op, "evaluation item "+itemID, err)
		}
		if s.policy.RequireContentOnSubmit && !current.Drafted() {
			return invalid(op, "evaluation item %s has no content or score to submit", itemID)
		}
		item, err = submitItemTx(ctx, tx, current, level, now)
		return err
	})
	if err != nil {
		return EvaluationItem{}, transitionFailed(op, err)
	}
	return item, nil
}

// ResetItem recalls one item below level, keeping its submitted-at timestamps.
// Items of an approved scope cannot be recalled; request a revision instead.
func (s *Service) ResetItem(ctx context.Context, itemID string, level Level) (item EvaluationItem, err error) {
	const op = "ResetItem"
	if _, ok := ParseLevel(string(level)); !ok {
		return EvaluationItem{}, invalid(op, "unknown submission level %q", level)
	}
	item, err = s.store.GetItem(ctx, itemID)
	if err != nil {
		return EvaluationItem{}, fromStore(op, "evaluation item "+itemID, err)
	}
	ctx, span := s.startSpan(ctx, "evaluation.reset_item", item.Scope())
	defer func() { s.observe(span, ActionResetItem, err) }()

	err = s.store.WithScopeTx(ctx, item.Scope().LockKey(), func(tx Tx) error {
		now := s.now()
		current, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return fromStore(op, "evaluation item "+itemID, err)
		}
		record, _, err := getOrDefault(ctx, tx, current.Scope())
		if err != nil {
			return err
		}
		if record.Status == StatusApproved {
			return conflict(op, "%s step of employee %s is approved", current.Step, current.EmployeeID)
		}
		item, err = resetItemTx(ctx, tx, current, level, ResetRecall, now)
		return err
	})
	if err != nil {
		return EvaluationItem{}, transitionFailed(op, err)
	}
	return item, nil
}

// BulkSubmit submits every item matching scope. Each item is its own unit of
// work; a failing item is reported in the results and the rest carry on.
func (s *Service) BulkSubmit(ctx context.Context, scope BulkScope, level Level) (BulkResult, error) {
	return s.bulk(ctx, "BulkSubmit", scope, level, s.SubmitItem)
}

// BulkReset recalls every item matching scope, best effort like BulkSubmit.
func (s *Service) BulkReset(ctx context.Context, scope BulkScope, level Level) (BulkResult, error) {
	return s.bulk(ctx, "BulkReset", scope, level, s.ResetItem)
}

func (s *Service) bulk(ctx context.Context, op string, scope BulkScope, level Level, apply func(context.Context, string, Level) (EvaluationItem, error)) (BulkResult, error) {
	if strings.TrimSpace(scope.PeriodID) == "" {
		return BulkResult{}, invalid(op, "period id required")
	}
	if strings.TrimSpace(scope.EmployeeID) == "" {
		return BulkResult{}, invalid(op, "employee id required")
	}
	if _, ok := ParseStep(string(scope.Step)); scope.Step != "" && !ok {
		return BulkResult{}, invalid(op, "unknown step %q", scope.Step)
	}
	if _, ok := ParseLevel(string(level)); !ok {
		return BulkResult{}, invalid(op, "unknown submission level %q", level)
	}
	items, err := s.store.ListItems(ctx, scope.itemFilter())
	if err != nil {
		return BulkResult{}, fromStore(op, "evaluation items", err)
	}

	result := BulkResult{Results: make([]ItemResult, 0, len(items))}
	for _, item := range items {
		if _, err := apply(ctx, item.ID, level); err != nil {
			slog.Warn("bulk item failed", "op", op, "item_id", item.ID, "level", level, "error", err)
			result.FailedCount++
			result.Results = append(result.Results, ItemResult{ItemID: item.ID, Error: err.Error()})
			continue
		}
		result.SubmittedCount++
		result.Results = append(result.Results, ItemResult{ItemID: item.ID, OK: true})
	}
	return result, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (EvaluationItem, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return EvaluationItem{}, fromStore("GetItem", "evaluation item "+itemID, err)
	}
	return item, nil
}

func (s *Service) ListItems(ctx context.Context, filter ItemFilter) ([]EvaluationItem, error) {
	const op = "ListItems"
	if strings.TrimSpace(filter.PeriodID) == "" || strings.TrimSpace(filter.EmployeeID) == "" {
		return nil, invalid(op, "period id and employee id required")
	}
	if filter.Step != "" {
		if _, ok := ParseStep(string(filter.Step)); !ok {
			return nil, invalid(op, "unknown step %q", filter.Step)
		}
	}
	items, err := s.store.ListItems(ctx, filter)
	if err != nil {
		return nil, fromStore(op, "evaluation items", err)
	}
	return items, nil
}
