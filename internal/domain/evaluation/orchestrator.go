package evaluation

import (
	"context"
	"strings"
)

// StepApprovalInput is the body of an explicit status change on a scope.
type StepApprovalInput struct {
	PeriodID    string `json:"periodId" validate:"required"`
	EmployeeID  string `json:"employeeId" validate:"required"`
	Step        Step   `json:"step" validate:"required,oneof=criteria self primary secondary"`
	Status      Status `json:"status" validate:"required"`
	Comment     string `json:"comment,omitempty"`
	EvaluatorID string `json:"evaluatorId,omitempty"`
}

func (in StepApprovalInput) Scope() Scope {
	return Scope{PeriodID: in.PeriodID, EmployeeID: in.EmployeeID, Step: in.Step, EvaluatorID: in.EvaluatorID}
}

// UpdateStepApproval routes an explicit status change to the matching action.
// revision_completed can only be reached by responding to a request.
func (s *Service) UpdateStepApproval(ctx context.Context, in StepApprovalInput, actorID string) (TransitionResult, error) {
	const op = "UpdateStepApproval"
	switch in.Status {
	case StatusApproved:
		return s.Approve(ctx, in.Scope(), actorID)
	case StatusRevisionRequested:
		return s.RequestRevision(ctx, in.Scope(), in.Comment, actorID)
	case StatusPending:
		return s.ResetToPending(ctx, in.Scope(), actorID)
	case StatusRevisionCompleted:
		return TransitionResult{}, invalid(op, "revision_completed is set by responding to the revision request")
	default:
		return TransitionResult{}, invalid(op, "status %q cannot be set", in.Status)
	}
}

// Approve marks the scope approved and brings every assigned item up to the
// manager rung, creating empty items for assignments nobody saved. Requests
// still open for the scope are closed. Approving an approved scope succeeds
// without touching the original approver.
func (s *Service) Approve(ctx context.Context, scope Scope, actorID string) (result TransitionResult, err error) {
	const op = "Approve"
	ctx, span := s.startSpan(ctx, "evaluation.approve", scope)
	defer func() { s.observe(span, ActionApprove, err) }()

	resolved, err := s.resolveScope(ctx, op, scope)
	if err != nil {
		return TransitionResult{}, err
	}
	result.Scope = resolved.Scope
	err = s.store.WithScopeTx(ctx, resolved.LockKey(), func(tx Tx) error {
		now := s.now()
		before, exists, err := getOrDefault(ctx, tx, resolved.Scope)
		if err != nil {
			return err
		}
		result.Previous = before.Status
		if _, err := setStatus(ctx, tx, resolved.Scope, StatusApproved, actorID, now); err != nil {
			return err
		}
		closed, err := closeOpenRevisionsTx(ctx, tx, resolved.Scope, now)
		if err != nil {
			return err
		}
		result.RevisionsClosed = closed
		// A primary step with nobody on the line has no items of its own.
		if resolved.Step.Downward() && resolved.EvaluatorID == "" {
			result.NoOp = exists && before.Status == StatusApproved && closed == 0
			return nil
		}
		changed, err := cascadeSubmitTx(ctx, tx, resolved.Scope, resolved.Assigned, LevelManager, now)
		if err != nil {
			return err
		}
		result.ItemsChanged = changed
		result.NoOp = exists && before.Status == StatusApproved && changed == 0 && closed == 0
		return nil
	})
	if err != nil {
		return TransitionResult{}, transitionFailed(op, err)
	}
	result.Current = StatusApproved
	return result, nil
}

// RequestRevision sends the scope back to its author: the record moves to
// revision_requested, every item loses both submission rungs and their
// timestamps, and a request is opened for the recipient unless one is already open.
func (s *Service) RequestRevision(ctx context.Context, scope Scope, comment, actorID string) (result TransitionResult, err error) {
	const op = "RequestRevision"
	ctx, span := s.startSpan(ctx, "evaluation.request_revision", scope)
	defer func() { s.observe(span, ActionRequestRevision, err) }()

	if strings.TrimSpace(comment) == "" {
		return TransitionResult{}, invalid(op, "comment required when requesting a revision")
	}
	resolved, err := s.resolveScope(ctx, op, scope)
	if err != nil {
		return TransitionResult{}, err
	}
	if resolved.Recipient == "" {
		return TransitionResult{}, invalid(op, "no %s evaluator is assigned to employee %s", resolved.Step, resolved.EmployeeID)
	}
	result.Scope = resolved.Scope
	err = s.store.WithScopeTx(ctx, resolved.LockKey(), func(tx Tx) error {
		now := s.now()
		before, _, err := getOrDefault(ctx, tx, resolved.Scope)
		if err != nil {
			return err
		}
		result.Previous = before.Status
		if _, err := setStatus(ctx, tx, resolved.Scope, StatusRevisionRequested, actorID, now); err != nil {
			return err
		}
		// The evaluator rung takes the manager rung with it.
		changed, err := resetScopeTx(ctx, tx, resolved.ItemFilter(), LevelEvaluator, ResetFull, now)
		if err != nil {
			return err
		}
		result.ItemsChanged = changed
		request, opened, err := openRevisionTx(ctx, tx, resolved.Scope, resolved.Recipient, actorID, comment, now)
		if err != nil {
			return err
		}
		result.Revision = &request
		result.RevisionOpened = opened
		return nil
	})
	if err != nil {
		return TransitionResult{}, transitionFailed(op, err)
	}
	result.Current = StatusRevisionRequested
	return result, nil
}

// ResetToPending puts the record back to pending. Items are left alone.
func (s *Service) ResetToPending(ctx context.Context, scope Scope, actorID string) (result TransitionResult, err error) {
	const op = "ResetToPending"
	ctx, span := s.startSpan(ctx, "evaluation.reset_pending", scope)
	defer func() { s.observe(span, ActionResetPending, err) }()

	resolved, err := s.resolveScope(ctx, op, scope)
	if err != nil {
		return TransitionResult{}, err
	}
	result.Scope = resolved.Scope
	err = s.store.WithScopeTx(ctx, resolved.LockKey(), func(tx Tx) error {
		now := s.now()
		before, exists, err := getOrDefault(ctx, tx, resolved.Scope)
		if err != nil {
			return err
		}
		result.Previous = before.Status
		result.NoOp = !exists || before.Status == StatusPending
		if result.NoOp {
			return nil
		}
		_, err = setStatus(ctx, tx, resolved.Scope, StatusPending, actorID, now)
		return err
	})
	if err != nil {
		return TransitionResult{}, transitionFailed(op, err)
	}
	result.Current = StatusPending
	return result, nil
}

// RespondToRevision completes an open request with the recipient's answer.
// Submission flags are not touched; the recipient resubmits separately.
// Responding to a completed request succeeds as a no-op.
func (s *Service) RespondToRevision(ctx context.Context, requestID, responseComment, actorID string) (result TransitionResult, err error) {
	const op = "RespondToRevision"
	if strings.TrimSpace(responseComment) == "" {
		return TransitionResult{}, invalid(op, "response comment required")
	}
	request, err := s.store.GetRevision(ctx, requestID)
	if err != nil {
		return TransitionResult{}, fromStore(op, "revision request "+requestID, err)
	}
	scope := request.Scope()
	ctx, span := s.startSpan(ctx, "evaluation.respond_revision", scope)
	defer func() { s.observe(span, ActionRespondRevision, err) }()

	result.Scope = scope
	err = s.store.WithScopeTx(ctx, scope.LockKey(), func(tx Tx) error {
		now := s.now()
		current, err := tx.GetRevision(ctx, requestID)
		if err != nil {
			return fromStore(op, "revision request "+requestID, err)
		}
		record, exists, err := getOrDefault(ctx, tx, scope)
		if err != nil {
			return err
		}
		result.Previous = record.Status
		result.Revision = &current
		if !current.Complete(strings.TrimSpace(responseComment), now) {
			result.NoOp = true
			return nil
		}
		if err := tx.UpdateRevision(ctx, current); err != nil {
			return err
		}
		if !exists || record.Status != StatusRevisionRequested {
			return nil
		}
		stillOpen, err := openCount(ctx, tx, scope)
		if err != nil {
			return err
		}
		if stillOpen > 0 {
			return nil
		}
		_, err = setStatus(ctx, tx, scope, StatusRevisionCompleted, actorID, now)
		return err
	})
	if err != nil {
		return TransitionResult{}, transitionFailed(op, err)
	}
	result.Current = StatusRevisionCompleted
	if result.NoOp {
		result.Current = result.Previous
	}
	return result, nil
}

// MarkRevisionRead records that the recipient has seen the request.
func (s *Service) MarkRevisionRead(ctx context.Context, requestID string) (request RevisionRequest, err error) {
	const op = "MarkRevisionRead"
	request, err = s.store.GetRevision(ctx, requestID)
	if err != nil {
		return RevisionRequest{}, fromStore(op, "revision request "+requestID, err)
	}
	scope := request.Scope()
	ctx, span := s.startSpan(ctx, "evaluation.mark_revision_read", scope)
	defer func() { s.observe(span, ActionMarkRevisionRead, err) }()

	err = s.store.WithScopeTx(ctx, scope.LockKey(), func(tx Tx) error {
		now := s.now()
		current, err := tx.GetRevision(ctx, requestID)
		if err != nil {
			return fromStore(op, "revision request "+requestID, err)
		}
		if current.MarkRead(now) {
			if err := tx.UpdateRevision(ctx, current); err != nil {
				return err
			}
		}
		request = current
		return nil
	})
	if err != nil {
		return RevisionRequest{}, transitionFailed(op, err)
	}
	return request, nil
}

func (s *Service) GetRevisionRequest(ctx context.Context, requestID string) (RevisionRequest, error) {
	request, err := s.store.GetRevision(ctx, requestID)
	if err != nil {
		return RevisionRequest{}, fromStore("GetRevisionRequest", "revision request "+requestID, err)
	}
	return request, nil
}

// ListRevisionRequests returns the ledger entries of a period, newest first.
func (s *Service) ListRevisionRequests(ctx context.Context, filter RevisionFilter) ([]RevisionRequest, error) {
	const op = "ListRevisionRequests"
	if strings.TrimSpace(filter.PeriodID) == "" {
		return nil, invalid(op, "period id required")
	}
	if filter.Step != "" {
		if _, ok := ParseStep(string(filter.Step)); !ok {
			return nil, invalid(op, "unknown step %q", filter.Step)
		}
	}
	requests, err := s.store.ListRevisions(ctx, filter)
	if err != nil {
		return nil, fromStore(op, "revision requests", err)
	}
	return requests, nil
}

func openCount(ctx context.Context, r Reader, scope Scope) (int, error) {
	open := false
	requests, err := r.ListRevisions(ctx, RevisionFilter{
		PeriodID:    scope.PeriodID,
		EmployeeID:  scope.EmployeeID,
		Step:        scope.Step,
		IsCompleted: &open,
	})
	if err != nil {
		return 0, err
	}
	return len(scopeRevisions(scope, requests)), nil
}
