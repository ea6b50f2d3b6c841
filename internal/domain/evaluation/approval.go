package evaluation

import (
	"context"
	"errors"
	"time"
)

// getOrDefault returns the stored record for scope, or a pending record with
// no approver when nothing has been written yet. The bool reports whether a row exists.
func getOrDefault(ctx context.Context, r Reader, scope Scope) (StepApprovalRecord, bool, error) {
	key := scope.RecordKey()
	record, err := r.GetApprovalRecord(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return StepApprovalRecord{
			PeriodID:    key.PeriodID,
			EmployeeID:  key.EmployeeID,
			Step:        key.Step,
			EvaluatorID: key.EvaluatorID,
			Status:      StatusPending,
		}, false, nil
	}
	if err != nil {
		return StepApprovalRecord{}, false, err
	}
	return record, true, nil
}

// setStatus writes status for scope. Approver metadata is only written on a
// transition into approved; re-approving keeps the original approver.
func setStatus(ctx context.Context, tx Tx, scope Scope, status Status, actorID string, now time.Time) (StepApprovalRecord, error) {
	if !status.Stored() {
		return StepApprovalRecord{}, invalid("setStatus", "status %q cannot be stored", status)
	}
	record, exists, err := getOrDefault(ctx, tx, scope)
	if err != nil {
		return StepApprovalRecord{}, err
	}
	if exists && record.Status == status {
		return record, nil
	}
	record.Status = status
	record.UpdatedBy = actorID
	record.UpdatedAt = now
	if status == StatusApproved {
		at := now
		record.ApprovedBy = actorID
		record.ApprovedAt = &at
	}
	if err := tx.SaveApprovalRecord(ctx, record); err != nil {
		return StepApprovalRecord{}, err
	}
	return record, nil
}
