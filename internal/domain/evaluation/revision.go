package evaluation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Complete closes the request with the recipient's answer. Completion also
// marks the request read. It reports whether anything changed.
func (r *RevisionRequest) Complete(responseComment string, now time.Time) bool {
	if r.IsCompleted {
		return false
	}
	at := now
	r.IsCompleted = true
	r.CompletedAt = &at
	r.ResponseComment = responseComment
	r.MarkRead(now)
	return true
}

func (r *RevisionRequest) MarkRead(now time.Time) bool {
	if r.IsRead {
		return false
	}
	at := now
	r.IsRead = true
	r.ReadAt = &at
	return true
}

// openRevisionTx issues a rework request for scope. When the recipient already
// has an open request for the scope that one is returned and nothing is written.
func openRevisionTx(ctx context.Context, tx Tx, scope Scope, recipientID, requestedBy, comment string, now time.Time) (RevisionRequest, bool, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return RevisionRequest{}, false, invalid("openRevision", "revision comment required")
	}
	open := false
	existing, err := tx.ListRevisions(ctx, RevisionFilter{
		PeriodID:    scope.PeriodID,
		EmployeeID:  scope.EmployeeID,
		Step:        scope.Step,
		RecipientID: recipientID,
		IsCompleted: &open,
	})
	if err != nil {
		return RevisionRequest{}, false, err
	}
	if len(existing) > 0 {
		return existing[0], false, nil
	}

	request := RevisionRequest{
		ID:          uuid.NewString(),
		PeriodID:    scope.PeriodID,
		EmployeeID:  scope.EmployeeID,
		Step:        scope.Step,
		EvaluatorID: scope.RecordKey().EvaluatorID,
		RecipientID: recipientID,
		RequestedBy: requestedBy,
		Comment:     comment,
		CreatedAt:   now,
	}
	if err := tx.InsertRevision(ctx, request); err != nil {
		return RevisionRequest{}, false, err
	}
	return request, true, nil
}

// closeOpenRevisionsTx completes every open request of scope without a
// response. Approve uses it so an approved step carries no open request.
func closeOpenRevisionsTx(ctx context.Context, tx Tx, scope Scope, now time.Time) (int, error) {
	open := false
	requests, err := tx.ListRevisions(ctx, RevisionFilter{
		PeriodID:    scope.PeriodID,
		EmployeeID:  scope.EmployeeID,
		Step:        scope.Step,
		IsCompleted: &open,
	})
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, request := range scopeRevisions(scope, requests) {
		if !request.Complete("", now) {
			continue
		}
		if err := tx.UpdateRevision(ctx, request); err != nil {
			return closed, err
		}
		closed++
	}
	return closed, nil
}

// scopeRevisions picks the requests that belong to scope out of an
// employee-wide list.
func scopeRevisions(scope Scope, revisions []RevisionRequest) []RevisionRequest {
	key := scope.RecordKey()
	var out []RevisionRequest
	for _, rev := range revisions {
		if rev.PeriodID != key.PeriodID || rev.EmployeeID != key.EmployeeID || rev.Step != key.Step {
			continue
		}
		if key.Step.MultiEvaluator() && rev.EvaluatorID != key.EvaluatorID {
			continue
		}
		out = append(out, rev)
	}
	return out
}
