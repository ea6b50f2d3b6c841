package evaluation

import "time"

// DerivationInput is everything the displayed status of one scope depends on.
// Items and Revisions must already be narrowed to the scope.
type DerivationInput struct {
	Assigned  []WBSAssignment
	Items     []EvaluationItem
	Record    *StepApprovalRecord
	Revisions []RevisionRequest
}

// DeriveStepStatus computes the progress of a single-reviewer scope (or of one
// evaluator of the multi-evaluator step). It is recomputed on every read.
func DeriveStepStatus(in DerivationInput) StepProgress {
	progress := StepProgress{AssignedCount: len(in.Assigned)}

	byWBS := make(map[string]EvaluationItem, len(in.Items))
	for _, item := range in.Items {
		byWBS[item.WBSItemID] = item
	}
	for _, assignment := range in.Assigned {
		item, ok := byWBS[assignment.WBSItemID]
		if !ok {
			continue
		}
		if item.SubmittedToManager {
			progress.CompletedCount++
		}
		if item.SubmittedToEvaluator {
			progress.SubmittedToEvaluator++
		}
	}
	progress.IsSubmittedToEvaluator = progress.AssignedCount > 0 && progress.SubmittedToEvaluator == progress.AssignedCount
	progress.Status = deriveStatus(in, progress)
	return progress
}

func deriveStatus(in DerivationInput, progress StepProgress) Status {
	if progress.AssignedCount == 0 {
		return StatusNone
	}
	for _, rev := range in.Revisions {
		if rev.Open() && !approvedSince(in.Record, rev.CreatedAt) {
			return StatusRevisionRequested
		}
	}
	if latest, ok := latestRevision(in.Revisions); ok && latest.CompletedAt != nil {
		if !resumedAfter(in, *latest.CompletedAt) {
			return StatusRevisionCompleted
		}
	}
	if progress.CompletedCount == progress.AssignedCount {
		if in.Record != nil && in.Record.Status == StatusApproved {
			return StatusApproved
		}
		return StatusPending
	}
	return StatusInProgress
}

func latestRevision(revisions []RevisionRequest) (RevisionRequest, bool) {
	var latest RevisionRequest
	found := false
	for _, rev := range revisions {
		if !found || rev.CreatedAt.After(latest.CreatedAt) {
			latest = rev
			found = true
			continue
		}
		if rev.CreatedAt.Equal(latest.CreatedAt) && completedAfter(rev, latest) {
			latest = rev
		}
	}
	return latest, found
}

func completedAfter(a, b RevisionRequest) bool {
	if a.CompletedAt == nil {
		return false
	}
	return b.CompletedAt == nil || a.CompletedAt.After(*b.CompletedAt)
}

// resumedAfter reports whether the scope moved on after a revision was
// completed at t: an item was submitted again or the step was approved.
func resumedAfter(in DerivationInput, t time.Time) bool {
	for _, item := range in.Items {
		if item.submittedSince(t) {
			return true
		}
	}
	return approvedSince(in.Record, t)
}

// approvedSince reports whether the step was approved at or after t. An
// approval issued after a request was opened supersedes it; Approve closes
// open requests at its own timestamp.
func approvedSince(record *StepApprovalRecord, t time.Time) bool {
	return record != nil && record.Status == StatusApproved && record.ApprovedAt != nil && !record.ApprovedAt.Before(t)
}

// AggregateEvaluatorStatuses merges per-evaluator statuses of the
// multi-evaluator step. An outstanding revision wins, then a completed one;
// otherwise evaluators must agree or the step is in progress.
func AggregateEvaluatorStatuses(statuses []Status) Status {
	if len(statuses) == 0 {
		return StatusNone
	}
	completed := false
	uniform := true
	for _, status := range statuses {
		switch status {
		case StatusRevisionRequested:
			return StatusRevisionRequested
		case StatusRevisionCompleted:
			completed = true
		}
		if status != statuses[0] {
			uniform = false
		}
	}
	if completed {
		return StatusRevisionCompleted
	}
	if uniform {
		return statuses[0]
	}
	return StatusInProgress
}
