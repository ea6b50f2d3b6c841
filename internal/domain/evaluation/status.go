package evaluation

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// employeeSnapshot is everything GetStatus reads for one employee.
type employeeSnapshot struct {
	PeriodID            string
	EmployeeID          string
	Assigned            []WBSAssignment
	PrimaryEvaluators   []string
	SecondaryEvaluators []string
	Items               []EvaluationItem
	Records             []StepApprovalRecord
	Revisions           []RevisionRequest
}

// GetStatus derives the progress of all four steps for one employee.
func (s *Service) GetStatus(ctx context.Context, periodID, employeeID string) (EmployeeStatus, error) {
	const op = "GetStatus"
	periodID = strings.TrimSpace(periodID)
	employeeID = strings.TrimSpace(employeeID)
	if periodID == "" || employeeID == "" {
		return EmployeeStatus{}, invalid(op, "period id and employee id required")
	}
	snap, err := s.snapshot(ctx, periodID, employeeID)
	if err != nil {
		return EmployeeStatus{}, fromStore(op, "evaluation status", err)
	}
	return snap.status(), nil
}

// PeriodStatusBoard derives the status of every employee with assignments in
// the period, in the order the assignment directory lists them.
func (s *Service) PeriodStatusBoard(ctx context.Context, periodID string) ([]EmployeeStatus, error) {
	const op = "PeriodStatusBoard"
	periodID = strings.TrimSpace(periodID)
	if periodID == "" {
		return nil, invalid(op, "period id required")
	}
	employees, err := s.assignments.AssignedEmployees(ctx, periodID)
	if err != nil {
		return nil, fromStore(op, "assigned employees", err)
	}

	board := make([]EmployeeStatus, len(employees))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.boardConcurrency)
	for i, employeeID := range employees {
		g.Go(func() error {
			snap, err := s.snapshot(gctx, periodID, employeeID)
			if err != nil {
				return fmt.Errorf("employee %s: %w", employeeID, err)
			}
			board[i] = snap.status()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fromStore(op, "evaluation status", err)
	}
	return board, nil
}

func (s *Service) snapshot(ctx context.Context, periodID, employeeID string) (employeeSnapshot, error) {
	snap := employeeSnapshot{PeriodID: periodID, EmployeeID: employeeID}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		assigned, err := s.assignments.AssignedWBSItems(gctx, periodID, employeeID)
		if err != nil {
			return fmt.Errorf("assigned wbs items: %w", err)
		}
		snap.Assigned = assigned
		return nil
	})
	g.Go(func() error {
		evaluators, err := s.lines.Evaluators(gctx, periodID, employeeID, StepPrimary)
		if err != nil {
			return fmt.Errorf("primary evaluators: %w", err)
		}
		snap.PrimaryEvaluators = evaluators
		return nil
	})
	g.Go(func() error {
		evaluators, err := s.lines.Evaluators(gctx, periodID, employeeID, StepSecondary)
		if err != nil {
			return fmt.Errorf("secondary evaluators: %w", err)
		}
		snap.SecondaryEvaluators = evaluators
		return nil
	})
	g.Go(func() error {
		return s.store.ReadSnapshot(gctx, func(r Reader) error {
			var err error
			if snap.Items, err = r.ListItems(gctx, ItemFilter{PeriodID: periodID, EmployeeID: employeeID}); err != nil {
				return err
			}
			if snap.Records, err = r.ListApprovalRecords(gctx, periodID, employeeID); err != nil {
				return err
			}
			snap.Revisions, err = r.ListRevisions(gctx, RevisionFilter{PeriodID: periodID, EmployeeID: employeeID})
			return err
		})
	})
	if err := g.Wait(); err != nil {
		return employeeSnapshot{}, err
	}
	return snap, nil
}

func (snap employeeSnapshot) status() EmployeeStatus {
	status := EmployeeStatus{
		PeriodID:      snap.PeriodID,
		EmployeeID:    snap.EmployeeID,
		CriteriaSetup: snap.derive(Scope{PeriodID: snap.PeriodID, EmployeeID: snap.EmployeeID, Step: StepCriteria}, snap.Assigned),
	}
	status.SelfEvaluation = snap.derive(Scope{PeriodID: snap.PeriodID, EmployeeID: snap.EmployeeID, Step: StepSelf}, snap.Assigned)

	primary := Scope{PeriodID: snap.PeriodID, EmployeeID: snap.EmployeeID, Step: StepPrimary}
	if len(snap.PrimaryEvaluators) > 0 {
		primary.EvaluatorID = snap.PrimaryEvaluators[0]
		status.PrimaryEvaluatorID = primary.EvaluatorID
		status.PrimaryEvaluation = snap.derive(primary, snap.Assigned)
	} else {
		status.PrimaryEvaluation = snap.derive(primary, nil)
	}

	status.SecondaryEvaluation.Evaluators = make([]EvaluatorProgress, 0, len(snap.SecondaryEvaluators))
	statuses := make([]Status, 0, len(snap.SecondaryEvaluators))
	for _, evaluatorID := range snap.SecondaryEvaluators {
		scope := Scope{PeriodID: snap.PeriodID, EmployeeID: snap.EmployeeID, Step: StepSecondary, EvaluatorID: evaluatorID}
		progress := snap.derive(scope, snap.Assigned)
		status.SecondaryEvaluation.Evaluators = append(status.SecondaryEvaluation.Evaluators, EvaluatorProgress{
			EvaluatorID:  evaluatorID,
			StepProgress: progress,
		})
		statuses = append(statuses, progress.Status)
	}
	status.SecondaryEvaluation.Aggregate = AggregateEvaluatorStatuses(statuses)
	return status
}

func (snap employeeSnapshot) derive(scope Scope, assigned []WBSAssignment) StepProgress {
	filter := scope.ItemFilter()
	var items []EvaluationItem
	for _, item := range snap.Items {
		if item.Step == filter.Step && item.EvaluatorID == filter.EvaluatorID {
			items = append(items, item)
		}
	}
	var record *StepApprovalRecord
	key := scope.RecordKey()
	for i := range snap.Records {
		if snap.Records[i].Key() == key {
			record = &snap.Records[i]
			break
		}
	}
	return DeriveStepStatus(DerivationInput{
		Assigned:  assigned,
		Items:     items,
		Record:    record,
		Revisions: scopeRevisions(scope, snap.Revisions),
	})
}
