package evaluation

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"perfhrm/internal/platform/tracing"
)

type Option func(*Service)

func WithPolicy(policy Policy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

func WithRecorder(recorder TransitionRecorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// WithClock replaces time.Now. Tests use it to make timestamps strictly increasing.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBoardConcurrency bounds how many employees PeriodStatusBoard derives at once.
func WithBoardConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.boardConcurrency = n
		}
	}
}

// Service is the step-approval orchestrator and submission tracker. Every
// mutation of a scope runs inside one store transaction holding the scope lock.
type Service struct {
	store            StoreAPI
	assignments      AssignmentDirectory
	lines            EvaluationLineDirectory
	policy           Policy
	recorder         TransitionRecorder
	now              func() time.Time
	boardConcurrency int
}

func NewService(store StoreAPI, assignments AssignmentDirectory, lines EvaluationLineDirectory, opts ...Option) *Service {
	s := &Service{
		store:            store,
		assignments:      assignments,
		lines:            lines,
		policy:           DefaultPolicy(),
		now:              func() time.Time { return time.Now().UTC() },
		boardConcurrency: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

// resolvedScope is a validated scope with its evaluation line looked up.
type resolvedScope struct {
	Scope
	Recipient string
	Assigned  []WBSAssignment
}

// resolveScope validates scope and fills in what the directories know about it:
// the primary evaluator, the revision recipient and the assigned WBS items.
// A primary step with nobody on the line resolves with no assignments. A
// primary evaluator given by the caller must match the line.
func (s *Service) resolveScope(ctx context.Context, op string, scope Scope) (resolvedScope, error) {
	scope.PeriodID = strings.TrimSpace(scope.PeriodID)
	scope.EmployeeID = strings.TrimSpace(scope.EmployeeID)
	scope.EvaluatorID = strings.TrimSpace(scope.EvaluatorID)
	if err := scope.validate(op); err != nil {
		return resolvedScope{}, err
	}
	assigned, err := s.assignments.AssignedWBSItems(ctx, scope.PeriodID, scope.EmployeeID)
	if err != nil {
		return resolvedScope{}, transitionFailed(op, err)
	}
	resolved := resolvedScope{Scope: scope, Assigned: assigned}

	switch scope.Step {
	case StepCriteria, StepSelf:
		resolved.EvaluatorID = ""
		resolved.Recipient = scope.EmployeeID
	case StepPrimary:
		evaluators, err := s.lines.Evaluators(ctx, scope.PeriodID, scope.EmployeeID, StepPrimary)
		if err != nil {
			return resolvedScope{}, transitionFailed(op, err)
		}
		if scope.EvaluatorID != "" && (len(evaluators) == 0 || evaluators[0] != scope.EvaluatorID) {
			return resolvedScope{}, invalid(op, "%s is not the primary evaluator of %s", scope.EvaluatorID, scope.EmployeeID)
		}
		if len(evaluators) == 0 {
			resolved.EvaluatorID = ""
			resolved.Assigned = nil
			break
		}
		resolved.EvaluatorID = evaluators[0]
		resolved.Recipient = evaluators[0]
	case StepSecondary:
		evaluators, err := s.lines.Evaluators(ctx, scope.PeriodID, scope.EmployeeID, StepSecondary)
		if err != nil {
			return resolvedScope{}, transitionFailed(op, err)
		}
		if !slices.Contains(evaluators, scope.EvaluatorID) {
			return resolvedScope{}, notFound(op, "evaluator %s is not on the evaluation line of %s", scope.EvaluatorID, scope.EmployeeID)
		}
		resolved.Recipient = scope.EvaluatorID
	}
	return resolved, nil
}

func (s *Service) startSpan(ctx context.Context, name string, scope Scope) (context.Context, trace.Span) {
	return tracing.StartSpan(ctx, name, map[string]string{
		"evaluation.period_id":    scope.PeriodID,
		"evaluation.employee_id":  scope.EmployeeID,
		"evaluation.step":         string(scope.Step),
		"evaluation.evaluator_id": scope.EvaluatorID,
	})
}

func (s *Service) observe(span trace.Span, action string, err error) {
	tracing.End(span, err)
	if s.recorder != nil {
		s.recorder.RecordTransition(action, err)
	}
}
