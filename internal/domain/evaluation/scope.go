package evaluation

import "strings"

// Scope is the key an approval status is attached to. EvaluatorID is part of
// the record key only for the multi-evaluator step; for primary it carries the
// resolved evaluator so item lookups can be narrowed to that evaluator.
type Scope struct {
	PeriodID    string `json:"periodId"`
	EmployeeID  string `json:"employeeId"`
	Step        Step   `json:"step,omitempty"`
	EvaluatorID string `json:"evaluatorId,omitempty"`
}

// RecordKey identifies one StepApprovalRecord row.
type RecordKey struct {
	PeriodID    string
	EmployeeID  string
	Step        Step
	EvaluatorID string
}

func (s Scope) RecordKey() RecordKey {
	key := RecordKey{PeriodID: s.PeriodID, EmployeeID: s.EmployeeID, Step: s.Step}
	if s.Step.MultiEvaluator() {
		key.EvaluatorID = s.EvaluatorID
	}
	return key
}

// LockKey is the serialization point shared by every writer of the scope.
func (s Scope) LockKey() string {
	key := s.RecordKey()
	return strings.Join([]string{"evaluation", key.PeriodID, key.EmployeeID, string(key.Step), key.EvaluatorID}, ":")
}

// ItemFilter narrows item lookups to the items that count towards this scope.
func (s Scope) ItemFilter() ItemFilter {
	filter := ItemFilter{PeriodID: s.PeriodID, EmployeeID: s.EmployeeID, Step: s.Step}
	if s.Step.Downward() {
		filter.EvaluatorID = s.EvaluatorID
	}
	return filter
}

func (s Scope) validate(op string) error {
	if strings.TrimSpace(s.PeriodID) == "" {
		return invalid(op, "period id required")
	}
	if strings.TrimSpace(s.EmployeeID) == "" {
		return invalid(op, "employee id required")
	}
	if _, ok := ParseStep(string(s.Step)); !ok {
		return invalid(op, "unknown step %q", s.Step)
	}
	if s.Step.MultiEvaluator() && strings.TrimSpace(s.EvaluatorID) == "" {
		return invalid(op, "evaluator id required for %s step", s.Step)
	}
	return nil
}

// BulkScope selects the items a bulk submit or reset applies to. An empty Step
// covers every step of the employee.
type BulkScope struct {
	PeriodID    string `json:"periodId"`
	EmployeeID  string `json:"employeeId"`
	ProjectID   string `json:"projectId,omitempty"`
	Step        Step   `json:"step,omitempty"`
	EvaluatorID string `json:"evaluatorId,omitempty"`
}

func (b BulkScope) itemFilter() ItemFilter {
	return ItemFilter{
		PeriodID:    b.PeriodID,
		EmployeeID:  b.EmployeeID,
		Step:        b.Step,
		EvaluatorID: b.EvaluatorID,
		ProjectID:   b.ProjectID,
	}
}
