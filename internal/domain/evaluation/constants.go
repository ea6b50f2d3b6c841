package evaluation

import "strings"

// Step is one of the four sequential review stages of an evaluation period.
type Step string

const (
	StepCriteria  Step = "criteria"
	StepSelf      Step = "self"
	StepPrimary   Step = "primary"
	StepSecondary Step = "secondary"
)

// Steps lists the review stages in the order they are worked through.
var Steps = []Step{StepCriteria, StepSelf, StepPrimary, StepSecondary}

func ParseStep(value string) (Step, bool) {
	step := Step(strings.ToLower(strings.TrimSpace(value)))
	switch step {
	case StepCriteria, StepSelf, StepPrimary, StepSecondary:
		return step, true
	}
	return "", false
}

// Downward reports whether the step is evaluated by someone other than the employee.
func (s Step) Downward() bool {
	return s == StepPrimary || s == StepSecondary
}

// MultiEvaluator reports whether approval state is kept per evaluator.
func (s Step) MultiEvaluator() bool {
	return s == StepSecondary
}

type Status string

const (
	StatusNone              Status = "none"
	StatusInProgress        Status = "in_progress"
	StatusPending           Status = "pending"
	StatusApproved          Status = "approved"
	StatusRevisionRequested Status = "revision_requested"
	StatusRevisionCompleted Status = "revision_completed"
)

func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusNone, StatusInProgress, StatusPending, StatusApproved, StatusRevisionRequested, StatusRevisionCompleted:
		return status, true
	}
	return "", false
}

// Stored reports whether the status may be persisted on a StepApprovalRecord.
// none and in_progress only ever come out of derivation.
func (s Status) Stored() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRevisionRequested, StatusRevisionCompleted:
		return true
	}
	return false
}

// Level is a rung of the two-level submission path.
type Level string

const (
	LevelEvaluator Level = "evaluator"
	LevelManager   Level = "manager"
)

func ParseLevel(value string) (Level, bool) {
	level := Level(strings.ToLower(strings.TrimSpace(value)))
	switch level {
	case LevelEvaluator, LevelManager:
		return level, true
	}
	return "", false
}

// ResetMode selects how much submission history a reset keeps.
type ResetMode int

const (
	// ResetRecall flips the flag but keeps the submitted-at timestamp for audit.
	ResetRecall ResetMode = iota
	// ResetFull clears both flag and timestamp.
	ResetFull
)

const (
	ActionApprove          = "evaluation.step.approve"
	ActionRequestRevision  = "evaluation.step.request_revision"
	ActionResetPending     = "evaluation.step.reset_pending"
	ActionRespondRevision  = "evaluation.revision.respond"
	ActionMarkRevisionRead = "evaluation.revision.read"
	ActionSaveItem         = "evaluation.item.save"
	ActionSubmitItem       = "evaluation.item.submit"
	ActionResetItem        = "evaluation.item.reset"
)
