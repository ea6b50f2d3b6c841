package notifications

const (
	TypeRevisionRequested = "evaluation_revision_requested"
	TypeRevisionCompleted = "evaluation_revision_completed"
	TypeStepApproved      = "evaluation_step_approved"
)
