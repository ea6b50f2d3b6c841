package evaluation

import "time"

type EvaluationItem struct {
	ID                     string     `json:"id"`
	PeriodID               string     `json:"periodId"`
	EmployeeID             string     `json:"employeeId"`
	Step                   Step       `json:"step"`
	WBSItemID              string     `json:"wbsItemId"`
	EvaluatorID            string     `json:"evaluatorId,omitempty"`
	ProjectID              string     `json:"projectId,omitempty"`
	Content                string     `json:"content"`
	Score                  *float64   `json:"score,omitempty"`
	SubmittedToEvaluator   bool       `json:"submittedToEvaluator"`
	SubmittedToEvaluatorAt *time.Time `json:"submittedToEvaluatorAt,omitempty"`
	SubmittedToManager     bool       `json:"submittedToManager"`
	SubmittedToManagerAt   *time.Time `json:"submittedToManagerAt,omitempty"`
	CreatedAt              time.Time  `json:"createdAt"`
	UpdatedAt              time.Time  `json:"updatedAt"`
}

// ItemKey is the natural tuple an EvaluationItem is upserted on.
type ItemKey struct {
	PeriodID    string
	EmployeeID  string
	Step        Step
	WBSItemID   string
	EvaluatorID string
}

func (i EvaluationItem) Key() ItemKey {
	return ItemKey{
		PeriodID:    i.PeriodID,
		EmployeeID:  i.EmployeeID,
		Step:        i.Step,
		WBSItemID:   i.WBSItemID,
		EvaluatorID: i.EvaluatorID,
	}
}

func (i EvaluationItem) Scope() Scope {
	return Scope{PeriodID: i.PeriodID, EmployeeID: i.EmployeeID, Step: i.Step, EvaluatorID: i.EvaluatorID}
}

// Drafted reports whether anything has been written into the item.
func (i EvaluationItem) Drafted() bool {
	return i.Content != "" || i.Score != nil
}

type StepApprovalRecord struct {
	PeriodID    string     `json:"periodId"`
	EmployeeID  string     `json:"employeeId"`
	Step        Step       `json:"step"`
	EvaluatorID string     `json:"evaluatorId,omitempty"`
	Status      Status     `json:"status"`
	ApprovedBy  string     `json:"approvedBy,omitempty"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	UpdatedBy   string     `json:"updatedBy,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (r StepApprovalRecord) Key() RecordKey {
	return RecordKey{PeriodID: r.PeriodID, EmployeeID: r.EmployeeID, Step: r.Step, EvaluatorID: r.EvaluatorID}
}

type RevisionRequest struct {
	ID              string     `json:"id"`
	PeriodID        string     `json:"periodId"`
	EmployeeID      string     `json:"employeeId"`
	Step            Step       `json:"step"`
	EvaluatorID     string     `json:"evaluatorId,omitempty"`
	RecipientID     string     `json:"recipientId"`
	RequestedBy     string     `json:"requestedBy"`
	Comment         string     `json:"comment"`
	IsCompleted     bool       `json:"isCompleted"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	ResponseComment string     `json:"responseComment,omitempty"`
	IsRead          bool       `json:"isRead"`
	ReadAt          *time.Time `json:"readAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (r RevisionRequest) Open() bool {
	return !r.IsCompleted
}

func (r RevisionRequest) Scope() Scope {
	return Scope{PeriodID: r.PeriodID, EmployeeID: r.EmployeeID, Step: r.Step, EvaluatorID: r.EvaluatorID}
}

type ItemFilter struct {
	PeriodID    string
	EmployeeID  string
	Step        Step
	EvaluatorID string
	ProjectID   string
}

type RevisionFilter struct {
	PeriodID    string
	EmployeeID  string
	Step        Step
	RecipientID string
	IsCompleted *bool
}

// WBSAssignment is one work item the assignment service has put on an employee's plan.
type WBSAssignment struct {
	WBSItemID string `json:"wbsItemId" yaml:"wbsItemId"`
	ProjectID string `json:"projectId" yaml:"projectId"`
}

type StepProgress struct {
	Status                 Status `json:"status"`
	AssignedCount          int    `json:"assignedCount"`
	CompletedCount         int    `json:"completedCount"`
	SubmittedToEvaluator   int    `json:"submittedToEvaluatorCount"`
	IsSubmittedToEvaluator bool   `json:"isSubmittedToEvaluator"`
}

type EvaluatorProgress struct {
	EvaluatorID string `json:"evaluatorId"`
	StepProgress
}

type SecondaryProgress struct {
	Aggregate  Status              `json:"aggregate"`
	Evaluators []EvaluatorProgress `json:"evaluators"`
}

type EmployeeStatus struct {
	PeriodID            string            `json:"periodId"`
	EmployeeID          string            `json:"employeeId"`
	CriteriaSetup       StepProgress      `json:"criteriaSetup"`
	SelfEvaluation      StepProgress      `json:"selfEvaluation"`
	PrimaryEvaluation   StepProgress      `json:"primaryEvaluation"`
	PrimaryEvaluatorID  string            `json:"primaryEvaluatorId,omitempty"`
	SecondaryEvaluation SecondaryProgress `json:"secondaryEvaluation"`
}

type ItemResult struct {
	ItemID string `json:"itemId"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type BulkResult struct {
	SubmittedCount int          `json:"submittedCount"`
	FailedCount    int          `json:"failedCount"`
	Results        []ItemResult `json:"results"`
}

// TransitionResult describes what an orchestrator action changed.
type TransitionResult struct {
	Scope           Scope            `json:"scope"`
	Previous        Status           `json:"previousStatus"`
	Current         Status           `json:"currentStatus"`
	ItemsChanged    int              `json:"itemsChanged"`
	Revision        *RevisionRequest `json:"revision,omitempty"`
	RevisionOpened  bool             `json:"revisionOpened"`
	RevisionsClosed int              `json:"revisionsClosed,omitempty"`
	NoOp            bool             `json:"noOp"`
}
