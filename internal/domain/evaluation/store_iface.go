package evaluation

import "context"

// Reader is the read side shared by the store and its transactions.
// Lookups of a single row return ErrNotFound when it does not exist.
type Reader interface {
	GetItem(ctx context.Context, itemID string) (EvaluationItem, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]EvaluationItem, error)
	GetApprovalRecord(ctx context.Context, key RecordKey) (StepApprovalRecord, error)
	ListApprovalRecords(ctx context.Context, periodID, employeeID string) ([]StepApprovalRecord, error)
	GetRevision(ctx context.Context, requestID string) (RevisionRequest, error)
	ListRevisions(ctx context.Context, filter RevisionFilter) ([]RevisionRequest, error)
}

// Tx is a unit of work holding a scope lock. Writes become visible to other
// callers only when the function passed to WithScopeTx returns nil.
type Tx interface {
	Reader
	UpsertItem(ctx context.Context, item EvaluationItem) (EvaluationItem, error)
	UpdateItemSubmission(ctx context.Context, item EvaluationItem) error
	SaveApprovalRecord(ctx context.Context, record StepApprovalRecord) error
	InsertRevision(ctx context.Context, request RevisionRequest) error
	UpdateRevision(ctx context.Context, request RevisionRequest) error
}

type StoreAPI interface {
	Reader
	// WithScopeTx runs fn in one transaction serialized on lockKey.
	WithScopeTx(ctx context.Context, lockKey string, fn func(tx Tx) error) error
	// ReadSnapshot runs fn against a consistent read-only view.
	ReadSnapshot(ctx context.Context, fn func(r Reader) error) error
}

// AssignmentDirectory is the project/WBS assignment service. The engine only reads it.
type AssignmentDirectory interface {
	AssignedWBSItems(ctx context.Context, periodID, employeeID string) ([]WBSAssignment, error)
	AssignedEmployees(ctx context.Context, periodID string) ([]string, error)
}

// EvaluationLineDirectory maps an employee to its downward evaluators. For the
// primary step the first evaluator returned is the one in charge.
type EvaluationLineDirectory interface {
	Evaluators(ctx context.Context, periodID, employeeID string, step Step) ([]string, error)
}

// TransitionRecorder receives one observation per orchestrator action.
type TransitionRecorder interface {
	RecordTransition(action string, err error)
}
