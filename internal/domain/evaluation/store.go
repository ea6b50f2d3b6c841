package evaluation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"perfhrm/internal/platform/db"
)

// Store is the Postgres implementation of StoreAPI. Scope transactions are
// serialized with a transaction-scoped advisory lock on the scope key.
type Store struct {
	DB db.Querier
	pgQueries
}

func NewStore(q db.Querier) *Store {
	return &Store{DB: q, pgQueries: pgQueries{q: q}}
}

func (s *Store) WithScopeTx(ctx context.Context, lockKey string, fn func(tx Tx) error) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", lockKey); err != nil {
		rollbackTx(ctx, tx, lockKey)
		return err
	}
	if err := fn(pgQueries{q: tx}); err != nil {
		rollbackTx(ctx, tx, lockKey)
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) ReadSnapshot(ctx context.Context, fn func(r Reader) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if starter, ok := s.DB.(db.TxStarter); ok {
		tx, err = starter.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	} else {
		tx, err = s.DB.Begin(ctx)
	}
	if err != nil {
		return err
	}
	if err := fn(pgQueries{q: tx}); err != nil {
		rollbackTx(ctx, tx, "snapshot")
		return err
	}
	return tx.Commit(ctx)
}

func rollbackTx(ctx context.Context, tx pgx.Tx, lockKey string) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Warn("evaluation rollback failed", "scope", lockKey, "err", err)
	}
}

// pgQueries runs the store statements against a pool or a transaction.
type pgQueries struct {
	q db.Querier
}

const itemColumns = `id, period_id, employee_id, step, wbs_item_id, evaluator_id, project_id, content, score,
    submitted_to_evaluator, submitted_to_evaluator_at, submitted_to_manager, submitted_to_manager_at,
    created_at, updated_at`

const revisionColumns = `id, period_id, employee_id, step, evaluator_id, recipient_id, requested_by, comment,
    is_completed, completed_at, response_comment, is_read, read_at, created_at`

func scanItem(row pgx.Row) (EvaluationItem, error) {
	var item EvaluationItem
	err := row.Scan(&item.ID, &item.PeriodID, &item.EmployeeID, &item.Step, &item.WBSItemID, &item.EvaluatorID,
		&item.ProjectID, &item.Content, &item.Score,
		&item.SubmittedToEvaluator, &item.SubmittedToEvaluatorAt, &item.SubmittedToManager, &item.SubmittedToManagerAt,
		&item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func scanRevision(row pgx.Row) (RevisionRequest, error) {
	var r RevisionRequest
	err := row.Scan(&r.ID, &r.PeriodID, &r.EmployeeID, &r.Step, &r.EvaluatorID, &r.RecipientID, &r.RequestedBy, &r.Comment,
		&r.IsCompleted, &r.CompletedAt, &r.ResponseComment, &r.IsRead, &r.ReadAt, &r.CreatedAt)
	return r, err
}

func noRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (p pgQueries) GetItem(ctx context.Context, itemID string) (EvaluationItem, error) {
	item, err := scanItem(p.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM evaluation_items WHERE id = $1`, itemID))
	return item, noRows(err)
}

func (p pgQueries) ListItems(ctx context.Context, filter ItemFilter) ([]EvaluationItem, error) {
	rows, err := p.q.Query(ctx, `
    SELECT `+itemColumns+`
    FROM evaluation_items
    WHERE ($1::text = '' OR period_id = $1)
      AND ($2::text = '' OR employee_id = $2)
      AND ($3::text = '' OR step = $3)
      AND ($4::text = '' OR evaluator_id = $4)
      AND ($5::text = '' OR project_id = $5)
    ORDER BY array_position(ARRAY['criteria','self','primary','secondary'], step), evaluator_id, wbs_item_id
  `, filter.PeriodID, filter.EmployeeID, string(filter.Step), filter.EvaluatorID, filter.ProjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]EvaluationItem, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (p pgQueries) GetApprovalRecord(ctx context.Context, key RecordKey) (StepApprovalRecord, error) {
	var r StepApprovalRecord
	err := p.q.QueryRow(ctx, `
    SELECT period_id, employee_id, step, evaluator_id, status, approved_by, approved_at, updated_by, updated_at
    FROM step_approvals
    WHERE period_id = $1 AND employee_id = $2 AND step = $3 AND evaluator_id = $4
  `, key.PeriodID, key.EmployeeID, string(key.Step), key.EvaluatorID).Scan(
		&r.PeriodID, &r.EmployeeID, &r.Step, &r.EvaluatorID, &r.Status, &r.ApprovedBy, &r.ApprovedAt, &r.UpdatedBy, &r.UpdatedAt)
	return r, noRows(err)
}

func (p pgQueries) ListApprovalRecords(ctx context.Context, periodID, employeeID string) ([]StepApprovalRecord, error) {
	rows, err := p.q.Query(ctx, `
    SELECT period_id, employee_id, step, evaluator_id, status, approved_by, approved_at, updated_by, updated_at
    FROM step_approvals
    WHERE period_id = $1 AND employee_id = $2
    ORDER BY array_position(ARRAY['criteria','self','primary','secondary'], step), evaluator_id
  `, periodID, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]StepApprovalRecord, 0)
	for rows.Next() {
		var r StepApprovalRecord
		if err := rows.Scan(&r.PeriodID, &r.EmployeeID, &r.Step, &r.EvaluatorID, &r.Status, &r.ApprovedBy, &r.ApprovedAt, &r.UpdatedBy, &r.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (p pgQueries) GetRevision(ctx context.Context, requestID string) (RevisionRequest, error) {
	r, err := scanRevision(p.q.QueryRow(ctx, `SELECT `+revisionColumns+` FROM revision_requests WHERE id = $1`, requestID))
	return r, noRows(err)
}

func (p pgQueries) ListRevisions(ctx context.Context, filter RevisionFilter) ([]RevisionRequest, error) {
	rows, err := p.q.Query(ctx, `
    SELECT `+revisionColumns+`
    FROM revision_requests
    WHERE ($1::text = '' OR period_id = $1)
      AND ($2::text = '' OR employee_id = $2)
      AND ($3::text = '' OR step = $3)
      AND ($4::text = '' OR recipient_id = $4)
      AND ($5::boolean IS NULL OR is_completed = $5)
    ORDER BY created_at DESC, id
  `, filter.PeriodID, filter.EmployeeID, string(filter.Step), filter.RecipientID, filter.IsCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]RevisionRequest, 0)
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// UpsertItem inserts on the natural key; an existing row keeps its id and
// submission state and only takes the new draft.
func (p pgQueries) UpsertItem(ctx context.Context, item EvaluationItem) (EvaluationItem, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	return scanItem(p.q.QueryRow(ctx, `
    INSERT INTO evaluation_items (id, period_id, employee_id, step, wbs_item_id, evaluator_id, project_id, content, score, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    ON CONFLICT (period_id, employee_id, step, wbs_item_id, evaluator_id)
      DO UPDATE SET content = EXCLUDED.content,
                    score = EXCLUDED.score,
                    project_id = EXCLUDED.project_id,
                    updated_at = EXCLUDED.updated_at
    RETURNING `+itemColumns,
		item.ID, item.PeriodID, item.EmployeeID, string(item.Step), item.WBSItemID, item.EvaluatorID, item.ProjectID,
		item.Content, item.Score, item.CreatedAt, item.UpdatedAt))
}

func (p pgQueries) UpdateItemSubmission(ctx context.Context, item EvaluationItem) error {
	tag, err := p.q.Exec(ctx, `
    UPDATE evaluation_items
    SET submitted_to_evaluator = $2, submitted_to_evaluator_at = $3,
        submitted_to_manager = $4, submitted_to_manager_at = $5,
        updated_at = $6
    WHERE id = $1
  `, item.ID, item.SubmittedToEvaluator, item.SubmittedToEvaluatorAt, item.SubmittedToManager, item.SubmittedToManagerAt, item.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p pgQueries) SaveApprovalRecord(ctx context.Context, r StepApprovalRecord) error {
	_, err := p.q.Exec(ctx, `
    INSERT INTO step_approvals (period_id, employee_id, step, evaluator_id, status, approved_by, approved_at, updated_by, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (period_id, employee_id, step, evaluator_id)
      DO UPDATE SET status = EXCLUDED.status,
                    approved_by = EXCLUDED.approved_by,
                    approved_at = EXCLUDED.approved_at,
                    updated_by = EXCLUDED.updated_by,
                    updated_at = EXCLUDED.updated_at
  `, r.PeriodID, r.EmployeeID, string(r.Step), r.EvaluatorID, string(r.Status), r.ApprovedBy, r.ApprovedAt, r.UpdatedBy, r.UpdatedAt)
	return err
}

func (p pgQueries) InsertRevision(ctx context.Context, r RevisionRequest) error {
	_, err := p.q.Exec(ctx, `
    INSERT INTO revision_requests (id, period_id, employee_id, step, evaluator_id, recipient_id, requested_by, comment,
      is_completed, completed_at, response_comment, is_read, read_at, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
  `, r.ID, r.PeriodID, r.EmployeeID, string(r.Step), r.EvaluatorID, r.RecipientID, r.RequestedBy, r.Comment,
		r.IsCompleted, r.CompletedAt, r.ResponseComment, r.IsRead, r.ReadAt, r.CreatedAt)
	return err
}

func (p pgQueries) UpdateRevision(ctx context.Context, r RevisionRequest) error {
	tag, err := p.q.Exec(ctx, `
    UPDATE revision_requests
    SET is_completed = $2, completed_at = $3, response_comment = $4, is_read = $5, read_at = $6
    WHERE id = $1
  `, r.ID, r.IsCompleted, r.CompletedAt, r.ResponseComment, r.IsRead, r.ReadAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
