package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/store"
)

// workflowColumns is the column list used for SELECT statements on the
// workflows table.
const workflowColumns = `id, entity_type, entity_id, current_gate, status,
	requester_id, version, created_at, updated_at, deleted_at`

// requestColumns is the column list used for SELECT statements on the
// approval_requests table.
const requestColumns = `id, workflow_id, entity_type, gate_name, requester_id,
	status, self_check, reviewer_checklist, assigned_evaluators,
	decision, decided_by, decided_at, opened_at, due_at, escalation_level`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// notFound maps sql.ErrNoRows onto the store's sentinel.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// isUniqueViolation reports whether err is a Postgres unique violation on the
// named constraint or index.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

func queryCreateWorkflow(ctx context.Context, db executor, wf *model.WorkflowInstance) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO workflows (
			id, entity_type, entity_id, current_gate, status,
			requester_id, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		wf.ID,
		string(wf.EntityType),
		wf.EntityID,
		nullString(wf.CurrentGate),
		string(wf.Status),
		wf.RequesterID,
		wf.Version,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	// Two concurrent starts for the same entity race past the existence
	// check; the partial unique index turns the loser into a typed error.
	if isUniqueViolation(err, "workflows_entity_live") {
		return store.ErrDuplicateWorkflow
	}
	return err
}

func queryGetWorkflow(ctx context.Context, db executor, entityType model.EntityType, entityID string) (*model.WorkflowInstance, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows
		WHERE entity_type = $1 AND entity_id = $2 AND deleted_at IS NULL`,
		string(entityType), entityID)
	wf, err := scanWorkflow(row)
	if err != nil {
		return nil, notFound(err)
	}
	return wf, nil
}

func queryGetWorkflowByID(ctx context.Context, db executor, id string) (*model.WorkflowInstance, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+workflowColumns+`
		FROM workflows
		WHERE id = $1 AND deleted_at IS NULL`, id)
	wf, err := scanWorkflow(row)
	if err != nil {
		return nil, notFound(err)
	}
	return wf, nil
}

func queryUpdateWorkflowGate(ctx context.Context, db executor, wf *model.WorkflowInstance, expectedVersion int) error {
	res, err := db.ExecContext(ctx, `
		UPDATE workflows
		SET current_gate = $2, status = $3, version = $4, updated_at = $5
		WHERE id = $1 AND version = $6 AND deleted_at IS NULL`,
		wf.ID,
		nullString(wf.CurrentGate),
		string(wf.Status),
		wf.Version,
		wf.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	// Zero rows means either the row vanished or another transition bumped
	// the version first; both read as a conflict to the caller.
	if n == 0 {
		return store.ErrVersionConflict
	}
	return nil
}

func querySoftDeleteWorkflow(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE workflows SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryAppendGateRecord(ctx context.Context, db executor, rec *model.GateRecord) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO gate_records (workflow_id, gate_name, request_id, decision, decided_by, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		rec.WorkflowID,
		rec.GateName,
		rec.RequestID,
		string(rec.Decision),
		rec.DecidedBy,
		rec.OpenedAt,
		rec.ClosedAt,
	).Scan(&rec.ID)
}

func queryGetHistory(ctx context.Context, db executor, workflowID string) ([]*model.GateRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, workflow_id, gate_name, request_id, decision, decided_by, opened_at, closed_at
		FROM gate_records
		WHERE workflow_id = $1
		ORDER BY closed_at ASC, id ASC`,
		workflowID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGateRecords(rows)
}

func queryCreateRequest(ctx context.Context, db executor, req *model.ApprovalRequest) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO approval_requests (
			id, workflow_id, entity_type, gate_name, requester_id,
			status, self_check, reviewer_checklist, assigned_evaluators,
			opened_at, due_at, escalation_level
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		req.ID,
		req.WorkflowID,
		string(req.EntityType),
		req.GateName,
		req.RequesterID,
		string(req.Status),
		boolMapJSON(req.SelfCheck),
		boolMapJSON(req.ReviewerChecklist),
		pq.Array(req.AssignedEvaluators),
		req.OpenedAt,
		req.DueAt,
		req.EscalationLevel,
	)
	return err
}

func queryGetRequest(ctx context.Context, db executor, id string) (*model.ApprovalRequest, error) {
	row := db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM approval_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		return nil, notFound(err)
	}

	// Attach the consensus snapshot when one has been computed.
	res, err := queryGetConsensus(ctx, db, id)
	if err != nil {
		return nil, err
	}
	req.Consensus = res
	return req, nil
}

func queryGetOpenRequest(ctx context.Context, db executor, workflowID string) (*model.ApprovalRequest, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE workflow_id = $1 AND status = 'open'`,
		workflowID)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func querySetChecklistItem(ctx context.Context, db executor, id string, reviewer bool, key string, value bool) error {
	column := "self_check"
	if reviewer {
		column = "reviewer_checklist"
	}
	res, err := db.ExecContext(ctx, `
		UPDATE approval_requests
		SET `+column+` = jsonb_set(COALESCE(`+column+`, '{}'::jsonb), ARRAY[$2], to_jsonb($3::boolean))
		WHERE id = $1 AND status = 'open'`,
		id, key, value,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func querySetAssignedEvaluators(ctx context.Context, db executor, id string, evaluators []string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE approval_requests
		SET assigned_evaluators = $2
		WHERE id = $1 AND status = 'open'`,
		id, pq.Array(evaluators),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryDecideRequest(ctx context.Context, db executor, id string, decision model.Decision, decidedBy string, decidedAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE approval_requests
		SET status = 'decided', decision = $2, decided_by = $3, decided_at = $4
		WHERE id = $1 AND status = 'open'`,
		id, string(decision), decidedBy, decidedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func queryListOpenRequests(ctx context.Context, db executor) ([]*model.ApprovalRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM approval_requests
		WHERE status = 'open'
		ORDER BY due_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequests(rows)
}

func queryListOverdue(ctx context.Context, db executor, filter model.OverdueFilter) ([]*model.ApprovalRequest, int, error) {
	var (
		whereClauses = []string{"status = 'open'", "due_at < NOW()"}
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.MinLevel > 0 {
		whereClauses = append(whereClauses, "escalation_level >= "+nextArg())
		args = append(args, filter.MinLevel)
	}
	if filter.EntityType != "" {
		whereClauses = append(whereClauses, "entity_type = "+nextArg())
		args = append(args, string(filter.EntityType))
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	query := "SELECT COUNT(*) OVER() AS total_count, " + requestColumns +
		" FROM approval_requests WHERE " + strings.Join(whereClauses, " AND ") +
		" ORDER BY escalation_level DESC, due_at ASC"

	if filter.Limit > 0 {
		query += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list overdue: %w", err)
	}
	defer rows.Close()

	var reqs []*model.ApprovalRequest
	var total int
	for rows.Next() {
		r, t, err := scanRequestWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan overdue: %w", err)
		}
		total = t
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan overdue: %w", err)
	}
	return reqs, total, nil
}

func queryAddEvaluation(ctx context.Context, db executor, e *model.ExpertEvaluation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO evaluations (request_id, evaluator_id, scores, overall_score, recommendation, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.RequestID,
		e.EvaluatorID,
		intMapJSON(e.Scores),
		e.OverallScore,
		string(e.Recommendation),
		e.SubmittedAt,
	)
	return err
}

func queryGetEvaluations(ctx context.Context, db executor, requestID string) ([]*model.ExpertEvaluation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT request_id, evaluator_id, scores, overall_score, recommendation, submitted_at
		FROM evaluations
		WHERE request_id = $1
		ORDER BY submitted_at ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvaluations(rows)
}

func querySetConsensus(ctx context.Context, db executor, requestID string, res *model.ConsensusResult) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO consensus_results (request_id, method, aggregate_score, recommendation, agreement_pct, evaluators, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (request_id) DO UPDATE SET
			method = $2, aggregate_score = $3, recommendation = $4,
			agreement_pct = $5, evaluators = $6, computed_at = $7`,
		requestID,
		res.Method,
		res.AggregateScore,
		string(res.Recommendation),
		res.AgreementPct,
		res.Evaluators,
		res.ComputedAt,
	)
	return err
}

func queryGetConsensus(ctx context.Context, db executor, requestID string) (*model.ConsensusResult, error) {
	row := db.QueryRowContext(ctx, `
		SELECT method, aggregate_score, recommendation, agreement_pct, evaluators, computed_at
		FROM consensus_results
		WHERE request_id = $1`,
		requestID)
	res, err := scanConsensus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func queryEscalateRequest(ctx context.Context, db executor, id string, fromLevel, toLevel int) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE approval_requests
		SET escalation_level = $3
		WHERE id = $1 AND escalation_level = $2 AND status = 'open'`,
		id, fromLevel, toLevel,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func queryRecordEscalation(ctx context.Context, db executor, ev *model.EscalationEvent) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO escalation_events (request_id, from_level, to_level, days_overdue, raised_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		ev.RequestID, ev.FromLevel, ev.ToLevel, ev.DaysOverdue, ev.RaisedAt,
	).Scan(&ev.ID)
}

func queryGetEscalations(ctx context.Context, db executor, requestID string) ([]*model.EscalationEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, request_id, from_level, to_level, days_overdue, raised_at
		FROM escalation_events
		WHERE request_id = $1
		ORDER BY raised_at ASC, id ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEscalations(rows)
}

func queryRecordAudit(ctx context.Context, db executor, entry *model.AuditEntry) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO audit_log (topic, workflow_id, request_id, actor, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		entry.Topic,
		nullString(entry.WorkflowID),
		nullString(entry.RequestID),
		nullString(entry.Actor),
		jsonbBytes(entry.Payload),
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func queryGetAuditTrail(ctx context.Context, db executor, requestID string) ([]*model.AuditEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, workflow_id, request_id, actor, payload, created_at
		FROM audit_log
		WHERE request_id = $1
		ORDER BY created_at ASC, id ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditEntries(rows)
}
