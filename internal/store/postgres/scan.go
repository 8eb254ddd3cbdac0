package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/civora/approvals/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanWorkflow scans a single row into a model.WorkflowInstance.
// The row must contain columns in the order defined by workflowColumns.
func scanWorkflow(row scannable) (*model.WorkflowInstance, error) {
	var wf model.WorkflowInstance
	var (
		currentGate sql.NullString
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&wf.ID,
		&wf.EntityType,
		&wf.EntityID,
		&currentGate,
		&wf.Status,
		&wf.RequesterID,
		&wf.Version,
		&wf.CreatedAt,
		&wf.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	wf.CurrentGate = currentGate.String
	if deletedAt.Valid {
		t := deletedAt.Time
		wf.DeletedAt = &t
	}
	return &wf, nil
}

// requestScanTargets binds the scan destinations for requestColumns.
type requestScanTargets struct {
	req        *model.ApprovalRequest
	selfCheck  []byte
	reviewer   []byte
	evaluators pq.StringArray
	decision   sql.NullString
	decidedBy  sql.NullString
	decidedAt  sql.NullTime
}

func (t *requestScanTargets) dests() []any {
	return []any{
		&t.req.ID,
		&t.req.WorkflowID,
		&t.req.EntityType,
		&t.req.GateName,
		&t.req.RequesterID,
		&t.req.Status,
		&t.selfCheck,
		&t.reviewer,
		&t.evaluators,
		&t.decision,
		&t.decidedBy,
		&t.decidedAt,
		&t.req.OpenedAt,
		&t.req.DueAt,
		&t.req.EscalationLevel,
	}
}

func (t *requestScanTargets) finish() error {
	var err error
	if t.req.SelfCheck, err = boolMapFromJSON(t.selfCheck); err != nil {
		return fmt.Errorf("self_check: %w", err)
	}
	if t.req.ReviewerChecklist, err = boolMapFromJSON(t.reviewer); err != nil {
		return fmt.Errorf("reviewer_checklist: %w", err)
	}
	t.req.AssignedEvaluators = []string(t.evaluators)
	t.req.Decision = model.Decision(t.decision.String)
	t.req.DecidedBy = t.decidedBy.String
	if t.decidedAt.Valid {
		at := t.decidedAt.Time
		t.req.DecidedAt = &at
	}
	return nil
}

// scanRequest scans a single row into a model.ApprovalRequest.
// The row must contain columns in the order defined by requestColumns.
func scanRequest(row scannable) (*model.ApprovalRequest, error) {
	t := requestScanTargets{req: &model.ApprovalRequest{}}
	if err := row.Scan(t.dests()...); err != nil {
		return nil, err
	}
	if err := t.finish(); err != nil {
		return nil, err
	}
	return t.req, nil
}

// scanRequestWithTotal scans a row that has a leading total_count column
// followed by the standard request columns. Used by queryListOverdue with
// COUNT(*) OVER().
func scanRequestWithTotal(row scannable) (*model.ApprovalRequest, int, error) {
	var total int
	t := requestScanTargets{req: &model.ApprovalRequest{}}
	if err := row.Scan(append([]any{&total}, t.dests()...)...); err != nil {
		return nil, 0, err
	}
	if err := t.finish(); err != nil {
		return nil, 0, err
	}
	return t.req, total, nil
}

// scanRequests scans multiple rows into a slice of request pointers.
func scanRequests(rows *sql.Rows) ([]*model.ApprovalRequest, error) {
	var reqs []*model.ApprovalRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// scanGateRecord scans a single row into a model.GateRecord.
func scanGateRecord(row scannable) (*model.GateRecord, error) {
	var rec model.GateRecord
	err := row.Scan(
		&rec.ID,
		&rec.WorkflowID,
		&rec.GateName,
		&rec.RequestID,
		&rec.Decision,
		&rec.DecidedBy,
		&rec.OpenedAt,
		&rec.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// scanGateRecords scans multiple rows into a slice of gate record pointers.
func scanGateRecords(rows *sql.Rows) ([]*model.GateRecord, error) {
	var recs []*model.GateRecord
	for rows.Next() {
		rec, err := scanGateRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// scanEvaluation scans a single row into a model.ExpertEvaluation.
func scanEvaluation(row scannable) (*model.ExpertEvaluation, error) {
	var e model.ExpertEvaluation
	var scores []byte
	err := row.Scan(
		&e.RequestID,
		&e.EvaluatorID,
		&scores,
		&e.OverallScore,
		&e.Recommendation,
		&e.SubmittedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &e.Scores); err != nil {
			return nil, fmt.Errorf("scores: %w", err)
		}
	}
	return &e, nil
}

// scanEvaluations scans multiple rows into a slice of evaluation pointers.
func scanEvaluations(rows *sql.Rows) ([]*model.ExpertEvaluation, error) {
	var evals []*model.ExpertEvaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return evals, nil
}

// scanConsensus scans a single row into a model.ConsensusResult.
func scanConsensus(row scannable) (*model.ConsensusResult, error) {
	var res model.ConsensusResult
	err := row.Scan(
		&res.Method,
		&res.AggregateScore,
		&res.Recommendation,
		&res.AgreementPct,
		&res.Evaluators,
		&res.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// scanEscalation scans a single row into a model.EscalationEvent.
func scanEscalation(row scannable) (*model.EscalationEvent, error) {
	var ev model.EscalationEvent
	err := row.Scan(
		&ev.ID,
		&ev.RequestID,
		&ev.FromLevel,
		&ev.ToLevel,
		&ev.DaysOverdue,
		&ev.RaisedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// scanEscalations scans multiple rows into a slice of escalation pointers.
func scanEscalations(rows *sql.Rows) ([]*model.EscalationEvent, error) {
	var evs []*model.EscalationEvent
	for rows.Next() {
		ev, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		evs = append(evs, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return evs, nil
}

// scanAuditEntry scans a single row into a model.AuditEntry.
func scanAuditEntry(row scannable) (*model.AuditEntry, error) {
	var entry model.AuditEntry
	var (
		workflowID sql.NullString
		requestID  sql.NullString
		actor      sql.NullString
		payload    []byte
	)
	err := row.Scan(&entry.ID, &entry.Topic, &workflowID, &requestID, &actor, &payload, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.WorkflowID = workflowID.String
	entry.RequestID = requestID.String
	entry.Actor = actor.String
	if len(payload) > 0 {
		entry.Payload = json.RawMessage(payload)
	}
	return &entry, nil
}

// scanAuditEntries scans multiple rows into a slice of audit entry pointers.
func scanAuditEntries(rows *sql.Rows) ([]*model.AuditEntry, error) {
	var entries []*model.AuditEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}

// boolMapJSON marshals a checklist map for a JSONB column. A nil map is
// stored as an empty object so reads never see NULL.
func boolMapJSON(m map[string]bool) []byte {
	if m == nil {
		m = map[string]bool{}
	}
	b, _ := json.Marshal(m)
	return b
}

// boolMapFromJSON unmarshals a JSONB checklist column.
func boolMapFromJSON(b []byte) (map[string]bool, error) {
	m := make(map[string]bool)
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// intMapJSON marshals a scores map for a JSONB column.
func intMapJSON(m map[string]int) []byte {
	if m == nil {
		m = map[string]int{}
	}
	b, _ := json.Marshal(m)
	return b
}
