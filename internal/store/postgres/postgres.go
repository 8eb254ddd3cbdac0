// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error {
	return queryCreateWorkflow(ctx, s.db, wf)
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, entityType model.EntityType, entityID string) (*model.WorkflowInstance, error) {
	return queryGetWorkflow(ctx, s.db, entityType, entityID)
}

func (s *PostgresStore) GetWorkflowByID(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	return queryGetWorkflowByID(ctx, s.db, id)
}

func (s *PostgresStore) UpdateWorkflowGate(ctx context.Context, wf *model.WorkflowInstance, expectedVersion int) error {
	return queryUpdateWorkflowGate(ctx, s.db, wf, expectedVersion)
}

func (s *PostgresStore) SoftDeleteWorkflow(ctx context.Context, id string) error {
	return querySoftDeleteWorkflow(ctx, s.db, id)
}

func (s *PostgresStore) AppendGateRecord(ctx context.Context, rec *model.GateRecord) error {
	return queryAppendGateRecord(ctx, s.db, rec)
}

func (s *PostgresStore) GetHistory(ctx context.Context, workflowID string) ([]*model.GateRecord, error) {
	return queryGetHistory(ctx, s.db, workflowID)
}

func (s *PostgresStore) CreateRequest(ctx context.Context, req *model.ApprovalRequest) error {
	return queryCreateRequest(ctx, s.db, req)
}

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	return queryGetRequest(ctx, s.db, id)
}

func (s *PostgresStore) GetOpenRequest(ctx context.Context, workflowID string) (*model.ApprovalRequest, error) {
	return queryGetOpenRequest(ctx, s.db, workflowID)
}

func (s *PostgresStore) SetChecklistItem(ctx context.Context, id string, reviewer bool, key string, value bool) error {
	return querySetChecklistItem(ctx, s.db, id, reviewer, key, value)
}

func (s *PostgresStore) SetAssignedEvaluators(ctx context.Context, id string, evaluators []string) error {
	return querySetAssignedEvaluators(ctx, s.db, id, evaluators)
}

func (s *PostgresStore) DecideRequest(ctx context.Context, id string, decision model.Decision, decidedBy string, decidedAt time.Time) error {
	return queryDecideRequest(ctx, s.db, id, decision, decidedBy, decidedAt)
}

func (s *PostgresStore) ListOpenRequests(ctx context.Context) ([]*model.ApprovalRequest, error) {
	return queryListOpenRequests(ctx, s.db)
}

func (s *PostgresStore) ListOverdue(ctx context.Context, filter model.OverdueFilter) ([]*model.ApprovalRequest, int, error) {
	return queryListOverdue(ctx, s.db, filter)
}

func (s *PostgresStore) AddEvaluation(ctx context.Context, e *model.ExpertEvaluation) error {
	return queryAddEvaluation(ctx, s.db, e)
}

func (s *PostgresStore) GetEvaluations(ctx context.Context, requestID string) ([]*model.ExpertEvaluation, error) {
	return queryGetEvaluations(ctx, s.db, requestID)
}

func (s *PostgresStore) SetConsensus(ctx context.Context, requestID string, res *model.ConsensusResult) error {
	return querySetConsensus(ctx, s.db, requestID, res)
}

func (s *PostgresStore) EscalateRequest(ctx context.Context, id string, fromLevel, toLevel int) (bool, error) {
	return queryEscalateRequest(ctx, s.db, id, fromLevel, toLevel)
}

func (s *PostgresStore) RecordEscalation(ctx context.Context, ev *model.EscalationEvent) error {
	return queryRecordEscalation(ctx, s.db, ev)
}

func (s *PostgresStore) GetEscalations(ctx context.Context, requestID string) ([]*model.EscalationEvent, error) {
	return queryGetEscalations(ctx, s.db, requestID)
}

func (s *PostgresStore) RecordAudit(ctx context.Context, entry *model.AuditEntry) error {
	return queryRecordAudit(ctx, s.db, entry)
}

func (s *PostgresStore) GetAuditTrail(ctx context.Context, requestID string) ([]*model.AuditEntry, error) {
	return queryGetAuditTrail(ctx, s.db, requestID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error {
	return queryCreateWorkflow(ctx, s.tx, wf)
}

func (s *txStore) GetWorkflow(ctx context.Context, entityType model.EntityType, entityID string) (*model.WorkflowInstance, error) {
	return queryGetWorkflow(ctx, s.tx, entityType, entityID)
}

func (s *txStore) GetWorkflowByID(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	return queryGetWorkflowByID(ctx, s.tx, id)
}

func (s *txStore) UpdateWorkflowGate(ctx context.Context, wf *model.WorkflowInstance, expectedVersion int) error {
	return queryUpdateWorkflowGate(ctx, s.tx, wf, expectedVersion)
}

func (s *txStore) SoftDeleteWorkflow(ctx context.Context, id string) error {
	return querySoftDeleteWorkflow(ctx, s.tx, id)
}

func (s *txStore) AppendGateRecord(ctx context.Context, rec *model.GateRecord) error {
	return queryAppendGateRecord(ctx, s.tx, rec)
}

func (s *txStore) GetHistory(ctx context.Context, workflowID string) ([]*model.GateRecord, error) {
	return queryGetHistory(ctx, s.tx, workflowID)
}

func (s *txStore) CreateRequest(ctx context.Context, req *model.ApprovalRequest) error {
	return queryCreateRequest(ctx, s.tx, req)
}

func (s *txStore) GetRequest(ctx context.Context, id string) (*model.ApprovalRequest, error) {
	return queryGetRequest(ctx, s.tx, id)
}

func (s *txStore) GetOpenRequest(ctx context.Context, workflowID string) (*model.ApprovalRequest, error) {
	return queryGetOpenRequest(ctx, s.tx, workflowID)
}

func (s *txStore) SetChecklistItem(ctx context.Context, id string, reviewer bool, key string, value bool) error {
	return querySetChecklistItem(ctx, s.tx, id, reviewer, key, value)
}

func (s *txStore) SetAssignedEvaluators(ctx context.Context, id string, evaluators []string) error {
	return querySetAssignedEvaluators(ctx, s.tx, id, evaluators)
}

func (s *txStore) DecideRequest(ctx context.Context, id string, decision model.Decision, decidedBy string, decidedAt time.Time) error {
	return queryDecideRequest(ctx, s.tx, id, decision, decidedBy, decidedAt)
}

func (s *txStore) ListOpenRequests(ctx context.Context) ([]*model.ApprovalRequest, error) {
	return queryListOpenRequests(ctx, s.tx)
}

func (s *txStore) ListOverdue(ctx context.Context, filter model.OverdueFilter) ([]*model.ApprovalRequest, int, error) {
	return queryListOverdue(ctx, s.tx, filter)
}

func (s *txStore) AddEvaluation(ctx context.Context, e *model.ExpertEvaluation) error {
	return queryAddEvaluation(ctx, s.tx, e)
}

func (s *txStore) GetEvaluations(ctx context.Context, requestID string) ([]*model.ExpertEvaluation, error) {
	return queryGetEvaluations(ctx, s.tx, requestID)
}

func (s *txStore) SetConsensus(ctx context.Context, requestID string, res *model.ConsensusResult) error {
	return querySetConsensus(ctx, s.tx, requestID, res)
}

func (s *txStore) EscalateRequest(ctx context.Context, id string, fromLevel, toLevel int) (bool, error) {
	return queryEscalateRequest(ctx, s.tx, id, fromLevel, toLevel)
}

func (s *txStore) RecordEscalation(ctx context.Context, ev *model.EscalationEvent) error {
	return queryRecordEscalation(ctx, s.tx, ev)
}

func (s *txStore) GetEscalations(ctx context.Context, requestID string) ([]*model.EscalationEvent, error) {
	return queryGetEscalations(ctx, s.tx, requestID)
}

func (s *txStore) RecordAudit(ctx context.Context, entry *model.AuditEntry) error {
	return queryRecordAudit(ctx, s.tx, entry)
}

func (s *txStore) GetAuditTrail(ctx context.Context, requestID string) ([]*model.AuditEntry, error) {
	return queryGetAuditTrail(ctx, s.tx, requestID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
