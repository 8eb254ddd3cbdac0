package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/civora/approvals/internal/authz"
	"github.com/civora/approvals/internal/events"
	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/notify"
	"github.com/civora/approvals/internal/registry"
	"github.com/civora/approvals/internal/store"
)

const testCatalog = `
[[workflow]]
entity_type = "challenge"

  [[workflow.gate]]
  name = "intake"
  order = 1
  sla_days = 7
  allowed_decisions = ["approve", "reject", "withdraw"]

    [[workflow.gate.self_check]]
    key = "problem_statement"
    label = "Problem statement is complete"
    required = true

    [[workflow.gate.self_check]]
    key = "budget_attached"
    label = "Budget estimate attached"
    required = false

    [[workflow.gate.reviewer_check]]
    key = "in_scope"
    label = "Challenge is in program scope"
    required = true

    [workflow.gate.next]
    approve = "expert_review"
    reject = "@terminated"
    withdraw = "@terminated"

  [[workflow.gate]]
  name = "expert_review"
  order = 2
  sla_days = 14
  allowed_decisions = ["approve", "reject", "conditional"]

    [workflow.gate.consensus]
    required = true
    threshold_pct = 66
    min_evaluators = 2

    [workflow.gate.next]
    approve = "@completed"
    reject = "@terminated"
    conditional = "intake"
`

// memStore is an in-memory store.Store for engine tests.
type memStore struct {
	mu          sync.Mutex
	workflows   map[string]*model.WorkflowInstance
	requests    map[string]*model.ApprovalRequest
	history     map[string][]*model.GateRecord
	evaluations map[string][]*model.ExpertEvaluation
	consensus   map[string]*model.ConsensusResult
	escalations map[string][]*model.EscalationEvent
	audit       map[string][]*model.AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		workflows:   make(map[string]*model.WorkflowInstance),
		requests:    make(map[string]*model.ApprovalRequest),
		history:     make(map[string][]*model.GateRecord),
		evaluations: make(map[string][]*model.ExpertEvaluation),
		consensus:   make(map[string]*model.ConsensusResult),
		escalations: make(map[string][]*model.EscalationEvent),
		audit:       make(map[string][]*model.AuditEntry),
	}
}

func (m *memStore) CreateWorkflow(_ context.Context, wf *model.WorkflowInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *memStore) GetWorkflow(_ context.Context, entityType model.EntityType, entityID string) (*model.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wf := range m.workflows {
		if wf.EntityType == entityType && wf.EntityID == entityID && wf.DeletedAt == nil {
			cp := *wf
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetWorkflowByID(_ context.Context, id string) (*model.WorkflowInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok || wf.DeletedAt != nil {
		return nil, store.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (m *memStore) UpdateWorkflowGate(_ context.Context, wf *model.WorkflowInstance, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.workflows[wf.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	cp := *wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *memStore) SoftDeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	wf.DeletedAt = &now
	return nil
}

func (m *memStore) AppendGateRecord(_ context.Context, rec *model.GateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	cp.ID = int64(len(m.history[rec.WorkflowID]) + 1)
	m.history[rec.WorkflowID] = append(m.history[rec.WorkflowID], &cp)
	return nil
}

func (m *memStore) GetHistory(_ context.Context, workflowID string) ([]*model.GateRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.GateRecord(nil), m.history[workflowID]...), nil
}

func (m *memStore) CreateRequest(_ context.Context, req *model.ApprovalRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memStore) GetRequest(_ context.Context, id string) (*model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *req
	cp.SelfCheck = copyBoolMap(req.SelfCheck)
	cp.ReviewerChecklist = copyBoolMap(req.ReviewerChecklist)
	cp.Consensus = m.consensus[id]
	return &cp, nil
}

func (m *memStore) GetOpenRequest(_ context.Context, workflowID string) (*model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, req := range m.requests {
		if req.WorkflowID == workflowID && req.Status == model.RequestOpen {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) SetChecklistItem(_ context.Context, id string, reviewer bool, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	if reviewer {
		req.ReviewerChecklist[key] = value
	} else {
		req.SelfCheck[key] = value
	}
	return nil
}

func (m *memStore) SetAssignedEvaluators(_ context.Context, id string, evaluators []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	req.AssignedEvaluators = append([]string(nil), evaluators...)
	return nil
}

func (m *memStore) DecideRequest(_ context.Context, id string, decision model.Decision, decidedBy string, decidedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return store.ErrNotFound
	}
	req.Status = model.RequestDecided
	req.Decision = decision
	req.DecidedBy = decidedBy
	req.DecidedAt = &decidedAt
	return nil
}

func (m *memStore) ListOpenRequests(_ context.Context) ([]*model.ApprovalRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ApprovalRequest
	for _, req := range m.requests {
		if req.Status == model.RequestOpen {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) ListOverdue(_ context.Context, filter model.OverdueFilter) ([]*model.ApprovalRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ApprovalRequest
	for _, req := range m.requests {
		if req.Status == model.RequestOpen && req.EscalationLevel >= filter.MinLevel {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *memStore) AddEvaluation(_ context.Context, e *model.ExpertEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.evaluations[e.RequestID] = append(m.evaluations[e.RequestID], &cp)
	return nil
}

func (m *memStore) GetEvaluations(_ context.Context, requestID string) ([]*model.ExpertEvaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.ExpertEvaluation(nil), m.evaluations[requestID]...), nil
}

func (m *memStore) SetConsensus(_ context.Context, requestID string, res *model.ConsensusResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consensus[requestID] = res
	return nil
}

func (m *memStore) EscalateRequest(_ context.Context, id string, fromLevel, toLevel int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok || req.Status != model.RequestOpen || req.EscalationLevel != fromLevel {
		return false, nil
	}
	req.EscalationLevel = toLevel
	return true, nil
}

func (m *memStore) RecordEscalation(_ context.Context, ev *model.EscalationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ev
	m.escalations[ev.RequestID] = append(m.escalations[ev.RequestID], &cp)
	return nil
}

func (m *memStore) GetEscalations(_ context.Context, requestID string) ([]*model.EscalationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.EscalationEvent(nil), m.escalations[requestID]...), nil
}

func (m *memStore) RecordAudit(_ context.Context, entry *model.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.audit[entry.RequestID] = append(m.audit[entry.RequestID], &cp)
	return nil
}

func (m *memStore) GetAuditTrail(_ context.Context, requestID string) ([]*model.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.AuditEntry(nil), m.audit[requestID]...), nil
}

func (m *memStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *memStore) Close() error { return nil }

func copyBoolMap(in map[string]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// testEngine wires an engine over a fresh memStore with an AllowAll-free
// role table: rev-1 reviews challenges, coord-1 assigns, and exp-1 through
// exp-3 form the evaluator pool.
func testEngine(t *testing.T) (*Engine, *memStore) {
	t.Helper()
	st := newMemStore()
	return newTestEngine(t, st), st
}

// newTestEngine wires an engine over the given store, which is usually a
// memStore or a wrapper around one.
func newTestEngine(t *testing.T, st store.Store) *Engine {
	t.Helper()
	reg, err := registry.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	roles := &authz.StaticRoles{
		Reviewers:  map[model.EntityType][]string{"challenge": {"rev-1"}},
		Assigners:  map[model.EntityType][]string{"challenge": {"coord-1"}},
		Evaluators: map[model.EntityType][]string{"challenge": {"exp-1", "exp-2", "exp-3"}},
	}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return New(st, reg, &events.NoopPublisher{}, notify.Noop{}, roles, logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func mustStart(t *testing.T, eng *Engine) (*model.WorkflowInstance, *model.ApprovalRequest) {
	t.Helper()
	wf, req, err := eng.StartWorkflow(context.Background(), "challenge", "ch-100", "alice")
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	return wf, req
}

// completeIntake ticks every required item at the intake gate.
func completeIntake(t *testing.T, eng *Engine, requestID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := eng.SetSelfCheckItem(ctx, requestID, "alice", "problem_statement", true); err != nil {
		t.Fatalf("self check: %v", err)
	}
	if _, err := eng.SetReviewerItem(ctx, requestID, "rev-1", "in_scope", true); err != nil {
		t.Fatalf("reviewer check: %v", err)
	}
}

func TestStartWorkflow(t *testing.T) {
	eng, st := testEngine(t)
	wf, req := mustStart(t, eng)

	if wf.Status != model.WorkflowInGate || wf.CurrentGate != "intake" {
		t.Errorf("workflow = %s at %q, want in_gate at intake", wf.Status, wf.CurrentGate)
	}
	if wf.Version != 1 {
		t.Errorf("version = %d, want 1", wf.Version)
	}
	if req.GateName != "intake" || req.Status != model.RequestOpen {
		t.Errorf("request = %s at %q, want open at intake", req.Status, req.GateName)
	}
	if want := req.OpenedAt.AddDate(0, 0, 7); !req.DueAt.Equal(want) {
		t.Errorf("DueAt = %v, want %v", req.DueAt, want)
	}

	if _, _, err := eng.StartWorkflow(context.Background(), "challenge", "ch-100", "bob"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second start: err = %v, want ErrAlreadyStarted", err)
	}

	// Start is audited.
	trail, err := st.GetAuditTrail(context.Background(), req.ID)
	if err != nil || len(trail) != 1 {
		t.Fatalf("audit trail = %v (err %v), want one entry", trail, err)
	}
	if trail[0].Topic != events.TopicWorkflowStarted {
		t.Errorf("audit topic = %q", trail[0].Topic)
	}
}

func TestStartWorkflowUnknownEntityType(t *testing.T) {
	eng, _ := testEngine(t)
	if _, _, err := eng.StartWorkflow(context.Background(), "grant", "g-1", "alice"); !errors.Is(err, registry.ErrNotFound) {
		t.Errorf("err = %v, want registry.ErrNotFound", err)
	}
}

func TestSelfCheckRules(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	ctx := context.Background()

	if _, err := eng.SetSelfCheckItem(ctx, req.ID, "mallory", "problem_statement", true); !errors.Is(err, ErrNotRequester) {
		t.Errorf("non-requester: err = %v, want ErrNotRequester", err)
	}
	if _, err := eng.SetSelfCheckItem(ctx, req.ID, "alice", "no_such_item", true); !errors.Is(err, ErrUnknownChecklistItem) {
		t.Errorf("unknown key: err = %v, want ErrUnknownChecklistItem", err)
	}

	got, err := eng.SetSelfCheckItem(ctx, req.ID, "alice", "problem_statement", true)
	if err != nil {
		t.Fatalf("SetSelfCheckItem: %v", err)
	}
	if !got.SelfCheck["problem_statement"] {
		t.Error("item not recorded")
	}

	// Unchecking is allowed while open.
	got, err = eng.SetSelfCheckItem(ctx, req.ID, "alice", "problem_statement", false)
	if err != nil {
		t.Fatalf("uncheck: %v", err)
	}
	if got.SelfCheck["problem_statement"] {
		t.Error("uncheck not recorded")
	}
}

func TestReviewerChecklistRequiresRole(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	ctx := context.Background()

	if _, err := eng.SetReviewerItem(ctx, req.ID, "alice", "in_scope", true); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("requester as reviewer: err = %v, want ErrNotAuthorized", err)
	}
	if _, err := eng.SetReviewerItem(ctx, req.ID, "rev-1", "in_scope", true); err != nil {
		t.Errorf("reviewer: %v", err)
	}
}

func TestDecideBlockedByChecklist(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	ctx := context.Background()

	_, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionApprove)
	var incomplete *ChecklistIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want ChecklistIncompleteError", err)
	}
	if len(incomplete.Missing) != 2 {
		t.Errorf("missing = %v, want both required items", incomplete.Missing)
	}

	// Optional items never block.
	completeIntake(t, eng, req.ID)
	if _, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionApprove); err != nil {
		t.Errorf("decide after required items: %v", err)
	}
}

// uncheckOnDecideStore pulls a required self-check item right before the
// decide transaction runs, standing in for a concurrent handler whose
// un-check lands between the engine's validation read and its commit.
type uncheckOnDecideStore struct {
	*memStore
	uncheckID string
	done      bool
}

func (s *uncheckOnDecideStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	if s.uncheckID != "" && !s.done {
		s.done = true
		if err := s.memStore.SetChecklistItem(ctx, s.uncheckID, false, "problem_statement", false); err != nil {
			return err
		}
	}
	return s.memStore.RunInTransaction(ctx, fn)
}

func TestDecideSeesChecklistChangeBeforeCommit(t *testing.T) {
	st := &uncheckOnDecideStore{memStore: newMemStore()}
	eng := newTestEngine(t, st)
	_, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	ctx := context.Background()

	st.uncheckID = req.ID
	_, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionApprove)
	var incomplete *ChecklistIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want ChecklistIncompleteError", err)
	}

	// The decision did not freeze the request with a required item false.
	got, err := st.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != model.RequestOpen {
		t.Errorf("request status = %s, want still open", got.Status)
	}
	if got.SelfCheck["problem_statement"] {
		t.Error("self-check item unexpectedly true")
	}
}

// duplicateInsertStore reports every workflow insert as colliding with a live
// row, the way the database does when two starts race past the existence check.
type duplicateInsertStore struct {
	*memStore
}

func (s *duplicateInsertStore) CreateWorkflow(context.Context, *model.WorkflowInstance) error {
	return store.ErrDuplicateWorkflow
}

func (s *duplicateInsertStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

func TestStartWorkflowInsertRaceMapsToAlreadyStarted(t *testing.T) {
	eng := newTestEngine(t, &duplicateInsertStore{memStore: newMemStore()})

	if _, _, err := eng.StartWorkflow(context.Background(), "challenge", "ch-100", "alice"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("err = %v, want ErrAlreadyStarted", err)
	}
}

func TestDecideAdvancesToNextGate(t *testing.T) {
	eng, st := testEngine(t)
	wf, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	ctx := context.Background()

	gotWf, gotReq, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionApprove)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if gotWf.CurrentGate != "expert_review" || gotWf.Status != model.WorkflowInGate {
		t.Errorf("workflow = %s at %q, want in_gate at expert_review", gotWf.Status, gotWf.CurrentGate)
	}
	if gotWf.Version != 2 {
		t.Errorf("version = %d, want 2", gotWf.Version)
	}
	if gotReq.Status != model.RequestDecided || gotReq.Decision != model.DecisionApprove {
		t.Errorf("request not frozen: %+v", gotReq)
	}

	next, err := st.GetOpenRequest(ctx, wf.ID)
	if err != nil || next == nil {
		t.Fatalf("open request after advance: %v (err %v)", next, err)
	}
	if next.GateName != "expert_review" {
		t.Errorf("next gate = %q", next.GateName)
	}
	if want := next.OpenedAt.AddDate(0, 0, 14); !next.DueAt.Equal(want) {
		t.Errorf("next DueAt = %v, want %v", next.DueAt, want)
	}

	hist, err := st.GetHistory(ctx, wf.ID)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history = %v (err %v), want one record", hist, err)
	}
	if hist[0].GateName != "intake" || hist[0].Decision != model.DecisionApprove || hist[0].DecidedBy != "rev-1" {
		t.Errorf("history record = %+v", hist[0])
	}
}

func TestDecideRejectTerminates(t *testing.T) {
	eng, st := testEngine(t)
	wf, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	ctx := context.Background()

	gotWf, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionReject)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if gotWf.Status != model.WorkflowTerminated || gotWf.CurrentGate != "" {
		t.Errorf("workflow = %s at %q, want terminated", gotWf.Status, gotWf.CurrentGate)
	}
	if open, _ := st.GetOpenRequest(ctx, wf.ID); open != nil {
		t.Errorf("open request after termination: %+v", open)
	}
}

func TestWithdrawByRequester(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)

	// No checklist progress needed to withdraw.
	gotWf, _, err := eng.Decide(context.Background(), req.ID, "alice", model.DecisionWithdraw)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if gotWf.Status != model.WorkflowTerminated {
		t.Errorf("status = %s, want terminated", gotWf.Status)
	}
}

func TestDecideAuthz(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	ctx := context.Background()

	if _, _, err := eng.Decide(ctx, req.ID, "alice", model.DecisionApprove); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("requester approve: err = %v, want ErrNotAuthorized", err)
	}
	if _, _, err := eng.Decide(ctx, req.ID, "mallory", model.DecisionWithdraw); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("stranger withdraw: err = %v, want ErrNotAuthorized", err)
	}
}

func TestDecideUnknownDecision(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)

	if _, _, err := eng.Decide(context.Background(), req.ID, "rev-1", model.DecisionConditional); !errors.Is(err, ErrDecisionNotAllowed) {
		t.Errorf("err = %v, want ErrDecisionNotAllowed", err)
	}
}

func TestDecidedRequestIsFrozen(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	ctx := context.Background()

	if _, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionApprove); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	if _, err := eng.SetSelfCheckItem(ctx, req.ID, "alice", "problem_statement", false); !errors.Is(err, ErrRequestDecided) {
		t.Errorf("self check on decided: err = %v, want ErrRequestDecided", err)
	}
	if _, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionReject); !errors.Is(err, ErrRequestDecided) {
		t.Errorf("second decide: err = %v, want ErrRequestDecided", err)
	}
}

// advanceToReview walks a fresh workflow into the expert_review gate and
// returns the open review request.
func advanceToReview(t *testing.T, eng *Engine, st *memStore) *model.ApprovalRequest {
	t.Helper()
	wf, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	if _, _, err := eng.Decide(context.Background(), req.ID, "rev-1", model.DecisionApprove); err != nil {
		t.Fatalf("advance: %v", err)
	}
	next, err := st.GetOpenRequest(context.Background(), wf.ID)
	if err != nil || next == nil {
		t.Fatalf("no open review request (err %v)", err)
	}
	return next
}

func scores(v int) map[string]int {
	out := make(map[string]int, len(model.Dimensions))
	for _, d := range model.Dimensions {
		out[d] = v
	}
	return out
}

func TestAssignEvaluators(t *testing.T) {
	eng, st := testEngine(t)
	review := advanceToReview(t, eng, st)
	ctx := context.Background()

	if _, err := eng.AssignEvaluators(ctx, review.ID, "mallory", []string{"exp-1"}); !errors.Is(err, ErrNotAuthorized) {
		t.Errorf("unauthorized assign: err = %v, want ErrNotAuthorized", err)
	}

	got, err := eng.AssignEvaluators(ctx, review.ID, "coord-1", []string{"exp-1", "exp-2", "exp-1", ""})
	if err != nil {
		t.Fatalf("AssignEvaluators: %v", err)
	}
	if len(got.AssignedEvaluators) != 2 {
		t.Errorf("evaluators = %v, want deduped pair", got.AssignedEvaluators)
	}
}

func TestAssignEvaluatorsRejectsNonEvaluator(t *testing.T) {
	eng, st := testEngine(t)
	review := advanceToReview(t, eng, st)

	if _, err := eng.AssignEvaluators(context.Background(), review.ID, "coord-1", []string{"exp-1", "stranger"}); !errors.Is(err, ErrNotEvaluator) {
		t.Errorf("err = %v, want ErrNotEvaluator", err)
	}
}

func TestAssignEvaluatorsOnPlainGate(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)

	if _, err := eng.AssignEvaluators(context.Background(), req.ID, "coord-1", []string{"exp-1"}); !errors.Is(err, ErrConsensusNotRequired) {
		t.Errorf("err = %v, want ErrConsensusNotRequired", err)
	}
}

func TestSubmitEvaluationRules(t *testing.T) {
	eng, st := testEngine(t)
	review := advanceToReview(t, eng, st)
	ctx := context.Background()

	if _, err := eng.AssignEvaluators(ctx, review.ID, "coord-1", []string{"exp-1", "exp-2"}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	eval := &model.ExpertEvaluation{EvaluatorID: "exp-3", Scores: scores(80), Recommendation: model.RecommendApprove}
	if _, err := eng.SubmitEvaluation(ctx, review.ID, eval); !errors.Is(err, ErrNotAssigned) {
		t.Errorf("unassigned: err = %v, want ErrNotAssigned", err)
	}

	eval = &model.ExpertEvaluation{EvaluatorID: "exp-1", Scores: scores(80), Recommendation: model.RecommendApprove}
	res, err := eng.SubmitEvaluation(ctx, review.ID, eval)
	if err != nil {
		t.Fatalf("SubmitEvaluation: %v", err)
	}
	if res == nil || res.Evaluators != 1 {
		t.Fatalf("consensus after first evaluation = %+v", res)
	}
	if eval.OverallScore != 80 {
		t.Errorf("OverallScore = %v, want 80", eval.OverallScore)
	}

	dup := &model.ExpertEvaluation{EvaluatorID: "exp-1", Scores: scores(90), Recommendation: model.RecommendReject}
	if _, err := eng.SubmitEvaluation(ctx, review.ID, dup); !errors.Is(err, ErrDuplicateEvaluation) {
		t.Errorf("duplicate: err = %v, want ErrDuplicateEvaluation", err)
	}

	bad := &model.ExpertEvaluation{EvaluatorID: "exp-2", Scores: map[string]int{"relevance": 80}, Recommendation: model.RecommendApprove}
	if _, err := eng.SubmitEvaluation(ctx, review.ID, bad); err == nil {
		t.Error("incomplete scores accepted")
	}
}

func TestConsensusGatesDecision(t *testing.T) {
	eng, st := testEngine(t)
	review := advanceToReview(t, eng, st)
	ctx := context.Background()

	if _, err := eng.AssignEvaluators(ctx, review.ID, "coord-1", []string{"exp-1", "exp-2", "exp-3"}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	// Below quorum: one of two required evaluators has spoken.
	ev := &model.ExpertEvaluation{EvaluatorID: "exp-1", Scores: scores(85), Recommendation: model.RecommendApprove}
	if _, err := eng.SubmitEvaluation(ctx, review.ID, ev); err != nil {
		t.Fatalf("first evaluation: %v", err)
	}
	if _, _, err := eng.Decide(ctx, review.ID, "rev-1", model.DecisionApprove); !errors.Is(err, ErrConsensusNotReached) {
		t.Errorf("below quorum: err = %v, want ErrConsensusNotReached", err)
	}

	// Quorum met but agreement split 50/50 under the 66% threshold.
	ev = &model.ExpertEvaluation{EvaluatorID: "exp-2", Scores: scores(40), Recommendation: model.RecommendReject}
	if _, err := eng.SubmitEvaluation(ctx, review.ID, ev); err != nil {
		t.Fatalf("second evaluation: %v", err)
	}
	if _, _, err := eng.Decide(ctx, review.ID, "rev-1", model.DecisionApprove); !errors.Is(err, ErrConsensusNotReached) {
		t.Errorf("split vote: err = %v, want ErrConsensusNotReached", err)
	}

	// Third vote tips agreement to 2/3 approve.
	ev = &model.ExpertEvaluation{EvaluatorID: "exp-3", Scores: scores(75), Recommendation: model.RecommendApprove}
	if _, err := eng.SubmitEvaluation(ctx, review.ID, ev); err != nil {
		t.Fatalf("third evaluation: %v", err)
	}
	wf, _, err := eng.Decide(ctx, review.ID, "rev-1", model.DecisionApprove)
	if err != nil {
		t.Fatalf("decide after consensus: %v", err)
	}
	if wf.Status != model.WorkflowCompleted {
		t.Errorf("status = %s, want completed", wf.Status)
	}
}

func TestConditionalLoopsBackToIntake(t *testing.T) {
	eng, st := testEngine(t)
	review := advanceToReview(t, eng, st)
	ctx := context.Background()

	if _, err := eng.AssignEvaluators(ctx, review.ID, "coord-1", []string{"exp-1", "exp-2"}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	for _, id := range []string{"exp-1", "exp-2"} {
		ev := &model.ExpertEvaluation{EvaluatorID: id, Scores: scores(60), Recommendation: model.RecommendConditional}
		if _, err := eng.SubmitEvaluation(ctx, review.ID, ev); err != nil {
			t.Fatalf("evaluation %s: %v", id, err)
		}
	}

	wf, _, err := eng.Decide(ctx, review.ID, "rev-1", model.DecisionConditional)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if wf.CurrentGate != "intake" || wf.Status != model.WorkflowInGate {
		t.Errorf("workflow = %s at %q, want back at intake", wf.Status, wf.CurrentGate)
	}
	if wf.Version != 3 {
		t.Errorf("version = %d, want 3", wf.Version)
	}

	// The reopened intake request starts with a clean checklist.
	open, err := st.GetOpenRequest(ctx, wf.ID)
	if err != nil || open == nil {
		t.Fatalf("no reopened request (err %v)", err)
	}
	if len(open.SelfCheck) != 0 || len(open.ReviewerChecklist) != 0 {
		t.Errorf("reopened checklist not clean: %+v", open)
	}
}

func TestGetStatusProjection(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	ctx := context.Background()

	if _, err := eng.SetSelfCheckItem(ctx, req.ID, "alice", "problem_statement", true); err != nil {
		t.Fatalf("self check: %v", err)
	}

	view, err := eng.GetStatus(ctx, "challenge", "ch-100")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if view.CurrentGate != "intake" || view.RequestID != req.ID {
		t.Errorf("view = %+v", view)
	}
	if view.Checklist.SelfCheckDone != 1 || view.Checklist.SelfCheckRequired != 1 {
		t.Errorf("self check progress = %+v", view.Checklist)
	}
	if view.Checklist.ReviewerDone != 0 || view.Checklist.ReviewerRequired != 1 {
		t.Errorf("reviewer progress = %+v", view.Checklist)
	}
	if view.DueAt == nil || !view.DueAt.Equal(req.DueAt) {
		t.Errorf("DueAt = %v, want %v", view.DueAt, req.DueAt)
	}
}

func TestGetStatusReportsInconsistentWorkflow(t *testing.T) {
	eng, st := testEngine(t)
	_, req := mustStart(t, eng)
	ctx := context.Background()

	// Freeze the request behind the engine's back, leaving an in-gate
	// workflow with nothing open.
	now := time.Now()
	st.mu.Lock()
	st.requests[req.ID].Status = model.RequestDecided
	st.requests[req.ID].DecidedAt = &now
	st.mu.Unlock()

	if _, err := eng.GetStatus(ctx, "challenge", "ch-100"); !errors.Is(err, ErrInconsistentState) {
		t.Errorf("err = %v, want ErrInconsistentState", err)
	}
}

func TestDeleteWorkflowHidesIt(t *testing.T) {
	eng, _ := testEngine(t)
	wf, _ := mustStart(t, eng)
	ctx := context.Background()

	if err := eng.DeleteWorkflow(ctx, wf.ID); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}
	if _, err := eng.GetStatus(ctx, "challenge", "ch-100"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("status after delete: err = %v, want ErrNotFound", err)
	}

	// A fresh workflow for the same entity may start again.
	if _, _, err := eng.StartWorkflow(ctx, "challenge", "ch-100", "alice"); err != nil {
		t.Errorf("restart after delete: %v", err)
	}
}

func TestVersionConflictSurfaces(t *testing.T) {
	eng, st := testEngine(t)
	wf, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	ctx := context.Background()

	// Another node moved the workflow: stored version no longer matches.
	st.mu.Lock()
	st.workflows[wf.ID].Version = 5
	st.mu.Unlock()

	if _, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionApprove); !errors.Is(err, store.ErrVersionConflict) {
		t.Errorf("err = %v, want ErrVersionConflict", err)
	}
}

func TestAuditTrailAccumulates(t *testing.T) {
	eng, _ := testEngine(t)
	_, req := mustStart(t, eng)
	completeIntake(t, eng, req.ID)
	ctx := context.Background()

	if _, _, err := eng.Decide(ctx, req.ID, "rev-1", model.DecisionApprove); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	trail, err := eng.GetAuditTrail(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetAuditTrail: %v", err)
	}
	// start, two checklist updates, decision
	if len(trail) != 4 {
		t.Fatalf("audit entries = %d, want 4", len(trail))
	}
	if trail[len(trail)-1].Topic != events.TopicRequestDecided {
		t.Errorf("last topic = %q", trail[len(trail)-1].Topic)
	}
}
