package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/civora/approvals/internal/model"
	"github.com/civora/approvals/internal/store"
)

// header is the first JSONL record written by WriteJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	WorkflowCount int       `json:"workflow_count"`
	RequestCount  int       `json:"request_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WriteJSONL writes a snapshot of all open approval requests and their
// workflows as JSONL to w. Requests include embedded evaluations and
// escalation events; both sections are sorted by ID.
func WriteJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	requests, err := s.ListOpenRequests(ctx)
	if err != nil {
		return fmt.Errorf("list open requests: %w", err)
	}

	// Populate relational data and collect the parent workflows.
	workflows := make(map[string]*model.WorkflowInstance)
	for _, req := range requests {
		evals, err := s.GetEvaluations(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("get evaluations for %s: %w", req.ID, err)
		}
		req.Evaluations = evals

		if _, ok := workflows[req.WorkflowID]; !ok {
			wf, err := s.GetWorkflowByID(ctx, req.WorkflowID)
			if err != nil {
				return fmt.Errorf("get workflow %s: %w", req.WorkflowID, err)
			}
			workflows[req.WorkflowID] = wf
		}
	}

	sorted := make([]*model.WorkflowInstance, 0, len(workflows))
	for _, wf := range workflows {
		sorted = append(sorted, wf)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	sort.Slice(requests, func(i, j int) bool { return requests[i].ID < requests[j].ID })

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		WorkflowCount: len(sorted),
		RequestCount:  len(requests),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, wf := range sorted {
		if err := enc.Encode(record{Type: "workflow", Data: wf}); err != nil {
			return fmt.Errorf("encode workflow %s: %w", wf.ID, err)
		}
	}
	for _, req := range requests {
		if err := enc.Encode(record{Type: "request", Data: req}); err != nil {
			return fmt.Errorf("encode request %s: %w", req.ID, err)
		}
	}

	return nil
}
