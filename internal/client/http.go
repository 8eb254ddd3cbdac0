// Package client provides a Go client for the approvals HTTP/JSON REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/civora/approvals/internal/model"
)

// HTTPClient talks to an apvd server over its HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// StartResult bundles the workflow instance and its first gate request.
type StartResult struct {
	Workflow *model.WorkflowInstance `json:"workflow"`
	Request  *model.ApprovalRequest  `json:"request"`
}

// EvaluationResult bundles a recorded evaluation and the consensus state
// after it was counted. Consensus is nil until enough evaluators have
// submitted.
type EvaluationResult struct {
	Evaluation *model.ExpertEvaluation `json:"evaluation"`
	Consensus  *model.ConsensusResult  `json:"consensus"`
}

// StartWorkflow opens an approval workflow for an entity.
func (c *HTTPClient) StartWorkflow(ctx context.Context, entityType model.EntityType, entityID, requestedBy string) (*StartResult, error) {
	body := map[string]string{
		"entity_type":  string(entityType),
		"entity_id":    entityID,
		"requested_by": requestedBy,
	}
	var result StartResult
	if err := c.doJSON(ctx, http.MethodPost, "/v1/workflows", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStatus returns the current gate view for an entity's workflow.
func (c *HTTPClient) GetStatus(ctx context.Context, entityType model.EntityType, entityID string) (*model.WorkflowStatusView, error) {
	path := "/v1/workflows/" + url.PathEscape(string(entityType)) + "/" + url.PathEscape(entityID)
	var view model.WorkflowStatusView
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetHistory returns the decided-gate records for an entity's workflow,
// oldest first.
func (c *HTTPClient) GetHistory(ctx context.Context, entityType model.EntityType, entityID string) ([]*model.GateRecord, error) {
	path := "/v1/workflows/" + url.PathEscape(string(entityType)) + "/" + url.PathEscape(entityID) + "/history"
	var result struct {
		History []*model.GateRecord `json:"history"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.History, nil
}

// DeleteWorkflow removes a workflow and all of its requests.
func (c *HTTPClient) DeleteWorkflow(ctx context.Context, workflowID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/workflows/"+url.PathEscape(workflowID), nil, nil)
}

// GetRequest fetches a single approval request by ID.
func (c *HTTPClient) GetRequest(ctx context.Context, requestID string) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	if err := c.doJSON(ctx, http.MethodGet, "/v1/requests/"+url.PathEscape(requestID), nil, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// SetSelfCheckItem marks a self-check item on a request. Only the
// original requester may do this.
func (c *HTTPClient) SetSelfCheckItem(ctx context.Context, requestID, actorID, key string, value bool) (*model.ApprovalRequest, error) {
	return c.setChecklistItem(ctx, requestID, "self-check", actorID, key, value)
}

// SetReviewerItem marks a reviewer-check item on a request. Only a
// designated reviewer for the gate may do this.
func (c *HTTPClient) SetReviewerItem(ctx context.Context, requestID, actorID, key string, value bool) (*model.ApprovalRequest, error) {
	return c.setChecklistItem(ctx, requestID, "reviewer-check", actorID, key, value)
}

func (c *HTTPClient) setChecklistItem(ctx context.Context, requestID, kind, actorID, key string, value bool) (*model.ApprovalRequest, error) {
	body := map[string]any{
		"actor_id": actorID,
		"key":      key,
		"value":    value,
	}
	path := "/v1/requests/" + url.PathEscape(requestID) + "/" + kind
	var req model.ApprovalRequest
	if err := c.doJSON(ctx, http.MethodPost, path, body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// AssignEvaluators sets the expert panel on a consensus gate request.
func (c *HTTPClient) AssignEvaluators(ctx context.Context, requestID, actorID string, evaluators []string) (*model.ApprovalRequest, error) {
	body := map[string]any{
		"actor_id":   actorID,
		"evaluators": evaluators,
	}
	path := "/v1/requests/" + url.PathEscape(requestID) + "/evaluators"
	var req model.ApprovalRequest
	if err := c.doJSON(ctx, http.MethodPost, path, body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// SubmitEvaluation records an expert's scores and recommendation for a
// consensus gate request.
func (c *HTTPClient) SubmitEvaluation(ctx context.Context, requestID, evaluatorID string, scores map[string]int, recommendation model.Recommendation) (*EvaluationResult, error) {
	body := map[string]any{
		"evaluator_id":   evaluatorID,
		"scores":         scores,
		"recommendation": recommendation,
	}
	path := "/v1/requests/" + url.PathEscape(requestID) + "/evaluations"
	var result EvaluationResult
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Decide applies a gate decision and advances, ends, or holds the workflow.
func (c *HTTPClient) Decide(ctx context.Context, requestID, actorID string, decision model.Decision) (*StartResult, error) {
	body := map[string]any{
		"actor_id": actorID,
		"decision": decision,
	}
	path := "/v1/requests/" + url.PathEscape(requestID) + "/decide"
	var result StartResult
	if err := c.doJSON(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListOverdue returns open requests past their SLA due time, most
// escalated first, along with the total matching count.
func (c *HTTPClient) ListOverdue(ctx context.Context, filter model.OverdueFilter) ([]*model.ApprovalRequest, int, error) {
	q := url.Values{}
	if filter.MinLevel > 0 {
		q.Set("min_level", strconv.Itoa(filter.MinLevel))
	}
	if filter.EntityType != "" {
		q.Set("entity_type", string(filter.EntityType))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	path := "/v1/overdue"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var result struct {
		Requests []*model.ApprovalRequest `json:"requests"`
		Total    int                      `json:"total"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, 0, err
	}
	return result.Requests, result.Total, nil
}

// GetAuditTrail returns every recorded action on a request, oldest first.
func (c *HTTPClient) GetAuditTrail(ctx context.Context, requestID string) ([]*model.AuditEntry, error) {
	var result struct {
		Entries []*model.AuditEntry `json:"entries"`
	}
	path := "/v1/requests/" + url.PathEscape(requestID) + "/audit"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// GetEscalations returns the escalation events recorded for a request,
// oldest first.
func (c *HTTPClient) GetEscalations(ctx context.Context, requestID string) ([]*model.EscalationEvent, error) {
	var result struct {
		Escalations []*model.EscalationEvent `json:"escalations"`
	}
	path := "/v1/requests/" + url.PathEscape(requestID) + "/escalations"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Escalations, nil
}

// Health pings the server's health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content, success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
