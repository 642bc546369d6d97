package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Recommendation is one suggested action from the agent, phrased entirely in
// anonymous IDs.
type Recommendation struct {
	Action   string   `json:"action"`
	Message  string   `json:"message"`
	Cases    []string `json:"cases,omitempty"`
	Profit   string   `json:"profit,omitempty"`
	NextStep string   `json:"next_step"`
}

// AnalyzeResponse is the agent's reply to a bucket analysis request.
type AnalyzeResponse struct {
	BucketSummary   map[string]int         `json:"bucket_summary"`
	SubagentResults map[string]interface{} `json:"subagent_results"`
	Recommendations []Recommendation       `json:"recommendations"`
}

// EmailDraft is a drafted outbound email awaiting coordinator approval.
type EmailDraft struct {
	To               string `json:"to"`
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	RequiresApproval bool   `json:"requires_approval"`
}

// Client talks to the external analysis agent. Everything crossing this
// client has already passed the anonymization boundary.
type Client interface {
	AnalyzeBuckets(ctx context.Context, state *BucketState, query string) (*AnalyzeResponse, error)
	DraftEmail(ctx context.Context, purpose string, anonymousIDs []string) (*EmailDraft, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a Client for the agent service at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) Client {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *httpClient) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("agent client: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("agent client: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.ReadAll(io.LimitReader(resp.Body, 1024)) // drain
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type analyzeRequest struct {
	BucketState  *BucketState `json:"bucket_state"`
	SurgeonQuery string       `json:"surgeon_query,omitempty"`
}

func (c *httpClient) AnalyzeBuckets(ctx context.Context, state *BucketState, query string) (*AnalyzeResponse, error) {
	var out AnalyzeResponse
	err := c.post(ctx, "/api/agent/analyze-buckets", analyzeRequest{BucketState: state, SurgeonQuery: query}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type draftEmailRequest struct {
	Purpose string   `json:"purpose"`
	CaseIDs []string `json:"case_ids"`
}

func (c *httpClient) DraftEmail(ctx context.Context, purpose string, anonymousIDs []string) (*EmailDraft, error) {
	var out EmailDraft
	err := c.post(ctx, "/api/agent/draft-email", draftEmailRequest{Purpose: purpose, CaseIDs: anonymousIDs}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
