// Package runs talks to the external run-tracking service: one run per
// qualification, with token cost line items and a terminal status.
package runs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Terminal run statuses accepted by the run tracker.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is the run tracker's view of one unit of work. The record is owned
// entirely by the run tracker; this service only creates it, appends costs,
// and closes it.
type Run struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CostItem is one cost line item. CostSource records which credential tier
// paid for the tokens and must match the tier used for the AI call.
type CostItem struct {
	CostName   string `json:"costName"`
	CostSource string `json:"costSource"`
	Quantity   int    `json:"quantity"`
}

// CreateRunParams tags a new run with the identifiers present on the
// inbound request. Empty fields are omitted from the payload.
type CreateRunParams struct {
	OrgID       string `json:"orgId"`
	UserID      string `json:"userId,omitempty"`
	AppID       string `json:"appId,omitempty"`
	BrandID     string `json:"brandId,omitempty"`
	CampaignID  string `json:"campaignId,omitempty"`
	ParentRunID string `json:"parentRunId,omitempty"`
	ServiceName string `json:"serviceName"`
	TaskName    string `json:"taskName"`
}

// Client is an HTTP client for the run tracker API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a run tracker client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// CreateRun opens a new run and returns it with its tracker-assigned id.
func (c *Client) CreateRun(ctx context.Context, params CreateRunParams) (*Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodPost, "/v1/runs", params, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// AddCosts appends cost line items to an existing run.
func (c *Client) AddCosts(ctx context.Context, runID string, items []CostItem) error {
	body := struct {
		Items []CostItem `json:"items"`
	}{Items: items}
	return c.do(ctx, http.MethodPost, "/v1/runs/"+runID+"/costs", body, nil)
}

// UpdateStatus transitions a run to a terminal status.
func (c *Client) UpdateStatus(ctx context.Context, runID, status string) error {
	body := struct {
		Status string `json:"status"`
	}{Status: status}
	return c.do(ctx, http.MethodPatch, "/v1/runs/"+runID, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.apiKey == "" {
		return errors.New("runs service api key is not set")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling runs service request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating runs service request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("runs service %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("runs service %s %s failed (%d): %s", method, path, resp.StatusCode, string(text))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding runs service response: %w", err)
		}
	}
	return nil
}
