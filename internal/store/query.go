package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ListFilter narrows the qualification listing.
type ListFilter struct {
	SourceService string
	SourceOrgID   string
	SourceRefID   string
	Limit         int
}

// ListItem is one row of the qualification listing, joined with its request.
type ListItem struct {
	ID              string
	RequestID       string
	SourceService   string
	SourceOrgID     string
	SourceRefID     string
	FromEmail       string
	Subject         string
	Classification  string
	Confidence      float64
	SuggestedAction string
	CreatedAt       time.Time
}

const defaultListLimit = 50

// ListQualifications returns qualification rows joined with their requests,
// newest last, optionally filtered by source identifiers.
func (s *Store) ListQualifications(ctx context.Context, f ListFilter) ([]ListItem, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT q.id, r.id, r.source_service, r.source_org_id, r.source_ref_id,
		       r.from_email, r.subject, q.classification, q.confidence,
		       q.suggested_action, q.created_at
		FROM qualifications q
		INNER JOIN qualification_requests r ON q.request_id = r.id
		WHERE 1=1
	`
	var args []interface{}
	if f.SourceService != "" {
		query += " AND r.source_service = ?"
		args = append(args, f.SourceService)
	}
	if f.SourceOrgID != "" {
		query += " AND r.source_org_id = ?"
		args = append(args, f.SourceOrgID)
	}
	if f.SourceRefID != "" {
		query += " AND r.source_ref_id = ?"
		args = append(args, f.SourceRefID)
	}
	query += " ORDER BY q.created_at LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing qualifications: %w", err)
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		var it ListItem
		var sourceRefID, subject, suggestedAction sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(
			&it.ID, &it.RequestID, &it.SourceService, &it.SourceOrgID, &sourceRefID,
			&it.FromEmail, &subject, &it.Classification, &confidence,
			&suggestedAction, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning qualification row: %w", err)
		}
		it.SourceRefID = sourceRefID.String
		it.Subject = subject.String
		it.SuggestedAction = suggestedAction.String
		it.Confidence = confidence.Float64
		items = append(items, it)
	}
	return items, rows.Err()
}

// StatsFilter scopes the aggregation. At least one field must be set;
// callers enforce that before querying.
type StatsFilter struct {
	AppID      string
	OrgID      string
	UserID     string
	BrandID    string
	CampaignID string
	RunID      string
}

// Empty reports whether no filter field is set.
func (f StatsFilter) Empty() bool {
	return f == StatsFilter{}
}

// Stats is the aggregated qualification summary for one filter scope.
type Stats struct {
	Total             int
	ByClassification  map[string]int
	TotalCostUSD      float64
	TotalInputTokens  int
	TotalOutputTokens int
}

// Stats aggregates counts, cost, and token totals grouped by classification.
func (s *Store) Stats(ctx context.Context, f StatsFilter) (*Stats, error) {
	query := `
		SELECT q.classification, COUNT(*),
		       COALESCE(SUM(q.cost_usd), 0),
		       COALESCE(SUM(q.input_tokens), 0),
		       COALESCE(SUM(q.output_tokens), 0)
		FROM qualifications q
		INNER JOIN qualification_requests r ON q.request_id = r.id
		WHERE 1=1
	`
	var args []interface{}
	for _, cond := range []struct {
		column string
		value  string
	}{
		{"r.app_id", f.AppID},
		{"r.org_id", f.OrgID},
		{"r.user_id", f.UserID},
		{"r.brand_id", f.BrandID},
		{"r.campaign_id", f.CampaignID},
		{"r.run_id", f.RunID},
	} {
		if cond.value != "" {
			query += " AND " + cond.column + " = ?"
			args = append(args, cond.value)
		}
	}
	query += " GROUP BY q.classification"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	result := &Stats{ByClassification: map[string]int{}}
	for rows.Next() {
		var classification string
		var count, inputTokens, outputTokens int
		var costUSD float64
		if err := rows.Scan(&classification, &count, &costUSD, &inputTokens, &outputTokens); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		result.ByClassification[classification] = count
		result.Total += count
		result.TotalCostUSD += costUSD
		result.TotalInputTokens += inputTokens
		result.TotalOutputTokens += outputTokens
	}
	return result, rows.Err()
}
