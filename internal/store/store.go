// Package store persists qualification requests and their results.
//
// Backed by SQLite. A qualification row always references exactly one
// request row; the foreign key cascades deletes down that direction.
// Webhook callback rows are plain persisted records with no behavior
// (delivery is out of scope for this service).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Store manages the qualification database.
type Store struct {
	db *sql.DB
}

// Request is one inbound qualification request row.
type Request struct {
	ID                 string
	SourceService      string
	SourceOrgID        string
	SourceRefID        string
	AppID              string
	OrgID              string
	UserID             string
	BrandID            string
	CampaignID         string
	RunID              string // parent run id supplied by the caller
	ServiceRunID       string // this service's own run id in the run tracker
	FromEmail          string
	ToEmail            string
	Subject            string
	BodyText           string
	BodyHTML           string
	InReplyToMessageID string
	EmailReceivedAt    *time.Time
	CreatedAt          time.Time
}

// Qualification is one AI classification result row, linked 1:1 to its
// originating request.
type Qualification struct {
	ID               string
	RequestID        string
	Classification   string
	Confidence       float64
	Reasoning        string
	SuggestedAction  string
	ExtractedDetails map[string]interface{}
	Model            string
	InputTokens      int
	OutputTokens     int
	CostUSD          float64
	ResponseRaw      []byte
	CreatedAt        time.Time
}

// WebhookCallback is a persisted delivery record for notifying the source
// service of a result.
type WebhookCallback struct {
	ID              string
	QualificationID string
	WebhookURL      string
	Status          string
	Attempts        int
	LastAttemptAt   *time.Time
	LastError       string
	CreatedAt       time.Time
}

// NewStore opens (and migrates) the qualification database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening qualification database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS qualification_requests (
		id TEXT PRIMARY KEY,
		source_service TEXT NOT NULL,
		source_org_id TEXT NOT NULL,
		source_ref_id TEXT,
		app_id TEXT,
		org_id TEXT,
		user_id TEXT,
		brand_id TEXT,
		campaign_id TEXT,
		run_id TEXT,
		service_run_id TEXT,
		from_email TEXT NOT NULL,
		to_email TEXT NOT NULL,
		subject TEXT,
		body_text TEXT,
		body_html TEXT,
		in_reply_to_message_id TEXT,
		email_received_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS qualifications (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL REFERENCES qualification_requests(id) ON DELETE CASCADE,
		classification TEXT NOT NULL,
		confidence REAL,
		reasoning TEXT,
		suggested_action TEXT,
		extracted_details TEXT,
		model TEXT NOT NULL,
		input_tokens INTEGER,
		output_tokens INTEGER,
		cost_usd REAL,
		response_raw TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS webhook_callbacks (
		id TEXT PRIMARY KEY,
		qualification_id TEXT NOT NULL REFERENCES qualifications(id) ON DELETE CASCADE,
		webhook_url TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt_at TIMESTAMP,
		last_error TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_qr_org ON qualification_requests(org_id);
	CREATE INDEX IF NOT EXISTS idx_qr_campaign ON qualification_requests(campaign_id);
	CREATE INDEX IF NOT EXISTS idx_qr_app ON qualification_requests(app_id);
	CREATE INDEX IF NOT EXISTS idx_q_request ON qualifications(request_id);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertRequest stores a request row, assigning an id when none is set.
func (s *Store) InsertRequest(ctx context.Context, r *Request) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO qualification_requests (
			id, source_service, source_org_id, source_ref_id,
			app_id, org_id, user_id, brand_id, campaign_id,
			run_id, service_run_id,
			from_email, to_email, subject, body_text, body_html,
			in_reply_to_message_id, email_received_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.SourceService, r.SourceOrgID, nullable(r.SourceRefID),
		nullable(r.AppID), nullable(r.OrgID), nullable(r.UserID), nullable(r.BrandID), nullable(r.CampaignID),
		nullable(r.RunID), nullable(r.ServiceRunID),
		r.FromEmail, r.ToEmail, nullable(r.Subject), nullable(r.BodyText), nullable(r.BodyHTML),
		nullable(r.InReplyToMessageID), r.EmailReceivedAt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storing qualification request: %w", err)
	}
	return nil
}

// InsertQualification stores a result row, assigning an id when none is
// set. CostUSD is truncated to six fractional digits at this boundary.
func (s *Store) InsertQualification(ctx context.Context, q *Qualification) error {
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	detailsJSON, err := json.Marshal(q.ExtractedDetails)
	if err != nil {
		return fmt.Errorf("marshaling extracted details: %w", err)
	}

	query := `
		INSERT INTO qualifications (
			id, request_id, classification, confidence, reasoning,
			suggested_action, extracted_details, model,
			input_tokens, output_tokens, cost_usd, response_raw, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		q.ID, q.RequestID, q.Classification, q.Confidence, nullable(q.Reasoning),
		nullable(q.SuggestedAction), string(detailsJSON), q.Model,
		q.InputTokens, q.OutputTokens, roundCost(q.CostUSD), string(q.ResponseRaw), q.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storing qualification: %w", err)
	}
	q.CostUSD = roundCost(q.CostUSD)
	return nil
}

// GetQualification fetches one result row by id.
func (s *Store) GetQualification(ctx context.Context, id string) (*Qualification, error) {
	query := `
		SELECT id, request_id, classification, confidence, reasoning,
		       suggested_action, extracted_details, model,
		       input_tokens, output_tokens, cost_usd, response_raw, created_at
		FROM qualifications WHERE id = ?
	`
	q, err := scanQualification(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying qualification: %w", err)
	}
	return q, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQualification(row rowScanner) (*Qualification, error) {
	var q Qualification
	var confidence sql.NullFloat64
	var reasoning, suggestedAction, detailsJSON, responseRaw sql.NullString
	var inputTokens, outputTokens sql.NullInt64
	var costUSD sql.NullFloat64

	err := row.Scan(
		&q.ID, &q.RequestID, &q.Classification, &confidence, &reasoning,
		&suggestedAction, &detailsJSON, &q.Model,
		&inputTokens, &outputTokens, &costUSD, &responseRaw, &q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	q.Confidence = confidence.Float64
	q.Reasoning = reasoning.String
	q.SuggestedAction = suggestedAction.String
	q.InputTokens = int(inputTokens.Int64)
	q.OutputTokens = int(outputTokens.Int64)
	q.CostUSD = costUSD.Float64
	q.ResponseRaw = []byte(responseRaw.String)
	if detailsJSON.Valid && detailsJSON.String != "" {
		_ = json.Unmarshal([]byte(detailsJSON.String), &q.ExtractedDetails)
	}
	if q.ExtractedDetails == nil {
		q.ExtractedDetails = map[string]interface{}{}
	}
	return &q, nil
}

// InsertWebhookCallback stores a pending webhook delivery record.
func (s *Store) InsertWebhookCallback(ctx context.Context, qualificationID, webhookURL string) (*WebhookCallback, error) {
	wc := &WebhookCallback{
		ID:              uuid.New().String(),
		QualificationID: qualificationID,
		WebhookURL:      webhookURL,
		Status:          "pending",
		CreatedAt:       time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_callbacks (id, qualification_id, webhook_url, status, attempts, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		wc.ID, wc.QualificationID, wc.WebhookURL, wc.Status, wc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("storing webhook callback: %w", err)
	}
	return wc, nil
}

// roundCost truncates to six fractional digits, matching the decimal
// precision of the persisted column.
func roundCost(cost float64) float64 {
	return math.Round(cost*1e6) / 1e6
}

// nullable maps "" to NULL so optional text columns stay NULL-queryable.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
