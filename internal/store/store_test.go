package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "qualifications.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertRequestAndResult(t *testing.T, s *Store, req *Request, q *Qualification) {
	t.Helper()
	require.NoError(t, s.InsertRequest(context.Background(), req))
	q.RequestID = req.ID
	require.NoError(t, s.InsertQualification(context.Background(), q))
}

func TestInsertAndGetQualification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &Request{
		SourceService: "email-responder",
		SourceOrgID:   "org-1",
		FromEmail:     "prospect@example.com",
		ToEmail:       "sales@ours.com",
		Subject:       "Re: pricing",
		BodyText:      "Sounds interesting, can we talk?",
	}
	require.NoError(t, s.InsertRequest(ctx, req))
	assert.NotEmpty(t, req.ID, "request id must be assigned on insert")
	assert.False(t, req.CreatedAt.IsZero())

	q := &Qualification{
		RequestID:       req.ID,
		Classification:  "interested",
		Confidence:      0.92,
		Reasoning:       "Explicitly asks for a call",
		SuggestedAction: "schedule_followup",
		ExtractedDetails: map[string]interface{}{
			"sentiment": "positive",
		},
		Model:        "claude-3-haiku-20240307",
		InputTokens:  812,
		OutputTokens: 96,
		CostUSD:      0.000323,
		ResponseRaw:  []byte(`{"id":"msg_1"}`),
	}
	require.NoError(t, s.InsertQualification(ctx, q))
	assert.NotEmpty(t, q.ID)

	got, err := s.GetQualification(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.RequestID)
	assert.Equal(t, "interested", got.Classification)
	assert.InDelta(t, 0.92, got.Confidence, 1e-9)
	assert.Equal(t, "schedule_followup", got.SuggestedAction)
	assert.Equal(t, map[string]interface{}{"sentiment": "positive"}, got.ExtractedDetails)
	assert.Equal(t, 812, got.InputTokens)
	assert.Equal(t, 96, got.OutputTokens)
	assert.Equal(t, []byte(`{"id":"msg_1"}`), got.ResponseRaw)
}

func TestGetQualification_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetQualification(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertQualification_CostRoundedToSixDigits(t *testing.T) {
	s := newTestStore(t)

	req := &Request{SourceService: "svc", SourceOrgID: "org-1", FromEmail: "a@b.c", ToEmail: "d@e.f"}
	q := &Qualification{
		Classification: "other",
		Model:          "claude-3-haiku-20240307",
		CostUSD:        0.0008745001,
	}
	insertRequestAndResult(t, s, req, q)

	assert.InDelta(t, 0.000875, q.CostUSD, 1e-12, "struct must reflect the stored value")

	got, err := s.GetQualification(context.Background(), q.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.000875, got.CostUSD, 1e-12)
}

func TestServiceRunIDStoredOnRequest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &Request{SourceService: "svc", SourceOrgID: "org-1", ServiceRunID: "run-42", FromEmail: "a@b.c", ToEmail: "d@e.f"}
	require.NoError(t, s.InsertRequest(ctx, req))

	var runID string
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT service_run_id FROM qualification_requests WHERE id = ?`, req.ID).Scan(&runID))
	assert.Equal(t, "run-42", runID)
}

func TestDeleteRequestCascadesToQualification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &Request{SourceService: "svc", SourceOrgID: "org-1", FromEmail: "a@b.c", ToEmail: "d@e.f"}
	q := &Qualification{Classification: "other", Model: "claude-3-haiku-20240307"}
	insertRequestAndResult(t, s, req, q)

	_, err := s.db.ExecContext(ctx, `DELETE FROM qualification_requests WHERE id = ?`, req.ID)
	require.NoError(t, err)

	_, err = s.GetQualification(ctx, q.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertWebhookCallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := &Request{SourceService: "svc", SourceOrgID: "org-1", FromEmail: "a@b.c", ToEmail: "d@e.f"}
	q := &Qualification{Classification: "interested", Model: "claude-3-haiku-20240307"}
	insertRequestAndResult(t, s, req, q)

	wc, err := s.InsertWebhookCallback(ctx, q.ID, "https://callbacks.example.com/reply")
	require.NoError(t, err)
	assert.NotEmpty(t, wc.ID)
	assert.Equal(t, "pending", wc.Status)
	assert.Equal(t, 0, wc.Attempts)

	var status string
	var attempts int
	require.NoError(t, s.db.QueryRowContext(ctx,
		`SELECT status, attempts FROM webhook_callbacks WHERE id = ?`, wc.ID).Scan(&status, &attempts))
	assert.Equal(t, "pending", status)
	assert.Equal(t, 0, attempts)
}

func TestListQualifications_FiltersAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, tc := range []struct {
		sourceService  string
		sourceOrgID    string
		sourceRefID    string
		classification string
	}{
		{"email-responder", "org-1", "thread-1", "interested"},
		{"email-responder", "org-1", "thread-2", "not_interested"},
		{"crm-sync", "org-2", "thread-3", "out_of_office"},
	} {
		req := &Request{
			SourceService: tc.sourceService,
			SourceOrgID:   tc.sourceOrgID,
			SourceRefID:   tc.sourceRefID,
			FromEmail:     "a@b.c",
			ToEmail:       "d@e.f",
		}
		q := &Qualification{
			Classification: tc.classification,
			Model:          "claude-3-haiku-20240307",
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		insertRequestAndResult(t, s, req, q)
	}

	all, err := s.ListQualifications(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "interested", all[0].Classification, "rows are ordered oldest first")

	byService, err := s.ListQualifications(ctx, ListFilter{SourceService: "email-responder"})
	require.NoError(t, err)
	assert.Len(t, byService, 2)

	byRef, err := s.ListQualifications(ctx, ListFilter{SourceOrgID: "org-1", SourceRefID: "thread-2"})
	require.NoError(t, err)
	require.Len(t, byRef, 1)
	assert.Equal(t, "not_interested", byRef[0].Classification)

	limited, err := s.ListQualifications(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestStats_GroupsAndSums(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, tc := range []struct {
		orgID          string
		campaignID     string
		classification string
		inputTokens    int
		outputTokens   int
		costUSD        float64
	}{
		{"org-1", "camp-1", "interested", 1000, 100, 0.0004},
		{"org-1", "camp-1", "interested", 2000, 200, 0.0008},
		{"org-1", "camp-2", "unsubscribe", 500, 50, 0.0002},
		{"org-2", "camp-1", "interested", 100, 10, 0.0001},
	} {
		req := &Request{
			SourceService: "svc",
			SourceOrgID:   tc.orgID,
			OrgID:         tc.orgID,
			CampaignID:    tc.campaignID,
			FromEmail:     "a@b.c",
			ToEmail:       "d@e.f",
		}
		q := &Qualification{
			Classification: tc.classification,
			Model:          "claude-3-haiku-20240307",
			InputTokens:    tc.inputTokens,
			OutputTokens:   tc.outputTokens,
			CostUSD:        tc.costUSD,
		}
		insertRequestAndResult(t, s, req, q)
	}

	stats, err := s.Stats(ctx, StatsFilter{OrgID: "org-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByClassification["interested"])
	assert.Equal(t, 1, stats.ByClassification["unsubscribe"])
	assert.Equal(t, 3500, stats.TotalInputTokens)
	assert.Equal(t, 350, stats.TotalOutputTokens)
	assert.InDelta(t, 0.0014, stats.TotalCostUSD, 1e-9)

	scoped, err := s.Stats(ctx, StatsFilter{OrgID: "org-1", CampaignID: "camp-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, scoped.Total)
	assert.InDelta(t, 0.0012, scoped.TotalCostUSD, 1e-9)

	empty, err := s.Stats(ctx, StatsFilter{OrgID: "org-none"})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.ByClassification)
}

func TestStatsFilter_Empty(t *testing.T) {
	assert.True(t, StatsFilter{}.Empty())
	assert.False(t, StatsFilter{OrgID: "org-1"}.Empty())
}
