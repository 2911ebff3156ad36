package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/shamanic-technologies/reply-qualification-service/internal/config"
	"github.com/shamanic-technologies/reply-qualification-service/internal/keyvault"
	"github.com/shamanic-technologies/reply-qualification-service/internal/llm"
	rqsotel "github.com/shamanic-technologies/reply-qualification-service/internal/otel"
	"github.com/shamanic-technologies/reply-qualification-service/internal/qualify"
	"github.com/shamanic-technologies/reply-qualification-service/internal/requestctx"
	"github.com/shamanic-technologies/reply-qualification-service/internal/runs"
	"github.com/shamanic-technologies/reply-qualification-service/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   config.ServiceName,
		"uptime":    time.Since(s.startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type qualifyRequest struct {
	SourceService      string `json:"sourceService"`
	SourceOrgID        string `json:"sourceOrgId"`
	SourceRefID        string `json:"sourceRefId"`
	AppID              string `json:"appId"`
	KeySource          string `json:"keySource"`
	BrandID            string `json:"brandId"`
	CampaignID         string `json:"campaignId"`
	RunID              string `json:"runId"`
	FromEmail          string `json:"fromEmail"`
	ToEmail            string `json:"toEmail"`
	Subject            string `json:"subject"`
	BodyText           string `json:"bodyText"`
	BodyHTML           string `json:"bodyHtml"`
	InReplyToMessageID string `json:"inReplyToMessageId"`
	EmailReceivedAt    string `json:"emailReceivedAt"`
	WebhookURL         string `json:"webhookUrl"`
}

func (q *qualifyRequest) validate() string {
	if q.SourceService == "" {
		return "sourceService is required"
	}
	if q.SourceOrgID == "" {
		return "sourceOrgId is required"
	}
	if q.FromEmail == "" {
		return "fromEmail is required"
	}
	if q.ToEmail == "" {
		return "toEmail is required"
	}
	if q.BodyText == "" && q.BodyHTML == "" {
		return "one of bodyText or bodyHtml is required"
	}
	if !keyvault.ValidKeySource(q.KeySource) {
		return "keySource must be one of platform, byok, app"
	}
	if q.EmailReceivedAt != "" {
		if _, err := time.Parse(time.RFC3339, q.EmailReceivedAt); err != nil {
			return "emailReceivedAt must be RFC 3339"
		}
	}
	return ""
}

type qualifyResponse struct {
	ID               string                 `json:"id"`
	RequestID        string                 `json:"requestId"`
	Classification   string                 `json:"classification"`
	Confidence       float64                `json:"confidence"`
	Reasoning        string                 `json:"reasoning"`
	SuggestedAction  string                 `json:"suggestedAction"`
	ExtractedDetails map[string]interface{} `json:"extractedDetails"`
	CostUSD          float64                `json:"costUsd"`
	KeySource        string                 `json:"keySource"`
	ServiceRunID     string                 `json:"serviceRunId,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
}

// handleQualify is the primary operation: resolve a credential, classify
// the reply, account the cost, persist, respond.
//
// Credential resolution failures abort before any AI spend. Run tracker
// calls are best-effort throughout and never affect the response.
func (s *Server) handleQualify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req qualifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, "invalid_request", msg)
		return
	}

	orgID := requestctx.OrgID(ctx)
	userID := requestctx.UserID(ctx)

	// Open a run first so the whole request lifecycle is visible in the
	// tracker even when resolution fails later.
	run := s.recorder.Open(ctx, runs.CreateRunParams{
		OrgID:       orgID,
		UserID:      userID,
		AppID:       req.AppID,
		BrandID:     req.BrandID,
		CampaignID:  req.CampaignID,
		ParentRunID: req.RunID,
		ServiceName: config.ServiceName,
		TaskName:    "qualify-reply",
	})

	var emailReceivedAt *time.Time
	if req.EmailReceivedAt != "" {
		t, _ := time.Parse(time.RFC3339, req.EmailReceivedAt)
		emailReceivedAt = &t
	}

	requestRow := &store.Request{
		SourceService:      req.SourceService,
		SourceOrgID:        req.SourceOrgID,
		SourceRefID:        req.SourceRefID,
		AppID:              req.AppID,
		OrgID:              orgID,
		UserID:             userID,
		BrandID:            req.BrandID,
		CampaignID:         req.CampaignID,
		RunID:              req.RunID,
		ServiceRunID:       run.RunID(),
		FromEmail:          req.FromEmail,
		ToEmail:            req.ToEmail,
		Subject:            req.Subject,
		BodyText:           req.BodyText,
		BodyHTML:           req.BodyHTML,
		InReplyToMessageID: req.InReplyToMessageID,
		EmailReceivedAt:    emailReceivedAt,
	}
	if err := s.store.InsertRequest(ctx, requestRow); err != nil {
		log.Error().Err(err).Func(rqsotel.LogTraceFields(ctx)).Msg("request_insert_failed")
		run.Fail(ctx)
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	cred, err := s.resolver.Resolve(ctx, keyvault.ResolveParams{
		OrgID:     orgID,
		AppID:     req.AppID,
		KeySource: keyvault.KeySource(req.KeySource),
		Caller: keyvault.CallerContext{
			Service: config.ServiceName,
			Method:  http.MethodPost,
			Path:    "/v1/qualify",
		},
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", requestRow.ID).
			Func(rqsotel.LogTraceFields(ctx)).Msg("key_resolution_failed")
		run.Fail(ctx)
		if errors.Is(err, keyvault.ErrOrgIDRequired) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		var notConfigured *keyvault.NotConfiguredError
		if errors.As(err, &notConfigured) {
			writeError(w, http.StatusBadGateway, "key_resolution_failed", notConfigured.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "key_resolution_failed", "Failed to resolve API key from key service")
		return
	}

	provider, err := s.providerFor(cred)
	if err != nil {
		run.Fail(ctx)
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	result, err := s.invoker.Invoke(ctx, provider, cred.Tier, qualify.EmailInput{
		Subject:  req.Subject,
		BodyText: req.BodyText,
		BodyHTML: req.BodyHTML,
	})
	if err != nil {
		log.Error().Err(err).Str("request_id", requestRow.ID).
			Func(rqsotel.LogTraceFields(ctx)).Msg("qualification_call_failed")
		run.Fail(ctx)
		writeError(w, http.StatusBadGateway, "provider_call_failed", "Classification provider call failed")
		return
	}

	// Costs and the terminal status only go out once the invocation
	// outcome is known, tagged with the tier that actually paid.
	run.RecordCosts(ctx, result.Model, string(result.KeySource), result.InputTokens, result.OutputTokens)
	run.Complete(ctx)

	qualRow := &store.Qualification{
		RequestID:        requestRow.ID,
		Classification:   result.Classification,
		Confidence:       result.Confidence,
		Reasoning:        result.Reasoning,
		SuggestedAction:  result.SuggestedAction,
		ExtractedDetails: result.ExtractedDetails,
		Model:            result.Model,
		InputTokens:      result.InputTokens,
		OutputTokens:     result.OutputTokens,
		CostUSD:          result.CostUSD,
		ResponseRaw:      result.ResponseRaw,
	}
	if err := s.store.InsertQualification(ctx, qualRow); err != nil {
		log.Error().Err(err).Str("request_id", requestRow.ID).
			Func(rqsotel.LogTraceFields(ctx)).Msg("qualification_insert_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	if req.WebhookURL != "" {
		if _, err := s.store.InsertWebhookCallback(ctx, qualRow.ID, req.WebhookURL); err != nil {
			log.Error().Err(err).Str("qualification_id", qualRow.ID).
				Func(rqsotel.LogTraceFields(ctx)).Msg("webhook_callback_insert_failed")
		}
	}

	log.Info().
		Str("request_id", requestRow.ID).
		Str("classification", result.Classification).
		Str("key_source", string(result.KeySource)).
		Int("input_tokens", result.InputTokens).
		Int("output_tokens", result.OutputTokens).
		Func(rqsotel.LogTraceFields(ctx)).
		Msg("reply_qualified")

	writeJSON(w, http.StatusOK, qualifyResponse{
		ID:               qualRow.ID,
		RequestID:        requestRow.ID,
		Classification:   qualRow.Classification,
		Confidence:       qualRow.Confidence,
		Reasoning:        qualRow.Reasoning,
		SuggestedAction:  qualRow.SuggestedAction,
		ExtractedDetails: qualRow.ExtractedDetails,
		CostUSD:          qualRow.CostUSD,
		KeySource:        string(result.KeySource),
		ServiceRunID:     run.RunID(),
		CreatedAt:        qualRow.CreatedAt,
	})
}

// providerFor returns a provider for the resolved credential. The platform
// tier reuses a memoized provider since its key is shared across requests;
// org and app keys get a fresh provider per request.
func (s *Server) providerFor(cred *keyvault.ResolvedCredential) (llm.Provider, error) {
	if cred.Tier == keyvault.TierPlatform {
		return s.providers.Get("anthropic", cred.APIKey)
	}
	return s.newProvider("anthropic", cred.APIKey)
}

func (s *Server) handleQualificationGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, err := s.store.GetQualification(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "not_found", "Qualification not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("qualification_id", id).Msg("qualification_get_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":               q.ID,
		"requestId":        q.RequestID,
		"classification":   q.Classification,
		"confidence":       q.Confidence,
		"reasoning":        q.Reasoning,
		"suggestedAction":  q.SuggestedAction,
		"extractedDetails": q.ExtractedDetails,
		"costUsd":          q.CostUSD,
		"createdAt":        q.CreatedAt,
	})
}

func (s *Server) handleQualificationsList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, err := s.store.ListQualifications(r.Context(), store.ListFilter{
		SourceService: r.URL.Query().Get("sourceService"),
		SourceOrgID:   r.URL.Query().Get("sourceOrgId"),
		SourceRefID:   r.URL.Query().Get("sourceRefId"),
		Limit:         limit,
	})
	if err != nil {
		log.Error().Err(err).Msg("qualifications_list_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}

	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]interface{}{
			"id":              it.ID,
			"requestId":       it.RequestID,
			"sourceService":   it.SourceService,
			"sourceOrgId":     it.SourceOrgID,
			"sourceRefId":     it.SourceRefID,
			"fromEmail":       it.FromEmail,
			"subject":         it.Subject,
			"classification":  it.Classification,
			"confidence":      it.Confidence,
			"suggestedAction": it.SuggestedAction,
			"createdAt":       it.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.StatsFilter{
		AppID:      q.Get("appId"),
		OrgID:      q.Get("orgId"),
		UserID:     q.Get("userId"),
		BrandID:    q.Get("brandId"),
		CampaignID: q.Get("campaignId"),
		RunID:      q.Get("runId"),
	}
	// Unscoped global aggregation is not allowed.
	if filter.Empty() {
		writeError(w, http.StatusBadRequest, "invalid_request",
			"At least one filter parameter is required (appId, orgId, userId, brandId, campaignId, or runId)")
		return
	}

	stats, err := s.store.Stats(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("stats_failed")
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":             stats.Total,
		"byClassification":  stats.ByClassification,
		"totalCostUsd":      stats.TotalCostUSD,
		"totalInputTokens":  stats.TotalInputTokens,
		"totalOutputTokens": stats.TotalOutputTokens,
	})
}
