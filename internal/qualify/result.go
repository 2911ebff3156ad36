package qualify

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/shamanic-technologies/reply-qualification-service/internal/keyvault"
)

// The eight fixed classification values.
const (
	ClassWillingToMeet = "willing_to_meet"
	ClassInterested    = "interested"
	ClassNeedsMoreInfo = "needs_more_info"
	ClassNotInterested = "not_interested"
	ClassOutOfOffice   = "out_of_office"
	ClassUnsubscribe   = "unsubscribe"
	ClassBounce        = "bounce"
	ClassOther         = "other"
)

// Classifications lists all valid classification values.
var Classifications = []string{
	ClassWillingToMeet,
	ClassInterested,
	ClassNeedsMoreInfo,
	ClassNotInterested,
	ClassOutOfOffice,
	ClassUnsubscribe,
	ClassBounce,
	ClassOther,
}

// ValidClassification reports whether s is one of the fixed values.
func ValidClassification(s string) bool {
	for _, c := range Classifications {
		if s == c {
			return true
		}
	}
	return false
}

// Result is the normalized outcome of one qualification call. Produced once
// per request, immutable thereafter.
type Result struct {
	Classification   string
	Confidence       float64
	Reasoning        string
	SuggestedAction  string
	ExtractedDetails map[string]interface{}
	InputTokens      int
	OutputTokens     int
	CostUSD          float64
	Model            string
	KeySource        keyvault.Tier
	ResponseRaw      []byte
}

// jsonObjectRe greedily matches the first '{' through the last '}' so JSON
// wrapped in prose or markdown fencing still parses.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

type modelOutput struct {
	Classification   string                 `json:"classification"`
	Confidence       json.RawMessage        `json:"confidence"`
	Reasoning        string                 `json:"reasoning"`
	SuggestedAction  string                 `json:"suggested_action"`
	ExtractedDetails map[string]interface{} `json:"extracted_details"`
}

// parseModelOutput normalizes the model's free-form text into result fields.
// Malformed output never surfaces as an error: any parse failure yields the
// fixed fallback, and individual fields are coerced defensively.
func parseModelOutput(text string) (classification string, confidence float64, reasoning, suggestedAction string, details map[string]interface{}) {
	match := jsonObjectRe.FindString(text)
	var out modelOutput
	if match == "" || json.Unmarshal([]byte(match), &out) != nil {
		return ClassOther, 0.5, "Failed to parse AI response", "ignore", map[string]interface{}{}
	}

	classification = out.Classification
	if !ValidClassification(classification) {
		classification = ClassOther
	}

	confidence = coerceConfidence(out.Confidence)

	suggestedAction = out.SuggestedAction
	if suggestedAction == "" {
		suggestedAction = "ignore"
	}

	details = out.ExtractedDetails
	if details == nil {
		details = map[string]interface{}{}
	}

	return classification, confidence, out.Reasoning, suggestedAction, details
}

// coerceConfidence accepts a JSON number or numeric string in [0,1];
// anything else defaults to 0.5.
func coerceConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0.5
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0.5
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0.5
		}
		f = parsed
	}
	if f < 0 || f > 1 {
		return 0.5
	}
	return f
}
