package qualify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseModelOutput_ValidJSON(t *testing.T) {
	text := `{"classification":"interested","confidence":0.85,"reasoning":"positive tone","suggested_action":"forward_to_client","extracted_details":{"phone_number":"+1 555 0100"}}`

	classification, confidence, reasoning, action, details := parseModelOutput(text)
	assert.Equal(t, "interested", classification)
	assert.Equal(t, 0.85, confidence)
	assert.Equal(t, "positive tone", reasoning)
	assert.Equal(t, "forward_to_client", action)
	assert.Equal(t, map[string]interface{}{"phone_number": "+1 555 0100"}, details)
}

func TestParseModelOutput_MarkdownFenced(t *testing.T) {
	text := "Here is my analysis:\n```json\n{\"classification\":\"willing_to_meet\",\"confidence\":0.95,\"reasoning\":\"asks for a call\",\"suggested_action\":\"schedule_followup\",\"extracted_details\":{}}\n```\nLet me know if you need more."

	classification, confidence, _, _, _ := parseModelOutput(text)
	assert.Equal(t, "willing_to_meet", classification)
	assert.Equal(t, 0.95, confidence)
}

func TestParseModelOutput_MalformedYieldsFallback(t *testing.T) {
	for _, text := range []string{
		"I could not classify this email.",
		"",
		"{not json at all",
		"{\"classification\": }",
	} {
		classification, confidence, reasoning, action, details := parseModelOutput(text)
		assert.Equal(t, ClassOther, classification, "input: %q", text)
		assert.Equal(t, 0.5, confidence, "input: %q", text)
		assert.Equal(t, "Failed to parse AI response", reasoning, "input: %q", text)
		assert.Equal(t, "ignore", action, "input: %q", text)
		assert.Equal(t, map[string]interface{}{}, details, "input: %q", text)
	}
}

func TestParseModelOutput_FallbackIsIdempotent(t *testing.T) {
	c1, f1, r1, a1, _ := parseModelOutput("garbage")
	c2, f2, r2, a2, _ := parseModelOutput("garbage")
	assert.Equal(t, c1, c2)
	assert.Equal(t, f1, f2)
	assert.Equal(t, r1, r2)
	assert.Equal(t, a1, a2)
}

func TestParseModelOutput_UnknownClassificationCoercesToOther(t *testing.T) {
	classification, _, _, _, _ := parseModelOutput(`{"classification":"spam","confidence":0.9}`)
	assert.Equal(t, ClassOther, classification)
}

func TestParseModelOutput_MissingFieldsGetDefaults(t *testing.T) {
	classification, confidence, reasoning, action, details := parseModelOutput(`{"classification":"bounce"}`)
	assert.Equal(t, ClassBounce, classification)
	assert.Equal(t, 0.5, confidence)
	assert.Equal(t, "", reasoning)
	assert.Equal(t, "ignore", action)
	assert.Equal(t, map[string]interface{}{}, details)
}

func TestParseModelOutput_ConfidenceCoercion(t *testing.T) {
	cases := []struct {
		name string
		json string
		want float64
	}{
		{"in range", `{"classification":"other","confidence":0.7}`, 0.7},
		{"zero is valid", `{"classification":"other","confidence":0}`, 0},
		{"one is valid", `{"classification":"other","confidence":1}`, 1},
		{"numeric string", `{"classification":"other","confidence":"0.6"}`, 0.6},
		{"above range", `{"classification":"other","confidence":1.5}`, 0.5},
		{"below range", `{"classification":"other","confidence":-0.2}`, 0.5},
		{"non-numeric string", `{"classification":"other","confidence":"high"}`, 0.5},
		{"null", `{"classification":"other","confidence":null}`, 0.5},
		{"missing", `{"classification":"other"}`, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, confidence, _, _, _ := parseModelOutput(tc.json)
			assert.Equal(t, tc.want, confidence)
		})
	}
}

func TestValidClassification(t *testing.T) {
	for _, c := range Classifications {
		assert.True(t, ValidClassification(c))
	}
	assert.False(t, ValidClassification("spam"))
	assert.False(t, ValidClassification(""))
}
