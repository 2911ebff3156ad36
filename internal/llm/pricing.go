package llm

// tokenPricing holds USD prices per one million tokens.
type tokenPricing struct {
	input  float64
	output float64
}

// anthropicPrices lists USD per 1M tokens by model. Unknown models fall
// back to the default haiku tier so a cost is always recorded.
var anthropicPrices = map[string]tokenPricing{
	"claude-3-haiku-20240307":   {input: 0.25, output: 1.25},
	"claude-3-5-haiku-20241022": {input: 0.80, output: 4.00},
	"claude-sonnet-4-20250514":  {input: 3.00, output: 15.00},
}

const anthropicFallbackModel = "claude-3-haiku-20240307"

// costUSD computes (in×priceIn + out×priceOut)/1e6 with no rounding;
// fixed-precision truncation happens at the storage boundary.
func costUSD(pr tokenPricing, inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)*pr.input + float64(outputTokens)*pr.output) / 1_000_000
}
