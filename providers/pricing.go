package providers

// ModelPricing holds per-token prices in USD per 1 million tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// DefaultPricing is the conservative fallback used for models missing from
// the table. It deliberately sits below flagship prices so savings estimates
// for unknown models understate rather than overstate the benefit.
var DefaultPricing = ModelPricing{InputPer1M: 0.50, OutputPer1M: 1.50}

// PricingTable maps "provider/model" keys to pricing data.
// Prices are in USD per 1 million tokens (as listed on public pricing pages).
// This table is best-effort and may lag behind provider price changes.
var PricingTable = map[string]ModelPricing{
	// Anthropic
	"anthropic/claude-sonnet-4-20250514":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"anthropic/claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"anthropic/claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"anthropic/claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"anthropic/claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},

	// OpenAI
	"openai/gpt-4o":        {InputPer1M: 2.50, OutputPer1M: 10.00},
	"openai/gpt-4o-mini":   {InputPer1M: 0.15, OutputPer1M: 0.60},
	"openai/gpt-4-turbo":   {InputPer1M: 10.00, OutputPer1M: 30.00},
	"openai/gpt-4.1":       {InputPer1M: 2.00, OutputPer1M: 8.00},
	"openai/gpt-4.1-mini":  {InputPer1M: 0.40, OutputPer1M: 1.60},
	"openai/o3-mini":       {InputPer1M: 1.10, OutputPer1M: 4.40},
	"openai/gpt-3.5-turbo": {InputPer1M: 0.50, OutputPer1M: 1.50},

	// Google Gemini
	"gemini/gemini-2.0-flash": {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini/gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini/gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},

	// AWS Bedrock (Anthropic models; Bedrock lists the same per-token rates)
	"bedrock/anthropic.claude-3-5-sonnet-20241022-v2:0": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"bedrock/anthropic.claude-3-5-haiku-20241022-v1:0":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"bedrock/anthropic.claude-3-haiku-20240307-v1:0":    {InputPer1M: 0.25, OutputPer1M: 1.25},
}

// PricingFor looks up pricing by provider and model, falling back to
// DefaultPricing when the model is not in the table.
func PricingFor(provider Provider, model string) ModelPricing {
	if p, ok := PricingTable[string(provider)+"/"+model]; ok {
		return p
	}
	return DefaultPricing
}
