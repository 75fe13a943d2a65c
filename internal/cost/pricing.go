// Package cost meters LLM token usage and converts it to USD.
package cost

import "github.com/firebase/genkit/go/ai"

// Pricing defines USD cost per 1M tokens for input and output.
type Pricing struct {
	InputPerM  float64
	OutputPerM float64
}

// defaultPricing is hardcoded USD pricing per 1M text tokens.
var defaultPricing = map[string]Pricing{
	"gemini-2.5-pro":        {InputPerM: 1.25, OutputPerM: 10.00},
	"gemini-2.5-flash":      {InputPerM: 0.30, OutputPerM: 2.50},
	"gemini-2.5-flash-lite": {InputPerM: 0.10, OutputPerM: 0.40},
	"gpt-4o":                {InputPerM: 2.50, OutputPerM: 10.00},
	"gpt-4o-mini":           {InputPerM: 0.15, OutputPerM: 0.60},
}

// ResolvePricing returns the pricing for a model. Unknown models (including
// anything local via Ollama) resolve to zero pricing; their tokens are still
// counted.
func ResolvePricing(model string) Pricing {
	if p, ok := defaultPricing[model]; ok {
		return p
	}
	return Pricing{}
}

// Compute converts generation usage to USD using per-1M pricing.
func Compute(usage *ai.GenerationUsage, p Pricing) (inputCost, outputCost, total float64) {
	if usage == nil {
		return 0, 0, 0
	}
	inputCost = p.InputPerM * float64(usage.InputTokens) / 1_000_000.0
	outputCost = p.OutputPerM * float64(usage.OutputTokens) / 1_000_000.0
	total = inputCost + outputCost
	return inputCost, outputCost, total
}
