package usage

import "github.com/lessonforge/scribe/internal/config"

// CostUSD computes the cost of a call from per-1k-token rates. When the model
// capability carries no rates, the provider's default pricing applies.
func CostUSD(cap config.ModelCapability, providerDefault *config.PriceEntry, inputTokens, outputTokens int) float64 {
	inRate, outRate := cap.InputPer1K, cap.OutputPer1K
	if inRate == 0 && outRate == 0 && providerDefault != nil {
		inRate, outRate = providerDefault.Input, providerDefault.Output
	}
	return float64(inputTokens)/1000*inRate + float64(outputTokens)/1000*outRate
}
