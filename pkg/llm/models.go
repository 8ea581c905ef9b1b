package llm

// ModelInfo describes a specific model's limits and pricing.
type ModelInfo struct {
	// ID is the provider-specific model identifier (e.g., "claude-3-5-sonnet-20241022").
	ID string

	// Name is the human-readable model name.
	Name string

	// ContextWindow is the maximum context size in tokens.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one response.
	MaxOutputTokens int

	// InputPricePerMillion is the cost in USD per million input tokens.
	InputPricePerMillion float64

	// OutputPricePerMillion is the cost in USD per million output tokens.
	OutputPricePerMillion float64

	// Default marks the model used when a request names none.
	Default bool
}

// Cost returns the USD cost of usage at this model's rates.
func (m ModelInfo) Cost(u TokenUsage) float64 {
	return float64(u.InputTokens)*m.InputPricePerMillion/1_000_000 +
		float64(u.OutputTokens)*m.OutputPricePerMillion/1_000_000
}

// GetModelByID returns the model with the specified ID, or nil.
func GetModelByID(models []ModelInfo, id string) *ModelInfo {
	for i := range models {
		if models[i].ID == id {
			return &models[i]
		}
	}
	return nil
}

// DefaultModel returns the model flagged as default, or the first model.
// Returns nil for an empty list.
func DefaultModel(models []ModelInfo) *ModelInfo {
	for i := range models {
		if models[i].Default {
			return &models[i]
		}
	}
	if len(models) > 0 {
		return &models[0]
	}
	return nil
}

// EstimateCost prices usage against a provider's model table. Unknown models
// cost zero so that local or self-hosted models do not break accounting.
func EstimateCost(p Provider, model string, u TokenUsage) float64 {
	if p == nil {
		return 0
	}
	if m := GetModelByID(p.Capabilities().Models, model); m != nil {
		return m.Cost(u)
	}
	return 0
}
