package llm

// ModelTier categorizes models by capability and cost.
type ModelTier string

const (
	// ModelTierFast identifies low-latency models for general tasks.
	ModelTierFast ModelTier = "fast"

	// ModelTierStrategic identifies high-capability models for complex
	// reasoning such as mathematical proofs.
	ModelTierStrategic ModelTier = "strategic"
)

// ModelInfo describes a model available from a provider.
type ModelInfo struct {
	// ID is the provider-specific model identifier.
	ID string

	// Name is the human-readable model name.
	Name string

	// Tier classifies the model's capability level.
	Tier ModelTier

	// MaxOutputTokens is the maximum response length.
	MaxOutputTokens int

	// SupportsThinking indicates whether the model accepts a reasoning budget.
	SupportsThinking bool

	// Description explains when to choose this model.
	Description string
}

// FindModel returns the model with the given ID from a capability set.
// Returns false if the provider does not list the model.
func FindModel(caps Capabilities, id string) (ModelInfo, bool) {
	for _, m := range caps.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelInfo{}, false
}
