package config

// ModelCapability describes what request parameters a generation
// model accepts. Capabilities are resolved here, at configuration
// time; call sites never branch on model names.
type ModelCapability struct {
	// SupportsTemperature is false for models that reject the
	// temperature parameter outright.
	SupportsTemperature bool
}

// modelCapabilities is the descriptor table for known models. Unknown
// models get the permissive default.
var modelCapabilities = map[string]ModelCapability{
	"gpt-4o":      {SupportsTemperature: true},
	"gpt-4o-mini": {SupportsTemperature: true},
	"gpt-4.1":     {SupportsTemperature: true},
	"o1":          {SupportsTemperature: false},
	"o1-mini":     {SupportsTemperature: false},
	"o3-mini":     {SupportsTemperature: false},
}

// defaultCapability is used for models absent from the table.
var defaultCapability = ModelCapability{SupportsTemperature: true}

// CapabilityFor returns the capability descriptor for a model.
func CapabilityFor(model string) ModelCapability {
	if capability, ok := modelCapabilities[model]; ok {
		return capability
	}
	return defaultCapability
}

// ResolveTemperature returns the temperature to send for the
// configured model, nil when the model does not accept one. The
// explicit supports_temperature override wins over the table.
func (c *LLMConfig) ResolveTemperature() *float64 {
	supports := CapabilityFor(c.Model).SupportsTemperature
	if c.SupportsTemperature != nil {
		supports = *c.SupportsTemperature
	}
	if !supports {
		return nil
	}
	temp := c.Temperature
	return &temp
}
