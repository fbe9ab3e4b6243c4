package llm

import (
	"fmt"

	"loreweaver/internal/config"
)

// Router resolves capabilities to providers once at construction time.
// Dispatch is a map lookup; it never consults configuration again.
type Router struct {
	table map[Capability]Provider
}

func NewRouter(routing config.RoutingConfig, providers map[string]Provider) (*Router, error) {
	routes := map[Capability]string{
		CapabilityPlan:       routing.Plan,
		CapabilityExecute:    routing.Execute,
		CapabilityCritique:   routing.Critique,
		CapabilitySynthesize: routing.Synthesize,
	}

	table := make(map[Capability]Provider, len(routes))
	for capability, name := range routes {
		provider, ok := providers[name]
		if !ok {
			return nil, fmt.Errorf("routing %s: unknown provider: %s", capability, name)
		}
		if !provider.Supports(capability) {
			return nil, fmt.Errorf("routing %s: provider %s does not support it", capability, provider.Name())
		}
		table[capability] = provider
	}

	return &Router{table: table}, nil
}

func (r *Router) Provider(capability Capability) (Provider, error) {
	provider, ok := r.table[capability]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCapability, capability)
	}
	return provider, nil
}
