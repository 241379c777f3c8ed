package extract

// Registry dispatches extractors by entity type.
type Registry struct {
	byType map[string][]Extractor
}

// NewRegistry builds a registry from the given extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byType: make(map[string][]Extractor)}
	for _, ex := range extractors {
		for _, t := range ex.EntityTypes() {
			r.byType[t] = append(r.byType[t], ex)
		}
	}
	return r
}

// DefaultRegistry wires every built-in extractor.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Ownership{},
		Funding{},
		CrossBorderFunding{},
		PoliticalContribution{},
		BeneficialOwnership{},
		SharedAddress{},
	)
}

// For returns the extractors applicable to an entity type.
func (r *Registry) For(entityType string) []Extractor {
	return r.byType[entityType]
}
