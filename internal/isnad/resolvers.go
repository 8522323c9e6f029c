package isnad

// ContextResolver disambiguates a mention using the name of its neighbor.
type ContextResolver struct {
	lookup *Lookup
	rules  *ContextRules
}

func NewContextResolver(lookup *Lookup, rules *ContextRules) *ContextResolver {
	return &ContextResolver{lookup: lookup, rules: rules}
}

// Resolve looks up the (mention, neighbor) rule and resolves its canonical
// name. The collector (position 0) has no neighbor and is never matched.
func (r *ContextResolver) Resolve(c *Chain, pos int) Match {
	if pos < 0 || pos >= len(c.Mentions) {
		return Match{Outcome: NotFound}
	}
	neighbor, ok := c.neighbor(pos)
	if !ok {
		return Match{Outcome: NotFound}
	}
	return r.resolveRaw(c.Mentions[pos].RawText, neighbor)
}

func (r *ContextResolver) resolveRaw(raw, neighbor string) Match {
	canonical, ok := r.rules.Lookup(raw, neighbor)
	if !ok {
		return Match{Outcome: NotFound}
	}
	return r.lookup.Resolve(canonical)
}

// MappingResolver resolves a mention through the static short-name table.
type MappingResolver struct {
	lookup *Lookup
	rules  *MappingRules
}

func NewMappingResolver(lookup *Lookup, rules *MappingRules) *MappingResolver {
	return &MappingResolver{lookup: lookup, rules: rules}
}

// Resolve maps the exact raw text to its canonical name and resolves it.
func (r *MappingResolver) Resolve(raw string) Match {
	canonical, ok := r.rules.Lookup(raw)
	if !ok {
		return Match{Outcome: NotFound}
	}
	return r.lookup.Resolve(canonical)
}
