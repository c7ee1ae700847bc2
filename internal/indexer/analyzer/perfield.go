package analyzer

// PerField selects an Analyzer per field name, falling back to Default for
// fields without an explicit entry.
type PerField struct {
	Default Analyzer
	Fields  map[string]Analyzer
}

// For returns the analyzer configured for field.
func (p PerField) For(field string) Analyzer {
	if a, ok := p.Fields[field]; ok {
		return a
	}
	return p.Default
}
