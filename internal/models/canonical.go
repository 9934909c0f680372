package models

// CanonicalFieldMapping is a persisted, user-editable cross-template
// semantic field (§6). FieldMappings maps a template name to the concrete
// field name within that template which realizes the canonical concept.
type CanonicalFieldMapping struct {
	CanonicalName   string            `json:"canonical_name"`
	FieldMappings   map[string]string `json:"field_mappings"` // template name -> field name
	AggregationType AggregationType   `json:"aggregation_type"`
}

// CanonicalAlias is a synonym that resolves to a CanonicalFieldMapping's
// CanonicalName at query-parsing time (§6 example: aliases ["sales",
// "income", "total"] for canonical_name "revenue").
type CanonicalAlias struct {
	Alias         string `json:"alias"`
	CanonicalName string `json:"canonical_name"`
}

// DefaultCanonicalNames is the built-in canonical registry described in
// §4.2: these names are always resolvable even with no user-added mappings.
var DefaultCanonicalNames = []string{
	"amount", "date", "start_date", "end_date", "entity_name",
	"identifier", "status", "description", "quantity", "address", "contact",
}

// Setting is one row of the process-wide settings key/value relation
// (§6 persisted-state layout). Values are stored as strings and parsed by
// the consumer (thresholds as float64, flags as bool, etc.).
type Setting struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}
