package models

// FieldType enumerates the declared type of a FieldSpec / ExtractedField.
type FieldType string

const (
	FieldTypeText            FieldType = "text"
	FieldTypeNumber          FieldType = "number"
	FieldTypeDate            FieldType = "date"
	FieldTypeBoolean         FieldType = "boolean"
	FieldTypeArray           FieldType = "array"
	FieldTypeTable           FieldType = "table"
	FieldTypeArrayOfObjects  FieldType = "array_of_objects"
)

// IsStructured reports whether a field type stores its value in
// field_value_json rather than the scalar field_value column, per the
// invariant in §3 of the data model.
func (t FieldType) IsStructured() bool {
	return t == FieldTypeArray || t == FieldTypeTable || t == FieldTypeArrayOfObjects
}

// TemplateKind discriminates business-rule sets in the Validator (§4.5).
type TemplateKind string

const (
	TemplateKindInvoice        TemplateKind = "invoice"
	TemplateKindReceipt        TemplateKind = "receipt"
	TemplateKindContract       TemplateKind = "contract"
	TemplateKindPurchaseOrder  TemplateKind = "purchase_order"
	TemplateKindGeneric        TemplateKind = "generic"
)

// FieldSpec declares one field a Template expects to be extracted.
type FieldSpec struct {
	Name                string    `json:"name"`
	Type                FieldType `json:"type"`
	Required            bool      `json:"required"`
	Description         string    `json:"description"`
	ExtractionHints     []string  `json:"extraction_hints,omitempty"`
	ConfidenceThreshold *float64  `json:"confidence_threshold,omitempty"`
}

// Template is a named schema: an ordered, name-unique collection of
// FieldSpecs, plus the bookkeeping that drives signature re-indexing.
type Template struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Kind            TemplateKind `json:"kind"`
	Fields          []FieldSpec  `json:"fields"`
	SignatureVersion int         `json:"signature_version"`
}

// FieldByName returns the FieldSpec with the given name, or nil.
func (t *Template) FieldByName(name string) *FieldSpec {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// SignatureDoc is the per-template fingerprint used by TemplateMatcher's
// MoreLikeThis signature search. One per Template, recomputed whenever
// SignatureVersion is bumped.
type SignatureDoc struct {
	TemplateID string   `json:"template_id"`
	FieldNames []string `json:"field_names"`
	SampleText string   `json:"sample_text,omitempty"`
	Version    int      `json:"version"`
}
