package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FieldValueKind discriminates the FieldValue tagged variant.
type FieldValueKind int

const (
	FieldValueScalar FieldValueKind = iota
	FieldValueNumber
	FieldValueArray
	FieldValueTable
	FieldValueArrayOfObjects
)

// TableValue is the row/column representation for FieldType.table values.
// Every row must have the same number of cells as Headers.
type TableValue struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Valid reports whether every row has a column count consistent with Headers.
func (t *TableValue) Valid() bool {
	if t == nil {
		return false
	}
	for _, row := range t.Rows {
		if len(row) != len(t.Headers) {
			return false
		}
	}
	return true
}

// FieldValue is the closed sum type backing ExtractedField's value per the
// §9 rebuild note: Scalar | Number | Array | Table | ArrayOfObjects.
type FieldValue struct {
	Kind    FieldValueKind          `json:"kind"`
	Scalar  string                  `json:"scalar,omitempty"`
	Number  float64                 `json:"number,omitempty"`
	Array   []FieldValue            `json:"array,omitempty"`
	Table   *TableValue             `json:"table,omitempty"`
	Objects []map[string]FieldValue `json:"objects,omitempty"`
}

// NewScalarValue constructs a scalar FieldValue.
func NewScalarValue(s string) FieldValue { return FieldValue{Kind: FieldValueScalar, Scalar: s} }

// NewNumberValue constructs a numeric FieldValue.
func NewNumberValue(n float64) FieldValue { return FieldValue{Kind: FieldValueNumber, Number: n} }

// NewArrayValue constructs an array FieldValue.
func NewArrayValue(items []FieldValue) FieldValue {
	return FieldValue{Kind: FieldValueArray, Array: items}
}

// NewTableValue constructs a table FieldValue.
func NewTableValue(t *TableValue) FieldValue { return FieldValue{Kind: FieldValueTable, Table: t} }

// NewArrayOfObjectsValue constructs an array-of-objects FieldValue.
func NewArrayOfObjectsValue(objs []map[string]FieldValue) FieldValue {
	return FieldValue{Kind: FieldValueArrayOfObjects, Objects: objs}
}

// AsString returns the scalar string form, formatting numbers when needed.
func (v FieldValue) AsString() string {
	switch v.Kind {
	case FieldValueScalar:
		return v.Scalar
	case FieldValueNumber:
		return fmt.Sprintf("%g", v.Number)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// AsNumber returns the numeric form of a Number value; other kinds,
// including scalars, report false.
func (v FieldValue) AsNumber() (float64, bool) {
	if v.Kind == FieldValueNumber {
		return v.Number, true
	}
	return 0, false
}

// IsStructured reports whether this value must be stored in the JSON column
// rather than the scalar text column, per the §3 invariant.
func (v FieldValue) IsStructured() bool {
	return v.Kind == FieldValueArray || v.Kind == FieldValueTable || v.Kind == FieldValueArrayOfObjects
}

// ValidationStatus is the outcome of the Validator pass for one field.
type ValidationStatus string

const (
	ValidationStatusValid     ValidationStatus = "valid"
	ValidationStatusWarning   ValidationStatus = "warning"
	ValidationStatusError     ValidationStatus = "error"
	ValidationStatusUnchecked ValidationStatus = "unchecked"
)

// AuditPriority is the 4-tier audit queue priority (0=critical..3=low).
type AuditPriority int

const (
	AuditPriorityCritical AuditPriority = 0
	AuditPriorityHigh     AuditPriority = 1
	AuditPriorityMedium   AuditPriority = 2
	AuditPriorityLow      AuditPriority = 3
)

// ComputePriority is the pure function described in §4.6: audit priority is
// derived solely from (confidence, validation status, review threshold) with
// an additional high-confidence promotion to "low" for clean valid fields.
//
//	confidence < reviewThreshold, status == error  -> critical
//	confidence < reviewThreshold, status != error  -> high
//	confidence >= reviewThreshold, status == error -> high
//	confidence >= reviewThreshold, status == warning -> medium
//	confidence >= highConfidence, status == valid  -> low
func ComputePriority(confidence float64, status ValidationStatus, reviewThreshold, highConfidence float64) AuditPriority {
	if confidence < reviewThreshold {
		if status == ValidationStatusError {
			return AuditPriorityCritical
		}
		return AuditPriorityHigh
	}
	if status == ValidationStatusError {
		return AuditPriorityHigh
	}
	if status == ValidationStatusWarning {
		return AuditPriorityMedium
	}
	if confidence >= highConfidence && status == ValidationStatusValid {
		return AuditPriorityLow
	}
	return AuditPriorityMedium
}

// ExtractedField is one value extracted from one Document for one FieldSpec.
type ExtractedField struct {
	ID               string           `json:"id"`
	DocumentID       string           `json:"document_id"`
	FieldName        string           `json:"field_name"`
	FieldType        FieldType        `json:"field_type"`
	Value            FieldValue       `json:"value"`
	Confidence       float64          `json:"confidence"`
	SourcePage       *int             `json:"source_page,omitempty"`
	SourceBBox       *BBox            `json:"source_bbox,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationErrors []string         `json:"validation_errors,omitempty"`
	AuditPriority    AuditPriority    `json:"audit_priority"`
	Verified         bool             `json:"verified"`
	VerifiedValue    *string          `json:"verified_value,omitempty"`
	VerifiedAt       *time.Time       `json:"verified_at,omitempty"`
	CitationCount    int              `json:"citation_count"`
	LastCitedAt      *time.Time       `json:"last_cited_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}
