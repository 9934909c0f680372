package validator

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docuflow/internal/models"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// parseFieldDate tries each accepted layout in turn; ISO-8601 (RFC3339 and
// the bare date form) first, then the named formats quaero's own chat
// services already parse dates with.
func parseFieldDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var boolWords = map[string]bool{
	"true": true, "yes": true,
	"false": false, "no": false,
}

// checkType validates a field's extracted value against its declared
// FieldSpec.Type, plus the Required presence check (§4.5 step "Type
// check").
func (v *Validator) checkType(spec models.FieldSpec, val models.FieldValue) []string {
	var errs []string
	errs = append(errs, v.checkRequired(spec, val)...)

	if !spec.Required && val.Kind == models.FieldValueScalar && val.Scalar == "" {
		return errs // absent optional field: nothing further to check
	}

	switch spec.Type {
	case models.FieldTypeNumber:
		if val.Kind == models.FieldValueNumber {
			break
		}
		if _, err := strconv.ParseFloat(strings.TrimSpace(val.Scalar), 64); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q does not parse as a number", spec.Name, val.Scalar))
		}

	case models.FieldTypeDate:
		if _, ok := parseFieldDate(val.AsString()); !ok {
			errs = append(errs, fmt.Sprintf("%s: %q does not parse as a date", spec.Name, val.AsString()))
		}

	case models.FieldTypeBoolean:
		if _, ok := boolWords[strings.ToLower(strings.TrimSpace(val.AsString()))]; !ok {
			errs = append(errs, fmt.Sprintf("%s: %q is not a recognized boolean (true/false/yes/no)", spec.Name, val.AsString()))
		}

	case models.FieldTypeArray:
		if val.Kind != models.FieldValueArray {
			errs = append(errs, fmt.Sprintf("%s: expected an array value", spec.Name))
		}

	case models.FieldTypeTable:
		if val.Kind != models.FieldValueTable || val.Table == nil {
			errs = append(errs, fmt.Sprintf("%s: expected a table value", spec.Name))
		} else if !val.Table.Valid() {
			errs = append(errs, fmt.Sprintf("%s: table rows have inconsistent column counts", spec.Name))
		}

	case models.FieldTypeArrayOfObjects:
		if val.Kind != models.FieldValueArrayOfObjects {
			errs = append(errs, fmt.Sprintf("%s: expected an array of objects value", spec.Name))
		}
	}

	return errs
}
