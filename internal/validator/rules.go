package validator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

var moneyFieldHints = []string{"amount", "total", "price", "value", "subtotal", "tax", "cost"}

func isMonetaryFieldName(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range moneyFieldHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

var startDateAliases = []string{"effective_date", "start_date", "issue_date"}
var endDateAliases = []string{"end_date", "expiration_date", "expiry_date"}
var subtotalAliases = []string{"subtotal", "sub_total"}
var taxAliases = []string{"tax", "tax_amount", "sales_tax"}
var totalAliases = []string{"total", "total_amount", "grand_total"}

// findFieldName returns the first field name in values whose lowercased
// form matches one of aliases, or "" if none is present. Cross-field rules
// only fire when the relevant fields actually exist on the template.
func findFieldName(values map[string]interfaces.ExtractedValue, aliases []string) string {
	for _, alias := range aliases {
		for name := range values {
			if strings.EqualFold(name, alias) {
				return name
			}
		}
	}
	return ""
}

func numberOf(val models.FieldValue) (float64, bool) {
	if n, ok := val.AsNumber(); ok {
		return n, true
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(val.AsString()), 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// checkMonetaryCap enforces the "monetary fields must be > 0 and <= a
// sanity cap" rule (§4.5). MonetaryCapMinor is expressed in minor currency
// units (cents); extracted monetary values are treated as major units.
func checkMonetaryCap(fieldName string, val models.FieldValue, capMinor int64) []string {
	n, ok := numberOf(val)
	if !ok {
		return nil // already flagged by the type check
	}
	if n <= 0 {
		return []string{fmt.Sprintf("%s: monetary value %.2f must be greater than zero", fieldName, n)}
	}
	capMajor := float64(capMinor) / 100
	if n > capMajor {
		return []string{fmt.Sprintf("%s: monetary value %.2f exceeds the sanity cap of %.2f", fieldName, n, capMajor)}
	}
	return nil
}

// checkDateWindow enforces the configurable future/past window rule (§4.5).
func checkDateWindow(fieldName string, val models.FieldValue, futureDays, pastDays int) []string {
	t, ok := parseFieldDate(val.AsString())
	if !ok {
		return nil // already flagged by the type check
	}
	now := time.Now()
	if t.After(now.AddDate(0, 0, futureDays)) {
		return []string{fmt.Sprintf("%s: date %s is more than %d days in the future", fieldName, t.Format("2006-01-02"), futureDays)}
	}
	if t.Before(now.AddDate(0, 0, -pastDays)) {
		return []string{fmt.Sprintf("%s: date %s is more than %d days in the past", fieldName, t.Format("2006-01-02"), pastDays)}
	}
	return nil
}

// checkEffectiveBeforeEnd enforces effective-date <= end-date for contract
// templates (§4.5 cross-field rule).
func checkEffectiveBeforeEnd(startFieldName string, startVal models.FieldValue, values map[string]interfaces.ExtractedValue) []string {
	endFieldName := findFieldName(values, endDateAliases)
	if endFieldName == "" {
		return nil
	}
	start, ok1 := parseFieldDate(startVal.AsString())
	end, ok2 := parseFieldDate(values[endFieldName].Value.AsString())
	if !ok1 || !ok2 {
		return nil
	}
	if start.After(end) {
		return []string{fmt.Sprintf("%s (%s) must not be after %s (%s)", startFieldName, start.Format("2006-01-02"), endFieldName, end.Format("2006-01-02"))}
	}
	return nil
}

// checkSubtotalPlusTax enforces subtotal + tax ~= total within tolerance
// (§4.5 cross-field rule) for invoice/receipt/purchase-order templates.
func checkSubtotalPlusTax(totalFieldName string, totalVal models.FieldValue, values map[string]interfaces.ExtractedValue, tolerance float64) []string {
	subtotalFieldName := findFieldName(values, subtotalAliases)
	taxFieldName := findFieldName(values, taxAliases)
	if subtotalFieldName == "" || taxFieldName == "" {
		return nil
	}

	total, ok1 := numberOf(totalVal)
	subtotal, ok2 := numberOf(values[subtotalFieldName].Value)
	tax, ok3 := numberOf(values[taxFieldName].Value)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}

	diff := math.Abs((subtotal + tax) - total)
	allowed := total * tolerance
	if allowed < 0 {
		allowed = -allowed
	}
	if diff > allowed {
		return []string{fmt.Sprintf("%s (%.2f) does not match %s + %s (%.2f + %.2f = %.2f)", totalFieldName, total, subtotalFieldName, taxFieldName, subtotal, tax, subtotal+tax)}
	}
	return nil
}

// businessRules applies the cross-field and template-kind rules described
// in §4.5 to one field, given the full extracted value map for cross-field
// lookups. Monetary-cap and date-window checks are field-type-driven and
// apply regardless of kind; the two cross-field rules are gated by kind
// since they only make sense for templates that carry those field roles.
func (v *Validator) businessRules(kind models.TemplateKind, spec models.FieldSpec, val models.FieldValue, values map[string]interfaces.ExtractedValue) []string {
	var errs []string

	if spec.Type == models.FieldTypeNumber && isMonetaryFieldName(spec.Name) {
		errs = append(errs, checkMonetaryCap(spec.Name, val, v.config.MonetaryCapMinor)...)
	}
	if spec.Type == models.FieldTypeDate {
		errs = append(errs, checkDateWindow(spec.Name, val, v.config.DateFutureWindowDays, v.config.DatePastWindowDays)...)
	}

	switch kind {
	case models.TemplateKindContract:
		if startField := findFieldName(values, startDateAliases); startField == spec.Name {
			errs = append(errs, checkEffectiveBeforeEnd(spec.Name, val, values)...)
		}
	case models.TemplateKindInvoice, models.TemplateKindPurchaseOrder, models.TemplateKindReceipt:
		if totalField := findFieldName(values, totalAliases); totalField == spec.Name {
			errs = append(errs, checkSubtotalPlusTax(spec.Name, val, values, v.config.TotalTolerance)...)
		}
	}

	return errs
}
