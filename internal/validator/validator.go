// Package validator implements interfaces.Validator: type checks per
// FieldSpec plus template-kind business rules, with confidence-adjusted
// severity (§4.5). Type checking follows the teacher's
// internal/workers/processing/signal_analysis_schema.go use of
// go-playground/validator/v10 struct tags; the cross-field and
// monetary/date business rules that tags can't express follow the pure,
// typed-struct scoring-function idiom in internal/services/rating (e.g.
// bfs.go: derive booleans, count/check them, return a typed result).
package validator

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
)

// Validator implements interfaces.Validator.
type Validator struct {
	config *common.ValidationConfig
	structV *validator.Validate
	logger arbor.ILogger
}

// New constructs a Validator.
var _ interfaces.Validator = (*Validator)(nil)

func New(config *common.ValidationConfig, logger arbor.ILogger) *Validator {
	return &Validator{config: config, structV: validator.New(), logger: logger}
}

// Validate runs type checks then business rules for every FieldSpec in
// tmpl, adjusting each field's severity by its extraction confidence.
func (v *Validator) Validate(ctx context.Context, tmpl *models.Template, values map[string]interfaces.ExtractedValue) (map[string]interfaces.FieldValidation, error) {
	results := make(map[string]interfaces.FieldValidation, len(tmpl.Fields))

	for _, spec := range tmpl.Fields {
		ev, present := values[spec.Name]
		if !present {
			ev = interfaces.ExtractedValue{Value: models.FieldValue{}, Confidence: 0}
		}

		var errs []string
		errs = append(errs, v.checkType(spec, ev.Value)...)
		errs = append(errs, v.businessRules(tmpl.Kind, spec, ev.Value, values)...)

		results[spec.Name] = v.classify(errs, ev.Confidence)
	}

	return results, nil
}

// classify turns a field's accumulated rule errors plus its extraction
// confidence into a final {status, errors} outcome. A clean field is
// always valid; a field with errors defaults to "error" severity, demoted
// to "warning" when confidence falls below ReviewThreshold (the extractor
// itself may just be guessing) and left at "error" (the spec's explicit
// "promote to error") when confidence is at or above HighConfidence.
func (v *Validator) classify(errs []string, confidence float64) interfaces.FieldValidation {
	if len(errs) == 0 {
		return interfaces.FieldValidation{Status: interfaces.ValidationOutcomeValid}
	}

	status := interfaces.ValidationOutcomeError
	if confidence < v.config.ReviewThreshold {
		status = interfaces.ValidationOutcomeWarning
	}
	if confidence >= v.config.HighConfidence {
		status = interfaces.ValidationOutcomeError
	}

	return interfaces.FieldValidation{Status: status, Errors: errs}
}

// requiredFieldCheck is a throwaway struct exercising go-playground/
// validator's struct-tag engine for the one rule that maps cleanly onto a
// single tag: a required field must have a non-empty extracted value.
type requiredFieldCheck struct {
	Value string `validate:"required"`
}

func (v *Validator) checkRequired(spec models.FieldSpec, val models.FieldValue) []string {
	if !spec.Required {
		return nil
	}
	check := requiredFieldCheck{Value: val.AsString()}
	if err := v.structV.Struct(check); err != nil {
		return []string{fmt.Sprintf("%s is required", spec.Name)}
	}
	return nil
}
