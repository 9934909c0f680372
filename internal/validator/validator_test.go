package validator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
	"github.com/docuflow/docuflow/internal/models"
	"github.com/docuflow/docuflow/internal/validator"
)

func defaultConfig() *common.ValidationConfig {
	return &common.ValidationConfig{
		ReviewThreshold:      0.60,
		HighConfidence:       0.85,
		MonetaryCapMinor:     100_000_000_00,
		DateFutureWindowDays: 30,
		DatePastWindowDays:   3650,
		TotalTolerance:       0.01,
	}
}

func ev(val models.FieldValue, confidence float64) interfaces.ExtractedValue {
	return interfaces.ExtractedValue{Value: val, Confidence: confidence}
}

func TestValidate_RequiredFieldMissing(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind:   models.TemplateKindGeneric,
		Fields: []models.FieldSpec{{Name: "vendor", Type: models.FieldTypeText, Required: true}},
	}

	results, err := v.Validate(context.Background(), tmpl, map[string]interfaces.ExtractedValue{})
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeWarning, results["vendor"].Status)
	require.NotEmpty(t, results["vendor"].Errors)
}

func TestValidate_OptionalFieldMissing_IsValid(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind:   models.TemplateKindGeneric,
		Fields: []models.FieldSpec{{Name: "notes", Type: models.FieldTypeText, Required: false}},
	}

	results, err := v.Validate(context.Background(), tmpl, map[string]interfaces.ExtractedValue{})
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeValid, results["notes"].Status)
}

func TestValidate_TypeMismatch_Number(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind:   models.TemplateKindGeneric,
		Fields: []models.FieldSpec{{Name: "quantity", Type: models.FieldTypeNumber, Required: true}},
	}
	values := map[string]interfaces.ExtractedValue{
		"quantity": ev(models.NewScalarValue("not-a-number"), 0.9),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeError, results["quantity"].Status)
}

func TestValidate_MonetaryCap_Exceeded(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind:   models.TemplateKindInvoice,
		Fields: []models.FieldSpec{{Name: "total_amount", Type: models.FieldTypeNumber, Required: true}},
	}
	values := map[string]interfaces.ExtractedValue{
		"total_amount": ev(models.NewNumberValue(999_999_999_999), 0.95),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeError, results["total_amount"].Status)
}

func TestValidate_MonetaryValue_NotPositive(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind:   models.TemplateKindReceipt,
		Fields: []models.FieldSpec{{Name: "amount", Type: models.FieldTypeNumber, Required: true}},
	}
	values := map[string]interfaces.ExtractedValue{
		"amount": ev(models.NewNumberValue(0), 0.5),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeWarning, results["amount"].Status)
}

func TestValidate_DateOutsideFutureWindow(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind:   models.TemplateKindContract,
		Fields: []models.FieldSpec{{Name: "issue_date", Type: models.FieldTypeDate, Required: true}},
	}
	farFuture := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	values := map[string]interfaces.ExtractedValue{
		"issue_date": ev(models.NewScalarValue(farFuture), 0.9),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeError, results["issue_date"].Status)
}

func TestValidate_Contract_EffectiveAfterEnd(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind: models.TemplateKindContract,
		Fields: []models.FieldSpec{
			{Name: "effective_date", Type: models.FieldTypeDate, Required: true},
			{Name: "end_date", Type: models.FieldTypeDate, Required: true},
		},
	}
	values := map[string]interfaces.ExtractedValue{
		"effective_date": ev(models.NewScalarValue("2026-06-01"), 0.9),
		"end_date":       ev(models.NewScalarValue("2026-01-01"), 0.9),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeError, results["effective_date"].Status)
	require.Equal(t, interfaces.ValidationOutcomeValid, results["end_date"].Status)
}

func TestValidate_Contract_EffectiveBeforeEnd_IsValid(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind: models.TemplateKindContract,
		Fields: []models.FieldSpec{
			{Name: "effective_date", Type: models.FieldTypeDate, Required: true},
			{Name: "end_date", Type: models.FieldTypeDate, Required: true},
		},
	}
	values := map[string]interfaces.ExtractedValue{
		"effective_date": ev(models.NewScalarValue("2026-01-01"), 0.9),
		"end_date":       ev(models.NewScalarValue("2026-06-01"), 0.9),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeValid, results["effective_date"].Status)
	require.Equal(t, interfaces.ValidationOutcomeValid, results["end_date"].Status)
}

func TestValidate_Invoice_SubtotalPlusTaxMismatch(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind: models.TemplateKindInvoice,
		Fields: []models.FieldSpec{
			{Name: "subtotal", Type: models.FieldTypeNumber, Required: true},
			{Name: "tax", Type: models.FieldTypeNumber, Required: true},
			{Name: "total", Type: models.FieldTypeNumber, Required: true},
		},
	}
	values := map[string]interfaces.ExtractedValue{
		"subtotal": ev(models.NewNumberValue(100), 0.9),
		"tax":      ev(models.NewNumberValue(8), 0.9),
		"total":    ev(models.NewNumberValue(200), 0.9),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeError, results["total"].Status)
	require.Equal(t, interfaces.ValidationOutcomeValid, results["subtotal"].Status)
}

func TestValidate_Invoice_SubtotalPlusTaxWithinTolerance(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind: models.TemplateKindInvoice,
		Fields: []models.FieldSpec{
			{Name: "subtotal", Type: models.FieldTypeNumber, Required: true},
			{Name: "tax", Type: models.FieldTypeNumber, Required: true},
			{Name: "total", Type: models.FieldTypeNumber, Required: true},
		},
	}
	values := map[string]interfaces.ExtractedValue{
		"subtotal": ev(models.NewNumberValue(100), 0.9),
		"tax":      ev(models.NewNumberValue(8), 0.9),
		"total":    ev(models.NewNumberValue(108.005), 0.9),
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeValid, results["total"].Status)
}

func TestValidate_Generic_NoBusinessRulesFire(t *testing.T) {
	v := validator.New(defaultConfig(), arbor.NewLogger())
	tmpl := &models.Template{
		Kind: models.TemplateKindGeneric,
		Fields: []models.FieldSpec{
			{Name: "subtotal", Type: models.FieldTypeNumber, Required: true},
			{Name: "tax", Type: models.FieldTypeNumber, Required: true},
			{Name: "total", Type: models.FieldTypeNumber, Required: true},
		},
	}
	values := map[string]interfaces.ExtractedValue{
		"subtotal": ev(models.NewNumberValue(100), 0.9),
		"tax":      ev(models.NewNumberValue(8), 0.9),
		"total":    ev(models.NewNumberValue(999), 0.9), // would fail the invoice cross-check
	}

	results, err := v.Validate(context.Background(), tmpl, values)
	require.NoError(t, err)
	require.Equal(t, interfaces.ValidationOutcomeValid, results["total"].Status)
}
