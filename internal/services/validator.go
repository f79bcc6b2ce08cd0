package services

import (
	"fmt"
	"strconv"

	"tradecompass-core/internal/models"
)

// ValidateStep is the pure completeness check for one step given all
// accumulated workflow data. Verdicts are data values; an invalid step is a
// normal outcome that gates forward navigation, never an error.
//
// Thresholds differ by step on purpose: tariff analysis tolerates templated
// rates up to half the catalog, while workforce planning and AI preferences
// accept nothing but complete, user-confirmed input.
func ValidateStep(step models.WorkflowStep, data map[models.WorkflowStep]map[string]interface{}, sources map[string]models.SourceMeta) *models.StepValidation {
	validation := &models.StepValidation{
		CriticalFieldsMissing: []string{},
		Warnings:              []string{},
	}

	for _, meta := range sources {
		switch meta.Type {
		case models.SourceTypeTemplate:
			validation.TemplateDataCount++
		case models.SourceTypeUser:
			validation.UserDataCount++
		}
	}

	switch step {
	case models.StepWelcome, models.StepComplete:
		validation.IsValid = true
		validation.Completeness = 100

	case models.StepFileImport:
		validateFileImport(data, validation)

	case models.StepTariffAnalysis:
		validateTariffAnalysis(data, validation)

	case models.StepSupplierDiversification:
		validateSupplierDiversification(data, validation)

	case models.StepSupplyChainPlanning:
		validateSupplyChainPlanning(data, validation)

	case models.StepWorkforcePlanning:
		validateWorkforcePlanning(data, validation)

	case models.StepAlertsSetup:
		validateAlertsSetup(data, validation)

	case models.StepAIRecommendations:
		validateAIRecommendations(data, validation)
	}

	return validation
}

func validateFileImport(data map[models.WorkflowStep]map[string]interface{}, validation *models.StepValidation) {
	records := sliceField(data[models.StepFileImport], "importedProducts")

	if len(records) == 0 {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "importedProducts")
		return
	}

	validation.IsValid = true
	validation.Completeness = 100
}

func validateTariffAnalysis(data map[models.WorkflowStep]map[string]interface{}, validation *models.StepValidation) {
	records := sliceField(data[models.StepFileImport], "importedProducts")

	if len(records) == 0 {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "importedProducts")
		validation.Warnings = append(validation.Warnings, "Tariff analysis requires imported product data")
		return
	}

	withRate := 0
	for _, record := range records {
		fields, ok := record.(map[string]interface{})
		if !ok {
			continue
		}
		if numberField(fields, "tariffRate") > 0 {
			withRate++
		}
	}

	validation.Completeness = float64(withRate) / float64(len(records)) * 100
	validation.IsValid = validation.Completeness >= 50

	if !validation.IsValid {
		validation.Warnings = append(validation.Warnings, "many products using template tariff rates")
	}
}

func validateSupplierDiversification(data map[models.WorkflowStep]map[string]interface{}, validation *models.StepValidation) {
	suppliers := sliceField(data[models.StepSupplierDiversification], "suppliers")
	distinct := countDistinctSuppliers(suppliers)

	if len(suppliers) > 0 {
		validation.Completeness = 100
	}

	// Presence alone is not diversification: validity needs two distinct names.
	validation.IsValid = distinct >= 2

	if distinct == 0 {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "suppliers")
	} else if distinct == 1 {
		validation.Warnings = append(validation.Warnings, "only one distinct supplier recorded; diversification requires at least two")
	}
}

func validateSupplyChainPlanning(data map[models.WorkflowStep]map[string]interface{}, validation *models.StepValidation) {
	plan := mapField(data[models.StepSupplyChainPlanning], "supplyChainPlan")

	if plan == nil {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "supplyChainPlan")
		return
	}

	validation.IsValid = true
	validation.Completeness = 100
}

func validateWorkforcePlanning(data map[models.WorkflowStep]map[string]interface{}, validation *models.StepValidation) {
	stepData := data[models.StepWorkforcePlanning]
	satisfied := 0

	if numberField(stepData, "headcount") > 0 {
		satisfied++
	} else {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "Headcount")
		validation.Warnings = append(validation.Warnings, "Headcount must be entered manually; no template fallback exists for workforce data")
	}

	if hasEntries(stepData, "departmentBreakdown") {
		satisfied++
	} else {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "Department breakdown")
		validation.Warnings = append(validation.Warnings, "Department breakdown must be entered manually; no template fallback exists for workforce data")
	}

	if numberField(stepData, "averageWage") > 0 {
		satisfied++
	} else {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "Average wage")
		validation.Warnings = append(validation.Warnings, "Average wage must be entered manually; no template fallback exists for workforce data")
	}

	validation.Completeness = float64(satisfied) / 3 * 100
	// Strict: no partial credit for workforce planning.
	validation.IsValid = satisfied == 3
}

func validateAlertsSetup(data map[models.WorkflowStep]map[string]interface{}, validation *models.StepValidation) {
	if mapField(data[models.StepAlertsSetup], "alertsConfig") == nil {
		validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, "alertsConfig")
		return
	}

	validation.IsValid = true
	validation.Completeness = 100
}

func validateAIRecommendations(data map[models.WorkflowStep]map[string]interface{}, validation *models.StepValidation) {
	stepData := data[models.StepAIRecommendations]
	satisfied := 0

	for _, field := range []string{"riskTolerance", "implementationTimeline", "budgetConstraints"} {
		if stringField(stepData, field) != "" {
			satisfied++
		} else {
			validation.CriticalFieldsMissing = append(validation.CriticalFieldsMissing, field)
		}
	}

	validation.Completeness = float64(satisfied) / 3 * 100
	validation.IsValid = validation.Completeness >= 90
}

func countDistinctSuppliers(suppliers []interface{}) int {
	seen := make(map[string]bool)

	for i, supplier := range suppliers {
		switch value := supplier.(type) {
		case string:
			if value != "" {
				seen[value] = true
			}
		case map[string]interface{}:
			name := stringField(value, "name")
			if name == "" {
				name = fmt.Sprintf("supplier-%d", i)
			}
			seen[name] = true
		}
	}

	return len(seen)
}

func sliceField(fields map[string]interface{}, key string) []interface{} {
	if fields == nil {
		return nil
	}

	switch value := fields[key].(type) {
	case []interface{}:
		return value
	case []map[string]interface{}:
		generic := make([]interface{}, len(value))
		for i, item := range value {
			generic[i] = item
		}
		return generic
	default:
		return nil
	}
}

func mapField(fields map[string]interface{}, key string) map[string]interface{} {
	if fields == nil {
		return nil
	}
	value, _ := fields[key].(map[string]interface{})
	return value
}

func stringField(fields map[string]interface{}, key string) string {
	if fields == nil {
		return ""
	}
	value, _ := fields[key].(string)
	return value
}

// numberField coerces JSON-decoded numerics; values arrive as float64 after a
// storage round trip but may be typed ints or numeric strings before one.
func numberField(fields map[string]interface{}, key string) float64 {
	if fields == nil {
		return 0
	}
	return toNumber(fields[key])
}

func toNumber(raw interface{}) float64 {
	switch value := raw.(type) {
	case float64:
		return value
	case float32:
		return float64(value)
	case int:
		return float64(value)
	case int64:
		return float64(value)
	case string:
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func hasEntries(fields map[string]interface{}, key string) bool {
	if fields == nil {
		return false
	}

	switch value := fields[key].(type) {
	case map[string]interface{}:
		return len(value) > 0
	case []interface{}:
		return len(value) > 0
	default:
		return false
	}
}
