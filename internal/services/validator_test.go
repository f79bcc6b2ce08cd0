package services_test

import (
	"math"
	"testing"

	"tradecompass-core/internal/models"
	"tradecompass-core/internal/services"
)

func productRecords(total, withRate int) []interface{} {
	records := make([]interface{}, 0, total)
	for i := 0; i < total; i++ {
		rate := 0.0
		if i < withRate {
			rate = 7.5
		}
		records = append(records, map[string]interface{}{
			"name":       "product",
			"tariffRate": rate,
		})
	}
	return records
}

func TestWelcomeAndCompleteAlwaysValid(t *testing.T) {
	for _, step := range []models.WorkflowStep{models.StepWelcome, models.StepComplete} {
		validation := services.ValidateStep(step, nil, nil)

		if !validation.IsValid {
			t.Errorf("Step %s should always be valid", step)
		}
		if validation.Completeness != 100 {
			t.Errorf("Step %s should have completeness 100, got %v", step, validation.Completeness)
		}
	}
}

func TestFileImportEmpty(t *testing.T) {
	data := map[models.WorkflowStep]map[string]interface{}{
		models.StepFileImport: {"importedProducts": []interface{}{}},
	}

	validation := services.ValidateStep(models.StepFileImport, data, nil)

	if validation.IsValid {
		t.Error("Empty import should be invalid")
	}
	if validation.Completeness != 0 {
		t.Errorf("Expected completeness 0, got %v", validation.Completeness)
	}
	if len(validation.CriticalFieldsMissing) != 1 || validation.CriticalFieldsMissing[0] != "importedProducts" {
		t.Errorf("Expected missing [importedProducts], got %v", validation.CriticalFieldsMissing)
	}
}

func TestFileImportWithRecords(t *testing.T) {
	data := map[models.WorkflowStep]map[string]interface{}{
		models.StepFileImport: {"importedProducts": productRecords(1, 0)},
	}

	validation := services.ValidateStep(models.StepFileImport, data, nil)

	if !validation.IsValid {
		t.Error("Import with one record should be valid")
	}
	if validation.Completeness != 100 {
		t.Errorf("Expected completeness 100, got %v", validation.Completeness)
	}
}

func TestTariffAnalysisBelowThreshold(t *testing.T) {
	data := map[models.WorkflowStep]map[string]interface{}{
		models.StepFileImport: {"importedProducts": productRecords(10, 4)},
	}

	validation := services.ValidateStep(models.StepTariffAnalysis, data, nil)

	if validation.Completeness != 40 {
		t.Errorf("Expected completeness 40, got %v", validation.Completeness)
	}
	if validation.IsValid {
		t.Error("40% tariff coverage should be invalid")
	}
	if len(validation.Warnings) == 0 {
		t.Error("Expected a template tariff rates warning")
	}
}

func TestTariffAnalysisAtThreshold(t *testing.T) {
	data := map[models.WorkflowStep]map[string]interface{}{
		models.StepFileImport: {"importedProducts": productRecords(10, 5)},
	}

	validation := services.ValidateStep(models.StepTariffAnalysis, data, nil)

	if validation.Completeness != 50 {
		t.Errorf("Expected completeness 50, got %v", validation.Completeness)
	}
	if !validation.IsValid {
		t.Error("50% tariff coverage should be valid")
	}
}

func TestTariffAnalysisWithoutImportData(t *testing.T) {
	validation := services.ValidateStep(models.StepTariffAnalysis, nil, nil)

	if validation.IsValid {
		t.Error("Tariff analysis without import data should be invalid")
	}
	if len(validation.CriticalFieldsMissing) != 1 || validation.CriticalFieldsMissing[0] != "importedProducts" {
		t.Errorf("Expected missing [importedProducts], got %v", validation.CriticalFieldsMissing)
	}
}

func TestSupplierDiversificationThresholds(t *testing.T) {
	cases := []struct {
		name         string
		suppliers    []interface{}
		wantValid    bool
		wantComplete float64
	}{
		{"no suppliers", []interface{}{}, false, 0},
		{"one supplier", []interface{}{
			map[string]interface{}{"name": "Acme"},
		}, false, 100},
		{"duplicate names", []interface{}{
			map[string]interface{}{"name": "Acme"},
			map[string]interface{}{"name": "Acme"},
		}, false, 100},
		{"two distinct", []interface{}{
			map[string]interface{}{"name": "Acme"},
			map[string]interface{}{"name": "Globex"},
		}, true, 100},
	}

	for _, tc := range cases {
		data := map[models.WorkflowStep]map[string]interface{}{
			models.StepSupplierDiversification: {"suppliers": tc.suppliers},
		}

		validation := services.ValidateStep(models.StepSupplierDiversification, data, nil)

		if validation.IsValid != tc.wantValid {
			t.Errorf("%s: expected valid=%v, got %v", tc.name, tc.wantValid, validation.IsValid)
		}
		if validation.Completeness != tc.wantComplete {
			t.Errorf("%s: expected completeness %v, got %v", tc.name, tc.wantComplete, validation.Completeness)
		}
	}
}

func TestWorkforcePlanningPartial(t *testing.T) {
	data := map[models.WorkflowStep]map[string]interface{}{
		models.StepWorkforcePlanning: {
			"headcount":           120,
			"averageWage":         52000,
			"departmentBreakdown": map[string]interface{}{},
		},
	}

	validation := services.ValidateStep(models.StepWorkforcePlanning, data, nil)

	if validation.IsValid {
		t.Error("Workforce planning with two of three facts should be invalid")
	}
	if math.Abs(validation.Completeness-66.7) > 0.1 {
		t.Errorf("Expected completeness ~66.7, got %v", validation.Completeness)
	}
	if len(validation.CriticalFieldsMissing) != 1 || validation.CriticalFieldsMissing[0] != "Department breakdown" {
		t.Errorf("Expected missing [Department breakdown], got %v", validation.CriticalFieldsMissing)
	}
	if len(validation.Warnings) != 1 {
		t.Errorf("Expected one no-template-fallback warning, got %v", validation.Warnings)
	}
}

func TestWorkforcePlanningComplete(t *testing.T) {
	data := map[models.WorkflowStep]map[string]interface{}{
		models.StepWorkforcePlanning: {
			"headcount":   120,
			"averageWage": 52000,
			"departmentBreakdown": map[string]interface{}{
				"assembly":  80,
				"logistics": 40,
			},
		},
	}

	validation := services.ValidateStep(models.StepWorkforcePlanning, data, nil)

	if !validation.IsValid {
		t.Error("All three workforce facts should validate")
	}
	if validation.Completeness != 100 {
		t.Errorf("Expected completeness 100, got %v", validation.Completeness)
	}
}

func TestAlertsSetupBinary(t *testing.T) {
	missing := services.ValidateStep(models.StepAlertsSetup, nil, nil)
	if missing.IsValid {
		t.Error("Missing alerts config should be invalid")
	}

	data := map[models.WorkflowStep]map[string]interface{}{
		models.StepAlertsSetup: {
			"alertsConfig": map[string]interface{}{"tariffChangeThreshold": 5},
		},
	}

	present := services.ValidateStep(models.StepAlertsSetup, data, nil)
	if !present.IsValid || present.Completeness != 100 {
		t.Errorf("Present alerts config should be valid at 100, got valid=%v completeness=%v",
			present.IsValid, present.Completeness)
	}
}

func TestAIRecommendationsThreshold(t *testing.T) {
	full := map[models.WorkflowStep]map[string]interface{}{
		models.StepAIRecommendations: {
			"riskTolerance":          "moderate",
			"implementationTimeline": "6-months",
			"budgetConstraints":      "under-100k",
		},
	}

	validation := services.ValidateStep(models.StepAIRecommendations, full, nil)
	if !validation.IsValid || validation.Completeness != 100 {
		t.Errorf("All three preferences should be valid at 100, got valid=%v completeness=%v",
			validation.IsValid, validation.Completeness)
	}

	partial := map[models.WorkflowStep]map[string]interface{}{
		models.StepAIRecommendations: {
			"riskTolerance":          "moderate",
			"implementationTimeline": "6-months",
		},
	}

	validation = services.ValidateStep(models.StepAIRecommendations, partial, nil)
	if validation.IsValid {
		t.Error("Two of three preferences is below the 90% threshold")
	}
	if math.Abs(validation.Completeness-66.7) > 0.1 {
		t.Errorf("Expected completeness ~66.7, got %v", validation.Completeness)
	}
}

func TestSourceCountsTallied(t *testing.T) {
	sources := map[string]models.SourceMeta{
		"headcount":   {Type: models.SourceTypeUser},
		"averageWage": {Type: models.SourceTypeUser},
		"tariffRate":  {Type: models.SourceTypeTemplate},
	}

	validation := services.ValidateStep(models.StepWorkforcePlanning, nil, sources)

	if validation.UserDataCount != 2 {
		t.Errorf("Expected 2 user fields, got %d", validation.UserDataCount)
	}
	if validation.TemplateDataCount != 1 {
		t.Errorf("Expected 1 template field, got %d", validation.TemplateDataCount)
	}
}
