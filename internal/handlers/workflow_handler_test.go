package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tradecompass-core/internal/config"
	"tradecompass-core/internal/handlers"
	"tradecompass-core/internal/models"
	"tradecompass-core/internal/pkg/logger"
	"tradecompass-core/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestRouter wires the real machine in memory-only mode behind the HTTP
// layer, so handler tests cover the full request path without Redis.
func newTestRouter(t *testing.T, checkers map[string]handlers.HealthChecker) *gin.Engine {
	t.Helper()

	log, err := logger.New(config.LogConfig{Level: "error", Format: "text", Output: "stderr"})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	machine := services.NewWorkflowMachine(nil, nil, nil, config.WorkflowConfig{
		PersistDebounce: 10 * time.Millisecond,
	}, log)
	machine.InitializeSession(context.Background(), "")

	analysis := services.NewAnalysisService(log)
	handler := handlers.NewWorkflowHandler(machine, analysis, log)

	return handlers.SetupRouter(handler, log, checkers)
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	response := map[string]interface{}{}
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &response); err != nil {
			t.Fatalf("Failed to decode response %q: %v", recorder.Body.String(), err)
		}
	}

	return recorder, response
}

func importBody(records int) map[string]interface{} {
	extracted := make([]map[string]interface{}, 0, records)
	for i := 0; i < records; i++ {
		extracted = append(extracted, map[string]interface{}{
			"name":          "widget",
			"tariffRate":    7.5,
			"declaredValue": 1000,
			"originCountry": "CN",
		})
	}
	return map[string]interface{}{
		"extractedData": extracted,
		"fileName":      "catalog.xlsx",
		"fileSize":      2048,
	}
}

func TestGetStatus(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodGet, "/api/v1/workflow/status", nil)

	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	if response["current_step"] != string(models.StepWelcome) {
		t.Errorf("Expected welcome, got %v", response["current_step"])
	}
	if response["degraded_mode"] != true {
		t.Error("Machine without backends should report degraded mode")
	}
	if response["can_proceed"] != true {
		t.Error("Welcome should always allow proceeding")
	}
}

func TestImportThenAdvance(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/workflow/import", importBody(3))
	if recorder.Code != http.StatusOK {
		t.Fatalf("Import failed with %d: %v", recorder.Code, response)
	}
	if response["imported"] != float64(3) {
		t.Errorf("Expected 3 imported records, got %v", response["imported"])
	}

	validation, ok := response["validation"].(map[string]interface{})
	if !ok || validation["is_valid"] != true {
		t.Errorf("Import of 3 records should validate, got %v", response["validation"])
	}

	_, response = doJSON(t, router, http.MethodPost, "/api/v1/workflow/next", nil)
	if response["advanced"] != true || response["current_step"] != string(models.StepFileImport) {
		t.Errorf("First advance should land on file-import, got %v", response)
	}

	_, response = doJSON(t, router, http.MethodPost, "/api/v1/workflow/next", nil)
	if response["advanced"] != true || response["current_step"] != string(models.StepTariffAnalysis) {
		t.Errorf("Second advance should land on tariff-analysis, got %v", response)
	}
}

func TestNextBlockedWithoutData(t *testing.T) {
	router := newTestRouter(t, nil)

	doJSON(t, router, http.MethodPost, "/api/v1/workflow/next", nil)

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/workflow/next", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Blocked advance is not an HTTP error, got %d", recorder.Code)
	}
	if response["advanced"] != false {
		t.Error("file-import without records should not advance")
	}
	if response["current_step"] != string(models.StepFileImport) {
		t.Errorf("Step should stay at file-import, got %v", response["current_step"])
	}
}

func TestUpdateStepDataUnknownStep(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/workflow/steps/bogus/data", map[string]interface{}{
		"data": map[string]interface{}{"field": 1},
	})

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown step, got %d", recorder.Code)
	}
	if response["code"] != "INVALID_STEP" {
		t.Errorf("Expected INVALID_STEP, got %v", response["code"])
	}
}

func TestUpdateStepDataReturnsValidation(t *testing.T) {
	router := newTestRouter(t, nil)

	body := map[string]interface{}{
		"data": map[string]interface{}{
			"headcount":   120,
			"averageWage": 52000,
		},
		"sources": map[string]interface{}{
			"headcount": map[string]interface{}{"type": "user", "confidence": 100},
		},
	}

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/workflow/steps/workforce-planning/data", body)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Update failed with %d: %v", recorder.Code, response)
	}

	validation, ok := response["validation"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected a validation object, got %v", response)
	}
	if validation["is_valid"] != false {
		t.Error("Two of three workforce facts should not validate")
	}

	missing, _ := validation["critical_fields_missing"].([]interface{})
	if len(missing) != 1 || missing[0] != "Department breakdown" {
		t.Errorf("Expected missing [Department breakdown], got %v", missing)
	}
}

func TestGotoBlockedIsNotAnError(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/workflow/goto", map[string]interface{}{
		"step": string(models.StepWorkforcePlanning),
	})

	if recorder.Code != http.StatusOK {
		t.Fatalf("Blocked navigation is not an HTTP error, got %d", recorder.Code)
	}
	if response["moved"] != false {
		t.Error("Distant forward jump without data should not move")
	}
}

func TestResetEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	doJSON(t, router, http.MethodPost, "/api/v1/workflow/import", importBody(2))
	doJSON(t, router, http.MethodPost, "/api/v1/workflow/next", nil)

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/workflow/reset", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Reset failed with %d", recorder.Code)
	}
	if response["current_step"] != string(models.StepWelcome) {
		t.Errorf("Reset should return to welcome, got %v", response["current_step"])
	}
	if response["completeness"] != float64(0) {
		t.Errorf("Completeness after reset should be 0, got %v", response["completeness"])
	}
}

func TestRunAnalysisUnknownKind(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/analyses/bogus", nil)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown kind, got %d", recorder.Code)
	}
	if response["code"] != "UNKNOWN_ANALYSIS_KIND" {
		t.Errorf("Expected UNKNOWN_ANALYSIS_KIND, got %v", response["code"])
	}
}

func TestRunAnalysisRequiresInputData(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/analyses/tariff-impact", nil)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 without imported products, got %d: %v", recorder.Code, response)
	}
	if response["code"] != "MISSING_ANALYSIS_INPUT" {
		t.Errorf("Expected MISSING_ANALYSIS_INPUT, got %v", response["code"])
	}
}

func TestRunAnalysisTariffImpact(t *testing.T) {
	router := newTestRouter(t, nil)

	doJSON(t, router, http.MethodPost, "/api/v1/workflow/import", importBody(4))

	recorder, response := doJSON(t, router, http.MethodPost, "/api/v1/analyses/tariff-impact", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Analysis failed with %d: %v", recorder.Code, response)
	}
	if response["cached"] != false {
		t.Error("Memory-only machine computes live, never from cache")
	}

	results, ok := response["results"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected results object, got %v", response)
	}
	if results["productCount"] != float64(4) {
		t.Errorf("Expected 4 products, got %v", results["productCount"])
	}
	// 4 products at 1000 declared value and 7.5% each.
	if results["projectedAnnualDuty"] != float64(300) {
		t.Errorf("Expected projected duty 300, got %v", results["projectedAnnualDuty"])
	}
}

func TestLookupSupplierRequiresJurisdiction(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, _ := doJSON(t, router, http.MethodGet, "/api/v1/suppliers/Acme/profile", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without jurisdiction, got %d", recorder.Code)
	}
}

func TestLookupSupplierWithoutRegistry(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodGet, "/api/v1/suppliers/Acme/profile?jurisdiction=US", nil)

	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502 without a registry, got %d", recorder.Code)
	}
	if response["code"] != "ENTITY_LOOKUP_UNAVAILABLE" {
		t.Errorf("Expected ENTITY_LOOKUP_UNAVAILABLE, got %v", response["code"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	recorder, response := doJSON(t, router, http.MethodGet, "/api/v1/stats", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Stats failed with %d", recorder.Code)
	}
	if response["service"] != "workflow_machine" {
		t.Errorf("Unexpected stats payload: %v", response)
	}
}

type stubChecker struct {
	err error
}

func (checker stubChecker) HealthCheck(ctx context.Context) error {
	return checker.err
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, map[string]handlers.HealthChecker{
		"redis":    stubChecker{},
		"registry": stubChecker{err: errors.New("connection refused")},
	})

	recorder, response := doJSON(t, router, http.MethodGet, "/health", nil)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("A failing checker should yield 503, got %d", recorder.Code)
	}
	if response["redis"] != "ok" {
		t.Errorf("Healthy checker should report ok, got %v", response["redis"])
	}
	if response["registry"] != "connection refused" {
		t.Errorf("Failing checker should report its error, got %v", response["registry"])
	}
}
