package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tradecompass-core/internal/models"
	"tradecompass-core/internal/pkg/logger"
	"tradecompass-core/internal/services"
)

// WorkflowService is the produced interface of the workflow machine that the
// HTTP layer consumes.
type WorkflowService interface {
	Session() models.WorkflowSession
	CurrentStep() models.WorkflowStep
	CanProceed() bool
	NextStep() bool
	PreviousStep() bool
	GoToStep(target models.WorkflowStep) bool
	CanNavigateToStep(target models.WorkflowStep) bool
	UpdateStepData(step models.WorkflowStep, data map[string]interface{}, sources map[string]models.SourceMeta)
	ValidateStepData(step models.WorkflowStep) *models.StepValidation
	WorkflowData() map[models.WorkflowStep]map[string]interface{}
	DataCompleteness() float64
	DataSourceSummary() map[models.SourceType]int
	ResetWorkflow()
	DegradedMode() bool
	Stats() map[string]interface{}
	GetCachedAnalysisOrCompute(ctx context.Context, kind models.AnalysisKind, input interface{}, computeFn services.ComputeFunc) (map[string]interface{}, bool, error)
	GetCachedEntityOrFetch(ctx context.Context, name, jurisdiction string, fetchFn services.EntityFetchFunc) (*models.EntityCacheEntry, bool, error)
}

// AnalysisEngine resolves compute functions per analysis kind.
type AnalysisEngine interface {
	ComputeFor(kind models.AnalysisKind) (services.ComputeFunc, error)
}

type WorkflowHandler struct {
	workflow WorkflowService
	analysis AnalysisEngine
	logger   *logger.Logger
}

func NewWorkflowHandler(workflow WorkflowService, analysis AnalysisEngine, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{
		workflow: workflow,
		analysis: analysis,
		logger:   log,
	}
}

type updateStepRequest struct {
	Data    map[string]interface{}       `json:"data" binding:"required"`
	Sources map[string]models.SourceMeta `json:"sources,omitempty"`
}

type importRequest struct {
	ExtractedData []map[string]interface{} `json:"extractedData" binding:"required"`
	FileName      string                   `json:"fileName"`
	FileSize      int64                    `json:"fileSize"`
}

type gotoRequest struct {
	Step string `json:"step" binding:"required"`
}

type entityLookupRequest struct {
	Jurisdiction string `form:"jurisdiction" binding:"required"`
}

// GetStatus returns the session snapshot downstream UI binds to.
func (handler *WorkflowHandler) GetStatus(c *gin.Context) {
	session := handler.workflow.Session()

	c.JSON(http.StatusOK, gin.H{
		"session":       session,
		"current_step":  session.CurrentStep,
		"can_proceed":   handler.workflow.CanProceed(),
		"degraded_mode": handler.workflow.DegradedMode(),
		"completeness":  handler.workflow.DataCompleteness(),
	})
}

func (handler *WorkflowHandler) GetWorkflowData(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": handler.workflow.WorkflowData()})
}

// ImportFile accepts the output of the external file-extraction collaborator
// and records it as the file-import step payload.
func (handler *WorkflowHandler) ImportFile(c *gin.Context) {
	var request importRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	records := make([]interface{}, len(request.ExtractedData))
	for i, record := range request.ExtractedData {
		records[i] = record
	}

	handler.workflow.UpdateStepData(models.StepFileImport, map[string]interface{}{
		"importedProducts": records,
		"fileName":         request.FileName,
		"fileSize":         request.FileSize,
	}, map[string]models.SourceMeta{
		"importedProducts": {
			Type:        models.SourceTypeUser,
			Confidence:  90,
			SourceLabel: request.FileName,
			Validated:   false,
			LastUpdated: time.Now(),
		},
	})

	c.JSON(http.StatusOK, gin.H{
		"imported":   len(records),
		"validation": handler.workflow.ValidateStepData(models.StepFileImport),
	})
}

// UpdateStepData merges a step payload and returns the fresh validation
// verdict for it.
func (handler *WorkflowHandler) UpdateStepData(c *gin.Context) {
	step := models.WorkflowStep(c.Param("step"))
	if !step.IsKnown() {
		handler.renderError(c, models.ErrInvalidStep.WithMetadata("step", c.Param("step")))
		return
	}

	var request updateStepRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	handler.workflow.UpdateStepData(step, request.Data, request.Sources)

	c.JSON(http.StatusOK, gin.H{
		"step":       step,
		"validation": handler.workflow.ValidateStepData(step),
	})
}

func (handler *WorkflowHandler) ValidateStep(c *gin.Context) {
	step := models.WorkflowStep(c.Param("step"))
	if !step.IsKnown() {
		handler.renderError(c, models.ErrInvalidStep.WithMetadata("step", c.Param("step")))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"step":       step,
		"validation": handler.workflow.ValidateStepData(step),
	})
}

func (handler *WorkflowHandler) NextStep(c *gin.Context) {
	advanced := handler.workflow.NextStep()

	c.JSON(http.StatusOK, gin.H{
		"advanced":     advanced,
		"current_step": handler.workflow.CurrentStep(),
		"can_proceed":  handler.workflow.CanProceed(),
	})
}

func (handler *WorkflowHandler) PreviousStep(c *gin.Context) {
	moved := handler.workflow.PreviousStep()

	c.JSON(http.StatusOK, gin.H{
		"moved":        moved,
		"current_step": handler.workflow.CurrentStep(),
	})
}

func (handler *WorkflowHandler) GoToStep(c *gin.Context) {
	var request gotoRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	step := models.WorkflowStep(request.Step)
	if !step.IsKnown() {
		handler.renderError(c, models.ErrInvalidStep.WithMetadata("step", request.Step))
		return
	}

	moved := handler.workflow.GoToStep(step)

	c.JSON(http.StatusOK, gin.H{
		"moved":        moved,
		"current_step": handler.workflow.CurrentStep(),
	})
}

func (handler *WorkflowHandler) GetCompleteness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"completeness": handler.workflow.DataCompleteness()})
}

func (handler *WorkflowHandler) GetSourceSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sources": handler.workflow.DataSourceSummary()})
}

func (handler *WorkflowHandler) ResetWorkflow(c *gin.Context) {
	handler.workflow.ResetWorkflow()

	c.JSON(http.StatusOK, gin.H{
		"current_step": handler.workflow.CurrentStep(),
		"completeness": handler.workflow.DataCompleteness(),
	})
}

// RunAnalysis computes (or serves from cache) one derived analysis over the
// currently accumulated workflow data.
func (handler *WorkflowHandler) RunAnalysis(c *gin.Context) {
	kind := models.AnalysisKind(c.Param("kind"))

	computeFn, err := handler.analysis.ComputeFor(kind)
	if err != nil {
		handler.renderError(c, err)
		return
	}

	input := handler.analysisInput(kind)

	results, cached, err := handler.workflow.GetCachedAnalysisOrCompute(c.Request.Context(), kind, input, computeFn)
	if err != nil {
		handler.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"kind":       kind,
		"cached":     cached,
		"results":    results,
		"request_id": models.GenerateRequestID(),
	})
}

// analysisInput assembles the exact inputs each analysis kind is memoized
// over. Keeping the shape minimal keeps the content hash stable.
func (handler *WorkflowHandler) analysisInput(kind models.AnalysisKind) map[string]interface{} {
	data := handler.workflow.WorkflowData()

	switch kind {
	case models.AnalysisKindTariffImpact:
		return map[string]interface{}{
			"importedProducts": data[models.StepFileImport]["importedProducts"],
		}
	case models.AnalysisKindSupplierConcentration:
		return map[string]interface{}{
			"suppliers": data[models.StepSupplierDiversification]["suppliers"],
		}
	case models.AnalysisKindSupplyChainRisk:
		return map[string]interface{}{
			"importedProducts": data[models.StepFileImport]["importedProducts"],
			"suppliers":        data[models.StepSupplierDiversification]["suppliers"],
		}
	case models.AnalysisKindWorkforceCost:
		return data[models.StepWorkforcePlanning]
	default:
		return nil
	}
}

// LookupSupplier serves a supplier profile through the shared entity cache,
// falling back to the live registry capability when configured.
func (handler *WorkflowHandler) LookupSupplier(c *gin.Context) {
	name := c.Param("name")

	var request entityLookupRequest
	if err := c.ShouldBindQuery(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, cached, err := handler.workflow.GetCachedEntityOrFetch(c.Request.Context(), name, request.Jurisdiction, nil)
	if err != nil {
		handler.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cached": cached,
		"entity": entry,
	})
}

func (handler *WorkflowHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, handler.workflow.Stats())
}

func (handler *WorkflowHandler) renderError(c *gin.Context, err error) {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		handler.logger.WithError(err).Error("Unhandled error in workflow handler")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch appErr.Type {
	case models.ErrorTypeValidation:
		status = http.StatusBadRequest
	case models.ErrorTypeNotFound:
		status = http.StatusNotFound
	case models.ErrorTypeExternal:
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{
		"error":    appErr.Message,
		"code":     appErr.Code,
		"metadata": appErr.Metadata,
	})
}
