package models

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowStep is one named stage in the fixed planning sequence.
type WorkflowStep string

const (
	StepWelcome                 WorkflowStep = "welcome"
	StepFileImport              WorkflowStep = "file-import"
	StepTariffAnalysis          WorkflowStep = "tariff-analysis"
	StepSupplierDiversification WorkflowStep = "supplier-diversification"
	StepSupplyChainPlanning     WorkflowStep = "supply-chain-planning"
	StepWorkforcePlanning       WorkflowStep = "workforce-planning"
	StepAlertsSetup             WorkflowStep = "alerts-setup"
	StepAIRecommendations       WorkflowStep = "ai-recommendations"
	StepComplete                WorkflowStep = "complete"
)

// StepOrder is the canonical forward sequence. Navigation and progress
// computations all index into this slice.
var StepOrder = []WorkflowStep{
	StepWelcome,
	StepFileImport,
	StepTariffAnalysis,
	StepSupplierDiversification,
	StepSupplyChainPlanning,
	StepWorkforcePlanning,
	StepAlertsSetup,
	StepAIRecommendations,
	StepComplete,
}

// Index returns the position of the step in StepOrder, or -1 for unknown steps.
func (step WorkflowStep) Index() int {
	for i, candidate := range StepOrder {
		if candidate == step {
			return i
		}
	}
	return -1
}

func (step WorkflowStep) IsKnown() bool {
	return step.Index() >= 0
}

// IsTerminal reports whether the step carries no user data of its own.
// Terminal steps are excluded from overall completeness.
func (step WorkflowStep) IsTerminal() bool {
	return step == StepWelcome || step == StepComplete
}

// DataSteps returns the steps that accumulate user data, in order.
func DataSteps() []WorkflowStep {
	steps := make([]WorkflowStep, 0, len(StepOrder)-2)
	for _, step := range StepOrder {
		if !step.IsTerminal() {
			steps = append(steps, step)
		}
	}
	return steps
}

// WorkflowSession is the persisted container for one user's in-progress
// workflow. Sessions are never implicitly deleted; only an explicit reset
// clears their accumulated data.
type WorkflowSession struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id,omitempty"`
	Name           string       `json:"name"`
	CurrentStep    WorkflowStep `json:"current_step"`
	IsEphemeral    bool         `json:"is_ephemeral"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	LastAccessedAt time.Time    `json:"last_accessed_at"`
}

func NewWorkflowSession(name, ownerID string, isEphemeral bool) *WorkflowSession {
	now := time.Now()
	return &WorkflowSession{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Name:           name,
		CurrentStep:    StepWelcome,
		IsEphemeral:    isEphemeral,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastAccessedAt: now,
	}
}

// Touch bumps the access timestamp, used for most-recent-session selection.
func (session *WorkflowSession) Touch() {
	session.LastAccessedAt = time.Now()
}

// SourceType classifies where the value of a logical field came from.
type SourceType string

const (
	SourceTypeUser       SourceType = "user"
	SourceTypeTemplate   SourceType = "template"
	SourceTypeCalculated SourceType = "calculated"
	SourceTypeExternal   SourceType = "external"
	SourceTypeIncomplete SourceType = "incomplete"
)

// SourceMeta is attached to individual logical fields and is used only for
// reporting and validation scoring, never for control flow.
type SourceMeta struct {
	Type        SourceType `json:"type"`
	Confidence  int        `json:"confidence"`
	SourceLabel string     `json:"source_label,omitempty"`
	Validated   bool       `json:"validated"`
	LastUpdated time.Time  `json:"last_updated"`
}

// StepValidation is the verdict of the step validator. Validation failure is
// a data value, never an error.
type StepValidation struct {
	IsValid               bool     `json:"is_valid"`
	Completeness          float64  `json:"completeness"`
	CriticalFieldsMissing []string `json:"critical_fields_missing"`
	TemplateDataCount     int      `json:"template_data_count"`
	UserDataCount         int      `json:"user_data_count"`
	Warnings              []string `json:"warnings"`
}

// StepRecord is the persisted payload for one (session, step) pair. Exactly
// one record exists per pair, written with upsert semantics.
type StepRecord struct {
	SessionID   string                 `json:"session_id"`
	Step        WorkflowStep           `json:"step"`
	Data        map[string]interface{} `json:"data"`
	DataSources map[string]SourceMeta  `json:"data_sources,omitempty"`
	Validation  *StepValidation        `json:"validation,omitempty"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

func GenerateRequestID() string {
	return uuid.New().String()
}
