package services

import (
	"context"
	"sync"
	"time"

	"tradecompass-core/internal/config"
	"tradecompass-core/internal/models"
	"tradecompass-core/internal/pkg/hash"
	"tradecompass-core/internal/pkg/logger"
)

// CacheStore is the persistence seam the machine writes through. The Redis
// CacheService implements it; tests substitute plain mocks.
type CacheStore interface {
	GetStepData(ctx context.Context, sessionID string, step models.WorkflowStep) (*models.StepRecord, error)
	PutStepData(ctx context.Context, sessionID string, step models.WorkflowStep, data map[string]interface{}, sources map[string]models.SourceMeta, validation *models.StepValidation) error
	DeleteSessionData(ctx context.Context, sessionID string) error
	GetAnalysis(ctx context.Context, sessionID string, kind models.AnalysisKind, inputHash string) (*models.AnalysisCacheEntry, error)
	PutAnalysis(ctx context.Context, sessionID string, kind models.AnalysisKind, inputHash string, results map[string]interface{}, apiCalls []string, computeMs int64) error
	GetEntity(ctx context.Context, name, jurisdiction string) (*models.EntityCacheEntry, error)
	PutEntity(ctx context.Context, entry *models.EntityCacheEntry) error
}

// SessionStore is the session lifecycle seam, implemented by SessionService.
type SessionStore interface {
	CreateSession(ctx context.Context, name, ownerID string, isEphemeral bool) (*models.WorkflowSession, error)
	GetMostRecentSession(ctx context.Context, ownerID string) (*models.WorkflowSession, error)
	SetCurrentStep(ctx context.Context, sessionID string, step models.WorkflowStep) error
}

// EntityLookup is the optional external registry capability, resolved once at
// construction. A nil lookup means the capability is absent, not an error.
type EntityLookup interface {
	LookupEntity(ctx context.Context, name, jurisdiction string) (*models.EntityCacheEntry, error)
}

// ComputeFunc is an analysis collaborator: a pure computation over its input
// that reports which upstream API calls it made.
type ComputeFunc func(ctx context.Context, input interface{}) (map[string]interface{}, []string, error)

// EntityFetchFunc fetches one external entity record live.
type EntityFetchFunc func(ctx context.Context, name, jurisdiction string) (*models.EntityCacheEntry, error)

// WorkflowMachine orchestrates one session's progress through the fixed step
// sequence. It owns the in-memory accumulated step data; persistence is
// debounced and fire-and-forget, so losing a write costs durability, never
// in-memory correctness. With no working backend the machine keeps running in
// degraded, memory-only mode.
type WorkflowMachine struct {
	cache    CacheStore
	sessions SessionStore
	registry EntityLookup
	logger   *logger.Logger
	config   config.WorkflowConfig

	mu          sync.RWMutex
	session     *models.WorkflowSession
	stepData    map[models.WorkflowStep]map[string]interface{}
	stepSources map[models.WorkflowStep]map[string]models.SourceMeta
	degraded    bool
	initialized bool

	persister *persister
	startTime time.Time
}

func NewWorkflowMachine(cache CacheStore, sessions SessionStore, registry EntityLookup, cfg config.WorkflowConfig, log *logger.Logger) *WorkflowMachine {
	machine := &WorkflowMachine{
		cache:    cache,
		sessions: sessions,
		registry: registry,
		logger:   log,
		config:   cfg,
		// Memory-only until InitializeSession succeeds.
		session:     models.NewWorkflowSession("Untitled plan", "", true),
		stepData:    make(map[models.WorkflowStep]map[string]interface{}),
		stepSources: make(map[models.WorkflowStep]map[string]models.SourceMeta),
		degraded:    true,
		startTime:   time.Now(),
	}

	machine.persister = newPersister(cfg.PersistDebounce, machine.persistStep)

	log.Info("Workflow Machine Initialized Successfully",
		"steps", len(models.StepOrder),
		"persist_debounce", cfg.PersistDebounce.String(),
		"registry_configured", registry != nil)

	return machine
}

// InitializeSession bootstraps the machine once at startup: reuse the most
// recent session visible to the owner or create a fresh one, then hydrate all
// persisted step records into memory. Any storage failure definitively drops
// the machine into degraded memory-only mode; it never propagates.
func (machine *WorkflowMachine) InitializeSession(ctx context.Context, ownerID string) {
	startTime := time.Now()

	if machine.sessions == nil || machine.cache == nil {
		machine.logger.Warn("No persistence backend wired, continuing in memory-only mode", "owner_id", ownerID)
		machine.enterDegradedMode(ownerID)
		return
	}

	session, err := machine.sessions.GetMostRecentSession(ctx, ownerID)
	if err != nil {
		machine.logger.WithError(err).Warn("Session lookup failed, continuing in memory-only mode", "owner_id", ownerID)
		machine.enterDegradedMode(ownerID)
		return
	}

	if session == nil {
		session, err = machine.sessions.CreateSession(ctx, "Trade resilience plan", ownerID, ownerID == "")
		if err != nil {
			machine.logger.WithError(err).Warn("Session creation failed, continuing in memory-only mode", "owner_id", ownerID)
			machine.enterDegradedMode(ownerID)
			return
		}
	}

	machine.mu.Lock()
	machine.session = session
	machine.degraded = false
	machine.initialized = true
	machine.stepData = make(map[models.WorkflowStep]map[string]interface{})
	machine.stepSources = make(map[models.WorkflowStep]map[string]models.SourceMeta)
	machine.mu.Unlock()

	machine.hydrate(ctx)

	machine.logger.LogWorkflow(session.ID, ownerID, "session_bootstrapped", time.Since(startTime), nil)
}

func (machine *WorkflowMachine) enterDegradedMode(ownerID string) {
	machine.mu.Lock()
	defer machine.mu.Unlock()

	machine.session = models.NewWorkflowSession("Trade resilience plan", ownerID, ownerID == "")
	machine.degraded = true
	machine.initialized = true
}

// hydrate loads every persisted step record into memory. Individual read
// failures are logged and skipped; partial hydration beats none.
func (machine *WorkflowMachine) hydrate(ctx context.Context) {
	machine.mu.RLock()
	sessionID := machine.session.ID
	machine.mu.RUnlock()

	hydrated := 0
	for _, step := range models.DataSteps() {
		record, err := machine.cache.GetStepData(ctx, sessionID, step)
		if err != nil {
			machine.logger.WithError(err).Warn("Step hydration failed", "step", string(step))
			continue
		}
		if record == nil {
			continue
		}

		machine.mu.Lock()
		machine.stepData[step] = record.Data
		if record.DataSources != nil {
			machine.stepSources[step] = record.DataSources
		}
		machine.mu.Unlock()
		hydrated++
	}

	if hydrated > 0 {
		machine.logger.Info("Hydrated persisted step data", "session_id", sessionID, "steps", hydrated)
	}
}

func (machine *WorkflowMachine) CurrentStep() models.WorkflowStep {
	machine.mu.RLock()
	defer machine.mu.RUnlock()
	return machine.session.CurrentStep
}

// Session returns a copy of the active session record.
func (machine *WorkflowMachine) Session() models.WorkflowSession {
	machine.mu.RLock()
	defer machine.mu.RUnlock()
	return *machine.session
}

func (machine *WorkflowMachine) DegradedMode() bool {
	machine.mu.RLock()
	defer machine.mu.RUnlock()
	return machine.degraded
}

// CanProceed reports whether NextStep would advance: always from welcome,
// otherwise only when the current step validates.
func (machine *WorkflowMachine) CanProceed() bool {
	current := machine.CurrentStep()
	if current == models.StepWelcome {
		return true
	}
	return machine.ValidateStepData(current).IsValid
}

// NextStep advances one position when permitted. A blocked advance is a
// no-op, not an error; callers consult CanProceed for button gating.
func (machine *WorkflowMachine) NextStep() bool {
	if !machine.CanProceed() {
		return false
	}

	machine.mu.Lock()
	index := machine.session.CurrentStep.Index()
	if index < 0 || index >= len(models.StepOrder)-1 {
		machine.mu.Unlock()
		return false
	}
	machine.session.CurrentStep = models.StepOrder[index+1]
	machine.session.UpdatedAt = time.Now()
	machine.session.Touch()
	target := machine.session.CurrentStep
	machine.mu.Unlock()

	machine.persistCurrentStep(target)
	return true
}

// PreviousStep moves back one position; always allowed unless already at the
// first step.
func (machine *WorkflowMachine) PreviousStep() bool {
	machine.mu.Lock()
	index := machine.session.CurrentStep.Index()
	if index <= 0 {
		machine.mu.Unlock()
		return false
	}
	machine.session.CurrentStep = models.StepOrder[index-1]
	machine.session.UpdatedAt = time.Now()
	machine.session.Touch()
	target := machine.session.CurrentStep
	machine.mu.Unlock()

	machine.persistCurrentStep(target)
	return true
}

// CanNavigateToStep is the lenient navigation gate: backward movement and
// welcome are always allowed, forward movement only needs plausible upstream
// data or adjacency. This is intentionally weaker than CanProceed so users
// can explore ahead without completing every gate; the two checks are not
// interchangeable.
func (machine *WorkflowMachine) CanNavigateToStep(target models.WorkflowStep) bool {
	targetIndex := target.Index()
	if targetIndex < 0 {
		return false
	}

	machine.mu.RLock()
	defer machine.mu.RUnlock()

	currentIndex := machine.session.CurrentStep.Index()

	if target == models.StepWelcome || targetIndex <= currentIndex {
		return true
	}

	switch target {
	case models.StepFileImport:
		return true
	case models.StepTariffAnalysis:
		return machine.hasStepDataLocked(models.StepFileImport) || currentIndex >= 1
	default:
		return machine.hasAnyDataBeforeLocked(targetIndex) || currentIndex >= targetIndex-1
	}
}

func (machine *WorkflowMachine) hasStepDataLocked(step models.WorkflowStep) bool {
	return len(machine.stepData[step]) > 0
}

func (machine *WorkflowMachine) hasAnyDataBeforeLocked(index int) bool {
	for _, step := range models.StepOrder[:index] {
		if len(machine.stepData[step]) > 0 {
			return true
		}
	}
	return false
}

// GoToStep jumps directly to the target when navigation permits it.
func (machine *WorkflowMachine) GoToStep(target models.WorkflowStep) bool {
	if !machine.CanNavigateToStep(target) {
		return false
	}

	machine.mu.Lock()
	machine.session.CurrentStep = target
	machine.session.UpdatedAt = time.Now()
	machine.session.Touch()
	machine.mu.Unlock()

	machine.persistCurrentStep(target)
	return true
}

func (machine *WorkflowMachine) persistCurrentStep(step models.WorkflowStep) {
	machine.mu.RLock()
	degraded := machine.degraded
	sessionID := machine.session.ID
	machine.mu.RUnlock()

	if degraded {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := machine.sessions.SetCurrentStep(ctx, sessionID, step); err != nil {
		machine.logger.WithError(err).Warn("Failed to persist step pointer",
			"session_id", sessionID,
			"step", string(step))
	}
}

// UpdateStepData merges fields into the step's accumulated data. The merge is
// synchronous and observable immediately; persistence is scheduled behind the
// debounce window and never blocks the caller.
func (machine *WorkflowMachine) UpdateStepData(step models.WorkflowStep, data map[string]interface{}, sources map[string]models.SourceMeta) {
	if !step.IsKnown() || len(data) == 0 {
		return
	}

	machine.mu.Lock()
	existing := machine.stepData[step]
	if existing == nil {
		existing = make(map[string]interface{}, len(data))
		machine.stepData[step] = existing
	}
	for key, value := range data {
		existing[key] = value
	}

	if len(sources) > 0 {
		existingSources := machine.stepSources[step]
		if existingSources == nil {
			existingSources = make(map[string]models.SourceMeta, len(sources))
			machine.stepSources[step] = existingSources
		}
		for key, meta := range sources {
			if meta.LastUpdated.IsZero() {
				meta.LastUpdated = time.Now()
			}
			existingSources[key] = meta
		}
	}

	machine.session.UpdatedAt = time.Now()
	degraded := machine.degraded
	machine.mu.Unlock()

	if !degraded {
		machine.persister.Schedule(step)
	}
}

// persistStep is the debounced write path: snapshot the step under the lock,
// validate the snapshot, upsert the record.
func (machine *WorkflowMachine) persistStep(step models.WorkflowStep) {
	machine.mu.RLock()
	if machine.degraded {
		machine.mu.RUnlock()
		return
	}
	sessionID := machine.session.ID
	data := copyData(machine.stepData[step])
	sources := copySources(machine.stepSources[step])
	snapshot := copyAllData(machine.stepData)
	machine.mu.RUnlock()

	validation := ValidateStep(step, snapshot, sources)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := machine.cache.PutStepData(ctx, sessionID, step, data, sources, validation); err != nil {
		machine.logger.WithError(err).Warn("Debounced step persistence failed",
			"session_id", sessionID,
			"step", string(step))
	}
}

// ValidateStepData runs the pure validator against a snapshot of the
// accumulated data.
func (machine *WorkflowMachine) ValidateStepData(step models.WorkflowStep) *models.StepValidation {
	machine.mu.RLock()
	snapshot := copyAllData(machine.stepData)
	sources := copySources(machine.stepSources[step])
	machine.mu.RUnlock()

	return ValidateStep(step, snapshot, sources)
}

// WorkflowData returns a merged copy of all accumulated step data.
func (machine *WorkflowMachine) WorkflowData() map[models.WorkflowStep]map[string]interface{} {
	machine.mu.RLock()
	defer machine.mu.RUnlock()
	return copyAllData(machine.stepData)
}

// DataCompleteness averages per-step completeness across all data steps.
func (machine *WorkflowMachine) DataCompleteness() float64 {
	steps := models.DataSteps()
	if len(steps) == 0 {
		return 0
	}

	machine.mu.RLock()
	snapshot := copyAllData(machine.stepData)
	machine.mu.RUnlock()

	total := 0.0
	for _, step := range steps {
		total += ValidateStep(step, snapshot, nil).Completeness
	}

	return total / float64(len(steps))
}

// DataSourceSummary tallies field-level source types across all steps. It is
// a reporting view only.
func (machine *WorkflowMachine) DataSourceSummary() map[models.SourceType]int {
	machine.mu.RLock()
	defer machine.mu.RUnlock()

	summary := make(map[models.SourceType]int)
	for _, sources := range machine.stepSources {
		for _, meta := range sources {
			summary[meta.Type]++
		}
	}

	return summary
}

// ResetWorkflow returns to the welcome step and clears all in-memory step
// data immediately. Pending debounced writes are cancelled so cleared data
// cannot resurface; persisted rows are removed best-effort.
func (machine *WorkflowMachine) ResetWorkflow() {
	machine.persister.CancelAll()

	machine.mu.Lock()
	machine.session.CurrentStep = models.StepWelcome
	machine.session.UpdatedAt = time.Now()
	machine.stepData = make(map[models.WorkflowStep]map[string]interface{})
	machine.stepSources = make(map[models.WorkflowStep]map[string]models.SourceMeta)
	degraded := machine.degraded
	sessionID := machine.session.ID
	machine.mu.Unlock()

	machine.logger.LogWorkflow(sessionID, machine.Session().OwnerID, "workflow_reset", 0, nil)

	if degraded {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := machine.sessions.SetCurrentStep(ctx, sessionID, models.StepWelcome); err != nil {
		machine.logger.WithError(err).Warn("Failed to persist reset step pointer", "session_id", sessionID)
	}
	if err := machine.cache.DeleteSessionData(ctx, sessionID); err != nil {
		machine.logger.WithError(err).Warn("Failed to clear persisted step data on reset", "session_id", sessionID)
	}
}

// GetCachedAnalysisOrCompute memoizes an expensive analysis by the content
// hash of its input. On a fresh hit the compute function is never invoked; on
// a miss it runs exactly once, is timed, and the result is cached for the
// analysis TTL. Cache failures fall back to live computation.
func (machine *WorkflowMachine) GetCachedAnalysisOrCompute(ctx context.Context, kind models.AnalysisKind, input interface{}, computeFn ComputeFunc) (map[string]interface{}, bool, error) {
	inputHash := hash.Content(input)

	machine.mu.RLock()
	sessionID := machine.session.ID
	degraded := machine.degraded
	machine.mu.RUnlock()

	if !degraded {
		entry, err := machine.cache.GetAnalysis(ctx, sessionID, kind, inputHash)
		if err != nil {
			machine.logger.WithError(err).Warn("Analysis cache read failed, computing live",
				"kind", string(kind),
				"input_hash", inputHash)
		}
		if entry != nil && !entry.Expired() {
			return entry.Results, true, nil
		}
	}

	startTime := time.Now()
	results, apiCalls, err := computeFn(ctx, input)
	if err != nil {
		return nil, false, err
	}
	computeMs := time.Since(startTime).Milliseconds()

	if !degraded {
		if err := machine.cache.PutAnalysis(ctx, sessionID, kind, inputHash, results, apiCalls, computeMs); err != nil {
			machine.logger.WithError(err).Warn("Analysis cache write failed",
				"kind", string(kind),
				"input_hash", inputHash)
		}
	}

	machine.logger.LogService("workflow", "compute_analysis", time.Since(startTime), map[string]interface{}{
		"session_id": sessionID,
		"kind":       string(kind),
		"api_calls":  len(apiCalls),
	}, nil)

	return results, false, nil
}

// GetCachedEntityOrFetch wraps an external entity lookup with the long-lived
// shared entity cache. With a nil fetchFn the injected registry capability is
// used; if neither exists the lookup is unavailable.
func (machine *WorkflowMachine) GetCachedEntityOrFetch(ctx context.Context, name, jurisdiction string, fetchFn EntityFetchFunc) (*models.EntityCacheEntry, bool, error) {
	machine.mu.RLock()
	degraded := machine.degraded
	machine.mu.RUnlock()

	if !degraded {
		entry, err := machine.cache.GetEntity(ctx, name, jurisdiction)
		if err != nil {
			machine.logger.WithError(err).Warn("Entity cache read failed, fetching live",
				"entity_name", name,
				"jurisdiction", jurisdiction)
		}
		if entry != nil && !entry.Expired() {
			return entry, true, nil
		}
	}

	if fetchFn == nil {
		if machine.registry == nil {
			return nil, false, models.NewExternalError("ENTITY_LOOKUP_UNAVAILABLE", "No entity registry configured")
		}
		fetchFn = machine.registry.LookupEntity
	}

	entry, err := fetchFn(ctx, name, jurisdiction)
	if err != nil {
		return nil, false, err
	}

	if entry.LastValidated.IsZero() {
		entry.LastValidated = time.Now()
	}

	if !degraded {
		if err := machine.cache.PutEntity(ctx, entry); err != nil {
			machine.logger.WithError(err).Warn("Entity cache write failed",
				"entity_name", name,
				"jurisdiction", jurisdiction)
		}
	}

	return entry, false, nil
}

func (machine *WorkflowMachine) Stats() map[string]interface{} {
	machine.mu.RLock()
	defer machine.mu.RUnlock()

	stepsWithData := make([]string, 0, len(machine.stepData))
	for step, data := range machine.stepData {
		if len(data) > 0 {
			stepsWithData = append(stepsWithData, string(step))
		}
	}

	return map[string]interface{}{
		"service":         "workflow_machine",
		"session_id":      machine.session.ID,
		"current_step":    string(machine.session.CurrentStep),
		"degraded_mode":   machine.degraded,
		"steps_with_data": stepsWithData,
		"uptime_seconds":  time.Since(machine.startTime).Seconds(),
	}
}

// Close flushes pending debounced writes.
func (machine *WorkflowMachine) Close() {
	machine.persister.Flush()
	machine.logger.Info("Workflow Machine closed")
}

func copyData(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	clone := make(map[string]interface{}, len(data))
	for key, value := range data {
		clone[key] = value
	}
	return clone
}

func copySources(sources map[string]models.SourceMeta) map[string]models.SourceMeta {
	if sources == nil {
		return nil
	}
	clone := make(map[string]models.SourceMeta, len(sources))
	for key, meta := range sources {
		clone[key] = meta
	}
	return clone
}

func copyAllData(all map[models.WorkflowStep]map[string]interface{}) map[models.WorkflowStep]map[string]interface{} {
	clone := make(map[models.WorkflowStep]map[string]interface{}, len(all))
	for step, data := range all {
		clone[step] = copyData(data)
	}
	return clone
}
