package services

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tradecompass-core/internal/config"
	"tradecompass-core/internal/models"
	"tradecompass-core/internal/pkg/logger"
)

// CacheService is the keyed, TTL-based persistence layer behind the workflow
// core. It exposes four independent namespaces: per-step workflow data,
// memoized analysis results, external entity lookups and a generic API
// response cache.
//
// The cache is an optimization, never a correctness dependency: storage
// errors are logged and surfaced to callers as plain misses wrapped in typed
// errors the orchestrator is free to ignore. Entries carry their own
// expires_at and readers skip expired rows even if Redis has not evicted the
// key yet.
type CacheService struct {
	client *redis.Client
	logger *logger.Logger
	config config.CacheConfig
}

func NewCacheService(client *redis.Client, cfg config.CacheConfig, log *logger.Logger) *CacheService {
	service := &CacheService{
		client: client,
		logger: log,
		config: cfg,
	}

	log.Info("Cache Service Initialized Successfully",
		"analysis_ttl", cfg.AnalysisTTL.String(),
		"entity_ttl", cfg.EntityTTL.String())

	return service
}

func stepDataKey(sessionID string, step models.WorkflowStep) string {
	return fmt.Sprintf("workflow:data:%s:%s", sessionID, step)
}

func analysisKey(sessionID string, kind models.AnalysisKind, inputHash string) string {
	return fmt.Sprintf("workflow:analysis:%s:%s:%s", sessionID, kind, inputHash)
}

func entityKey(name, jurisdiction string) string {
	return fmt.Sprintf("workflow:entity:%s:%s", name, jurisdiction)
}

func apiCacheKey(source, endpoint string) string {
	return fmt.Sprintf("workflow:api:%s:%s", source, endpoint)
}

// GetStepData returns the record for one (session, step) pair, or nil when
// absent. Storage errors are returned wrapped but the caller treats them as
// a miss.
func (service *CacheService) GetStepData(ctx context.Context, sessionID string, step models.WorkflowStep) (*models.StepRecord, error) {
	key := stepDataKey(sessionID, step)
	startTime := time.Now()

	raw, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		service.logger.LogService("cache", "get_step_data", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
			"step":       string(step),
		}, err)
		return nil, models.NewExternalError("CACHE_GET_FAILED", "Failed to read step data").WithCause(err)
	}

	var record models.StepRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		service.logger.WithError(err).Warn("Corrupt step record ignored", "key", key)
		return nil, nil
	}

	return &record, nil
}

// PutStepData upserts the record for one (session, step) pair. Last write
// wins; there is no version check.
func (service *CacheService) PutStepData(ctx context.Context, sessionID string, step models.WorkflowStep, data map[string]interface{}, sources map[string]models.SourceMeta, validation *models.StepValidation) error {
	key := stepDataKey(sessionID, step)
	startTime := time.Now()

	record := models.StepRecord{
		SessionID:   sessionID,
		Step:        step,
		Data:        data,
		DataSources: sources,
		Validation:  validation,
		UpdatedAt:   time.Now(),
	}

	raw, err := json.Marshal(&record)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize step record").WithCause(err)
	}

	if err := service.client.Set(ctx, key, raw, 0).Err(); err != nil {
		service.logger.LogService("cache", "put_step_data", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
			"step":       string(step),
		}, err)
		return models.NewExternalError("CACHE_PUT_FAILED", "Failed to store step data").WithCause(err)
	}

	service.logger.LogService("cache", "put_step_data", time.Since(startTime), map[string]interface{}{
		"session_id": sessionID,
		"step":       string(step),
		"fields":     len(data),
	}, nil)

	return nil
}

// DeleteSessionData removes every step record of a session. Used by explicit
// workflow reset only; sessions themselves are never deleted here.
func (service *CacheService) DeleteSessionData(ctx context.Context, sessionID string) error {
	keys := make([]string, 0, len(models.StepOrder))
	for _, step := range models.DataSteps() {
		keys = append(keys, stepDataKey(sessionID, step))
	}

	if err := service.client.Del(ctx, keys...).Err(); err != nil {
		return models.NewExternalError("CACHE_DELETE_FAILED", "Failed to delete session step data").WithCause(err)
	}

	return nil
}

// GetAnalysis returns a memoized analysis entry, or nil when absent or past
// its expiry. Expired rows are deleted best-effort on read.
func (service *CacheService) GetAnalysis(ctx context.Context, sessionID string, kind models.AnalysisKind, inputHash string) (*models.AnalysisCacheEntry, error) {
	key := analysisKey(sessionID, kind, inputHash)
	startTime := time.Now()

	raw, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		service.logger.LogService("cache", "get_analysis", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
			"kind":       string(kind),
			"input_hash": inputHash,
		}, err)
		return nil, models.NewExternalError("CACHE_GET_FAILED", "Failed to read analysis cache").WithCause(err)
	}

	var entry models.AnalysisCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		service.logger.WithError(err).Warn("Corrupt analysis entry ignored", "key", key)
		return nil, nil
	}

	if entry.Expired() {
		_ = service.client.Del(ctx, key).Err()
		return nil, nil
	}

	service.logger.LogService("cache", "get_analysis", time.Since(startTime), map[string]interface{}{
		"session_id": sessionID,
		"kind":       string(kind),
		"hit":        true,
	}, nil)

	return &entry, nil
}

// PutAnalysis stores one computed analysis keyed by the content hash of its
// inputs. Expiry is now + the configured analysis TTL.
func (service *CacheService) PutAnalysis(ctx context.Context, sessionID string, kind models.AnalysisKind, inputHash string, results map[string]interface{}, apiCalls []string, computeMs int64) error {
	key := analysisKey(sessionID, kind, inputHash)
	now := time.Now()

	entry := models.AnalysisCacheEntry{
		SessionID:         sessionID,
		Kind:              kind,
		InputHash:         inputHash,
		Results:           results,
		APICallsMade:      apiCalls,
		ComputationTimeMs: computeMs,
		CreatedAt:         now,
		ExpiresAt:         now.Add(service.config.AnalysisTTL),
	}

	raw, err := json.Marshal(&entry)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize analysis entry").WithCause(err)
	}

	if err := service.client.Set(ctx, key, raw, service.config.AnalysisTTL).Err(); err != nil {
		return models.NewExternalError("CACHE_PUT_FAILED", "Failed to store analysis entry").WithCause(err)
	}

	service.logger.Debug("Analysis result cached",
		"session_id", sessionID,
		"kind", string(kind),
		"input_hash", inputHash,
		"compute_ms", computeMs)

	return nil
}

// GetEntity returns a cached external entity lookup, shared across sessions.
func (service *CacheService) GetEntity(ctx context.Context, name, jurisdiction string) (*models.EntityCacheEntry, error) {
	key := entityKey(name, jurisdiction)

	raw, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		service.logger.WithError(err).Warn("Entity cache read failed",
			"entity_name", name,
			"jurisdiction", jurisdiction)
		return nil, models.NewExternalError("CACHE_GET_FAILED", "Failed to read entity cache").WithCause(err)
	}

	var entry models.EntityCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		service.logger.WithError(err).Warn("Corrupt entity entry ignored", "key", key)
		return nil, nil
	}

	if entry.Expired() {
		_ = service.client.Del(ctx, key).Err()
		return nil, nil
	}

	return &entry, nil
}

// PutEntity stores an entity lookup under its natural identity with the long
// entity TTL.
func (service *CacheService) PutEntity(ctx context.Context, entry *models.EntityCacheEntry) error {
	key := entityKey(entry.EntityName, entry.Jurisdiction)

	stored := *entry
	stored.ExpiresAt = time.Now().Add(service.config.EntityTTL)

	raw, err := json.Marshal(&stored)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize entity entry").WithCause(err)
	}

	if err := service.client.Set(ctx, key, raw, service.config.EntityTTL).Err(); err != nil {
		return models.NewExternalError("CACHE_PUT_FAILED", "Failed to store entity entry").WithCause(err)
	}

	return nil
}

// GetAPIResponse returns a generic cached upstream response, or nil on miss.
func (service *CacheService) GetAPIResponse(ctx context.Context, source, endpoint string) (*models.APICacheEntry, error) {
	key := apiCacheKey(source, endpoint)

	raw, err := service.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		service.logger.WithError(err).Warn("API cache read failed", "source", source, "endpoint", endpoint)
		return nil, models.NewExternalError("CACHE_GET_FAILED", "Failed to read API cache").WithCause(err)
	}

	var entry models.APICacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		service.logger.WithError(err).Warn("Corrupt API cache entry ignored", "key", key)
		return nil, nil
	}

	if entry.Expired() {
		_ = service.client.Del(ctx, key).Err()
		return nil, nil
	}

	return &entry, nil
}

// PutAPIResponse caches a generic upstream response for ttlHours.
func (service *CacheService) PutAPIResponse(ctx context.Context, source, endpoint string, data interface{}, ttlHours int, metadata map[string]interface{}) error {
	key := apiCacheKey(source, endpoint)
	ttl := time.Duration(ttlHours) * time.Hour
	now := time.Now()

	entry := models.APICacheEntry{
		Source:    source,
		Endpoint:  endpoint,
		Data:      data,
		Metadata:  metadata,
		CachedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	raw, err := json.Marshal(&entry)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize API cache entry").WithCause(err)
	}

	if err := service.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return models.NewExternalError("CACHE_PUT_FAILED", "Failed to store API cache entry").WithCause(err)
	}

	return nil
}

func (service *CacheService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache backend unhealthy: %w", err)
	}
	return nil
}

func (service *CacheService) Close() error {
	service.logger.Info("Closing Cache Service")
	return service.client.Close()
}
