package services

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tradecompass-core/internal/models"
	"tradecompass-core/internal/pkg/logger"
)

// SessionService owns the lifecycle of workflow sessions: creation, recency
// lookup and step pointer updates. Sessions are never implicitly deleted.
//
// Recency is tracked in sorted sets scored by last-accessed time: one set per
// owner and a shared set for ephemeral (anonymous/demo) sessions.
type SessionService struct {
	client *redis.Client
	logger *logger.Logger
}

func NewSessionService(client *redis.Client, log *logger.Logger) *SessionService {
	log.Info("Session Service Initialized Successfully")
	return &SessionService{
		client: client,
		logger: log,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("workflow:session:%s", sessionID)
}

func recencyKey(ownerID string) string {
	if ownerID == "" {
		return "workflow:sessions:ephemeral"
	}
	return fmt.Sprintf("workflow:user:%s:sessions", ownerID)
}

// CreateSession persists a fresh session starting at the welcome step and
// returns the full record.
func (service *SessionService) CreateSession(ctx context.Context, name, ownerID string, isEphemeral bool) (*models.WorkflowSession, error) {
	session := models.NewWorkflowSession(name, ownerID, isEphemeral)
	startTime := time.Now()

	if err := service.save(ctx, session); err != nil {
		service.logger.LogService("session", "create_session", time.Since(startTime), map[string]interface{}{
			"owner_id":  ownerID,
			"ephemeral": isEphemeral,
		}, err)
		return nil, err
	}

	service.logger.LogWorkflow(session.ID, ownerID, "session_created", time.Since(startTime), nil)

	return session, nil
}

// GetMostRecentSession returns the session with the greatest last-accessed
// time visible to the caller, touching it on hit. Returns nil when the
// caller has no sessions yet.
func (service *SessionService) GetMostRecentSession(ctx context.Context, ownerID string) (*models.WorkflowSession, error) {
	startTime := time.Now()

	ids, err := service.client.ZRevRange(ctx, recencyKey(ownerID), 0, 0).Result()
	if err != nil {
		service.logger.LogService("session", "get_most_recent", time.Since(startTime), map[string]interface{}{
			"owner_id": ownerID,
		}, err)
		return nil, models.NewExternalError("SESSION_LOOKUP_FAILED", "Failed to query recent sessions").WithCause(err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	session, err := service.getByID(ctx, ids[0])
	if err != nil {
		return nil, err
	}
	if session == nil {
		// Dangling recency index entry; drop it and report no session.
		_ = service.client.ZRem(ctx, recencyKey(ownerID), ids[0]).Err()
		return nil, nil
	}

	session.Touch()
	if err := service.save(ctx, session); err != nil {
		service.logger.WithError(err).Warn("Failed to touch session on read", "session_id", session.ID)
	}

	service.logger.LogService("session", "get_most_recent", time.Since(startTime), map[string]interface{}{
		"owner_id":     ownerID,
		"session_id":   session.ID,
		"current_step": string(session.CurrentStep),
	}, nil)

	return session, nil
}

// SetCurrentStep moves the session's step pointer. Idempotent: repeating the
// same step only refreshes timestamps.
func (service *SessionService) SetCurrentStep(ctx context.Context, sessionID string, step models.WorkflowStep) error {
	startTime := time.Now()

	session, err := service.getByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return models.ErrSessionNotFound.WithMetadata("session_id", sessionID)
	}

	session.CurrentStep = step
	session.UpdatedAt = time.Now()
	session.Touch()

	if err := service.save(ctx, session); err != nil {
		service.logger.LogService("session", "set_current_step", time.Since(startTime), map[string]interface{}{
			"session_id": sessionID,
			"step":       string(step),
		}, err)
		return err
	}

	return nil
}

func (service *SessionService) getByID(ctx context.Context, sessionID string) (*models.WorkflowSession, error) {
	raw, err := service.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, models.NewExternalError("SESSION_GET_FAILED", "Failed to read session").WithCause(err)
	}

	var session models.WorkflowSession
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "Failed to deserialize session").WithCause(err)
	}

	return &session, nil
}

// save writes the session record and refreshes its recency index entry in a
// single pipeline.
func (service *SessionService) save(ctx context.Context, session *models.WorkflowSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize session").WithCause(err)
	}

	pipe := service.client.Pipeline()
	pipe.Set(ctx, sessionKey(session.ID), raw, 0)
	pipe.ZAdd(ctx, recencyKey(session.OwnerID), redis.Z{
		Score:  float64(session.LastAccessedAt.UnixMilli()),
		Member: session.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return models.NewExternalError("SESSION_SAVE_FAILED", "Failed to persist session").WithCause(err)
	}

	return nil
}

func (service *SessionService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("session backend unhealthy: %w", err)
	}
	return nil
}
