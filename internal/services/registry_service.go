package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"tradecompass-core/internal/config"
	"tradecompass-core/internal/models"
	"tradecompass-core/internal/pkg/logger"
)

// RegistryService looks up supplier records in an external trade registry.
// Calls go through a circuit breaker and bounded retries; the workflow core
// treats the whole service as an optional capability and caches successful
// lookups for the long entity TTL.
type RegistryService struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	config     config.RegistryConfig
	logger     *logger.Logger
}

type registryResponse struct {
	ValidationData map[string]interface{} `json:"validation_data"`
	RiskAssessment map[string]interface{} `json:"risk_assessment"`
	AuxiliaryData  map[string]interface{} `json:"auxiliary_data"`
}

func NewRegistryService(cfg config.RegistryConfig, log *logger.Logger) (*RegistryService, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("registry base URL required")
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "supplier-registry",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Registry circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	service := &RegistryService{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		breaker:    breaker,
		config:     cfg,
		logger:     log,
	}

	log.Info("Registry Service Initialized Successfully",
		"base_url", cfg.BaseURL,
		"retry_attempts", cfg.RetryAttempts)

	return service, nil
}

// LookupEntity fetches one supplier record by its natural identity.
func (service *RegistryService) LookupEntity(ctx context.Context, name, jurisdiction string) (*models.EntityCacheEntry, error) {
	startTime := time.Now()

	operation := func() (*registryResponse, error) {
		result, err := service.breaker.Execute(func() (interface{}, error) {
			return service.fetch(ctx, name, jurisdiction)
		})
		if err != nil {
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return result.(*registryResponse), nil
	}

	response, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(service.config.RetryAttempts)))

	if err != nil {
		service.logger.LogService("registry", "lookup_entity", time.Since(startTime), map[string]interface{}{
			"entity_name":  name,
			"jurisdiction": jurisdiction,
		}, err)
		return nil, models.NewExternalError("REGISTRY_LOOKUP_FAILED", "Supplier registry lookup failed").WithCause(err)
	}

	service.logger.LogService("registry", "lookup_entity", time.Since(startTime), map[string]interface{}{
		"entity_name":  name,
		"jurisdiction": jurisdiction,
	}, nil)

	return &models.EntityCacheEntry{
		EntityName:     name,
		Jurisdiction:   jurisdiction,
		ValidationData: response.ValidationData,
		RiskAssessment: response.RiskAssessment,
		AuxiliaryData:  response.AuxiliaryData,
		LastValidated:  time.Now(),
	}, nil
}

func (service *RegistryService) fetch(ctx context.Context, name, jurisdiction string) (*registryResponse, error) {
	endpoint := fmt.Sprintf("%s/v1/entities?name=%s&jurisdiction=%s",
		service.config.BaseURL, url.QueryEscape(name), url.QueryEscape(jurisdiction))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")

	response, err := service.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(models.NewNotFoundError("ENTITY_NOT_FOUND", "Entity not found in registry").
			WithMetadata("entity_name", name).
			WithMetadata("jurisdiction", jurisdiction))
	}

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", response.StatusCode)
	}

	var decoded registryResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}

	return &decoded, nil
}

func (service *RegistryService) HealthCheck(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, service.config.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	response, err := service.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("registry unhealthy: status %d", response.StatusCode)
	}

	return nil
}
