package models

import "time"

// AnalysisKind names one memoized derived analysis.
type AnalysisKind string

const (
	AnalysisKindTariffImpact          AnalysisKind = "tariff-impact"
	AnalysisKindSupplierConcentration AnalysisKind = "supplier-concentration"
	AnalysisKindSupplyChainRisk       AnalysisKind = "supply-chain-risk"
	AnalysisKindWorkforceCost         AnalysisKind = "workforce-cost"
)

// AnalysisCacheEntry memoizes one expensive analysis result, keyed by the
// content hash of the exact inputs that produced it. Multiple entries may
// exist per (session, kind) for different hashes.
type AnalysisCacheEntry struct {
	SessionID         string                 `json:"session_id"`
	Kind              AnalysisKind           `json:"kind"`
	InputHash         string                 `json:"input_hash"`
	Results           map[string]interface{} `json:"results"`
	APICallsMade      []string               `json:"api_calls_made,omitempty"`
	ComputationTimeMs int64                  `json:"computation_time_ms"`
	CreatedAt         time.Time              `json:"created_at"`
	ExpiresAt         time.Time              `json:"expires_at"`
}

// Expired reports whether readers must treat the entry as absent. Physical
// removal is a background concern; correctness never depends on it.
func (entry *AnalysisCacheEntry) Expired() bool {
	return time.Now().After(entry.ExpiresAt)
}

// EntityCacheEntry caches an external registry lookup. It is independent of
// any session, keyed by the entity's natural identity.
type EntityCacheEntry struct {
	EntityName     string                 `json:"entity_name"`
	Jurisdiction   string                 `json:"jurisdiction"`
	ValidationData map[string]interface{} `json:"validation_data,omitempty"`
	RiskAssessment map[string]interface{} `json:"risk_assessment,omitempty"`
	AuxiliaryData  map[string]interface{} `json:"auxiliary_data,omitempty"`
	LastValidated  time.Time              `json:"last_validated"`
	ExpiresAt      time.Time              `json:"expires_at"`
}

func (entry *EntityCacheEntry) Expired() bool {
	return time.Now().After(entry.ExpiresAt)
}

// APICacheEntry is the generic response cache for upstream data providers.
type APICacheEntry struct {
	Source    string                 `json:"source"`
	Endpoint  string                 `json:"endpoint"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CachedAt  time.Time              `json:"cached_at"`
	ExpiresAt time.Time              `json:"expires_at"`
}

func (entry *APICacheEntry) Expired() bool {
	return time.Now().After(entry.ExpiresAt)
}
