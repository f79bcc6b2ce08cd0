package services

import (
	"context"
	"fmt"
	"sort"

	"tradecompass-core/internal/models"
	"tradecompass-core/internal/pkg/logger"
)

// AnalysisService holds the derived-analysis computations the workflow wraps
// with the memoizing cache. Each method is a pure function of its input map
// and reports the upstream API calls the computation depended on.
type AnalysisService struct {
	logger *logger.Logger
}

func NewAnalysisService(log *logger.Logger) *AnalysisService {
	log.Info("Analysis Service Initialized Successfully")
	return &AnalysisService{logger: log}
}

// ComputeFor resolves the compute function for an analysis kind.
func (service *AnalysisService) ComputeFor(kind models.AnalysisKind) (ComputeFunc, error) {
	switch kind {
	case models.AnalysisKindTariffImpact:
		return service.TariffImpact, nil
	case models.AnalysisKindSupplierConcentration:
		return service.SupplierConcentration, nil
	case models.AnalysisKindSupplyChainRisk:
		return service.SupplyChainRisk, nil
	case models.AnalysisKindWorkforceCost:
		return service.WorkforceCost, nil
	default:
		return nil, models.NewValidationError("UNKNOWN_ANALYSIS_KIND", "Unsupported analysis kind").
			WithMetadata("kind", string(kind))
	}
}

// TariffImpact aggregates declared values and tariff rates across the
// imported product catalog.
func (service *AnalysisService) TariffImpact(ctx context.Context, input interface{}) (map[string]interface{}, []string, error) {
	fields, ok := input.(map[string]interface{})
	if !ok {
		return nil, nil, models.NewValidationError("INVALID_ANALYSIS_INPUT", "Tariff impact input must be an object")
	}

	products := sliceField(fields, "importedProducts")
	if len(products) == 0 {
		return nil, nil, models.NewValidationError("MISSING_ANALYSIS_INPUT", "Tariff impact requires imported products")
	}

	totalValue := 0.0
	totalDuty := 0.0
	withRate := 0
	exposures := make([]map[string]interface{}, 0, len(products))

	for _, product := range products {
		record, ok := product.(map[string]interface{})
		if !ok {
			continue
		}

		value := numberField(record, "declaredValue")
		rate := numberField(record, "tariffRate")
		duty := value * rate / 100

		totalValue += value
		totalDuty += duty
		if rate > 0 {
			withRate++
		}

		exposures = append(exposures, map[string]interface{}{
			"product":       stringField(record, "name"),
			"origin":        stringField(record, "originCountry"),
			"declaredValue": value,
			"tariffRate":    rate,
			"projectedDuty": duty,
		})
	}

	sort.Slice(exposures, func(i, j int) bool {
		return exposures[i]["projectedDuty"].(float64) > exposures[j]["projectedDuty"].(float64)
	})
	if len(exposures) > 10 {
		exposures = exposures[:10]
	}

	effectiveRate := 0.0
	if totalValue > 0 {
		effectiveRate = totalDuty / totalValue * 100
	}

	results := map[string]interface{}{
		"productCount":        len(products),
		"productsWithRates":   withRate,
		"totalDeclaredValue":  totalValue,
		"projectedAnnualDuty": totalDuty,
		"effectiveTariffRate": effectiveRate,
		"topExposures":        exposures,
	}

	return results, []string{"trade-tariff-api:rates"}, nil
}

// SupplierConcentration scores sourcing concentration with a
// Herfindahl-Hirschman index over supplier spend shares.
func (service *AnalysisService) SupplierConcentration(ctx context.Context, input interface{}) (map[string]interface{}, []string, error) {
	fields, ok := input.(map[string]interface{})
	if !ok {
		return nil, nil, models.NewValidationError("INVALID_ANALYSIS_INPUT", "Supplier concentration input must be an object")
	}

	suppliers := sliceField(fields, "suppliers")
	if len(suppliers) == 0 {
		return nil, nil, models.NewValidationError("MISSING_ANALYSIS_INPUT", "Supplier concentration requires supplier records")
	}

	totalSpend := 0.0
	spendByCountry := make(map[string]float64)
	spendBySupplier := make(map[string]float64)

	for i, supplier := range suppliers {
		record, ok := supplier.(map[string]interface{})
		if !ok {
			continue
		}

		name := stringField(record, "name")
		if name == "" {
			name = fmt.Sprintf("supplier-%d", i)
		}
		spend := numberField(record, "annualSpend")
		if spend == 0 {
			// Equal weighting when spend is unknown keeps the index defined.
			spend = 1
		}

		totalSpend += spend
		spendBySupplier[name] += spend
		if country := stringField(record, "country"); country != "" {
			spendByCountry[country] += spend
		}
	}

	hhi := 0.0
	if totalSpend > 0 {
		for _, spend := range spendBySupplier {
			share := spend / totalSpend * 100
			hhi += share * share
		}
	}

	countryShares := make(map[string]interface{}, len(spendByCountry))
	for country, spend := range spendByCountry {
		if totalSpend > 0 {
			countryShares[country] = spend / totalSpend * 100
		}
	}

	results := map[string]interface{}{
		"supplierCount":      len(spendBySupplier),
		"concentrationIndex": hhi,
		"highConcentration":  hhi > 2500,
		"countryShares":      countryShares,
	}

	return results, []string{"supplier-registry:profiles"}, nil
}

// SupplyChainRisk combines product origin spread and supplier concentration
// into one indicative risk score.
func (service *AnalysisService) SupplyChainRisk(ctx context.Context, input interface{}) (map[string]interface{}, []string, error) {
	fields, ok := input.(map[string]interface{})
	if !ok {
		return nil, nil, models.NewValidationError("INVALID_ANALYSIS_INPUT", "Supply chain risk input must be an object")
	}

	products := sliceField(fields, "importedProducts")
	suppliers := sliceField(fields, "suppliers")

	origins := make(map[string]int)
	for _, product := range products {
		if record, ok := product.(map[string]interface{}); ok {
			if origin := stringField(record, "originCountry"); origin != "" {
				origins[origin]++
			}
		}
	}

	// Fewer origins and fewer suppliers both push the score up.
	score := 0.0
	switch {
	case len(origins) <= 1:
		score += 50
	case len(origins) <= 3:
		score += 25
	}
	switch {
	case len(suppliers) <= 1:
		score += 50
	case len(suppliers) <= 3:
		score += 25
	}

	level := "low"
	switch {
	case score >= 75:
		level = "critical"
	case score >= 50:
		level = "high"
	case score >= 25:
		level = "moderate"
	}

	results := map[string]interface{}{
		"riskScore":     score,
		"riskLevel":     level,
		"originCount":   len(origins),
		"supplierCount": len(suppliers),
	}

	return results, []string{"shipping-lanes-api:routes"}, nil
}

// WorkforceCost projects annual labor cost from headcount, wage and
// department breakdown.
func (service *AnalysisService) WorkforceCost(ctx context.Context, input interface{}) (map[string]interface{}, []string, error) {
	fields, ok := input.(map[string]interface{})
	if !ok {
		return nil, nil, models.NewValidationError("INVALID_ANALYSIS_INPUT", "Workforce cost input must be an object")
	}

	headcount := numberField(fields, "headcount")
	averageWage := numberField(fields, "averageWage")
	if headcount <= 0 || averageWage <= 0 {
		return nil, nil, models.NewValidationError("MISSING_ANALYSIS_INPUT", "Workforce cost requires headcount and average wage")
	}

	annualCost := headcount * averageWage

	departmentCosts := make(map[string]interface{})
	if breakdown := mapField(fields, "departmentBreakdown"); breakdown != nil {
		for department, raw := range breakdown {
			departmentCosts[department] = toNumber(raw) * averageWage
		}
	}

	results := map[string]interface{}{
		"headcount":           headcount,
		"averageWage":         averageWage,
		"projectedAnnualCost": annualCost,
		"departmentCosts":     departmentCosts,
	}

	return results, nil, nil
}
