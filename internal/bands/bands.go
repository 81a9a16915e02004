// Package bands loads reference bands from YAML and provides the built-in set.
package bands

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/verdant/internal/domain"
)

// DefaultVersion identifies the built-in band set.
const DefaultVersion = "builtin-2025.1"

// Load reads bands from a YAML file. An empty path returns the built-in set.
func Load(path string) (*domain.ReferenceBands, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bands file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bands and checks every key and range.
func Parse(data []byte) (*domain.ReferenceBands, error) {
	var b domain.ReferenceBands
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bands: %w", err)
	}
	if err := Validate(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate rejects empty band sets, unknown metric keys and non-finite bounds.
func Validate(b *domain.ReferenceBands) error {
	if b.Empty() {
		return domain.ErrNoBands
	}
	check := func(scope string, m map[domain.MetricKey]domain.Band) error {
		for key, band := range m {
			if _, ok := domain.LookupMetric(key); !ok {
				return fmt.Errorf("%w: %s: unknown metric %q", domain.ErrInvalidConfig, scope, key)
			}
			if math.IsNaN(band.Min) || math.IsNaN(band.Max) {
				return fmt.Errorf("%w: %s: %s has NaN bounds", domain.ErrInvalidConfig, scope, key)
			}
		}
		return nil
	}
	for industry, m := range b.Industries {
		if err := check(industry, m); err != nil {
			return err
		}
	}
	return check("global", b.Global)
}

// Default returns the built-in reference bands. Intensity bands are read as
// {good, bad} per unit of revenue.
func Default() *domain.ReferenceBands {
	common := func(emissions, water, waste domain.Band) map[domain.MetricKey]domain.Band {
		return map[domain.MetricKey]domain.Band{
			domain.MetricEmissionsIntensity: emissions,
			domain.MetricWaterIntensity:     water,
			domain.MetricWasteIntensity:     waste,
			domain.MetricRenewableShare:     {Min: 0, Max: 100},

			domain.MetricInjuryRate:         {Min: 0, Max: 5},
			domain.MetricTrainingHours:      {Min: 0, Max: 40},
			domain.MetricWageRatio:          {Min: 1.0, Max: 1.5},
			domain.MetricWorkforceDiversity: {Min: 0, Max: 50},

			domain.MetricBoardDiversity:    {Min: 0, Max: 50},
			domain.MetricBoardIndependence: {Min: 0, Max: 100},
			domain.MetricAntiCorruption:    {Min: 0, Max: 1},
			domain.MetricTransparency:      {Min: 0, Max: 100},
		}
	}

	industries := map[string]map[domain.MetricKey]domain.Band{
		"Manufacturing": common(
			domain.Band{Min: 0.05, Max: 1.5},
			domain.Band{Min: 0.5, Max: 10},
			domain.Band{Min: 0.01, Max: 0.5},
		),
		"Retail": common(
			domain.Band{Min: 0.01, Max: 0.3},
			domain.Band{Min: 0.1, Max: 3},
			domain.Band{Min: 0.005, Max: 0.2},
		),
		"Logistics": common(
			domain.Band{Min: 0.1, Max: 2.5},
			domain.Band{Min: 0.1, Max: 2},
			domain.Band{Min: 0.005, Max: 0.15},
		),
		"Technology": common(
			domain.Band{Min: 0.005, Max: 0.15},
			domain.Band{Min: 0.05, Max: 1.5},
			domain.Band{Min: 0.001, Max: 0.05},
		),
		"Agriculture": common(
			domain.Band{Min: 0.2, Max: 3},
			domain.Band{Min: 5, Max: 60},
			domain.Band{Min: 0.02, Max: 0.6},
		),
		domain.IndustryOther: common(
			domain.Band{Min: 0.05, Max: 1.0},
			domain.Band{Min: 0.3, Max: 8},
			domain.Band{Min: 0.01, Max: 0.3},
		),
	}
	industries["Logistics"][domain.MetricInjuryRate] = domain.Band{Min: 0, Max: 8}
	industries["Agriculture"][domain.MetricInjuryRate] = domain.Band{Min: 0, Max: 7}

	return &domain.ReferenceBands{
		Version:    DefaultVersion,
		Industries: industries,
		Global: common(
			domain.Band{Min: 0.01, Max: 2.0},
			domain.Band{Min: 0.1, Max: 20},
			domain.Band{Min: 0.005, Max: 0.5},
		),
	}
}
