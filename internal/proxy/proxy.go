// Package proxy derives industry proxy values from the stored supplier population.
package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/opensource-finance/verdant/internal/domain"
	"github.com/opensource-finance/verdant/internal/scoring"
)

const cacheKey = "proxies"

// DefaultTTL is how long computed proxies stay cached.
const DefaultTTL = 10 * time.Minute

// Service computes proxy values for a tenant.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	ttl   time.Duration
}

// NewService creates a new proxy service. cache may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		ttl:   DefaultTTL,
	}
}

// GetProxies returns the per-industry mean of every non-boolean metric over
// the tenant's stored suppliers.
func (s *Service) GetProxies(ctx context.Context, tenantID string) (domain.ProxyValues, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, tenantID, cacheKey); err == nil && data != nil {
			var cached domain.ProxyValues
			if json.Unmarshal(data, &cached) == nil {
				return cached, nil
			}
		}
	}

	if s.repo == nil {
		return nil, fmt.Errorf("no data source available")
	}
	records, err := s.repo.ListSuppliers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list suppliers: %w", err)
	}

	proxies := Compute(records)

	if s.cache != nil {
		if data, err := json.Marshal(proxies); err == nil {
			_ = s.cache.Set(ctx, tenantID, cacheKey, data, s.ttl)
		}
	}
	return proxies, nil
}

// Invalidate drops the cached proxies after the population changes.
func (s *Service) Invalidate(ctx context.Context, tenantID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, tenantID, cacheKey)
}

// Compute averages the raw value of every non-boolean metric per industry.
// Intensity metrics are averaged as intensities.
func Compute(records []*domain.SupplierRecord) domain.ProxyValues {
	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[string]map[domain.MetricKey]*acc)

	for _, rec := range records {
		for _, spec := range domain.Metrics {
			if spec.Kind == domain.KindBoolean {
				continue
			}
			v := scoring.RawValue(rec, spec.Key)
			if v == nil {
				continue
			}
			byKey, ok := sums[rec.Industry]
			if !ok {
				byKey = make(map[domain.MetricKey]*acc)
				sums[rec.Industry] = byKey
			}
			a, ok := byKey[spec.Key]
			if !ok {
				a = &acc{}
				byKey[spec.Key] = a
			}
			a.sum += *v
			a.n++
		}
	}

	out := make(domain.ProxyValues, len(sums))
	for industry, byKey := range sums {
		means := make(map[domain.MetricKey]float64, len(byKey))
		for key, a := range byKey {
			means[key] = a.sum / float64(a.n)
		}
		out[industry] = means
	}
	return out
}

// Industries lists the industries that have at least one proxy, sorted.
func Industries(p domain.ProxyValues) []string {
	out := make([]string, 0, len(p))
	for industry := range p {
		out = append(out, industry)
	}
	sort.Strings(out)
	return out
}
