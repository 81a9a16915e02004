package domain

// MetricKey identifies one normalized ESG metric.
type MetricKey string

const (
	MetricEmissionsIntensity MetricKey = "emissions_intensity"
	MetricWaterIntensity     MetricKey = "water_intensity"
	MetricWasteIntensity     MetricKey = "waste_intensity"
	MetricRenewableShare     MetricKey = "renewable_share"

	MetricInjuryRate         MetricKey = "injury_rate"
	MetricTrainingHours      MetricKey = "training_hours"
	MetricWageRatio          MetricKey = "wage_ratio"
	MetricWorkforceDiversity MetricKey = "workforce_diversity"

	MetricBoardDiversity    MetricKey = "board_diversity"
	MetricBoardIndependence MetricKey = "board_independence"
	MetricAntiCorruption    MetricKey = "anti_corruption_policy"
	MetricTransparency      MetricKey = "transparency_score"
)

// MetricKind selects the normalization strategy for a metric.
type MetricKind int

const (
	KindHigherIsBetter MetricKind = iota
	KindIntensity
	KindInjuryRate
	KindWageRatio
	KindBoolean
)

// String returns the kind name used in traces.
func (k MetricKind) String() string {
	switch k {
	case KindHigherIsBetter:
		return "higher_is_better"
	case KindIntensity:
		return "lower_is_better_intensity"
	case KindInjuryRate:
		return "injury_rate"
	case KindWageRatio:
		return "wage_ratio"
	case KindBoolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Pillar is one of the three ESG pillars.
type Pillar string

const (
	PillarEnvironmental Pillar = "environmental"
	PillarSocial        Pillar = "social"
	PillarGovernance    Pillar = "governance"
)

// Pillars lists the pillars in canonical order.
var Pillars = []Pillar{PillarEnvironmental, PillarSocial, PillarGovernance}

// MetricSpec is the static description of a metric.
type MetricSpec struct {
	Key    MetricKey
	Kind   MetricKind
	Pillar Pillar
}

// Metrics lists every pillar metric in canonical order.
var Metrics = []MetricSpec{
	{MetricEmissionsIntensity, KindIntensity, PillarEnvironmental},
	{MetricWaterIntensity, KindIntensity, PillarEnvironmental},
	{MetricWasteIntensity, KindIntensity, PillarEnvironmental},
	{MetricRenewableShare, KindHigherIsBetter, PillarEnvironmental},

	{MetricInjuryRate, KindInjuryRate, PillarSocial},
	{MetricTrainingHours, KindHigherIsBetter, PillarSocial},
	{MetricWageRatio, KindWageRatio, PillarSocial},
	{MetricWorkforceDiversity, KindHigherIsBetter, PillarSocial},

	{MetricBoardDiversity, KindHigherIsBetter, PillarGovernance},
	{MetricBoardIndependence, KindHigherIsBetter, PillarGovernance},
	{MetricAntiCorruption, KindBoolean, PillarGovernance},
	{MetricTransparency, KindHigherIsBetter, PillarGovernance},
}

var metricIndex = func() map[MetricKey]MetricSpec {
	m := make(map[MetricKey]MetricSpec, len(Metrics))
	for _, s := range Metrics {
		m[s.Key] = s
	}
	return m
}()

// LookupMetric returns the spec for a metric key.
func LookupMetric(key MetricKey) (MetricSpec, bool) {
	s, ok := metricIndex[key]
	return s, ok
}

// PillarMetrics returns the metrics belonging to a pillar, in canonical order.
func PillarMetrics(p Pillar) []MetricSpec {
	out := make([]MetricSpec, 0, 4)
	for _, s := range Metrics {
		if s.Pillar == p {
			out = append(out, s)
		}
	}
	return out
}

// ExpectedFields is the number of disclosure fields counted for completeness:
// the twelve pillar metrics plus the three risk factors.
const ExpectedFields = 15
