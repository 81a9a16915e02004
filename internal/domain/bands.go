package domain

// IndustryOther is the fallback industry used when a supplier's industry has no bands.
const IndustryOther = "Other"

// Band is a reference range for one metric.
// How Min and Max are read depends on the metric kind:
//   - higher is better: Min is the floor (0), Max the cap (100)
//   - intensity: Min is the good point (100), Max the bad point (0)
//   - injury rate: Min is zero incidents (100), Max the ceiling (0)
//   - wage ratio: Min is the minimum ratio (0), Max the target ratio (100)
type Band struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// ReferenceBands holds per-industry and global reference ranges.
type ReferenceBands struct {
	Version    string                        `json:"version" yaml:"version"`
	Industries map[string]map[MetricKey]Band `json:"industries" yaml:"industries"`
	Global     map[MetricKey]Band            `json:"global" yaml:"global"`
}

// NormalizationMode selects which band set is used.
type NormalizationMode string

const (
	NormalizeIndustry NormalizationMode = "industry"
	NormalizeGlobal   NormalizationMode = "global"
)

// Empty reports whether no band exists anywhere.
func (b *ReferenceBands) Empty() bool {
	if b == nil {
		return true
	}
	for _, m := range b.Industries {
		if len(m) > 0 {
			return false
		}
	}
	return len(b.Global) == 0
}

// Lookup resolves the band for a metric.
// Industry mode tries the industry, then "Other", then the global set.
// Global mode tries the global set, then "Other".
func (b *ReferenceBands) Lookup(industry string, key MetricKey, mode NormalizationMode) (Band, bool) {
	if b == nil {
		return Band{}, false
	}
	if mode == NormalizeGlobal {
		if band, ok := b.Global[key]; ok {
			return band, true
		}
		band, ok := b.Industries[IndustryOther][key]
		return band, ok
	}
	if band, ok := b.Industries[industry][key]; ok {
		return band, true
	}
	if band, ok := b.Industries[IndustryOther][key]; ok {
		return band, true
	}
	band, ok := b.Global[key]
	return band, ok
}
