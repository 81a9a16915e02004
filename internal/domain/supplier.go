package domain

import "time"

// SupplierRecord is one supplier's raw disclosure. Nil fields are undisclosed.
type SupplierRecord struct {
	ID       string `json:"id" yaml:"id"`
	TenantID string `json:"tenantId,omitempty" yaml:"-"`
	Name     string `json:"name" yaml:"name"`
	Industry string `json:"industry" yaml:"industry"`
	Country  string `json:"country" yaml:"country"`

	// Financials
	Revenue   *float64 `json:"revenue,omitempty" yaml:"revenue,omitempty"`
	Cost      *float64 `json:"cost,omitempty" yaml:"cost,omitempty"`
	Margin    *float64 `json:"margin,omitempty" yaml:"margin,omitempty"` // percent
	Employees *int     `json:"employees,omitempty" yaml:"employees,omitempty"`

	// Environmental (absolute quantities, divided by revenue for intensity)
	Emissions      *float64 `json:"emissions,omitempty" yaml:"emissions,omitempty"`
	WaterUse       *float64 `json:"waterUse,omitempty" yaml:"water_use,omitempty"`
	Waste          *float64 `json:"waste,omitempty" yaml:"waste,omitempty"`
	RenewableShare *float64 `json:"renewableShare,omitempty" yaml:"renewable_share,omitempty"`

	// Social
	InjuryRate         *float64 `json:"injuryRate,omitempty" yaml:"injury_rate,omitempty"`
	TrainingHours      *float64 `json:"trainingHours,omitempty" yaml:"training_hours,omitempty"`
	WageRatio          *float64 `json:"wageRatio,omitempty" yaml:"wage_ratio,omitempty"`
	WorkforceDiversity *float64 `json:"workforceDiversity,omitempty" yaml:"workforce_diversity,omitempty"`

	// Governance
	BoardDiversity       *float64 `json:"boardDiversity,omitempty" yaml:"board_diversity,omitempty"`
	BoardIndependence    *float64 `json:"boardIndependence,omitempty" yaml:"board_independence,omitempty"`
	AntiCorruptionPolicy *bool    `json:"antiCorruptionPolicy,omitempty" yaml:"anti_corruption_policy,omitempty"`
	TransparencyScore    *float64 `json:"transparencyScore,omitempty" yaml:"transparency_score,omitempty"`

	// Risk factors in [0,1] (values above 1 are read as percentages)
	GeopoliticalRisk *float64 `json:"geopoliticalRisk,omitempty" yaml:"geopolitical_risk,omitempty"`
	ClimateRisk      *float64 `json:"climateRisk,omitempty" yaml:"climate_risk,omitempty"`
	LaborRisk        *float64 `json:"laborRisk,omitempty" yaml:"labor_risk,omitempty"`

	UpdatedAt time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Field names a raw numeric field of SupplierRecord that can be masked or imputed.
type Field string

const (
	FieldEmissions          Field = "emissions"
	FieldWaterUse           Field = "water_use"
	FieldWaste              Field = "waste"
	FieldRenewableShare     Field = "renewable_share"
	FieldInjuryRate         Field = "injury_rate"
	FieldTrainingHours      Field = "training_hours"
	FieldWageRatio          Field = "wage_ratio"
	FieldWorkforceDiversity Field = "workforce_diversity"
	FieldBoardDiversity     Field = "board_diversity"
	FieldBoardIndependence  Field = "board_independence"
	FieldTransparency       Field = "transparency_score"
)

// FieldPtr returns the address of the record slot for a numeric field.
// The returned pointer-to-pointer lets callers read, clear or replace the value.
func (s *SupplierRecord) FieldPtr(f Field) **float64 {
	switch f {
	case FieldEmissions:
		return &s.Emissions
	case FieldWaterUse:
		return &s.WaterUse
	case FieldWaste:
		return &s.Waste
	case FieldRenewableShare:
		return &s.RenewableShare
	case FieldInjuryRate:
		return &s.InjuryRate
	case FieldTrainingHours:
		return &s.TrainingHours
	case FieldWageRatio:
		return &s.WageRatio
	case FieldWorkforceDiversity:
		return &s.WorkforceDiversity
	case FieldBoardDiversity:
		return &s.BoardDiversity
	case FieldBoardIndependence:
		return &s.BoardIndependence
	case FieldTransparency:
		return &s.TransparencyScore
	default:
		return nil
	}
}

// Get returns the value of a numeric field, or nil when absent or unknown.
func (s *SupplierRecord) Get(f Field) *float64 {
	p := s.FieldPtr(f)
	if p == nil {
		return nil
	}
	return *p
}

// Set stores v in a numeric field. Unknown fields are ignored.
func (s *SupplierRecord) Set(f Field, v *float64) {
	if p := s.FieldPtr(f); p != nil {
		*p = v
	}
}

// Risks returns the three risk inputs.
func (s *SupplierRecord) Risks() RiskValues {
	return RiskValues{
		Geopolitical: s.GeopoliticalRisk,
		Climate:      s.ClimateRisk,
		Labor:        s.LaborRisk,
	}
}

// DisclosedCount counts non-nil raw metric and risk fields.
func (s *SupplierRecord) DisclosedCount() int {
	n := 0
	for _, v := range []*float64{
		s.Emissions, s.WaterUse, s.Waste, s.RenewableShare,
		s.InjuryRate, s.TrainingHours, s.WageRatio, s.WorkforceDiversity,
		s.BoardDiversity, s.BoardIndependence, s.TransparencyScore,
		s.GeopoliticalRisk, s.ClimateRisk, s.LaborRisk,
	} {
		if v != nil {
			n++
		}
	}
	if s.AntiCorruptionPolicy != nil {
		n++
	}
	return n
}

// Clone returns a deep copy so scenario variants never share pointers.
func (s *SupplierRecord) Clone() *SupplierRecord {
	c := *s
	c.Revenue = cloneFloat(s.Revenue)
	c.Cost = cloneFloat(s.Cost)
	c.Margin = cloneFloat(s.Margin)
	if s.Employees != nil {
		e := *s.Employees
		c.Employees = &e
	}
	c.Emissions = cloneFloat(s.Emissions)
	c.WaterUse = cloneFloat(s.WaterUse)
	c.Waste = cloneFloat(s.Waste)
	c.RenewableShare = cloneFloat(s.RenewableShare)
	c.InjuryRate = cloneFloat(s.InjuryRate)
	c.TrainingHours = cloneFloat(s.TrainingHours)
	c.WageRatio = cloneFloat(s.WageRatio)
	c.WorkforceDiversity = cloneFloat(s.WorkforceDiversity)
	c.BoardDiversity = cloneFloat(s.BoardDiversity)
	c.BoardIndependence = cloneFloat(s.BoardIndependence)
	if s.AntiCorruptionPolicy != nil {
		b := *s.AntiCorruptionPolicy
		c.AntiCorruptionPolicy = &b
	}
	c.TransparencyScore = cloneFloat(s.TransparencyScore)
	c.GeopoliticalRisk = cloneFloat(s.GeopoliticalRisk)
	c.ClimateRisk = cloneFloat(s.ClimateRisk)
	c.LaborRisk = cloneFloat(s.LaborRisk)
	return &c
}

// ClonePopulation deep-copies a population.
func ClonePopulation(records []*SupplierRecord) []*SupplierRecord {
	out := make([]*SupplierRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// RiskValues holds the three optional risk signals.
type RiskValues struct {
	Geopolitical *float64 `json:"geopolitical,omitempty"`
	Climate      *float64 `json:"climate,omitempty"`
	Labor        *float64 `json:"labor,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
