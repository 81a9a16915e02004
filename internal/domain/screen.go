package domain

// ScreenConfig defines a supplier screening rule.
type ScreenConfig struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression evaluated against a scored supplier
	Expression string `json:"expression"`

	// Outcome bands mapping the expression value to an outcome
	Bands []ScreenBand `json:"bands"`

	Enabled bool `json:"enabled"`
}

// ScreenBand maps a value range to an outcome.
type ScreenBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".pass", ".review", ".fail"
	Reason     string   `json:"reason"`
}

// ScreenResult is the output of one screen for one supplier.
type ScreenResult struct {
	ScreenID   string  `json:"screenId"`
	SupplierID string  `json:"supplierId"`
	Outcome    string  `json:"outcome"`
	Value      float64 `json:"value"`
	Reason     string  `json:"reason"`
	ProcessUs  int64   `json:"processUs"`
}

// Flagged reports whether the outcome should surface as a breakdown flag.
func (r ScreenResult) Flagged() bool {
	return r.Outcome == ScreenFail || r.Outcome == ScreenReview || r.Outcome == ScreenError
}

// Predefined screen outcomes
const (
	ScreenPass   = ".pass"
	ScreenFail   = ".fail"
	ScreenReview = ".review"
	ScreenError  = ".err"
)
