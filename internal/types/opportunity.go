package types

// Scoring dimension constants. Breakdown values are 0-10 per dimension; the
// total is always recomputed server-side from breakdown and weights.
const (
	DimCustomerPain     = "customer_pain"
	DimWillingnessToPay = "willingness_to_pay"
	DimStrategicFit     = "strategic_fit"
	DimFeasibility      = "feasibility"
	DimDefensibility    = "defensibility"
	DimCompetitorGap    = "competitor_gap"
)

// ScoringDimensions lists the generative scoring dimensions in canonical order.
var ScoringDimensions = []string{
	DimCustomerPain,
	DimWillingnessToPay,
	DimStrategicFit,
	DimFeasibility,
	DimDefensibility,
	DimCompetitorGap,
}

// Scoring holds the weighted score breakdown for one opportunity.
type Scoring struct {
	Breakdown         map[string]float64 `json:"breakdown"`
	Weights           map[string]float64 `json:"weights"`
	RecencyConfidence int                `json:"recencyConfidence"`
	Total             int                `json:"total"`
}

// Experiment is a concrete validation experiment attached to an opportunity.
type Experiment struct {
	Hypothesis    string `json:"hypothesis"`
	Method        string `json:"method"`
	SuccessMetric string `json:"successMetric,omitempty"`
}

// Opportunity is the canonical shape of one strategic opportunity. ID is
// stable across runs: slug(title) + project id + optional linked job id.
type Opportunity struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Rationale   string       `json:"rationale"`
	Citations   []Citation   `json:"citations"`
	Scoring     Scoring      `json:"scoring"`
	Tradeoffs   []string     `json:"tradeoffs,omitempty"`
	Experiments []Experiment `json:"experiments,omitempty"`
	LinkedJobID string       `json:"linkedJobId,omitempty"`
}
