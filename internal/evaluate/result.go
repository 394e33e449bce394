package evaluate

// PassResult holds one pass's score with the findings and defects behind it.
// Findings are informational; defects describe concrete deviations and feed
// the diagnosis stage.
type PassResult struct {
	Pass        Pass     `json:"pass" yaml:"pass"`
	Score       float64  `json:"score" yaml:"score"`
	Findings    []string `json:"findings,omitempty" yaml:"findings,omitempty"`
	Defects     []string `json:"defects,omitempty" yaml:"defects,omitempty"`
	Suggestions []string `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

// WeightedScore returns the pass score scaled by its weight.
func (r PassResult) WeightedScore() float64 {
	return r.Score * r.Pass.Weight()
}

// Failing reports whether the score is below the given threshold.
func (r PassResult) Failing(threshold float64) bool {
	return r.Score < threshold
}

// Result is the outcome of one full evaluation.
type Result struct {
	Passes       map[Pass]PassResult `json:"passes" yaml:"passes"`
	OverallScore float64             `json:"overall_score" yaml:"overall_score"`
	Converged    bool                `json:"converged" yaml:"converged"`
	Iteration    int                 `json:"iteration" yaml:"iteration"`
}

// WorstPass returns the lowest-scoring pass. Ties resolve in canonical pass
// order so repeated evaluations pick the same pass.
func (r Result) WorstPass() (Pass, PassResult) {
	var worst Pass
	var worstResult PassResult
	first := true
	for _, p := range AllPasses() {
		pr, ok := r.Passes[p]
		if !ok {
			continue
		}
		if first || pr.Score < worstResult.Score {
			worst, worstResult = p, pr
			first = false
		}
	}
	return worst, worstResult
}

// Defects returns every defect across all passes, in canonical pass order.
func (r Result) Defects() []string {
	var out []string
	for _, p := range AllPasses() {
		out = append(out, r.Passes[p].Defects...)
	}
	return out
}

// FailingPasses returns the passes scoring under their thresholds, in
// canonical order. Passes without a configured threshold use fallback.
func (r Result) FailingPasses(thresholds map[string]float64, fallback float64) []Pass {
	var out []Pass
	for _, p := range AllPasses() {
		pr, ok := r.Passes[p]
		if !ok {
			continue
		}
		threshold, ok := thresholds[string(p)]
		if !ok {
			threshold = fallback
		}
		if pr.Failing(threshold) {
			out = append(out, p)
		}
	}
	return out
}
