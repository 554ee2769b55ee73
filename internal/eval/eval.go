package eval

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region eval-harness
// EvalHarness checks the probabilistic invariants of a planner decision.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates d. Normalization, finiteness and action range are blocking;
// posterior entropy is informational.
func (h *EvalHarness) Run(d *planner.Decision) EvalResult {
	var metrics []EvalMetric
	var failReasons []string
	check := func(name string, value float64, pass bool, reason string) {
		metrics = append(metrics, EvalMetric{Name: name, Value: value, Pass: pass})
		if !pass {
			failReasons = append(failReasons, reason)
		}
	}

	// 1. Posterior is a distribution over policies
	sum := floats.Sum(d.Posterior)
	check("posterior_sum", sum, math.Abs(sum-1) <= h.config.Tolerance,
		fmt.Sprintf("posterior sums to %.8f", sum))
	bad := countInvalid(d.Posterior)
	check("posterior_invalid_entries", float64(bad), bad == 0,
		fmt.Sprintf("posterior has %d negative or non-finite entries", bad))

	// 2. Negative EFE has no NaN; -Inf is a legitimate exclusion
	nan := 0
	for _, g := range d.NegEFE {
		if math.IsNaN(g) {
			nan++
		}
	}
	check("neg_efe_nan", float64(nan), nan == 0,
		fmt.Sprintf("neg EFE has %d NaN entries", nan))

	// 3. Each action marginal is a distribution
	for f, m := range d.Marginals {
		s := floats.Sum(m)
		check(fmt.Sprintf("marginal_%d_sum", f), s, math.Abs(s-1) <= h.config.Tolerance,
			fmt.Sprintf("factor %d marginal sums to %.8f", f, s))
	}

	// 4. Selected action indexes the marginals
	inRange := len(d.Action) == len(d.Marginals)
	for f := 0; inRange && f < len(d.Action); f++ {
		inRange = d.Action[f] >= 0 && d.Action[f] < len(d.Marginals[f])
	}
	check("action_in_range", boolValue(inRange), inRange,
		fmt.Sprintf("action %v outside control ranges", d.Action))

	// 5. Posterior entropy: informational, does not fail
	entropy := tensor.Entropy(d.Posterior)
	metrics = append(metrics, EvalMetric{
		Name:  "posterior_entropy",
		Value: entropy,
		Pass:  entropy <= h.config.EntropyBaseline,
	})

	reason := "all checks passed"
	if len(failReasons) > 0 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
func countInvalid(xs []float64) int {
	n := 0
	for _, x := range xs {
		if x < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			n++
		}
	}
	return n
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
