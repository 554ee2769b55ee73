package eval

// #region eval-config
// EvalConfig holds thresholds for post-decision validation.
type EvalConfig struct {
	Tolerance       float64 // allowed |sum - 1| for posterior and marginals
	EntropyBaseline float64 // informational: flag posteriors flatter than this many nats
}

// DefaultEvalConfig returns the default thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		Tolerance:       1e-6,
		EntropyBaseline: 2.0,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-decision validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
