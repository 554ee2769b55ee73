package policy

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region construct
// Construct enumerates every policy of length policyLen as the Cartesian
// product of per-factor action ranges, later factors and timesteps varying
// fastest.
//
// numControls may be nil, in which case controllable factors get as many
// actions as they have levels. controlFactors may be nil, in which case the
// factors with more than one action are controllable (or all factors, when
// numControls is nil too). Factors outside controlFactors are pinned to 0.
func Construct(numStates, numControls []int, policyLen int, controlFactors []int) ([]Policy, error) {
	nf := len(numStates)
	if policyLen < 1 {
		return nil, fmt.Errorf("policy length must be at least 1, got %d", policyLen)
	}
	if numControls != nil && len(numControls) != nf {
		return nil, fmt.Errorf("%w: %d control sizes for %d factors", model.ErrShapeMismatch, len(numControls), nf)
	}

	if controlFactors == nil {
		for f := 0; f < nf; f++ {
			if numControls == nil || numControls[f] > 1 {
				controlFactors = append(controlFactors, f)
			}
		}
	}
	for _, f := range controlFactors {
		if f < 0 || f >= nf {
			return nil, fmt.Errorf("%w: control factor %d of %d", model.ErrDependencyRange, f, nf)
		}
	}

	ranges := make([]int, nf)
	for f := range ranges {
		switch {
		case !slices.Contains(controlFactors, f):
			ranges[f] = 1
		case numControls == nil:
			ranges[f] = numStates[f]
		default:
			ranges[f] = numControls[f]
		}
		if ranges[f] < 1 {
			return nil, fmt.Errorf("%w: factor %d has %d actions", model.ErrShapeMismatch, f, ranges[f])
		}
	}

	digits := policyLen * nf
	total := 1
	for i := 0; i < digits; i++ {
		total *= ranges[i%nf]
	}

	out := make([]Policy, total)
	flat := make([]int, digits)
	for k := 0; k < total; k++ {
		rem := k
		for i := digits - 1; i >= 0; i-- {
			r := ranges[i%nf]
			flat[i] = rem % r
			rem /= r
		}
		p := make(Policy, policyLen)
		for t := range p {
			p[t] = slices.Clone(flat[t*nf : (t+1)*nf])
		}
		out[k] = p
	}
	return out, nil
}

// #endregion construct

// #region posterior
// Posterior returns softmax(gamma*negG + log E). A nil E is a flat prior.
// A zero prior entry gives a -Inf logit, so that policy gets no mass
// whatever its negative EFE.
func Posterior(negG, E []float64, gamma float64) ([]float64, error) {
	if len(negG) == 0 {
		return nil, ErrEmptyPolicySet
	}
	if E != nil && len(E) != len(negG) {
		return nil, fmt.Errorf("%w: prior has %d entries for %d policies", model.ErrShapeMismatch, len(E), len(negG))
	}
	logits := make([]float64, len(negG))
	for i, g := range negG {
		logits[i] = gamma * g
		if E != nil {
			logits[i] += math.Log(E[i])
		}
	}
	return tensor.Softmax(logits), nil
}

// #endregion posterior

// #region marginals
// Marginals sums the posterior over policies sharing each first-timestep
// action level, giving one distribution over immediate actions per factor.
func Marginals(qPi []float64, policies []Policy, numControls []int) ([][]float64, error) {
	if len(qPi) != len(policies) {
		return nil, fmt.Errorf("%w: %d posterior entries for %d policies", model.ErrShapeMismatch, len(qPi), len(policies))
	}
	out := make([][]float64, len(numControls))
	for f, n := range numControls {
		out[f] = make([]float64, n)
	}
	for p, pol := range policies {
		first := pol.First()
		if len(first) != len(numControls) {
			return nil, fmt.Errorf("%w: policy %d has %d factors, want %d", model.ErrShapeMismatch, p, len(first), len(numControls))
		}
		for f, a := range first {
			if a < 0 || a >= numControls[f] {
				return nil, fmt.Errorf("%w: policy %d factor %d action %d", model.ErrActionRange, p, f, a)
			}
			out[f][a] += qPi[p]
		}
	}
	return out, nil
}

// #endregion marginals

// #region selection
// SampleAction picks one action per factor from the action marginals.
// Stochastic mode draws each factor in turn from rng.
func SampleAction(qPi []float64, policies []Policy, numControls []int, cfg SelectionConfig, rng *rand.Rand) ([]int, error) {
	marginals, err := Marginals(qPi, policies, numControls)
	if err != nil {
		return nil, err
	}
	action := make([]int, len(marginals))
	for f, m := range marginals {
		action[f], _, err = choose(m, cfg, rng)
		if err != nil {
			return nil, fmt.Errorf("factor %d: %w", f, err)
		}
	}
	return action, nil
}

// SamplePolicy picks a whole policy from qPi and returns it with its first
// action tuple.
func SamplePolicy(qPi []float64, policies []Policy, cfg SelectionConfig, rng *rand.Rand) (PolicySample, error) {
	if len(qPi) != len(policies) {
		return PolicySample{}, fmt.Errorf("%w: %d posterior entries for %d policies", model.ErrShapeMismatch, len(qPi), len(policies))
	}
	if len(qPi) == 0 {
		return PolicySample{}, ErrEmptyPolicySet
	}
	idx, probs, err := choose(qPi, cfg, rng)
	if err != nil {
		return PolicySample{}, err
	}
	return PolicySample{
		Index:  idx,
		Action: slices.Clone(policies[idx].First()),
		Probs:  probs,
	}, nil
}

// Select dispatches on cfg.Level. The returned index is -1 for per-factor
// selection, where no single policy is chosen.
func Select(qPi []float64, policies []Policy, numControls []int, cfg SelectionConfig, rng *rand.Rand) (PolicySample, error) {
	switch cfg.Level {
	case LevelAction, "":
		action, err := SampleAction(qPi, policies, numControls, cfg, rng)
		if err != nil {
			return PolicySample{}, err
		}
		return PolicySample{Index: -1, Action: action}, nil
	case LevelPolicy:
		return SamplePolicy(qPi, policies, cfg, rng)
	default:
		return PolicySample{}, fmt.Errorf("%w: level %q", ErrUnsupportedMode, cfg.Level)
	}
}

// choose returns the selected index of p and, in stochastic mode, the
// distribution it was drawn from.
func choose(p []float64, cfg SelectionConfig, rng *rand.Rand) (int, []float64, error) {
	if len(p) == 0 {
		return 0, nil, ErrEmptyPolicySet
	}
	switch cfg.Mode {
	case Deterministic:
		return floats.MaxIdx(p), nil, nil
	case Stochastic:
		if rng == nil {
			return 0, nil, fmt.Errorf("stochastic selection needs a random source")
		}
		logits := tensor.LogStableVec(p)
		floats.Scale(cfg.Alpha, logits)
		probs := tensor.Softmax(logits)
		return categorical(rng, probs), probs, nil
	default:
		return 0, nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, cfg.Mode)
	}
}

// categorical draws an index from probs by inverting the cumulative sum.
func categorical(rng *rand.Rand, probs []float64) int {
	u := rng.Float64()
	last := 0
	var acc float64
	for i, p := range probs {
		if p <= 0 {
			continue
		}
		acc += p
		last = i
		if u < acc {
			return i
		}
	}
	return last
}

// #endregion selection
