// Package rollout scores policies by rolling predicted beliefs forward and
// folding per-step scorer terms into a negative expected free energy.
package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/dynamics"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/inductive"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/scoring"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region engine
// Engine evaluates policies against a fixed model. It holds no mutable state
// after construction and is safe for concurrent use.
type Engine struct {
	m      *model.Model
	cfg    Config
	I      []*tensor.Tensor
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine validates m against cfg and, when inductive terms are enabled,
// precomputes the reachability matrices.
func NewEngine(m *model.Model, cfg Config, opts ...Option) (*Engine, error) {
	m = m.WithDefaults()
	if err := m.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Variant {
	case VariantStandard, VariantInductive, VariantFull:
	default:
		return nil, fmt.Errorf("unknown rollout variant %q", cfg.Variant)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("rollout workers must be non-negative, got %d", cfg.Workers)
	}

	e := &Engine{m: m, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	if cfg.UseParamInfoGain && m.PA == nil && m.PB == nil {
		return nil, fmt.Errorf("%w: parameter info gain needs pA or pB", model.ErrShapeMismatch)
	}
	if cfg.UseInductive {
		if cfg.Variant == VariantStandard {
			return nil, fmt.Errorf("inductive terms need the %q or %q variant", VariantInductive, VariantFull)
		}
		if m.H == nil {
			return nil, fmt.Errorf("%w: inductive planning needs goal vectors H", model.ErrShapeMismatch)
		}
		I, err := inductive.GenerateIMatrix(m.H, m.B, cfg.Inductive.Threshold, cfg.Inductive.Depth)
		if err != nil {
			return nil, fmt.Errorf("generate inductive matrices: %w", err)
		}
		e.I = I
	}
	return e, nil
}

// Model returns the validated model the engine scores against.
func (e *Engine) Model() *model.Model { return e.m }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// IMatrix returns the inductive reachability matrices, or nil when
// inductive terms are off.
func (e *Engine) IMatrix() []*tensor.Tensor { return e.I }

// #endregion engine

// #region evaluate
// stepTerms holds the scorer values of one timestep. Disabled terms stay zero.
type stepTerms struct {
	infoGain, utility, pigA, pigB, ind float64
	kld, freeEnergy, risk               float64
}

// Evaluate rolls qs forward under p and returns its negative EFE.
func (e *Engine) Evaluate(qs model.Beliefs, p policy.Policy) (Result, error) {
	var (
		negG   float64
		totals Terms
	)
	cur := qs
	for t, u := range p {
		next, s, err := e.step(qs, cur, u)
		if err != nil {
			return Result{}, fmt.Errorf("timestep %d: %w", t, err)
		}

		switch e.cfg.Variant {
		case VariantStandard:
			negG += s.infoGain + s.utility + s.pigA + s.pigB
		case VariantInductive:
			negG += s.infoGain + s.utility - (s.pigA + s.pigB) + s.ind
		case VariantFull:
			totals.InfoGain += s.infoGain
			totals.PredictedKLD += s.kld
			totals.PredictedF += s.freeEnergy
			totals.ObsRisk += s.risk
			totals.ParamInfoGainA -= s.pigA
			totals.ParamInfoGainB -= s.pigB
			negG = totals.InfoGain + totals.PredictedKLD - totals.PredictedF - totals.ObsRisk +
				totals.ParamInfoGainA + totals.ParamInfoGainB + s.ind
		}
		cur = next
	}

	res := Result{NegEFE: negG}
	if e.cfg.Variant == VariantFull {
		res.Terms = &totals
	}
	return res, nil
}

// step advances cur under u and computes the enabled terms at the predicted
// state. qs0 is the rollout's starting belief, the inductive reference point.
func (e *Engine) step(qs0, cur model.Beliefs, u []int) (model.Beliefs, stepTerms, error) {
	var s stepTerms
	m := e.m

	next, err := dynamics.ExpectedState(cur, m.B, u, m.BDependencies)
	if err != nil {
		return nil, s, err
	}
	qo, err := dynamics.ExpectedObs(next, m.A, m.ADependencies)
	if err != nil {
		return nil, s, err
	}

	if e.cfg.UseStatesInfoGain {
		if s.infoGain, err = scoring.InfoGain(next, qo, m.A, m.ADependencies); err != nil {
			return nil, s, err
		}
	}
	if e.cfg.UseUtility && e.cfg.Variant != VariantFull {
		s.utility = scoring.Utility(qo, m.C)
	}
	if e.cfg.UseParamInfoGain {
		if m.PA != nil {
			if s.pigA, err = scoring.ParamInfoGainA(m.PA, qo, next, m.ADependencies); err != nil {
				return nil, s, err
			}
		}
		if m.PB != nil {
			if s.pigB, err = scoring.ParamInfoGainB(m.PB, next, cur, m.BDependencies, u); err != nil {
				return nil, s, err
			}
		}
	}
	if e.cfg.UseInductive {
		if s.ind, err = inductive.Value(qs0, next, e.I, e.cfg.Inductive.Epsilon); err != nil {
			return nil, s, err
		}
	}
	if e.cfg.Variant == VariantFull {
		if s.kld, err = scoring.PredictedKLD(next, qo, m.A, m.ADependencies); err != nil {
			return nil, s, err
		}
		if s.freeEnergy, err = scoring.PredictedFreeEnergy(next, qo, m.A, m.ADependencies); err != nil {
			return nil, s, err
		}
		s.risk = scoring.ObservationRisk(qo, m.C)
	}
	return next, s, nil
}

// #endregion evaluate

// #region evaluate-all
// EvaluateAll scores every policy from the same starting beliefs. Rollouts
// run in parallel; results keep the order of policies. The first failing
// rollout cancels the rest.
func (e *Engine) EvaluateAll(ctx context.Context, qs model.Beliefs, policies []policy.Policy) ([]Result, error) {
	if len(policies) == 0 {
		return nil, policy.ErrEmptyPolicySet
	}
	if err := e.m.ValidateBeliefs(qs); err != nil {
		return nil, err
	}
	start := time.Now()

	out := make([]Result, len(policies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers())
	for i, p := range policies {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := e.Evaluate(qs, p)
			if err != nil {
				return fmt.Errorf("policy %d: %w", i, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("policies evaluated",
		"policies", len(policies),
		"variant", string(e.cfg.Variant),
		"elapsed", time.Since(start),
	)
	return out, nil
}

// NegEFE extracts the negative EFE of each result.
func NegEFE(results []Result) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.NegEFE
	}
	return out
}

func (e *Engine) workers() int {
	if e.cfg.Workers > 0 {
		return e.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// #endregion evaluate-all
