// Package planner runs one active-inference planning step: score every
// policy, form the policy posterior and select an action.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/dynamics"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/metrics"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/rollout"
)

// #region planner

// Planner owns a validated model, its policy set and policy prior.
type Planner struct {
	cfg         Config
	engine      *rollout.Engine
	policies    []policy.Policy
	E           []float64
	numControls []int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the planner and rollout logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics records every decision in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

// WithPolicies replaces the enumerated policy set.
func WithPolicies(policies []policy.Policy) Option {
	return func(p *Planner) { p.policies = policies }
}

// New builds the rollout engine and policy set for m. The policy prior is
// m.E, or flat when m.E is nil.
func New(m *model.Model, cfg Config, opts ...Option) (*Planner, error) {
	p := &Planner{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	engine, err := rollout.NewEngine(m, cfg.Rollout, rollout.WithLogger(p.logger))
	if err != nil {
		return nil, fmt.Errorf("new planner: %w", err)
	}
	p.engine = engine
	m = engine.Model()

	p.numControls = cfg.NumControls
	if p.numControls == nil {
		p.numControls = m.NumControls()
	}
	if p.policies == nil {
		p.policies, err = policy.Construct(m.NumStates(), p.numControls, cfg.PolicyLen, cfg.ControlFactors)
		if err != nil {
			return nil, fmt.Errorf("new planner: %w", err)
		}
	}
	if len(p.policies) == 0 {
		return nil, fmt.Errorf("new planner: %w", policy.ErrEmptyPolicySet)
	}
	for i, pol := range p.policies {
		for t, u := range pol {
			if err := m.ValidateAction(u); err != nil {
				return nil, fmt.Errorf("new planner: policy %d timestep %d: %w", i, t, err)
			}
		}
	}

	p.E = m.E
	if p.E == nil {
		p.E = make([]float64, len(p.policies))
		for i := range p.E {
			p.E[i] = 1 / float64(len(p.policies))
		}
	}
	if len(p.E) != len(p.policies) {
		return nil, fmt.Errorf("new planner: %w: prior has %d entries for %d policies",
			model.ErrShapeMismatch, len(p.E), len(p.policies))
	}
	return p, nil
}

// Model returns the validated model.
func (p *Planner) Model() *model.Model { return p.engine.Model() }

// Policies returns the policy set in posterior order.
func (p *Planner) Policies() []policy.Policy { return p.policies }

// NumControls returns the per-factor action counts used for marginals.
func (p *Planner) NumControls() []int { return p.numControls }

// Config returns the planner configuration.
func (p *Planner) Config() Config { return p.cfg }

// #endregion planner

// #region infer

// Infer scores every policy from qs and selects an action. rng is used only
// by stochastic selection and may be nil otherwise.
func (p *Planner) Infer(ctx context.Context, qs model.Beliefs, rng *rand.Rand) (*Decision, error) {
	start := time.Now()

	results, err := p.engine.EvaluateAll(ctx, qs, p.policies)
	if err != nil {
		p.metrics.ObserveError("rollout")
		return nil, fmt.Errorf("infer: %w", err)
	}
	negG := rollout.NegEFE(results)

	q, err := policy.Posterior(negG, p.E, p.cfg.Gamma)
	if err != nil {
		p.metrics.ObserveError("posterior")
		return nil, fmt.Errorf("infer: %w", err)
	}
	if !allFinite(q) {
		p.logger.Warn("degenerate policy posterior", "neg_efe", negG)
	}

	marginals, err := policy.Marginals(q, p.policies, p.numControls)
	if err != nil {
		p.metrics.ObserveError("posterior")
		return nil, fmt.Errorf("infer: %w", err)
	}

	sel, err := policy.Select(q, p.policies, p.numControls, p.cfg.Selection, rng)
	if err != nil {
		p.metrics.ObserveError("select")
		return nil, fmt.Errorf("infer: %w", err)
	}

	d := &Decision{
		Posterior:   q,
		NegEFE:      negG,
		Marginals:   marginals,
		Action:      sel.Action,
		PolicyIndex: sel.Index,
		PolicyProbs: sel.Probs,
	}
	if p.cfg.Rollout.Variant == rollout.VariantFull {
		d.Terms = make([]*rollout.Terms, len(results))
		for i, r := range results {
			d.Terms[i] = r.Terms
		}
	}

	level := string(p.cfg.Selection.Level)
	if level == "" {
		level = string(policy.LevelAction)
	}
	elapsed := time.Since(start)
	p.metrics.ObserveDecision(level, string(p.cfg.Rollout.Variant), len(p.policies), floats.Max(q), d.Action, elapsed)
	p.logger.Debug("decision",
		"action", d.Action,
		"policy_index", d.PolicyIndex,
		"policies", len(p.policies),
		"elapsed", elapsed,
	)
	return d, nil
}

// NextPrior predicts the beliefs after taking action from qs. The result is
// the empirical prior for the next timestep.
func (p *Planner) NextPrior(qs model.Beliefs, action []int) (model.Beliefs, error) {
	m := p.engine.Model()
	if err := m.ValidateBeliefs(qs); err != nil {
		return nil, err
	}
	if err := m.ValidateAction(action); err != nil {
		return nil, err
	}
	return dynamics.ExpectedState(qs, m.B, action, m.BDependencies)
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// #endregion infer
