package planner

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/inductive"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/metrics"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model/modeltest"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/rollout"
)

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestInfer_GoalDirectedAction(t *testing.T) {
	p, err := New(modeltest.TwoFactorGoal(), DefaultConfig())
	require.NoError(t, err)
	require.Len(t, p.Policies(), 4)

	qs := model.Beliefs{{0.5, 0.5}, {0.5, 0.5}}
	d, err := p.Infer(context.Background(), qs, nil)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, sum(d.Posterior), 1e-12)
	for f, m := range d.Marginals {
		assert.InDelta(t, 1.0, sum(m), 1e-12, "factor %d", f)
	}
	// resetting factor 0 reaches the preferred outcome; factor 1 is a tie
	assert.Equal(t, []int{1, 0}, d.Action)
	assert.Equal(t, -1, d.PolicyIndex)
	assert.Greater(t, d.Posterior[2], d.Posterior[0])
	assert.Equal(t, d.Posterior[2], d.Posterior[3])
	assert.Nil(t, d.Terms)
}

func TestInfer_UniformModelGivesFlatPosterior(t *testing.T) {
	m := modeltest.UniformTwoFactor()
	p, err := New(m, DefaultConfig())
	require.NoError(t, err)

	d, err := p.Infer(context.Background(), m.UniformBeliefs(), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.25, 0.25, 0.25}, d.Posterior, 1e-12)
}

func TestInfer_PolicyLevelSelection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Selection.Level = policy.LevelPolicy
	p, err := New(modeltest.TwoFactorGoal(), cfg)
	require.NoError(t, err)

	d, err := p.Infer(context.Background(), model.Beliefs{{0.5, 0.5}, {0.5, 0.5}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, d.PolicyIndex)
	assert.Equal(t, []int{1, 0}, d.Action)
}

func TestInfer_StochasticIsReproducible(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Selection = policy.SelectionConfig{Mode: policy.Stochastic, Level: policy.LevelPolicy, Alpha: 1}
	cfg.PolicyLen = 2
	p, err := New(modeltest.TwoFactorGoal(), cfg)
	require.NoError(t, err)
	qs := model.Beliefs{{0.4, 0.6}, {0.5, 0.5}}

	run := func() []int {
		rng := rand.New(rand.NewPCG(1, 2))
		var picks []int
		for i := 0; i < 10; i++ {
			d, err := p.Infer(context.Background(), qs, rng)
			require.NoError(t, err)
			require.Len(t, d.PolicyProbs, len(p.Policies()))
			picks = append(picks, d.PolicyIndex)
		}
		return picks
	}
	assert.Equal(t, run(), run())
}

func TestInfer_FullVariantReportsTerms(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rollout.Variant = rollout.VariantFull
	p, err := New(modeltest.TwoFactorGoal(), cfg)
	require.NoError(t, err)

	d, err := p.Infer(context.Background(), model.Beliefs{{0.5, 0.5}, {0.5, 0.5}}, nil)
	require.NoError(t, err)
	require.Len(t, d.Terms, 4)
	for _, tr := range d.Terms {
		require.NotNil(t, tr)
	}
	assert.Equal(t, []int{1, 0}, d.Action)
}

func TestInfer_InductiveAdvancesTowardGoal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rollout = rollout.Config{
		UseInductive: true,
		Variant:      rollout.VariantInductive,
		Inductive:    inductive.Config{Threshold: 0.5, Depth: 3, Epsilon: 1e-3},
	}
	p, err := New(modeltest.Chain(), cfg)
	require.NoError(t, err)

	d, err := p.Infer(context.Background(), model.Beliefs{{1, 0, 0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, d.Action)
}

func TestInfer_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := New(modeltest.Chain(), DefaultConfig(), WithMetrics(metrics.New(reg)))
	require.NoError(t, err)

	_, err = p.Infer(context.Background(), model.Beliefs{{1, 0, 0}}, nil)
	require.NoError(t, err)
	_, err = p.Infer(context.Background(), model.Beliefs{{1, 0}}, nil)
	require.ErrorIs(t, err, model.ErrShapeMismatch)

	n, err := testutil.GatherAndCount(reg, "planner_decisions_total", "planner_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNextPrior(t *testing.T) {
	p, err := New(modeltest.Chain(), DefaultConfig())
	require.NoError(t, err)

	next, err := p.NextPrior(model.Beliefs{{1, 0, 0}}, []int{1})
	require.NoError(t, err)
	assert.Equal(t, model.Beliefs{{0, 1, 0}}, next)

	_, err = p.NextPrior(model.Beliefs{{1, 0, 0}}, []int{2})
	assert.ErrorIs(t, err, model.ErrActionRange)
}

func TestNew_Errors(t *testing.T) {
	m := modeltest.TwoFactorGoal()
	m.E = []float64{1}
	_, err := New(m, DefaultConfig())
	assert.ErrorIs(t, err, model.ErrShapeMismatch)

	_, err = New(modeltest.Chain(), DefaultConfig(), WithPolicies([]policy.Policy{{{3}}}))
	assert.ErrorIs(t, err, model.ErrActionRange)

	cfg := DefaultConfig()
	cfg.PolicyLen = 0
	_, err = New(modeltest.Chain(), cfg)
	assert.Error(t, err)
}

func TestNew_ExplicitPolicies(t *testing.T) {
	policies := []policy.Policy{{{0}, {1}}, {{1}, {1}}}
	p, err := New(modeltest.Chain(), DefaultConfig(), WithPolicies(policies))
	require.NoError(t, err)
	assert.Equal(t, policies, p.Policies())
	assert.Equal(t, []int{2}, p.NumControls())
}
