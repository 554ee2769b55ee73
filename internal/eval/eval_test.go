package eval

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model/modeltest"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
)

func makeDecision() *planner.Decision {
	return &planner.Decision{
		Posterior:   []float64{0.1, 0.2, 0.3, 0.4},
		NegEFE:      []float64{0.1, 0.2, 0.3, 0.4},
		Marginals:   [][]float64{{0.3, 0.7}, {0.4, 0.6}},
		Action:      []int{1, 1},
		PolicyIndex: -1,
	}
}

func findMetric(t *testing.T, r EvalResult, name string) EvalMetric {
	t.Helper()
	for _, m := range r.Metrics {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("metric %s not reported", name)
	return EvalMetric{}
}

func TestEvalPassesOnValidDecision(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run(makeDecision())

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if result.Reason != "all checks passed" {
		t.Fatalf("unexpected reason %q", result.Reason)
	}
}

func TestEvalPassesOnPlannerOutput(t *testing.T) {
	p, err := planner.New(modeltest.TwoFactorGoal(), planner.DefaultConfig())
	if err != nil {
		t.Fatalf("planner.New: %v", err)
	}
	d, err := p.Infer(context.Background(), model.Beliefs{{0.5, 0.5}, {0.5, 0.5}}, nil)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	result := NewEvalHarness(DefaultEvalConfig()).Run(d)
	if !result.Passed {
		t.Fatalf("expected planner output to pass: %s", result.Reason)
	}
}

func TestEvalFailsOnUnnormalizedPosterior(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := makeDecision()
	d.Posterior[0] = 0.5

	result := h.Run(d)
	if result.Passed {
		t.Fatal("expected fail on unnormalized posterior")
	}
	if m := findMetric(t, result, "posterior_sum"); m.Pass {
		t.Fatal("expected posterior_sum metric to fail")
	}
}

func TestEvalFailsOnMarginal(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := makeDecision()
	d.Marginals[1] = []float64{0.4, 0.4}

	result := h.Run(d)
	if result.Passed {
		t.Fatal("expected fail on marginal sum")
	}
	if m := findMetric(t, result, "marginal_1_sum"); m.Pass {
		t.Fatal("expected marginal_1_sum metric to fail")
	}
	if m := findMetric(t, result, "marginal_0_sum"); !m.Pass {
		t.Fatal("expected marginal_0_sum metric to pass")
	}
}

func TestEvalNaNFailsInfDoesNot(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())

	d := makeDecision()
	d.NegEFE[2] = math.Inf(-1)
	if result := h.Run(d); !result.Passed {
		t.Fatalf("expected -Inf neg EFE to pass: %s", result.Reason)
	}

	d.NegEFE[2] = math.NaN()
	if result := h.Run(d); result.Passed {
		t.Fatal("expected NaN neg EFE to fail")
	}
}

func TestEvalFailsOnActionOutOfRange(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := makeDecision()
	d.Action = []int{2, 0}

	result := h.Run(d)
	if result.Passed {
		t.Fatal("expected fail on action out of range")
	}
	if m := findMetric(t, result, "action_in_range"); m.Value != 0 {
		t.Fatalf("expected action_in_range 0, got %f", m.Value)
	}
}

func TestEvalEntropyIsInformational(t *testing.T) {
	config := DefaultEvalConfig()
	config.EntropyBaseline = 0.01
	h := NewEvalHarness(config)

	result := h.Run(makeDecision())
	if !result.Passed {
		t.Fatalf("entropy must not fail the eval: %s", result.Reason)
	}
	if m := findMetric(t, result, "posterior_entropy"); m.Pass {
		t.Fatal("expected posterior_entropy to be flagged")
	}
}

func TestEvalMultipleFailureReason(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	d := makeDecision()
	d.Posterior[0] = -0.1
	d.Marginals[0] = []float64{0, 0}

	result := h.Run(d)
	if result.Passed {
		t.Fatal("expected fail")
	}
	if !strings.Contains(result.Reason, "checks") {
		t.Fatalf("expected multi-failure reason, got %q", result.Reason)
	}
}
