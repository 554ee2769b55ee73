package replay

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model/modeltest"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
)

// helper: planner over the two-factor goal model.
func goalPlanner(t *testing.T, cfg planner.Config) *planner.Planner {
	t.Helper()
	p, err := planner.New(modeltest.TwoFactorGoal(), cfg)
	if err != nil {
		t.Fatalf("planner.New: %v", err)
	}
	return p
}

func uniform() model.Beliefs {
	return model.Beliefs{{0.5, 0.5}, {0.5, 0.5}}
}

// 1. Commit path: valid beliefs → outcome=commit, beliefs advance.
func TestReplay_CommitPath(t *testing.T) {
	p := goalPlanner(t, planner.DefaultConfig())
	results := Replay(context.Background(), p, []Step{{StepID: "t0", Beliefs: uniform()}}, DefaultReplayConfig())

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Outcome != "commit" {
		t.Fatalf("expected outcome=commit, got %s (%s)", r.Outcome, r.Reason)
	}
	if r.EvalResult == nil || !r.EvalResult.Passed {
		t.Error("expected passing EvalResult")
	}
	if r.NextBeliefs[0][0] != 1 || r.NextBeliefs[0][1] != 0 {
		t.Errorf("expected factor 0 reset to level 0, got %v", r.NextBeliefs[0])
	}
}

// 2. Eval rejection: impossible tolerance → outcome=eval_reject, beliefs kept.
func TestReplay_EvalReject(t *testing.T) {
	p := goalPlanner(t, planner.DefaultConfig())
	config := DefaultReplayConfig()
	config.EvalConfig.Tolerance = -1

	steps := []Step{{StepID: "t0", Beliefs: uniform()}, {StepID: "t1"}}
	results := Replay(context.Background(), p, steps, config)

	for _, r := range results {
		if r.Outcome != "eval_reject" {
			t.Fatalf("%s: expected eval_reject, got %s", r.StepID, r.Outcome)
		}
		if r.Decision == nil || r.EvalResult == nil {
			t.Fatalf("%s: expected decision and eval result", r.StepID)
		}
	}
	if results[1].Beliefs[0][0] != 0.5 {
		t.Errorf("expected rejected step to keep beliefs, got %v", results[1].Beliefs)
	}
}

// 3. Errors: missing beliefs on the first step and mis-shaped beliefs.
func TestReplay_Errors(t *testing.T) {
	p := goalPlanner(t, planner.DefaultConfig())
	steps := []Step{
		{StepID: "t0"},
		{StepID: "t1", Beliefs: model.Beliefs{{1, 0, 0}, {0.5, 0.5}}},
		{StepID: "t2", Beliefs: uniform()},
	}
	results := Replay(context.Background(), p, steps, DefaultReplayConfig())

	if results[0].Outcome != "error" || results[1].Outcome != "error" {
		t.Fatalf("expected two errors, got %s and %s", results[0].Outcome, results[1].Outcome)
	}
	if results[1].Decision != nil {
		t.Error("expected nil decision on planner error")
	}
	if results[2].Outcome != "commit" {
		t.Errorf("expected replay to continue after errors, got %s", results[2].Outcome)
	}
}

// 4. Multi-step: omitted beliefs carry the committed prior forward.
func TestReplay_MultiStep(t *testing.T) {
	p := goalPlanner(t, planner.DefaultConfig())
	steps := []Step{{StepID: "t0", Beliefs: uniform()}, {StepID: "t1"}}
	results := Replay(context.Background(), p, steps, DefaultReplayConfig())

	if got := results[1].Beliefs; got[0][0] != 1 {
		t.Fatalf("expected t1 to start from the t0 prior, got %v", got)
	}
	if !slices.Equal(results[0].Decision.Action, []int{1, 0}) {
		t.Errorf("t0: expected [1 0], got %v", results[0].Decision.Action)
	}
	if !slices.Equal(results[1].Decision.Action, []int{0, 0}) {
		t.Errorf("t1: expected [0 0], got %v", results[1].Decision.Action)
	}
}

// 5. Summarize: counts match result outcomes.
func TestReplay_Summarize(t *testing.T) {
	p := goalPlanner(t, planner.DefaultConfig())
	steps := []Step{
		{StepID: "t0", Beliefs: uniform()},
		{StepID: "t1"},
		{StepID: "t2", Beliefs: model.Beliefs{{1}, {1}}},
	}
	results := Replay(context.Background(), p, steps, DefaultReplayConfig())
	summary := Summarize(results)

	if summary.TotalSteps != 3 || summary.Commits != 2 || summary.Errors != 1 || summary.EvalRejects != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.ActionCounts[fmt.Sprint([]int{1, 0})] != 1 || summary.ActionCounts[fmt.Sprint([]int{0, 0})] != 1 {
		t.Errorf("unexpected action counts: %v", summary.ActionCounts)
	}
	if summary.FinalBeliefs[0][0] != 1 {
		t.Errorf("expected final beliefs from the last step, got %v", summary.FinalBeliefs)
	}

	if empty := Summarize(nil); empty.TotalSteps != 0 || empty.FinalBeliefs != nil {
		t.Errorf("unexpected empty summary: %+v", empty)
	}
}

// 6. Deterministic: the same seed replays the same stochastic choices.
func TestReplay_Deterministic(t *testing.T) {
	cfg := planner.DefaultConfig()
	cfg.Selection.Mode = policy.Stochastic
	cfg.Selection.Alpha = 1
	p := goalPlanner(t, cfg)

	steps := make([]Step, 8)
	for i := range steps {
		steps[i] = Step{StepID: fmt.Sprintf("t%d", i), Beliefs: uniform()}
	}
	a := Replay(context.Background(), p, steps, DefaultReplayConfig())
	b := Replay(context.Background(), p, steps, DefaultReplayConfig())

	for i := range a {
		if !slices.Equal(a[i].Decision.Action, b[i].Decision.Action) {
			t.Fatalf("step %d: %v != %v", i, a[i].Decision.Action, b[i].Decision.Action)
		}
	}
}

// 7. Cancelled context surfaces as an error outcome.
func TestReplay_Cancelled(t *testing.T) {
	p := goalPlanner(t, planner.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := Replay(ctx, p, []Step{{StepID: "t0", Beliefs: uniform()}}, DefaultReplayConfig())
	if results[0].Outcome != "error" {
		t.Fatalf("expected error outcome, got %s", results[0].Outcome)
	}
}
