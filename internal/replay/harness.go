package replay

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
)

// #region types
// Step is a single recorded planning step. Nil Beliefs means the prior
// predicted from the previous committed step.
type Step struct {
	StepID  string
	Beliefs model.Beliefs
}

// ReplayConfig bundles eval thresholds and the sampling seed for a replay run.
type ReplayConfig struct {
	EvalConfig eval.EvalConfig
	Seed       [2]uint64
}

// DefaultReplayConfig returns default eval thresholds and a fixed seed.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		EvalConfig: eval.DefaultEvalConfig(),
		Seed:       [2]uint64{1, 2},
	}
}

// ReplayResult captures the outcome of replaying one step through the planner.
type ReplayResult struct {
	StepID  string
	Outcome string // "commit" | "eval_reject" | "error"
	Reason  string

	// Beliefs the planner saw at this step
	Beliefs model.Beliefs

	// Nil if the planner returned an error
	Decision   *planner.Decision
	EvalResult *eval.EvalResult

	// Beliefs carried to the next step (equal to Beliefs unless committed)
	NextBeliefs model.Beliefs
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalSteps   int
	Commits      int
	EvalRejects  int
	Errors       int
	ActionCounts map[string]int
	FinalBeliefs model.Beliefs
}

// #endregion types

// #region replay
// Replay runs each step through infer, eval and prior prediction. A step
// without beliefs starts from the prior of the last committed action.
// Operates entirely in-memory.
func Replay(ctx context.Context, p *planner.Planner, steps []Step, config ReplayConfig) []ReplayResult {
	results := make([]ReplayResult, 0, len(steps))
	rng := rand.New(rand.NewPCG(config.Seed[0], config.Seed[1]))
	evalInst := eval.NewEvalHarness(config.EvalConfig)

	var current model.Beliefs
	for _, s := range steps {
		qs := s.Beliefs
		if qs == nil {
			qs = current
		}
		if qs == nil {
			results = append(results, ReplayResult{
				StepID:  s.StepID,
				Outcome: "error",
				Reason:  "no beliefs and no previous step",
			})
			continue
		}

		// 1. Infer
		d, err := p.Infer(ctx, qs, rng)
		if err != nil {
			results = append(results, ReplayResult{
				StepID:      s.StepID,
				Outcome:     "error",
				Reason:      err.Error(),
				Beliefs:     qs,
				NextBeliefs: qs,
			})
			current = qs
			continue
		}

		// 2. Eval
		evalResult := evalInst.Run(d)
		if !evalResult.Passed {
			results = append(results, ReplayResult{
				StepID:      s.StepID,
				Outcome:     "eval_reject",
				Reason:      evalResult.Reason,
				Beliefs:     qs,
				Decision:    d,
				EvalResult:  &evalResult,
				NextBeliefs: qs,
			})
			current = qs
			continue
		}

		// 3. Commit: advance beliefs through the selected action
		next, err := p.NextPrior(qs, d.Action)
		if err != nil {
			results = append(results, ReplayResult{
				StepID:      s.StepID,
				Outcome:     "error",
				Reason:      fmt.Sprintf("next prior: %v", err),
				Beliefs:     qs,
				Decision:    d,
				EvalResult:  &evalResult,
				NextBeliefs: qs,
			})
			current = qs
			continue
		}
		current = next
		results = append(results, ReplayResult{
			StepID:      s.StepID,
			Outcome:     "commit",
			Reason:      evalResult.Reason,
			Beliefs:     qs,
			Decision:    d,
			EvalResult:  &evalResult,
			NextBeliefs: next,
		})
	}

	return results
}

// #endregion replay

// #region summarize
// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{
		TotalSteps:   len(results),
		ActionCounts: make(map[string]int),
	}
	for _, r := range results {
		switch r.Outcome {
		case "commit":
			s.Commits++
		case "eval_reject":
			s.EvalRejects++
		case "error":
			s.Errors++
		}
		if r.Decision != nil {
			s.ActionCounts[fmt.Sprint(r.Decision.Action)]++
		}
	}
	if n := len(results); n > 0 {
		s.FinalBeliefs = results[n-1].NextBeliefs
	}
	return s
}

// #endregion summarize
