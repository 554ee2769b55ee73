package replay

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
)

// #region recorded-runs

// RecordedRun is a stretch of recorded decisions made by one planner
// configuration drawing from one selection generator.
type RecordedRun struct {
	Config planner.Config
	Replay ReplayConfig
	Steps  []Step
}

// SplitRecorded groups logged decisions into runs. A new run starts at the
// first record, where the recorded seed changes, and where a seeded record
// is its generator's first decision.
func SplitRecorded(ids []string, recs []logging.DecisionRecord) ([]RecordedRun, error) {
	if len(ids) != len(recs) {
		return nil, fmt.Errorf("%d step ids for %d records", len(ids), len(recs))
	}
	var runs []RecordedRun
	for i, rec := range recs {
		if i == 0 || startsRun(recs[i-1].Settings, rec.Settings) {
			rc := DefaultReplayConfig()
			if seed, ok := rec.Settings.SeedPair(); ok {
				rc.Seed = seed
			}
			runs = append(runs, RecordedRun{Config: rec.Settings.ToPlannerConfig(), Replay: rc})
		}
		run := &runs[len(runs)-1]
		run.Steps = append(run.Steps, Step{StepID: ids[i], Beliefs: model.Beliefs(rec.Beliefs).Clone()})
	}
	return runs, nil
}

func startsRun(prev, cur logging.DecisionSettings) bool {
	prevSeed, prevOK := prev.SeedPair()
	curSeed, curOK := cur.SeedPair()
	switch {
	case !curOK:
		return prevOK
	case !prevOK:
		return true
	default:
		return cur.SeedStep == 0 || curSeed != prevSeed
	}
}

// ReplayRecorded replays every run against m with a fresh planner and
// generator per run, concatenating the results in record order.
func ReplayRecorded(ctx context.Context, m *model.Model, runs []RecordedRun, opts ...planner.Option) ([]ReplayResult, error) {
	var results []ReplayResult
	for i, run := range runs {
		p, err := planner.New(m, run.Config, opts...)
		if err != nil {
			return nil, fmt.Errorf("run %d: build planner: %w", i, err)
		}
		results = append(results, Replay(ctx, p, run.Steps, run.Replay)...)
	}
	return results, nil
}

// #endregion recorded-runs
