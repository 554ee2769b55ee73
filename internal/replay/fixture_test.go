package replay

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// #region fixture-tests

// runFixture loads a fixture, replays it, and compares each step's outcome
// and action against the expected values.
func runFixture(t *testing.T, name string) {
	t.Helper()
	f, err := LoadFixture(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	p, err := f.Planner()
	if err != nil {
		t.Fatalf("Planner: %v", err)
	}
	results := Replay(context.Background(), p, f.ToSteps(), f.Config.ToReplayConfig())

	if len(results) != len(f.ExpectedResults) {
		t.Fatalf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}

	for i, expected := range f.ExpectedResults {
		actual := results[i]
		if actual.StepID != expected.StepID {
			t.Errorf("step %d: expected step_id=%s, got %s", i, expected.StepID, actual.StepID)
		}
		if actual.Outcome != expected.Outcome {
			t.Errorf("step %d (%s): expected outcome=%s, got %s (reason: %s)",
				i, expected.StepID, expected.Outcome, actual.Outcome, actual.Reason)
			continue
		}
		if actual.Decision == nil {
			continue
		}
		if !slices.Equal(actual.Decision.Action, expected.Action) {
			t.Errorf("step %d (%s): expected action=%v, got %v",
				i, expected.StepID, expected.Action, actual.Decision.Action)
		}
	}
}

// TestFixture_GoalSession replays a two-factor session where the planner
// resets factor 0 to the preferred outcome and then idles.
func TestFixture_GoalSession(t *testing.T) {
	runFixture(t, "goal_session.json")
}

// TestFixture_ChainInductive replays the inductive chain until the goal level.
func TestFixture_ChainInductive(t *testing.T) {
	runFixture(t, "chain_inductive.json")
}

func TestFixtureConfig_Defaults(t *testing.T) {
	var fc FixtureConfig
	cfg := fc.ToPlannerConfig()
	if cfg.Gamma != 16 || cfg.PolicyLen != 1 {
		t.Fatalf("expected planner defaults, got gamma=%v policy_len=%d", cfg.Gamma, cfg.PolicyLen)
	}
	if !cfg.Rollout.UseUtility || !cfg.Rollout.UseStatesInfoGain {
		t.Fatal("expected utility and state info gain on by default")
	}

	rc := fc.ToReplayConfig()
	if rc.Seed != [2]uint64{1, 2} {
		t.Fatalf("expected default seed, got %v", rc.Seed)
	}
	if rc.EvalConfig.Tolerance != 1e-6 {
		t.Fatalf("expected default tolerance, got %v", rc.EvalConfig.Tolerance)
	}
}

func TestFixtureConfig_Overrides(t *testing.T) {
	off := false
	fc := FixtureConfig{
		Gamma:      4,
		Alpha:      2,
		Mode:       "stochastic",
		Level:      "policy",
		Variant:    "full",
		UseUtility: &off,
		Seed:       [2]uint64{7, 8},

		ControlFactors: []int{0},
		NumControls:    []int{2, 1},
	}
	cfg := fc.ToPlannerConfig()
	if cfg.Gamma != 4 || cfg.Selection.Alpha != 2 {
		t.Fatalf("unexpected precisions: %+v", cfg)
	}
	if cfg.Selection.Mode != "stochastic" || cfg.Selection.Level != "policy" || cfg.Rollout.Variant != "full" {
		t.Fatalf("unexpected modes: %+v", cfg)
	}
	if cfg.Rollout.UseUtility {
		t.Fatal("expected utility off")
	}
	if !slices.Equal(cfg.ControlFactors, []int{0}) || !slices.Equal(cfg.NumControls, []int{2, 1}) {
		t.Fatalf("policy set shape not carried: %v %v", cfg.ControlFactors, cfg.NumControls)
	}
	if rc := fc.ToReplayConfig(); rc.Seed != [2]uint64{7, 8} {
		t.Fatalf("expected seed override, got %v", rc.Seed)
	}
}

// TestLoadFixture_NotFound verifies error on missing file.
func TestLoadFixture_NotFound(t *testing.T) {
	_, err := LoadFixture("testdata/nonexistent.json")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

// TestLoadFixture_Malformed verifies error on invalid JSON.
func TestLoadFixture_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json}"), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	_, err := LoadFixture(path)
	if err == nil {
		t.Fatal("expected error for malformed JSON, got nil")
	}
}

// TestFixture_InvalidModel verifies the planner rejects a fixture whose
// model does not validate.
func TestFixture_InvalidModel(t *testing.T) {
	f := &Fixture{}
	if _, err := f.Planner(); err == nil {
		t.Fatal("expected error for empty model, got nil")
	}
}

// #endregion fixture-tests
