package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/replay"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to planner.db")
	modelPath := flag.String("model", "", "path to the model file used for the recorded decisions")
	last := flag.Int("last", 4, "number of most recent infer rows to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *modelPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --model path/to/model.yaml --out path/to/fixture.json [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *modelPath, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

// decisionRow holds a parsed provenance row with its DecisionRecord.
type decisionRow struct {
	VersionID string
	Record    logging.DecisionRecord
}

func run(dbPath, modelPath string, last int, outPath string) error {
	m, err := model.Load(modelPath)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	// Query last N infer rows (DESC then reverse for chronological order)
	rows, err := store.DB().Query(
		`SELECT version_id, decision_json FROM (
			SELECT id, version_id, decision_json FROM provenance_log
			WHERE trigger_type = 'infer' AND decision_json IS NOT NULL
			ORDER BY id DESC LIMIT ?
		) sub ORDER BY id ASC`, last,
	)
	if err != nil {
		return fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var decisions []decisionRow
	for rows.Next() {
		var d decisionRow
		var body string
		if err := rows.Scan(&d.VersionID, &body); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(body), &d.Record); err != nil {
			continue // not DecisionRecord format
		}
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}

	if len(decisions) == 0 {
		return fmt.Errorf("no decision rows found in last %d infer entries", last)
	}

	// Stochastic choices only reproduce from the first draw of the generator
	if first := decisions[0].Record.Settings; first.Mode == "stochastic" && first.SeedStep > 0 {
		fmt.Fprintf(os.Stderr, "warning: export starts at decision %d of its generator; stochastic actions will not replay\n", first.SeedStep)
	}

	f := buildFixture(*m, decisions)
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	fmt.Printf("Exported %d steps to %s\n", len(decisions), outPath)
	return nil
}

// #endregion extract

// #region build

func buildFixture(m model.Model, decisions []decisionRow) replay.Fixture {
	f := replay.Fixture{
		Description: fmt.Sprintf("Exported %d recorded decisions", len(decisions)),
		Model:       m,
		Config:      fixtureConfig(decisions[0].Record.Settings),
	}
	for _, d := range decisions {
		f.Steps = append(f.Steps, replay.FixtureStep{
			StepID:  d.VersionID,
			Beliefs: d.Record.Beliefs,
		})
		outcome := "commit"
		if !d.Record.EvalPassed {
			outcome = "eval_reject"
		}
		f.ExpectedResults = append(f.ExpectedResults, replay.FixtureExpectedResult{
			StepID:  d.VersionID,
			Outcome: outcome,
			Action:  d.Record.Action,
		})
	}
	return f
}

func fixtureConfig(s logging.DecisionSettings) replay.FixtureConfig {
	useUtility := s.UseUtility
	useIG := s.UseStatesInfoGain
	fc := replay.FixtureConfig{
		Gamma:             s.Gamma,
		Alpha:             s.Alpha,
		PolicyLen:         s.PolicyLen,
		Variant:           s.Variant,
		Mode:              s.Mode,
		Level:             s.Level,
		UseUtility:        &useUtility,
		UseStatesInfoGain: &useIG,
		UseParamInfoGain:  s.UseParamInfoGain,
		UseInductive:      s.UseInductive,
		ControlFactors:    s.ControlFactors,
		NumControls:       s.NumControls,
	}
	if seed, ok := s.SeedPair(); ok {
		fc.Seed = seed
	}
	if s.UseInductive {
		fc.Inductive = &replay.FixtureInductiveConf{
			Threshold: s.InductiveThreshold,
			Depth:     s.InductiveDepth,
			Epsilon:   s.InductiveEpsilon,
		}
	}
	return fc
}

// #endregion build
