package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/replay"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/state"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to planner.db (DB mode)")
	modelPath := flag.String("model", "", "path to the model file (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	dbMode := *dbPath != "" && *modelPath != ""
	if dbMode == (*fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/planner.db --model path/to/model.yaml")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *modelPath)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-extract

// expectation is the recorded outcome of one step.
type expectation struct {
	Outcome string
	Action  []int
}

// loadDecisions reads the logged infer decisions in order.
func loadDecisions(db *sql.DB) ([]string, []logging.DecisionRecord, error) {
	rows, err := db.Query(
		`SELECT version_id, decision_json FROM provenance_log
		 WHERE trigger_type = 'infer' AND decision_json IS NOT NULL ORDER BY id ASC`,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query provenance: %w", err)
	}
	defer rows.Close()

	var ids []string
	var recs []logging.DecisionRecord
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		var rec logging.DecisionRecord
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, nil, fmt.Errorf("decode decision %s: %w", id, err)
		}
		ids = append(ids, id)
		recs = append(recs, rec)
	}
	return ids, recs, rows.Err()
}

func runDBMode(dbPath, modelPath string) int {
	m, err := model.Load(modelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load model: %v\n", err)
		return 2
	}

	store, err := state.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()

	ids, recs, err := loadDecisions(store.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if len(recs) == 0 {
		fmt.Fprintln(os.Stderr, "no infer entries found in provenance_log")
		return 2
	}

	runs, err := replay.SplitRecorded(ids, recs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	results, err := replay.ReplayRecorded(context.Background(), m, runs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	expected := make([]expectation, len(recs))
	for i, rec := range recs {
		expected[i] = expectation{Outcome: "commit", Action: rec.Action}
		if !rec.EvalPassed {
			expected[i].Outcome = "reject"
		}
	}
	return printComparison(results, expected)
}

// #endregion db-extract

// #region output

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	p, err := f.Planner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	results := replay.Replay(context.Background(), p, f.ToSteps(), f.Config.ToReplayConfig())

	expected := make([]expectation, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = expectation{Outcome: e.Outcome, Action: e.Action}
	}
	return printComparison(results, expected)
}

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.ReplayResult, expected []expectation) int {
	fmt.Printf("%-12s| %-22s| %-22s| %s\n", "Step", "Expected", "Replayed", "Match")
	fmt.Printf("%-12s+%-23s+%-23s+%s\n",
		"------------", "-----------------------", "-----------------------", "------")

	matches := 0
	total := min(len(results), len(expected))

	for i := 0; i < total; i++ {
		r := results[i]
		exp := expected[i]
		got := expectation{Outcome: r.Outcome}
		if r.Decision != nil {
			got.Action = r.Decision.Action
		}

		match := "DIFF"
		if outcomesMatch(exp, got) {
			match = "OK"
			matches++
		}
		fmt.Printf("%-12s| %-22s| %-22s| %s\n", shortID(r.StepID), exp, got, match)
	}

	summary := replay.Summarize(results)
	diverge := total - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge (%d commits, %d eval rejects, %d errors)\n",
		total, matches, diverge, summary.Commits, summary.EvalRejects, summary.Errors)

	if diverge > 0 || len(results) != len(expected) {
		return 1
	}
	return 0
}

func (e expectation) String() string {
	return fmt.Sprintf("%s %v", e.Outcome, e.Action)
}

// outcomesMatch compares expected vs replayed steps. A recorded "reject"
// matches an eval_reject; actions are compared whenever a decision exists.
func outcomesMatch(expected, replayed expectation) bool {
	outcome := expected.Outcome == replayed.Outcome ||
		(expected.Outcome == "reject" && replayed.Outcome == "eval_reject")
	if !outcome {
		return false
	}
	if replayed.Outcome == "error" {
		return true
	}
	return slices.Equal(expected.Action, replayed.Action)
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10]
	}
	return id
}

// #endregion output
