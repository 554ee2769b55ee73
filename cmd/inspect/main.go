package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/state"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/tensor"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to planner.db")
	last := flag.Int("last", 20, "show N most recent versions")
	version := flag.String("version", "", "show single version detail")
	factor := flag.Int("factor", -1, "restrict belief output to one factor")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/planner.db [--last N] [--version id] [--factor f] [--json]")
		os.Exit(2)
	}

	store, err := state.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if *version != "" {
		err = runDetailMode(store, *version, *factor, *jsonOut)
	} else {
		err = runListMode(store, *last, *factor, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	VersionID string    `json:"version_id"`
	Timestep  int       `json:"timestep"`
	Entropy   []float64 `json:"entropy"`
	Mode      []int     `json:"mode"`
	Outcome   string    `json:"outcome"`
	Action    string    `json:"action,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt string    `json:"created_at"`
}

func runListMode(store *state.Store, last, factor int, jsonOut bool) error {
	versions, err := store.ListVersionsWithProvenance(last)
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	// store returns DESC, reverse for chronological
	rows := make([]listRow, len(versions))
	for i, vp := range versions {
		qs := selectFactor(vp.Beliefs, factor)
		rows[len(versions)-1-i] = listRow{
			VersionID: vp.VersionID,
			Timestep:  vp.Timestep,
			Entropy:   entropies(qs),
			Mode:      modes(qs),
			Outcome:   outcomeLabel(vp.Outcome, vp.ParentID),
			Action:    vp.Action,
			Reason:    vp.Reason,
			CreatedAt: vp.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(rows)
	}
	return printListTable(rows)
}

func printListTable(rows []listRow) error {
	fmt.Printf("%-10s  %4s  %-20s  %-10s  %-8s  %-10s  %s\n",
		"Version", "Step", "Entropy", "Mode", "Outcome", "Action", "Time")
	fmt.Printf("%-10s+-%4s+-%-20s+-%-10s+-%-8s+-%-10s+-%s\n",
		"----------", "----", "--------------------", "----------", "--------", "----------", "--------------------")

	for _, r := range rows {
		action := r.Action
		if action == "" {
			action = "-"
		}
		fmt.Printf("%-10s  %4d  %-20s  %-10s  %-8s  %-10s  %s\n",
			shortID(r.VersionID), r.Timestep, formatFloats(r.Entropy), fmt.Sprint(r.Mode), r.Outcome, action, r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	VersionID string                  `json:"version_id"`
	ParentID  string                  `json:"parent_id"`
	Timestep  int                     `json:"timestep"`
	CreatedAt string                  `json:"created_at"`
	Beliefs   [][]float64             `json:"beliefs"`
	Entropy   []float64               `json:"entropy"`
	Outcome   string                  `json:"outcome"`
	Reason    string                  `json:"reason"`
	Decision  *logging.DecisionRecord `json:"decision,omitempty"`
}

func runDetailMode(store *state.Store, versionID string, factor int, jsonOut bool) error {
	vp, err := store.GetVersionWithProvenance(versionID)
	if err != nil {
		return err
	}

	qs := selectFactor(vp.Beliefs, factor)
	out := detailOutput{
		VersionID: vp.VersionID,
		ParentID:  vp.ParentID,
		Timestep:  vp.Timestep,
		CreatedAt: vp.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Beliefs:   qs,
		Entropy:   entropies(qs),
		Outcome:   outcomeLabel(vp.Outcome, vp.ParentID),
		Reason:    vp.Reason,
		Decision:  parseDecision(vp.DecisionJSON),
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Version:    %s\n", out.VersionID)
	fmt.Printf("Parent:     %s\n", out.ParentID)
	fmt.Printf("Timestep:   %d\n", out.Timestep)
	fmt.Printf("Created:    %s\n", out.CreatedAt)
	fmt.Printf("Outcome:    %s\n", out.Outcome)
	fmt.Printf("Reason:     %s\n", out.Reason)

	fmt.Printf("\nBeliefs:\n")
	for f, q := range out.Beliefs {
		fmt.Printf("  factor %-3d H=%.4f  %s\n", f, out.Entropy[f], formatFloats(q))
	}

	if d := out.Decision; d != nil {
		fmt.Printf("\nDecision:\n")
		fmt.Printf("  Action:       %v\n", d.Action)
		fmt.Printf("  Policy index: %d\n", d.PolicyIndex)
		fmt.Printf("  Variant:      %s (gamma %.2f, %s/%s)\n", d.Settings.Variant, d.Settings.Gamma, d.Settings.Mode, d.Settings.Level)
		fmt.Printf("  Policies:     %d, max posterior %.4f\n", len(d.Posterior), maxOrZero(d.Posterior))
		for f, m := range d.Marginals {
			fmt.Printf("  marginal %-3d %s\n", f, formatFloats(m))
		}
		fmt.Printf("  Eval passed:  %v\n", d.EvalPassed)
	}

	return nil
}

// #endregion detail-mode

// #region metrics

func selectFactor(qs model.Beliefs, factor int) model.Beliefs {
	if factor < 0 || factor >= len(qs) {
		return qs
	}
	return model.Beliefs{qs[factor]}
}

func entropies(qs model.Beliefs) []float64 {
	out := make([]float64, len(qs))
	for f, q := range qs {
		out[f] = tensor.Entropy(q)
	}
	return out
}

func modes(qs model.Beliefs) []int {
	out := make([]int, len(qs))
	for f, q := range qs {
		out[f] = floats.MaxIdx(q)
	}
	return out
}

func maxOrZero(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Max(xs)
}

// outcomeLabel names the row for versions without provenance.
func outcomeLabel(outcome, parentID string) string {
	switch {
	case outcome != "":
		return outcome
	case parentID == "":
		return "root"
	default:
		return "-"
	}
}

// #endregion metrics

// #region output

func parseDecision(decisionJSON string) *logging.DecisionRecord {
	if decisionJSON == "" {
		return nil
	}
	var rec logging.DecisionRecord
	if err := json.Unmarshal([]byte(decisionJSON), &rec); err != nil {
		return nil
	}
	return &rec
}

func formatFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%.3f", x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
