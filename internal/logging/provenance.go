package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/inductive"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/planner"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/policy"
	"github.com/danielpatrickdp/adaptive-state/planner/internal/rollout"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry ProvenanceEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (version_id, model_hash, trigger_type, decision_json, action, outcome, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.VersionID,
		nullIfEmpty(entry.ModelHash),
		entry.TriggerType,
		nullIfEmpty(entry.DecisionJSON),
		nullIfEmpty(entry.Action),
		entry.Outcome,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region decision-record
// NewDecisionRecord flattens a planner decision and the settings that
// produced it.
func NewDecisionRecord(timestep int, qs model.Beliefs, d *planner.Decision, cfg planner.Config) DecisionRecord {
	return DecisionRecord{
		Timestep:    timestep,
		Beliefs:     qs,
		NegEFE:      Scores(d.NegEFE),
		Posterior:   Scores(d.Posterior),
		Marginals:   toScores(d.Marginals),
		Action:      d.Action,
		PolicyIndex: d.PolicyIndex,
		Settings:    NewDecisionSettings(cfg),
	}
}

// NewDecisionSettings records the parts of cfg that change a decision.
func NewDecisionSettings(cfg planner.Config) DecisionSettings {
	r := cfg.Rollout
	s := DecisionSettings{
		Gamma:             cfg.Gamma,
		Alpha:             cfg.Selection.Alpha,
		PolicyLen:         cfg.PolicyLen,
		Variant:           string(r.Variant),
		Mode:              string(cfg.Selection.Mode),
		Level:             string(cfg.Selection.Level),
		UseUtility:        r.UseUtility,
		UseStatesInfoGain: r.UseStatesInfoGain,
		UseParamInfoGain:  r.UseParamInfoGain,
		UseInductive:      r.UseInductive,
		ControlFactors:    slices.Clone(cfg.ControlFactors),
		NumControls:       slices.Clone(cfg.NumControls),
	}
	if r.UseInductive {
		s.InductiveThreshold = r.Inductive.Threshold
		s.InductiveDepth = r.Inductive.Depth
		s.InductiveEpsilon = r.Inductive.Epsilon
	}
	return s
}

// ToPlannerConfig rebuilds a planner configuration from recorded settings.
// Unrecorded fields keep their defaults.
func (s DecisionSettings) ToPlannerConfig() planner.Config {
	cfg := planner.DefaultConfig()
	cfg.Gamma = s.Gamma
	cfg.Selection.Alpha = s.Alpha
	cfg.Selection.Mode = policy.Mode(s.Mode)
	cfg.Selection.Level = policy.Level(s.Level)
	if s.PolicyLen > 0 {
		cfg.PolicyLen = s.PolicyLen
	}
	if s.Variant != "" {
		cfg.Rollout.Variant = rollout.Variant(s.Variant)
	}
	cfg.Rollout.UseUtility = s.UseUtility
	cfg.Rollout.UseStatesInfoGain = s.UseStatesInfoGain
	cfg.Rollout.UseParamInfoGain = s.UseParamInfoGain
	cfg.Rollout.UseInductive = s.UseInductive
	if s.UseInductive {
		cfg.Rollout.Inductive = inductive.Config{
			Threshold: s.InductiveThreshold,
			Depth:     s.InductiveDepth,
			Epsilon:   s.InductiveEpsilon,
		}
	}
	cfg.ControlFactors = slices.Clone(s.ControlFactors)
	cfg.NumControls = slices.Clone(s.NumControls)
	return cfg
}

// WithSeed records the generator seed and the number of decisions it made
// before this one.
func (s DecisionSettings) WithSeed(seed [2]uint64, step int) DecisionSettings {
	s.Seed = []uint64{seed[0], seed[1]}
	s.SeedStep = step
	return s
}

// SeedPair returns the recorded generator seed, or ok=false when none was
// recorded.
func (s DecisionSettings) SeedPair() (seed [2]uint64, ok bool) {
	if len(s.Seed) != 2 {
		return seed, false
	}
	return [2]uint64{s.Seed[0], s.Seed[1]}, true
}

// Entry builds the provenance row for rec against versionID.
func (rec DecisionRecord) Entry(versionID, modelHash, trigger string) (ProvenanceEntry, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return ProvenanceEntry{}, fmt.Errorf("marshal decision record: %w", err)
	}
	action, err := json.Marshal(rec.Action)
	if err != nil {
		return ProvenanceEntry{}, fmt.Errorf("marshal action: %w", err)
	}
	outcome := "commit"
	if !rec.EvalPassed {
		outcome = "reject"
	}
	return ProvenanceEntry{
		VersionID:    versionID,
		ModelHash:    modelHash,
		TriggerType:  trigger,
		DecisionJSON: string(body),
		Action:       string(action),
		Outcome:      outcome,
		Reason:       rec.EvalReason,
	}, nil
}

// #endregion decision-record

// #region helpers
func toScores(rows [][]float64) []Scores {
	out := make([]Scores, len(rows))
	for i, r := range rows {
		out[i] = Scores(r)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (s Scores) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	vals := make([]any, len(s))
	for i, x := range s {
		switch {
		case math.IsNaN(x):
			vals[i] = "NaN"
		case math.IsInf(x, 1):
			vals[i] = "+Inf"
		case math.IsInf(x, -1):
			vals[i] = "-Inf"
		default:
			vals[i] = x
		}
	}
	return json.Marshal(vals)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scores) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = nil
		return nil
	}
	out := make(Scores, len(raw))
	for i, r := range raw {
		var name string
		if err := json.Unmarshal(r, &name); err == nil {
			f, err := strconv.ParseFloat(name, 64)
			if err != nil {
				return fmt.Errorf("score %d: %w", i, err)
			}
			out[i] = f
			continue
		}
		if err := json.Unmarshal(r, &out[i]); err != nil {
			return fmt.Errorf("score %d: %w", i, err)
		}
	}
	*s = out
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
