package logging

import "time"

// #region provenance-entry
// ProvenanceEntry is a single row in the provenance_log table.
type ProvenanceEntry struct {
	VersionID    string
	ModelHash    string
	TriggerType  string // "infer" | "replay" | "rpc"
	DecisionJSON string
	Action       string // JSON action tuple
	Outcome      string // "commit" | "reject"
	Reason       string
	CreatedAt    time.Time
}

// #endregion provenance-entry

// #region decision-record
// DecisionRecord captures one planning step completely enough to replay it.
// Serialized as JSON into provenance_log.decision_json.
type DecisionRecord struct {
	Timestep int         `json:"timestep"`
	Beliefs  [][]float64 `json:"beliefs"`

	// Planner output
	NegEFE      Scores   `json:"neg_efe"`
	Posterior   Scores   `json:"posterior"`
	Marginals   []Scores `json:"marginals"`
	Action      []int    `json:"action"`
	PolicyIndex int      `json:"policy_index"`

	// Settings active at decision time
	Settings DecisionSettings `json:"settings"`

	// Post-decision checks
	EvalPassed bool   `json:"eval_passed"`
	EvalReason string `json:"eval_reason,omitempty"`
}

// DecisionSettings captures the planner configuration of a decision.
type DecisionSettings struct {
	Gamma     float64 `json:"gamma"`
	Alpha     float64 `json:"alpha"`
	PolicyLen int     `json:"policy_len"`
	Variant   string  `json:"variant"`
	Mode      string  `json:"mode"`
	Level     string  `json:"level"`

	UseUtility        bool `json:"use_utility"`
	UseStatesInfoGain bool `json:"use_states_info_gain"`
	UseParamInfoGain  bool `json:"use_param_info_gain"`
	UseInductive      bool `json:"use_inductive"`

	InductiveThreshold float64 `json:"inductive_threshold,omitempty"`
	InductiveDepth     int     `json:"inductive_depth,omitempty"`
	InductiveEpsilon   float64 `json:"inductive_epsilon,omitempty"`

	// Policy set shape; nil keeps the model-derived defaults
	ControlFactors []int `json:"control_factors,omitempty"`
	NumControls    []int `json:"num_controls,omitempty"`

	// Seed of the selection generator and how many decisions it had made
	// before this one. Empty when the caller did not record a generator.
	Seed     []uint64 `json:"seed,omitempty"`
	SeedStep int      `json:"seed_step"`
}

// Scores is a float vector whose JSON form writes non-finite entries as the
// strings "NaN", "+Inf" and "-Inf".
type Scores []float64

// #endregion decision-record

// #region logger-config
// Config selects the slog handler built by NewLogger.
type Config struct {
	Level   string // debug | info | warn | error, default info
	JSON    bool
	Service string // added to every record when set
}

// #endregion logger-config
