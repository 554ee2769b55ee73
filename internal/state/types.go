package state

import (
	"time"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
)

// #region belief-record
// BeliefRecord is a versioned snapshot of the agent's per-factor beliefs.
type BeliefRecord struct {
	VersionID    string
	ParentID     string
	Beliefs      model.Beliefs
	Timestep     int
	CreatedAt    time.Time
	DecisionJSON string // decision that produced this snapshot, empty for the root
}

// Levels returns the number of levels of each factor.
func (r BeliefRecord) Levels() []int {
	return r.Beliefs.Levels()
}

// #endregion belief-record

// #region version-with-provenance
// VersionWithProvenance pairs a belief version with its latest provenance row.
// The provenance fields are empty when nothing was logged for the version.
type VersionWithProvenance struct {
	BeliefRecord
	TriggerType string
	Action      string
	Outcome     string
	Reason      string
}

// #endregion version-with-provenance
