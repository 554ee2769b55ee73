package state

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS belief_versions (
	version_id    TEXT PRIMARY KEY,
	parent_id     TEXT,
	beliefs       BLOB NOT NULL,
	levels        TEXT NOT NULL,
	timestep      INTEGER NOT NULL,
	created_at    TEXT NOT NULL,
	decision_json TEXT,
	FOREIGN KEY (parent_id) REFERENCES belief_versions(version_id)
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	version_id    TEXT NOT NULL,
	model_hash    TEXT,
	trigger_type  TEXT NOT NULL,
	decision_json TEXT,
	action        TEXT,
	outcome       TEXT NOT NULL,
	reason        TEXT,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES belief_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_state (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version_id    TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES belief_versions(version_id)
);
`

const selectColumns = `version_id, parent_id, beliefs, levels, timestep, created_at, decision_json`

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region store-struct
// Store keeps versioned belief snapshots in SQLite. Each version points at
// its parent and one row marks the active version.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an open database whose schema is already in place.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB, shared with the provenance log.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region create-initial
// CreateInitialState stores flat beliefs over factors with the given level
// counts as a root version and makes it active.
func (s *Store) CreateInitialState(levels []int) (BeliefRecord, error) {
	for f, n := range levels {
		if n < 1 {
			return BeliefRecord{}, fmt.Errorf("factor %d has %d levels", f, n)
		}
	}
	rec := BeliefRecord{
		VersionID: uuid.New().String(),
		Beliefs:   model.Uniform(levels),
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return BeliefRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, rec); err != nil {
		return BeliefRecord{}, err
	}
	_, err = tx.Exec(
		`INSERT INTO active_state (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rec.VersionID,
	)
	if err != nil {
		return BeliefRecord{}, fmt.Errorf("set active: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return BeliefRecord{}, fmt.Errorf("commit: %w", err)
	}
	return rec, nil
}

// #endregion create-initial

// #region next-record
// NextRecord builds the child of parent holding qs. It is not stored until
// passed to CommitState.
func NextRecord(parent BeliefRecord, qs model.Beliefs, decisionJSON string) BeliefRecord {
	return BeliefRecord{
		VersionID:    uuid.New().String(),
		ParentID:     parent.VersionID,
		Beliefs:      qs.Clone(),
		Timestep:     parent.Timestep + 1,
		CreatedAt:    time.Now().UTC(),
		DecisionJSON: decisionJSON,
	}
}

// #endregion next-record

// #region get
// GetCurrent reads the active belief version.
func (s *Store) GetCurrent() (BeliefRecord, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_state WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return BeliefRecord{}, fmt.Errorf("get active: %w", err)
	}
	return s.GetVersion(versionID)
}

// GetVersion retrieves a belief version by ID.
func (s *Store) GetVersion(id string) (BeliefRecord, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM belief_versions WHERE version_id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return BeliefRecord{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return rec, nil
}

// #endregion get

// #region commit-state
// CommitState inserts a new version and updates the active pointer atomically.
func (s *Store) CommitState(rec BeliefRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertVersion(tx, rec); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE active_state SET version_id = ? WHERE id = 1`, rec.VersionID); err != nil {
		return fmt.Errorf("update active: %w", err)
	}
	return tx.Commit()
}

func insertVersion(tx *sql.Tx, rec BeliefRecord) error {
	levels, err := json.Marshal(rec.Levels())
	if err != nil {
		return fmt.Errorf("marshal levels: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO belief_versions (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.VersionID, nullIfEmpty(rec.ParentID), encodeBeliefs(rec.Beliefs), string(levels),
		rec.Timestep, rec.CreatedAt.UTC().Format(timeLayout), nullIfEmpty(rec.DecisionJSON),
	)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// #endregion commit-state

// #region rollback
// Rollback sets the active pointer to a previous version.
func (s *Store) Rollback(targetVersionID string) error {
	var exists int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM belief_versions WHERE version_id = ?`, targetVersionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("version %s not found", targetVersionID)
	}

	if _, err := s.db.Exec(`UPDATE active_state SET version_id = ? WHERE id = 1`, targetVersionID); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// #endregion rollback

// #region list-versions
// ListVersions returns the most recent belief versions, newest first.
func (s *Store) ListVersions(limit int) ([]BeliefRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+selectColumns+` FROM belief_versions
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var records []BeliefRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const provenanceQuery = `SELECT v.version_id, v.parent_id, v.beliefs, v.levels, v.timestep, v.created_at, v.decision_json,
	        p.trigger_type, p.action, p.outcome, p.reason
	 FROM belief_versions v
	 LEFT JOIN provenance_log p ON p.id = (
		SELECT MAX(id) FROM provenance_log WHERE version_id = v.version_id
	 )`

// ListVersionsWithProvenance is ListVersions joined with the newest
// provenance row of each version.
func (s *Store) ListVersionsWithProvenance(limit int) ([]VersionWithProvenance, error) {
	rows, err := s.db.Query(provenanceQuery+` ORDER BY v.created_at DESC, v.rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions with provenance: %w", err)
	}
	defer rows.Close()

	var out []VersionWithProvenance
	for rows.Next() {
		v, err := scanProvenance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVersionWithProvenance retrieves one version with its newest provenance row.
func (s *Store) GetVersionWithProvenance(id string) (VersionWithProvenance, error) {
	row := s.db.QueryRow(provenanceQuery+` WHERE v.version_id = ?`, id)
	v, err := scanProvenance(row)
	if err != nil {
		return VersionWithProvenance{}, fmt.Errorf("get version %s: %w", id, err)
	}
	return v, nil
}

func scanProvenance(row scanner) (VersionWithProvenance, error) {
	var trigger, action, outcome, reason sql.NullString
	rec, err := scanRecord(row, &trigger, &action, &outcome, &reason)
	if err != nil {
		return VersionWithProvenance{}, err
	}
	return VersionWithProvenance{
		BeliefRecord: rec,
		TriggerType:  trigger.String,
		Action:       action.String,
		Outcome:      outcome.String,
		Reason:       reason.String,
	}, nil
}

// #endregion list-versions

// #region scan
type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the selectColumns of one row, followed by any extra
// destinations.
func scanRecord(row scanner, extra ...any) (BeliefRecord, error) {
	var (
		rec          BeliefRecord
		parentID     sql.NullString
		blob         []byte
		levelsJSON   string
		createdStr   string
		decisionJSON sql.NullString
	)
	dest := append([]any{&rec.VersionID, &parentID, &blob, &levelsJSON, &rec.Timestep, &createdStr, &decisionJSON}, extra...)
	if err := row.Scan(dest...); err != nil {
		return BeliefRecord{}, err
	}

	var levels []int
	if err := json.Unmarshal([]byte(levelsJSON), &levels); err != nil {
		return BeliefRecord{}, fmt.Errorf("unmarshal levels: %w", err)
	}
	qs, err := decodeBeliefs(blob, levels)
	if err != nil {
		return BeliefRecord{}, err
	}
	rec.Beliefs = qs
	rec.ParentID = parentID.String
	rec.DecisionJSON = decisionJSON.String
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion scan

// #region belief-encoding
// encodeBeliefs concatenates every factor as little-endian float64s.
func encodeBeliefs(qs model.Beliefs) []byte {
	var n int
	for _, q := range qs {
		n += len(q)
	}
	buf := make([]byte, 0, n*8)
	for _, q := range qs {
		for _, v := range q {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
	}
	return buf
}

func decodeBeliefs(b []byte, levels []int) (model.Beliefs, error) {
	var n int
	for _, l := range levels {
		n += l
	}
	if len(b) != n*8 {
		return nil, fmt.Errorf("belief blob has %d bytes, want %d", len(b), n*8)
	}
	qs := make(model.Beliefs, len(levels))
	off := 0
	for f, l := range levels {
		qs[f] = make([]float64, l)
		for i := range qs[f] {
			qs[f][i] = math.Float64frombits(binary.LittleEndian.Uint64(b[off:]))
			off += 8
		}
	}
	return qs, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion belief-encoding
