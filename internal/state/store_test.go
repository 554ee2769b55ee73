package state

import (
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-state/planner/internal/model"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func equalBeliefs(a, b model.Beliefs) bool {
	if len(a) != len(b) {
		return false
	}
	for f := range a {
		if len(a[f]) != len(b[f]) {
			return false
		}
		for i := range a[f] {
			if a[f][i] != b[f][i] {
				return false
			}
		}
	}
	return true
}

func TestCreateInitialAndGetCurrent(t *testing.T) {
	s := tempDB(t)

	rec, err := s.CreateInitialState([]int{2, 3})
	if err != nil {
		t.Fatalf("CreateInitialState: %v", err)
	}
	if rec.VersionID == "" {
		t.Fatal("expected non-empty version ID")
	}
	if rec.ParentID != "" {
		t.Fatalf("expected empty parent, got %s", rec.ParentID)
	}
	if rec.Timestep != 0 {
		t.Fatalf("expected timestep 0, got %d", rec.Timestep)
	}
	if rec.Beliefs[1][2] != 1.0/3 {
		t.Fatalf("expected flat beliefs, got %v", rec.Beliefs)
	}

	cur, err := s.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.VersionID != rec.VersionID {
		t.Fatalf("expected %s, got %s", rec.VersionID, cur.VersionID)
	}
	if !equalBeliefs(cur.Beliefs, rec.Beliefs) {
		t.Fatalf("beliefs mismatch: got %v, want %v", cur.Beliefs, rec.Beliefs)
	}
}

func TestCreateInitialStateRejectsEmptyFactor(t *testing.T) {
	s := tempDB(t)
	if _, err := s.CreateInitialState([]int{2, 0}); err == nil {
		t.Fatal("expected error for a factor without levels")
	}
}

func TestCommitAndRollback(t *testing.T) {
	s := tempDB(t)

	v1, err := s.CreateInitialState([]int{3})
	if err != nil {
		t.Fatalf("CreateInitialState: %v", err)
	}

	v2 := NextRecord(v1, model.Beliefs{{0, 0.25, 0.75}}, `{"action":[1]}`)
	if err := s.CommitState(v2); err != nil {
		t.Fatalf("CommitState: %v", err)
	}

	cur, _ := s.GetCurrent()
	if cur.VersionID != v2.VersionID {
		t.Fatalf("expected %s, got %s", v2.VersionID, cur.VersionID)
	}
	if cur.Beliefs[0][2] != 0.75 {
		t.Fatalf("expected 0.75, got %f", cur.Beliefs[0][2])
	}
	if cur.Timestep != 1 {
		t.Fatalf("expected timestep 1, got %d", cur.Timestep)
	}
	if cur.ParentID != v1.VersionID {
		t.Fatalf("ParentID mismatch: got %q, want %q", cur.ParentID, v1.VersionID)
	}
	if cur.DecisionJSON != `{"action":[1]}` {
		t.Fatalf("DecisionJSON mismatch: got %q", cur.DecisionJSON)
	}

	if err := s.Rollback(v1.VersionID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	cur, _ = s.GetCurrent()
	if cur.VersionID != v1.VersionID {
		t.Fatalf("expected %s after rollback, got %s", v1.VersionID, cur.VersionID)
	}
}

func TestNextRecordCopiesBeliefs(t *testing.T) {
	qs := model.Beliefs{{0.5, 0.5}}
	rec := NextRecord(BeliefRecord{VersionID: "p", Timestep: 4}, qs, "")
	qs[0][0] = 9

	if rec.Beliefs[0][0] != 0.5 {
		t.Fatal("expected NextRecord to copy beliefs")
	}
	if rec.Timestep != 5 || rec.ParentID != "p" {
		t.Fatalf("unexpected lineage: timestep %d parent %q", rec.Timestep, rec.ParentID)
	}
}

func TestRollbackNonExistent(t *testing.T) {
	s := tempDB(t)
	s.CreateInitialState([]int{2})

	if err := s.Rollback("nonexistent-id"); err == nil {
		t.Fatal("expected error for non-existent version")
	}
}

func TestListVersions(t *testing.T) {
	s := tempDB(t)

	v1, _ := s.CreateInitialState([]int{2})
	v2 := NextRecord(v1, model.Beliefs{{1, 0}}, "")
	v2.CreatedAt = v1.CreatedAt
	if err := s.CommitState(v2); err != nil {
		t.Fatalf("CommitState: %v", err)
	}

	versions, err := s.ListVersions(10)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	if versions[0].VersionID != v2.VersionID {
		t.Fatalf("expected newest first, got %s", versions[0].VersionID)
	}

	versions, _ = s.ListVersions(1)
	if len(versions) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(versions))
	}
}

func TestListVersionsWithProvenance(t *testing.T) {
	s := tempDB(t)

	v1, _ := s.CreateInitialState([]int{2})
	v2 := NextRecord(v1, model.Beliefs{{1, 0}}, "")
	if err := s.CommitState(v2); err != nil {
		t.Fatalf("CommitState: %v", err)
	}

	insert := `INSERT INTO provenance_log (version_id, trigger_type, action, outcome, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.DB().Exec(insert, v2.VersionID, "infer", "[0]", "reject", "first", now); err != nil {
		t.Fatalf("insert provenance: %v", err)
	}
	if _, err := s.DB().Exec(insert, v2.VersionID, "infer", "[1]", "commit", "", now); err != nil {
		t.Fatalf("insert provenance: %v", err)
	}

	versions, err := s.ListVersionsWithProvenance(10)
	if err != nil {
		t.Fatalf("ListVersionsWithProvenance: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}

	byID := map[string]VersionWithProvenance{}
	for _, v := range versions {
		byID[v.VersionID] = v
	}
	got := byID[v2.VersionID]
	if got.Outcome != "commit" || got.Action != "[1]" || got.TriggerType != "infer" {
		t.Fatalf("expected latest provenance row, got %+v", got)
	}
	if root := byID[v1.VersionID]; root.Outcome != "" || root.Reason != "" {
		t.Fatalf("expected empty provenance for root, got %+v", root)
	}

	one, err := s.GetVersionWithProvenance(v2.VersionID)
	if err != nil {
		t.Fatalf("GetVersionWithProvenance: %v", err)
	}
	if one.Outcome != "commit" || one.ParentID != v1.VersionID {
		t.Fatalf("unexpected version detail: %+v", one)
	}
	if _, err := s.GetVersionWithProvenance("missing"); err == nil {
		t.Fatal("expected error for missing version")
	}
}

func TestBeliefRoundTrip(t *testing.T) {
	original := model.Beliefs{{0.1, 0.9}, {math.SmallestNonzeroFloat64, 0.5, 0.5 - math.SmallestNonzeroFloat64}}
	decoded, err := decodeBeliefs(encodeBeliefs(original), original.Levels())
	if err != nil {
		t.Fatalf("decodeBeliefs: %v", err)
	}
	if !equalBeliefs(original, decoded) {
		t.Fatalf("mismatch: %v != %v", original, decoded)
	}
}

func TestDecodeBeliefsLengthMismatch(t *testing.T) {
	if _, err := decodeBeliefs(make([]byte, 8), []int{2}); err == nil {
		t.Fatal("expected error for short blob")
	}
}

func TestNewStoreInvalidPath(t *testing.T) {
	_, err := NewStore(filepath.Join(string(os.PathSeparator), "nonexistent", "deep", "path", "test.db"))
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestGetVersionNotFound(t *testing.T) {
	s := tempDB(t)
	s.CreateInitialState([]int{2})

	_, err := s.GetVersion("nonexistent-id")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestGetCurrentNoActiveState(t *testing.T) {
	s := tempDB(t)
	if _, err := s.GetCurrent(); err == nil {
		t.Fatal("expected error when no active state exists")
	}
}

func TestOperationsOnClosedDB(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	v1, _ := s.CreateInitialState([]int{2})
	s.Close()

	if _, err := s.CreateInitialState([]int{2}); err == nil {
		t.Error("CreateInitialState: expected error on closed DB")
	}
	if err := s.CommitState(NextRecord(v1, v1.Beliefs, "")); err == nil {
		t.Error("CommitState: expected error on closed DB")
	}
	if err := s.Rollback(v1.VersionID); err == nil {
		t.Error("Rollback: expected error on closed DB")
	}
	if _, err := s.ListVersions(10); err == nil {
		t.Error("ListVersions: expected error on closed DB")
	}
	if _, err := s.GetCurrent(); err == nil {
		t.Error("GetCurrent: expected error on closed DB")
	}
}

// corruptDB opens an in-memory SQLite with the full schema so tests can drop
// tables or insert bad rows.
func corruptDB(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db), db
}

func TestCreateInitialState_InsertFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE belief_versions")

	if _, err := s.CreateInitialState([]int{2}); err == nil {
		t.Fatal("expected error when belief_versions table is missing")
	}
}

func TestCreateInitialState_SetActiveFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE active_state")

	if _, err := s.CreateInitialState([]int{2}); err == nil {
		t.Fatal("expected error when active_state table is missing")
	}
}

func TestGetVersion_BadLevelsJSON(t *testing.T) {
	s, db := corruptDB(t)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := db.Exec(
		`INSERT INTO belief_versions (version_id, parent_id, beliefs, levels, timestep, created_at)
		 VALUES (?, NULL, ?, ?, 0, ?)`, "bad-json", make([]byte, 16), "not-json", now,
	)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := s.GetVersion("bad-json"); err == nil {
		t.Fatal("expected unmarshal error for bad levels JSON")
	}
}

func TestCommitState_UpdateActiveFails(t *testing.T) {
	s, db := corruptDB(t)
	db.Exec("DROP TABLE active_state")

	err := s.CommitState(BeliefRecord{
		VersionID: "v2",
		Beliefs:   model.Beliefs{{1}},
		CreatedAt: time.Now().UTC(),
	})
	if err == nil {
		t.Fatal("expected error when active_state table is missing")
	}
}
