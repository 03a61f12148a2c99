package custody

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashguard/hashguard/internal/evidence"
)

const testDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func newTestLedger(t *testing.T) (*Ledger, *evidence.Store) {
	t.Helper()
	store, err := evidence.Open(filepath.Join(t.TempDir(), "evidence.db"))
	if err != nil {
		t.Fatalf("evidence.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ledger, err := NewLedger(store.DB(), store)
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return ledger, store
}

func createEvidence(t *testing.T, store *evidence.Store) *evidence.Record {
	t.Helper()
	rec, err := store.Create(context.Background(), &evidence.Record{
		Filename: "document.pdf",
		Path:     "/uploads/document.pdf",
		Digest:   testDigest,
	})
	if err != nil {
		t.Fatalf("Create evidence: %v", err)
	}
	return rec
}

func TestLedger_Append(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	entry, err := ledger.Append(ctx, rec.ID, "upload", "alice", map[string]any{"filename": "document.pdf"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	if entry.Action != "UPLOAD" {
		t.Errorf("Action = %s, want UPLOAD (normalized)", entry.Action)
	}
	if entry.Actor != "alice" {
		t.Errorf("Actor = %s, want alice (stored as supplied)", entry.Actor)
	}
	if !strings.HasPrefix(entry.ID, "cst_") {
		t.Errorf("ID = %s, want cst_ prefix", entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestLedger_Append_UnknownEvidence(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.Append(ctx, "ev_missing", ActionUpload, "alice", nil)
	if !errors.Is(err, ErrEvidenceNotFound) {
		t.Fatalf("Append err = %v, want ErrEvidenceNotFound", err)
	}

	// Ledger state unchanged
	entries, err := ledger.ByActor(ctx, "alice")
	if err != nil {
		t.Fatalf("ByActor: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty ledger after failed append, got %d entries", len(entries))
	}
}

func TestLedger_Append_UnrecognizedActionAccepted(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)

	entry, err := ledger.Append(context.Background(), rec.ID, "chain_review", "bob", nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if entry.Action != "CHAIN_REVIEW" {
		t.Errorf("Action = %s, want CHAIN_REVIEW", entry.Action)
	}
}

func TestLedger_ChainFor_OrderingAndIdempotence(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	if _, err := ledger.appendAt(ctx, rec.ID, ActionUpload, "alice", nil, base); err != nil {
		t.Fatalf("appendAt: %v", err)
	}
	if _, err := ledger.appendAt(ctx, rec.ID, ActionAccess, "bob", nil, base.Add(time.Hour)); err != nil {
		t.Fatalf("appendAt: %v", err)
	}
	if _, err := ledger.appendAt(ctx, rec.ID, ActionVerification, SystemActor, nil, base.Add(2*time.Hour)); err != nil {
		t.Fatalf("appendAt: %v", err)
	}

	chain, err := ledger.ChainFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ChainFor: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("len(chain) = %d, want 3", len(chain))
	}
	wantActions := []string{ActionUpload, ActionAccess, ActionVerification}
	for i, want := range wantActions {
		if chain[i].Action != want {
			t.Errorf("chain[%d].Action = %s, want %s", i, chain[i].Action, want)
		}
	}
	for i := 1; i < len(chain); i++ {
		if chain[i].CreatedAt.Before(chain[i-1].CreatedAt) {
			t.Errorf("chain not monotonically non-decreasing at %d", i)
		}
	}

	// Idempotence: a second read returns the identical sequence
	again, err := ledger.ChainFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ChainFor: %v", err)
	}
	if len(again) != len(chain) {
		t.Fatalf("second read len = %d, want %d", len(again), len(chain))
	}
	for i := range chain {
		if again[i].ID != chain[i].ID {
			t.Errorf("second read entry %d = %s, want %s", i, again[i].ID, chain[i].ID)
		}
	}
}

func TestLedger_ChainFor_UnknownEvidence(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.ChainFor(context.Background(), "ev_missing")
	if !errors.Is(err, ErrEvidenceNotFound) {
		t.Errorf("ChainFor err = %v, want ErrEvidenceNotFound", err)
	}
}

func TestLedger_LastEntry(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	last, err := ledger.LastEntry(ctx, rec.ID)
	if err != nil {
		t.Fatalf("LastEntry: %v", err)
	}
	if last != nil {
		t.Errorf("LastEntry on empty chain = %+v, want nil", last)
	}

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ledger.appendAt(ctx, rec.ID, ActionUpload, "alice", nil, base)
	ledger.appendAt(ctx, rec.ID, ActionAccess, "bob", nil, base.Add(time.Hour))

	last, err = ledger.LastEntry(ctx, rec.ID)
	if err != nil {
		t.Fatalf("LastEntry: %v", err)
	}
	if last == nil || last.Action != ActionAccess {
		t.Errorf("LastEntry = %+v, want ACCESS entry", last)
	}
}

func TestLedger_ByActorAndByAction(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ledger.appendAt(ctx, rec.ID, ActionUpload, "alice", nil, base)
	ledger.appendAt(ctx, rec.ID, ActionAccess, "alice", nil, base.Add(time.Hour))
	ledger.appendAt(ctx, rec.ID, ActionAccess, "bob", nil, base.Add(2*time.Hour))

	byAlice, err := ledger.ByActor(ctx, "alice")
	if err != nil {
		t.Fatalf("ByActor: %v", err)
	}
	if len(byAlice) != 2 {
		t.Fatalf("len(byAlice) = %d, want 2", len(byAlice))
	}
	// Descending by creation time
	if byAlice[0].Action != ActionAccess || byAlice[1].Action != ActionUpload {
		t.Errorf("ByActor order = %s, %s; want ACCESS, UPLOAD", byAlice[0].Action, byAlice[1].Action)
	}

	// ByAction normalizes its argument
	accesses, err := ledger.ByAction(ctx, "access")
	if err != nil {
		t.Fatalf("ByAction: %v", err)
	}
	if len(accesses) != 2 {
		t.Errorf("len(accesses) = %d, want 2", len(accesses))
	}
}

func TestLedger_Validate_CleanChain(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ledger.appendAt(ctx, rec.ID, ActionUpload, "alice", nil, base)
	ledger.appendAt(ctx, rec.ID, ActionIntegrityCheck, SystemActor, nil, base.Add(2*time.Hour))

	result, err := ledger.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !result.IsValid {
		t.Errorf("IsValid = false, issues: %v", result.Issues)
	}
	if len(result.Issues) != 0 {
		t.Errorf("Issues = %v, want none", result.Issues)
	}
	// 100 + 10 (integrity check) + 5 (two actors), clamped to 100
	if result.IntegrityScore != 100 {
		t.Errorf("IntegrityScore = %d, want 100", result.IntegrityScore)
	}
	if result.TotalEntries != 2 {
		t.Errorf("TotalEntries = %d, want 2", result.TotalEntries)
	}
	if len(result.Recommendations) != 0 {
		t.Errorf("Recommendations = %v, want none", result.Recommendations)
	}
}

func TestLedger_Validate_ThirtyHourGap(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ledger.appendAt(ctx, rec.ID, ActionUpload, "alice", nil, base)
	ledger.appendAt(ctx, rec.ID, ActionAccess, "alice", nil, base.Add(30*time.Hour))

	result, err := ledger.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.IsValid {
		t.Error("IsValid = true, want false for 30h gap")
	}
	if len(result.Issues) != 1 {
		t.Fatalf("Issues = %v, want exactly one gap issue", result.Issues)
	}
	if !strings.Contains(result.Issues[0], "30 hours") {
		t.Errorf("issue = %q, want rounded gap of 30 hours", result.Issues[0])
	}
	if result.IntegrityScore != 80 {
		t.Errorf("IntegrityScore = %d, want 80", result.IntegrityScore)
	}
}

func TestLedger_Validate_MissingUpload(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	ledger.appendAt(ctx, rec.ID, ActionAccess, "alice", nil, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	result, err := ledger.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.IsValid {
		t.Error("IsValid = true, want false when initial upload record is missing")
	}
	if len(result.Issues) != 1 || !strings.Contains(result.Issues[0], "upload") {
		t.Errorf("Issues = %v, want one missing-upload issue", result.Issues)
	}
	if result.IntegrityScore != 80 {
		t.Errorf("IntegrityScore = %d, want 80", result.IntegrityScore)
	}
	// Single actor and no integrity checks: two recommendations
	if len(result.Recommendations) != 2 {
		t.Errorf("Recommendations = %v, want 2", result.Recommendations)
	}
}

func TestLedger_Validate_ScoreClampedAtZero(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	// Five gaps plus a missing upload: 6 issues, raw score 100 - 120 < 0
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		ledger.appendAt(ctx, rec.ID, ActionAccess, "alice", nil, at)
		at = at.Add(48 * time.Hour)
	}

	result, err := ledger.Validate(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if result.IntegrityScore != 0 {
		t.Errorf("IntegrityScore = %d, want clamped 0", result.IntegrityScore)
	}
	if len(result.Issues) != 6 {
		t.Errorf("len(Issues) = %d, want 6", len(result.Issues))
	}
}

func TestLedger_BuildReport(t *testing.T) {
	ledger, store := newTestLedger(t)
	rec := createEvidence(t, store)
	ctx := context.Background()

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	ledger.appendAt(ctx, rec.ID, ActionUpload, "alice", nil, base)
	ledger.appendAt(ctx, rec.ID, ActionAccess, "bob", nil, base.Add(time.Hour))
	ledger.appendAt(ctx, rec.ID, ActionAccess, "bob", nil, base.Add(2*time.Hour))

	report, err := ledger.BuildReport(ctx, rec.ID)
	if err != nil {
		t.Fatalf("BuildReport: %v", err)
	}
	if report.Evidence.ID != rec.ID {
		t.Errorf("Evidence.ID = %s, want %s", report.Evidence.ID, rec.ID)
	}
	if len(report.Chain) != 3 {
		t.Errorf("len(Chain) = %d, want 3", len(report.Chain))
	}
	if report.Summary.TotalActions != 3 {
		t.Errorf("TotalActions = %d, want 3", report.Summary.TotalActions)
	}
	if len(report.Summary.Actors) != 2 {
		t.Errorf("Actors = %v, want alice and bob", report.Summary.Actors)
	}
	if len(report.Summary.Actions) != 2 {
		t.Errorf("Actions = %v, want UPLOAD and ACCESS", report.Summary.Actions)
	}
	if !report.Summary.FirstAction.Equal(base) {
		t.Errorf("FirstAction = %v, want %v", report.Summary.FirstAction, base)
	}
	if !report.Summary.LastAction.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("LastAction = %v, want %v", report.Summary.LastAction, base.Add(2*time.Hour))
	}
}

func TestLedger_BuildReport_UnknownEvidence(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.BuildReport(context.Background(), "ev_missing")
	if !errors.Is(err, ErrEvidenceNotFound) {
		t.Errorf("BuildReport err = %v, want ErrEvidenceNotFound", err)
	}
}
