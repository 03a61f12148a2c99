package custody

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/hashguard/hashguard/internal/evidence"
	"github.com/hashguard/hashguard/internal/id"
)

// ErrEvidenceNotFound is returned when an operation references an unknown
// evidence id.
var ErrEvidenceNotFound = errors.New("evidence not found")

// EvidenceResolver looks up evidence records for existence checks and
// report composition. *evidence.Store satisfies it.
type EvidenceResolver interface {
	Get(ctx context.Context, evidenceID string) (*evidence.Record, error)
}

// Ledger is the append-only custody log. There is no update or delete path:
// entries are written once via single-row inserts and only ever read back.
type Ledger struct {
	db       *sql.DB
	evidence EvidenceResolver

	// Serializes appends so commit order matches created_at order even when
	// two appends land in the same clock tick.
	mu sync.Mutex
}

// NewLedger creates a custody ledger on the given database, creating its
// table if needed.
func NewLedger(db *sql.DB, resolver EvidenceResolver) (*Ledger, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS custody_log (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			evidence_id TEXT NOT NULL,
			action      TEXT NOT NULL,
			actor       TEXT NOT NULL,
			details     TEXT NOT NULL DEFAULT '{}',
			created_at  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_custody_evidence ON custody_log(evidence_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_custody_actor ON custody_log(actor);
		CREATE INDEX IF NOT EXISTS idx_custody_action ON custody_log(action);
	`)
	if err != nil {
		return nil, fmt.Errorf("creating custody table: %w", err)
	}
	return &Ledger{db: db, evidence: resolver}, nil
}

// Append records an action against an evidence record. The action is
// normalized to upper-case; the actor is stored as supplied.
func (l *Ledger) Append(ctx context.Context, evidenceID, action, actor string, details map[string]any) (*Entry, error) {
	return l.appendAt(ctx, evidenceID, action, actor, details, time.Now().UTC())
}

// appendAt is Append with an explicit timestamp (for testing).
func (l *Ledger) appendAt(ctx context.Context, evidenceID, action, actor string, details map[string]any, at time.Time) (*Entry, error) {
	if err := l.checkEvidence(ctx, evidenceID); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:         id.Generate("cst"),
		EvidenceID: evidenceID,
		Action:     strings.ToUpper(action),
		Actor:      actor,
		Details:    details,
		CreatedAt:  at,
	}

	detailsJSON := []byte("{}")
	if details != nil {
		var err error
		detailsJSON, err = json.Marshal(details)
		if err != nil {
			return nil, fmt.Errorf("marshaling details: %w", err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO custody_log (id, evidence_id, action, actor, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.EvidenceID, entry.Action, entry.Actor, string(detailsJSON),
		entry.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("inserting custody entry: %w", err)
	}

	return entry, nil
}

// ChainFor returns the full custody chain for an evidence record, ascending
// by creation time.
func (l *Ledger) ChainFor(ctx context.Context, evidenceID string) ([]*Entry, error) {
	if err := l.checkEvidence(ctx, evidenceID); err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, evidence_id, action, actor, details, created_at
		FROM custody_log WHERE evidence_id = ?
		ORDER BY created_at ASC, seq ASC
	`, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("querying custody chain: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// LastEntry returns the most recent custody entry for an evidence record,
// or nil when the chain is empty.
func (l *Ledger) LastEntry(ctx context.Context, evidenceID string) (*Entry, error) {
	if err := l.checkEvidence(ctx, evidenceID); err != nil {
		return nil, err
	}

	row := l.db.QueryRowContext(ctx, `
		SELECT id, evidence_id, action, actor, details, created_at
		FROM custody_log WHERE evidence_id = ?
		ORDER BY created_at DESC, seq DESC LIMIT 1
	`, evidenceID)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return entry, err
}

// ByActor returns all custody entries recorded for an actor, most recent
// first.
func (l *Ledger) ByActor(ctx context.Context, actor string) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, evidence_id, action, actor, details, created_at
		FROM custody_log WHERE actor = ?
		ORDER BY created_at DESC, seq DESC
	`, actor)
	if err != nil {
		return nil, fmt.Errorf("querying by actor: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ByAction returns all custody entries with the given action, most recent
// first. The action is matched after upper-case normalization.
func (l *Ledger) ByAction(ctx context.Context, action string) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, evidence_id, action, actor, details, created_at
		FROM custody_log WHERE action = ?
		ORDER BY created_at DESC, seq DESC
	`, strings.ToUpper(action))
	if err != nil {
		return nil, fmt.Errorf("querying by action: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// maxActionGap is the interval between consecutive custody entries beyond
// which the chain is flagged.
const maxActionGap = 24 * time.Hour

// Validate performs a structural validation of an evidence record's custody
// chain. The result is a heuristic audit signal: issues make the chain
// invalid and cost 20 points each, recommendations are advisory only.
func (l *Ledger) Validate(ctx context.Context, evidenceID string) (*ValidationResult, error) {
	chain, err := l.ChainFor(ctx, evidenceID)
	if err != nil {
		return nil, err
	}

	issues := []string{}
	recommendations := []string{}

	hasUpload := false
	for _, e := range chain {
		if e.Action == ActionUpload {
			hasUpload = true
			break
		}
	}
	if !hasUpload {
		issues = append(issues, "no record of the initial evidence upload")
	}

	for i := 1; i < len(chain); i++ {
		gap := chain[i].CreatedAt.Sub(chain[i-1].CreatedAt)
		if gap > maxActionGap {
			hours := int(math.Round(gap.Hours()))
			issues = append(issues, fmt.Sprintf("gap of %d hours between actions at %s and %s",
				hours,
				chain[i-1].CreatedAt.Format(time.RFC3339),
				chain[i].CreatedAt.Format(time.RFC3339)))
		}
	}

	hasIntegrityCheck := false
	for _, e := range chain {
		if e.Action == ActionIntegrityCheck {
			hasIntegrityCheck = true
			break
		}
	}
	if !hasIntegrityCheck {
		recommendations = append(recommendations, "perform periodic integrity checks on this evidence")
	}

	actors := make(map[string]bool)
	for _, e := range chain {
		actors[e.Actor] = true
	}
	if len(actors) == 1 {
		recommendations = append(recommendations, "involve multiple actors in the custody chain for better auditability")
	}

	score := 100
	score -= len(issues) * 20
	if hasIntegrityCheck {
		score += 10
	}
	if len(actors) > 1 {
		score += 5
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &ValidationResult{
		IsValid:         len(issues) == 0,
		Issues:          issues,
		TotalEntries:    len(chain),
		IntegrityScore:  score,
		Recommendations: recommendations,
	}, nil
}

// Report composes the evidence record, its full custody chain, and a chain
// summary for human audit review.
type Report struct {
	Evidence *evidence.Record `json:"evidence"`
	Chain    []*Entry         `json:"chain"`
	Summary  Summary          `json:"summary"`
}

// BuildReport assembles a custody report for an evidence record.
func (l *Ledger) BuildReport(ctx context.Context, evidenceID string) (*Report, error) {
	record, err := l.evidence.Get(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEvidenceNotFound, evidenceID)
		}
		return nil, err
	}

	chain, err := l.ChainFor(ctx, evidenceID)
	if err != nil {
		return nil, err
	}

	return &Report{
		Evidence: record,
		Chain:    chain,
		Summary:  Summarize(chain),
	}, nil
}

// Summarize aggregates distinct actors, distinct actions, and the first and
// last action timestamps of a chain.
func Summarize(chain []*Entry) Summary {
	s := Summary{TotalActions: len(chain)}

	seenActors := make(map[string]bool)
	seenActions := make(map[string]bool)
	for _, e := range chain {
		if !seenActors[e.Actor] {
			seenActors[e.Actor] = true
			s.Actors = append(s.Actors, e.Actor)
		}
		if !seenActions[e.Action] {
			seenActions[e.Action] = true
			s.Actions = append(s.Actions, e.Action)
		}
	}

	if len(chain) > 0 {
		s.FirstAction = chain[0].CreatedAt
		s.LastAction = chain[len(chain)-1].CreatedAt
	}
	return s
}

func (l *Ledger) checkEvidence(ctx context.Context, evidenceID string) error {
	_, err := l.evidence.Get(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEvidenceNotFound, evidenceID)
		}
		return fmt.Errorf("resolving evidence: %w", err)
	}
	return nil
}

func collectEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*Entry, error) {
	var e Entry
	var detailsStr, createdAt string
	err := s.Scan(&e.ID, &e.EvidenceID, &e.Action, &e.Actor, &detailsStr, &createdAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning custody entry: %w", err)
	}

	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	json.Unmarshal([]byte(detailsStr), &e.Details)
	return &e, nil
}
