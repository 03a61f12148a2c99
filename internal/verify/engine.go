package verify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hashguard/hashguard/internal/anchor"
	"github.com/hashguard/hashguard/internal/config"
	"github.com/hashguard/hashguard/internal/custody"
	"github.com/hashguard/hashguard/internal/digest"
	"github.com/hashguard/hashguard/internal/evidence"
	"github.com/hashguard/hashguard/internal/log"
	"github.com/hashguard/hashguard/internal/signature"
)

// EvidenceStore is the evidence lookup surface the engine consumes.
// *evidence.Store satisfies it.
type EvidenceStore interface {
	Get(ctx context.Context, evidenceID string) (*evidence.Record, error)
	FindByDigest(ctx context.Context, d string) (*evidence.Record, error)
}

// Ledger is the custody surface the engine consumes. *custody.Ledger
// satisfies it.
type Ledger interface {
	Append(ctx context.Context, evidenceID, action, actor string, details map[string]any) (*custody.Entry, error)
	ChainFor(ctx context.Context, evidenceID string) ([]*custody.Entry, error)
	Validate(ctx context.Context, evidenceID string) (*custody.ValidationResult, error)
}

// AnchorVerifier verifies timestamp anchor proofs. *anchor.Client
// satisfies it.
type AnchorVerifier interface {
	Verify(ctx context.Context, d, ref string) anchor.Result
}

// Engine combines the independent integrity proofs of an evidence record
// into one verdict. It is stateless between calls; concurrent verifications
// are independent.
type Engine struct {
	store   EvidenceStore
	ledger  Ledger
	anchors AnchorVerifier
	policy  config.ScoringPolicy
}

// New creates a verification engine.
func New(store EvidenceStore, ledger Ledger, anchors AnchorVerifier, policy config.ScoringPolicy) *Engine {
	if policy == (config.ScoringPolicy{}) {
		policy = config.DefaultScoring()
	}
	return &Engine{store: store, ledger: ledger, anchors: anchors, policy: policy}
}

// Complete runs the full verification of an evidence record: content
// digest, detached signature and timestamp anchor where present, and the
// custody chain, concurrently. It always produces a verdict for a known
// evidence id; an unknown id fails with evidence.ErrNotFound. Exactly one
// VERIFICATION entry is appended to the custody ledger.
func (e *Engine) Complete(ctx context.Context, evidenceID string) (*Verdict, error) {
	log.Debug("starting complete verification", "evidence_id", evidenceID)

	rec, err := e.store.Get(ctx, evidenceID)
	if err != nil {
		return nil, err
	}

	var c checks
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c.Hash = e.checkHash(rec)
		return nil
	})
	if rec.HasSignature() {
		g.Go(func() error {
			c.Signature = e.checkSignature(rec)
			return nil
		})
	}
	if rec.HasTimestamp() {
		g.Go(func() error {
			c.Timestamp = e.checkTimestamp(gctx, rec)
			return nil
		})
	}
	g.Go(func() error {
		c.Custody = e.checkCustody(gctx, evidenceID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	score := confidenceScore(c, e.policy)
	valid := overallValid(c)
	summary, recommendations := summarize(c, valid, score)

	verdict := &Verdict{
		EvidenceID:      evidenceID,
		Filename:        rec.Filename,
		OverallValid:    valid,
		ConfidenceScore: score,
		Hash:            c.Hash,
		Signature:       c.Signature,
		Timestamp:       c.Timestamp,
		Custody:         c.Custody,
		VerifiedAt:      time.Now().UTC(),
		Summary:         summary,
		Recommendations: recommendations,
	}

	// Verification itself is an auditable custody event.
	_, err = e.ledger.Append(ctx, evidenceID, custody.ActionVerification, custody.SystemActor, map[string]any{
		"overall_valid":    valid,
		"confidence_score": score,
	})
	if err != nil {
		return nil, fmt.Errorf("recording verification: %w", err)
	}

	log.Info("complete verification finished", "evidence_id", evidenceID, "valid", valid, "score", score)
	return verdict, nil
}

// Quick performs the hash check only, appending an INTEGRITY_CHECK custody
// entry. Used where full orchestration cost is unwarranted.
func (e *Engine) Quick(ctx context.Context, evidenceID string) (*QuickResult, error) {
	rec, err := e.store.Get(ctx, evidenceID)
	if err != nil {
		return nil, err
	}

	hash := e.checkHash(rec)

	_, err = e.ledger.Append(ctx, evidenceID, custody.ActionIntegrityCheck, custody.SystemActor, map[string]any{
		"is_valid":          hash.IsValid,
		"calculated_digest": hash.CalculatedDigest,
		"stored_digest":     hash.StoredDigest,
	})
	if err != nil {
		return nil, fmt.Errorf("recording integrity check: %w", err)
	}

	msg := "File intact - digest matches"
	if !hash.IsValid {
		msg = "WARNING: file has been modified - digest mismatch"
	}
	return &QuickResult{
		IsIntact:    hash.IsValid,
		FileHash:    hash.CalculatedDigest,
		HashMatches: hash.IsValid,
		Message:     msg,
	}, nil
}

// CheckFile digests a freshly supplied file, looks up the matching evidence
// record by digest, and hash-checks the stored original. This detects the
// case where the exact content exists but the stored original has since
// been altered. An unmatched file yields a structured negative result, not
// an error.
func (e *Engine) CheckFile(ctx context.Context, path string) (*QuickResult, error) {
	fileHash, err := digest.File(path)
	if err != nil {
		return &QuickResult{Message: fmt.Sprintf("verification error: %v", err)}, nil
	}

	rec, err := e.store.FindByDigest(ctx, fileHash)
	if err != nil {
		if errors.Is(err, evidence.ErrNotFound) {
			return &QuickResult{
				FileHash: fileHash,
				Message:  "File not found in the evidence store",
			}, nil
		}
		return nil, err
	}

	hash := e.checkHash(rec)

	_, err = e.ledger.Append(ctx, rec.ID, custody.ActionIntegrityCheck, custody.SystemActor, map[string]any{
		"is_valid":          hash.IsValid,
		"calculated_digest": hash.CalculatedDigest,
		"stored_digest":     hash.StoredDigest,
		"supplied_file":     path,
	})
	if err != nil {
		return nil, fmt.Errorf("recording integrity check: %w", err)
	}

	msg := "File found and intact in the evidence store"
	if !hash.IsValid {
		msg = "WARNING: evidence found but the stored original has been modified"
	}
	return &QuickResult{
		IsIntact:    hash.IsValid,
		FileHash:    fileHash,
		HashMatches: true,
		Message:     msg,
	}, nil
}

// checkHash recomputes the content digest and compares it against the
// record's stored digest. Unreadable content degrades to an invalid result.
func (e *Engine) checkHash(rec *evidence.Record) HashResult {
	calculated, err := digest.File(rec.Path)
	if err != nil {
		log.Warn("hash check degraded", "evidence_id", rec.ID, "error", err)
		return HashResult{
			StoredDigest: rec.Digest,
			Message:      fmt.Sprintf("content unavailable: %v", err),
		}
	}

	if !digest.Equal(calculated, rec.Digest) {
		return HashResult{
			StoredDigest:     rec.Digest,
			CalculatedDigest: calculated,
			Message:          "Digest mismatch - file content has been modified",
		}
	}
	return HashResult{
		IsValid:          true,
		StoredDigest:     rec.Digest,
		CalculatedDigest: calculated,
		Message:          "Digest intact",
	}
}

// checkSignature verifies the record's detached signature against its own
// public key material. All failures degrade to an invalid result.
func (e *Engine) checkSignature(rec *evidence.Record) *SignatureResult {
	sig, err := os.ReadFile(rec.SignatureFile)
	if err != nil {
		log.Warn("signature check degraded", "evidence_id", rec.ID, "error", err)
		return &SignatureResult{Message: "Signature verification failed", Error: fmt.Sprintf("reading signature: %v", err)}
	}

	pub, err := signature.ParsePublicKeyPEM(rec.PublicKey)
	if err != nil {
		log.Warn("signature check degraded", "evidence_id", rec.ID, "error", err)
		return &SignatureResult{Message: "Signature verification failed", Error: fmt.Sprintf("parsing public key: %v", err)}
	}

	if !signature.VerifyWith(pub, rec.Digest, sig) {
		return &SignatureResult{Message: "Digital signature invalid", Error: "signature does not verify"}
	}

	info := signature.InfoForPublicKey(pub)
	return &SignatureResult{
		IsValid: true,
		KeyInfo: &info,
		Message: "Digital signature valid",
	}
}

// checkTimestamp verifies the record's anchor proof. The anchor client
// never returns a hard error; pending or unreachable anchors degrade.
func (e *Engine) checkTimestamp(ctx context.Context, rec *evidence.Record) *TimestampResult {
	result := e.anchors.Verify(ctx, rec.Digest, rec.TimestampFile)
	if !result.IsValid {
		return &TimestampResult{Message: "Timestamp invalid", Error: result.Error}
	}
	return &TimestampResult{
		IsValid:      true,
		AnchorTime:   result.AnchorTime,
		AnchorHeight: result.AnchorHeight,
		Message:      "Timestamp valid",
	}
}

// checkCustody validates the custody chain and aggregates its shape. Any
// ledger failure degrades to an invalid result carrying the cause.
func (e *Engine) checkCustody(ctx context.Context, evidenceID string) CustodyResult {
	validation, err := e.ledger.Validate(ctx, evidenceID)
	if err != nil {
		log.Warn("custody check degraded", "evidence_id", evidenceID, "error", err)
		return CustodyResult{Issues: []string{fmt.Sprintf("custody validation failed: %v", err)}}
	}

	chain, err := e.ledger.ChainFor(ctx, evidenceID)
	if err != nil {
		log.Warn("custody check degraded", "evidence_id", evidenceID, "error", err)
		return CustodyResult{Issues: []string{fmt.Sprintf("custody chain unavailable: %v", err)}}
	}

	summary := custody.Summarize(chain)
	return CustodyResult{
		IsValid:      validation.IsValid,
		TotalEntries: validation.TotalEntries,
		FirstEntry:   summary.FirstAction,
		LastEntry:    summary.LastAction,
		Actors:       summary.Actors,
		Issues:       validation.Issues,
	}
}
