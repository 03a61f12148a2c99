package verify

import (
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashguard/hashguard/internal/anchor"
	"github.com/hashguard/hashguard/internal/config"
	"github.com/hashguard/hashguard/internal/custody"
	"github.com/hashguard/hashguard/internal/digest"
	"github.com/hashguard/hashguard/internal/evidence"
	"github.com/hashguard/hashguard/internal/signature"
)

// stubAnchors returns a fixed anchor result without touching the network.
type stubAnchors struct {
	result anchor.Result
}

func (s stubAnchors) Verify(ctx context.Context, d, ref string) anchor.Result {
	return s.result
}

type fixture struct {
	dir    string
	store  *evidence.Store
	ledger *custody.Ledger
	signer *signature.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := evidence.Open(filepath.Join(dir, "evidence.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger, err := custody.NewLedger(store.DB(), store)
	require.NoError(t, err)

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}

	return &fixture{
		dir:    dir,
		store:  store,
		ledger: ledger,
		signer: signature.FromKey(ed25519.NewKeyFromSeed(seed)),
	}
}

func (f *fixture) engine(anchors AnchorVerifier) *Engine {
	return New(f.store, f.ledger, anchors, config.DefaultScoring())
}

// ingest writes a content file, creates its evidence record, and appends
// the initial UPLOAD custody entry.
func (f *fixture) ingest(t *testing.T, content string, mutate func(*evidence.Record)) *evidence.Record {
	t.Helper()
	path := filepath.Join(f.dir, "artifact.bin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	rec := &evidence.Record{
		Filename: "artifact.bin",
		Path:     path,
		Digest:   digest.Buffer([]byte(content)),
	}
	if mutate != nil {
		mutate(rec)
	}

	created, err := f.store.Create(context.Background(), rec)
	require.NoError(t, err)

	_, err = f.ledger.Append(context.Background(), created.ID, custody.ActionUpload, "alice", nil)
	require.NoError(t, err)
	return created
}

// signedFile writes a detached signature for d and returns its path.
func (f *fixture) signedFile(t *testing.T, d string, corrupt bool) string {
	t.Helper()
	sig, err := f.signer.Sign(d)
	require.NoError(t, err)
	if corrupt {
		sig[0] ^= 0xff
	}
	path := filepath.Join(f.dir, "artifact.sig")
	require.NoError(t, os.WriteFile(path, sig, 0644))
	return path
}

func TestComplete_HashAndCustodyOnlyScores70(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "original content", nil)
	ctx := context.Background()

	verdict, err := f.engine(stubAnchors{}).Complete(ctx, rec.ID)
	require.NoError(t, err)

	assert.True(t, verdict.OverallValid)
	assert.Equal(t, 70, verdict.ConfidenceScore)
	assert.True(t, verdict.Hash.IsValid)
	assert.Nil(t, verdict.Signature)
	assert.Nil(t, verdict.Timestamp)
	assert.True(t, verdict.Custody.IsValid)

	// Exactly one VERIFICATION entry appended, after the UPLOAD
	chain, err := f.ledger.ChainFor(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, custody.ActionUpload, chain[0].Action)
	assert.Equal(t, custody.ActionVerification, chain[1].Action)
	assert.Equal(t, custody.SystemActor, chain[1].Actor)
}

func TestComplete_ValidSignatureScores90(t *testing.T) {
	f := newFixture(t)
	d := digest.Buffer([]byte("signed content"))
	rec := f.ingest(t, "signed content", func(r *evidence.Record) {
		r.SignatureFile = f.signedFile(t, d, false)
		r.PublicKey = f.signer.PublicKeyPEM()
	})

	verdict, err := f.engine(stubAnchors{}).Complete(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.True(t, verdict.OverallValid)
	assert.Equal(t, 90, verdict.ConfidenceScore)
	require.NotNil(t, verdict.Signature)
	assert.True(t, verdict.Signature.IsValid)
	require.NotNil(t, verdict.Signature.KeyInfo)
	assert.Equal(t, "Ed25519", verdict.Signature.KeyInfo.Algorithm)
}

func TestComplete_ValidTimestampOnTopScores100(t *testing.T) {
	f := newFixture(t)
	d := digest.Buffer([]byte("anchored content"))
	proofRef := filepath.Join(f.dir, "artifact.proof.json")
	require.NoError(t, os.WriteFile(proofRef, []byte("{}"), 0644))
	rec := f.ingest(t, "anchored content", func(r *evidence.Record) {
		r.SignatureFile = f.signedFile(t, d, false)
		r.PublicKey = f.signer.PublicKeyPEM()
		r.TimestampFile = proofRef
	})

	anchors := stubAnchors{result: anchor.Result{
		IsValid:      true,
		AnchorTime:   time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC),
		AnchorHeight: 830000,
	}}

	verdict, err := f.engine(anchors).Complete(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.True(t, verdict.OverallValid)
	assert.Equal(t, 100, verdict.ConfidenceScore)
	require.NotNil(t, verdict.Timestamp)
	assert.True(t, verdict.Timestamp.IsValid)
	assert.Equal(t, int64(830000), verdict.Timestamp.AnchorHeight)
	assert.Contains(t, verdict.Summary, "Excellent")
}

func TestComplete_BrokenSignatureScores60AndInvalidates(t *testing.T) {
	f := newFixture(t)
	d := digest.Buffer([]byte("tampered signature"))
	rec := f.ingest(t, "tampered signature", func(r *evidence.Record) {
		r.SignatureFile = f.signedFile(t, d, true)
		r.PublicKey = f.signer.PublicKeyPEM()
	})

	verdict, err := f.engine(stubAnchors{}).Complete(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.False(t, verdict.OverallValid)
	assert.Equal(t, 60, verdict.ConfidenceScore)
	require.NotNil(t, verdict.Signature)
	assert.False(t, verdict.Signature.IsValid)
}

func TestComplete_AlteredContentInvalidates(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "original content", nil)

	require.NoError(t, os.WriteFile(rec.Path, []byte("altered content"), 0644))

	verdict, err := f.engine(stubAnchors{}).Complete(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.False(t, verdict.OverallValid)
	assert.False(t, verdict.Hash.IsValid)
	assert.NotEqual(t, verdict.Hash.StoredDigest, verdict.Hash.CalculatedDigest)
	// 0 for hash, 30 for the still-clean custody chain
	assert.Equal(t, 30, verdict.ConfidenceScore)
	assert.Contains(t, verdict.Recommendations, "CRITICAL: file content has been modified - digest mismatch")
}

func TestComplete_UnreadableContentStillYieldsVerdict(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "soon to vanish", nil)

	require.NoError(t, os.Remove(rec.Path))

	verdict, err := f.engine(stubAnchors{}).Complete(context.Background(), rec.ID)
	require.NoError(t, err, "infrastructure failure must degrade, not abort")

	assert.False(t, verdict.OverallValid)
	assert.False(t, verdict.Hash.IsValid)
	assert.Contains(t, verdict.Hash.Message, "content unavailable")
}

func TestComplete_UnknownEvidence(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine(stubAnchors{}).Complete(context.Background(), "ev_missing")
	assert.ErrorIs(t, err, evidence.ErrNotFound)
}

func TestComplete_PendingTimestampDoesNotInvalidate(t *testing.T) {
	f := newFixture(t)
	proofRef := filepath.Join(f.dir, "pending.proof.json")
	require.NoError(t, os.WriteFile(proofRef, []byte("{}"), 0644))
	rec := f.ingest(t, "pending anchor", func(r *evidence.Record) {
		r.TimestampFile = proofRef
	})

	anchors := stubAnchors{result: anchor.Result{Error: "timestamp not yet confirmed by calendar"}}

	verdict, err := f.engine(anchors).Complete(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.True(t, verdict.OverallValid)
	assert.Equal(t, 70, verdict.ConfidenceScore)
	require.NotNil(t, verdict.Timestamp)
	assert.False(t, verdict.Timestamp.IsValid)
	assert.Contains(t, verdict.Timestamp.Error, "not yet confirmed")
}

func TestQuick(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "quick content", nil)
	ctx := context.Background()

	result, err := f.engine(stubAnchors{}).Quick(ctx, rec.ID)
	require.NoError(t, err)

	assert.True(t, result.IsIntact)
	assert.True(t, result.HashMatches)
	assert.Equal(t, rec.Digest, result.FileHash)

	// A bare hash recheck is recorded as INTEGRITY_CHECK
	chain, err := f.ledger.ChainFor(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, custody.ActionIntegrityCheck, chain[1].Action)
}

func TestQuick_ModifiedFile(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "quick content", nil)
	require.NoError(t, os.WriteFile(rec.Path, []byte("changed"), 0644))

	result, err := f.engine(stubAnchors{}).Quick(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.False(t, result.IsIntact)
	assert.Contains(t, result.Message, "modified")
}

func TestQuick_UnknownEvidence(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine(stubAnchors{}).Quick(context.Background(), "ev_missing")
	assert.ErrorIs(t, err, evidence.ErrNotFound)
}

func TestCheckFile_MatchIntact(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "shared content", nil)

	supplied := filepath.Join(f.dir, "supplied.bin")
	require.NoError(t, os.WriteFile(supplied, []byte("shared content"), 0644))

	result, err := f.engine(stubAnchors{}).CheckFile(context.Background(), supplied)
	require.NoError(t, err)

	assert.True(t, result.IsIntact)
	assert.True(t, result.HashMatches)
	assert.Equal(t, rec.Digest, result.FileHash)
}

func TestCheckFile_StoredOriginalAltered(t *testing.T) {
	f := newFixture(t)
	rec := f.ingest(t, "shared content", nil)

	supplied := filepath.Join(f.dir, "supplied.bin")
	require.NoError(t, os.WriteFile(supplied, []byte("shared content"), 0644))
	// The stored original drifts after ingest
	require.NoError(t, os.WriteFile(rec.Path, []byte("drifted"), 0644))

	result, err := f.engine(stubAnchors{}).CheckFile(context.Background(), supplied)
	require.NoError(t, err)

	assert.False(t, result.IsIntact)
	assert.True(t, result.HashMatches, "the supplied content does match a record")
	assert.Contains(t, result.Message, "stored original has been modified")
}

func TestCheckFile_UnknownContent(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, "known content", nil)

	supplied := filepath.Join(f.dir, "supplied.bin")
	require.NoError(t, os.WriteFile(supplied, []byte("unknown content"), 0644))

	result, err := f.engine(stubAnchors{}).CheckFile(context.Background(), supplied)
	require.NoError(t, err)

	assert.False(t, result.IsIntact)
	assert.False(t, result.HashMatches)
	assert.Contains(t, result.Message, "not found")
}

func TestCheckFile_UnreadableSuppliedFile(t *testing.T) {
	f := newFixture(t)

	result, err := f.engine(stubAnchors{}).CheckFile(context.Background(), filepath.Join(f.dir, "missing.bin"))
	require.NoError(t, err)

	assert.False(t, result.IsIntact)
	assert.Contains(t, result.Message, "verification error")
}
