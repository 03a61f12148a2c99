// Package anchor integrates with an external timestamp calendar to prove
// that a digest existed at or before a point in time.
//
// The calendar protocol is treated as a black box: a digest is submitted,
// the calendar eventually confirms it at some anchor height, and the local
// proof file records what is known so far. A proof that is still pending is
// reported as not valid, never as an error.
package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashguard/hashguard/internal/digest"
	"github.com/hashguard/hashguard/internal/log"
)

// ErrServiceUnavailable is returned when no calendar integration is
// configured. Callers should fall back to CreateLocal.
var ErrServiceUnavailable = errors.New("anchor service unavailable")

// ErrMalformedDigest is returned for digests that are not 64 hex characters.
var ErrMalformedDigest = errors.New("malformed digest")

// LocalSource labels trust-weaker local timestamps so reports can
// distinguish them from externally anchored proofs.
const LocalSource = "LOCAL_SYSTEM"

// Client talks to a timestamp calendar server and manages proof files.
type Client struct {
	baseURL  string
	proofDir string
	timeout  time.Duration
	httpc    *http.Client
}

// NewClient creates an anchor client. An empty calendarURL means no external
// integration is configured; Create and Upgrade then fail with
// ErrServiceUnavailable.
func NewClient(calendarURL, proofDir string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  calendarURL,
		proofDir: proofDir,
		timeout:  timeout,
		httpc:    &http.Client{Timeout: timeout},
	}
}

// Proof is the on-disk anchor proof document.
type Proof struct {
	Digest       string    `json:"digest"`
	Calendar     string    `json:"calendar"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Confirmed    bool      `json:"confirmed"`
	AnchorTime   time.Time `json:"anchor_time,omitzero"`
	AnchorHeight int64     `json:"anchor_height,omitempty"`
}

// Result is the outcome of verifying an anchor proof. A pending or broken
// proof yields IsValid=false with a descriptive Error, never a Go error.
type Result struct {
	IsValid      bool      `json:"is_valid"`
	AnchorTime   time.Time `json:"anchor_time,omitzero"`
	AnchorHeight int64     `json:"anchor_height,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// LocalTimestamp is the always-available fallback when no calendar is
// configured. It proves nothing to third parties and must be clearly
// distinguished from an anchored proof in any report.
type LocalTimestamp struct {
	Digest    string    `json:"digest"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// calendarStatus is the calendar server's wire response.
type calendarStatus struct {
	Status       string    `json:"status"` // "pending" or "confirmed"
	AnchorTime   time.Time `json:"anchor_time,omitzero"`
	AnchorHeight int64     `json:"anchor_height,omitempty"`
}

// IsWellFormedDigest reports whether s is exactly 64 hexadecimal characters.
func IsWellFormedDigest(s string) bool {
	return digest.IsWellFormed(s)
}

// Create submits a digest to the calendar and writes a proof file, returning
// its path. The submission is bounded by the client timeout.
func (c *Client) Create(ctx context.Context, d string) (string, error) {
	if !digest.IsWellFormed(d) {
		return "", fmt.Errorf("%w: %q", ErrMalformedDigest, d)
	}
	if c.baseURL == "" {
		return "", ErrServiceUnavailable
	}

	status, err := c.submit(ctx, d)
	if err != nil {
		return "", fmt.Errorf("submitting digest to calendar: %w", err)
	}

	proof := &Proof{
		Digest:      d,
		Calendar:    c.baseURL,
		SubmittedAt: time.Now().UTC(),
	}
	if status.Status == "confirmed" {
		proof.Confirmed = true
		proof.AnchorTime = status.AnchorTime
		proof.AnchorHeight = status.AnchorHeight
	}

	ref := filepath.Join(c.proofDir, d+".proof.json")
	if err := c.writeProof(ref, proof); err != nil {
		return "", err
	}

	log.Info("anchor proof created", "digest", d, "confirmed", proof.Confirmed)
	return ref, nil
}

// CreateLocal produces a local timestamp for a digest. It is the fallback
// when the calendar integration is unavailable.
func CreateLocal(d string) LocalTimestamp {
	return LocalTimestamp{
		Digest:    d,
		Timestamp: time.Now().UTC(),
		Source:    LocalSource,
	}
}

// Verify checks the proof at ref against the digest. Pending proofs are
// refreshed against the calendar when one is configured; any infrastructure
// failure degrades to IsValid=false with a message. Bounded by the client
// timeout.
func (c *Client) Verify(ctx context.Context, d, ref string) Result {
	if !digest.IsWellFormed(d) {
		return Result{Error: fmt.Sprintf("malformed digest %q", d)}
	}

	proof, err := c.readProof(ref)
	if err != nil {
		return Result{Error: fmt.Sprintf("reading proof: %v", err)}
	}
	if !digest.Equal(proof.Digest, d) {
		return Result{Error: "proof does not match digest"}
	}

	if proof.Confirmed {
		return Result{IsValid: true, AnchorTime: proof.AnchorTime, AnchorHeight: proof.AnchorHeight}
	}

	// Pending proof: ask the calendar whether it has been confirmed since.
	if c.baseURL == "" {
		return Result{Error: "timestamp not yet confirmed and no calendar configured"}
	}

	status, err := c.query(ctx, d)
	if err != nil {
		return Result{Error: fmt.Sprintf("calendar unreachable: %v", err)}
	}
	if status.Status != "confirmed" {
		return Result{Error: "timestamp not yet confirmed by calendar"}
	}

	proof.Confirmed = true
	proof.AnchorTime = status.AnchorTime
	proof.AnchorHeight = status.AnchorHeight
	if err := c.writeProof(ref, proof); err != nil {
		log.Warn("failed to persist upgraded proof", "ref", ref, "error", err)
	}

	return Result{IsValid: true, AnchorTime: proof.AnchorTime, AnchorHeight: proof.AnchorHeight}
}

// Upgrade attempts to strengthen a pending proof. It is idempotent: calling
// it on an already-confirmed proof is a no-op returning false.
func (c *Client) Upgrade(ctx context.Context, ref string) (bool, error) {
	proof, err := c.readProof(ref)
	if err != nil {
		return false, fmt.Errorf("reading proof: %w", err)
	}
	if proof.Confirmed {
		return false, nil
	}
	if c.baseURL == "" {
		return false, ErrServiceUnavailable
	}

	status, err := c.query(ctx, proof.Digest)
	if err != nil {
		return false, fmt.Errorf("querying calendar: %w", err)
	}
	if status.Status != "confirmed" {
		return false, nil
	}

	proof.Confirmed = true
	proof.AnchorTime = status.AnchorTime
	proof.AnchorHeight = status.AnchorHeight
	if err := c.writeProof(ref, proof); err != nil {
		return false, err
	}

	log.Info("anchor proof upgraded", "digest", proof.Digest, "height", proof.AnchorHeight)
	return true, nil
}

// ProofInfo summarizes a proof file.
type ProofInfo struct {
	Digest    string   `json:"digest"`
	Pending   bool     `json:"pending"`
	Calendars []string `json:"calendars"`
	Size      int64    `json:"size"`
}

// Info reads basic information from a proof file.
func (c *Client) Info(ref string) (*ProofInfo, error) {
	proof, err := c.readProof(ref)
	if err != nil {
		return nil, fmt.Errorf("reading proof: %w", err)
	}
	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("reading proof: %w", err)
	}
	return &ProofInfo{
		Digest:    proof.Digest,
		Pending:   !proof.Confirmed,
		Calendars: []string{proof.Calendar},
		Size:      info.Size(),
	}, nil
}

func (c *Client) submit(ctx context.Context, d string) (*calendarStatus, error) {
	body, _ := json.Marshal(map[string]string{"digest": d})
	return c.do(ctx, http.MethodPost, c.baseURL+"/digests", bytes.NewReader(body))
}

func (c *Client) query(ctx context.Context, d string) (*calendarStatus, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/digests/"+d, nil)
}

func (c *Client) do(ctx context.Context, method, url string, body *bytes.Reader) (*calendarStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, url, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar returned %s", resp.Status)
	}

	var status calendarStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decoding calendar response: %w", err)
	}
	return &status, nil
}

func (c *Client) readProof(ref string) (*Proof, error) {
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, err
	}
	var proof Proof
	if err := json.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("parsing proof file: %w", err)
	}
	return &proof, nil
}

func (c *Client) writeProof(ref string, proof *Proof) error {
	if err := os.MkdirAll(filepath.Dir(ref), 0755); err != nil {
		return fmt.Errorf("creating proof directory: %w", err)
	}
	data, err := json.MarshalIndent(proof, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling proof: %w", err)
	}
	if err := os.WriteFile(ref, data, 0644); err != nil {
		return fmt.Errorf("writing proof: %w", err)
	}
	return nil
}
