// Package verification governs the lifecycle of a verifiable record and
// keeps its append-only attempt log.
package verification

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pushchain/credential-anchor/anchorClient/canonical"
	"github.com/pushchain/credential-anchor/anchorClient/common"
)

// Kind distinguishes the two record families the engine anchors.
type Kind string

const (
	KindCredential Kind = "credential"
	KindExperience Kind = "experience"
)

// Status is the single verification state of a record.
type Status string

const (
	// StatusUnset is a record that was never submitted for verification.
	StatusUnset    Status = ""
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
	StatusRejected Status = "rejected"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusUnset, StatusPending, StatusVerified, StatusRejected, StatusRevoked, StatusExpired:
		return true
	}
	return false
}

// AttemptResult is the outcome recorded on an Attempt.
type AttemptResult string

const (
	ResultPending  AttemptResult = "pending"
	ResultApproved AttemptResult = "approved"
	ResultRejected AttemptResult = "rejected"
	ResultRevoked  AttemptResult = "revoked"
	ResultExpired  AttemptResult = "expired"
)

// SystemActor is recorded when a transition has no human actor.
const SystemActor = "system"

// Attempt is one entry of the audit trail. Attempts are appended, never
// edited or removed.
type Attempt struct {
	ID        uuid.UUID              `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Actor     string                 `json:"actor"`
	Result    AttemptResult          `json:"result"`
	Reason    string                 `json:"reason,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Record is the credential or experience being anchored. The business layer
// owns it; the engine only reads its projection and drives Status.
type Record struct {
	ID            string                `json:"id"`
	Kind          Kind                  `json:"kind"`
	Issuer        string                `json:"issuer"`
	Subject       string                `json:"subject"`
	Title         string                `json:"title"`
	Organization  string                `json:"organization,omitempty"`
	Type          string                `json:"type,omitempty"`
	IssueDate     time.Time             `json:"issue_date"`
	ExpiryDate    *time.Time            `json:"expiry_date,omitempty"`
	Status        Status                `json:"status"`
	VerifiedAt    *time.Time            `json:"verified_at,omitempty"`
	VerifiedBy    string                `json:"verified_by,omitempty"`
	LinkedRecords []string              `json:"linked_records,omitempty"`
	Attempts      []Attempt             `json:"attempts,omitempty"`
	Anchor        *common.AnchorReceipt `json:"anchor,omitempty"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// ProjectionOption adjusts which fields a projection carries.
type ProjectionOption func(*projectionOptions)

type projectionOptions struct {
	verificationState bool
}

// WithVerificationState includes status and verified_at in the projection.
// A hash taken this way changes on every status transition.
func WithVerificationState() ProjectionOption {
	return func(o *projectionOptions) { o.verificationState = true }
}

// Projection returns the tamper-evident fields of the record as a plain map.
// UpdatedAt, the attempt log and the anchor receipt are never included.
func (r *Record) Projection(opts ...ProjectionOption) map[string]interface{} {
	var o projectionOptions
	for _, opt := range opts {
		opt(&o)
	}

	p := map[string]interface{}{
		"id":           r.ID,
		"kind":         string(r.Kind),
		"issuer":       r.Issuer,
		"subject":      r.Subject,
		"title":        r.Title,
		"organization": r.Organization,
		"type":         r.Type,
		"issue_date":   formatTime(r.IssueDate),
	}
	if r.ExpiryDate != nil {
		p["expiry_date"] = formatTime(*r.ExpiryDate)
	}

	linked := append([]string(nil), r.LinkedRecords...)
	sort.Strings(linked)
	if linked == nil {
		linked = []string{}
	}
	p["linked_records"] = linked

	if o.verificationState {
		p["status"] = string(r.Status)
		if r.VerifiedAt != nil {
			p["verified_at"] = formatTime(*r.VerifiedAt)
		}
	}
	return p
}

// ContentHash hashes the record's projection.
func (r *Record) ContentHash(opts ...ProjectionOption) (string, error) {
	return canonical.Hash(r.Projection(opts...))
}

// AnchorID derives the idempotency key of the record.
func (r *Record) AnchorID() common.AnchorID {
	return canonical.DeriveID(r.Issuer, r.Subject, r.Title, r.IssueDate.Unix())
}

// LatestAttempt returns the most recent attempt or nil.
func (r *Record) LatestAttempt() *Attempt {
	if len(r.Attempts) == 0 {
		return nil
	}
	return &r.Attempts[len(r.Attempts)-1]
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
