package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pushchain/credential-anchor/anchorClient/common"
	"github.com/pushchain/credential-anchor/anchorClient/metrics"
)

var (
	ErrAlreadyVerified   = errors.New("record is already verified")
	ErrAlreadyPending    = errors.New("record already has a pending verification request")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrReasonRequired    = errors.New("a reason is required")
	ErrNotAnchored       = errors.New("record has no successful anchor receipt")
	ErrNotExpired        = errors.New("record has not reached its expiry date")
	ErrRecordIDRequired  = errors.New("record id is required")
)

// AttemptJournal persists a transition. It must store the attempt and the
// new status together or not at all.
type AttemptJournal interface {
	RecordTransition(ctx context.Context, recordID string, attempt Attempt, status Status) error
}

// Outcome describes the effect of a transition.
type Outcome struct {
	Status  Status
	Attempt *Attempt
	// Warning is set when the call was accepted as a no-op.
	Warning string
}

// ReverifyResult compares the current projection hash with the anchored one.
type ReverifyResult struct {
	HashMatches  bool   `json:"hash_matches"`
	CurrentHash  string `json:"current_hash"`
	AnchoredHash string `json:"anchored_hash"`
}

// Machine applies status transitions to records. Transitions on the same
// record id are serialized.
type Machine struct {
	journal AttemptJournal
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*recordLock
}

// Option configures a Machine.
type Option func(*Machine)

// WithJournal persists every attempt before the record changes in memory.
func WithJournal(j AttemptJournal) Option {
	return func(m *Machine) { m.journal = j }
}

// WithMetrics counts reverification outcomes.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a Machine.
func NewMachine(logger zerolog.Logger, opts ...Option) *Machine {
	m := &Machine{
		logger: logger.With().Str("component", "verification").Logger(),
		now:    time.Now,
		locks:  make(map[string]*recordLock),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// recordLock serializes transitions of one record. refs counts holders and
// waiters so the entry can be dropped once nobody needs it.
type recordLock struct {
	sync.Mutex
	refs int
}

func (m *Machine) lock(rec *Record) (func(), error) {
	if rec == nil || rec.ID == "" {
		return nil, ErrRecordIDRequired
	}
	id := rec.ID

	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &recordLock{}
		m.locks[id] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, id)
		}
		m.mu.Unlock()
	}, nil
}

func actorOrSystem(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return SystemActor
	}
	return actor
}

// commit persists the attempt and then applies it to the record. The record
// is left untouched if the journal write fails.
func (m *Machine) commit(ctx context.Context, rec *Record, attempt Attempt, next Status, mutate func()) (*Attempt, error) {
	if m.journal != nil {
		if err := m.journal.RecordTransition(ctx, rec.ID, attempt, next); err != nil {
			return nil, fmt.Errorf("journal transition for record %s: %w", rec.ID, err)
		}
	}

	prev := rec.Status
	rec.Attempts = append(rec.Attempts, attempt)
	rec.Status = next
	rec.UpdatedAt = attempt.Timestamp
	if mutate != nil {
		mutate()
	}

	m.logger.Info().
		Str("record_id", rec.ID).
		Str("from", string(prev)).
		Str("to", string(next)).
		Str("actor", attempt.Actor).
		Str("attempt_id", attempt.ID.String()).
		Msg("verification status changed")
	return &rec.Attempts[len(rec.Attempts)-1], nil
}

func (m *Machine) newAttempt(actor string, result AttemptResult, reason string, data map[string]interface{}) Attempt {
	return Attempt{
		ID:        uuid.New(),
		Timestamp: m.now().UTC(),
		Actor:     actorOrSystem(actor),
		Result:    result,
		Reason:    reason,
		Data:      data,
	}
}

// RequestVerification opens a verification request. Allowed from unset and
// from rejected, which lets an issuer resubmit after fixing the record.
func (m *Machine) RequestVerification(ctx context.Context, rec *Record, requestedBy string) (*Outcome, error) {
	unlock, err := m.lock(rec)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch rec.Status {
	case StatusUnset, StatusRejected:
	case StatusPending:
		return nil, ErrAlreadyPending
	case StatusVerified:
		return nil, ErrAlreadyVerified
	default:
		return nil, fmt.Errorf("%w: cannot request verification from %q", ErrInvalidTransition, rec.Status)
	}

	attempt, err := m.commit(ctx, rec, m.newAttempt(requestedBy, ResultPending, "", nil), StatusPending, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: rec.Status, Attempt: attempt}, nil
}

// Approve moves a pending record to verified. Approving a verified record is
// a no-op reported through Outcome.Warning.
func (m *Machine) Approve(ctx context.Context, rec *Record, verifier string, data map[string]interface{}) (*Outcome, error) {
	unlock, err := m.lock(rec)
	if err != nil {
		return nil, err
	}
	defer unlock()

	switch rec.Status {
	case StatusPending:
	case StatusVerified:
		m.logger.Warn().Str("record_id", rec.ID).Str("verifier", verifier).Msg("approve on verified record ignored")
		return &Outcome{Status: rec.Status, Warning: ErrAlreadyVerified.Error()}, nil
	default:
		return nil, fmt.Errorf("%w: cannot approve from %q", ErrInvalidTransition, rec.Status)
	}

	attempt := m.newAttempt(verifier, ResultApproved, "", data)
	stamped, err := m.commit(ctx, rec, attempt, StatusVerified, func() {
		at := attempt.Timestamp
		rec.VerifiedAt = &at
		rec.VerifiedBy = attempt.Actor
	})
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: rec.Status, Attempt: stamped}, nil
}

// Reject moves a pending record to rejected. The reason is mandatory.
func (m *Machine) Reject(ctx context.Context, rec *Record, verifier, reason string) (*Outcome, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	unlock, err := m.lock(rec)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if rec.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot reject from %q", ErrInvalidTransition, rec.Status)
	}

	attempt, err := m.commit(ctx, rec, m.newAttempt(verifier, ResultRejected, reason, nil), StatusRejected, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: rec.Status, Attempt: attempt}, nil
}

// Revoke withdraws a verified record. The transition is terminal.
func (m *Machine) Revoke(ctx context.Context, rec *Record, actor, reason string, data map[string]interface{}) (*Outcome, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrReasonRequired
	}
	unlock, err := m.lock(rec)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if rec.Status != StatusVerified {
		return nil, fmt.Errorf("%w: cannot revoke from %q", ErrInvalidTransition, rec.Status)
	}

	attempt, err := m.commit(ctx, rec, m.newAttempt(actor, ResultRevoked, reason, data), StatusRevoked, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: rec.Status, Attempt: attempt}, nil
}

// Expire marks a verified record expired once now reaches its expiry date.
func (m *Machine) Expire(ctx context.Context, rec *Record, now time.Time) (*Outcome, error) {
	unlock, err := m.lock(rec)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if rec.Status != StatusVerified {
		return nil, fmt.Errorf("%w: cannot expire from %q", ErrInvalidTransition, rec.Status)
	}
	if rec.ExpiryDate == nil || now.Before(*rec.ExpiryDate) {
		return nil, ErrNotExpired
	}

	attempt := m.newAttempt(SystemActor, ResultExpired, "expiry date reached", map[string]interface{}{
		"expiry_date": formatTime(*rec.ExpiryDate),
	})
	stamped, err := m.commit(ctx, rec, attempt, StatusExpired, nil)
	if err != nil {
		return nil, err
	}
	return &Outcome{Status: rec.Status, Attempt: stamped}, nil
}

// LinkAnchorReceipt attaches a successful receipt to the record. Status is
// not changed.
func (m *Machine) LinkAnchorReceipt(rec *Record, receipt *common.AnchorReceipt) error {
	if !receipt.Succeeded() {
		return fmt.Errorf("%w: receipt status is not success", ErrNotAnchored)
	}
	unlock, err := m.lock(rec)
	if err != nil {
		return err
	}
	defer unlock()

	linked := *receipt
	if linked.RecordID == "" {
		linked.RecordID = rec.ID
	}
	rec.Anchor = &linked
	rec.UpdatedAt = m.now().UTC()

	m.logger.Debug().
		Str("record_id", rec.ID).
		Str("tx_hash", linked.TransactionHash).
		Uint64("block", linked.BlockNumber).
		Msg("anchor receipt linked")
	return nil
}

// Reverify recomputes the content hash and compares it with the hash
// captured when the record was anchored.
func (m *Machine) Reverify(rec *Record) (*ReverifyResult, error) {
	unlock, err := m.lock(rec)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !rec.Anchor.Succeeded() || rec.Anchor.ContentHash == "" {
		return nil, ErrNotAnchored
	}

	current, err := rec.ContentHash()
	if err != nil {
		return nil, err
	}

	res := &ReverifyResult{
		CurrentHash:  current,
		AnchoredHash: rec.Anchor.ContentHash,
		HashMatches:  current == rec.Anchor.ContentHash,
	}
	m.metrics.Reverified(res.HashMatches)

	if !res.HashMatches {
		m.logger.Warn().
			Str("record_id", rec.ID).
			Str("current_hash", res.CurrentHash).
			Str("anchored_hash", res.AnchoredHash).
			Str("tx_hash", rec.Anchor.TransactionHash).
			Msg("record content does not match anchored hash")
	}
	return res, nil
}
