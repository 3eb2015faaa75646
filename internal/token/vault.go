package token

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the action a token authorizes. Each kind maps to exactly one
// patient-facing endpoint.
type Kind string

const (
	KindConfirm    Kind = "confirm"
	KindReschedule Kind = "reschedule"
	KindReview     Kind = "review"
)

var (
	ErrNotFound    = errors.New("token not found")
	ErrExpired     = errors.New("token expired")
	ErrAlreadyUsed = errors.New("token already used")
	ErrWrongKind   = errors.New("token bound to a different action kind")
)

// Token is a single-use credential binding one action kind to one appointment.
type Token struct {
	ID            uuid.UUID
	Value         string
	AppointmentID uuid.UUID
	Kind          Kind
	ExpiresAt     time.Time
	Used          bool
	UsedAt        *time.Time
	CreatedAt     time.Time
}

// Store persists tokens. Consume must be an atomic unused→used flip: under
// concurrent calls exactly one succeeds and the rest see ErrAlreadyUsed.
type Store interface {
	Insert(ctx context.Context, t *Token) error
	GetByValue(ctx context.Context, value string) (*Token, error)
	Consume(ctx context.Context, value string, usedAt time.Time) error
}

// Vault issues and checks action tokens. Validation never consumes; the
// caller runs its side effects between Validate and Consume (two-phase). A
// crash in between leaves the token unused and the action replayable, which
// is acceptable because the downstream appointment effects are idempotent.
type Vault struct {
	store Store
}

func NewVault(store Store) *Vault {
	return &Vault{store: store}
}

// Issue generates a cryptographically random token bound to the appointment
// and action kind, valid for ttl.
func (v *Vault) Issue(ctx context.Context, appointmentID uuid.UUID, kind Kind, ttl time.Duration) (*Token, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := time.Now().UTC()
	t := &Token{
		ID:            uuid.New(),
		Value:         hex.EncodeToString(raw),
		AppointmentID: appointmentID,
		Kind:          kind,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}

	if err := v.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	return t, nil
}

// Validate checks a token without consuming it. Expiry and prior use are
// reported as distinct errors so callers can surface distinct reasons.
func (v *Vault) Validate(ctx context.Context, value string) (*Token, error) {
	t, err := v.store.GetByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if t.Used {
		return nil, ErrAlreadyUsed
	}
	if time.Now().UTC().After(t.ExpiresAt) {
		return nil, ErrExpired
	}
	return t, nil
}

// Consume flips the token to used. Safe under replay and double-click: the
// store's compare-and-swap admits exactly one winner.
func (v *Vault) Consume(ctx context.Context, value string) error {
	return v.store.Consume(ctx, value, time.Now().UTC())
}
