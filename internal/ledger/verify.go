package ledger

import (
	"context"
	"errors"

	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/conversation"
)

// Verification compares a stored run with a candidate run.
type Verification struct {
	Fingerprint string `json:"fingerprint"`
	Found       bool   `json:"found"`
	// Reproduced is set when the candidate has the stored fingerprint and was
	// produced from the same input conversation.
	Reproduced bool    `json:"reproduced"`
	SameInput  bool    `json:"sameInput"`
	Stored     *Record `json:"stored,omitempty"`
	Candidate  *Record `json:"candidate,omitempty"`
}

// Verify looks up fingerprint and compares it with candidate. A fingerprint
// that is not in the store yields Found=false and no error.
func Verify(ctx context.Context, store Store, fingerprint string, candidate *Record) (*Verification, error) {
	v := &Verification{Fingerprint: fingerprint, Candidate: candidate}

	stored, err := store.Get(ctx, fingerprint)
	if errors.Is(err, ErrRecordNotFound) {
		return v, nil
	}
	if err != nil {
		return nil, err
	}

	v.Found = true
	v.Stored = stored
	if candidate != nil {
		v.SameInput = candidate.InputDigest == stored.InputDigest
		v.Reproduced = v.SameInput && candidate.Fingerprint == stored.Fingerprint
	}
	return v, nil
}

// Replay reruns the stored plan of fingerprint against conv and verifies the
// result. The recorded seed becomes the injector's default seed, so plans
// whose configurations carry no seed replay exactly as well. Returns
// ErrRecordNotFound when nothing was recorded under fingerprint.
func Replay(ctx context.Context, store Store, fingerprint string, conv conversation.Conversation, opts ...chaos.Option) (*Verification, *chaos.Outcome, error) {
	stored, err := store.Get(ctx, fingerprint)
	if err != nil {
		return nil, nil, err
	}

	opts = append(opts, chaos.WithDefaultSeed(stored.Seed))
	outcome, err := chaos.NewInjector(opts...).Inject(ctx, conv, stored.Configurations)
	if err != nil {
		return nil, nil, err
	}

	candidate, err := NewRecord(&conv, outcome, stored.Configurations)
	if err != nil {
		return nil, nil, err
	}

	v := &Verification{
		Fingerprint: fingerprint,
		Found:       true,
		Stored:      stored,
		Candidate:   candidate,
		SameInput:   candidate.InputDigest == stored.InputDigest,
	}
	v.Reproduced = v.SameInput && candidate.Fingerprint == stored.Fingerprint
	return v, outcome, nil
}
