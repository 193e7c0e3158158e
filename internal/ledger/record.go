// Package ledger records fingerprinted chaos runs so they can be looked up,
// verified and replayed later.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"conversation-chaos/internal/chaos"
	"conversation-chaos/internal/conversation"
)

// Record is everything needed to reproduce a run except the conversation
// itself, which is identified by its digest.
type Record struct {
	Fingerprint    string                `json:"fingerprint"`
	RunID          string                `json:"runId"`
	Seed           int64                 `json:"seed"`
	Configurations []chaos.Configuration `json:"configurations"`
	Statistics     chaos.Statistics      `json:"statistics"`
	InputDigest    string                `json:"inputDigest"`
	MessageCount   int                   `json:"messageCount"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// NewRecord builds the ledger record of an outcome produced from conv and
// configs.
func NewRecord(conv *conversation.Conversation, outcome *chaos.Outcome, configs []chaos.Configuration) (*Record, error) {
	if conv == nil || outcome == nil {
		return nil, errors.New("ledger: conversation and outcome are required")
	}
	digest, err := conversation.Digest(conv)
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []chaos.Configuration{}
	}

	return &Record{
		Fingerprint:    outcome.Result.Fingerprint,
		RunID:          outcome.RunID,
		Seed:           outcome.Result.Seed,
		Configurations: configs,
		Statistics:     outcome.Result.Statistics,
		InputDigest:    digest,
		MessageCount:   len(conv.Messages),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (r *Record) validate() error {
	if r == nil {
		return errors.New("ledger: nil record")
	}
	if r.Fingerprint == "" {
		return fmt.Errorf("ledger: record %q has no fingerprint", r.RunID)
	}
	return nil
}
