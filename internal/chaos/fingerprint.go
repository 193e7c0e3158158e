package chaos

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

type fingerprintInput struct {
	Seed           int64           `json:"seed"`
	Configurations []Configuration `json:"configurations"`
	Statistics     Statistics      `json:"statistics"`
}

// Fingerprint hashes the canonical JSON encoding of (seed, configs, stats).
// Two runs with equal fingerprints used the same plan and produced the same
// statistics.
func Fingerprint(seed int64, configs []Configuration, stats Statistics) (string, error) {
	if configs == nil {
		configs = []Configuration{}
	}
	data, err := json.Marshal(fingerprintInput{
		Seed:           seed,
		Configurations: configs,
		Statistics:     stats,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode fingerprint input: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
