package chaos

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configurations travel as {mode, seed?, probability?, parameters} with the
// mode selecting the parameter shape.

type configurationJSON struct {
	Mode        Mode            `json:"mode"`
	Seed        *int64          `json:"seed,omitempty"`
	Probability *float64        `json:"probability,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

func (c Configuration) MarshalJSON() ([]byte, error) {
	if c.Parameters == nil {
		return nil, configErrorf("", "parameters", "are required")
	}
	params, err := json.Marshal(c.Parameters)
	if err != nil {
		return nil, err
	}
	return json.Marshal(configurationJSON{
		Mode:        c.Mode(),
		Seed:        c.Seed,
		Probability: c.Probability,
		Parameters:  params,
	})
}

func (c *Configuration) UnmarshalJSON(data []byte) error {
	var wire configurationJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	params, err := decodeParameters(wire.Mode, func(v interface{}) error {
		if len(wire.Parameters) == 0 {
			return nil
		}
		dec := json.NewDecoder(bytes.NewReader(wire.Parameters))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	})
	if err != nil {
		return err
	}
	*c = Configuration{Seed: wire.Seed, Probability: wire.Probability, Parameters: params}
	return nil
}

type configurationYAML struct {
	Mode        Mode      `yaml:"mode"`
	Seed        *int64    `yaml:"seed,omitempty"`
	Probability *float64  `yaml:"probability,omitempty"`
	Parameters  yaml.Node `yaml:"parameters,omitempty"`
}

func (c Configuration) MarshalYAML() (interface{}, error) {
	if c.Parameters == nil {
		return nil, configErrorf("", "parameters", "are required")
	}
	return struct {
		Mode        Mode       `yaml:"mode"`
		Seed        *int64     `yaml:"seed,omitempty"`
		Probability *float64   `yaml:"probability,omitempty"`
		Parameters  Parameters `yaml:"parameters"`
	}{c.Mode(), c.Seed, c.Probability, c.Parameters}, nil
}

func (c *Configuration) UnmarshalYAML(node *yaml.Node) error {
	var wire configurationYAML
	if err := node.Decode(&wire); err != nil {
		return err
	}
	params, err := decodeParameters(wire.Mode, func(v interface{}) error {
		if wire.Parameters.Kind == 0 {
			return nil
		}
		return wire.Parameters.Decode(v)
	})
	if err != nil {
		return err
	}
	*c = Configuration{Seed: wire.Seed, Probability: wire.Probability, Parameters: params}
	return nil
}

func decodeParameters(mode Mode, decode func(interface{}) error) (Parameters, error) {
	var (
		params Parameters
		err    error
	)
	switch mode {
	case ModeMessageLoss:
		var p MessageLoss
		err = decode(&p)
		params = p
	case ModeDelay:
		var p Delay
		err = decode(&p)
		params = p
	case ModeReorder:
		var p Reorder
		err = decode(&p)
		params = p
	case ModeCorruption:
		var p Corruption
		err = decode(&p)
		params = p
	case ModeAgentFailure:
		var p AgentFailure
		err = decode(&p)
		params = p
	case ModeNetworkPartition:
		var p NetworkPartition
		err = decode(&p)
		params = p
	default:
		return nil, configErrorf(mode, "mode", "unknown mode %q", mode)
	}
	if err != nil {
		return nil, &ConfigurationError{Mode: mode, Field: "parameters", Reason: "cannot be decoded", Err: err}
	}
	return params, nil
}

// Plan is a named, ordered list of configurations as stored in plan files.
type Plan struct {
	Name           string          `json:"name,omitempty" yaml:"name,omitempty"`
	Description    string          `json:"description,omitempty" yaml:"description,omitempty"`
	Configurations []Configuration `json:"configurations" yaml:"configurations"`
}

func (p *Plan) Validate() error {
	if len(p.Configurations) == 0 {
		return configErrorf("", "configurations", "plan %q has none", p.Name)
	}
	return ValidateConfigurations(p.Configurations)
}

// ParsePlan decodes a plan. format is "json" or "yaml".
func ParsePlan(data []byte, format string) (*Plan, error) {
	var plan Plan
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON plan: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML plan: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported plan format: %s", format)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// LoadPlan reads a plan file, choosing the format by extension.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return ParsePlan(data, format)
}
