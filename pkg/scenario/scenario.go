// Package scenario loads a scripted sequence of simulated device triggers
// (button presses, recognized utterances, downlink payloads) from a file,
// grounded on the teacher CLI's LoadRequest/ParseRequest: sniff the file
// extension for YAML or JSON, falling back to trying both when the
// extension is absent or unrecognized.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Step is one scripted action, fired After its predecessor completes.
type Step struct {
	After time.Duration `yaml:"after" json:"after"`

	// Action names what to do: "toggle_chat", "say", or "downlink".
	Action string `yaml:"action" json:"action"`

	// Text is the recognized utterance for Action == "say".
	Text string `yaml:"text,omitempty" json:"text,omitempty"`

	// Payload is the raw JSON downlink body for Action == "downlink".
	Payload json.RawMessage `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Scenario is an ordered list of steps.
type Scenario struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Load reads and parses a scenario file from path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes data as a Scenario, choosing YAML or JSON by filename's
// extension and falling back to trying both when the extension doesn't
// say, matching durations given in YAML as plain strings ("1s500ms").
func Parse(data []byte, filename string) (*Scenario, error) {
	var raw struct {
		Steps []struct {
			After   string `yaml:"after" json:"after"`
			Action  string `yaml:"action" json:"action"`
			Text    string `yaml:"text,omitempty" json:"text,omitempty"`
			Payload any    `yaml:"payload,omitempty" json:"payload,omitempty"`
		} `yaml:"steps" json:"steps"`
	}

	ext := strings.ToLower(filepath.Ext(filename))
	var decodeErr error
	switch ext {
	case ".yaml", ".yml":
		decodeErr = yaml.Unmarshal(data, &raw)
	case ".json":
		decodeErr = json.Unmarshal(data, &raw)
	default:
		decodeErr = yaml.Unmarshal(data, &raw)
		if decodeErr != nil {
			decodeErr = json.Unmarshal(data, &raw)
		}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("scenario: parse %s: %w", filename, decodeErr)
	}

	sc := &Scenario{Steps: make([]Step, 0, len(raw.Steps))}
	for i, s := range raw.Steps {
		d, err := time.ParseDuration(s.After)
		if err != nil {
			if s.After != "" {
				return nil, fmt.Errorf("scenario: step %d: invalid after duration %q: %w", i, s.After, err)
			}
		}
		var payload json.RawMessage
		switch p := s.Payload.(type) {
		case nil:
		case string:
			payload = json.RawMessage(p)
		default:
			b, err := json.Marshal(p)
			if err != nil {
				return nil, fmt.Errorf("scenario: step %d: invalid payload: %w", i, err)
			}
			payload = b
		}
		sc.Steps = append(sc.Steps, Step{After: d, Action: s.Action, Text: s.Text, Payload: payload})
	}
	return sc, nil
}
