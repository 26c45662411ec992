package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/conquest/internal/game"
)

// Rules is the tunable game configuration loaded from GAME_RULES_PATH.
type Rules struct {
	Policy   game.Policy            `yaml:"policy"`
	Missions []game.MissionTemplate `yaml:"missions"`
}

// DefaultRules returns the built-in policy and mission catalog.
func DefaultRules() Rules {
	return Rules{Policy: game.DefaultPolicy(), Missions: game.DefaultCatalog()}
}

// LoadRules reads a YAML rules file. Keys missing from the policy section keep
// their defaults; a missions section replaces the whole catalog. An empty
// path yields DefaultRules.
func LoadRules(path string) (Rules, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates rules YAML.
func ParseRules(data []byte) (Rules, error) {
	rules := Rules{Policy: game.DefaultPolicy()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("failed to parse rules YAML: %w", err)
	}
	if len(rules.Missions) == 0 {
		rules.Missions = game.DefaultCatalog()
	}

	if err := NewValidator().Validate(&rules); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

// Validator checks the business rules of a Rules value before the service starts.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate returns the first problem found in rules.
func (v *Validator) Validate(rules *Rules) error {
	if err := rules.Policy.Validate(); err != nil {
		return err
	}
	if len(rules.Missions) < rules.Policy.DailyMissionCount {
		return fmt.Errorf("mission catalog has %d entries, fewer than daily_mission_count %d", len(rules.Missions), rules.Policy.DailyMissionCount)
	}

	keys := make(map[string]bool, len(rules.Missions))
	for _, m := range rules.Missions {
		if err := v.validateMission(m); err != nil {
			return fmt.Errorf("invalid mission '%s': %w", m.Key, err)
		}
		if keys[m.Key] {
			return fmt.Errorf("duplicate mission key: %s", m.Key)
		}
		keys[m.Key] = true
	}
	return nil
}

func (v *Validator) validateMission(m game.MissionTemplate) error {
	if strings.TrimSpace(m.Key) == "" {
		return errors.New("key cannot be empty")
	}
	if strings.TrimSpace(m.Title) == "" {
		return errors.New("title cannot be empty")
	}
	if !m.Category.IsValid() {
		return fmt.Errorf("unknown category %q", m.Category)
	}
	if m.TargetValue <= 0 {
		return errors.New("target_value must be positive")
	}
	if m.XPReward <= 0 || m.XPReward > game.MaxAward {
		return fmt.Errorf("xp_reward must be in [1, %d]", game.MaxAward)
	}
	return nil
}
