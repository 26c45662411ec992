package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/conquest/internal/game"
)

func TestLoadRulesEmptyPathUsesDefaults(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, game.DefaultPolicy(), rules.Policy)
	assert.Equal(t, game.DefaultCatalog(), rules.Missions)
}

func TestLoadRulesOverridesPolicyAndCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
policy:
  leveling: smooth
  smooth_divisor: 100
  protection_window: 12h
  daily_mission_count: 1
missions:
  - key: long_ride
    title: Long Ride
    description: Ride 40 km
    target_value: 40
    xp_reward: 300
    icon: Bike
    category: distance
`), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, game.LevelingSmooth, rules.Policy.Leveling)
	assert.Equal(t, 12*time.Hour, rules.Policy.ProtectionWindow)
	assert.Equal(t, 1, rules.Policy.DailyMissionCount)
	assert.Equal(t, 10.0, rules.Policy.XPPerKm, "unspecified keys keep their defaults")
	require.Len(t, rules.Missions, 1)
	assert.Equal(t, game.MissionDistance, rules.Missions[0].Category)
}

func TestParseRulesRejectsInvalidConfigurations(t *testing.T) {
	cases := map[string]string{
		"unknown field":    "policy:\n  xp_per_mile: 3\n",
		"bad leveling":     "policy:\n  leveling: exponential\n",
		"negative xp":      "policy:\n  xp_per_km: -1\n",
		"too few missions": "policy:\n  daily_mission_count: 2\nmissions:\n  - {key: a, title: A, target_value: 1, xp_reward: 10, category: time}\n",
		"duplicate keys":   "policy:\n  daily_mission_count: 1\nmissions:\n  - {key: a, title: A, target_value: 1, xp_reward: 10, category: time}\n  - {key: a, title: B, target_value: 2, xp_reward: 10, category: time}\n",
		"unknown category": "policy:\n  daily_mission_count: 1\nmissions:\n  - {key: a, title: A, target_value: 1, xp_reward: 10, category: swim}\n",
		"zero target":      "policy:\n  daily_mission_count: 1\nmissions:\n  - {key: a, title: A, target_value: 0, xp_reward: 10, category: speed}\n",
		"zero reward":      "policy:\n  daily_mission_count: 1\nmissions:\n  - {key: a, title: A, target_value: 1, xp_reward: 0, category: speed}\n",
		"missing reward":   "policy:\n  daily_mission_count: 1\nmissions:\n  - {key: a, title: A, target_value: 1, category: speed}\n",
		"huge reward":      "policy:\n  daily_mission_count: 1\nmissions:\n  - {key: a, title: A, target_value: 1, xp_reward: 9999999999, category: speed}\n",
		"malformed yaml":   "policy: [",
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestParseRulesEmptyDocumentIsDefault(t *testing.T) {
	rules, err := ParseRules(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)
}

func TestLoadRulesMissingFile(t *testing.T) {
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read rules file")
}
