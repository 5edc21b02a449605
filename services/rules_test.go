package services

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredPoints(t *testing.T) {
	r := DefaultRules()
	cases := map[int]int{
		1:   30,
		20:  30,
		21:  32, // 31.5 rounds up
		25:  38, // 37.5 rounds up
		150: 225,
	}
	for id, want := range cases {
		assert.Equal(t, want, r.RequiredPoints(id), "species %d", id)
	}
}

func TestIsMegaCapable(t *testing.T) {
	r := DefaultRules()
	assert.True(t, r.IsMegaCapable(6))
	assert.True(t, r.IsMegaCapable(719))
	assert.False(t, r.IsMegaCapable(25))
}

func TestParseFoodKind(t *testing.T) {
	k, ok := ParseFoodKind("potion")
	assert.True(t, ok)
	assert.Equal(t, FoodPotion, k)

	_, ok = ParseFoodKind("cake")
	assert.False(t, ok)
}

func TestLoadRules(t *testing.T) {
	r, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRules().MaxTeamSize, r.MaxTeamSize)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_team_size: 3
decay_interval: 10s
food:
  berry: {happiness: 1, health: 2, energy: 0, hunger: 30, activity_points: 5}
`), 0o600))

	r, err = LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 3, r.MaxTeamSize)
	assert.Equal(t, 10*time.Second, r.DecayInterval)
	assert.Equal(t, 30, r.Food[FoodBerry].Hunger)
	assert.Equal(t, 30, r.Food[FoodPotion].Health)
	assert.Equal(t, 85, r.SatisfiedThreshold)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("food:\n  candy: {happiness: -5}\n"), 0o600))
	_, err = LoadRules(bad)
	assert.ErrorContains(t, err, "negative")

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestRulesValidate_RejectsDegenerateEvolutionAndDebounce(t *testing.T) {
	r := DefaultRules()
	r.EvolutionMinPoints = 0
	r.EvolutionPointsPerSpecies = 0
	assert.ErrorContains(t, r.Validate(), "evolution_min_points")

	r = DefaultRules()
	r.EvolutionPointsPerSpecies = -1
	assert.ErrorContains(t, r.Validate(), "evolution_points_per_species")

	r = DefaultRules()
	r.DecayDebounce = -time.Second
	assert.ErrorContains(t, r.Validate(), "decay_debounce")

	path := filepath.Join(t.TempDir(), "zero.yaml")
	require.NoError(t, os.WriteFile(path, []byte("evolution_min_points: 0\nevolution_points_per_species: 0\n"), 0o600))
	_, err := LoadRules(path)
	assert.ErrorContains(t, err, "evolution_min_points")

	assert.NoError(t, DefaultRules().Validate())
}
