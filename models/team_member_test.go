package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVitalsClamp(t *testing.T) {
	v := Vitals{Happiness: 130, Health: 3, Energy: -4, Hunger: 100}.Clamp(10)
	assert.Equal(t, Vitals{Happiness: 100, Health: 10, Energy: 0, Hunger: 100}, v)
	assert.Equal(t, 52.5, Vitals{Happiness: 10, Health: 100, Energy: 50, Hunger: 50}.Mean())
}

func TestNewTeamMember(t *testing.T) {
	sp := Species{ID: 7, Name: "squirtle"}
	m := NewTeamMember("u1", sp)
	require.NotEmpty(t, m.ID)
	assert.Equal(t, AdoptionVitals, m.Vitals)
	assert.Equal(t, 7, m.PokemonID)
	assert.Equal(t, sp, m.Species())
	assert.NotEqual(t, m.ID, NewTeamMember("u1", sp).ID)
}

func TestMemberPatch(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	points := 0
	next := Species{ID: 8, Name: "wartortle"}
	patch := MemberPatch{ActivityPoints: &points, Species: &next, MegaEvolved: true}

	m := NewTeamMember("u1", Species{ID: 7, Name: "squirtle"})
	m.ActivityPoints = 45
	patch.Apply(m, now)
	assert.Equal(t, 8, m.PokemonID)
	assert.Equal(t, "wartortle", m.PokemonName)
	assert.Zero(t, m.ActivityPoints)
	assert.True(t, m.IsMegaEvolved)
	assert.Equal(t, AdoptionVitals, m.Vitals)
	assert.Equal(t, now, m.UpdatedAt)

	cols := patch.Columns(now)
	assert.Equal(t, 8, cols["pokemon_id"])
	assert.Equal(t, 0, cols["activity_points"])
	assert.Equal(t, true, cols["is_mega_evolved"])
	assert.Equal(t, now, cols["updated_at"])
	assert.NotContains(t, cols, "hunger")
	assert.NotContains(t, cols, "total_actions")
}

func TestNamedResourceID(t *testing.T) {
	assert.Equal(t, 2, NamedResource{URL: "https://pokeapi.co/api/v2/pokemon-species/2/"}.ID())
	assert.Equal(t, 133, NamedResource{URL: "/pokemon-species/133"}.ID())
	assert.Zero(t, NamedResource{URL: "https://pokeapi.co/api/v2/pokemon-species/eevee/"}.ID())
	assert.Zero(t, NamedResource{}.ID())
}

func TestEvolutionChainNext(t *testing.T) {
	chain := &EvolutionChain{Chain: ChainLink{
		Species: NamedResource{Name: "eevee"},
		EvolvesTo: []ChainLink{
			{Species: NamedResource{Name: "vaporeon"}},
			{Species: NamedResource{Name: "jolteon"}},
		},
	}}
	next := chain.Next("eevee")
	require.NotNil(t, next)
	assert.Equal(t, "vaporeon", next.Species.Name)
	assert.Nil(t, chain.Next("jolteon"))
	assert.Nil(t, chain.Next("pikachu"))
	assert.Equal(t, 2, chain.Depth())

	var missing *EvolutionChain
	assert.Nil(t, missing.Next("eevee"))
	assert.Zero(t, missing.Depth())
}

func TestResolveAnimatedSprite(t *testing.T) {
	var sp Species
	sp.Sprites.FrontDefault = "front.png"
	sp.ResolveAnimatedSprite()
	assert.Equal(t, "front.png", sp.AnimatedSprite)

	sp.Sprites.Versions.GenerationV.BlackWhite.Animated.FrontDefault = "anim.gif"
	sp.ResolveAnimatedSprite()
	assert.Equal(t, "anim.gif", sp.AnimatedSprite)
}

func TestEvolutionChain_Stage(t *testing.T) {
	chain := &EvolutionChain{Chain: ChainLink{
		Species: NamedResource{Name: "eevee"},
		EvolvesTo: []ChainLink{
			{Species: NamedResource{Name: "vaporeon"}},
			{Species: NamedResource{Name: "jolteon"}},
		},
	}}
	assert.Equal(t, 1, chain.Stage("eevee"))
	assert.Equal(t, 2, chain.Stage("jolteon"))
	assert.Zero(t, chain.Stage("pikachu"))
	assert.Equal(t, 2, chain.Depth())

	var missing *EvolutionChain
	assert.Zero(t, missing.Stage("eevee"))
}
