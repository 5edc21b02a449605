package models

import (
	"strconv"
	"strings"
)

// NamedResource is the PokeAPI {name, url} pointer.
type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ID extracts the trailing numeric id from a resource URL such as
// https://pokeapi.co/api/v2/pokemon-species/2/. It returns 0 when there is none.
func (r NamedResource) ID() int {
	trimmed := strings.TrimSuffix(r.URL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return 0
	}
	id, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil {
		return 0
	}
	return id
}

type SpeciesType struct {
	Slot int           `json:"slot"`
	Type NamedResource `json:"type"`
}

type SpeciesStat struct {
	BaseStat int           `json:"base_stat"`
	Stat     NamedResource `json:"stat"`
}

type AnimatedSprites struct {
	FrontDefault string `json:"front_default,omitempty"`
}

type SpriteVersions struct {
	GenerationV struct {
		BlackWhite struct {
			Animated AnimatedSprites `json:"animated"`
		} `json:"black-white"`
	} `json:"generation-v"`
}

type Sprites struct {
	FrontDefault string         `json:"front_default,omitempty"`
	FrontShiny   string         `json:"front_shiny,omitempty"`
	Versions     SpriteVersions `json:"versions"`
}

// Species is the catalog payload for one creature, as served by /pokemon/{id}.
// It is stored verbatim on the team row as the species snapshot.
type Species struct {
	ID             int           `json:"id"`
	Name           string        `json:"name"`
	Height         int           `json:"height"`
	Weight         int           `json:"weight"`
	BaseExperience int           `json:"base_experience"`
	Types          []SpeciesType `json:"types"`
	Stats          []SpeciesStat `json:"stats"`
	Sprites        Sprites       `json:"sprites"`
	SpeciesRef     NamedResource `json:"species"`

	// AnimatedSprite prefers the gen-v animated sprite, falling back to front_default.
	AnimatedSprite string `json:"animatedSprite,omitempty"`
}

// ResolveAnimatedSprite fills AnimatedSprite from the sprite set.
func (s *Species) ResolveAnimatedSprite() {
	if animated := s.Sprites.Versions.GenerationV.BlackWhite.Animated.FrontDefault; animated != "" {
		s.AnimatedSprite = animated
		return
	}
	s.AnimatedSprite = s.Sprites.FrontDefault
}

// SpeciesName is the name used inside evolution chains.
func (s Species) SpeciesName() string {
	if s.SpeciesRef.Name != "" {
		return s.SpeciesRef.Name
	}
	return s.Name
}

// SpeciesInfo is the /pokemon-species/{id} payload, reduced to what the game needs.
type SpeciesInfo struct {
	ID                 int            `json:"id"`
	Name               string         `json:"name"`
	EvolvesFromSpecies *NamedResource `json:"evolves_from_species"`
	EvolutionChain     struct {
		URL string `json:"url"`
	} `json:"evolution_chain"`
}

// ChainLink is one node of an evolution chain.
type ChainLink struct {
	Species   NamedResource `json:"species"`
	EvolvesTo []ChainLink   `json:"evolves_to"`
}

// EvolutionChain is the progression graph of a species family.
type EvolutionChain struct {
	ID    int       `json:"id"`
	Chain ChainLink `json:"chain"`
}

// Next returns the first successor of the named species, or nil if the species
// is a final stage or absent from the chain.
func (c *EvolutionChain) Next(speciesName string) *ChainLink {
	if c == nil {
		return nil
	}
	return findNext(&c.Chain, speciesName)
}

func findNext(link *ChainLink, speciesName string) *ChainLink {
	if link.Species.Name == speciesName {
		if len(link.EvolvesTo) > 0 {
			return &link.EvolvesTo[0]
		}
		return nil
	}
	for i := range link.EvolvesTo {
		if next := findNext(&link.EvolvesTo[i], speciesName); next != nil {
			return next
		}
	}
	return nil
}

// Stage is the 1-based position of the named species along the chain, or 0
// when the species is not part of it.
func (c *EvolutionChain) Stage(speciesName string) int {
	if c == nil {
		return 0
	}
	return stage(&c.Chain, speciesName, 1)
}

func stage(link *ChainLink, speciesName string, at int) int {
	if link.Species.Name == speciesName {
		return at
	}
	for i := range link.EvolvesTo {
		if s := stage(&link.EvolvesTo[i], speciesName, at+1); s > 0 {
			return s
		}
	}
	return 0
}

// Depth is the number of stages on the longest path of the chain.
func (c *EvolutionChain) Depth() int {
	if c == nil {
		return 0
	}
	return depth(&c.Chain)
}

func depth(link *ChainLink) int {
	best := 0
	for i := range link.EvolvesTo {
		if d := depth(&link.EvolvesTo[i]); d > best {
			best = d
		}
	}
	return best + 1
}

// Generation is a contiguous national-dex range browsable for adoption.
type Generation struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Region string `json:"region"`
}

var Generations = map[int]Generation{
	1: {ID: 1, Name: "Kanto", Start: 1, End: 151, Region: "kanto"},
	2: {ID: 2, Name: "Johto", Start: 152, End: 251, Region: "johto"},
	3: {ID: 3, Name: "Hoenn", Start: 252, End: 386, Region: "hoenn"},
	4: {ID: 4, Name: "Sinnoh", Start: 387, End: 493, Region: "sinnoh"},
	5: {ID: 5, Name: "Unova", Start: 494, End: 649, Region: "unova"},
}
