package services

import (
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// FoodKind is one of the care items a member can be fed.
type FoodKind string

const (
	FoodBerry  FoodKind = "berry"
	FoodPotion FoodKind = "potion"
	FoodCandy  FoodKind = "candy"
)

var FoodKinds = []FoodKind{FoodBerry, FoodPotion, FoodCandy}

func ParseFoodKind(s string) (FoodKind, bool) {
	k := FoodKind(s)
	return k, slices.Contains(FoodKinds, k)
}

// FoodEffect is the additive, non-negative effect of one feeding.
type FoodEffect struct {
	Happiness      int `yaml:"happiness" json:"happiness"`
	Health         int `yaml:"health" json:"health"`
	Energy         int `yaml:"energy" json:"energy"`
	Hunger         int `yaml:"hunger" json:"hunger"`
	ActivityPoints int `yaml:"activity_points" json:"activity_points"`
}

// DecayRate removes min(units*Rate, Cap) from a vital per decay application.
type DecayRate struct {
	Rate float64 `yaml:"rate"`
	Cap  float64 `yaml:"cap"`
}

func (r DecayRate) amount(units int) float64 {
	return math.Min(float64(units)*r.Rate, r.Cap)
}

type DecayRates struct {
	Happiness DecayRate `yaml:"happiness"`
	Health    DecayRate `yaml:"health"`
	Energy    DecayRate `yaml:"energy"`
	Hunger    DecayRate `yaml:"hunger"`
}

// Rules holds every tunable number of the care game.
type Rules struct {
	MaxTeamSize        int                     `yaml:"max_team_size"`
	HealthFloor        int                     `yaml:"health_floor"`
	SatisfiedThreshold int                     `yaml:"satisfied_threshold"`
	Food               map[FoodKind]FoodEffect `yaml:"food"`

	DecayInterval time.Duration `yaml:"decay_interval"`
	DecayDebounce time.Duration `yaml:"decay_debounce"`
	DecayUnit     time.Duration `yaml:"decay_unit"`
	Decay         DecayRates    `yaml:"decay"`

	EvolutionMinPoints        int     `yaml:"evolution_min_points"`
	EvolutionPointsPerSpecies float64 `yaml:"evolution_points_per_species"`

	MegaHappiness int   `yaml:"mega_happiness"`
	MegaActions   int   `yaml:"mega_actions"`
	MegaCapable   []int `yaml:"mega_capable"`
}

// DefaultRules returns the stock game balance.
func DefaultRules() Rules {
	return Rules{
		MaxTeamSize:        6,
		HealthFloor:        10,
		SatisfiedThreshold: 85,
		Food: map[FoodKind]FoodEffect{
			FoodBerry:  {Happiness: 10, Health: 5, Hunger: 25, ActivityPoints: 15},
			FoodPotion: {Happiness: 5, Health: 30, Energy: 15, ActivityPoints: 20},
			FoodCandy:  {Happiness: 20, Energy: 10, Hunger: 10, ActivityPoints: 25},
		},
		DecayInterval: 30 * time.Second,
		DecayDebounce: 25 * time.Second,
		DecayUnit:     30 * time.Second,
		Decay: DecayRates{
			Happiness: DecayRate{Rate: 1, Cap: 2},
			Health:    DecayRate{Rate: 1, Cap: 1},
			Energy:    DecayRate{Rate: 1.5, Cap: 3},
			Hunger:    DecayRate{Rate: 2, Cap: 4},
		},
		EvolutionMinPoints:        30,
		EvolutionPointsPerSpecies: 1.5,
		MegaHappiness:             80,
		MegaActions:               25,
		MegaCapable: []int{
			3, 6, 9, 65, 94, 115, 127, 130, 142, 150, 181, 208, 212, 214, 229, 248, 254, 257, 260, 282, 302, 303, 306, 308,
			310, 319, 323, 334, 354, 359, 362, 373, 376, 380, 381, 384, 428, 445, 448, 460, 531, 719,
		},
	}
}

// LoadRules overlays a YAML file on top of DefaultRules. An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("rules file %s: %w", path, err)
	}
	return rules, nil
}

func (r Rules) Validate() error {
	if r.MaxTeamSize < 1 {
		return fmt.Errorf("max_team_size must be positive, got %d", r.MaxTeamSize)
	}
	if r.HealthFloor < 0 || r.HealthFloor > 100 {
		return fmt.Errorf("health_floor must be within [0,100], got %d", r.HealthFloor)
	}
	for _, kind := range FoodKinds {
		effect, ok := r.Food[kind]
		if !ok {
			return fmt.Errorf("food %q has no effect", kind)
		}
		if effect.Happiness < 0 || effect.Health < 0 || effect.Energy < 0 || effect.Hunger < 0 || effect.ActivityPoints < 0 {
			return fmt.Errorf("food %q has a negative effect", kind)
		}
	}
	if r.DecayInterval <= 0 || r.DecayUnit <= 0 {
		return fmt.Errorf("decay_interval and decay_unit must be positive")
	}
	if r.DecayDebounce < 0 {
		return fmt.Errorf("decay_debounce must not be negative, got %s", r.DecayDebounce)
	}
	if r.EvolutionMinPoints <= 0 {
		return fmt.Errorf("evolution_min_points must be positive, got %d", r.EvolutionMinPoints)
	}
	if r.EvolutionPointsPerSpecies < 0 {
		return fmt.Errorf("evolution_points_per_species must not be negative, got %g", r.EvolutionPointsPerSpecies)
	}
	return nil
}

// RequiredPoints is the activity needed for a species to evolve:
// max(EvolutionMinPoints, speciesID*EvolutionPointsPerSpecies), rounded half up.
func (r Rules) RequiredPoints(speciesID int) int {
	scaled := roundHalfUp(float64(speciesID) * r.EvolutionPointsPerSpecies)
	return max(r.EvolutionMinPoints, scaled)
}

func (r Rules) IsMegaCapable(speciesID int) bool {
	return slices.Contains(r.MegaCapable, speciesID)
}

func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
