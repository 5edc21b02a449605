package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Vitals are the four bounded care attributes of an adopted creature.
type Vitals struct {
	Happiness int `json:"happiness" gorm:"not null;default:50"`
	Health    int `json:"health" gorm:"not null;default:100"`
	Energy    int `json:"energy" gorm:"not null;default:50"`
	Hunger    int `json:"hunger" gorm:"not null;default:50"`
}

const (
	VitalMin = 0
	VitalMax = 100
)

// Clamp bounds every vital to [0,100]; health is additionally held at healthFloor.
func (v Vitals) Clamp(healthFloor int) Vitals {
	return Vitals{
		Happiness: clamp(v.Happiness, VitalMin, VitalMax),
		Health:    clamp(v.Health, healthFloor, VitalMax),
		Energy:    clamp(v.Energy, VitalMin, VitalMax),
		Hunger:    clamp(v.Hunger, VitalMin, VitalMax),
	}
}

// Mean is the average of the four vitals.
func (v Vitals) Mean() float64 {
	return float64(v.Happiness+v.Health+v.Energy+v.Hunger) / 4
}

// Sub returns the per-vital difference v - other.
func (v Vitals) Sub(other Vitals) Vitals {
	return Vitals{
		Happiness: v.Happiness - other.Happiness,
		Health:    v.Health - other.Health,
		Energy:    v.Energy - other.Energy,
		Hunger:    v.Hunger - other.Hunger,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TeamMember is one adopted creature, owned by exactly one user.
// Table name: pokemon_team
type TeamMember struct {
	ID          string                      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string                      `gorm:"not null;index" json:"user_id"`
	PokemonID   int                         `gorm:"not null" json:"pokemon_id"`
	PokemonName string                      `gorm:"not null" json:"pokemon_name"`
	PokemonData datatypes.JSONType[Species] `gorm:"type:jsonb" json:"pokemon_data"`

	Vitals

	ActivityPoints int  `gorm:"not null;default:0" json:"activity_points"`
	TotalActions   int  `gorm:"not null;default:0" json:"total_actions"`
	IsMegaEvolved  bool `gorm:"not null;default:false" json:"is_mega_evolved"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User *UserProfile `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
}

func (TeamMember) TableName() string {
	return "pokemon_team"
}

// Species returns the catalog snapshot captured at adoption or last evolution.
func (m TeamMember) Species() Species {
	return m.PokemonData.Data()
}

// Starting vitals for a freshly adopted creature.
var AdoptionVitals = Vitals{Happiness: 50, Health: 100, Energy: 50, Hunger: 50}

// NewTeamMember builds the row inserted by an adoption.
func NewTeamMember(ownerID string, species Species) *TeamMember {
	return &TeamMember{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		PokemonID:   species.ID,
		PokemonName: species.Name,
		PokemonData: datatypes.NewJSONType(species),
		Vitals:      AdoptionVitals,
	}
}

// MemberPatch is a partial update of a team row. Nil fields are left untouched.
// Species, when set, replaces pokemon_id, pokemon_name and pokemon_data together.
type MemberPatch struct {
	Vitals         *Vitals
	ActivityPoints *int
	TotalActions   *int
	Species        *Species
	MegaEvolved    bool
}

// Apply writes the patch onto m in memory.
func (p MemberPatch) Apply(m *TeamMember, now time.Time) {
	if p.Vitals != nil {
		m.Vitals = *p.Vitals
	}
	if p.ActivityPoints != nil {
		m.ActivityPoints = *p.ActivityPoints
	}
	if p.TotalActions != nil {
		m.TotalActions = *p.TotalActions
	}
	if p.Species != nil {
		m.PokemonID = p.Species.ID
		m.PokemonName = p.Species.Name
		m.PokemonData = datatypes.NewJSONType(*p.Species)
	}
	if p.MegaEvolved {
		m.IsMegaEvolved = true
	}
	m.UpdatedAt = now
}

// Columns returns the column assignments for a gorm Updates call.
func (p MemberPatch) Columns(now time.Time) map[string]interface{} {
	cols := map[string]interface{}{"updated_at": now}
	if p.Vitals != nil {
		cols["happiness"] = p.Vitals.Happiness
		cols["health"] = p.Vitals.Health
		cols["energy"] = p.Vitals.Energy
		cols["hunger"] = p.Vitals.Hunger
	}
	if p.ActivityPoints != nil {
		cols["activity_points"] = *p.ActivityPoints
	}
	if p.TotalActions != nil {
		cols["total_actions"] = *p.TotalActions
	}
	if p.Species != nil {
		cols["pokemon_id"] = p.Species.ID
		cols["pokemon_name"] = p.Species.Name
		cols["pokemon_data"] = datatypes.NewJSONType(*p.Species)
	}
	if p.MegaEvolved {
		cols["is_mega_evolved"] = true
	}
	return cols
}
