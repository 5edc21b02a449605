package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pokecare/models"
)

// MemoryTeamStore is an in-process TeamStore and profile store, used by
// `serve --memory` and by tests. Rows keep insertion order, which doubles as
// created_at order.
type MemoryTeamStore struct {
	mu       sync.Mutex
	rows     []models.TeamMember
	profiles map[string]models.UserProfile
	missing  bool
}

func NewMemoryTeamStore() *MemoryTeamStore {
	return &MemoryTeamStore{profiles: make(map[string]models.UserProfile)}
}

// SetTableMissing simulates an unprovisioned schema.
func (s *MemoryTeamStore) SetTableMissing(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = missing
}

func (s *MemoryTeamStore) TableExists(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.missing, nil
}

func (s *MemoryTeamStore) Create(ctx context.Context, owner models.UserProfile, member *models.TeamMember, maxSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return ErrTableMissing
	}
	owned := 0
	for _, row := range s.rows {
		if row.ID == member.ID {
			return fmt.Errorf("insert team member: duplicate id %s", member.ID)
		}
		if row.UserID != member.UserID {
			continue
		}
		owned++
		if row.PokemonID == member.PokemonID {
			return ErrAlreadyOnTeam
		}
	}
	if owned >= maxSize {
		return ErrTeamFull
	}
	if _, ok := s.profiles[owner.ID]; !ok {
		s.profiles[owner.ID] = owner
	}
	now := time.Now()
	member.CreatedAt = now
	member.UpdatedAt = now
	row := *member
	row.User = nil
	s.rows = append(s.rows, row)
	return nil
}

func (s *MemoryTeamStore) ListByOwner(ctx context.Context, ownerID string) ([]models.TeamMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return nil, ErrTableMissing
	}
	var out []models.TeamMember
	for _, row := range s.rows {
		if row.UserID == ownerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *MemoryTeamStore) Update(ctx context.Context, id, ownerID string, patch models.MemberPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return 0, ErrTableMissing
	}
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].UserID == ownerID {
			patch.Apply(&s.rows[i], time.Now())
			return 1, nil
		}
	}
	return 0, nil
}

func (s *MemoryTeamStore) Delete(ctx context.Context, id, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.missing {
		return 0, ErrTableMissing
	}
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].UserID == ownerID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

// Insert places a row directly, bypassing adoption rules.
func (s *MemoryTeamStore) Insert(member models.TeamMember) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, member)
}

// Row returns the stored row by id regardless of owner.
func (s *MemoryTeamStore) Row(id string) (models.TeamMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			return row, true
		}
	}
	return models.TeamMember{}, false
}

func (s *MemoryTeamStore) EnsureProfile(ctx context.Context, claims UserClaims) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prof, ok := s.profiles[claims.UserID]
	if !ok {
		prof = claims.DefaultProfile()
		now := time.Now()
		prof.CreatedAt, prof.UpdatedAt = now, now
		s.profiles[claims.UserID] = prof
	}
	return &prof, nil
}

func (s *MemoryTeamStore) Profile(id string) (models.UserProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prof, ok := s.profiles[id]
	return prof, ok
}

func (s *MemoryTeamStore) UpsertProfiles(ctx context.Context, profiles []models.UserProfile) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range profiles {
		if existing, ok := s.profiles[p.ID]; ok && p.CreatedAt.IsZero() {
			p.CreatedAt = existing.CreatedAt
		}
		s.profiles[p.ID] = p
	}
	return len(profiles), nil
}

func (s *MemoryTeamStore) LastProfileUpdate(ctx context.Context) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := time.Unix(0, 0)
	for _, p := range s.profiles {
		if p.UpdatedAt.After(last) {
			last = p.UpdatedAt
		}
	}
	return last
}
