package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pokecare/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrTableMissing means the team schema has not been provisioned yet.
	ErrTableMissing = errors.New("pokemon_team table does not exist")
	// ErrNotOwned means no row matched both the member id and the owner.
	ErrNotOwned = errors.New("team member not found for this user")
	// ErrTeamFull means the owner already holds the maximum number of members.
	ErrTeamFull = errors.New("team is full")
	// ErrAlreadyOnTeam means the owner already has a member of that species.
	ErrAlreadyOnTeam = errors.New("species already on team")
)

// TeamStore is the system of record for team rows. Every read and write is
// scoped by owner.
type TeamStore interface {
	TableExists(ctx context.Context) (bool, error)
	// Create upserts the owner's profile and inserts the member in one
	// transaction. It fails with ErrTeamFull when the owner already has
	// maxSize rows and with ErrAlreadyOnTeam for a duplicate species.
	Create(ctx context.Context, owner models.UserProfile, member *models.TeamMember, maxSize int) error
	// ListByOwner returns the owner's rows, oldest adoption first.
	ListByOwner(ctx context.Context, ownerID string) ([]models.TeamMember, error)
	Update(ctx context.Context, id, ownerID string, patch models.MemberPatch) (int64, error)
	Delete(ctx context.Context, id, ownerID string) (int64, error)
}

// GormTeamStore implements TeamStore on PostgreSQL.
type GormTeamStore struct {
	DB *gorm.DB
}

func NewGormTeamStore(db *gorm.DB) *GormTeamStore {
	return &GormTeamStore{DB: db}
}

func (s *GormTeamStore) TableExists(ctx context.Context) (bool, error) {
	return s.DB.WithContext(ctx).Migrator().HasTable(&models.TeamMember{}), nil
}

func (s *GormTeamStore) Create(ctx context.Context, owner models.UserProfile, member *models.TeamMember, maxSize int) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&owner).Error; err != nil {
			return fmt.Errorf("upsert profile %s: %w", owner.ID, err)
		}
		// The profile row lock serializes adoptions for one owner.
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", owner.ID).
			Take(&models.UserProfile{}).Error; err != nil {
			return fmt.Errorf("lock profile %s: %w", owner.ID, err)
		}
		var current []models.TeamMember
		if err := tx.Select("id", "pokemon_id").Where("user_id = ?", member.UserID).Find(&current).Error; err != nil {
			return fmt.Errorf("count team for %s: %w", member.UserID, err)
		}
		if len(current) >= maxSize {
			return ErrTeamFull
		}
		for _, row := range current {
			if row.PokemonID == member.PokemonID {
				return ErrAlreadyOnTeam
			}
		}
		if err := tx.Omit(clause.Associations).Create(member).Error; err != nil {
			return fmt.Errorf("insert team member: %w", err)
		}
		return nil
	})
}

func (s *GormTeamStore) ListByOwner(ctx context.Context, ownerID string) ([]models.TeamMember, error) {
	var members []models.TeamMember
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("list team for %s: %w", ownerID, err)
	}
	return members, nil
}

func (s *GormTeamStore) Update(ctx context.Context, id, ownerID string, patch models.MemberPatch) (int64, error) {
	res := s.DB.WithContext(ctx).
		Model(&models.TeamMember{}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Updates(patch.Columns(time.Now()))
	if res.Error != nil {
		return 0, fmt.Errorf("update team member %s: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormTeamStore) Delete(ctx context.Context, id, ownerID string) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&models.TeamMember{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete team member %s: %w", id, res.Error)
	}
	return res.RowsAffected, nil
}

// ProfileService owns the user_profiles table.
type ProfileService struct {
	DB *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db}
}

// EnsureProfile returns the stored profile for the claims' user, creating it (idempotent) if missing.
func (s *ProfileService) EnsureProfile(ctx context.Context, claims UserClaims) (*models.UserProfile, error) {
	var prof models.UserProfile
	err := s.DB.WithContext(ctx).Where("id = ?", claims.UserID).First(&prof).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prof = claims.DefaultProfile()
		if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&prof).Error; err != nil {
			return nil, fmt.Errorf("create profile %s: %w", claims.UserID, err)
		}
		return &prof, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", claims.UserID, err)
	}
	return &prof, nil
}

// UpsertProfiles writes mirrored profiles, updating username/email on conflict.
func (s *ProfileService) UpsertProfiles(ctx context.Context, profiles []models.UserProfile) (int, error) {
	if len(profiles) == 0 {
		return 0, nil
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "updated_at"}),
	}).Create(&profiles).Error
	if err != nil {
		return 0, fmt.Errorf("upsert %d profile(s): %w", len(profiles), err)
	}
	return len(profiles), nil
}

// LastProfileUpdate is the newest updated_at in user_profiles, or the epoch when empty.
func (s *ProfileService) LastProfileUpdate(ctx context.Context) time.Time {
	var lastTime *time.Time
	err := s.DB.WithContext(ctx).Model(&models.UserProfile{}).Select("MAX(updated_at)").Scan(&lastTime).Error
	if err != nil || lastTime == nil || lastTime.IsZero() {
		return time.Unix(0, 0)
	}
	return *lastTime
}
