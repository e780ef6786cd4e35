package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ezchat-cam/coordinator/internal/domain"
	"github.com/ezchat-cam/coordinator/pkg/log"
)

// RoomProfileModel is the relational shape of a room profile.
type RoomProfileModel struct {
	Room        string `gorm:"primaryKey;size:64"`
	Description string `gorm:"size:500"`
	AvatarRef   string `gorm:"size:255"`
	Promoted    bool   `gorm:"index"`
	UpdatedAt   time.Time
}

// TableName sets the table name for GORM.
func (RoomProfileModel) TableName() string { return "room_profiles" }

func (m *RoomProfileModel) toDomain() *domain.RoomProfile {
	return &domain.RoomProfile{
		Room:        m.Room,
		Description: m.Description,
		AvatarRef:   m.AvatarRef,
		Promoted:    m.Promoted,
		UpdatedAt:   m.UpdatedAt,
	}
}

// GormProfileRepository implements RoomProfileRepository using GORM.
type GormProfileRepository struct {
	db *gorm.DB
}

// NewGormProfileRepository creates the repository and runs the migration.
func NewGormProfileRepository(db *gorm.DB) (*GormProfileRepository, error) {
	if err := db.AutoMigrate(&RoomProfileModel{}); err != nil {
		return nil, err
	}
	return &GormProfileRepository{db: db}, nil
}

func (r *GormProfileRepository) Get(ctx context.Context, room string) (*domain.RoomProfile, error) {
	var model RoomProfileModel
	result := r.db.WithContext(ctx).First(&model, "room = ?", room)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoom, room).Msg("failed to get room profile")
		return nil, result.Error
	}
	return model.toDomain(), nil
}

func (r *GormProfileRepository) List(ctx context.Context) ([]domain.RoomProfile, error) {
	var models []RoomProfileModel
	result := r.db.WithContext(ctx).Order("room ASC").Find(&models)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Msg("failed to list room profiles")
		return nil, result.Error
	}

	profiles := make([]domain.RoomProfile, len(models))
	for i, m := range models {
		profiles[i] = *m.toDomain()
	}
	return profiles, nil
}

func (r *GormProfileRepository) Upsert(ctx context.Context, profile *domain.RoomProfile) error {
	model := RoomProfileModel{
		Room:        profile.Room,
		Description: profile.Description,
		AvatarRef:   profile.AvatarRef,
		Promoted:    profile.Promoted,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "avatar_ref", "promoted", "updated_at"}),
	}).Create(&model)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoom, profile.Room).Msg("failed to upsert room profile")
		return result.Error
	}

	profile.UpdatedAt = model.UpdatedAt
	return nil
}

var _ RoomProfileRepository = (*GormProfileRepository)(nil)
