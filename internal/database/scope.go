package database

import (
	"context"
	"errors"
	"time"

	"github.com/arvault/arvault/internal/usecase"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Version is the slice of the product catalogue the asset pipeline reads.
// The catalogue itself is owned by another service.
type Version struct {
	ID        uuid.UUID  `gorm:"column:id;primaryKey;type:uuid"`
	CompanyID uuid.UUID  `gorm:"column:company_id;type:uuid;not null;index"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string     `gorm:"column:name;type:varchar(255)"`
	CreatedAt time.Time  `gorm:"column:created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at"`
	Submodels []Submodel `gorm:"foreignKey:VersionID"`
}

func (Version) TableName() string {
	return "versions"
}

func (v *Version) BeforeCreate(*gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type Submodel struct {
	ID        uuid.UUID `gorm:"column:id;primaryKey;type:uuid"`
	VersionID uuid.UUID `gorm:"column:version_id;type:uuid;not null;index"`
	Name      string    `gorm:"column:name;type:varchar(255)"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Submodel) TableName() string {
	return "submodels"
}

func (m *Submodel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

func (s *service) ResolveScope(ctx context.Context, versionID uuid.UUID, submodelID *uuid.UUID) (usecase.Scope, error) {
	var v Version

	err := s.db.WithContext(ctx).Where("id = ?", versionID).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usecase.Scope{}, usecase.ErrNotFound{
			ID:      versionID,
			Code:    "version_not_found",
			Message: "version " + versionID.String() + " not found",
		}
	}
	if err != nil {
		return usecase.Scope{}, err
	}

	scope := usecase.Scope{CompanyID: v.CompanyID, VersionID: v.ID}
	if submodelID == nil {
		return scope, nil
	}

	var m Submodel
	err = s.db.WithContext(ctx).Where("id = ? AND version_id = ?", *submodelID, versionID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return usecase.Scope{}, usecase.ErrNotFound{
			ID:      *submodelID,
			Code:    "submodel_not_found",
			Message: "submodel " + submodelID.String() + " not found",
		}
	}
	if err != nil {
		return usecase.Scope{}, err
	}
	scope.SubmodelID = &m.ID
	return scope, nil
}
