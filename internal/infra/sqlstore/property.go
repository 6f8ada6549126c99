package sqlstore

import (
	"context"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) UpsertOwner(ctx context.Context, owner *domain.Owner) (*domain.Owner, error) {
	ctx, span := tracer.Start(ctx, "SQL.UpsertOwner")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", owner.ID))

	var out *domain.Owner
	err := s.call(ctx, "owners.upsert", func(db *gorm.DB) error {
		m := ownerModel{ID: owner.ID, Email: owner.Email, Name: owner.Name}
		if err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"email", "name"}),
		}).Create(&m).Error; err != nil {
			return err
		}

		var stored ownerModel
		if err := db.First(&stored, "id = ?", owner.ID).Error; err != nil {
			return notFound(err, "owner", owner.ID)
		}
		var err error
		out, err = toDomainOne[domain.Owner]("owners", stored)
		return err
	})
	return out, err
}

func (s *Store) GetOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	ctx, span := tracer.Start(ctx, "SQL.GetOwner")
	defer span.End()

	var out *domain.Owner
	err := s.call(ctx, "owners.get", func(db *gorm.DB) error {
		var m ownerModel
		if err := db.First(&m, "id = ?", ownerID).Error; err != nil {
			return notFound(err, "owner", ownerID)
		}
		var err error
		out, err = toDomainOne[domain.Owner]("owners", m)
		return err
	})
	return out, err
}

// CreateUnitWithAssets writes the unit and its assets in one transaction.
func (s *Store) CreateUnitWithAssets(ctx context.Context, unit *domain.Unit, assets []domain.Asset) (*domain.Unit, []domain.Asset, error) {
	ctx, span := tracer.Start(ctx, "SQL.CreateUnitWithAssets")
	defer span.End()

	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if unit.Status == "" {
		unit.Status = domain.UnitVacant
	}
	span.SetAttributes(attribute.String("unit.id", unit.ID), attribute.Int("assets", len(assets)))

	um := unitFromDomain(unit)
	ams := make([]assetModel, len(assets))
	for i := range assets {
		if assets[i].ID == "" {
			assets[i].ID = uuid.NewString()
		}
		assets[i].UnitID = unit.ID
		ams[i] = assetFromDomain(&assets[i])
	}

	var (
		created       *domain.Unit
		createdAssets []domain.Asset
	)
	err := s.call(ctx, "units.create", func(db *gorm.DB) error {
		txErr := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&um).Error; err != nil {
				return err
			}
			if len(ams) > 0 {
				if err := tx.Create(&ams).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if txErr != nil {
			return txErr
		}

		var err error
		if created, err = toDomainOne[domain.Unit]("units", um); err != nil {
			return err
		}
		createdAssets, err = toDomainList[domain.Asset]("assets", ams)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return created, createdAssets, nil
}

func (s *Store) GetUnit(ctx context.Context, unitID string) (*domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "SQL.GetUnit")
	defer span.End()

	var out *domain.Unit
	err := s.call(ctx, "units.get", func(db *gorm.DB) error {
		var m unitModel
		if err := db.First(&m, "id = ?", unitID).Error; err != nil {
			return notFound(err, "unit", unitID)
		}
		var err error
		out, err = toDomainOne[domain.Unit]("units", m)
		return err
	})
	return out, err
}

func (s *Store) ListUnitsByOwner(ctx context.Context, ownerID string) ([]domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListUnitsByOwner")
	defer span.End()

	var out []domain.Unit
	err := s.call(ctx, "units.list", func(db *gorm.DB) error {
		var ms []unitModel
		if err := db.Where("owner_id = ?", ownerID).Order("created_at desc").Find(&ms).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainList[domain.Unit]("units", ms)
		return err
	})
	return out, err
}

func (s *Store) UpdateUnitStatus(ctx context.Context, unitID string, status domain.UnitStatus) error {
	ctx, span := tracer.Start(ctx, "SQL.UpdateUnitStatus")
	defer span.End()

	return s.call(ctx, "units.update_status", func(db *gorm.DB) error {
		res := db.Model(&unitModel{}).Where("id = ?", unitID).Update("status", string(status))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "unit", ID: unitID})
		}
		return nil
	})
}

func (s *Store) CreateTenant(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error) {
	ctx, span := tracer.Start(ctx, "SQL.CreateTenant")
	defer span.End()

	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	m := tenantModel{ID: tenant.ID, OwnerID: tenant.OwnerID, Name: tenant.Name, Email: tenant.Email, Phone: tenant.Phone}

	var out *domain.Tenant
	err := s.call(ctx, "tenants.create", func(db *gorm.DB) error {
		if err := db.Create(&m).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainOne[domain.Tenant]("tenants", m)
		return err
	})
	return out, err
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	ctx, span := tracer.Start(ctx, "SQL.GetTenant")
	defer span.End()

	var out *domain.Tenant
	err := s.call(ctx, "tenants.get", func(db *gorm.DB) error {
		var m tenantModel
		if err := db.First(&m, "id = ?", tenantID).Error; err != nil {
			return notFound(err, "tenant", tenantID)
		}
		var err error
		out, err = toDomainOne[domain.Tenant]("tenants", m)
		return err
	})
	return out, err
}

func (s *Store) ListTenantsByOwner(ctx context.Context, ownerID string) ([]domain.Tenant, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListTenantsByOwner")
	defer span.End()

	var out []domain.Tenant
	err := s.call(ctx, "tenants.list", func(db *gorm.DB) error {
		var ms []tenantModel
		if err := db.Where("owner_id = ?", ownerID).Order("name asc").Find(&ms).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainList[domain.Tenant]("tenants", ms)
		return err
	})
	return out, err
}

func (s *Store) CreateAsset(ctx context.Context, asset *domain.Asset) (*domain.Asset, error) {
	ctx, span := tracer.Start(ctx, "SQL.CreateAsset")
	defer span.End()

	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	m := assetFromDomain(asset)

	var out *domain.Asset
	err := s.call(ctx, "assets.create", func(db *gorm.DB) error {
		if err := db.Create(&m).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainOne[domain.Asset]("assets", m)
		return err
	})
	return out, err
}

func (s *Store) ListAssetsByUnit(ctx context.Context, unitID string) ([]domain.Asset, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListAssetsByUnit")
	defer span.End()

	var out []domain.Asset
	err := s.call(ctx, "assets.list", func(db *gorm.DB) error {
		var ms []assetModel
		err := db.Where("unit_id = ?", unitID).
			Order("CASE WHEN next_certification_date IS NULL THEN 1 ELSE 0 END, next_certification_date asc").
			Find(&ms).Error
		if err != nil {
			return err
		}
		out, err = toDomainList[domain.Asset]("assets", ms)
		return err
	})
	return out, err
}
