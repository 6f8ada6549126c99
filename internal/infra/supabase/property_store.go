package supabase

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Owners, units, tenants and assets
// ============================================================

func (c *Client) UpsertOwner(ctx context.Context, owner *domain.Owner) (*domain.Owner, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertOwner")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", owner.ID))

	data := map[string]any{
		"id":    owner.ID,
		"email": owner.Email,
		"name":  nullable(owner.Name),
	}

	var out *domain.Owner
	err := c.call(ctx, "owners.upsert", func() error {
		body, err := c.doPost(ctx, "owners?on_conflict=id", data, preferUpsert)
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Owner, ownerRow]("owners", owner.ID, body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetOwner")
	defer span.End()

	var out *domain.Owner
	err := c.call(ctx, "owners.get", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("owners?id=%s&limit=1", eq(ownerID)))
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Owner, ownerRow]("owners", ownerID, body)
		return err
	})
	return out, err
}

// CreateUnitWithAssets inserts the unit and then its assets in one bulk
// insert. PostgREST has no multi-table transaction, so a failed asset insert
// deletes the unit again.
func (c *Client) CreateUnitWithAssets(ctx context.Context, unit *domain.Unit, assets []domain.Asset) (*domain.Unit, []domain.Asset, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUnitWithAssets")
	defer span.End()

	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if unit.Status == "" {
		unit.Status = domain.UnitVacant
	}
	span.SetAttributes(attribute.String("unit.id", unit.ID), attribute.Int("assets", len(assets)))

	var created *domain.Unit
	err := c.call(ctx, "units.create", func() error {
		body, err := c.doPost(ctx, "units?on_conflict=id", unitColumns(unit), preferInsertIgnore)
		if err != nil {
			return err
		}
		created, err = decodeFirst[domain.Unit, unitRow]("units", unit.ID, body)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	if len(assets) == 0 {
		return created, []domain.Asset{}, nil
	}

	rows := make([]map[string]any, len(assets))
	for i := range assets {
		if assets[i].ID == "" {
			assets[i].ID = uuid.NewString()
		}
		assets[i].UnitID = unit.ID
		rows[i] = assetColumns(&assets[i])
	}

	var createdAssets []domain.Asset
	err = c.call(ctx, "assets.create", func() error {
		body, err := c.doPost(ctx, "assets?on_conflict=id", rows, preferInsertIgnore)
		if err != nil {
			return err
		}
		createdAssets, err = decodeRows[domain.Asset, assetRow]("assets", body)
		return err
	})
	if err != nil {
		c.logger.Warn("supabase: asset insert failed, removing unit",
			zap.String("unit_id", unit.ID),
			zap.Error(err),
		)
		if delErr := c.call(ctx, "units.delete", func() error {
			return c.doDelete(ctx, fmt.Sprintf("units?id=%s", eq(unit.ID)))
		}); delErr != nil {
			c.logger.Error("supabase: compensating unit delete failed",
				zap.String("unit_id", unit.ID),
				zap.Error(delErr),
			)
		}
		return nil, nil, err
	}
	return created, createdAssets, nil
}

func (c *Client) GetUnit(ctx context.Context, unitID string) (*domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUnit")
	defer span.End()

	var out *domain.Unit
	err := c.call(ctx, "units.get", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("units?id=%s&limit=1", eq(unitID)))
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Unit, unitRow]("units", unitID, body)
		return err
	})
	return out, err
}

func (c *Client) ListUnitsByOwner(ctx context.Context, ownerID string) ([]domain.Unit, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListUnitsByOwner")
	defer span.End()

	var out []domain.Unit
	err := c.call(ctx, "units.list", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("units?owner_id=%s&order=created_at.desc", eq(ownerID)))
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Unit, unitRow]("units", body)
		return err
	})
	return out, err
}

func (c *Client) UpdateUnitStatus(ctx context.Context, unitID string, status domain.UnitStatus) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUnitStatus")
	defer span.End()

	return c.call(ctx, "units.update_status", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("units?id=%s", eq(unitID)), map[string]any{"status": string(status)})
		if err != nil {
			return err
		}
		_, err = decodeFirst[domain.Unit, unitRow]("units", unitID, body)
		return err
	})
}

func (c *Client) CreateTenant(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTenant")
	defer span.End()

	if tenant.ID == "" {
		tenant.ID = uuid.NewString()
	}
	data := map[string]any{
		"id":       tenant.ID,
		"owner_id": tenant.OwnerID,
		"name":     tenant.Name,
		"email":    tenant.Email,
		"phone":    nullable(tenant.Phone),
	}

	var out *domain.Tenant
	err := c.call(ctx, "tenants.create", func() error {
		body, err := c.doPost(ctx, "tenants?on_conflict=id", data, preferInsertIgnore)
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Tenant, tenantRow]("tenants", tenant.ID, body)
		return err
	})
	return out, err
}

func (c *Client) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTenant")
	defer span.End()

	var out *domain.Tenant
	err := c.call(ctx, "tenants.get", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("tenants?id=%s&limit=1", eq(tenantID)))
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Tenant, tenantRow]("tenants", tenantID, body)
		return err
	})
	return out, err
}

func (c *Client) ListTenantsByOwner(ctx context.Context, ownerID string) ([]domain.Tenant, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTenantsByOwner")
	defer span.End()

	var out []domain.Tenant
	err := c.call(ctx, "tenants.list", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("tenants?owner_id=%s&order=name.asc", eq(ownerID)))
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Tenant, tenantRow]("tenants", body)
		return err
	})
	return out, err
}

func (c *Client) CreateAsset(ctx context.Context, asset *domain.Asset) (*domain.Asset, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateAsset")
	defer span.End()

	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}

	var out *domain.Asset
	err := c.call(ctx, "assets.create", func() error {
		body, err := c.doPost(ctx, "assets?on_conflict=id", assetColumns(asset), preferInsertIgnore)
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Asset, assetRow]("assets", asset.ID, body)
		return err
	})
	return out, err
}

func (c *Client) ListAssetsByUnit(ctx context.Context, unitID string) ([]domain.Asset, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAssetsByUnit")
	defer span.End()

	var out []domain.Asset
	err := c.call(ctx, "assets.list", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("assets?unit_id=%s&order=next_certification_date.asc.nullslast", eq(unitID)))
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Asset, assetRow]("assets", body)
		return err
	})
	return out, err
}

// notFoundOnEmpty turns an empty PATCH result into ErrNotFound.
func notFoundOnEmpty(body []byte, resource, id string) error {
	if len(body) == 0 || string(body) == "[]" {
		return resilience.Permanent(&domain.ErrNotFound{Resource: resource, ID: id})
	}
	return nil
}
