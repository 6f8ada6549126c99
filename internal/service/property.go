package service

import (
	"context"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var propertyTracer = otel.Tracer("service/property")

// PropertyService serves owner-scoped onboarding and read models.
// Every call is checked against the owner id taken from the bearer token.
type PropertyService struct {
	store     port.PropertyStore
	loc       *time.Location
	graceDays int
	logger    *zap.Logger
	now       func() time.Time
}

// NewPropertyService creates a new property service.
func NewPropertyService(store port.PropertyStore, loc *time.Location, graceDays int, logger *zap.Logger) *PropertyService {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PropertyService{store: store, loc: loc, graceDays: graceDays, logger: logger, now: time.Now}
}

// SetClock replaces the time source.
func (s *PropertyService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *PropertyService) today() string {
	return domain.ISODate(s.now().In(s.loc))
}

// ============================================================
// Owners
// ============================================================

func (s *PropertyService) UpsertOwner(ctx context.Context, ownerID string, in *domain.OwnerInput) (*domain.Owner, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.UpsertOwner")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	if err := domain.ValidateRequest(in); err != nil {
		return nil, err
	}
	return s.store.UpsertOwner(ctx, &domain.Owner{ID: ownerID, Email: in.Email, Name: in.Name})
}

// ============================================================
// Onboarding
// ============================================================

// Onboard creates a unit with its assets, a tenant and the lease binding
// them. The unit and assets are written atomically; a later failure leaves
// the unit vacant and is reported to the caller.
func (s *PropertyService) Onboard(ctx context.Context, ownerID string, req *domain.OnboardingRequest) (*domain.OnboardingResult, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.Onboard")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	if err := domain.ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := checkLeaseDates(&req.Lease); err != nil {
		return nil, err
	}

	unit := &domain.Unit{
		OwnerID: ownerID,
		Address: req.Unit.Address,
		City:    req.Unit.City,
		Rooms:   req.Unit.Rooms,
		M2:      req.Unit.M2,
		RentAsk: req.Unit.RentAsk,
		Status:  domain.UnitVacant,
	}
	assets := make([]domain.Asset, 0, len(req.Assets))
	for _, a := range req.Assets {
		assets = append(assets, domain.Asset{
			Type:                  a.Type,
			NextCertificationDate: a.NextCertificationDate,
			ProviderPref:          a.ProviderPref,
		})
	}

	createdUnit, createdAssets, err := s.store.CreateUnitWithAssets(ctx, unit, assets)
	if err != nil {
		return nil, err
	}

	tenant, err := s.store.CreateTenant(ctx, &domain.Tenant{
		OwnerID: ownerID,
		Name:    req.Tenant.Name,
		Email:   req.Tenant.Email,
		Phone:   req.Tenant.Phone,
	})
	if err != nil {
		return nil, err
	}

	leaseIn := req.Lease
	leaseIn.TenantID = tenant.ID
	lease, err := s.CreateLease(ctx, ownerID, createdUnit.ID, &leaseIn)
	if err != nil {
		return nil, err
	}
	createdUnit.Status = domain.UnitOccupied

	s.logger.Info("unit onboarded",
		zap.String("owner_id", ownerID),
		zap.String("unit_id", createdUnit.ID),
		zap.String("tenant_id", tenant.ID),
		zap.String("lease_id", lease.ID),
		zap.Int("assets", len(createdAssets)),
	)
	return &domain.OnboardingResult{Unit: createdUnit, Assets: createdAssets, Tenant: tenant, Lease: lease}, nil
}

// CreateLease binds an owner's tenant to an owner's unit and marks the unit
// occupied. A unit holds at most one active lease.
func (s *PropertyService) CreateLease(ctx context.Context, ownerID, unitID string, in *domain.LeaseInput) (*domain.Lease, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.CreateLease")
	defer span.End()
	span.SetAttributes(attribute.String("unit.id", unitID))

	if err := domain.ValidateRequest(in); err != nil {
		return nil, err
	}
	if err := checkLeaseDates(in); err != nil {
		return nil, err
	}
	if in.TenantID == "" {
		return nil, &domain.ErrValidation{Field: "tenantId", Message: "is required"}
	}

	unit, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.OwnerID != ownerID {
		return nil, &domain.ErrForbidden{Action: "lease unit " + unitID}
	}
	tenant, err := s.store.GetTenant(ctx, in.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.OwnerID != ownerID {
		return nil, &domain.ErrForbidden{Action: "lease to tenant " + in.TenantID}
	}

	active, err := s.activeLease(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, &domain.ErrConflict{Message: "unit already has an active lease: " + active.ID}
	}

	lease, err := s.store.CreateLease(ctx, &domain.Lease{
		UnitID:        unitID,
		TenantID:      tenant.ID,
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		Rent:          in.Rent,
		DueDay:        in.DueDay,
		PaymentMethod: in.PaymentMethod,
		MandateRef:    in.MandateRef,
		TenantEmail:   tenant.Email,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateUnitStatus(ctx, unitID, domain.UnitOccupied); err != nil {
		return nil, err
	}
	return lease, nil
}

func checkLeaseDates(in *domain.LeaseInput) error {
	if in.EndDate != "" && in.EndDate < in.StartDate {
		return &domain.ErrValidation{Field: "lease.endDate", Message: "must not be before startDate"}
	}
	return nil
}

// activeLease returns the lease in force on or after today, if any.
func (s *PropertyService) activeLease(ctx context.Context, unitID string) (*domain.Lease, error) {
	leases, err := s.store.ListLeasesByUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	today := s.today()
	for i := range leases {
		if leases[i].EndDate == "" || leases[i].EndDate >= today {
			return &leases[i], nil
		}
	}
	return nil, nil
}

// TerminateLease ends a lease on endDate (today when empty) and frees the unit.
func (s *PropertyService) TerminateLease(ctx context.Context, ownerID, leaseID, endDate string) (*domain.Lease, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.TerminateLease")
	defer span.End()
	span.SetAttributes(attribute.String("lease.id", leaseID))

	lease, err := s.authorizeLease(ctx, ownerID, leaseID)
	if err != nil {
		return nil, err
	}
	if endDate == "" {
		endDate = s.today()
	}
	if endDate < lease.StartDate {
		return nil, &domain.ErrValidation{Field: "endDate", Message: "must not be before startDate"}
	}

	if err := s.store.TerminateLease(ctx, leaseID, endDate); err != nil {
		return nil, err
	}
	if err := s.store.UpdateUnitStatus(ctx, lease.UnitID, domain.UnitVacant); err != nil {
		return nil, err
	}
	lease.EndDate = endDate

	s.logger.Info("lease terminated",
		zap.String("lease_id", leaseID),
		zap.String("unit_id", lease.UnitID),
		zap.String("end_date", endDate),
	)
	return lease, nil
}

func (s *PropertyService) authorizeLease(ctx context.Context, ownerID, leaseID string) (*domain.Lease, error) {
	lease, err := s.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	unit, err := s.store.GetUnit(ctx, lease.UnitID)
	if err != nil {
		return nil, err
	}
	if unit.OwnerID != ownerID {
		return nil, &domain.ErrForbidden{Action: "access lease " + leaseID}
	}
	return lease, nil
}

// ============================================================
// Read models
// ============================================================

func (s *PropertyService) ListUnits(ctx context.Context, ownerID string) ([]domain.Unit, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.ListUnits")
	defer span.End()

	return s.store.ListUnitsByOwner(ctx, ownerID)
}

func (s *PropertyService) ListTenants(ctx context.Context, ownerID string) ([]domain.Tenant, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.ListTenants")
	defer span.End()

	return s.store.ListTenantsByOwner(ctx, ownerID)
}

// GetUnitDetail returns a unit with its active lease and assets.
func (s *PropertyService) GetUnitDetail(ctx context.Context, ownerID, unitID string) (*domain.UnitDetail, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.GetUnitDetail")
	defer span.End()
	span.SetAttributes(attribute.String("unit.id", unitID))

	unit, err := s.store.GetUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if unit.OwnerID != ownerID {
		return nil, &domain.ErrForbidden{Action: "view unit " + unitID}
	}
	active, err := s.activeLease(ctx, unitID)
	if err != nil {
		return nil, err
	}
	assets, err := s.store.ListAssetsByUnit(ctx, unitID)
	if err != nil {
		return nil, err
	}
	return &domain.UnitDetail{Unit: unit, ActiveLease: active, Assets: assets}, nil
}

// LeasePayments lists a lease's payments, newest first, with pending
// payments past the grace period reported as late.
func (s *PropertyService) LeasePayments(ctx context.Context, ownerID, leaseID string) ([]domain.Payment, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.LeasePayments")
	defer span.End()
	span.SetAttributes(attribute.String("lease.id", leaseID))

	if _, err := s.authorizeLease(ctx, ownerID, leaseID); err != nil {
		return nil, err
	}
	payments, err := s.store.ListPaymentsByLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	s.classify(payments)
	return payments, nil
}

// OpenPayments lists pending and late payments across all of the owner's leases.
func (s *PropertyService) OpenPayments(ctx context.Context, ownerID string) ([]domain.Payment, error) {
	ctx, span := propertyTracer.Start(ctx, "PropertyService.OpenPayments")
	defer span.End()

	units, err := s.store.ListUnitsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	var leaseIDs []string
	for _, u := range units {
		leases, err := s.store.ListLeasesByUnit(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		for _, l := range leases {
			leaseIDs = append(leaseIDs, l.ID)
		}
	}

	payments, err := s.store.ListOpenPaymentsByLeases(ctx, leaseIDs)
	if err != nil {
		return nil, err
	}
	s.classify(payments)
	return payments, nil
}

func (s *PropertyService) classify(payments []domain.Payment) {
	today := s.today()
	for i := range payments {
		payments[i].Status = payments[i].EffectiveStatus(today, s.graceDays)
	}
}
