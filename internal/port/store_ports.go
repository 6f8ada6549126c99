package port

import (
	"context"

	"github.com/rentdesk/rentdesk-api/internal/domain"
)

// OwnerStore handles owner records.
type OwnerStore interface {
	UpsertOwner(ctx context.Context, owner *domain.Owner) (*domain.Owner, error)
	GetOwner(ctx context.Context, ownerID string) (*domain.Owner, error)
}

// UnitStore handles unit records.
type UnitStore interface {
	CreateUnitWithAssets(ctx context.Context, unit *domain.Unit, assets []domain.Asset) (*domain.Unit, []domain.Asset, error)
	GetUnit(ctx context.Context, unitID string) (*domain.Unit, error)
	ListUnitsByOwner(ctx context.Context, ownerID string) ([]domain.Unit, error)
	UpdateUnitStatus(ctx context.Context, unitID string, status domain.UnitStatus) error
}

// TenantStore handles tenant records.
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *domain.Tenant) (*domain.Tenant, error)
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)
	ListTenantsByOwner(ctx context.Context, ownerID string) ([]domain.Tenant, error)
}

// LeaseStore handles lease records.
type LeaseStore interface {
	CreateLease(ctx context.Context, lease *domain.Lease) (*domain.Lease, error)
	GetLease(ctx context.Context, leaseID string) (*domain.Lease, error)
	ListLeasesByUnit(ctx context.Context, unitID string) ([]domain.Lease, error)
	// ListLeasesByDueDay returns the decodable leases for dueDay and reports
	// malformed rows separately so one bad record never hides the others.
	ListLeasesByDueDay(ctx context.Context, dueDay int) ([]domain.Lease, []domain.LeaseFailure, error)
	TerminateLease(ctx context.Context, leaseID, endDate string) error
}

// PaymentStore handles payment records. Status changes are conditional
// updates: the returned bool is false when the stored status did not allow it.
type PaymentStore interface {
	// InsertPaymentIfAbsent relies on the store's unique (lease_id, due_date)
	// key; created is false when a payment for the pair already exists.
	InsertPaymentIfAbsent(ctx context.Context, p *domain.Payment) (created bool, err error)
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
	ListPaymentsByLease(ctx context.Context, leaseID string) ([]domain.Payment, error)
	ListOpenPaymentsByLeases(ctx context.Context, leaseIDs []string) ([]domain.Payment, error)
	MarkPaymentPaid(ctx context.Context, paymentID string, upd domain.PaidUpdate) (applied bool, err error)
	MarkPaymentFailed(ctx context.Context, paymentID, reason string) (applied bool, err error)
	ReopenPayment(ctx context.Context, paymentID string) (applied bool, err error)
}

// AssetStore handles asset records.
type AssetStore interface {
	CreateAsset(ctx context.Context, asset *domain.Asset) (*domain.Asset, error)
	ListAssetsByUnit(ctx context.Context, unitID string) ([]domain.Asset, error)
}

// NotificationStore handles notification records.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	ListNotificationsByLease(ctx context.Context, leaseID string) ([]domain.Notification, error)
}

// PaymentLedger is what the payment workflows need from the store.
type PaymentLedger interface {
	LeaseStore
	PaymentStore
	NotificationStore
}

// PropertyStore is what owner-facing property management needs.
type PropertyStore interface {
	OwnerStore
	UnitStore
	TenantStore
	LeaseStore
	AssetStore
	PaymentStore
}

// EntityStore is the full entity store; both backends implement it.
type EntityStore interface {
	OwnerStore
	UnitStore
	TenantStore
	LeaseStore
	PaymentStore
	AssetStore
	NotificationStore
}
