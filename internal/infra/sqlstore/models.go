package sqlstore

import (
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
)

// Table models. Dates that are calendar days stay ISO strings so that
// lexical comparison in queries matches the domain rules.

type ownerModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Email     string `gorm:"not null"`
	Name      string
	CreatedAt time.Time
}

func (ownerModel) TableName() string { return "owners" }

func (m ownerModel) rowID() string { return m.ID }

func (m ownerModel) toDomain() domain.Owner {
	return domain.Owner{ID: m.ID, Email: m.Email, Name: m.Name, CreatedAt: m.CreatedAt}
}

type unitModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	OwnerID   string `gorm:"index;not null;size:64"`
	Address   string `gorm:"not null"`
	City      string
	Rooms     int
	M2        float64
	RentAsk   float64 `gorm:"type:decimal(12,2)"`
	Status    string  `gorm:"size:16;not null;default:vacant"`
	CreatedAt time.Time
}

func (unitModel) TableName() string { return "units" }

func (m unitModel) rowID() string { return m.ID }

func (m unitModel) toDomain() domain.Unit {
	return domain.Unit{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Address:   m.Address,
		City:      m.City,
		Rooms:     m.Rooms,
		M2:        m.M2,
		RentAsk:   m.RentAsk,
		Status:    domain.UnitStatus(m.Status),
		CreatedAt: m.CreatedAt,
	}
}

func unitFromDomain(u *domain.Unit) unitModel {
	return unitModel{
		ID:      u.ID,
		OwnerID: u.OwnerID,
		Address: u.Address,
		City:    u.City,
		Rooms:   u.Rooms,
		M2:      u.M2,
		RentAsk: u.RentAsk,
		Status:  string(u.Status),
	}
}

type tenantModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	OwnerID   string `gorm:"index;not null;size:64"`
	Name      string `gorm:"not null"`
	Email     string `gorm:"not null"`
	Phone     string
	CreatedAt time.Time
}

func (tenantModel) TableName() string { return "tenants" }

func (m tenantModel) rowID() string { return m.ID }

func (m tenantModel) toDomain() domain.Tenant {
	return domain.Tenant{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
	}
}

type leaseModel struct {
	ID            string  `gorm:"primaryKey;size:64"`
	UnitID        string  `gorm:"index;not null;size:64"`
	TenantID      string  `gorm:"not null;size:64"`
	StartDate     string  `gorm:"size:10;not null"`
	EndDate       *string `gorm:"size:10"`
	Rent          float64 `gorm:"type:decimal(12,2)"`
	DueDay        int     `gorm:"index;not null"`
	PaymentMethod string  `gorm:"size:16;not null"`
	MandateRef    string
	TenantEmail   string
	CreatedAt     time.Time
}

func (leaseModel) TableName() string { return "leases" }

func (m leaseModel) rowID() string { return m.ID }

func (m leaseModel) toDomain() domain.Lease {
	l := domain.Lease{
		ID:            m.ID,
		UnitID:        m.UnitID,
		TenantID:      m.TenantID,
		StartDate:     m.StartDate,
		Rent:          m.Rent,
		DueDay:        m.DueDay,
		PaymentMethod: domain.PaymentMethod(m.PaymentMethod),
		MandateRef:    m.MandateRef,
		TenantEmail:   m.TenantEmail,
		CreatedAt:     m.CreatedAt,
	}
	if m.EndDate != nil {
		l.EndDate = *m.EndDate
	}
	return l
}

func leaseFromDomain(l *domain.Lease) leaseModel {
	m := leaseModel{
		ID:            l.ID,
		UnitID:        l.UnitID,
		TenantID:      l.TenantID,
		StartDate:     l.StartDate,
		Rent:          l.Rent,
		DueDay:        l.DueDay,
		PaymentMethod: string(l.PaymentMethod),
		MandateRef:    l.MandateRef,
		TenantEmail:   l.TenantEmail,
	}
	if l.EndDate != "" {
		end := l.EndDate
		m.EndDate = &end
	}
	return m
}

type paymentModel struct {
	ID            string  `gorm:"primaryKey;size:64"`
	LeaseID       string  `gorm:"uniqueIndex:idx_payments_lease_due;not null;size:64"`
	DueDate       string  `gorm:"uniqueIndex:idx_payments_lease_due;size:10;not null"`
	Amount        float64 `gorm:"type:decimal(12,2)"`
	Status        string  `gorm:"index;size:16;not null"`
	Provider      string  `gorm:"size:16"`
	TxRef         string
	FailureReason string
	CreatedAt     time.Time
	PaidAt        *time.Time
}

func (paymentModel) TableName() string { return "payments" }

func (m paymentModel) rowID() string { return m.ID }

func (m paymentModel) toDomain() domain.Payment {
	return domain.Payment{
		ID:            m.ID,
		LeaseID:       m.LeaseID,
		Amount:        m.Amount,
		DueDate:       m.DueDate,
		Status:        domain.PaymentStatus(m.Status),
		Provider:      domain.PaymentProvider(m.Provider),
		TxRef:         m.TxRef,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		PaidAt:        m.PaidAt,
	}
}

type assetModel struct {
	ID                    string  `gorm:"primaryKey;size:64"`
	UnitID                string  `gorm:"index;not null;size:64"`
	Type                  string  `gorm:"size:16;not null"`
	NextCertificationDate *string `gorm:"size:10"`
	ProviderPref          string
	CreatedAt             time.Time
}

func (assetModel) TableName() string { return "assets" }

func (m assetModel) rowID() string { return m.ID }

func (m assetModel) toDomain() domain.Asset {
	a := domain.Asset{
		ID:           m.ID,
		UnitID:       m.UnitID,
		Type:         domain.AssetType(m.Type),
		ProviderPref: m.ProviderPref,
		CreatedAt:    m.CreatedAt,
	}
	if m.NextCertificationDate != nil {
		a.NextCertificationDate = *m.NextCertificationDate
	}
	return a
}

func assetFromDomain(a *domain.Asset) assetModel {
	m := assetModel{ID: a.ID, UnitID: a.UnitID, Type: string(a.Type), ProviderPref: a.ProviderPref}
	if a.NextCertificationDate != "" {
		d := a.NextCertificationDate
		m.NextCertificationDate = &d
	}
	return m
}

type notificationModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	Type      string `gorm:"size:32;not null"`
	LeaseID   string `gorm:"index;not null;size:64"`
	PaymentID string `gorm:"size:64"`
	Recipient string
	Message   string
	CreatedAt time.Time
	SentAt    *time.Time
}

func (notificationModel) TableName() string { return "notifications" }

func (m notificationModel) rowID() string { return m.ID }

func (m notificationModel) toDomain() domain.Notification {
	return domain.Notification{
		ID:        m.ID,
		Type:      m.Type,
		LeaseID:   m.LeaseID,
		PaymentID: m.PaymentID,
		To:        m.Recipient,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
		SentAt:    m.SentAt,
	}
}

// allModels is the AutoMigrate set.
var allModels = []any{
	&ownerModel{},
	&unitModel{},
	&tenantModel{},
	&leaseModel{},
	&paymentModel{},
	&assetModel{},
	&notificationModel{},
}
