package domain

import "time"

// DateLayout is the ISO calendar date format used for lease and payment dates.
const DateLayout = "2006-01-02"

// MaxDueDay is the last day of month a lease can fall due on.
const MaxDueDay = 28

// ISODate formats t as YYYY-MM-DD in its own location.
func ISODate(t time.Time) string {
	return t.Format(DateLayout)
}

type UnitStatus string

const (
	UnitVacant   UnitStatus = "vacant"
	UnitOccupied UnitStatus = "occupied"
)

type PaymentMethod string

const (
	MethodSEPAMandate PaymentMethod = "SEPA_MANDATE"
	MethodManual      PaymentMethod = "MANUAL"
)

type AssetType string

const (
	AssetBoiler       AssetType = "boiler"
	AssetAC           AssetType = "ac"
	AssetExtinguisher AssetType = "extinguisher"
	AssetOther        AssetType = "other"
)

// Owner is the account holder; one per authenticated identity.
type Owner struct {
	ID        string    `json:"id" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Unit is a rentable property owned by exactly one Owner.
type Unit struct {
	ID        string     `json:"id" validate:"required"`
	OwnerID   string     `json:"ownerId" validate:"required"`
	Address   string     `json:"address" validate:"required"`
	City      string     `json:"city,omitempty"`
	Rooms     int        `json:"rooms,omitempty" validate:"gte=0"`
	M2        float64    `json:"m2,omitempty" validate:"gte=0"`
	RentAsk   float64    `json:"rentAsk,omitempty" validate:"gte=0"`
	Status    UnitStatus `json:"status" validate:"oneof=vacant occupied"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Tenant is a person renting a Unit, owned by exactly one Owner.
type Tenant struct {
	ID        string    `json:"id" validate:"required"`
	OwnerID   string    `json:"ownerId" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Lease binds one Tenant to one Unit with a monthly rent due on DueDay.
type Lease struct {
	ID            string        `json:"id" validate:"required"`
	UnitID        string        `json:"unitId" validate:"required"`
	TenantID      string        `json:"tenantId" validate:"required"`
	StartDate     string        `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string        `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Rent          float64       `json:"rent" validate:"gt=0"`
	DueDay        int           `json:"dueDay" validate:"min=1,max=28"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"oneof=SEPA_MANDATE MANUAL"`
	MandateRef    string        `json:"mandateRef,omitempty"`
	TenantEmail   string        `json:"tenantEmail,omitempty" validate:"omitempty,email"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// ActiveOn reports whether the lease is in force on the ISO date day.
// Dates are compared lexically, which is exact for YYYY-MM-DD.
func (l *Lease) ActiveOn(day string) bool {
	if l.StartDate > day {
		return false
	}
	return l.EndDate == "" || l.EndDate >= day
}

// Asset is a certifiable installation in a Unit.
type Asset struct {
	ID                    string    `json:"id" validate:"required"`
	UnitID                string    `json:"unitId" validate:"required"`
	Type                  AssetType `json:"type" validate:"oneof=boiler ac extinguisher other"`
	NextCertificationDate string    `json:"nextCertificationDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ProviderPref          string    `json:"providerPref,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
}
