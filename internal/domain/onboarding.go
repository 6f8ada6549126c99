package domain

// UnitInput is the unit section of the onboarding form.
type UnitInput struct {
	Address string  `json:"address" validate:"required,min=5"`
	City    string  `json:"city,omitempty"`
	Rooms   int     `json:"rooms" validate:"min=1,max=20"`
	M2      float64 `json:"m2" validate:"min=10,max=1000"`
	RentAsk float64 `json:"rentAsk" validate:"min=100,max=10000"`
}

// AssetInput describes an installation registered together with its unit.
type AssetInput struct {
	Type                  AssetType `json:"type" validate:"oneof=boiler ac extinguisher other"`
	NextCertificationDate string    `json:"nextCertificationDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	ProviderPref          string    `json:"providerPref,omitempty"`
}

// TenantInput is the tenant section of the onboarding form.
type TenantInput struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,min=6,max=20"`
}

// LeaseInput is the lease section of the onboarding form.
type LeaseInput struct {
	TenantID      string        `json:"tenantId,omitempty"`
	StartDate     string        `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string        `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Rent          float64       `json:"rent" validate:"min=100,max=10000"`
	DueDay        int           `json:"dueDay" validate:"min=1,max=28"`
	PaymentMethod PaymentMethod `json:"paymentMethod" validate:"oneof=SEPA_MANDATE MANUAL"`
	MandateRef    string        `json:"mandateRef,omitempty" validate:"required_if=PaymentMethod SEPA_MANDATE"`
}

// OnboardingRequest creates unit, assets, tenant and lease in one go.
type OnboardingRequest struct {
	Unit   UnitInput    `json:"unit"`
	Assets []AssetInput `json:"assets,omitempty" validate:"dive"`
	Tenant TenantInput  `json:"tenant"`
	Lease  LeaseInput   `json:"lease"`
}

// OnboardingResult returns the identifiers created by onboarding.
type OnboardingResult struct {
	Unit   *Unit   `json:"unit"`
	Assets []Asset `json:"assets"`
	Tenant *Tenant `json:"tenant"`
	Lease  *Lease  `json:"lease"`
}

// UnitDetail is a unit with its current lease and assets.
type UnitDetail struct {
	Unit        *Unit   `json:"unit"`
	ActiveLease *Lease  `json:"activeLease,omitempty"`
	Assets      []Asset `json:"assets"`
}

// OwnerInput is the profile an authenticated owner registers.
type OwnerInput struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name,omitempty" validate:"omitempty,max=120"`
}

// TerminateLeaseRequest ends a lease; an empty EndDate means today.
type TerminateLeaseRequest struct {
	EndDate string `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
}
