package supabase

import (
	"encoding/json"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
	"github.com/rentdesk/rentdesk-api/internal/infra/resilience"
)

// ============================================================
// Table rows (snake_case columns) and their domain conversions
// ============================================================

// row is a decoded table row that converts to its domain entity.
type row[T any] interface {
	rowID() string
	toDomain() T
}

// decodeRows unmarshals a PostgREST array and validates every entity.
// A document that does not fit its entity type is reported, never skipped.
func decodeRows[T any, R row[T]](collection string, body []byte) ([]T, error) {
	if len(body) == 0 {
		return []T{}, nil
	}
	var rows []R
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, resilience.Permanent(&domain.ErrMalformedRecord{Collection: collection, Reason: err.Error()})
	}

	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v := r.toDomain()
		if err := domain.CheckRecord(collection, r.rowID(), &v); err != nil {
			return nil, resilience.Permanent(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeLeases keeps every valid lease row and reports the malformed ones.
// It also returns the raw row count for paging.
func decodeLeases(body []byte) ([]domain.Lease, []domain.LeaseFailure, int, error) {
	if len(body) == 0 {
		return []domain.Lease{}, nil, 0, nil
	}
	var rows []leaseRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, nil, 0, resilience.Permanent(&domain.ErrMalformedRecord{Collection: "leases", Reason: err.Error()})
	}

	out := make([]domain.Lease, 0, len(rows))
	var skipped []domain.LeaseFailure
	for _, r := range rows {
		v := r.toDomain()
		if err := domain.CheckRecord("leases", r.rowID(), &v); err != nil {
			skipped = append(skipped, domain.SkippedLease(r.rowID(), err))
			continue
		}
		out = append(out, v)
	}
	return out, skipped, len(rows), nil
}

// decodeFirst returns the first decoded entity or ErrNotFound.
func decodeFirst[T any, R row[T]](collection, id string, body []byte) (*T, error) {
	items, err := decodeRows[T, R](collection, body)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, resilience.Permanent(&domain.ErrNotFound{Resource: singular(collection), ID: id})
	}
	return &items[0], nil
}

func singular(collection string) string {
	if n := len(collection); n > 1 && collection[n-1] == 's' {
		return collection[:n-1]
	}
	return collection
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type ownerRow struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func (r ownerRow) rowID() string { return r.ID }

func (r ownerRow) toDomain() domain.Owner {
	return domain.Owner{ID: r.ID, Email: r.Email, Name: deref(r.Name), CreatedAt: r.CreatedAt}
}

type unitRow struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Address   string    `json:"address"`
	City      *string   `json:"city"`
	Rooms     int       `json:"rooms"`
	M2        float64   `json:"m2"`
	RentAsk   float64   `json:"rent_ask"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

func (r unitRow) rowID() string { return r.ID }

func (r unitRow) toDomain() domain.Unit {
	return domain.Unit{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Address:   r.Address,
		City:      deref(r.City),
		Rooms:     r.Rooms,
		M2:        r.M2,
		RentAsk:   r.RentAsk,
		Status:    domain.UnitStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

func unitColumns(u *domain.Unit) map[string]any {
	return map[string]any{
		"id":       u.ID,
		"owner_id": u.OwnerID,
		"address":  u.Address,
		"city":     nullable(u.City),
		"rooms":    u.Rooms,
		"m2":       u.M2,
		"rent_ask": u.RentAsk,
		"status":   string(u.Status),
	}
}

type tenantRow struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

func (r tenantRow) rowID() string { return r.ID }

func (r tenantRow) toDomain() domain.Tenant {
	return domain.Tenant{
		ID:        r.ID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     deref(r.Phone),
		CreatedAt: r.CreatedAt,
	}
}

type leaseRow struct {
	ID            string    `json:"id"`
	UnitID        string    `json:"unit_id"`
	TenantID      string    `json:"tenant_id"`
	StartDate     string    `json:"start_date"`
	EndDate       *string   `json:"end_date"`
	Rent          float64   `json:"rent"`
	DueDay        int       `json:"due_day"`
	PaymentMethod string    `json:"payment_method"`
	MandateRef    *string   `json:"mandate_ref"`
	TenantEmail   *string   `json:"tenant_email"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r leaseRow) rowID() string { return r.ID }

func (r leaseRow) toDomain() domain.Lease {
	return domain.Lease{
		ID:            r.ID,
		UnitID:        r.UnitID,
		TenantID:      r.TenantID,
		StartDate:     r.StartDate,
		EndDate:       deref(r.EndDate),
		Rent:          r.Rent,
		DueDay:        r.DueDay,
		PaymentMethod: domain.PaymentMethod(r.PaymentMethod),
		MandateRef:    deref(r.MandateRef),
		TenantEmail:   deref(r.TenantEmail),
		CreatedAt:     r.CreatedAt,
	}
}

type paymentRow struct {
	ID            string     `json:"id"`
	LeaseID       string     `json:"lease_id"`
	Amount        float64    `json:"amount"`
	DueDate       string     `json:"due_date"`
	Status        string     `json:"status"`
	Provider      *string    `json:"provider"`
	TxRef         *string    `json:"tx_ref"`
	FailureReason *string    `json:"failure_reason"`
	CreatedAt     time.Time  `json:"created_at"`
	PaidAt        *time.Time `json:"paid_at"`
}

func (r paymentRow) rowID() string { return r.ID }

func (r paymentRow) toDomain() domain.Payment {
	return domain.Payment{
		ID:            r.ID,
		LeaseID:       r.LeaseID,
		Amount:        r.Amount,
		DueDate:       r.DueDate,
		Status:        domain.PaymentStatus(r.Status),
		Provider:      domain.PaymentProvider(deref(r.Provider)),
		TxRef:         deref(r.TxRef),
		FailureReason: deref(r.FailureReason),
		CreatedAt:     r.CreatedAt,
		PaidAt:        r.PaidAt,
	}
}

type assetRow struct {
	ID                    string    `json:"id"`
	UnitID                string    `json:"unit_id"`
	Type                  string    `json:"type"`
	NextCertificationDate *string   `json:"next_certification_date"`
	ProviderPref          *string   `json:"provider_pref"`
	CreatedAt             time.Time `json:"created_at"`
}

func (r assetRow) rowID() string { return r.ID }

func (r assetRow) toDomain() domain.Asset {
	return domain.Asset{
		ID:                    r.ID,
		UnitID:                r.UnitID,
		Type:                  domain.AssetType(r.Type),
		NextCertificationDate: deref(r.NextCertificationDate),
		ProviderPref:          deref(r.ProviderPref),
		CreatedAt:             r.CreatedAt,
	}
}

func assetColumns(a *domain.Asset) map[string]any {
	return map[string]any{
		"id":                      a.ID,
		"unit_id":                 a.UnitID,
		"type":                    string(a.Type),
		"next_certification_date": nullable(a.NextCertificationDate),
		"provider_pref":           nullable(a.ProviderPref),
	}
}

type notificationRow struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	LeaseID   string     `json:"lease_id"`
	PaymentID *string    `json:"payment_id"`
	To        *string    `json:"recipient"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at"`
}

func (r notificationRow) rowID() string { return r.ID }

func (r notificationRow) toDomain() domain.Notification {
	return domain.Notification{
		ID:        r.ID,
		Type:      r.Type,
		LeaseID:   r.LeaseID,
		PaymentID: deref(r.PaymentID),
		To:        deref(r.To),
		Message:   r.Message,
		CreatedAt: r.CreatedAt,
		SentAt:    r.SentAt,
	}
}
