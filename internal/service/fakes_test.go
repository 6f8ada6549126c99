package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"
)

// --- Mocks ---

// memStore is an in-memory entity store honouring the same uniqueness and
// conditional-update rules as the real backends.
type memStore struct {
	mu            sync.Mutex
	seq           int
	owners        map[string]domain.Owner
	units         map[string]domain.Unit
	tenants       map[string]domain.Tenant
	leases        map[string]domain.Lease
	payments      map[string]domain.Payment
	assets        map[string]domain.Asset
	notifications []domain.Notification

	failInsertFor map[string]error // lease id -> error
	failNotify    error
	markPaidCalls int
}

func newMemStore() *memStore {
	return &memStore{
		owners:        map[string]domain.Owner{},
		units:         map[string]domain.Unit{},
		tenants:       map[string]domain.Tenant{},
		leases:        map[string]domain.Lease{},
		payments:      map[string]domain.Payment{},
		assets:        map[string]domain.Asset{},
		failInsertFor: map[string]error{},
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) UpsertOwner(_ context.Context, o *domain.Owner) (*domain.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	if existing, ok := m.owners[o.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = time.Now()
	}
	m.owners[o.ID] = cp
	return &cp, nil
}

func (m *memStore) GetOwner(_ context.Context, id string) (*domain.Owner, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.owners[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "owner", ID: id}
	}
	return &o, nil
}

func (m *memStore) CreateUnitWithAssets(_ context.Context, u *domain.Unit, assets []domain.Asset) (*domain.Unit, []domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	cp.ID = m.nextID("unit")
	m.units[cp.ID] = cp
	out := make([]domain.Asset, 0, len(assets))
	for _, a := range assets {
		a.ID = m.nextID("asset")
		a.UnitID = cp.ID
		m.assets[a.ID] = a
		out = append(out, a)
	}
	return &cp, out, nil
}

func (m *memStore) GetUnit(_ context.Context, id string) (*domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "unit", ID: id}
	}
	return &u, nil
}

func (m *memStore) ListUnitsByOwner(_ context.Context, ownerID string) ([]domain.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Unit{}
	for _, u := range m.units {
		if u.OwnerID == ownerID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateUnitStatus(_ context.Context, id string, status domain.UnitStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "unit", ID: id}
	}
	u.Status = status
	m.units[id] = u
	return nil
}

func (m *memStore) CreateTenant(_ context.Context, t *domain.Tenant) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	cp.ID = m.nextID("tenant")
	m.tenants[cp.ID] = cp
	return &cp, nil
}

func (m *memStore) GetTenant(_ context.Context, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "tenant", ID: id}
	}
	return &t, nil
}

func (m *memStore) ListTenantsByOwner(_ context.Context, ownerID string) ([]domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Tenant{}
	for _, t := range m.tenants {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) CreateLease(_ context.Context, l *domain.Lease) (*domain.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	if cp.ID == "" {
		cp.ID = m.nextID("lease")
	}
	m.leases[cp.ID] = cp
	return &cp, nil
}

func (m *memStore) GetLease(_ context.Context, id string) (*domain.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "lease", ID: id}
	}
	return &l, nil
}

func (m *memStore) ListLeasesByUnit(_ context.Context, unitID string) ([]domain.Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Lease{}
	for _, l := range m.leases {
		if l.UnitID == unitID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate > out[j].StartDate })
	return out, nil
}

func (m *memStore) ListLeasesByDueDay(_ context.Context, day int) ([]domain.Lease, []domain.LeaseFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Lease{}
	skipped := []domain.LeaseFailure{}
	for _, l := range m.leases {
		if l.DueDay != day {
			continue
		}
		if err := domain.CheckRecord("leases", l.ID, &l); err != nil {
			skipped = append(skipped, domain.SkippedLease(l.ID, err))
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].LeaseID < skipped[j].LeaseID })
	return out, skipped, nil
}

func (m *memStore) TerminateLease(_ context.Context, id, endDate string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leases[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "lease", ID: id}
	}
	l.EndDate = endDate
	m.leases[id] = l
	return nil
}

func (m *memStore) InsertPaymentIfAbsent(_ context.Context, p *domain.Payment) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failInsertFor[p.LeaseID]; err != nil {
		return false, err
	}
	for _, existing := range m.payments {
		if existing.LeaseID == p.LeaseID && existing.DueDate == p.DueDate {
			*p = existing
			return false, nil
		}
	}
	p.ID = m.nextID("pay")
	p.CreatedAt = time.Now()
	m.payments[p.ID] = *p
	return true, nil
}

func (m *memStore) GetPayment(_ context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "payment", ID: id}
	}
	return &p, nil
}

func (m *memStore) ListPaymentsByLease(_ context.Context, leaseID string) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Payment{}
	for _, p := range m.payments {
		if p.LeaseID == leaseID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate > out[j].DueDate })
	return out, nil
}

func (m *memStore) ListOpenPaymentsByLeases(_ context.Context, leaseIDs []string) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range leaseIDs {
		want[id] = true
	}
	out := []domain.Payment{}
	for _, p := range m.payments {
		if want[p.LeaseID] && p.IsOpen() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate < out[j].DueDate })
	return out, nil
}

func (m *memStore) MarkPaymentPaid(_ context.Context, id string, upd domain.PaidUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markPaidCalls++
	p, ok := m.payments[id]
	if !ok {
		return false, &domain.ErrNotFound{Resource: "payment", ID: id}
	}
	if p.Status == domain.PaymentPaid {
		return false, nil
	}
	paidAt := upd.PaidAt
	p.Status = domain.PaymentPaid
	p.Provider = upd.Provider
	p.TxRef = upd.TxRef
	p.PaidAt = &paidAt
	p.FailureReason = ""
	m.payments[id] = p
	return true, nil
}

func (m *memStore) MarkPaymentFailed(_ context.Context, id, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, &domain.ErrNotFound{Resource: "payment", ID: id}
	}
	if !p.IsOpen() {
		return false, nil
	}
	p.Status = domain.PaymentFailed
	p.FailureReason = reason
	m.payments[id] = p
	return true, nil
}

func (m *memStore) ReopenPayment(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return false, &domain.ErrNotFound{Resource: "payment", ID: id}
	}
	if p.Status != domain.PaymentFailed {
		return false, nil
	}
	p.Status = domain.PaymentPending
	p.FailureReason = ""
	m.payments[id] = p
	return true, nil
}

func (m *memStore) CreateAsset(_ context.Context, a *domain.Asset) (*domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.ID = m.nextID("asset")
	m.assets[cp.ID] = cp
	return &cp, nil
}

func (m *memStore) ListAssetsByUnit(_ context.Context, unitID string) ([]domain.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Asset{}
	for _, a := range m.assets {
		if a.UnitID == unitID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) CreateNotification(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNotify != nil {
		return nil, m.failNotify
	}
	cp := *n
	cp.ID = m.nextID("notif")
	m.notifications = append(m.notifications, cp)
	return &cp, nil
}

func (m *memStore) ListNotificationsByLease(_ context.Context, leaseID string) ([]domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Notification{}
	for _, n := range m.notifications {
		if n.LeaseID == leaseID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memStore) payment(id string) domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

func (m *memStore) addPayment(p domain.Payment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = p
}

type mockCheckout struct {
	mu   sync.Mutex
	reqs []*domain.CheckoutRequest
	err  error
}

func (m *mockCheckout) CreateSession(_ context.Context, req *domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

type mockVerifier struct {
	event *domain.ProviderEvent
	err   error
}

func (m *mockVerifier) ParseEvent(_ []byte, _ string) (*domain.ProviderEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.event
	return &cp, nil
}

type mockReminder struct {
	mu   sync.Mutex
	sent []*domain.Notification
	err  error
}

func (m *mockReminder) SendReminder(_ context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.err
}
