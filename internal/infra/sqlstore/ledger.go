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

var openStatuses = []string{string(domain.PaymentPending), string(domain.PaymentLate)}

func (s *Store) CreateLease(ctx context.Context, lease *domain.Lease) (*domain.Lease, error) {
	ctx, span := tracer.Start(ctx, "SQL.CreateLease")
	defer span.End()

	if lease.ID == "" {
		lease.ID = uuid.NewString()
	}
	m := leaseFromDomain(lease)

	var out *domain.Lease
	err := s.call(ctx, "leases.create", func(db *gorm.DB) error {
		if err := db.Create(&m).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainOne[domain.Lease]("leases", m)
		return err
	})
	return out, err
}

func (s *Store) GetLease(ctx context.Context, leaseID string) (*domain.Lease, error) {
	ctx, span := tracer.Start(ctx, "SQL.GetLease")
	defer span.End()

	var out *domain.Lease
	err := s.call(ctx, "leases.get", func(db *gorm.DB) error {
		var m leaseModel
		if err := db.First(&m, "id = ?", leaseID).Error; err != nil {
			return notFound(err, "lease", leaseID)
		}
		var err error
		out, err = toDomainOne[domain.Lease]("leases", m)
		return err
	})
	return out, err
}

func (s *Store) ListLeasesByUnit(ctx context.Context, unitID string) ([]domain.Lease, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListLeasesByUnit")
	defer span.End()

	var out []domain.Lease
	err := s.call(ctx, "leases.list_by_unit", func(db *gorm.DB) error {
		var ms []leaseModel
		if err := db.Where("unit_id = ?", unitID).Order("start_date desc").Find(&ms).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainList[domain.Lease]("leases", ms)
		return err
	})
	return out, err
}

func (s *Store) ListLeasesByDueDay(ctx context.Context, dueDay int) ([]domain.Lease, []domain.LeaseFailure, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListLeasesByDueDay")
	defer span.End()
	span.SetAttributes(attribute.Int("lease.due_day", dueDay))

	var (
		out     []domain.Lease
		skipped []domain.LeaseFailure
	)
	err := s.call(ctx, "leases.list_by_due_day", func(db *gorm.DB) error {
		var ms []leaseModel
		if err := db.Where("due_day = ?", dueDay).Order("id asc").Find(&ms).Error; err != nil {
			return err
		}
		out, skipped = toLeases(ms)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.Int("lease.malformed", len(skipped)))
	return out, skipped, nil
}

func (s *Store) TerminateLease(ctx context.Context, leaseID, endDate string) error {
	ctx, span := tracer.Start(ctx, "SQL.TerminateLease")
	defer span.End()

	return s.call(ctx, "leases.terminate", func(db *gorm.DB) error {
		res := db.Model(&leaseModel{}).Where("id = ?", leaseID).Update("end_date", endDate)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "lease", ID: leaseID})
		}
		return nil
	})
}

// InsertPaymentIfAbsent relies on the unique (lease_id, due_date) index:
// a conflicting insert is skipped and reports zero affected rows.
func (s *Store) InsertPaymentIfAbsent(ctx context.Context, p *domain.Payment) (bool, error) {
	ctx, span := tracer.Start(ctx, "SQL.InsertPaymentIfAbsent")
	defer span.End()
	span.SetAttributes(
		attribute.String("lease.id", p.LeaseID),
		attribute.String("payment.due_date", p.DueDate),
	)

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m := paymentModel{
		ID:       p.ID,
		LeaseID:  p.LeaseID,
		DueDate:  p.DueDate,
		Amount:   p.Amount,
		Status:   string(p.Status),
		Provider: string(p.Provider),
	}

	var created bool
	err := s.call(ctx, "payments.insert", func(db *gorm.DB) error {
		res := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lease_id"}, {Name: "due_date"}},
			DoNothing: true,
		}).Create(&m)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	if created {
		p.CreatedAt = m.CreatedAt
	}
	return created, nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "SQL.GetPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	var out *domain.Payment
	err := s.call(ctx, "payments.get", func(db *gorm.DB) error {
		var m paymentModel
		if err := db.First(&m, "id = ?", paymentID).Error; err != nil {
			return notFound(err, "payment", paymentID)
		}
		var err error
		out, err = toDomainOne[domain.Payment]("payments", m)
		return err
	})
	return out, err
}

func (s *Store) ListPaymentsByLease(ctx context.Context, leaseID string) ([]domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListPaymentsByLease")
	defer span.End()

	var out []domain.Payment
	err := s.call(ctx, "payments.list_by_lease", func(db *gorm.DB) error {
		var ms []paymentModel
		if err := db.Where("lease_id = ?", leaseID).Order("due_date desc").Find(&ms).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainList[domain.Payment]("payments", ms)
		return err
	})
	return out, err
}

func (s *Store) ListOpenPaymentsByLeases(ctx context.Context, leaseIDs []string) ([]domain.Payment, error) {
	if len(leaseIDs) == 0 {
		return []domain.Payment{}, nil
	}
	ctx, span := tracer.Start(ctx, "SQL.ListOpenPaymentsByLeases")
	defer span.End()

	var out []domain.Payment
	err := s.call(ctx, "payments.list_open", func(db *gorm.DB) error {
		var ms []paymentModel
		err := db.Where("lease_id IN ? AND status IN ?", leaseIDs, openStatuses).
			Order("due_date asc").
			Find(&ms).Error
		if err != nil {
			return err
		}
		out, err = toDomainList[domain.Payment]("payments", ms)
		return err
	})
	return out, err
}

// MarkPaymentPaid only updates a payment that is not yet paid, so a
// redelivered confirmation never overwrites paid_at or tx_ref.
func (s *Store) MarkPaymentPaid(ctx context.Context, paymentID string, upd domain.PaidUpdate) (bool, error) {
	ctx, span := tracer.Start(ctx, "SQL.MarkPaymentPaid")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID), attribute.String("payment.tx_ref", upd.TxRef))

	paidAt := upd.PaidAt.UTC()
	return s.conditionalUpdate(ctx, "payments.mark_paid",
		func(db *gorm.DB) *gorm.DB {
			return db.Where("id = ? AND status <> ?", paymentID, string(domain.PaymentPaid))
		},
		map[string]any{
			"status":         string(domain.PaymentPaid),
			"provider":       string(upd.Provider),
			"tx_ref":         upd.TxRef,
			"paid_at":        &paidAt,
			"failure_reason": "",
		},
	)
}

func (s *Store) MarkPaymentFailed(ctx context.Context, paymentID, reason string) (bool, error) {
	ctx, span := tracer.Start(ctx, "SQL.MarkPaymentFailed")
	defer span.End()

	return s.conditionalUpdate(ctx, "payments.mark_failed",
		func(db *gorm.DB) *gorm.DB {
			return db.Where("id = ? AND status IN ?", paymentID, openStatuses)
		},
		map[string]any{
			"status":         string(domain.PaymentFailed),
			"failure_reason": reason,
		},
	)
}

func (s *Store) ReopenPayment(ctx context.Context, paymentID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "SQL.ReopenPayment")
	defer span.End()

	return s.conditionalUpdate(ctx, "payments.reopen",
		func(db *gorm.DB) *gorm.DB {
			return db.Where("id = ? AND status = ?", paymentID, string(domain.PaymentFailed))
		},
		map[string]any{
			"status":         string(domain.PaymentPending),
			"failure_reason": "",
		},
	)
}

func (s *Store) conditionalUpdate(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB, values map[string]any) (bool, error) {
	var applied bool
	err := s.call(ctx, op, func(db *gorm.DB) error {
		res := scope(db.Model(&paymentModel{})).Updates(values)
		if res.Error != nil {
			return res.Error
		}
		applied = res.RowsAffected > 0
		return nil
	})
	return applied, err
}

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "SQL.CreateNotification")
	defer span.End()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	m := notificationModel{
		ID:        n.ID,
		Type:      n.Type,
		LeaseID:   n.LeaseID,
		PaymentID: n.PaymentID,
		Recipient: n.To,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
		SentAt:    n.SentAt,
	}

	var out *domain.Notification
	err := s.call(ctx, "notifications.create", func(db *gorm.DB) error {
		if err := db.Create(&m).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainOne[domain.Notification]("notifications", m)
		return err
	})
	return out, err
}

func (s *Store) ListNotificationsByLease(ctx context.Context, leaseID string) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "SQL.ListNotificationsByLease")
	defer span.End()

	var out []domain.Notification
	err := s.call(ctx, "notifications.list", func(db *gorm.DB) error {
		var ms []notificationModel
		if err := db.Where("lease_id = ?", leaseID).Order("created_at desc").Find(&ms).Error; err != nil {
			return err
		}
		var err error
		out, err = toDomainList[domain.Notification]("notifications", ms)
		return err
	})
	return out, err
}
