package supabase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Leases, payments and notifications
// ============================================================

func (c *Client) CreateLease(ctx context.Context, lease *domain.Lease) (*domain.Lease, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateLease")
	defer span.End()

	if lease.ID == "" {
		lease.ID = uuid.NewString()
	}
	data := map[string]any{
		"id":             lease.ID,
		"unit_id":        lease.UnitID,
		"tenant_id":      lease.TenantID,
		"start_date":     lease.StartDate,
		"end_date":       nullable(lease.EndDate),
		"rent":           lease.Rent,
		"due_day":        lease.DueDay,
		"payment_method": string(lease.PaymentMethod),
		"mandate_ref":    nullable(lease.MandateRef),
		"tenant_email":   nullable(lease.TenantEmail),
	}

	var out *domain.Lease
	err := c.call(ctx, "leases.create", func() error {
		body, err := c.doPost(ctx, "leases?on_conflict=id", data, preferInsertIgnore)
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Lease, leaseRow]("leases", lease.ID, body)
		return err
	})
	return out, err
}

func (c *Client) GetLease(ctx context.Context, leaseID string) (*domain.Lease, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLease")
	defer span.End()

	var out *domain.Lease
	err := c.call(ctx, "leases.get", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("leases?id=%s&limit=1", eq(leaseID)))
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Lease, leaseRow]("leases", leaseID, body)
		return err
	})
	return out, err
}

func (c *Client) ListLeasesByUnit(ctx context.Context, unitID string) ([]domain.Lease, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeasesByUnit")
	defer span.End()

	var out []domain.Lease
	err := c.call(ctx, "leases.list_by_unit", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("leases?unit_id=%s&order=start_date.desc", eq(unitID)))
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Lease, leaseRow]("leases", body)
		return err
	})
	return out, err
}

// ListLeasesByDueDay pages through the leases for dueDay so the PostgREST
// max-rows cap never truncates a billing run.
func (c *Client) ListLeasesByDueDay(ctx context.Context, dueDay int) ([]domain.Lease, []domain.LeaseFailure, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListLeasesByDueDay")
	defer span.End()
	span.SetAttributes(attribute.Int("lease.due_day", dueDay))

	out := []domain.Lease{}
	skipped := []domain.LeaseFailure{}
	for offset := 0; ; offset += c.pageSize {
		var (
			page    []domain.Lease
			bad     []domain.LeaseFailure
			rowsNum int
		)
		path := fmt.Sprintf("leases?due_day=eq.%d&order=id.asc&limit=%d&offset=%d", dueDay, c.pageSize, offset)
		err := c.call(ctx, "leases.list_by_due_day", func() error {
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			page, bad, rowsNum, err = decodeLeases(body)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
		out = append(out, page...)
		skipped = append(skipped, bad...)
		if rowsNum < c.pageSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("lease.count", len(out)),
		attribute.Int("lease.malformed", len(skipped)),
	)
	return out, skipped, nil
}

func (c *Client) TerminateLease(ctx context.Context, leaseID, endDate string) error {
	ctx, span := tracer.Start(ctx, "Supabase.TerminateLease")
	defer span.End()

	return c.call(ctx, "leases.terminate", func() error {
		body, err := c.doPatch(ctx, fmt.Sprintf("leases?id=%s", eq(leaseID)), map[string]any{"end_date": endDate})
		if err != nil {
			return err
		}
		return notFoundOnEmpty(body, "lease", leaseID)
	})
}

// InsertPaymentIfAbsent relies on the unique (lease_id, due_date) constraint:
// a duplicate is ignored by PostgREST and comes back as an empty array.
func (c *Client) InsertPaymentIfAbsent(ctx context.Context, p *domain.Payment) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.InsertPaymentIfAbsent")
	defer span.End()
	span.SetAttributes(
		attribute.String("lease.id", p.LeaseID),
		attribute.String("payment.due_date", p.DueDate),
	)

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	data := map[string]any{
		"id":       p.ID,
		"lease_id": p.LeaseID,
		"amount":   p.Amount,
		"due_date": p.DueDate,
		"status":   string(p.Status),
		"provider": nullable(string(p.Provider)),
	}

	var created bool
	err := c.call(ctx, "payments.insert", func() error {
		body, err := c.doPost(ctx, "payments?on_conflict=lease_id,due_date", data, preferInsertIgnore)
		if err != nil {
			return err
		}
		rows, err := decodeRows[domain.Payment, paymentRow]("payments", body)
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			*p = rows[0]
			created = true
		}
		return nil
	})
	return created, err
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	var out *domain.Payment
	err := c.call(ctx, "payments.get", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("payments?id=%s&limit=1", eq(paymentID)))
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Payment, paymentRow]("payments", paymentID, body)
		return err
	})
	return out, err
}

func (c *Client) ListPaymentsByLease(ctx context.Context, leaseID string) ([]domain.Payment, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPaymentsByLease")
	defer span.End()

	var out []domain.Payment
	err := c.call(ctx, "payments.list_by_lease", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("payments?lease_id=%s&order=due_date.desc", eq(leaseID)))
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Payment, paymentRow]("payments", body)
		return err
	})
	return out, err
}

func (c *Client) ListOpenPaymentsByLeases(ctx context.Context, leaseIDs []string) ([]domain.Payment, error) {
	if len(leaseIDs) == 0 {
		return []domain.Payment{}, nil
	}
	ctx, span := tracer.Start(ctx, "Supabase.ListOpenPaymentsByLeases")
	defer span.End()

	var out []domain.Payment
	err := c.call(ctx, "payments.list_open", func() error {
		path := fmt.Sprintf("payments?lease_id=%s&status=in.(pending,late)&order=due_date.asc", in(leaseIDs))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Payment, paymentRow]("payments", body)
		return err
	})
	return out, err
}

// MarkPaymentPaid only touches rows that are not yet paid, so a redelivered
// confirmation never overwrites paid_at or tx_ref.
func (c *Client) MarkPaymentPaid(ctx context.Context, paymentID string, upd domain.PaidUpdate) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.MarkPaymentPaid")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID), attribute.String("payment.tx_ref", upd.TxRef))

	data := map[string]any{
		"status":         string(domain.PaymentPaid),
		"provider":       string(upd.Provider),
		"tx_ref":         upd.TxRef,
		"paid_at":        upd.PaidAt.UTC().Format(time.RFC3339Nano),
		"failure_reason": nil,
	}
	path := fmt.Sprintf("payments?id=%s&status=neq.paid", eq(paymentID))
	return c.conditionalPaymentPatch(ctx, "payments.mark_paid", path, data)
}

func (c *Client) MarkPaymentFailed(ctx context.Context, paymentID, reason string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.MarkPaymentFailed")
	defer span.End()

	data := map[string]any{
		"status":         string(domain.PaymentFailed),
		"failure_reason": nullable(reason),
	}
	path := fmt.Sprintf("payments?id=%s&status=in.(pending,late)", eq(paymentID))
	return c.conditionalPaymentPatch(ctx, "payments.mark_failed", path, data)
}

func (c *Client) ReopenPayment(ctx context.Context, paymentID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ReopenPayment")
	defer span.End()

	data := map[string]any{
		"status":         string(domain.PaymentPending),
		"failure_reason": nil,
	}
	path := fmt.Sprintf("payments?id=%s&status=eq.failed", eq(paymentID))
	return c.conditionalPaymentPatch(ctx, "payments.reopen", path, data)
}

func (c *Client) conditionalPaymentPatch(ctx context.Context, op, path string, data map[string]any) (bool, error) {
	var applied bool
	err := c.call(ctx, op, func() error {
		body, err := c.doPatch(ctx, path, data)
		if err != nil {
			return err
		}
		rows, err := decodeRows[domain.Payment, paymentRow]("payments", body)
		if err != nil {
			return err
		}
		applied = len(rows) > 0
		return nil
	})
	return applied, err
}

func (c *Client) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateNotification")
	defer span.End()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	data := map[string]any{
		"id":         n.ID,
		"type":       n.Type,
		"lease_id":   n.LeaseID,
		"payment_id": nullable(n.PaymentID),
		"recipient":  nullable(n.To),
		"message":    n.Message,
	}
	if n.SentAt != nil {
		data["sent_at"] = n.SentAt.UTC().Format(time.RFC3339Nano)
	}

	var out *domain.Notification
	err := c.call(ctx, "notifications.create", func() error {
		body, err := c.doPost(ctx, "notifications?on_conflict=id", data, preferInsertIgnore)
		if err != nil {
			return err
		}
		out, err = decodeFirst[domain.Notification, notificationRow]("notifications", n.ID, body)
		return err
	})
	return out, err
}

func (c *Client) ListNotificationsByLease(ctx context.Context, leaseID string) ([]domain.Notification, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListNotificationsByLease")
	defer span.End()

	var out []domain.Notification
	err := c.call(ctx, "notifications.list", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("notifications?lease_id=%s&order=created_at.desc", eq(leaseID)))
		if err != nil {
			return err
		}
		out, err = decodeRows[domain.Notification, notificationRow]("notifications", body)
		return err
	})
	return out, err
}
