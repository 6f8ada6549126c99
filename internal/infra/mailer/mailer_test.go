package mailer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rentdesk/rentdesk-api/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMailer(t *testing.T, h http.HandlerFunc) *Mailer {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	m := New("SG.test", "billing@example.com", true, zap.NewNop())
	m.client.BaseURL = srv.URL + "/v3/mail/send"
	return m
}

func TestSendReminder(t *testing.T) {
	m := newTestMailer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))

		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "Rent reminder", body["subject"])
		assert.Contains(t, string(raw), "anna@example.com")
		assert.Contains(t, string(raw), `"sandbox_mode":{"enable":true}`)

		w.WriteHeader(http.StatusAccepted)
	})

	err := m.SendReminder(context.Background(), &domain.Notification{
		Type:    domain.NotificationPaymentReminder,
		LeaseID: "lease-1",
		To:      "anna@example.com",
		Message: "Friendly reminder: rent of 950.00 eur is due on 2024-05-05.",
	})
	assert.NoError(t, err)
}

func TestSendReminder_Rejected(t *testing.T) {
	m := newTestMailer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"errors":[{"message":"bad key"}]}`)
	})

	err := m.SendReminder(context.Background(), &domain.Notification{LeaseID: "lease-1", To: "anna@example.com"})

	var ext *domain.ErrExternalService
	assert.ErrorAs(t, err, &ext)
}

func TestSendReminder_NoRecipient(t *testing.T) {
	m := New("SG.test", "billing@example.com", false, zap.NewNop())

	var ve *domain.ErrValidation
	assert.ErrorAs(t, m.SendReminder(context.Background(), &domain.Notification{LeaseID: "lease-1"}), &ve)
}
