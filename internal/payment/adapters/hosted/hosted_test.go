package hosted

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
)

const testSecret = "whsec_test"

func newTestAdapter(t *testing.T, checkoutURL string) paymentdomain.PaymentAdapter {
	t.Helper()
	adapter, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{
		SigningSecret: testSecret,
		CheckoutURL:   checkoutURL,
		SuccessURL:    "https://app.test/billing/success",
		CancelURL:     "https://app.test/billing",
	})
	require.NoError(t, err)
	return adapter
}

func signPayload(t *testing.T, payload []byte, at time.Time) string {
	t.Helper()
	timestamp := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(testSecret))
	_, err := fmt.Fprintf(mac, "%s.%s", timestamp, payload)
	require.NoError(t, err)
	return fmt.Sprintf("t=%s,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func TestNewAdapter_RejectsMissingConfig(t *testing.T) {
	_, err := NewFactory().NewAdapter(paymentdomain.AdapterConfig{CheckoutURL: "https://pay.test"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)

	_, err = NewFactory().NewAdapter(paymentdomain.AdapterConfig{SigningSecret: "s"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidConfig)
}

func TestCreateCheckoutSession_BuildsSignedLink(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.test")

	session, err := adapter.CreateCheckoutSession(context.Background(), paymentdomain.CreateCheckoutRequest{
		SessionID:      "sess_123",
		IdempotencyKey: "key_123",
		Amount:         decimal.RequireFromString("90.84"),
		Currency:       regiondomain.CurrencyUSD,
	})
	require.NoError(t, err)
	assert.Equal(t, "hosted_sess_123", session.ProviderSessionID)

	parsed, err := url.Parse(session.CheckoutURL)
	require.NoError(t, err)
	query := parsed.Query()
	assert.Equal(t, "sess_123", query.Get("session"))
	assert.Equal(t, "90.84", query.Get("amount"))
	assert.Equal(t, "USD", query.Get("currency"))
	assert.NotEmpty(t, query.Get("sig"))
	assert.Equal(t, "https://app.test/billing/success", query.Get("success_url"))
}

func TestVerify(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.test")
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Now()

	valid := http.Header{}
	valid.Set("Forge-Signature", signPayload(t, payload, now))
	assert.NoError(t, adapter.Verify(context.Background(), payload, valid))

	missing := http.Header{}
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, missing),
		paymentdomain.ErrInvalidSignature)

	tampered := http.Header{}
	tampered.Set("Forge-Signature", signPayload(t, []byte(`{"id":"evt_2"}`), now))
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, tampered),
		paymentdomain.ErrInvalidSignature)

	garbage := http.Header{}
	garbage.Set("Forge-Signature", "v1=deadbeef")
	assert.ErrorIs(t, adapter.Verify(context.Background(), payload, garbage),
		paymentdomain.ErrInvalidSignature)
}

func TestVerify_EnforcesTimestampTolerance(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.test").(*Adapter)
	received := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	adapter.now = func() time.Time { return received }
	payload := []byte(`{"id":"evt_1"}`)

	tests := []struct {
		name     string
		signedAt time.Time
		wantErr  bool
	}{
		{"fresh delivery", received.Add(-30 * time.Second), false},
		{"edge of the window", received.Add(-signatureTolerance), false},
		{"stale signature", received.Add(-signatureTolerance - time.Second), true},
		{"future signature", received.Add(signatureTolerance + time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			headers.Set("Forge-Signature", signPayload(t, payload, tt.signedAt))
			err := adapter.Verify(context.Background(), payload, headers)
			if tt.wantErr {
				assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_MapsProviderEvents(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.test")
	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1767225600,
		"data": {"object": {
			"id": "cs_prov_1",
			"client_reference_id": "sess_1",
			"amount": "90.84",
			"currency": "usd"
		}}
	}`)

	event, err := adapter.Parse(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.EventTypeCheckoutCompleted, event.Type)
	assert.Equal(t, "evt_1", event.ProviderEventID)
	assert.Equal(t, "sess_1", event.SessionID)
	assert.Equal(t, "cs_prov_1", event.ProviderSessionID)
	assert.Equal(t, "USD", event.Currency)
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("90.84")))
	assert.Equal(t, time.Unix(1767225600, 0).UTC(), event.OccurredAt)
}

func TestParse_Errors(t *testing.T) {
	adapter := newTestAdapter(t, "https://pay.test")

	_, err := adapter.Parse(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)

	_, err = adapter.Parse(context.Background(), []byte(`{"type":"checkout.session.completed"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)

	// Event families this integration does not consume are ignored, not
	// rejected, so the provider gets a 2xx and stops retrying.
	_, err = adapter.Parse(context.Background(), []byte(`{"id":"evt_2","type":"customer.updated"}`))
	assert.ErrorIs(t, err, paymentdomain.ErrEventIgnored)

	_, err = adapter.Parse(context.Background(), []byte(`{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"data": {"object": {"client_reference_id": "sess_3", "amount": "abc"}}
	}`))
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidPayload)
}

func TestChargeRenewal(t *testing.T) {
	var status int
	var gotIdempotencyKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/charges", r.URL.Path)
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		assert.NotEmpty(t, r.Header.Get("Forge-Signature"))
		w.WriteHeader(status)
	}))
	defer server.Close()

	adapter := newTestAdapter(t, server.URL)
	req := paymentdomain.ChargeRenewalRequest{
		SubscriptionID: "12345",
		IdempotencyKey: "key_renew",
		Amount:         decimal.RequireFromString("10.00"),
		Currency:       regiondomain.CurrencyUSD,
	}

	status = http.StatusOK
	require.NoError(t, adapter.ChargeRenewal(context.Background(), req))
	assert.Equal(t, "key_renew", gotIdempotencyKey)

	status = http.StatusPaymentRequired
	assert.ErrorIs(t, adapter.ChargeRenewal(context.Background(), req),
		paymentdomain.ErrChargeDeclined)

	status = http.StatusUnprocessableEntity
	assert.ErrorIs(t, adapter.ChargeRenewal(context.Background(), req),
		paymentdomain.ErrChargeDeclined)

	// Anything else is transient and must not be treated as a decline.
	status = http.StatusBadGateway
	err := adapter.ChargeRenewal(context.Background(), req)
	require.Error(t, err)
	assert.NotErrorIs(t, err, paymentdomain.ErrChargeDeclined)
}
