// Package hosted implements the provider boundary for a hosted-checkout
// payment provider. Checkout pages live on the provider; the application only
// builds signed session links, charges renewals over its API, and verifies
// webhook deliveries.
package hosted

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/resumeforge/resumeforge/internal/payment/domain"
	"github.com/shopspring/decimal"
)

const signatureHeader = "Forge-Signature"

// signatureTolerance bounds how far a delivery's signed timestamp may drift
// from the receiving clock. Outside the window the signature is treated as
// invalid even when the HMAC matches, so captured payloads cannot be replayed
// after the dedupe record ages out.
const signatureTolerance = 5 * time.Minute

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "hosted"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.SigningSecret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	checkoutURL := strings.TrimSpace(cfg.CheckoutURL)
	if checkoutURL == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	if _, err := url.Parse(checkoutURL); err != nil {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		signingSecret: secret,
		checkoutURL:   checkoutURL,
		successURL:    strings.TrimSpace(cfg.SuccessURL),
		cancelURL:     strings.TrimSpace(cfg.CancelURL),
		client:        &http.Client{Timeout: 15 * time.Second},
		now:           time.Now,
	}, nil
}

type Adapter struct {
	signingSecret string
	checkoutURL   string
	successURL    string
	cancelURL     string
	client        *http.Client
	now           func() time.Time
}

func (a *Adapter) CreateCheckoutSession(ctx context.Context, req paymentdomain.CreateCheckoutRequest) (paymentdomain.ProviderSession, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return paymentdomain.ProviderSession{}, paymentdomain.ErrInvalidEvent
	}

	// The provider trusts the link because it carries an HMAC over the
	// session parameters, signed with the shared secret.
	signed := fmt.Sprintf("%s|%s|%s|%s",
		req.SessionID, req.IdempotencyKey, req.Amount.String(), req.Currency)
	sig := a.sign([]byte(signed))

	values := url.Values{}
	values.Set("session", req.SessionID)
	values.Set("amount", req.Amount.String())
	values.Set("currency", string(req.Currency))
	values.Set("sig", sig)
	if a.successURL != "" {
		values.Set("success_url", a.successURL)
	}
	if a.cancelURL != "" {
		values.Set("cancel_url", a.cancelURL)
	}

	return paymentdomain.ProviderSession{
		ProviderSessionID: "hosted_" + req.SessionID,
		CheckoutURL:       a.checkoutURL + "/pay?" + values.Encode(),
	}, nil
}

func (a *Adapter) ChargeRenewal(ctx context.Context, req paymentdomain.ChargeRenewalRequest) error {
	body, err := json.Marshal(map[string]any{
		"subscription_id": req.SubscriptionID,
		"amount":          req.Amount.String(),
		"currency":        req.Currency,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.checkoutURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	httpReq.Header.Set(signatureHeader, a.signatureFor(body, time.Now().UTC()))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return paymentdomain.ErrChargeDeclined
	default:
		return fmt.Errorf("renewal charge failed: status %d", resp.StatusCode)
	}
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get(signatureHeader))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	skew := a.now().Sub(time.Unix(unix, 0))
	if skew > signatureTolerance || skew < -signatureTolerance {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	expected := a.sign([]byte(signedPayload))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event hostedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		eventType = paymentdomain.EventTypeCheckoutCompleted
	case "checkout.session.expired":
		eventType = paymentdomain.EventTypeCheckoutExpired
	case "charge.failed":
		eventType = paymentdomain.EventTypePaymentFailed
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	var session hostedSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.SessionID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	amount := decimal.Zero
	if strings.TrimSpace(session.Amount) != "" {
		parsed, err := decimal.NewFromString(session.Amount)
		if err != nil {
			return nil, paymentdomain.ErrInvalidPayload
		}
		amount = parsed
	}

	occurredAt := time.Unix(event.Created, 0).UTC()
	if event.Created == 0 {
		occurredAt = time.Now().UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:          "hosted",
		ProviderEventID:   event.ID,
		ProviderSessionID: session.ID,
		Type:              eventType,
		SessionID:         session.SessionID,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:        occurredAt,
		RawPayload:        payload,
	}, nil
}

type hostedEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    hostedEventData `json:"data"`
}

type hostedEventData struct {
	Object json.RawMessage `json:"object"`
}

type hostedSession struct {
	ID        string `json:"id"`
	SessionID string `json:"client_reference_id"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

func (a *Adapter) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(a.signingSecret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) signatureFor(payload []byte, at time.Time) string {
	timestamp := fmt.Sprintf("%d", at.Unix())
	signed := fmt.Sprintf("%s.%s", timestamp, string(payload))
	return fmt.Sprintf("t=%s,v1=%s", timestamp, a.sign([]byte(signed)))
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
