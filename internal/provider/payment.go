package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Webhook event types delivered by the payment provider
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
)

// Metadata keys embedded at checkout-session creation so webhook events
// can be mapped back to bookings.
const (
	MetadataBookingID      = "booking_id"
	MetadataIdempotencyKey = "idempotency_key"
)

// CheckoutSession is the provider-side payment session handle
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PaymentClient creates provider checkout sessions
type PaymentClient interface {
	CreateCheckoutSession(ctx context.Context, amountCents int64, metadata map[string]string) (*CheckoutSession, error)
}

// WebhookEvent is a parsed, verified provider event
type WebhookEvent struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	AmountCents   int64             `json:"amount_cents"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

// WebhookVerifier authenticates inbound webhook payloads. The provider
// signs "<timestamp>.<payload>" with HMAC-SHA256 and sends the header
// "t=<unix>,v1=<hex>". Deliveries outside the tolerance window are
// rejected to stop replay of captured payloads.
type WebhookVerifier struct {
	secret    []byte
	tolerance time.Duration
}

// NewWebhookVerifier creates a verifier for the shared endpoint secret
func NewWebhookVerifier(secret string, tolerance time.Duration) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret), tolerance: tolerance}
}

// VerifyAndParse checks the signature header before touching the payload,
// then decodes the event. Unverifiable deliveries return an error so the
// provider's retry mechanism re-delivers.
func (v *WebhookVerifier) VerifyAndParse(payload []byte, sigHeader string) (*WebhookEvent, error) {
	timestamp, signature, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if v.tolerance > 0 {
		age := time.Since(time.Unix(timestamp, 0))
		if age > v.tolerance || age < -v.tolerance {
			return nil, fmt.Errorf("signature timestamp outside tolerance")
		}
	}

	expected := computeSignature(v.secret, timestamp, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, fmt.Errorf("signature mismatch")
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("webhook payload missing id or type")
	}
	return &event, nil
}

// Sign produces a valid signature header for a payload. Used by the
// sandbox provider and by tests.
func (v *WebhookVerifier) Sign(payload []byte, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, computeSignature(v.secret, ts, payload))
}

func parseSignatureHeader(header string) (int64, string, error) {
	var timestamp int64
	var signature string

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("malformed signature timestamp")
			}
			timestamp = ts
		case "v1":
			signature = kv[1]
		}
	}

	if timestamp == 0 || signature == "" {
		return 0, "", fmt.Errorf("malformed signature header")
	}
	return timestamp, signature, nil
}

func computeSignature(secret []byte, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SandboxPayment is a stand-in payment provider for development and load
// testing. It hands out session handles without contacting anything.
type SandboxPayment struct {
	checkoutBaseURL string
}

// NewSandboxPayment creates the sandbox provider client
func NewSandboxPayment(checkoutBaseURL string) *SandboxPayment {
	return &SandboxPayment{checkoutBaseURL: checkoutBaseURL}
}

func (p *SandboxPayment) CreateCheckoutSession(_ context.Context, _ int64, _ map[string]string) (*CheckoutSession, error) {
	id := fmt.Sprintf("cs_%s", uuid.New().String())
	return &CheckoutSession{
		ID:  id,
		URL: fmt.Sprintf("%s/%s", p.checkoutBaseURL, id),
	}, nil
}
