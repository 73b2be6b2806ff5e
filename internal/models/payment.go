package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PaymentIntentStatus string

const (
	IntentCreated PaymentIntentStatus = "created"
	IntentPaid    PaymentIntentStatus = "paid"
	IntentFailed  PaymentIntentStatus = "failed"
)

type PaymentIntent struct {
	ID                uuid.UUID           `json:"id"`
	TenantID          uuid.UUID           `json:"tenant_id"`
	OrderID           uuid.UUID           `json:"order_id"`
	AmountPaise       int64               `json:"amount_paise"`
	Currency          string              `json:"currency"`
	RazorpayOrderID   string              `json:"razorpay_order_id"`
	RazorpayPaymentID string              `json:"razorpay_payment_id"`
	Status            PaymentIntentStatus `json:"status"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type Refund struct {
	ID                uuid.UUID `json:"id"`
	TenantID          uuid.UUID `json:"tenant_id"`
	OrderID           uuid.UUID `json:"order_id"`
	RazorpayRefundID  string    `json:"razorpay_refund_id"`
	RazorpayPaymentID string    `json:"razorpay_payment_id"`
	AmountPaise       int64     `json:"amount_paise"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

type WebhookStatus string

const (
	WebhookReceived     WebhookStatus = "received"
	WebhookProcessed    WebhookStatus = "processed"
	WebhookIgnored      WebhookStatus = "ignored"
	WebhookSkipped      WebhookStatus = "skipped"
	WebhookRetryPending WebhookStatus = "retry_pending"
	WebhookFailed       WebhookStatus = "failed"
)

const (
	WebhookProviderRazorpay   = "razorpay"
	WebhookProviderShiprocket = "shiprocket"
)

// WebhookEvent is the stored record of one inbound delivery.
type WebhookEvent struct {
	ID            uuid.UUID       `json:"id"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Provider      string          `json:"provider"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Status        WebhookStatus   `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
