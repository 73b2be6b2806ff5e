package models

import (
	"time"

	"github.com/google/uuid"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusSuspended TenantStatus = "suspended"
)

type Tenant struct {
	ID                    uuid.UUID    `json:"id"`
	Slug                  string       `json:"slug"`
	Name                  string       `json:"name"`
	OwnerID               string       `json:"owner_id"`
	Status                TenantStatus `json:"status"`
	TrialEndsAt           time.Time    `json:"trial_ends_at"`
	Currency              string       `json:"currency"`
	NotificationEmail     string       `json:"notification_email"`
	RazorpayKeyID         string       `json:"razorpay_key_id"`
	RazorpayKeySecret     string       `json:"-"`
	RazorpayWebhookSecret string       `json:"-"`
	ShiprocketToken       string       `json:"-"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

// IsOpen reports whether the storefront may serve shoppers at the given time.
func (t *Tenant) IsOpen(now time.Time) bool {
	if t == nil {
		return false
	}
	switch t.Status {
	case TenantStatusActive:
		return true
	case TenantStatusTrial:
		return t.TrialEndsAt.IsZero() || now.Before(t.TrialEndsAt)
	default:
		return false
	}
}

func (t *Tenant) HasRazorpay() bool {
	return t != nil && t.RazorpayKeyID != "" && t.RazorpayKeySecret != ""
}
