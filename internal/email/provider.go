// Package email sends transactional order emails to shoppers.
package email

import (
	"context"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
	// Tags label the message at the provider, e.g. the email kind.
	Tags map[string]string
}

// NoopProvider discards every email. It is used when no provider is configured.
type NoopProvider struct{}

func (NoopProvider) SendEmail(context.Context, *Email) error {
	return nil
}
