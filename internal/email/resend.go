package email

import (
	"context"
	"errors"
	"fmt"
	"sort"

	resend "github.com/resend/resend-go/v3"
)

// ResendProvider delivers order emails through the Resend API from a single
// verified sender address.
type ResendProvider struct {
	from   string
	client *resend.Client
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{from: from, client: resend.NewClient(apiKey)}
}

func (r *ResendProvider) SendEmail(ctx context.Context, msg *Email) error {
	if err := validateEmail(msg); err != nil {
		return err
	}

	req := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		Tags:    resendTags(msg.Tags),
	}
	sent, err := r.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("resend rejected %q: %w", msg.Subject, err)
	}
	if sent == nil || sent.Id == "" {
		return errors.New("resend returned no message id")
	}
	return nil
}

func validateEmail(msg *Email) error {
	switch {
	case msg == nil:
		return errors.New("email is required")
	case msg.To == "":
		return errors.New("email recipient is required")
	case msg.HTML == "" && msg.Text == "":
		return errors.New("email body is empty")
	}
	return nil
}

func resendTags(tags map[string]string) []resend.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]resend.Tag, 0, len(tags))
	for name, value := range tags {
		if value == "" {
			continue
		}
		out = append(out, resend.Tag{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
