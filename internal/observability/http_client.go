package observability

import (
	"net/http"
	"net/url"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// NewHTTPClient returns a client whose requests are recorded as Sentry spans.
// Trace headers are only sent to the host of baseURL, so a gateway client
// never leaks them to third parties it redirects to.
func NewHTTPClient(baseURL string, timeout time.Duration) *http.Client {
	var targets []string
	if parsed, err := url.Parse(baseURL); err == nil && parsed.Hostname() != "" {
		targets = append(targets, parsed.Hostname())
	}
	return &http.Client{
		Timeout: timeout,
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(targets),
		),
	}
}
