// Package fetcher implements the HTTP-facing half of statement collection:
// retrieving an entity's configuration from its well-known endpoint and
// retrieving a subordinate statement from a superior's fetch endpoint. It
// knows nothing about trees, caching, or verification — that is the
// Collector's job (spec.md section 4.3).
package fetcher

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/SUNET/fedtrust/pkg/federation"
	"github.com/SUNET/fedtrust/pkg/logging"
)

// Fetcher retrieves signed statements over HTTP. The returned token is the
// raw compact JWS string; callers are responsible for verifying and
// decoding it.
type Fetcher struct {
	client *resty.Client
	logger logging.Logger
}

// Option configures a Fetcher at construction time.
type Option func(*Fetcher)

// WithInsecureSkipVerify disables TLS certificate verification. Intended
// only for local federation test fixtures; never enable in production.
func WithInsecureSkipVerify() Option {
	return func(f *Fetcher) {
		f.client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
}

// WithMaxRedirects caps the number of HTTP redirects followed per request.
func WithMaxRedirects(n int) Option {
	return func(f *Fetcher) {
		f.client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(n))
	}
}

// WithRetries enables bounded retry-with-backoff on transient network
// errors and 5xx responses, retrying up to n times with exponential
// backoff between waitMin and waitMax.
func WithRetries(n int, waitMin, waitMax time.Duration) Option {
	return func(f *Fetcher) {
		f.client.
			SetRetryCount(n).
			SetRetryWaitTime(waitMin).
			SetRetryMaxWaitTime(waitMax).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || resp.StatusCode() >= 500
			})
	}
}

// New constructs a Fetcher. If client is nil a default resty client is used.
func New(client *resty.Client, logger logging.Logger, opts ...Option) *Fetcher {
	if client == nil {
		client = resty.New()
	}
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	f := &Fetcher{client: client, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetEntityConfiguration fetches entityID's entity configuration from its
// well-known endpoint and returns the raw compact JWS.
func (f *Fetcher) GetEntityConfiguration(ctx context.Context, entityID federation.Identifier) (string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("Accept", federation.EntityConfigurationContentType).
		Get(entityID.WellKnownURL())
	if err != nil {
		return "", classifyTransportError(err)
	}
	if resp.IsError() {
		return "", federation.NewHTTPError(resp.StatusCode(), "fetch entity configuration for "+entityID.String())
	}
	return string(resp.Body()), nil
}

// FetchSubordinate fetches the subordinate statement issuer has published
// about sub from issuer's fetch endpoint, as advertised by its
// federation_fetch_endpoint metadata value (spec.md section 6: `GET
// {fetch_endpoint}?iss={issuer}&sub={subject}`).
func (f *Fetcher) FetchSubordinate(ctx context.Context, fetchEndpoint string, issuer, sub federation.Identifier) (string, error) {
	u, err := url.Parse(fetchEndpoint)
	if err != nil {
		return "", federation.NewError(federation.KindMalformedResponse, "invalid fetch endpoint", err)
	}
	q := u.Query()
	q.Set("iss", issuer.String())
	q.Set("sub", sub.String())
	u.RawQuery = q.Encode()

	resp, err := f.client.R().SetContext(ctx).Get(u.String())
	if err != nil {
		return "", classifyTransportError(err)
	}
	if resp.IsError() {
		return "", federation.NewHTTPError(resp.StatusCode(), fmt.Sprintf("fetch subordinate statement for %s from %s", sub, fetchEndpoint))
	}
	return string(resp.Body()), nil
}

func classifyTransportError(err error) error {
	if err == context.DeadlineExceeded {
		return federation.NewError(federation.KindDeadlineExceeded, "request deadline exceeded", err)
	}
	if err == context.Canceled {
		return federation.NewError(federation.KindCancelled, "request cancelled", err)
	}
	return federation.NewError(federation.KindNetworkError, "transport error", err)
}
