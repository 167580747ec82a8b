// Package paymentgw talks to the external card payment provider: it opens
// and looks up payment intents and authenticates the provider's webhook
// deliveries.
package paymentgw

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/promo-storefront/internal/domain/payment"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 10 * time.Second

// DefaultCurrency is the currency intents are opened in.
const DefaultCurrency = "usd"

var (
	_ payment.Verifier      = (*Client)(nil)
	_ payment.IntentCreator = (*Client)(nil)
)

// Client is a payment.Verifier and payment.IntentCreator backed by the
// provider's REST API.
type Client struct {
	baseURL   string
	secretKey string
	currency  string
	http      *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	currency  string
	timeout   time.Duration
	transport http.RoundTripper
	tracer    trace.TracerProvider
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithCurrency sets the ISO currency code used for new intents.
func WithCurrency(code string) Option {
	return func(o *clientOptions) {
		if code != "" {
			o.currency = strings.ToLower(code)
		}
	}
}

// WithTransport sets the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithTracerProvider sets the tracer provider used for outgoing requests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *clientOptions) { o.tracer = tp }
}

// NewClient returns a Client for the provider API at baseURL.
func NewClient(baseURL, secretKey string, opts ...Option) *Client {
	o := clientOptions{
		currency:  DefaultCurrency,
		timeout:   DefaultTimeout,
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var otelOpts []otelhttp.Option
	if o.tracer != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tracer))
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		currency:  o.currency,
		http: &http.Client{
			Timeout:   o.timeout,
			Transport: otelhttp.NewTransport(o.transport, otelOpts...),
		},
	}
}

// Verify fetches the payment intent identified by reference and maps its
// provider status. Unknown references are reported as failed.
func (c *Client) Verify(ctx context.Context, reference string) (payment.Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/payment_intents/"+url.PathEscape(reference), http.NoBody)
	if err != nil {
		return "", errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "request payment intent")
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return payment.StatusFailed, nil
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", errors.Errorf("payment provider returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "read payment intent")
	}
	intent, err := decodeIntent(jx.DecodeBytes(body))
	if err != nil {
		return "", errors.Wrap(err, "decode payment intent")
	}
	if intent.ID != "" && intent.ID != reference {
		return "", errors.Errorf("payment provider returned intent %q for %q", intent.ID, reference)
	}
	return MapIntentStatus(intent.Status), nil
}

// CreateIntent opens a card payment intent for amount whole currency units.
// The provider is sent the amount in minor units.
func (c *Client) CreateIntent(ctx context.Context, amount int64) (payment.Intent, error) {
	if amount <= 0 {
		return payment.Intent{}, errors.Errorf("invalid intent amount %d", amount)
	}
	form := url.Values{
		"amount":                 {strconv.FormatInt(amount*100, 10)},
		"currency":               {c.currency},
		"payment_method_types[]": {"card"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "create payment intent")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return payment.Intent{}, errors.Errorf("payment provider returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "read payment intent")
	}
	in, err := decodeIntent(jx.DecodeBytes(body))
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "decode payment intent")
	}
	if in.ID == "" || in.ClientSecret == "" {
		return payment.Intent{}, errors.New("payment provider returned an incomplete intent")
	}
	return payment.Intent{ID: in.ID, ClientSecret: in.ClientSecret}, nil
}

// Ping checks that the provider API is reachable. Any response below 500
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL, http.NoBody)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "ping payment provider")
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return errors.Errorf("payment provider returned %d", resp.StatusCode)
	}
	return nil
}

// MapIntentStatus converts a provider payment intent status.
func MapIntentStatus(s string) payment.Status {
	switch s {
	case "succeeded":
		return payment.StatusSucceeded
	case "canceled", "requires_payment_method":
		return payment.StatusFailed
	default:
		return payment.StatusPending
	}
}

type intent struct {
	ID           string
	Status       string
	ClientSecret string
}

func decodeIntent(d *jx.Decoder) (intent, error) {
	var in intent
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			in.ID, err = d.Str()
		case "status":
			in.Status, err = d.Str()
		case "client_secret":
			in.ClientSecret, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return in, err
}
