package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/promo-storefront/internal/handler"
	"github.com/xenking/promo-storefront/pkg/httpmiddleware"
)

const (
	testAdminKey = "sk_admin_app"
	testPepper   = "app-pepper"
	testOrigin   = "https://shop.example"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func testConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:0",
		Storage:      StorageMemory,
		AdminAPIKey:  testAdminKey,
		APIKeyPepper: testPepper,
		Payment:      PaymentConfig{Timeout: time.Second, WebhookTolerance: time.Minute},
		Checkout:     CheckoutConfig{EstimatedDelivery: 168 * time.Hour},
		Campaigns:    CampaignsConfig{ActiveLimit: 3},
		RateLimit:    RateLimitConfig{Max: 2, Window: time.Minute},
		CORS:         CORSConfig{Origins: []string{testOrigin}},
		Graceful:     GracefulConfig{ShutdownTimeout: time.Second},
	}
}

// startServer serves cfg on a local listener until the test ends.
func startServer(t *testing.T, cfg *Config) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := New(ctx, zaptest.NewLogger(t), noopTelemetry{}, cfg)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

type apiClient struct {
	t       *testing.T
	baseURL string
}

func (c apiClient) do(method, path, key string, body any) (*http.Response, map[string]any) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(handler.APIKeyHeader, key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func checkoutRequest(productID string, qty int) map[string]any {
	return map[string]any{
		"items": []map[string]any{{"productId": productID, "quantity": qty}},
		"delivery": map[string]any{
			"name": "Rahim Uddin", "phone": "01711111111", "district": "Dhaka", "address": "House 1",
		},
		"deliveryCharge": 60,
		"paymentMethod":  "CashOnDelivery",
	}
}

func TestServer_Health(t *testing.T) {
	srv, url := startServer(t, testConfig())
	api := apiClient{t: t, baseURL: url}

	resp, body := api.do(http.MethodGet, "/livez", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = api.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv.Health.SetReady(true)
	resp, _ = api.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CheckoutFlow(t *testing.T) {
	_, url := startServer(t, testConfig())
	api := apiClient{t: t, baseURL: url}

	resp, body := api.do(http.MethodGet, "/api/products/p-panjabi-01/price", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 900, body["finalPrice"])
	assert.NotEmpty(t, resp.Header.Get(httpmiddleware.RequestIDHeader))

	resp, body = api.do(http.MethodPost, "/api/campaigns", testAdminKey, map[string]any{
		"name":                 "Eid",
		"extraDiscountPercent": 20,
		"status":               "active",
		"products":             []map[string]any{{"productId": "p-panjabi-01"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = api.do(http.MethodPost, "/api/orders/checkout", "", checkoutRequest("p-panjabi-01", 2))
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.EqualValues(t, 1500, body["totalAmount"])
	assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))

	resp, body = api.do(http.MethodGet, "/api/orders/"+body["id"].(string), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Pending", body["status"])

	resp, _ = api.do(http.MethodPost, "/api/orders/checkout", "", checkoutRequest("p-panjabi-01", 1))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body = api.do(http.MethodPost, "/api/orders/checkout", "", checkoutRequest("p-panjabi-01", 1))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate_limited", body["code"])
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Admin routes are not limited.
	resp, _ = api.do(http.MethodGet, "/api/orders/count", testAdminKey, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_PrepaidWithoutProvider(t *testing.T) {
	_, url := startServer(t, testConfig())
	api := apiClient{t: t, baseURL: url}

	req := checkoutRequest("p-kurti-03", 1)
	req["paymentMethod"] = "ExternalCardPayment"
	req["paymentReference"] = "pi_123"

	resp, body := api.do(http.MethodPost, "/api/orders/checkout", "", req)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "payment_not_confirmed", body["code"])

	resp, _ = api.do(http.MethodPost, "/api/payments/webhook", "", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(http.MethodPost, "/api/payments/intents", "", map[string]any{"amount": 1500})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_CORS(t *testing.T) {
	_, url := startServer(t, testConfig())

	req, err := http.NewRequest(http.MethodOptions, url+"/api/orders/checkout", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, testOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), handler.APIKeyHeader)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"memory", func(*Config) {}, false},
		{"postgres without url", func(c *Config) { c.Storage = StoragePostgres }, true},
		{"postgres", func(c *Config) { c.Storage = StoragePostgres; c.DatabaseURL = "postgres://localhost/shop" }, false},
		{"unknown driver", func(c *Config) { c.Storage = "mysql" }, true},
		{"zero active limit", func(c *Config) { c.Campaigns.ActiveLimit = 0 }, true},
		{"negative sweep", func(c *Config) { c.Campaigns.SweepInterval = -time.Second }, true},
		{"payment without secret", func(c *Config) { c.Payment.BaseURL = "https://pay.example" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_BadSeedFile(t *testing.T) {
	cfg := testConfig()
	cfg.SeedFile = "testdata/does-not-exist.json"

	_, err := New(context.Background(), zaptest.NewLogger(t), noopTelemetry{}, cfg)
	assert.Error(t, err)
}
