package payment

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/TheLab-ms/tipjar/engine"
	"github.com/TheLab-ms/tipjar/modules/airtable"
	"github.com/TheLab-ms/tipjar/modules/pricing"
	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
)

const testSecret = "whsec_test_secret"

type fakeRecorder struct {
	mu    sync.Mutex
	calls []airtable.Fields
	id    string
	err   error
}

func (f *fakeRecorder) Insert(ctx context.Context, fields airtable.Fields) (*airtable.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fields)
	if f.err != nil {
		return nil, f.err
	}
	return &airtable.Record{ID: f.id, Fields: fields}, nil
}

func (f *fakeRecorder) Calls() []airtable.Fields {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]airtable.Fields(nil), f.calls...)
}

func (f *fakeRecorder) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeSessions struct {
	mu     sync.Mutex
	params []*stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.params = append(f.params, p)
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_123", URL: "https://checkout.stripe.com/c/pay/cs_test_123"}, nil
}

func (f *fakeSessions) Params() []*stripe.CheckoutSessionParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*stripe.CheckoutSessionParams(nil), f.params...)
}

type testEnv struct {
	*httpexpect.Expect
	Module   *Module
	Recorder *fakeRecorder
	Sessions *fakeSessions
}

func newTestEnv(t *testing.T, mutate func(*Options)) *testEnv {
	env := &testEnv{
		Recorder: &fakeRecorder{id: "rec123"},
		Sessions: &fakeSessions{},
	}
	opts := Options{
		Pricing:    pricing.Default(),
		Self:       &url.URL{Scheme: "https", Host: "tips.example.com", Path: "/"},
		Recorder:   env.Recorder,
		NewSession: env.Sessions.New,
		WebhookKey: testSecret,
	}
	if mutate != nil {
		mutate(&opts)
	}
	env.Module = New(opts)

	router := engine.NewRouter()
	env.Module.AttachRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	env.Expect = httpexpect.Default(t, server.URL)
	return env
}

func newEvent(id, eventType string, object map[string]any) map[string]any {
	return map[string]any{
		"id":          id,
		"object":      "event",
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"type":        eventType,
		"data":        map[string]any{"object": object},
	}
}

func completedEvent(id string, amountTotal int64, metadata map[string]string) map[string]any {
	return newEvent(id, "checkout.session.completed", map[string]any{
		"id":           "cs_test_" + id,
		"object":       "checkout.session",
		"amount_total": amountTotal,
		"currency":     "usd",
		"metadata":     metadata,
	})
}

// sign returns the payload and Stripe-Signature header for the given event.
func sign(t *testing.T, secret string, ts time.Time, event map[string]any) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	})
	return signed.Payload, signed.Header
}

func (e *testEnv) deliver(payload []byte, header string) *httpexpect.Response {
	req := e.POST("/api/checkout-complete").
		WithHeader("Content-Type", "application/json").
		WithBytes(payload)
	if header != "" {
		req = req.WithHeader("Stripe-Signature", header)
	}
	return req.Expect()
}
