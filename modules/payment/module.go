package payment

import (
	"context"
	"net/url"
	"time"

	"github.com/TheLab-ms/tipjar/engine"
	"github.com/TheLab-ms/tipjar/modules/airtable"
	"github.com/TheLab-ms/tipjar/modules/pricing"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/webhook"
)

// Recorder persists confirmed donations. Implemented by *airtable.Client.
type Recorder interface {
	Insert(ctx context.Context, fields airtable.Fields) (*airtable.Record, error)
}

// SessionCreator creates a hosted checkout session.
type SessionCreator func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// Verifier checks the signature of a webhook payload and parses it.
type Verifier func(payload []byte, signature string) (stripe.Event, error)

type Options struct {
	Pricing     pricing.Config
	Self        *url.URL
	Currency    string
	ProductName string

	Recorder   Recorder
	NewSession SessionCreator // defaults to checkout/session.New
	Verify     Verifier       // defaults to NewVerifier(WebhookKey)
	WebhookKey string

	Events *engine.EventLogger
	Ledger *Ledger // nil disables deduplication of redelivered events

	// RequireStoreAck fails the webhook when the store doesn't return a record id.
	RequireStoreAck bool

	// AckUnexpectedEvents responds 200 to verified events of other types instead of 400.
	AckUnexpectedEvents bool
}

type Module struct {
	pricing     pricing.Config
	self        *url.URL
	currency    string
	productName string

	recorder   Recorder
	newSession SessionCreator
	verify     Verifier

	events *engine.EventLogger
	ledger *Ledger

	requireStoreAck     bool
	ackUnexpectedEvents bool
}

func New(opts Options) *Module {
	m := &Module{
		pricing:             opts.Pricing,
		self:                opts.Self,
		currency:            opts.Currency,
		productName:         opts.ProductName,
		recorder:            opts.Recorder,
		newSession:          opts.NewSession,
		verify:              opts.Verify,
		events:              opts.Events,
		ledger:              opts.Ledger,
		requireStoreAck:     opts.RequireStoreAck,
		ackUnexpectedEvents: opts.AckUnexpectedEvents,
	}
	if m.self == nil {
		m.self = &url.URL{Path: "/"}
	}
	if m.currency == "" {
		m.currency = string(stripe.CurrencyUSD)
	}
	if m.productName == "" {
		m.productName = "Beer"
	}
	if m.newSession == nil {
		m.newSession = session.New
	}
	if m.verify == nil {
		m.verify = NewVerifier(opts.WebhookKey)
	}
	return m
}

// NewVerifier returns a Verifier using Stripe's timestamped HMAC-SHA256 signing scheme.
// Events from any API version are accepted since only a couple of stable fields are read.
func NewVerifier(secret string) Verifier {
	return func(payload []byte, signature string) (stripe.Event, error) {
		return webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
			Tolerance:                webhook.DefaultTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	}
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("POST", "/api/checkout", m.handleCreateCheckout)
	router.Handle("POST", "/api/checkout-complete", m.handleCheckoutComplete)
	router.Handle("POST", "/webhooks/stripe", m.handleCheckoutComplete)
}

func (m *Module) AttachWorkers(mgr *engine.ProcMgr) {
	if m.ledger == nil {
		return
	}
	mgr.Add(engine.Poll(time.Hour, m.ledger.Prune(ledgerTTL)))
}
