package donations

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/TheLab-ms/tipjar/engine"
	"github.com/TheLab-ms/tipjar/modules/airtable"
	"github.com/TheLab-ms/tipjar/modules/payment"
	"github.com/TheLab-ms/tipjar/modules/pricing"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// DefaultLimit is also the most records the listing will ever return.
const DefaultLimit = 3

// Lister reads recent donations. Implemented by *airtable.Client.
type Lister interface {
	ListRecent(ctx context.Context, limit int) ([]airtable.Record, error)
}

// CheckoutCreator starts a checkout. Implemented by *payment.Module.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, in payment.Intent) (string, error)
}

type Options struct {
	Pricing  pricing.Config
	Self     *url.URL
	Lister   Lister
	Checkout CheckoutCreator
	Limit    int
}

type Module struct {
	pricing  pricing.Config
	self     *url.URL
	lister   Lister
	checkout CheckoutCreator
	limit    int
}

func New(opts Options) *Module {
	m := &Module{
		pricing:  opts.Pricing,
		self:     opts.Self,
		lister:   opts.Lister,
		checkout: opts.Checkout,
		limit:    opts.Limit,
	}
	if m.limit <= 0 || m.limit > DefaultLimit {
		m.limit = DefaultLimit
	}
	if m.self == nil {
		m.self = &url.URL{Path: "/"}
	}
	return m
}

func (m *Module) AttachRoutes(router *engine.Router) {
	router.Handle("GET", "/", m.renderIndex)
	router.Handle("POST", "/checkout", m.handleCheckoutForm)
	router.Handle("GET", "/api/donations", m.handleListDonations)
	router.Handle("GET", "/qr.png", m.renderQR)
}

func (m *Module) handleListDonations(r *http.Request, ps httprouter.Params) engine.Response {
	records, err := m.lister.ListRecent(r.Context(), m.limit)
	if err != nil {
		return engine.Error(err)
	}
	if len(records) > m.limit {
		records = records[:m.limit]
	}
	if records == nil {
		records = []airtable.Record{}
	}
	return engine.JSON(records)
}

func (m *Module) renderIndex(r *http.Request, ps httprouter.Params) engine.Response {
	form := formState{Quantity: 1}
	return engine.Component(http.StatusOK, m.page(r.Context(), form, r.URL.Query().Get("status")))
}

// handleCheckoutForm is the no-javascript path to checkout: validation errors are shown inline on the page.
func (m *Module) handleCheckoutForm(r *http.Request, ps httprouter.Params) engine.Response {
	quantity, _ := strconv.ParseInt(strings.TrimSpace(r.FormValue("quantity")), 10, 64)
	form := formState{
		Quantity: quantity,
		Name:     strings.TrimSpace(r.FormValue("name")),
		Message:  strings.TrimSpace(r.FormValue("message")),
	}

	redirect, err := m.checkout.CreateCheckout(r.Context(), payment.Intent{
		Quantity: form.Quantity,
		Name:     form.Name,
		Message:  form.Message,
	})
	if payment.IsClientError(err) {
		form.Error = payment.UserMessage(err)
		form.Quantity = max(1, min(form.Quantity, m.pricing.MaxUnits()))
		return engine.Component(http.StatusBadRequest, m.page(r.Context(), form, ""))
	}
	if err != nil {
		slog.Error("failed to create checkout session", "error", err, "requestID", engine.RequestID(r.Context()))
		form.Error = "Unable to start checkout right now. Please try again."
		return engine.Component(http.StatusInternalServerError, m.page(r.Context(), form, ""))
	}
	return engine.Redirect(redirect)
}

func (m *Module) renderQR(r *http.Request, ps httprouter.Params) engine.Response {
	png, err := qrcode.Encode(m.self.String(), qrcode.Medium, 256)
	if err != nil {
		return engine.Error(err)
	}
	return engine.Bytes("image/png", png)
}
