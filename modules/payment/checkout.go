package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/TheLab-ms/tipjar/engine"
	"github.com/go-playground/validator/v10"
	"github.com/julienschmidt/httprouter"
	"github.com/stripe/stripe-go/v78"
)

var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidIntent   = errors.New("invalid donation")
)

// Intent is what the visitor asked for. It only lives until the session is created,
// after which name and message ride along as session metadata.
type Intent struct {
	Quantity int64  `json:"quantity"`
	Name     string `json:"name" validate:"max=100"`
	Message  string `json:"message" validate:"max=500"` // stripe caps metadata values at 500 chars
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return v
}

func (m *Module) validateIntent(in Intent) error {
	maxUnits := m.pricing.MaxUnits()
	if err := validate.Var(in.Quantity, fmt.Sprintf("min=1,max=%d", maxUnits)); err != nil {
		return fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, maxUnits)
	}

	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %s", ErrInvalidIntent, err)
	}
	fe := verrs[0]
	return fmt.Errorf("%w: %s must be at most %s characters", ErrInvalidIntent, fe.Field(), fe.Param())
}

// CreateCheckout validates the intent and creates a hosted checkout session for it.
// The returned URL is where the visitor should be redirected.
func (m *Module) CreateCheckout(ctx context.Context, in Intent) (string, error) {
	if err := m.validateIntent(in); err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SubmitType: stripe.String("donate"),
		SuccessURL: stripe.String(m.returnURL("success")),
		CancelURL:  stripe.String(m.returnURL("cancelled")),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(m.currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(m.productName),
				},
				UnitAmount: stripe.Int64(m.pricing.UnitAmount),
			},
			Quantity: stripe.Int64(in.Quantity),
		}},
		Metadata: map[string]string{
			"name":    in.Name,
			"message": in.Message,
		},
	}
	params.Context = ctx

	s, err := m.newSession(params)
	if err != nil {
		m.events.LogEvent(ctx, "stripe", "APIError", "", false, "checkout.session.New: "+err.Error())
		return "", fmt.Errorf("creating checkout session: %w", err)
	}

	m.events.LogEvent(ctx, "stripe", "CheckoutCreated", s.ID, true, fmt.Sprintf("quantity=%d total=%d", in.Quantity, m.pricing.Total(in.Quantity)))
	return s.URL, nil
}

func (m *Module) returnURL(status string) string {
	u := *m.self
	u.RawQuery = "status=" + status
	return u.String()
}

// IsClientError is true for errors caused by bad visitor input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) || errors.Is(err, ErrInvalidIntent)
}

func (m *Module) handleCreateCheckout(r *http.Request, ps httprouter.Params) engine.Response {
	in := Intent{}
	if err := json.NewDecoder(io.LimitReader(r.Body, 16<<10)).Decode(&in); err != nil {
		return engine.JSONStatus(http.StatusBadRequest, map[string]string{"error": "Invalid request."})
	}

	url, err := m.CreateCheckout(r.Context(), in)
	if IsClientError(err) {
		return engine.JSONStatus(http.StatusBadRequest, map[string]string{"error": UserMessage(err)})
	}
	if err != nil {
		return engine.Error(err)
	}
	return engine.JSON(map[string]string{"url": url})
}

// UserMessage formats a validation error for display to the visitor.
func UserMessage(err error) string {
	msg := err.Error()
	if _, after, ok := strings.Cut(msg, ": "); ok {
		msg = after
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
