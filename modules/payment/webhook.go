package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/TheLab-ms/tipjar/engine"
	"github.com/TheLab-ms/tipjar/modules/airtable"
	"github.com/TheLab-ms/tipjar/modules/pricing"
	"github.com/julienschmidt/httprouter"
	"github.com/stripe/stripe-go/v78"
)

const (
	checkoutSessionCompleted = "checkout.session.completed"

	// Stripe recommends accepting payloads up to 64KiB.
	maxWebhookBytes = 65536
)

var (
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrMissingSignature    = errors.New("missing signature")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrUnexpectedEventType = errors.New("unexpected event type")
	ErrMalformedEvent      = errors.New("malformed event")
	ErrUnconfirmedWrite    = errors.New("store did not confirm the write")

	errDuplicateEvent = errors.New("event already processed")
)

// completion describes a processed webhook delivery.
type completion struct {
	EventID   string
	EventType string
	RecordID  string
	Fields    airtable.Fields
}

func (m *Module) handleCheckoutComplete(r *http.Request, ps httprouter.Params) engine.Response {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes+1))
	if err != nil {
		return engine.Error(fmt.Errorf("reading webhook body: %w", err))
	}
	if len(payload) > maxWebhookBytes {
		slog.Warn("rejected stripe webhook", "error", ErrPayloadTooLarge, "limit", maxWebhookBytes)
		m.events.LogEvent(r.Context(), "stripe", "WebhookRejected", "", false, ErrPayloadTooLarge.Error())
		return engine.Message(http.StatusRequestEntityTooLarge, "Payload too large.")
	}

	c, err := m.completeCheckout(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil, errors.Is(err, errDuplicateEvent):
	case errors.Is(err, ErrUnexpectedEventType) && m.ackUnexpectedEvents:
		m.events.LogEvent(r.Context(), "stripe", "WebhookIgnored", c.EventID, true, c.EventType)
	default:
		m.events.LogEvent(r.Context(), "stripe", "WebhookRejected", c.EventID, false, err.Error())
	}

	switch {
	case err == nil:
		m.events.LogEvent(r.Context(), "stripe", "WebhookReceived", c.EventID, true, fmt.Sprintf("record=%s amount=%s", c.RecordID, c.Fields.Amount))
		slog.Info("recorded donation", "event", c.EventID, "record", c.RecordID, "amount", c.Fields.Amount.String())
		return engine.Message(http.StatusOK, "Success.")

	case errors.Is(err, errDuplicateEvent):
		slog.Info("skipping stripe event that was already processed", "event", c.EventID)
		return engine.Message(http.StatusOK, "Success.")

	case errors.Is(err, ErrMissingSignature):
		slog.Warn("rejected stripe webhook", "error", err)
		return engine.Message(http.StatusBadRequest, "Missing signature")

	case errors.Is(err, ErrInvalidSignature):
		slog.Warn("rejected stripe webhook", "error", err)
		return engine.Message(http.StatusBadRequest, "Invalid signature.")

	case errors.Is(err, ErrUnexpectedEventType):
		if m.ackUnexpectedEvents {
			slog.Debug("ignoring stripe webhook event", "event", c.EventID, "type", c.EventType)
			return engine.Message(http.StatusOK, "Ignored.")
		}
		slog.Warn("rejected stripe webhook", "error", err, "event", c.EventID)
		return engine.Message(http.StatusBadRequest, "Invalid event type.")

	case errors.Is(err, ErrMalformedEvent):
		slog.Warn("rejected stripe webhook", "error", err, "event", c.EventID)
		return engine.Message(http.StatusBadRequest, "Malformed event.")

	case errors.Is(err, ErrUnconfirmedWrite):
		slog.Error("donation store did not confirm write", "event", c.EventID)
		return engine.Message(http.StatusBadGateway, "Store did not confirm write.")

	default:
		return engine.Error(fmt.Errorf("processing stripe event %s: %w", c.EventID, err))
	}
}

// completeCheckout verifies a webhook delivery and records the donation it confirms.
// The returned completion is populated as far as processing got, even on error.
func (m *Module) completeCheckout(ctx context.Context, payload []byte, signature string) (*completion, error) {
	c := &completion{}
	if signature == "" {
		return c, ErrMissingSignature
	}

	// The signature covers the raw bytes so nothing may parse the payload before this
	event, err := m.verify(payload, signature)
	if err != nil {
		return c, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}
	c.EventID = event.ID
	c.EventType = string(event.Type)

	if c.EventType != checkoutSessionCompleted {
		return c, fmt.Errorf("%w: %s", ErrUnexpectedEventType, c.EventType)
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return c, fmt.Errorf("%w: no data object", ErrMalformedEvent)
	}

	sess := &stripe.CheckoutSession{}
	if err := json.Unmarshal(event.Data.Raw, sess); err != nil {
		return c, fmt.Errorf("%w: %s", ErrMalformedEvent, err)
	}
	c.Fields = airtable.Fields{
		Name:    sess.Metadata["name"],
		Message: sess.Metadata["message"],
		Amount:  pricing.Major(sess.AmountTotal),
	}

	if m.ledger != nil {
		claimed, err := m.ledger.Claim(ctx, c.EventID)
		if err != nil {
			return c, fmt.Errorf("claiming event: %w", err)
		}
		if !claimed {
			return c, errDuplicateEvent
		}
	}

	rec, err := m.recorder.Insert(ctx, c.Fields)
	if err == nil && rec.ID == "" && m.requireStoreAck {
		err = ErrUnconfirmedWrite
	}
	if err != nil {
		m.events.LogEvent(ctx, "airtable", "InsertFailed", c.EventID, false, err.Error())
		if m.ledger != nil {
			if rerr := m.ledger.Release(ctx, c.EventID); rerr != nil {
				slog.Error("failed to release stripe event claim", "error", rerr, "event", c.EventID)
			}
		}
		return c, err
	}
	c.RecordID = rec.ID

	if m.ledger != nil {
		if err := m.ledger.Complete(ctx, c.EventID, c.RecordID); err != nil {
			// The record exists at this point, so the provider must not redeliver
			slog.Error("failed to mark stripe event as processed", "error", err, "event", c.EventID)
		}
	}
	return c, nil
}
