package payment

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckout(t *testing.T) {
	env := newTestEnv(t, nil)

	env.POST("/api/checkout").
		WithJSON(map[string]any{"quantity": 3, "name": "Ada", "message": "thanks!"}).
		Expect().
		Status(http.StatusOK).
		JSON().Object().IsEqual(map[string]any{"url": "https://checkout.stripe.com/c/pay/cs_test_123"})

	params := env.Sessions.Params()
	require.Len(t, params, 1)
	p := params[0]
	assert.Equal(t, "payment", *p.Mode)
	assert.Equal(t, "donate", *p.SubmitType)
	assert.Equal(t, "https://tips.example.com/?status=success", *p.SuccessURL)
	assert.Equal(t, "https://tips.example.com/?status=cancelled", *p.CancelURL)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(3), *p.LineItems[0].Quantity)
	assert.Equal(t, int64(500), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, "Beer", *p.LineItems[0].PriceData.ProductData.Name)
	assert.Equal(t, map[string]string{"name": "Ada", "message": "thanks!"}, p.Metadata)
	assert.NotNil(t, p.Context)
}

func TestCreateCheckoutQuantityBounds(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		ok       bool
	}{
		{name: "zero", quantity: 0},
		{name: "negative", quantity: -1},
		{name: "one", quantity: 1, ok: true},
		{name: "max", quantity: 20, ok: true},
		{name: "above max", quantity: 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			_, err := env.Module.CreateCheckout(t.Context(), Intent{Quantity: tt.quantity})
			if tt.ok {
				require.NoError(t, err)
				assert.Len(t, env.Sessions.Params(), 1)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidQuantity)
			assert.True(t, IsClientError(err))
			assert.Empty(t, env.Sessions.Params(), "no session may be created for an invalid quantity")
		})
	}
}

func TestCreateCheckoutInvalidQuantityResponse(t *testing.T) {
	env := newTestEnv(t, nil)

	env.POST("/api/checkout").
		WithJSON(map[string]any{"quantity": 0}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().IsEqual(map[string]any{"error": "Quantity must be between 1 and 20."})

	assert.Empty(t, env.Sessions.Params())
}

func TestCreateCheckoutTextLimits(t *testing.T) {
	env := newTestEnv(t, nil)

	env.POST("/api/checkout").
		WithJSON(map[string]any{"quantity": 1, "name": strings.Repeat("a", 101)}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").IsEqual("Name must be at most 100 characters.")

	env.POST("/api/checkout").
		WithJSON(map[string]any{"quantity": 1, "message": strings.Repeat("é", 501)}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").IsEqual("Message must be at most 500 characters.")

	// Limits count characters, not bytes
	env.POST("/api/checkout").
		WithJSON(map[string]any{"quantity": 1, "message": strings.Repeat("é", 500)}).
		Expect().
		Status(http.StatusOK)

	assert.Len(t, env.Sessions.Params(), 1)
}

func TestCreateCheckoutBadRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	env.POST("/api/checkout").
		WithText("not json").
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().IsEqual(map[string]any{"error": "Invalid request."})

	env.POST("/api/checkout").
		WithJSON(map[string]any{"quantity": 1.5}).
		Expect().
		Status(http.StatusBadRequest)

	assert.Empty(t, env.Sessions.Params())
}

func TestCreateCheckoutProviderFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.Sessions.err = errors.New("stripe is down")

	env.POST("/api/checkout").
		WithJSON(map[string]any{"quantity": 1}).
		Expect().
		Status(http.StatusInternalServerError).
		Body().NotContains("stripe is down")
}

func TestCreateCheckoutMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, nil)

	env.GET("/api/checkout").
		Expect().
		Status(http.StatusMethodNotAllowed)
}
