package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/oneclickdz/ocpay-reconciler/services/ocpay"
	"github.com/oneclickdz/ocpay-reconciler/storage"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils/test"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{GatewayID: "ocpay", FeeMode: "SPLIT_FEE"}
}

func newOrder(t *testing.T, store types.OrderStore, overrides map[string]interface{}) *types.Order {
	defaults := map[string]interface{}{
		"status":      types.OrderStatusCreated,
		"payment_ref": "",
	}
	for key, value := range overrides {
		defaults[key] = value
	}
	order, err := test.CreateTestOrder(store, defaults)
	require.NoError(t, err)
	return order
}

func TestCreatePaymentLink(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the reference and moves the order to pending", func(t *testing.T) {
		store := storage.NewOrderStore(test.SetupTestDB(t))
		order := newOrder(t, store, nil)

		provider := &test.MockProvider{}
		provider.On("CreateLink", mock.Anything, mock.MatchedBy(func(req types.CreateLinkRequest) bool {
			return req.ProductInfo.Amount == 2500 &&
				req.ProductInfo.Currency == "DZD" &&
				req.ProductInfo.Title == "Order #1001" &&
				req.FeeMode == "SPLIT_FEE" &&
				req.RedirectURL == order.ReturnURL
		})).Return(&types.CreateLinkResult{PaymentURL: "https://pay.oneclickdz.com/p/abc123def456", PaymentRef: "abc123def456"}, nil)

		service := NewService(store, provider, testConfig())
		res, err := service.CreatePaymentLink(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, "https://pay.oneclickdz.com/p/abc123def456", res.PaymentURL)
		assert.Equal(t, "abc123def456", res.PaymentRef)

		updated, err := store.FindByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, types.OrderStatusPending, updated.Status)
		assert.Equal(t, "abc123def456", updated.PaymentReference)
		assert.Equal(t, "abc123def456", updated.Meta[types.MetaPaymentRef])

		notes, err := store.Notes(ctx, order.ID)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "OCPay payment link created. Payment Reference: abc123def456", notes[0].Content)
		provider.AssertExpectations(t)
	})

	t.Run("configured return URL carries the order id", func(t *testing.T) {
		store := storage.NewOrderStore(test.SetupTestDB(t))
		order := newOrder(t, store, map[string]interface{}{
			"title": "<b>Order #1002</b> - Boutique " + strings.Repeat("x", 300),
			"total": decimal.RequireFromString("1299.50"),
		})

		var sent types.CreateLinkRequest
		provider := &test.MockProvider{}
		provider.On("CreateLink", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { sent = args.Get(1).(types.CreateLinkRequest) }).
			Return(&types.CreateLinkResult{PaymentURL: "https://pay.oneclickdz.com/p/ref-0000000002", PaymentRef: "ref-0000000002"}, nil)

		conf := testConfig()
		conf.ReturnURL = "https://pay.shop.example.com/v1/ocpay/return"
		_, err := NewService(store, provider, conf).CreatePaymentLink(ctx, order.ID)
		require.NoError(t, err)

		assert.Equal(t, "https://pay.shop.example.com/v1/ocpay/return?order_id="+order.ID, sent.RedirectURL)
		assert.Equal(t, int64(1300), sent.ProductInfo.Amount)
		assert.Len(t, []rune(sent.ProductInfo.Title), 200)
		assert.True(t, strings.HasPrefix(sent.ProductInfo.Title, "Order #1002 - Boutique"))
	})

	t.Run("missing API key blocks checkout", func(t *testing.T) {
		store := storage.NewOrderStore(test.SetupTestDB(t))
		order := newOrder(t, store, nil)

		_, err := NewService(store, nil, testConfig()).CreatePaymentLink(ctx, order.ID)
		assert.True(t, errors.Is(err, ocpay.ErrMissingAPIKey))
		assert.Equal(t, "OCPay is not configured. Please contact the store administrator.", ocpay.UserMessage(err))
	})

	t.Run("invalid orders never reach the provider", func(t *testing.T) {
		cases := []struct {
			name       string
			overrides  map[string]interface{}
			notPayable bool
		}{
			{name: "foreign currency", overrides: map[string]interface{}{"currency": "EUR"}},
			{name: "amount below minimum", overrides: map[string]interface{}{"total": decimal.NewFromInt(100)}},
			{name: "amount above maximum", overrides: map[string]interface{}{"total": decimal.NewFromInt(200000000)}},
			{name: "relative return URL", overrides: map[string]interface{}{"return_url": "/checkout/order-received/1001"}},
			{name: "already paid", overrides: map[string]interface{}{"status": types.OrderStatusProcessing}, notPayable: true},
			{name: "other gateway", overrides: map[string]interface{}{"payment_method": "cod"}, notPayable: true},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				store := storage.NewOrderStore(test.SetupTestDB(t))
				order := newOrder(t, store, tc.overrides)
				provider := &test.MockProvider{}

				_, err := NewService(store, provider, testConfig()).CreatePaymentLink(ctx, order.ID)
				require.Error(t, err)
				if tc.notPayable {
					assert.True(t, errors.Is(err, ErrOrderNotPayable))
				} else {
					var apiErr *ocpay.APIError
					require.True(t, errors.As(err, &apiErr))
					assert.Equal(t, ocpay.KindValidation, apiErr.Kind)
				}
				provider.AssertNotCalled(t, "CreateLink", mock.Anything, mock.Anything)
			})
		}
	})

	t.Run("provider failure leaves the order untouched", func(t *testing.T) {
		store := storage.NewOrderStore(test.SetupTestDB(t))
		order := newOrder(t, store, nil)

		provider := &test.MockProvider{}
		provider.On("CreateLink", mock.Anything, mock.Anything).
			Return(nil, &ocpay.APIError{Kind: ocpay.KindAPIKeyInvalid, StatusCode: 401})

		_, err := NewService(store, provider, testConfig()).CreatePaymentLink(ctx, order.ID)
		require.Error(t, err)

		unchanged, err := store.FindByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, types.OrderStatusCreated, unchanged.Status)
		assert.Empty(t, unchanged.PaymentReference)
	})

	t.Run("unknown order", func(t *testing.T) {
		store := storage.NewOrderStore(test.SetupTestDB(t))
		_, err := NewService(store, &test.MockProvider{}, testConfig()).CreatePaymentLink(ctx, "missing")
		assert.True(t, errors.Is(err, types.ErrOrderNotFound))
	})
}
