package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/oneclickdz/ocpay-reconciler/config"
	"github.com/oneclickdz/ocpay-reconciler/services/ocpay"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/oneclickdz/ocpay-reconciler/utils"
	"github.com/oneclickdz/ocpay-reconciler/utils/logger"
)

const (
	linkCreatedNote = "OCPay payment link created. Payment Reference: %s"
	maxTitleLength  = 200
)

// ErrOrderNotPayable means the order is not an unpaid gateway order
var ErrOrderNotPayable = errors.New("order cannot be paid with OCPay")

// Config holds the checkout settings
type Config struct {
	GatewayID string
	FeeMode   string
	// ReturnURL overrides the order's own return URL; the order id is appended as a query parameter
	ReturnURL string
}

// ConfigFrom builds the checkout settings from the service configuration
func ConfigFrom(conf *config.OCPayConfiguration) Config {
	return Config{
		GatewayID: conf.GatewayID,
		FeeMode:   conf.FeeMode,
		ReturnURL: conf.ReturnURL,
	}
}

// Service creates hosted payment links for orders
type Service struct {
	store    types.OrderStore
	creator  types.PaymentLinkCreator
	conf     Config
	validate *validator.Validate
}

// NewService creates a checkout service. creator may be nil when OCPay is not configured.
func NewService(store types.OrderStore, creator types.PaymentLinkCreator, conf Config) *Service {
	if conf.FeeMode == "" {
		conf.FeeMode = "NO_FEE"
	}
	return &Service{
		store:    store,
		creator:  creator,
		conf:     conf,
		validate: validator.New(),
	}
}

// CreatePaymentLink creates a payment link for the order and records its reference
func (s *Service) CreatePaymentLink(ctx context.Context, orderID string) (*types.CreatePaymentResponse, error) {
	if s.creator == nil {
		logger.WithFields(logger.Fields{"OrderID": orderID}).Errorf("Checkout.CreatePaymentLink: API client not configured")
		return nil, ocpay.ErrMissingAPIKey
	}

	order, err := s.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentMethod != s.conf.GatewayID ||
		(order.Status != types.OrderStatusCreated && order.Status != types.OrderStatusPending) {
		return nil, fmt.Errorf("%w: status %s, method %s", ErrOrderNotPayable, order.Status, order.PaymentMethod)
	}

	req, err := s.linkRequest(order)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, &ocpay.APIError{Kind: ocpay.KindValidation, Message: err.Error(), Err: err}
	}

	link, err := s.creator.CreateLink(ctx, req)
	if err != nil {
		logger.WithFields(logger.Fields{
			"Error":   fmt.Sprintf("%v", err),
			"OrderID": order.ID,
		}).Errorf("Checkout.CreateLink")
		return nil, err
	}

	if err := s.store.AttachPaymentReference(ctx, order.ID, link.PaymentRef, fmt.Sprintf(linkCreatedNote, link.PaymentRef)); err != nil {
		return nil, fmt.Errorf("attach payment reference: %w", err)
	}

	logger.WithFields(logger.Fields{
		"OrderID":    order.ID,
		"PaymentRef": link.PaymentRef,
	}).Infof("Checkout: payment link created")

	return &types.CreatePaymentResponse{
		OrderID:    order.ID,
		PaymentURL: link.PaymentURL,
		PaymentRef: link.PaymentRef,
	}, nil
}

func (s *Service) linkRequest(order *types.Order) (types.CreateLinkRequest, error) {
	title := utils.SanitizeText(order.Title, maxTitleLength)
	if title == "" {
		title = fmt.Sprintf("Order #%s", order.ID)
	}

	redirectURL := order.ReturnURL
	if s.conf.ReturnURL != "" {
		var err error
		redirectURL, err = utils.AppendQuery(s.conf.ReturnURL, map[string]string{"order_id": order.ID})
		if err != nil {
			return types.CreateLinkRequest{}, &ocpay.APIError{Kind: ocpay.KindValidation, Message: "invalid return URL", Err: err}
		}
	}
	if !utils.IsValidHttpUrl(redirectURL) {
		return types.CreateLinkRequest{}, &ocpay.APIError{Kind: ocpay.KindValidation, Message: fmt.Sprintf("invalid redirect URL %q", redirectURL)}
	}

	return types.CreateLinkRequest{
		ProductInfo: types.ProductInfo{
			Title:    title,
			Amount:   utils.ToWholeUnits(order.Total),
			Currency: order.Currency,
		},
		FeeMode:     s.conf.FeeMode,
		RedirectURL: redirectURL,
	}, nil
}
