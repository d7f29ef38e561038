package types

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the commerce status of an order
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusOnHold     OrderStatus = "on-hold"
	OrderStatusFailed     OrderStatus = "failed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsTerminal reports whether reconciliation never moves an order out of this status
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus is the status reported by the payment provider
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Order metadata keys written during checkout and reconciliation
const (
	MetaPaymentRef    = "_ocpay_payment_ref"
	MetaLastStatus    = "_ocpay_last_status"
	MetaLastCheckedAt = "_ocpay_last_checked_at"
	MetaConfirmedAt   = "_ocpay_confirmed_at"
	MetaFailedAt      = "_ocpay_failed_at"
)

// ErrOrderNotFound is returned when an order id or payment reference does not resolve
var ErrOrderNotFound = errors.New("order not found")

// Order is the subset of a commerce order the service reads and mutates
type Order struct {
	ID               string
	CustomerID       string
	Status           OrderStatus
	PaymentMethod    string
	PaymentReference string
	Total            decimal.Decimal
	Currency         string
	Title            string
	BillingEmail     string
	BillingName      string
	ReturnURL        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Meta             map[string]string
}

// Age returns how long ago the order was created
func (o *Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// OrderNote is an append-only audit note attached to an order
type OrderNote struct {
	ID        uint
	OrderID   string
	Content   string
	CreatedAt time.Time
}

// OrderQuery selects orders by criteria. Zero values are ignored.
type OrderQuery struct {
	PaymentMethod       string
	Statuses            []OrderStatus
	CustomerID          string
	HasPaymentReference bool
	CreatedAfter        time.Time
	CreatedBefore       time.Time
	Limit               int
	NewestFirst         bool
}

// StatusTransition describes a guarded status change.
// It applies only when the current status is one of From.
type StatusTransition struct {
	From []OrderStatus
	To   OrderStatus
	Meta map[string]string
	Note string
}

// OrderStore is the order persistence boundary
type OrderStore interface {
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByPaymentReference(ctx context.Context, ref string) (*Order, error)
	Find(ctx context.Context, query OrderQuery) ([]*Order, error)
	Count(ctx context.Context, query OrderQuery) (int64, error)
	AttachPaymentReference(ctx context.Context, id, ref, note string) error
	Transition(ctx context.Context, id string, transition StatusTransition) (bool, error)
	SetMeta(ctx context.Context, id string, meta map[string]string) error
	Notes(ctx context.Context, id string) ([]OrderNote, error)
}

// PaymentCheckResult is a normalized checkPayment response
type PaymentCheckResult struct {
	Reference string
	Status    PaymentStatus
	Data      map[string]interface{}
}

// ProductInfo is the product block of a createLink request
type ProductInfo struct {
	Title    string `json:"title" validate:"required,max=200"`
	Amount   int64  `json:"amount" validate:"gte=500,lte=100000000"`
	Currency string `json:"currency" validate:"required,eq=DZD"`
}

// CreateLinkRequest is the createLink request body
type CreateLinkRequest struct {
	ProductInfo ProductInfo `json:"productInfo" validate:"required"`
	FeeMode     string      `json:"feeMode" validate:"required,oneof=NO_FEE SPLIT_FEE CUSTOMER_FEE"`
	RedirectURL string      `json:"redirectUrl" validate:"required,url,startswith=http"`
}

// CreateLinkResult is a normalized createLink response
type CreateLinkResult struct {
	PaymentURL string `json:"paymentUrl"`
	PaymentRef string `json:"paymentRef"`
}

// PaymentStatusChecker queries the provider for a payment's status
type PaymentStatusChecker interface {
	CheckPayment(ctx context.Context, ref string) (*PaymentCheckResult, error)
}

// PaymentLinkCreator creates hosted payment links
type PaymentLinkCreator interface {
	CreateLink(ctx context.Context, req CreateLinkRequest) (*CreateLinkResult, error)
}

// EventType names a payment domain event
type EventType string

const (
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
)

// PaymentEvent is emitted after a terminal transition has been committed
type PaymentEvent struct {
	ID           string          `json:"id"`
	Type         EventType       `json:"type"`
	OrderID      string          `json:"order_id"`
	CustomerID   string          `json:"customer_id,omitempty"`
	PaymentRef   string          `json:"payment_ref"`
	Status       OrderStatus     `json:"status"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	BillingEmail string          `json:"billing_email,omitempty"`
	BillingName  string          `json:"billing_name,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// EventPublisher receives payment domain events
type EventPublisher interface {
	Publish(ctx context.Context, event PaymentEvent) error
}

// ReconcileOutcome is the tagged result of one reconciliation
type ReconcileOutcome string

const (
	OutcomeConfirmed    ReconcileOutcome = "confirmed"
	OutcomeFailed       ReconcileOutcome = "failed"
	OutcomeStillPending ReconcileOutcome = "still_pending"
	OutcomeSkipped      ReconcileOutcome = "skipped"
)

// SkipReason explains a no-op reconciliation
type SkipReason string

const (
	SkipPaymentMethod SkipReason = "payment_method"
	SkipStatus        SkipReason = "status"
	SkipNoReference   SkipReason = "no_reference"
	SkipStale         SkipReason = "stale"
	SkipRaceLost      SkipReason = "race_lost"
)

// ReconcileResult describes what a reconciliation did
type ReconcileResult struct {
	OrderID        string           `json:"order_id"`
	Outcome        ReconcileOutcome `json:"outcome"`
	SkipReason     SkipReason       `json:"skip_reason,omitempty"`
	Status         OrderStatus      `json:"status"`
	ProviderStatus PaymentStatus    `json:"provider_status,omitempty"`
}

// Updated reports whether this call changed the order's status
func (r ReconcileResult) Updated() bool {
	return r.Outcome == OutcomeConfirmed || r.Outcome == OutcomeFailed
}

// SweepTier selects which pending orders a sweep covers
type SweepTier string

const (
	SweepTierRecent SweepTier = "recent"
	SweepTierFull   SweepTier = "full"
	SweepTierStuck  SweepTier = "stuck"
)

// SweepStats records one sweep run
type SweepStats struct {
	Tier       SweepTier `json:"tier"`
	Skipped    bool      `json:"skipped"`
	Checked    int       `json:"checked"`
	Updated    int       `json:"updated"`
	Errors     int       `json:"errors"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Response is the envelope of admin and API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StorefrontResponse is the envelope the storefront poller consumes
type StorefrontResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

// StatusCheckData is the success payload of the poll endpoint
type StatusCheckData struct {
	Updated bool   `json:"updated"`
	Status  string `json:"status"`
}

// MessageData is the failure payload of storefront endpoints
type MessageData struct {
	Message string `json:"message"`
}

// StatusCheckPayload is the poll endpoint request body
type StatusCheckPayload struct {
	Nonce string `json:"nonce"`
}

// PollConfig is handed to a storefront to start a poll session
type PollConfig struct {
	OrderID         string  `json:"orderId"`
	Endpoint        string  `json:"endpoint"`
	Nonce           string  `json:"nonce"`
	IntervalsMs     []int64 `json:"intervalsMs"`
	MaxAttempts     int     `json:"maxAttempts"`
	RedirectDelayMs int64   `json:"redirectDelayMs"`
}

// PageViewResponse is returned by the storefront page-view hooks
type PageViewResponse struct {
	OrderID string      `json:"orderId"`
	Status  OrderStatus `json:"status"`
	Updated bool        `json:"updated"`
	Poll    *PollConfig `json:"poll,omitempty"`
}

// PaymentReturnResponse is returned to a customer coming back from the provider
type PaymentReturnResponse struct {
	OrderID     string `json:"orderId"`
	Result      string `json:"result"`
	Message     string `json:"message"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// CreatePaymentResponse is returned after a payment link was created
type CreatePaymentResponse struct {
	OrderID    string `json:"orderId"`
	PaymentURL string `json:"paymentUrl"`
	PaymentRef string `json:"paymentRef"`
}

// SendEmailPayload is the payload for sending an email
type SendEmailPayload struct {
	FromAddress string
	ToAddress   string
	Subject     string
	Body        string
	HTMLBody    string
	DynamicData map[string]interface{}
}

// SendEmailResponse is the response of an email provider
type SendEmailResponse struct {
	Id       string
	Response string
}

// HealthCheck is one diagnostics check
type HealthCheck struct {
	Label   string `json:"label"`
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
}

// OrderStats summarises pending provider orders for diagnostics
type OrderStats struct {
	PendingCount   int64 `json:"pending_count"`
	RecentCount    int64 `json:"recent_count"`
	StuckCount     int64 `json:"stuck_count"`
	TodayProcessed int64 `json:"today_processed"`
}

// CronStatus describes one scheduled sweep tier
type CronStatus struct {
	Tier     SweepTier   `json:"tier"`
	Interval string      `json:"interval"`
	Active   bool        `json:"active"`
	NextRun  *time.Time  `json:"next_run,omitempty"`
	LastRun  *SweepStats `json:"last_run,omitempty"`
}

// DiagnosticsResponse is the admin diagnostics payload
type DiagnosticsResponse struct {
	Checks map[string]HealthCheck `json:"checks"`
	Stats  OrderStats             `json:"stats"`
	Crons  []CronStatus           `json:"crons"`
}

// ConnectionTestResult is the result of a provider connectivity probe
type ConnectionTestResult struct {
	Reachable  bool   `json:"reachable"`
	KeyValid   bool   `json:"key_valid"`
	Mode       string `json:"mode"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	LatencyMs  int64  `json:"latency_ms"`
}
