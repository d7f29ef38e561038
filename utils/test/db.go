package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/oneclickdz/ocpay-reconciler/storage"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database with the order tables migrated
func SetupTestDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// sqlite allows one writer; a single connection serializes concurrent transactions
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SetupTestRedis starts a miniredis server and returns a client connected to it
func SetupTestRedis(t testing.TB) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

// CreateTestOrder creates an OCPay order awaiting payment, applying overrides on top of the defaults
func CreateTestOrder(store types.OrderStore, overrides map[string]interface{}) (*types.Order, error) {
	payload := map[string]interface{}{
		"id":             uuid.New().String(),
		"customer_id":    "customer-1",
		"status":         types.OrderStatusPending,
		"payment_method": "ocpay",
		"payment_ref":    "abc123def456",
		"total":          decimal.NewFromInt(2500),
		"currency":       "DZD",
		"title":          "Order #1001",
		"billing_email":  "customer@example.com",
		"billing_name":   "Amina Benali",
		"return_url":     "https://shop.example.com/checkout/order-received/1001",
		"created_at":     time.Now().Add(-5 * time.Minute),
	}
	for key, value := range overrides {
		payload[key] = value
	}

	order := &types.Order{
		ID:               payload["id"].(string),
		CustomerID:       payload["customer_id"].(string),
		Status:           payload["status"].(types.OrderStatus),
		PaymentMethod:    payload["payment_method"].(string),
		PaymentReference: payload["payment_ref"].(string),
		Total:            payload["total"].(decimal.Decimal),
		Currency:         payload["currency"].(string),
		Title:            payload["title"].(string),
		BillingEmail:     payload["billing_email"].(string),
		BillingName:      payload["billing_name"].(string),
		ReturnURL:        payload["return_url"].(string),
		CreatedAt:        payload["created_at"].(time.Time),
	}
	if order.PaymentReference != "" {
		order.Meta = map[string]string{types.MetaPaymentRef: order.PaymentReference}
	}

	if err := store.Create(context.Background(), order); err != nil {
		return nil, err
	}
	return order, nil
}

// PerformRequest performs an http request against the router and records the response
func PerformRequest(t *testing.T, method string, path string, payload interface{}, headers map[string]string, router *gin.Engine) (*httptest.ResponseRecorder, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequest(method, path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w, nil
}
