package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderModel is the orders table
type OrderModel struct {
	ID               string          `gorm:"primaryKey;size:64"`
	CustomerID       string          `gorm:"size:64;index"`
	Status           string          `gorm:"size:20;index;not null"`
	PaymentMethod    string          `gorm:"size:50;index"`
	PaymentReference string          `gorm:"size:64;index"`
	Total            decimal.Decimal `gorm:"type:decimal(20,2)"`
	Currency         string          `gorm:"size:3"`
	Title            string          `gorm:"size:255"`
	BillingEmail     string          `gorm:"size:255"`
	BillingName      string          `gorm:"size:255"`
	ReturnURL        string          `gorm:"size:512"`
	CreatedAt        time.Time       `gorm:"index"`
	UpdatedAt        time.Time
	Meta             []OrderMetaModel `gorm:"foreignKey:OrderID"`
}

// TableName overrides the default table name
func (OrderModel) TableName() string {
	return "orders"
}

// OrderMetaModel is a key/value metadata row of an order
type OrderMetaModel struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"size:64;uniqueIndex:idx_order_meta_key"`
	Key       string `gorm:"column:meta_key;size:100;uniqueIndex:idx_order_meta_key"`
	Value     string `gorm:"column:meta_value;type:text"`
	UpdatedAt time.Time
}

// TableName overrides the default table name
func (OrderMetaModel) TableName() string {
	return "order_meta"
}

// OrderNoteModel is an audit note of an order
type OrderNoteModel struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"size:64;index"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
}

// TableName overrides the default table name
func (OrderNoteModel) TableName() string {
	return "order_notes"
}
