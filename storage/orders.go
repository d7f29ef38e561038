package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oneclickdz/ocpay-reconciler/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrOrderNotFound is returned when no order matches the lookup
var ErrOrderNotFound = types.ErrOrderNotFound

// OrderStore is the gorm implementation of types.OrderStore
type OrderStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewOrderStore creates an order store on top of a gorm connection
func NewOrderStore(db *gorm.DB) *OrderStore {
	return &OrderStore{db: db, now: time.Now}
}

// Create inserts a new order together with its metadata
func (s *OrderStore) Create(ctx context.Context, order *types.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.Status == "" {
		order.Status = types.OrderStatusCreated
	}

	model := &OrderModel{
		ID:               order.ID,
		CustomerID:       order.CustomerID,
		Status:           string(order.Status),
		PaymentMethod:    order.PaymentMethod,
		PaymentReference: order.PaymentReference,
		Total:            order.Total,
		Currency:         order.Currency,
		Title:            order.Title,
		BillingEmail:     order.BillingEmail,
		BillingName:      order.BillingName,
		ReturnURL:        order.ReturnURL,
		CreatedAt:        order.CreatedAt,
	}
	for key, value := range order.Meta {
		model.Meta = append(model.Meta, OrderMetaModel{OrderID: order.ID, Key: key, Value: value})
	}

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("create order %s: %w", order.ID, err)
	}
	order.CreatedAt = model.CreatedAt
	order.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID fetches an order with its metadata
func (s *OrderStore) FindByID(ctx context.Context, id string) (*types.Order, error) {
	var model OrderModel
	err := s.db.WithContext(ctx).Preload("Meta").Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}
		return nil, err
	}
	return toOrder(&model), nil
}

// FindByPaymentReference fetches the order a payment reference was issued for
func (s *OrderStore) FindByPaymentReference(ctx context.Context, ref string) (*types.Order, error) {
	var model OrderModel
	err := s.db.WithContext(ctx).Preload("Meta").
		Where("payment_reference = ?", ref).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reference %s", ErrOrderNotFound, ref)
		}
		return nil, err
	}
	return toOrder(&model), nil
}

// Find returns the orders matching the query, oldest first unless NewestFirst is set
func (s *OrderStore) Find(ctx context.Context, query types.OrderQuery) ([]*types.Order, error) {
	tx := applyQuery(s.db.WithContext(ctx).Model(&OrderModel{}), query)
	if query.NewestFirst {
		tx = tx.Order("created_at DESC")
	} else {
		tx = tx.Order("created_at ASC")
	}
	if query.Limit > 0 {
		tx = tx.Limit(query.Limit)
	}

	var models []OrderModel
	if err := tx.Preload("Meta").Find(&models).Error; err != nil {
		return nil, err
	}

	orders := make([]*types.Order, 0, len(models))
	for i := range models {
		orders = append(orders, toOrder(&models[i]))
	}
	return orders, nil
}

// Count returns the number of orders matching the query, ignoring its limit
func (s *OrderStore) Count(ctx context.Context, query types.OrderQuery) (int64, error) {
	var count int64
	err := applyQuery(s.db.WithContext(ctx).Model(&OrderModel{}), query).Count(&count).Error
	return count, err
}

// AttachPaymentReference stores a freshly issued payment reference and moves a new order to pending
func (s *OrderStore) AttachPaymentReference(ctx context.Context, id, ref, note string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&OrderModel{}).Where("id = ?", id).Updates(map[string]interface{}{
			"payment_reference": ref,
			"updated_at":        s.now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, id)
		}

		err := tx.Model(&OrderModel{}).
			Where("id = ? AND status = ?", id, string(types.OrderStatusCreated)).
			Update("status", string(types.OrderStatusPending)).Error
		if err != nil {
			return err
		}

		if err := upsertMeta(tx, id, map[string]string{types.MetaPaymentRef: ref}, s.now()); err != nil {
			return err
		}
		return addNote(tx, id, note)
	})
}

// Transition applies a guarded status change. The status update, metadata and note are
// written in one transaction and only when the order was still in one of t.From, so
// concurrent callers racing on the same order apply it at most once.
func (s *OrderStore) Transition(ctx context.Context, id string, t types.StatusTransition) (bool, error) {
	if len(t.From) == 0 {
		return false, fmt.Errorf("transition of order %s has no source status", id)
	}

	from := make([]string, 0, len(t.From))
	for _, status := range t.From {
		from = append(from, string(status))
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.now()
		res := tx.Model(&OrderModel{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(map[string]interface{}{
				"status":     string(t.To),
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		if err := upsertMeta(tx, id, t.Meta, now); err != nil {
			return err
		}
		return addNote(tx, id, t.Note)
	})
	if err != nil {
		return false, fmt.Errorf("transition order %s to %s: %w", id, t.To, err)
	}
	return applied, nil
}

// SetMeta writes metadata without touching the status
func (s *OrderStore) SetMeta(ctx context.Context, id string, meta map[string]string) error {
	return upsertMeta(s.db.WithContext(ctx), id, meta, s.now())
}

// Notes returns the audit notes of an order in insertion order
func (s *OrderStore) Notes(ctx context.Context, id string) ([]types.OrderNote, error) {
	var models []OrderNoteModel
	if err := s.db.WithContext(ctx).Where("order_id = ?", id).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}

	notes := make([]types.OrderNote, 0, len(models))
	for _, m := range models {
		notes = append(notes, types.OrderNote{
			ID:        m.ID,
			OrderID:   m.OrderID,
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return notes, nil
}

func applyQuery(tx *gorm.DB, query types.OrderQuery) *gorm.DB {
	if query.PaymentMethod != "" {
		tx = tx.Where("payment_method = ?", query.PaymentMethod)
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, string(status))
		}
		tx = tx.Where("status IN ?", statuses)
	}
	if query.CustomerID != "" {
		tx = tx.Where("customer_id = ?", query.CustomerID)
	}
	if query.HasPaymentReference {
		tx = tx.Where("payment_reference <> ''")
	}
	if !query.CreatedAfter.IsZero() {
		tx = tx.Where("created_at >= ?", query.CreatedAfter)
	}
	if !query.CreatedBefore.IsZero() {
		tx = tx.Where("created_at < ?", query.CreatedBefore)
	}
	return tx
}

func upsertMeta(tx *gorm.DB, orderID string, meta map[string]string, now time.Time) error {
	if len(meta) == 0 {
		return nil
	}

	rows := make([]OrderMetaModel, 0, len(meta))
	for key, value := range meta {
		rows = append(rows, OrderMetaModel{OrderID: orderID, Key: key, Value: value, UpdatedAt: now})
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "meta_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"meta_value", "updated_at"}),
	}).Create(&rows).Error
}

func addNote(tx *gorm.DB, orderID, content string) error {
	if content == "" {
		return nil
	}
	return tx.Create(&OrderNoteModel{OrderID: orderID, Content: content}).Error
}

func toOrder(m *OrderModel) *types.Order {
	order := &types.Order{
		ID:               m.ID,
		CustomerID:       m.CustomerID,
		Status:           types.OrderStatus(m.Status),
		PaymentMethod:    m.PaymentMethod,
		PaymentReference: m.PaymentReference,
		Total:            m.Total,
		Currency:         m.Currency,
		Title:            m.Title,
		BillingEmail:     m.BillingEmail,
		BillingName:      m.BillingName,
		ReturnURL:        m.ReturnURL,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		Meta:             make(map[string]string, len(m.Meta)),
	}
	for _, meta := range m.Meta {
		order.Meta[meta.Key] = meta.Value
	}
	return order
}
