// Package orders generates client order ids and enforces at-most-once
// order creation. Uniqueness rests on the storage layer's unique index,
// not on in-process locking, so the guarantee holds across concurrent
// process instances.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/tradegate/tradegate/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrDuplicateOrder is returned when a creation loses the unique-index
// race on ClientOrderID. Callers treat it as success-equivalent: the
// intended order already exists.
var ErrDuplicateOrder = errors.New("duplicate client order id")

// OrderRepository persists orders keyed on the unique ClientOrderID.
type OrderRepository interface {
	// Create inserts the order, failing with ErrDuplicateOrder when a row
	// with the same ClientOrderID is already committed.
	Create(ctx context.Context, order *models.Order) error

	// GetByClientOrderID returns the order or nil when absent.
	GetByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error)

	// Update persists acknowledgment and fill mutations.
	Update(ctx context.Context, order *models.Order) error
}

type postgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository opens the orders database. The unique index on
// client_order_id is the system-wide idempotency guarantee.
func NewPostgresRepository(dsn string) (OrderRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening orders database: %w", err)
	}
	return &postgresRepository{db: db}, nil
}

func (r *postgresRepository) Create(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Create(order).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, order.ClientOrderID)
	}
	if err != nil {
		return fmt.Errorf("inserting order %s: %w", order.ClientOrderID, err)
	}
	return nil
}

func (r *postgresRepository) GetByClientOrderID(ctx context.Context, clientOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("client_order_id = ?", clientOrderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading order %s: %w", clientOrderID, err)
	}
	return &order, nil
}

func (r *postgresRepository) Update(ctx context.Context, order *models.Order) error {
	err := r.db.WithContext(ctx).Save(order).Error
	if err != nil {
		return fmt.Errorf("updating order %s: %w", order.ClientOrderID, err)
	}
	return nil
}
