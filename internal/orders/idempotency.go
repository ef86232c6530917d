package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/sirupsen/logrus"
)

// GenerateClientOrderID produces {prefix}_{13-digit millis}_{32 lowercase
// hex}. The random half carries 128 bits of entropy, so concurrent
// generation never collides in practice; the timestamp half records the
// issue time for audit tooling.
func GenerateClientOrderID(prefix string) string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf[:]))
}

func newOrderID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(buf[:])
}

// Service assigns client order ids and creates orders at most once. The
// unique index underneath the repository makes the creation a
// compare-and-swap: of N racing callers with the same id, exactly one
// commits.
type Service struct {
	repo   OrderRepository
	prefix string
	logger *logrus.Logger
}

// NewService builds the idempotency service. prefix tags every generated
// id with the issuing system.
func NewService(repo OrderRepository, prefix string, logger *logrus.Logger) *Service {
	return &Service{repo: repo, prefix: prefix, logger: logger}
}

// EnsureClientOrderID backfills a missing id without touching any other
// field. Returns true when an id was assigned.
func (s *Service) EnsureClientOrderID(order *models.Order) bool {
	if order.ClientOrderID != "" {
		return false
	}
	order.ClientOrderID = GenerateClientOrderID(s.prefix)
	return true
}

// CreateOrder persists a new order exactly once. A caller-supplied
// ClientOrderID is used as-is so retries of the same request are safe; a
// missing one is generated. On a duplicate, the existing order is
// returned alongside ErrDuplicateOrder so the caller can treat the
// conflict as "my intended order already exists".
func (s *Service) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.Symbol == "" {
		return nil, fmt.Errorf("create order: symbol is required")
	}
	if !order.Quantity.IsPositive() {
		return nil, fmt.Errorf("create order: quantity must be positive, got %s", order.Quantity)
	}

	s.EnsureClientOrderID(order)
	if order.OrderID == "" {
		order.OrderID = newOrderID()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusPending
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	err := s.repo.Create(ctx, order)
	if err == nil {
		s.logger.WithFields(logrus.Fields{
			"client_order_id": order.ClientOrderID,
			"symbol":          order.Symbol,
			"exchange":        order.Exchange,
			"side":            order.Side,
		}).Info("Order created")
		return order, nil
	}
	if !errors.Is(err, ErrDuplicateOrder) {
		return nil, err
	}

	existing, getErr := s.repo.GetByClientOrderID(ctx, order.ClientOrderID)
	if getErr != nil {
		return nil, fmt.Errorf("loading winner of duplicate %s: %w", order.ClientOrderID, getErr)
	}
	s.logger.WithField("client_order_id", order.ClientOrderID).Warn("Duplicate order creation rejected")
	return existing, err
}
