// Package broker exposes a uniform order gateway over heterogeneous
// exchange APIs. Every network-bound operation passes through a shared
// rate-limited connector before it reaches the wire; retry policy is the
// caller's, never the gateway's.
package broker

import (
	"context"
	"errors"

	"github.com/tradegate/tradegate/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotConnected is returned when an operation requires a session and
	// none exists. Callers must Connect first; the gateway never
	// auto-connects.
	ErrNotConnected = errors.New("broker not connected")

	// ErrBrokerUnavailable is returned on transport or venue failure. The
	// gateway surfaces it without retrying.
	ErrBrokerUnavailable = errors.New("broker unavailable")
)

// Gateway is the broker-facing interface shared by every exchange
// implementation.
type Gateway interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// PlaceOrder submits an order that already carries a ClientOrderID
	// and returns it updated with the venue's acknowledgment.
	PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error
	GetBalance(ctx context.Context) ([]models.Balance, error)
	GetPositions(ctx context.Context) ([]models.Position, error)
	GetMarketPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// NewLogger returns a logger configured for broker gateways.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)
	return logger
}
