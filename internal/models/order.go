package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket    OrderType = "market"
	OrderTypeLimit     OrderType = "limit"
	OrderTypeStopLimit OrderType = "stop_limit"
)

// OrderStatus tracks the lifecycle of an order. Orders are never deleted,
// only transitioned to a terminal status.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Order is a trading order row. ClientOrderID is the caller-assigned
// idempotency key, unique across the lifetime of the system; the orders
// table enforces it with a unique index.
type Order struct {
	// OrderID is the system-assigned identifier.
	OrderID string `gorm:"column:order_id;primaryKey" json:"order_id"`

	// ClientOrderID is globally unique, format
	// {prefix}_{unix millis}_{32 hex}.
	ClientOrderID string `gorm:"column:client_order_id;uniqueIndex" json:"client_order_id"`

	// ExchangeOrderID is the venue's order id, set on acknowledgment.
	ExchangeOrderID string `gorm:"column:exchange_order_id" json:"exchange_order_id"`

	// Symbol is the trading pair in the venue's native format.
	Symbol string `gorm:"column:symbol" json:"symbol"`

	// Exchange is the venue the order targets.
	Exchange string `gorm:"column:exchange" json:"exchange"`

	Side   OrderSide   `gorm:"column:side" json:"side"`
	Type   OrderType   `gorm:"column:type" json:"type"`
	Status OrderStatus `gorm:"column:status" json:"status"`

	// Quantity is the requested amount; FilledQuantity never exceeds it.
	Quantity       decimal.Decimal `gorm:"column:quantity;type:numeric" json:"quantity"`
	FilledQuantity decimal.Decimal `gorm:"column:filled_quantity;type:numeric" json:"filled_quantity"`

	// Price is the limit price, zero for market orders.
	Price decimal.Decimal `gorm:"column:price;type:numeric" json:"price"`

	// StopPrice is the trigger price for stop orders.
	StopPrice decimal.Decimal `gorm:"column:stop_price;type:numeric" json:"stop_price"`

	// StrategyID identifies the strategy that produced the order.
	StrategyID string `gorm:"column:strategy_id" json:"strategy_id"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName maps Order to the orders table.
func (Order) TableName() string { return "orders" }

// Position is a normalized open position reported by a broker gateway.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          OrderSide       `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entry_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Balance is a normalized account balance reported by a broker gateway.
type Balance struct {
	Asset     string          `json:"asset"`
	Free      decimal.Decimal `json:"free"`
	Locked    decimal.Decimal `json:"locked"`
	UpdatedAt time.Time       `json:"updated_at"`
}
