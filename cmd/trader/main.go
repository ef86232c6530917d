package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/tradegate/tradegate/configs"
	"github.com/tradegate/tradegate/internal/broker"
	"github.com/tradegate/tradegate/internal/models"
	"github.com/tradegate/tradegate/internal/orders"

	"github.com/shopspring/decimal"
)

// trader submits one order through the idempotency service and the
// exchange gateway. Strategies live outside this repository; they call
// the same path.
func main() {
	exchange := flag.String("exchange", "binance", "target exchange (binance or bybit)")
	symbol := flag.String("symbol", "", "trading pair, venue-native format")
	side := flag.String("side", "buy", "order side (buy or sell)")
	orderType := flag.String("type", "limit", "order type (market, limit or stop_limit)")
	quantity := flag.String("qty", "", "order quantity")
	price := flag.String("price", "0", "limit price, ignored for market orders")
	stopPrice := flag.String("stop", "0", "trigger price for stop orders")
	clientOrderID := flag.String("client-order-id", "", "reuse an id to retry idempotently")
	strategyID := flag.String("strategy", "manual", "strategy tag recorded on the order")
	flag.Parse()

	logger := broker.NewLogger()
	cfg := configs.AppLoad()

	if *symbol == "" || *quantity == "" {
		logger.Fatal("Both -symbol and -qty are required")
	}
	qty, err := decimal.NewFromString(*quantity)
	if err != nil {
		logger.Fatalf("Invalid quantity %q: %v", *quantity, err)
	}
	limitPrice, err := decimal.NewFromString(*price)
	if err != nil {
		logger.Fatalf("Invalid price %q: %v", *price, err)
	}
	trigger, err := decimal.NewFromString(*stopPrice)
	if err != nil {
		logger.Fatalf("Invalid stop price %q: %v", *stopPrice, err)
	}

	repo, err := orders.NewPostgresRepository(cfg.OrdersDSN)
	if err != nil {
		logger.Fatalf("Failed to open orders database: %v", err)
	}
	service := orders.NewService(repo, "tg", logger)

	brokerCfg, ok := cfg.Brokers[*exchange]
	if !ok {
		logger.Fatalf("No broker configuration for %q", *exchange)
	}

	var gateway broker.Gateway
	switch *exchange {
	case "binance":
		gateway, err = broker.NewBinanceGateway(brokerCfg, logger)
	case "bybit":
		gateway, err = broker.NewBybitGateway(brokerCfg, logger)
	default:
		logger.Fatalf("Unsupported exchange %q", *exchange)
	}
	if err != nil {
		logger.Fatalf("Failed to build gateway: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gateway.Connect(ctx); err != nil {
		logger.Fatalf("Failed to connect to %s: %v", *exchange, err)
	}
	defer gateway.Disconnect(context.Background())

	order := &models.Order{
		ClientOrderID: *clientOrderID,
		Symbol:        *symbol,
		Exchange:      *exchange,
		Side:          models.OrderSide(*side),
		Type:          models.OrderType(*orderType),
		Quantity:      qty,
		Price:         limitPrice,
		StopPrice:     trigger,
		StrategyID:    *strategyID,
	}

	created, err := service.CreateOrder(ctx, order)
	if errors.Is(err, orders.ErrDuplicateOrder) {
		logger.WithField("client_order_id", created.ClientOrderID).
			Info("Order already exists, nothing to submit")
		return
	}
	if err != nil {
		logger.Fatalf("Failed to create order: %v", err)
	}

	placed, err := gateway.PlaceOrder(ctx, created)
	if err != nil {
		logger.Fatalf("Failed to place order %s: %v", created.ClientOrderID, err)
	}

	if err := repo.Update(ctx, placed); err != nil {
		logger.Errorf("Order placed but acknowledgment not persisted: %v", err)
	}
	logger.WithField("exchange_order_id", placed.ExchangeOrderID).Info("Order submitted")
}
