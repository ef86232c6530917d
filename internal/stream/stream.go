// Package stream maintains long-lived websocket subscriptions to venue
// trade feeds and publishes normalized ticks to Kafka. Each worker owns
// one connection for a chunk of symbols and reconnects with exponential
// backoff; ticks flow downstream to the bar aggregator.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	maxStreamsPerConnection = 20

	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
	maxConsecutiveErrors  = 5

	handshakeTimeout = 5 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
)

// NewLogger returns a logger configured for streamers.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

// socketWorker owns one websocket connection for a chunk of symbols.
// The venue-specific streamer supplies the dial URL and the message
// handler; the worker supplies reconnects, pings and read pumping.
type socketWorker struct {
	url       string
	logger    *logrus.Logger
	onMessage func([]byte) error
}

// run keeps the connection alive until the context is cancelled,
// doubling the reconnect delay on consecutive failures up to the cap.
func (w *socketWorker) run(ctx context.Context, workerID string, wg *sync.WaitGroup) {
	defer wg.Done()

	delay := initialReconnectDelay
	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			w.logger.WithField("worker", workerID).Info("Streamer worker stopped")
			return
		default:
		}

		err := w.handleConnection(ctx, workerID)
		if err == nil {
			delay = initialReconnectDelay
			consecutive = 0
			continue
		}

		consecutive++
		w.logger.WithFields(logrus.Fields{
			"worker": workerID,
			"error":  err,
			"delay":  delay,
		}).Error("Websocket connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < maxReconnectDelay {
			delay *= 2
		}
		if delay > maxReconnectDelay || consecutive >= maxConsecutiveErrors {
			delay = maxReconnectDelay
		}
	}
}

// handleConnection runs one connection until it fails or the context is
// cancelled. A nil return means a clean shutdown.
func (w *socketWorker) handleConnection(ctx context.Context, workerID string) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", w.url, err)
	}
	defer conn.Close()

	w.logger.WithField("worker", workerID).Info("Websocket connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetPingHandler(func(message string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(writeTimeout))
	})

	messages := make(chan []byte, 100)
	readErrors := make(chan error, 1)
	go func() {
		defer close(messages)
		for {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case readErrors <- err:
				case <-connCtx.Done():
				}
				return
			}
			select {
			case messages <- message:
			case <-connCtx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-readErrors:
			return fmt.Errorf("reading message: %w", err)

		case message := <-messages:
			if err := w.onMessage(message); err != nil {
				w.logger.WithFields(logrus.Fields{
					"worker": workerID,
					"error":  err,
				}).Error("Failed to handle message")
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return fmt.Errorf("sending ping: %w", err)
			}
		}
	}
}

// chunkSymbols splits symbols into groups of at most size.
func chunkSymbols(symbols []string, size int) [][]string {
	var chunks [][]string
	for len(symbols) > size {
		chunks = append(chunks, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		chunks = append(chunks, symbols)
	}
	return chunks
}
