// Package notify pushes transaction and price updates to websocket clients.
package notify

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/internal/metrics"
	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/token"
)

const (
	// MessageTransaction is pushed to a user when one of their transactions
	// changes state.
	MessageTransaction = "transaction_update"
	// MessagePrice is pushed to all price subscribers on market data changes.
	MessagePrice = "price_update"
	// MessageError reports a bad client command.
	MessageError = "error"
)

// Message is the envelope for every server-to-client push.
type Message struct {
	Type        string              `json:"type"`
	Transaction *bridge.Transaction `json:"transaction,omitempty"`
	Price       *token.PriceUpdate  `json:"price,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// client is one websocket connection. Subscription state is owned by the hub
// goroutine, the connection only reads commands and drains its send channel.
type client struct {
	conn *websocket.Conn
	send chan Message
}

type clientState struct {
	userID string // non-empty once subscribed to transaction updates
	prices bool
	tokens map[string]struct{} // nil means every token
}

func (s *clientState) wantsPrice(address string) bool {
	if !s.prices {
		return false
	}
	if s.tokens == nil {
		return true
	}
	_, ok := s.tokens[address]
	return ok
}

// subscription mutates a client's interests inside the hub goroutine.
type subscription struct {
	c      *client
	userID string
	prices bool
	tokens []string
}

// Hub fans lifecycle and market events out to websocket subscribers. All
// client bookkeeping happens in the Run goroutine; producers never block on
// slow consumers, messages are dropped instead.
type Hub struct {
	register    chan *client
	unregister  chan *client
	subscribe   chan subscription
	transaction chan *bridge.Transaction
	price       chan *token.PriceUpdate

	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHub creates a notification hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		register:    make(chan *client, 16),
		unregister:  make(chan *client, 16),
		subscribe:   make(chan subscription, 16),
		transaction: make(chan *bridge.Transaction, 256),
		price:       make(chan *token.PriceUpdate, 256),
		logger:      logger,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the fan-out loop.
func (h *Hub) Start() {
	go h.run()
}

// Stop terminates the fan-out loop and closes every client.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// TransactionUpdated queues a transaction update for fan-out. Never blocks;
// under backpressure the update is dropped, clients re-sync over HTTP.
func (h *Hub) TransactionUpdated(tx *bridge.Transaction) {
	select {
	case h.transaction <- tx:
	default:
		h.logger.Warn("notification queue full, dropping transaction update",
			zap.String("id", tx.ID))
	}
}

// PriceUpdated queues a price update for fan-out.
func (h *Hub) PriceUpdated(update *token.PriceUpdate) {
	select {
	case h.price <- update:
	default:
		h.logger.Warn("notification queue full, dropping price update",
			zap.String("address", update.Address))
	}
}

func (h *Hub) run() {
	defer close(h.done)
	clients := make(map[*client]*clientState)

	defer func() {
		for c := range clients {
			close(c.send)
		}
	}()

	for {
		select {
		case <-h.stop:
			return

		case c := <-h.register:
			clients[c] = &clientState{}
			metrics.WSClients.Set(float64(len(clients)))
			h.logger.Debug("websocket client connected",
				zap.Int("clients", len(clients)))

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				metrics.WSClients.Set(float64(len(clients)))
				h.logger.Debug("websocket client disconnected",
					zap.Int("clients", len(clients)))
			}

		case sub := <-h.subscribe:
			state, ok := clients[sub.c]
			if !ok {
				break
			}
			if sub.userID != "" {
				state.userID = sub.userID
			}
			if sub.prices {
				state.prices = true
				state.tokens = nil
				if len(sub.tokens) > 0 {
					state.tokens = make(map[string]struct{}, len(sub.tokens))
					for _, addr := range sub.tokens {
						state.tokens[addr] = struct{}{}
					}
				}
			}

		case tx := <-h.transaction:
			msg := Message{Type: MessageTransaction, Transaction: tx}
			for c, state := range clients {
				if state.userID == tx.UserID && state.userID != "" {
					h.push(clients, c, msg)
				}
			}

		case update := <-h.price:
			msg := Message{Type: MessagePrice, Price: update}
			for c, state := range clients {
				if state.wantsPrice(update.Address) {
					h.push(clients, c, msg)
				}
			}
		}
	}
}

// push delivers a message to one client, dropping the client when its buffer
// is full. Only called from the run goroutine.
func (h *Hub) push(clients map[*client]*clientState, c *client, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("websocket client too slow, disconnecting")
		delete(clients, c)
		close(c.send)
		metrics.WSClients.Set(float64(len(clients)))
	}
}
