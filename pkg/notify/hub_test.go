package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/starkbridge/middleware/pkg/auth"
	"github.com/starkbridge/middleware/pkg/bridge"
	"github.com/starkbridge/middleware/pkg/config"
	"github.com/starkbridge/middleware/pkg/token"
)

func setupHub(t *testing.T) (*Hub, *auth.Issuer, *websocket.Conn) {
	t.Helper()

	hub := NewHub(zap.NewNop())
	hub.Start()
	t.Cleanup(hub.Stop)

	issuer := auth.NewIssuer(config.AuthConfig{
		JWTSecret: "test-secret",
		Issuer:    "starkbridge-test",
		TokenTTL:  time.Hour,
	})
	handler := NewHandler(hub, issuer, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return hub, issuer, conn
}

// readUntil retries publishing until the subscription is live and a message
// arrives, since subscribe commands are applied asynchronously.
func readUntil(t *testing.T, conn *websocket.Conn, publish func()) Message {
	t.Helper()

	// gorilla/websocket treats a read deadline timeout as fatal for the
	// connection, so retry the publish in the background and do one read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			publish()
			select {
			case <-stop:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("timed out waiting for websocket message: %v", err)
	}
	return msg
}

func TestTransactionFanOut(t *testing.T) {
	hub, issuer, conn := setupHub(t)

	tok, err := issuer.IssueToken("0xalice")
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(command{
		Action: actionSubscribeTransactions,
		Token:  tok,
	}))

	tx := &bridge.Transaction{
		ID:     "tx-1",
		UserID: "0xalice",
		Status: bridge.StatusConfirmed,
	}
	msg := readUntil(t, conn, func() { hub.TransactionUpdated(tx) })

	assert.Equal(t, MessageTransaction, msg.Type)
	require.NotNil(t, msg.Transaction)
	assert.Equal(t, "tx-1", msg.Transaction.ID)
	assert.Equal(t, bridge.StatusConfirmed, msg.Transaction.Status)
}

func TestTransactionFanOutSkipsOtherUsers(t *testing.T) {
	hub, issuer, conn := setupHub(t)

	tok, err := issuer.IssueToken("0xalice")
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(command{
		Action: actionSubscribeTransactions,
		Token:  tok,
	}))

	// Publish someone else's update together with ours; only ours arrives.
	msg := readUntil(t, conn, func() {
		hub.TransactionUpdated(&bridge.Transaction{ID: "tx-bob", UserID: "0xbob"})
		hub.TransactionUpdated(&bridge.Transaction{ID: "tx-alice", UserID: "0xalice"})
	})

	require.NotNil(t, msg.Transaction)
	assert.Equal(t, "tx-alice", msg.Transaction.ID)
}

func TestPriceFanOutIsPublic(t *testing.T) {
	hub, _, conn := setupHub(t)

	require.NoError(t, conn.WriteJSON(command{Action: actionSubscribePrices}))

	update := &token.PriceUpdate{Address: "0xusdc", Price: 1.002}
	msg := readUntil(t, conn, func() { hub.PriceUpdated(update) })

	assert.Equal(t, MessagePrice, msg.Type)
	require.NotNil(t, msg.Price)
	assert.Equal(t, "0xusdc", msg.Price.Address)
}

func TestPriceFanOutHonorsTokenFilter(t *testing.T) {
	hub, _, conn := setupHub(t)

	require.NoError(t, conn.WriteJSON(command{
		Action: actionSubscribePrices,
		Tokens: []string{"0xusdc"},
	}))

	msg := readUntil(t, conn, func() {
		hub.PriceUpdated(&token.PriceUpdate{Address: "0xdai", Price: 0.999})
		hub.PriceUpdated(&token.PriceUpdate{Address: "0xusdc", Price: 1.001})
	})

	require.NotNil(t, msg.Price)
	assert.Equal(t, "0xusdc", msg.Price.Address)
}

func TestSubscribeTransactionsRejectsBadToken(t *testing.T) {
	_, _, conn := setupHub(t)

	require.NoError(t, conn.WriteJSON(command{
		Action: actionSubscribeTransactions,
		Token:  "garbage",
	}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)
}

func TestUnknownActionReturnsError(t *testing.T) {
	_, _, conn := setupHub(t)

	require.NoError(t, conn.WriteJSON(command{Action: "dance"}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)
}
