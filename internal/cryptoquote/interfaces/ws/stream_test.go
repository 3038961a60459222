package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startHub(t *testing.T) (*Hub, *metrics.Metrics, string) {
	t.Helper()
	m := metrics.New("cryptoquote")
	hub := NewHub(m)
	router := gin.New()
	router.GET("/stream", hub.HandleStream)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, m, "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", hub.Subscribers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readQuote(t *testing.T, conn *websocket.Conn) domain.CryptoQuote {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var q domain.CryptoQuote
	if err := json.Unmarshal(data, &q); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	return q
}

func TestHubFiltersByPair(t *testing.T) {
	hub, m, url := startHub(t)
	btc := dial(t, url+"?pair=BTC/USD")
	all := dial(t, url)
	waitSubscribers(t, hub, 2)

	if got := testutil.ToFloat64(m.StreamSubscribers); got != 2 {
		t.Errorf("StreamSubscribers = %v, want 2", got)
	}

	ctx := context.Background()
	eth := &domain.CryptoQuote{Pair: "ETH/USD", ReceivedAt: 1}
	btcQuote := &domain.CryptoQuote{
		Pair:       "BTC/USD",
		ReceivedAt: 2,
		Quote:      domain.NewCryptoQuoteResult(domain.WithLast(decimal.RequireFromString("100.25"))),
	}
	if err := hub.Publish(ctx, eth); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := hub.Publish(ctx, btcQuote); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := readQuote(t, btc)
	if got.Pair != "BTC/USD" || !got.Quote.Last().Valid {
		t.Errorf("pair subscriber received %+v", got)
	}

	if got := readQuote(t, all); got.Pair != "ETH/USD" {
		t.Errorf("first message for all-pairs subscriber = %s", got.Pair)
	}
	if got := readQuote(t, all); got.Pair != "BTC/USD" {
		t.Errorf("second message for all-pairs subscriber = %s", got.Pair)
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub, m, url := startHub(t)
	conn := dial(t, url)
	waitSubscribers(t, hub, 1)

	_ = conn.Close()
	waitSubscribers(t, hub, 0)

	if got := testutil.ToFloat64(m.StreamSubscribers); got != 0 {
		t.Errorf("StreamSubscribers = %v, want 0", got)
	}
	if err := hub.Publish(context.Background(), &domain.CryptoQuote{Pair: "BTC/USD"}); err != nil {
		t.Errorf("Publish() with no subscribers error = %v", err)
	}
}
