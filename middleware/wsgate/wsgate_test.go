package wsgate

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"
	"exchange-gateway/middleware/ratelimit/infra"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.Unix(1_700_000_000, 0) }

type gate struct {
	quota *application.ExchangeQuota
	srv   *httptest.Server

	mu  sync.Mutex
	ids []string
}

func newGate(t *testing.T, cfg domain.ExchangeQuotaConfig) *gate {
	t.Helper()
	q, err := application.NewExchangeQuota(cfg, infra.WithClock(fixedClock))
	require.NoError(t, err)

	g := &gate{quota: q}
	g.srv = httptest.NewServer(&Handler{
		Quota: q,
		OnSubscribe: func(_ context.Context, id string, _ []string) {
			g.mu.Lock()
			g.ids = append(g.ids, id)
			g.mu.Unlock()
		},
	})
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gate) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (g *gate) lastID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.ids) == 0 {
		return ""
	}
	return g.ids[len(g.ids)-1]
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg Message) Reply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestHandler_Ping(t *testing.T) {
	g := newGate(t, domain.DefaultExchangeQuota())
	conn := g.dial(t)

	reply := roundTrip(t, conn, Message{ID: 7, Method: "ping"})
	assert.Equal(t, Reply{ID: 7, Code: CodeOK, Msg: "PONG"}, reply)
}

func TestHandler_InvalidAndUnknownMessages(t *testing.T) {
	g := newGate(t, domain.DefaultExchangeQuota())
	conn := g.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var reply Reply
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, CodeBadRequest, reply.Code)

	reply = roundTrip(t, conn, Message{ID: 2, Method: "DANCE"})
	assert.Equal(t, CodeBadRequest, reply.Code)
	assert.Equal(t, int64(2), reply.ID)

	reply = roundTrip(t, conn, Message{ID: 3, Method: MethodSubscription})
	assert.Equal(t, CodeBadRequest, reply.Code)
}

func TestHandler_MessageRateLimit(t *testing.T) {
	cfg := domain.DefaultExchangeQuota()
	cfg.WebsocketLimit = 3
	g := newGate(t, cfg)
	conn := g.dial(t)

	for i := range 3 {
		reply := roundTrip(t, conn, Message{ID: int64(i), Method: MethodPing})
		require.Equal(t, CodeOK, reply.Code)
	}
	reply := roundTrip(t, conn, Message{ID: 9, Method: MethodPing})
	assert.Equal(t, CodeRateLimited, reply.Code)
	assert.Equal(t, int64(9), reply.ID, "limited replies keep the request id")
	assert.Equal(t, "Rate limit exceeded, retry after 1 seconds", reply.Msg)

	// outra conexão tem orçamento próprio
	other := g.dial(t)
	assert.Equal(t, CodeOK, roundTrip(t, other, Message{Method: MethodPing}).Code)
}

func TestHandler_StreamSlotsAndRelease(t *testing.T) {
	g := newGate(t, domain.DefaultExchangeQuota())
	conn := g.dial(t)

	streams := make([]string, 31)
	for i := range streams {
		streams[i] = fmt.Sprintf("spot@public.deals.v3.api@PAIR%dUSDT", i)
	}

	reply := roundTrip(t, conn, Message{ID: 1, Method: MethodSubscription, Params: streams})
	assert.Equal(t, CodeRateLimited, reply.Code)
	assert.Contains(t, reply.Msg, streams[30])

	id := g.lastID()
	require.NotEmpty(t, id)
	assert.Equal(t, 30, g.quota.StreamCount(id))

	reply = roundTrip(t, conn, Message{ID: 2, Method: MethodUnsubscription, Params: streams[:1]})
	assert.Equal(t, CodeOK, reply.Code)
	assert.Equal(t, 29, g.quota.StreamCount(id))

	reply = roundTrip(t, conn, Message{ID: 3, Method: MethodSubscription, Params: streams[30:]})
	assert.Equal(t, Reply{ID: 3, Code: CodeOK, Msg: streams[30]}, reply)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return g.quota.StreamCount(id) == 0 }, 2*time.Second, 10*time.Millisecond)
}
