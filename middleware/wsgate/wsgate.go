// Package wsgate aplica os limites de WebSocket da exchange a conexões de clientes.
//
// Cada conexão recebe um ID (uuid). Toda mensagem consome o orçamento de
// mensagens por segundo da conexão e cada SUBSCRIPTION ocupa um slot de stream.
// Ao fechar, todos os slots e contadores da conexão são liberados.
package wsgate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"exchange-gateway/middleware/ratelimit/application"
	"exchange-gateway/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	MethodSubscription   = "SUBSCRIPTION"
	MethodUnsubscription = "UNSUBSCRIPTION"
	MethodPing           = "PING"
)

// Códigos de resposta no campo "code".
const (
	CodeOK          = 0
	CodeBadRequest  = http.StatusBadRequest
	CodeRateLimited = http.StatusTooManyRequests
)

const DefaultWriteTimeout = 10 * time.Second

// Message é uma mensagem de controle enviada pelo cliente.
type Message struct {
	ID     int64    `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// Reply é a resposta do gateway a uma Message.
type Reply struct {
	ID   int64  `json:"id"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type Handler struct {
	Quota    *application.ExchangeQuota
	Service  *application.Service
	Upgrader websocket.Upgrader
	Logger   *zap.Logger
	// OnSubscribe é chamado com as streams aceitas (ex.: repassar ao upstream).
	OnSubscribe  func(ctx context.Context, connectionID string, streams []string)
	WriteTimeout time.Duration

	once sync.Once
	svc  *application.Service
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) service() *application.Service {
	h.once.Do(func() {
		h.svc = h.Service
		if h.svc == nil {
			h.svc = application.NewService(h.logger(), nil)
		}
	})
	return h.svc
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	log := h.logger().With(zap.String("connection_id", id))
	log.Debug("websocket connected", zap.String("remote", r.RemoteAddr))
	defer func() {
		released := 0
		if h.Quota != nil {
			released = h.Quota.ReleaseConnection(id)
		}
		log.Debug("websocket closed", zap.Int("streams_released", released))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := h.handle(r.Context(), id, data)
		if err := h.write(conn, reply); err != nil {
			log.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, reply Reply) error {
	timeout := h.WriteTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	return conn.WriteJSON(reply)
}

// handle decide a resposta de uma mensagem crua da conexão id. Toda mensagem,
// válida ou não, consome o orçamento; a resposta 429 ecoa o id quando a
// mensagem pôde ser lida.
func (h *Handler) handle(ctx context.Context, id string, data []byte) Reply {
	var msg Message
	parseErr := json.Unmarshal(data, &msg)

	if h.Quota != nil {
		res := h.decide(ctx, id, domain.ScopeWebSocket, func() domain.Result {
			return h.Quota.CheckWebSocketLimit(id)
		})
		if !res.Allowed {
			return Reply{ID: msg.ID, Code: CodeRateLimited, Msg: retryMsg(res)}
		}
	}

	if parseErr != nil {
		return Reply{Code: CodeBadRequest, Msg: "invalid message"}
	}

	switch strings.ToUpper(msg.Method) {
	case MethodPing:
		return Reply{ID: msg.ID, Code: CodeOK, Msg: "PONG"}
	case MethodSubscription:
		return h.subscribe(ctx, id, msg)
	case MethodUnsubscription:
		if h.Quota != nil {
			for _, stream := range msg.Params {
				h.Quota.ReleaseStream(id, stream)
			}
		}
		return Reply{ID: msg.ID, Code: CodeOK, Msg: strings.Join(msg.Params, ",")}
	default:
		return Reply{ID: msg.ID, Code: CodeBadRequest, Msg: "unknown method " + msg.Method}
	}
}

// subscribe registra as streams na ordem recebida. Ao primeiro slot negado,
// as streams anteriores continuam registradas e o restante é rejeitado.
func (h *Handler) subscribe(ctx context.Context, id string, msg Message) Reply {
	if len(msg.Params) == 0 {
		return Reply{ID: msg.ID, Code: CodeBadRequest, Msg: "missing params"}
	}

	accepted := make([]string, 0, len(msg.Params))
	for i, stream := range msg.Params {
		if h.Quota != nil {
			res := h.decide(ctx, id, domain.ScopeWebSocketStream, func() domain.Result {
				return h.Quota.CheckWebSocketStreamLimit(id, stream)
			})
			if !res.Allowed {
				h.notify(ctx, id, accepted)
				return Reply{
					ID:   msg.ID,
					Code: CodeRateLimited,
					Msg:  fmt.Sprintf("max %d streams per connection, rejected: %s", res.Limit, strings.Join(msg.Params[i:], ",")),
				}
			}
		}
		accepted = append(accepted, stream)
	}
	h.notify(ctx, id, accepted)
	return Reply{ID: msg.ID, Code: CodeOK, Msg: strings.Join(accepted, ",")}
}

func (h *Handler) notify(ctx context.Context, id string, streams []string) {
	if h.OnSubscribe != nil && len(streams) > 0 {
		h.OnSubscribe(ctx, id, streams)
	}
}

func (h *Handler) decide(ctx context.Context, id, scope string, check func() domain.Result) domain.Result {
	return h.service().Decide(ctx, application.Request{Identifier: id, Scope: scope, Path: "ws"}, check)
}

func retryMsg(res domain.Result) string {
	return fmt.Sprintf("Rate limit exceeded, retry after %d seconds", res.RetryAfterSeconds())
}
