package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"stall-lottery/internal/config"
	"stall-lottery/internal/middleware"
	"stall-lottery/internal/service"
	"stall-lottery/pkg/apierror"
	"stall-lottery/pkg/logger"
	"stall-lottery/pkg/uid"
)

const requestTimeout = 15 * time.Second

// Request is a client-initiated event awaiting an acknowledgement.
type Request struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Ack answers a Request carrying the same id.
type Ack struct {
	ID    string  `json:"id"`
	Event string  `json:"event"`
	Data  AckData `json:"data"`
}

// AckData is the outcome of a request.
type AckData struct {
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Server upgrades observers to websocket and dispatches their requests.
type Server struct {
	hub      *Hub
	svc      *service.LotteryService
	cfg      config.RealtimeConfig
	loginKey string
	upgrader websocket.Upgrader
	events   map[string]eventHandler
	log      *logger.Logger
}

// NewServer creates the websocket endpoint. An empty loginKey makes every client an operator.
func NewServer(hub *Hub, svc *service.LotteryService, cfg config.RealtimeConfig, loginKey string) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}

	s := &Server{
		hub:      hub,
		svc:      svc,
		cfg:      cfg,
		loginKey: loginKey,
		log:      logger.Named("realtime"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.events = s.routes()
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

// ServeHTTP handles GET /ws.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Drop a deadline left by an earlier REST response on this connection.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uid.Short(), s.cfg.SendBuffer,
		middleware.KeyMatches(s.loginKey, middleware.RequestLoginKey(r)))
	s.hub.Register(client)
	s.log.Info("client connected",
		zap.String("client_id", client.ID),
		zap.Bool("operator", client.Operator),
		zap.String("remote_addr", r.RemoteAddr),
	)

	s.hub.Send(client, service.EventCurrentType, s.svc.CurrentCategory())
	s.hub.Send(client, service.EventTypeStates, s.svc.Statuses())
	s.hub.Send(client, service.EventMode, s.svc.Mode())

	go s.writePump(conn, client)
	s.readPump(r.Context(), conn, client)
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, client *Client) {
	defer func() {
		s.hub.Unregister(client)
		conn.Close()
		s.log.Info("client disconnected", zap.String("client_id", client.ID))
	}()

	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadLimit(s.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read error", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if !s.hub.Reply(client, s.handle(ctx, client, msg), s.cfg.WriteTimeout) {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, client *Client) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-client.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-client.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle decodes one request, runs it and returns the encoded acknowledgement.
func (s *Server) handle(ctx context.Context, client *Client, raw []byte) (out []byte) {
	var req Request
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic handling event",
				zap.String("client_id", client.ID),
				zap.String("event", req.Event),
				zap.Any("panic", rec),
			)
			out = s.encodeAck(req.ID, nil, apierror.InternalError("service error"))
		}
	}()

	if err := json.Unmarshal(raw, &req); err != nil {
		return s.encodeAck("", nil, apierror.BadRequest("invalid message"))
	}

	handler, ok := s.events[req.Event]
	if !ok {
		return s.encodeAck(req.ID, nil, apierror.BadRequest(fmt.Sprintf("unknown event %q", req.Event)))
	}
	if strings.HasPrefix(req.Event, "bigscreen:") && !client.Operator {
		return s.encodeAck(req.ID, nil, apierror.Forbidden("Invalid login key"))
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	result, err := handler(ctx, client, req.Payload)
	if err != nil {
		apiErr := service.ToAPIError(err)
		if apiErr.StatusCode >= http.StatusInternalServerError {
			s.log.Error("event failed", zap.String("event", req.Event), zap.Error(err))
		}
		return s.encodeAck(req.ID, nil, apiErr)
	}
	return s.encodeAck(req.ID, result, nil)
}

func (s *Server) encodeAck(id string, result interface{}, apiErr *apierror.Error) []byte {
	ack := Ack{ID: id, Event: "ack", Data: AckData{OK: apiErr == nil, Result: result}}
	if apiErr != nil {
		ack.Data.Message = apiErr.Message
		ack.Data.Code = apiErr.Code
	}
	data, err := json.Marshal(ack)
	if err != nil {
		s.log.Error("failed to encode ack", zap.Error(err))
		data, _ = json.Marshal(Ack{ID: id, Event: "ack", Data: AckData{Message: "service error", Code: apierror.CodeInternal}})
	}
	return data
}
