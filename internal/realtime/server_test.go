package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stall-lottery/internal/config"
	"stall-lottery/internal/lottery"
	"stall-lottery/internal/model"
	"stall-lottery/internal/repository"
	"stall-lottery/internal/service"
	"stall-lottery/pkg/apierror"
)

type message struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, loginKey string) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	reg, err := repository.NewSQLiteRegistry(filepath.Join(t.TempDir(), "ws.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	_, err = reg.AddStallClass(ctx, model.StallClass{Category: "Fruit", SubClass: "apple", StallCount: 3, OrderNo: 1})
	require.NoError(t, err)
	_, err = reg.InsertOwners(ctx, []model.Owner{{Name: "Ann", IDCard: "100", Category: "Fruit", SubClass: "apple", Qty: 1}})
	require.NoError(t, err)

	hub := NewHub()
	svc := service.NewLotteryService(lottery.NewEngine(reg, nil), reg, nil, 0, hub)
	srv := httptest.NewServer(NewServer(hub, svc, config.RealtimeConfig{
		SendBuffer:     16,
		PingInterval:   time.Second,
		WriteTimeout:   time.Second,
		MaxMessageSize: 4096,
		AllowedOrigins: []string{"*"},
	}, loginKey))
	t.Cleanup(func() {
		hub.CloseAll()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	for _, want := range []string{service.EventCurrentType, service.EventTypeStates, service.EventMode} {
		got := read(t, conn)
		require.Equal(t, want, got.Event, "state is pushed on connect")
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var m message
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

// request sends an event and returns its ack plus the pushes received before it.
func request(t *testing.T, conn *websocket.Conn, id, event string, payload interface{}) (AckData, json.RawMessage, []string) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Request{ID: id, Event: event, Payload: raw}))

	var pushes []string
	for {
		m := read(t, conn)
		if m.Event != "ack" {
			pushes = append(pushes, m.Event)
			continue
		}
		require.Equal(t, id, m.ID)
		var ack struct {
			AckData
			Result json.RawMessage `json:"result"`
		}
		require.NoError(t, json.Unmarshal(m.Data, &ack))
		return ack.AckData, ack.Result, pushes
	}
}

func TestServer_Dispatch(t *testing.T) {
	srv := newTestServer(t, "")
	conn := dial(t, srv, "")

	ack, result, _ := request(t, conn, "1", "client:getCurrentType", nil)
	require.True(t, ack.OK)
	var current model.CategorySnapshot
	require.NoError(t, json.Unmarshal(result, &current))
	assert.Equal(t, model.CategorySnapshot{}, current)

	ack, _, _ = request(t, conn, "2", "client:nope", nil)
	assert.False(t, ack.OK)
	assert.Equal(t, apierror.CodeBadRequest, ack.Code)

	ack, _, _ = request(t, conn, "3", "bigscreen:setConfig", configPayload{Category: "Fruit", Mode: "dance"})
	assert.False(t, ack.OK)
	assert.Equal(t, apierror.CodeBadRequest, ack.Code)

	ack, _, _ = request(t, conn, "4", "mobile:queue", ownerPayload{Category: "Fruit", IDCard: "100"})
	assert.False(t, ack.OK)
	assert.Equal(t, apierror.CodeNotEligible, ack.Code)
}

func TestServer_OperatorKey(t *testing.T) {
	srv := newTestServer(t, "secret")

	guest := dial(t, srv, "")
	ack, _, _ := request(t, guest, "1", "bigscreen:getConfig", nil)
	assert.False(t, ack.OK)
	assert.Equal(t, apierror.CodeForbidden, ack.Code)

	ack, _, _ = request(t, guest, "2", "client:getCurrentType", nil)
	assert.True(t, ack.OK, "client events stay open")

	operator := dial(t, srv, "?login_key=secret")
	ack, _, _ = request(t, operator, "3", "bigscreen:getConfig", nil)
	assert.True(t, ack.OK)
}

func TestServer_QueueAndDraw(t *testing.T) {
	srv := newTestServer(t, "")
	operator := dial(t, srv, "")
	mobile := dial(t, srv, "")

	ack, _, pushes := request(t, operator, "1", "bigscreen:setConfig", configPayload{Category: "Fruit", Mode: "queue", QtyFilter: "single"})
	require.True(t, ack.OK, ack.Message)
	assert.Equal(t, []string{service.EventMode, service.EventCurrentType, service.EventTypeStates}, pushes)
	for range pushes {
		read(t, mobile)
	}

	ack, result, pushes := request(t, mobile, "2", "mobile:queue", ownerPayload{Category: "Fruit", IDCard: "100"})
	require.True(t, ack.OK, ack.Message)
	assert.Equal(t, []string{service.EventOwnerQueued, service.EventQueueUpdated}, pushes)
	var progress model.OwnerProgress
	require.NoError(t, json.Unmarshal(result, &progress))
	assert.Equal(t, 1, progress.QueueNo)
	assert.Equal(t, service.EventOwnerQueued, read(t, operator).Event)

	ack, _, _ = request(t, operator, "3", "bigscreen:setConfig", configPayload{Category: "Fruit", Mode: "draw"})
	require.True(t, ack.OK, ack.Message)

	ack, result, _ = request(t, operator, "4", "bigscreen:draw:next", categoryPayload{})
	require.True(t, ack.OK, ack.Message)
	var next struct {
		Owner *model.OwnerProgress `json:"owner"`
	}
	require.NoError(t, json.Unmarshal(result, &next))
	require.NotNil(t, next.Owner)
	assert.Equal(t, "100", next.Owner.IDCard)

	ack, result, pushes = request(t, operator, "5", "bigscreen:draw:doDraw", ownerPayload{Category: "Fruit", IDCard: "100"})
	require.True(t, ack.OK, ack.Message)
	assert.Equal(t, []string{service.EventDrawResult, service.EventCurrentType, service.EventTypeStates}, pushes)
	var out lottery.DrawOutcome
	require.NoError(t, json.Unmarshal(result, &out))
	assert.Len(t, out.Result.StallNos, 1)
	assert.Equal(t, 2, out.Remaining)

	ack, result, _ = request(t, operator, "6", "bigscreen:draw:next", categoryPayload{Category: "Fruit"})
	require.True(t, ack.OK)
	assert.JSONEq(t, `{"owner":null}`, string(result))

	ack, _, _ = request(t, operator, "7", "bigscreen:draw:doDraw", ownerPayload{Category: "Fruit", IDCard: "100"})
	assert.False(t, ack.OK)
	assert.Equal(t, apierror.CodeNotEligible, ack.Code)
}

func TestServer_RejectsOrigin(t *testing.T) {
	hub := NewHub()
	s := NewServer(hub, nil, config.RealtimeConfig{AllowedOrigins: []string{"https://screen.example"}}, "")

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	assert.True(t, s.checkOrigin(r))
	r.Header.Set("Origin", "https://screen.example")
	assert.True(t, s.checkOrigin(r))
	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, s.checkOrigin(r))
}
