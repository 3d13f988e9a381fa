package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stall-lottery/internal/handler"
	"stall-lottery/internal/lottery"
	"stall-lottery/internal/middleware"
	"stall-lottery/internal/repository"
	"stall-lottery/internal/service"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, loginKey string) http.Handler {
	t.Helper()
	reg, err := repository.NewSQLiteRegistry(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	svc := service.NewLotteryService(lottery.NewEngine(reg, nil), reg, nil, 0, nil)
	return New(Config{
		Handler:            handler.New("stall-lottery", "test", reg),
		LotteryHandler:     handler.NewLotteryHandler(svc),
		ParticipantHandler: handler.NewParticipantHandler(svc),
		StallClassHandler:  handler.NewStallClassHandler(svc),
		AdminHandler:       handler.NewAdminHandler(svc, nil, "sqlite", loginKey),
		AuthMiddleware:     middleware.NewOperatorAuth(loginKey),
	})
}

func call(t *testing.T, h http.Handler, method, path, key string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(middleware.LoginKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if rec.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env
}

func TestOperatorRoutesRequireKey(t *testing.T) {
	h := newTestRouter(t, "secret")

	code, _ := call(t, h, http.MethodGet, "/api/v1/session", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = call(t, h, http.MethodGet, "/api/v1/session", "wrong", nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = call(t, h, http.MethodGet, "/api/v1/session", "secret", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = call(t, h, http.MethodGet, "/api/v1/current", "", nil)
	assert.Equal(t, http.StatusOK, code, "public routes stay open")
	code, _ = call(t, h, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestLotteryFlow(t *testing.T) {
	h := newTestRouter(t, "")

	for i, class := range []struct {
		name  string
		count int
	}{{"apple", 3}, {"pear", 2}} {
		code, env := call(t, h, http.MethodPost, "/api/v1/stall-classes", "", map[string]interface{}{
			"category": "Fruit", "sub_class": class.name, "stall_count": class.count, "order_no": i + 1,
		})
		require.Equal(t, http.StatusCreated, code, env.Error)
	}

	code, env := call(t, h, http.MethodPost, "/api/v1/owners/import", "", map[string]interface{}{
		"owners": []map[string]interface{}{
			{"name": "Ann", "id_card": "100", "category": "Fruit", "sub_class": "pear", "qty": 2},
			{"name": "Bob", "id_card": "200", "category": "Fruit", "sub_class": "apple", "qty": 3},
		},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = call(t, h, http.MethodGet, "/api/v1/categories/Fruit/default-range", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"category":"Fruit","range":"1-5"}`, string(env.Data))

	code, env = call(t, h, http.MethodPost, "/api/v1/categories/Fruit/queue", "", map[string]string{"id_card": "100"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "NOT_ELIGIBLE", env.Error.Code)

	code, env = call(t, h, http.MethodPut, "/api/v1/session", "", map[string]string{"category": "Fruit", "mode": "queue", "qty_filter": "multi"})
	require.Equal(t, http.StatusOK, code, env.Error)

	for i, id := range []string{"200", "100"} {
		code, env = call(t, h, http.MethodPost, "/api/v1/categories/Fruit/queue", "", map[string]string{"id_card": id})
		require.Equal(t, http.StatusOK, code, env.Error)
		var queued struct {
			QueueNo int `json:"queue_no"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &queued))
		assert.Equal(t, i+1, queued.QueueNo)
	}

	code, env = call(t, h, http.MethodGet, "/api/v1/session/status", "", nil)
	require.Equal(t, http.StatusOK, code)
	var st lottery.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	require.NotNil(t, st.Queue)
	assert.Equal(t, 3, st.Queue.NextQueueNo)
	assert.Equal(t, 2, st.Queue.QueuedCount)

	code, env = call(t, h, http.MethodPut, "/api/v1/session", "", map[string]string{"category": "Fruit", "mode": "draw"})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = call(t, h, http.MethodPost, "/api/v1/categories/Fruit/draw", "", map[string]string{"id_card": "100"})
	require.Equal(t, http.StatusOK, code, env.Error)
	code, env = call(t, h, http.MethodPost, "/api/v1/categories/Fruit/draw", "", map[string]string{"id_card": "200"})
	require.Equal(t, http.StatusOK, code, env.Error)
	var out lottery.DrawOutcome
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 0, out.Remaining)

	code, env = call(t, h, http.MethodGet, "/api/v1/categories/Fruit/results", "", nil)
	require.Equal(t, http.StatusOK, code)
	var results []json.RawMessage
	require.NoError(t, json.Unmarshal(env.Data, &results))
	assert.Len(t, results, 5)

	code, env = call(t, h, http.MethodPost, "/api/v1/participants/login", "", map[string]string{"id_card": "200", "name": "Bob"})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"drawn_count":3`)
}

func TestStallClassRoutes(t *testing.T) {
	h := newTestRouter(t, "")

	code, env := call(t, h, http.MethodPost, "/api/v1/stall-classes", "", map[string]interface{}{"category": "Fruit"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)

	code, env = call(t, h, http.MethodPost, "/api/v1/stall-classes", "", map[string]interface{}{
		"category": "Fruit", "sub_class": "apple", "stall_count": 2,
	})
	require.Equal(t, http.StatusCreated, code)
	var views []service.StallClassView
	require.NoError(t, json.Unmarshal(env.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "1-2", views[0].Range)

	code, _ = call(t, h, http.MethodPut, "/api/v1/stall-classes/abc", "", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, code)

	path := "/api/v1/stall-classes/" + jsonNumber(views[0].ID)
	code, env = call(t, h, http.MethodPut, path, "", map[string]interface{}{
		"category": "Fruit", "sub_class": "apple", "stall_count": 4,
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	require.NoError(t, json.Unmarshal(env.Data, &views))
	assert.Equal(t, "1-4", views[0].Range)

	code, env = call(t, h, http.MethodPost, "/api/v1/stall-classes", "", map[string]interface{}{
		"category": "Fruit", "sub_class": "apple", "stall_count": 1,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
	assert.Contains(t, env.Error.Message, "sub_class already exists")

	code, _ = call(t, h, http.MethodPost, "/api/v1/stall-classes/sync", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, env = call(t, h, http.MethodDelete, path, "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = call(t, h, http.MethodDelete, path, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	code, env = call(t, h, http.MethodPut, path, "", map[string]interface{}{
		"category": "Fruit", "sub_class": "apple", "stall_count": 4,
	})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestWriteTimeoutSkipsWebsocket(t *testing.T) {
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(New(Config{
		Handler:      handler.New("stall-lottery", "test", nil),
		Realtime:     ws,
		WriteTimeout: 20 * time.Millisecond,
	}))
	defer srv.Close()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

	resp, err := client.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/ws")
	require.NoError(t, err, "/ws has no write deadline")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
