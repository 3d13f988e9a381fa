package handler

import (
	"net/http"
	"runtime"
	"time"

	"stall-lottery/internal/middleware"
	"stall-lottery/internal/service"
	"stall-lottery/pkg/apierror"
	"stall-lottery/pkg/response"
)

// ConnectionStats reports realtime connection counters.
type ConnectionStats interface {
	Stats() map[string]interface{}
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	svc       *service.LotteryService
	conns     ConnectionStats
	dbType    string // sqlite, postgres or mysql
	loginKey  string
	startTime time.Time
}

// NewAdminHandler creates a new admin handler. conns may be nil.
func NewAdminHandler(svc *service.LotteryService, conns ConnectionStats, dbType, loginKey string) *AdminHandler {
	return &AdminHandler{
		svc:       svc,
		conns:     conns,
		dbType:    dbType,
		loginKey:  loginKey,
		startTime: time.Now(),
	}
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	// System info
	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["db_type"] = h.dbType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	lottery, err := h.svc.Stats(r.Context())
	if err == nil {
		stats["lottery"] = lottery
	} else {
		stats["lottery"] = map[string]interface{}{
			"status": "error",
			"error":  "registry unavailable",
		}
	}

	if h.conns != nil {
		stats["realtime"] = h.conns.Stats()
	} else {
		stats["realtime"] = map[string]interface{}{
			"status": "not_configured",
		}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}

// GetHealth handles GET /api/v1/admin/health
func (h *AdminHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

type loginRequest struct {
	Key string `json:"key"`
}

// VerifyLogin handles POST /api/v1/admin/login
func (h *AdminHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Key == "" {
		req.Key = middleware.RequestLoginKey(r)
	}
	if h.loginKey != "" && req.Key == "" {
		response.Error(w, apierror.Unauthorized("Login key required"))
		return
	}
	if !middleware.KeyMatches(h.loginKey, req.Key) {
		response.Error(w, apierror.Forbidden("Invalid login key"))
		return
	}
	response.OK(w, map[string]bool{"valid": true})
}
