package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stall-lottery/internal/service"
	"stall-lottery/pkg/apierror"
	"stall-lottery/pkg/logger"
	"stall-lottery/pkg/response"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads an optional JSON body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return apierror.BadRequest("invalid JSON")
	}
	return nil
}

// fail writes a domain error. Unexpected failures are logged and reported generically.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := service.ToAPIError(err)
	if apiErr.StatusCode >= http.StatusInternalServerError {
		logger.Named("handler").Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	response.Error(w, apiErr)
}

// LotteryHandler handles session, queue and draw requests.
type LotteryHandler struct {
	svc *service.LotteryService
}

// NewLotteryHandler creates a new lottery handler.
func NewLotteryHandler(svc *service.LotteryService) *LotteryHandler {
	return &LotteryHandler{svc: svc}
}

// Current handles GET /api/v1/current
func (h *LotteryHandler) Current(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{
		"current":  h.svc.CurrentCategory(),
		"mode":     h.svc.Mode(),
		"statuses": h.svc.Statuses(),
	})
}

// GetSession handles GET /api/v1/session
func (h *LotteryHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.svc.Config())
}

type sessionRequest struct {
	Category  string `json:"category"`
	Mode      string `json:"mode"`
	QtyFilter string `json:"qty_filter"`
}

// SetSession handles PUT /api/v1/session
func (h *LotteryHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	snap, err := h.svc.SetConfig(r.Context(), req.Category, req.Mode, req.QtyFilter)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, snap)
}

// SessionStatus handles GET /api/v1/session/status
func (h *LotteryHandler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, st)
}

// Snapshot handles GET /api/v1/categories/{category}/snapshot
func (h *LotteryHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, snap)
}

// Unqueued handles GET /api/v1/categories/{category}/unqueued
func (h *LotteryHandler) Unqueued(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Unqueued(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, list)
}

// DefaultRange handles GET /api/v1/categories/{category}/default-range
func (h *LotteryHandler) DefaultRange(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	rng, err := h.svc.DefaultRange(r.Context(), category)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, map[string]string{"category": category, "range": rng})
}

// Results handles GET /api/v1/categories/{category}/results
func (h *LotteryHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.svc.Results(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, results)
}

// NextDrawable handles GET /api/v1/categories/{category}/draw/next
func (h *LotteryHandler) NextDrawable(w http.ResponseWriter, r *http.Request) {
	next, err := h.svc.NextDrawable(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{"owner": next})
}

type ownerRequest struct {
	IDCard string `json:"id_card"`
	Name   string `json:"name"`
}

// Draw handles POST /api/v1/categories/{category}/draw
func (h *LotteryHandler) Draw(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	out, err := h.svc.Draw(r.Context(), chi.URLParam(r, "category"), req.IDCard)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, out)
}
