package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"stall-lottery/internal/model"
	"stall-lottery/internal/service"
	"stall-lottery/pkg/apierror"
	"stall-lottery/pkg/response"
)

// StallClassHandler handles stall class configuration.
type StallClassHandler struct {
	svc *service.LotteryService
}

// NewStallClassHandler creates a new stall class handler.
func NewStallClassHandler(svc *service.LotteryService) *StallClassHandler {
	return &StallClassHandler{svc: svc}
}

func classID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierror.BadRequest("invalid stall class id")
	}
	return id, nil
}

// List handles GET /api/v1/stall-classes
func (h *StallClassHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.ListStallClasses(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, views)
}

// Add handles POST /api/v1/stall-classes
func (h *StallClassHandler) Add(w http.ResponseWriter, r *http.Request) {
	var class model.StallClass
	if err := decodeJSON(r, &class); err != nil {
		response.Error(w, err)
		return
	}
	views, err := h.svc.AddStallClass(r.Context(), class)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Created(w, views)
}

// Update handles PUT /api/v1/stall-classes/{id}
func (h *StallClassHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := classID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	var class model.StallClass
	if err := decodeJSON(r, &class); err != nil {
		response.Error(w, err)
		return
	}
	class.ID = id
	views, err := h.svc.UpdateStallClass(r.Context(), class)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, views)
}

type batchRequest struct {
	Classes []model.StallClass `json:"classes"`
}

// UpdateBatch handles PUT /api/v1/stall-classes
func (h *StallClassHandler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	views, err := h.svc.UpdateStallClasses(r.Context(), req.Classes)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, views)
}

// Delete handles DELETE /api/v1/stall-classes/{id}
func (h *StallClassHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := classID(r)
	if err != nil {
		response.Error(w, err)
		return
	}
	views, err := h.svc.DeleteStallClass(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, views)
}

// Sync handles POST /api/v1/stall-classes/sync
func (h *StallClassHandler) Sync(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.SyncStallClasses(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, views)
}
