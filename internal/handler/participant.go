package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"stall-lottery/internal/model"
	"stall-lottery/internal/service"
	"stall-lottery/pkg/apierror"
	"stall-lottery/pkg/response"
)

// ParticipantHandler handles vendor-facing requests and owner imports.
type ParticipantHandler struct {
	svc *service.LotteryService
}

// NewParticipantHandler creates a new participant handler.
func NewParticipantHandler(svc *service.LotteryService) *ParticipantHandler {
	return &ParticipantHandler{svc: svc}
}

// Login handles POST /api/v1/participants/login
func (h *ParticipantHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	owners, err := h.svc.Login(r.Context(), req.IDCard, req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{"owners": owners})
}

// Queue handles POST /api/v1/categories/{category}/queue
func (h *ParticipantHandler) Queue(w http.ResponseWriter, r *http.Request) {
	var req ownerRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	progress, err := h.svc.Queue(r.Context(), req.IDCard, chi.URLParam(r, "category"))
	if err != nil {
		fail(w, r, err)
		return
	}
	response.OK(w, progress)
}

type importRequest struct {
	Owners []model.Owner `json:"owners"`
}

// Import handles POST /api/v1/owners/import
func (h *ParticipantHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := decodeJSON(r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if len(req.Owners) == 0 {
		response.Error(w, apierror.BadRequest("owners are required"))
		return
	}
	res, err := h.svc.ImportOwners(r.Context(), req.Owners)
	if err != nil {
		fail(w, r, err)
		return
	}
	response.Created(w, res)
}
