package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/kyc-service/internal/domain"
)

// ProfileHandler serves the profile update request endpoints.
type ProfileHandler struct {
	service Service
}

func NewProfileHandler(service Service) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileSubmitRequest accepts the changed fields either at the top level or nested
// under "fields".
type profileSubmitRequest struct {
	domain.UserProfile
	Fields *domain.UserProfile `json:"fields"`
}

type profileReviewRequest struct {
	Action  string  `json:"action"`
	Status  string  `json:"status"`
	Comment *string `json:"comment"`
}

func (h *ProfileHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req profileSubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fields := req.UserProfile
	if req.Fields != nil {
		fields = *req.Fields
	}

	actor := ActorFromContext(r.Context())
	request, err := h.service.SubmitProfileUpdate(r.Context(), actor, actor.UserID, fields)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (h *ProfileHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	h.list(w, r, actor, actor.UserID)
}

func (h *ProfileHandler) ListForClient(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, ActorFromContext(r.Context()), chi.URLParam(r, "id"))
}

func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request, actor domain.Actor, userID string) {
	requests, err := h.service.ListProfileUpdates(r.Context(), actor, userID, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"requests": requests})
}

func (h *ProfileHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req profileReviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	action := strings.TrimSpace(req.Action)
	if action == "" {
		action = strings.TrimSpace(req.Status)
	}

	request, err := h.service.ReviewProfileUpdate(
		r.Context(),
		ActorFromContext(r.Context()),
		chi.URLParam(r, "id"),
		chi.URLParam(r, "requestId"),
		action,
		req.Comment,
	)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *ProfileHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	request, err := h.service.CancelProfileUpdate(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "requestId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}
