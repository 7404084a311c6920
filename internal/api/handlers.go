/**
 * @description
 * HTTP handlers for the KYC review queue: self-service verification start and status,
 * plus the employee/admin listing, decision and override endpoints.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameters
 * - internal/domain: applicant and filter types
 */

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/kyc-service/internal/domain"
)

// Service is the subset of app.Service the HTTP layer calls.
type Service interface {
	BeginVerification(ctx context.Context, actor domain.Actor, userID string) (*domain.Applicant, error)
	ListApplicants(ctx context.Context, actor domain.Actor, filter domain.ApplicantFilter) ([]domain.Applicant, error)
	GetApplicant(ctx context.Context, actor domain.Actor, userID string) (*domain.Applicant, error)
	ApplicantHistory(ctx context.Context, actor domain.Actor, userID string) ([]domain.AuditEntry, error)
	Decide(ctx context.Context, actor domain.Actor, userID string, rawStatus string, reason *string) (*domain.Applicant, error)
	SetOverride(ctx context.Context, actor domain.Actor, userID string, enabled bool, reason *string) (*domain.Applicant, error)

	SubmitProfileUpdate(ctx context.Context, actor domain.Actor, userID string, fields domain.UserProfile) (*domain.ProfileUpdateRequest, error)
	ReviewProfileUpdate(ctx context.Context, actor domain.Actor, userID string, rawRequestID string, rawAction string, comment *string) (*domain.ProfileUpdateRequest, error)
	CancelProfileUpdate(ctx context.Context, actor domain.Actor, rawRequestID string) (*domain.ProfileUpdateRequest, error)
	ListProfileUpdates(ctx context.Context, actor domain.Actor, userID string, rawStatus string) ([]domain.ProfileUpdateRequest, error)
}

// KYCHandler serves the applicant and review queue endpoints.
type KYCHandler struct {
	service Service
}

func NewKYCHandler(service Service) *KYCHandler {
	return &KYCHandler{service: service}
}

type decisionRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason"`
}

type overrideRequest struct {
	Enabled *bool   `json:"enabled"`
	Reason  *string `json:"reason"`
}

type applicantListResponse struct {
	Applicants []domain.Applicant `json:"applicants"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// StartVerification moves the caller into the pending state.
func (h *KYCHandler) StartVerification(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	applicant, err := h.service.BeginVerification(r.Context(), actor, actor.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicant)
}

// Status returns the caller's own applicant record.
func (h *KYCHandler) Status(w http.ResponseWriter, r *http.Request) {
	actor := ActorFromContext(r.Context())
	applicant, err := h.service.GetApplicant(r.Context(), actor, actor.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicant)
}

func (h *KYCHandler) ListApplicants(w http.ResponseWriter, r *http.Request) {
	filter, ok := parseApplicantFilter(w, r)
	if !ok {
		return
	}

	applicants, err := h.service.ListApplicants(r.Context(), ActorFromContext(r.Context()), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	filter = filter.Normalize()
	writeJSON(w, http.StatusOK, applicantListResponse{
		Applicants: applicants,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
}

func (h *KYCHandler) GetApplicant(w http.ResponseWriter, r *http.Request) {
	applicant, err := h.service.GetApplicant(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicant)
}

func (h *KYCHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ApplicantHistory(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "userId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

// ManualDecision handles both POST /kyc/manual-decision/{userId} and
// PATCH /clients/{id}/kyc.
func (h *KYCHandler) ManualDecision(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		userID = chi.URLParam(r, "id")
	}

	var req decisionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	applicant, err := h.service.Decide(r.Context(), ActorFromContext(r.Context()), userID, req.Status, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicant)
}

func (h *KYCHandler) ManualOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	applicant, err := h.service.SetOverride(r.Context(), ActorFromContext(r.Context()), chi.URLParam(r, "userId"), *req.Enabled, req.Reason)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, applicant)
}

func parseApplicantFilter(w http.ResponseWriter, r *http.Request) (domain.ApplicantFilter, bool) {
	query := r.URL.Query()
	filter := domain.ApplicantFilter{}

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := domain.ParseKYCStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "status must be one of not_started, pending, approved, rejected")
			return filter, false
		}
		filter.Status = &status
	}

	if raw := strings.TrimSpace(query.Get("override_only")); raw != "" {
		overrideOnly, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "override_only must be a boolean")
			return filter, false
		}
		filter.OverrideOnly = overrideOnly
	}

	for _, param := range []struct {
		name string
		dst  *int
	}{
		{name: "limit", dst: &filter.Limit},
		{name: "offset", dst: &filter.Offset},
	} {
		raw := strings.TrimSpace(query.Get(param.name))
		if raw == "" {
			continue
		}
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			writeError(w, http.StatusBadRequest, param.name+" must be a non-negative integer")
			return filter, false
		}
		*param.dst = value
	}

	return filter, true
}
