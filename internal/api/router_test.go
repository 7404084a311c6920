package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/transfa/kyc-service/internal/app"
	"github.com/transfa/kyc-service/internal/domain"
)

func newTestRouter(svc *serviceStub) http.Handler {
	return NewRouter(RouterConfig{Auth: AuthMiddlewareConfig{AllowHeaderFallback: true}}, svc, nil)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, userID string, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-Clerk-User-Id", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	rec := doRequest(t, newTestRouter(&serviceStub{}), http.MethodGet, "/health", "", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "healthy" {
		t.Fatalf("expected healthy 200, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouter_GuardOrderStopsBeforeService(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		userID string
		role   string
		want   int
	}{
		{name: "anonymous list", method: http.MethodGet, path: "/kyc-users", want: http.StatusUnauthorized},
		{name: "anonymous decide with bad body", method: http.MethodPost, path: "/kyc/manual-decision/u1", body: "{", want: http.StatusUnauthorized},
		{name: "user decide with bad body", method: http.MethodPost, path: "/kyc/manual-decision/u1", body: "{", userID: "u2", role: "user", want: http.StatusForbidden},
		{name: "user override", method: http.MethodPost, path: "/kyc/manual-override/u1", body: `{"enabled":true}`, userID: "u2", want: http.StatusForbidden},
		{name: "user patch client kyc", method: http.MethodPatch, path: "/clients/u1/kyc", body: `{"status":"approved"}`, userID: "u2", want: http.StatusForbidden},
		{name: "employee reviews profile request", method: http.MethodPatch, path: "/clients/u1/profile-request/x", body: `{"action":"approve"}`, userID: "emp_1", role: "employee", want: http.StatusForbidden},
		{name: "anonymous start", method: http.MethodPost, path: "/kyc/start", want: http.StatusUnauthorized},
		{name: "anonymous profile submit", method: http.MethodPost, path: "/user/profile", body: `{"email":"a@b.co"}`, want: http.StatusUnauthorized},
		{name: "anonymous cancel", method: http.MethodDelete, path: "/profile-updates/x", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceStub{}
			rec := doRequest(t, newTestRouter(svc), tt.method, tt.path, tt.body, tt.userID, tt.role)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
			if svc.callCount() != 0 {
				t.Fatalf("expected service not to be called, got %v", svc.calls)
			}
		})
	}
}

func TestRouter_ServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: &app.Error{Kind: app.ErrNotFound, Message: "applicant not found"}, want: http.StatusNotFound},
		{name: "validation", err: &app.Error{Kind: app.ErrValidation, Message: "status must be approved or rejected"}, want: http.StatusBadRequest},
		{name: "conflict", err: &app.Error{Kind: app.ErrConflict, Message: "request already resolved"}, want: http.StatusConflict},
		{name: "forbidden", err: &app.Error{Kind: app.ErrAuthorizationDenied, Message: "denied"}, want: http.StatusForbidden},
		{name: "unauthenticated", err: &app.Error{Kind: app.ErrAuthenticationRequired}, want: http.StatusUnauthorized},
		{name: "unclassified", err: errors.New("connection reset"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceStub{err: tt.err}
			rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/kyc/manual-decision/u1", `{"status":"approved","reason":"docs ok"}`, "emp_1", "employee")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}

			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected json error body: %v", err)
			}
			if tt.want == http.StatusInternalServerError && body["error"] != "Internal server error" {
				t.Fatalf("expected generic message, got %q", body["error"])
			}
		})
	}
}

func TestRouter_ManualDecisionPassesInput(t *testing.T) {
	svc := &serviceStub{applicant: &domain.Applicant{UserID: "u1", KYCStatus: domain.KYCStatusApproved}}
	h := newTestRouter(svc)

	rec := doRequest(t, h, http.MethodPost, "/kyc/manual-decision/u1", `{"status":"approved","reason":"docs ok"}`, "emp_1", "employee")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastUserID != "u1" || svc.lastStatus != "approved" || svc.lastReason == nil || *svc.lastReason != "docs ok" {
		t.Fatalf("unexpected decide input: user=%s status=%s reason=%v", svc.lastUserID, svc.lastStatus, svc.lastReason)
	}
	if svc.lastActor.UserID != "emp_1" || svc.lastActor.Role != domain.RoleEmployee {
		t.Fatalf("unexpected actor %+v", svc.lastActor)
	}

	rec = doRequest(t, h, http.MethodPatch, "/clients/u9/kyc", `{"status":"rejected"}`, "admin_1", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastUserID != "u9" || svc.lastStatus != "rejected" {
		t.Fatalf("expected client route to decide for u9, got %s %s", svc.lastUserID, svc.lastStatus)
	}

	var applicant domain.Applicant
	if err := json.Unmarshal(rec.Body.Bytes(), &applicant); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if applicant.KYCStatus != domain.KYCStatusApproved {
		t.Fatalf("expected applicant body, got %+v", applicant)
	}
}

func TestRouter_InvalidBodyIsValidationError(t *testing.T) {
	svc := &serviceStub{}
	rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/kyc/manual-decision/u1", "{", "emp_1", "employee")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.callCount() != 0 {
		t.Fatal("expected service not to be called")
	}
}

func TestRouter_OverrideRequiresEnabled(t *testing.T) {
	svc := &serviceStub{applicant: &domain.Applicant{UserID: "u1"}}
	h := newTestRouter(svc)

	rec := doRequest(t, h, http.MethodPost, "/kyc/manual-override/u1", `{"reason":"fraud check"}`, "emp_1", "employee")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without enabled, got %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/kyc/manual-override/u1", `{"enabled":true,"reason":"fraud check"}`, "emp_1", "employee")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !svc.lastEnabled || svc.lastUserID != "u1" {
		t.Fatalf("unexpected override input enabled=%t user=%s", svc.lastEnabled, svc.lastUserID)
	}
}

func TestRouter_ListApplicantsQuery(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{name: "bad status", query: "?status=unknown", want: http.StatusBadRequest},
		{name: "bad override flag", query: "?override_only=maybe", want: http.StatusBadRequest},
		{name: "negative limit", query: "?limit=-1", want: http.StatusBadRequest},
		{name: "bad offset", query: "?offset=abc", want: http.StatusBadRequest},
		{name: "valid", query: "?status=pending&override_only=true&limit=10&offset=20", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceStub{applicants: []domain.Applicant{}}
			rec := doRequest(t, newTestRouter(svc), http.MethodGet, "/kyc-users"+tt.query, "", "admin_1", "admin")
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
			if tt.want != http.StatusOK {
				if svc.callCount() != 0 {
					t.Fatal("expected service not to be called")
				}
				return
			}
			if svc.lastFilter.Status == nil || *svc.lastFilter.Status != domain.KYCStatusPending {
				t.Fatalf("expected pending filter, got %+v", svc.lastFilter)
			}
			if !svc.lastFilter.OverrideOnly || svc.lastFilter.Limit != 10 || svc.lastFilter.Offset != 20 {
				t.Fatalf("unexpected filter %+v", svc.lastFilter)
			}

			var body applicantListResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Applicants == nil || body.Limit != 10 || body.Offset != 20 {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestRouter_SelfServiceUsesCallerID(t *testing.T) {
	svc := &serviceStub{applicant: &domain.Applicant{UserID: "u1", KYCStatus: domain.KYCStatusPending}}
	h := newTestRouter(svc)

	rec := doRequest(t, h, http.MethodPost, "/kyc/start", "", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastUserID != "u1" || svc.lastActor.Role != domain.RoleUser {
		t.Fatalf("expected caller to start own verification, got user=%s actor=%+v", svc.lastUserID, svc.lastActor)
	}

	rec = doRequest(t, h, http.MethodGet, "/kyc/status", "", "u1", "")
	if rec.Code != http.StatusOK || svc.lastUserID != "u1" {
		t.Fatalf("expected own status, got %d for %s", rec.Code, svc.lastUserID)
	}
}

func TestRouter_ProfileSubmitAcceptsBothShapes(t *testing.T) {
	requestID := uuid.New()
	tests := []struct {
		name string
		body string
	}{
		{name: "flat", body: `{"email":"new@example.com","country":"ng"}`},
		{name: "nested", body: `{"fields":{"email":"new@example.com","country":"ng"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &serviceStub{request: &domain.ProfileUpdateRequest{ID: requestID, UserID: "u1", Status: domain.ProfileUpdatePending}}
			rec := doRequest(t, newTestRouter(svc), http.MethodPost, "/user/profile", tt.body, "u1", "")
			if rec.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d", rec.Code)
			}
			if svc.lastUserID != "u1" {
				t.Fatalf("expected submit for caller, got %s", svc.lastUserID)
			}
			if svc.lastFields.Email == nil || *svc.lastFields.Email != "new@example.com" {
				t.Fatalf("expected email to be forwarded, got %+v", svc.lastFields)
			}
			if svc.lastFields.Country == nil || *svc.lastFields.Country != "ng" {
				t.Fatalf("expected country to be forwarded, got %+v", svc.lastFields)
			}
		})
	}
}

func TestRouter_ProfileReviewAndCancel(t *testing.T) {
	requestID := uuid.New()
	svc := &serviceStub{request: &domain.ProfileUpdateRequest{ID: requestID, UserID: "u1", Status: domain.ProfileUpdateApproved}}
	h := newTestRouter(svc)

	path := fmt.Sprintf("/clients/u1/profile-request/%s", requestID)
	rec := doRequest(t, h, http.MethodPatch, path, `{"status":"approved","comment":"ok"}`, "admin_1", "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastAction != "approved" || svc.lastReqID != requestID.String() || svc.lastUserID != "u1" {
		t.Fatalf("unexpected review input action=%s req=%s user=%s", svc.lastAction, svc.lastReqID, svc.lastUserID)
	}

	svc.err = &app.Error{Kind: app.ErrConflict, Message: "request is not pending"}
	rec = doRequest(t, h, http.MethodDelete, "/profile-updates/"+requestID.String(), "", "u1", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if svc.lastReqID != requestID.String() {
		t.Fatalf("expected cancel for %s, got %s", requestID, svc.lastReqID)
	}
}

func TestRouter_ProfileRequestListing(t *testing.T) {
	svc := &serviceStub{requests: []domain.ProfileUpdateRequest{}}
	h := newTestRouter(svc)

	rec := doRequest(t, h, http.MethodGet, "/user/profile-requests?status=pending", "", "u1", "")
	if rec.Code != http.StatusOK || svc.lastUserID != "u1" || svc.lastStatus != "pending" {
		t.Fatalf("unexpected own listing: code=%d user=%s status=%s", rec.Code, svc.lastUserID, svc.lastStatus)
	}

	rec = doRequest(t, h, http.MethodGet, "/clients/u7/profile-requests", "", "emp_1", "employee")
	if rec.Code != http.StatusOK || svc.lastUserID != "u7" {
		t.Fatalf("unexpected client listing: code=%d user=%s", rec.Code, svc.lastUserID)
	}
}

func TestRouter_HeaderFallbackDisabled(t *testing.T) {
	svc := &serviceStub{}
	h := NewRouter(RouterConfig{}, svc, nil)

	rec := doRequest(t, h, http.MethodGet, "/kyc-users", "", "admin_1", "admin")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected header identity to be ignored, got %d", rec.Code)
	}
}
