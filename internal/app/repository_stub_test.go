package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/kyc-service/internal/domain"
	"github.com/transfa/kyc-service/internal/store"
)

// repoStub is an in-memory store.Repository with the same transition semantics as
// the Postgres statements.
type repoStub struct {
	store.Repository

	mu         sync.Mutex
	calls      int
	applicants map[string]*domain.Applicant
	requests   map[uuid.UUID]*domain.ProfileUpdateRequest
	audit      []domain.AuditEntry
	enqueued   []Notification
	enqueueErr error
	verdictErr error
	lastFilter domain.ApplicantFilter

	outbox    []store.OutboxMessage
	published []int64
	failed    map[int64]int
}

func newRepoStub(applicants ...domain.Applicant) *repoStub {
	r := &repoStub{
		applicants: make(map[string]*domain.Applicant),
		requests:   make(map[uuid.UUID]*domain.ProfileUpdateRequest),
		failed:     make(map[int64]int),
	}
	for i := range applicants {
		a := applicants[i]
		if a.KYCStatus == "" {
			a.KYCStatus = domain.KYCStatusNotStarted
		}
		r.applicants[a.UserID] = &a
	}
	return r
}

func (r *repoStub) touch() {
	r.calls++
}

func (r *repoStub) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *repoStub) auditCount(userID string, action domain.AuditAction) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, entry := range r.audit {
		if entry.UserID == userID && entry.Action == action {
			n++
		}
	}
	return n
}

func (r *repoStub) appendAudit(userID string, action domain.AuditAction, actorID *string, prev, next domain.KYCStatus) {
	r.audit = append(r.audit, domain.AuditEntry{
		ID:             int64(len(r.audit) + 1),
		UserID:         userID,
		Action:         action,
		ActorID:        actorID,
		PreviousStatus: &prev,
		NewStatus:      &next,
		CreatedAt:      time.Now(),
	})
}

func (r *repoStub) GetApplicant(ctx context.Context, userID string) (*domain.Applicant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	a, ok := r.applicants[userID]
	if !ok {
		return nil, store.ErrApplicantNotFound
	}
	copied := *a
	return &copied, nil
}

func (r *repoStub) ListApplicants(ctx context.Context, filter domain.ApplicantFilter) ([]domain.Applicant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	r.lastFilter = filter
	var out []domain.Applicant
	for _, a := range r.applicants {
		if filter.Status != nil && a.KYCStatus != *filter.Status {
			continue
		}
		if filter.OverrideOnly && !a.ManualOverrideEnabled {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (r *repoStub) ListStalePendingApplicants(ctx context.Context, submittedBefore time.Time, limit int) ([]domain.Applicant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	var out []domain.Applicant
	for _, a := range r.applicants {
		if a.KYCStatus != domain.KYCStatusPending || a.SumsubApplicantID == nil {
			continue
		}
		if a.ManualOverrideEnabled && a.SumsubReviewStatus != nil && *a.SumsubReviewStatus == "completed" {
			continue
		}
		if a.SubmittedAt != nil && a.SubmittedAt.Before(submittedBefore) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *repoStub) BeginVerification(ctx context.Context, userID string, sumsubApplicantID *string) (*domain.TransitionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	a, ok := r.applicants[userID]
	if !ok {
		return nil, store.ErrApplicantNotFound
	}
	prev := a.KYCStatus
	if a.SumsubApplicantID == nil && sumsubApplicantID != nil {
		id := *sumsubApplicantID
		a.SumsubApplicantID = &id
	}
	if prev != domain.KYCStatusPending {
		now := time.Now()
		a.KYCStatus = domain.KYCStatusPending
		a.SumsubReviewStatus = nil
		a.SumsubReviewResult = nil
		a.SubmittedAt = &now
		r.appendAudit(userID, domain.AuditVerificationStarted, nil, prev, domain.KYCStatusPending)
	}
	return &domain.TransitionResult{Applicant: *a, PreviousStatus: prev}, nil
}

func (r *repoStub) ApplyManualDecision(ctx context.Context, params store.ManualDecisionParams) (*domain.TransitionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	a, ok := r.applicants[params.UserID]
	if !ok {
		return nil, store.ErrApplicantNotFound
	}
	prev := a.KYCStatus
	now := time.Now()
	decidedBy := params.DecidedBy
	a.KYCStatus = params.Status
	a.DecidedAt = &now
	a.DecidedBy = &decidedBy
	a.DecisionReason = params.Reason
	r.appendAudit(params.UserID, domain.AuditManualDecision, &decidedBy, prev, params.Status)
	return &domain.TransitionResult{Applicant: *a, PreviousStatus: prev}, nil
}

func (r *repoStub) SetManualOverride(ctx context.Context, params store.ManualOverrideParams) (*domain.Applicant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	a, ok := r.applicants[params.UserID]
	if !ok {
		return nil, store.ErrApplicantNotFound
	}
	now := time.Now()
	updatedBy := params.UpdatedBy
	a.ManualOverrideEnabled = params.Enabled
	a.ManualOverrideReason = params.Reason
	a.OverrideUpdatedAt = &now
	a.OverrideUpdatedBy = &updatedBy
	r.appendAudit(params.UserID, domain.AuditOverrideChanged, &updatedBy, a.KYCStatus, a.KYCStatus)
	copied := *a
	return &copied, nil
}

func (r *repoStub) ApplyVerdict(ctx context.Context, params store.VerdictParams) (*domain.TransitionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	if r.verdictErr != nil {
		return nil, r.verdictErr
	}
	for _, a := range r.applicants {
		if a.SumsubApplicantID == nil || *a.SumsubApplicantID != params.ApplicantRef {
			continue
		}
		prev := a.KYCStatus
		changed := !sameString(a.SumsubReviewStatus, params.ReviewStatus) || !sameString(a.SumsubReviewResult, params.ReviewResult)
		a.SumsubReviewStatus = params.ReviewStatus
		a.SumsubReviewResult = params.ReviewResult
		if !a.ManualOverrideEnabled && params.TargetStatus != nil {
			a.KYCStatus = *params.TargetStatus
		}
		if changed || a.KYCStatus != prev {
			r.appendAudit(a.UserID, domain.AuditVerdictReceived, nil, prev, a.KYCStatus)
		}
		return &domain.TransitionResult{Applicant: *a, PreviousStatus: prev}, nil
	}
	return nil, store.ErrApplicantNotFound
}

func (r *repoStub) ListAuditEntries(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	var out []domain.AuditEntry
	for i := len(r.audit) - 1; i >= 0 && len(out) < limit; i-- {
		if r.audit[i].UserID == userID {
			out = append(out, r.audit[i])
		}
	}
	return out, nil
}

func (r *repoStub) CreateProfileUpdateRequest(ctx context.Context, userID string, fields domain.UserProfile) (*domain.ProfileUpdateRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	if _, ok := r.applicants[userID]; !ok {
		return nil, store.ErrApplicantNotFound
	}
	for _, req := range r.requests {
		if req.UserID == userID && req.Status == domain.ProfileUpdatePending {
			return nil, store.ErrPendingRequestExists
		}
	}
	req := &domain.ProfileUpdateRequest{
		ID:        uuid.New(),
		UserID:    userID,
		Fields:    fields,
		Status:    domain.ProfileUpdatePending,
		CreatedAt: time.Now(),
	}
	r.requests[req.ID] = req
	copied := *req
	return &copied, nil
}

func (r *repoStub) GetProfileUpdateRequest(ctx context.Context, requestID uuid.UUID) (*domain.ProfileUpdateRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	req, ok := r.requests[requestID]
	if !ok {
		return nil, store.ErrProfileRequestNotFound
	}
	copied := *req
	return &copied, nil
}

func (r *repoStub) ListProfileUpdateRequests(ctx context.Context, userID string, status *domain.ProfileUpdateStatus) ([]domain.ProfileUpdateRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	var out []domain.ProfileUpdateRequest
	for _, req := range r.requests {
		if req.UserID != userID {
			continue
		}
		if status != nil && req.Status != *status {
			continue
		}
		out = append(out, *req)
	}
	return out, nil
}

func (r *repoStub) resolvable(requestID uuid.UUID, userID string) (*domain.ProfileUpdateRequest, error) {
	req, ok := r.requests[requestID]
	if !ok || req.UserID != userID {
		return nil, store.ErrProfileRequestNotFound
	}
	if req.Status != domain.ProfileUpdatePending {
		return nil, store.ErrRequestNotPending
	}
	return req, nil
}

func (r *repoStub) ResolveProfileUpdateRequest(ctx context.Context, params store.ResolveProfileUpdateParams) (*domain.ProfileUpdateRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	req, err := r.resolvable(params.RequestID, params.UserID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	reviewedBy := params.ReviewedBy
	req.Status = params.Status
	req.ReviewedAt = &now
	req.ReviewedBy = &reviewedBy
	req.AdminComment = params.AdminComment

	if params.Status == domain.ProfileUpdateApproved {
		a := r.applicants[params.UserID]
		apply := func(dst **string, src *string) {
			if src != nil {
				v := *src
				*dst = &v
			}
		}
		apply(&a.Profile.FullName, req.Fields.FullName)
		apply(&a.Profile.Email, req.Fields.Email)
		apply(&a.Profile.Phone, req.Fields.Phone)
		apply(&a.Profile.Address, req.Fields.Address)
		apply(&a.Profile.Country, req.Fields.Country)
		apply(&a.Profile.Gender, req.Fields.Gender)
	}
	copied := *req
	return &copied, nil
}

func (r *repoStub) CancelProfileUpdateRequest(ctx context.Context, requestID uuid.UUID, userID string) (*domain.ProfileUpdateRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touch()
	req, err := r.resolvable(requestID, userID)
	if err != nil {
		return nil, err
	}
	req.Status = domain.ProfileUpdateCancelled
	copied := *req
	return &copied, nil
}

func (r *repoStub) EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqueueErr != nil {
		return r.enqueueErr
	}
	r.enqueued = append(r.enqueued, Notification{RoutingKey: routingKey, Payload: payload})
	return nil
}

func (r *repoStub) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimed := r.outbox
	r.outbox = nil
	return claimed, nil
}

func (r *repoStub) MarkOutboxPublished(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, id)
	return nil
}

func (r *repoStub) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = retryAfterSeconds
	return nil
}

// recordingNotifier captures notifications in memory.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, notification)
}

func (n *recordingNotifier) count(routingKey string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, note := range n.notes {
		if note.RoutingKey == routingKey {
			total++
		}
	}
	return total
}

type registrarStub struct {
	id    string
	err   error
	calls int
}

func (r *registrarStub) CreateApplicant(ctx context.Context, externalUserID string) (string, error) {
	r.calls++
	if r.err != nil {
		return "", r.err
	}
	return r.id, nil
}

func strPtr(v string) *string {
	return &v
}

var (
	reviewer = domain.Actor{UserID: "emp_1", Role: domain.RoleEmployee}
	admin    = domain.Actor{UserID: "admin_1", Role: domain.RoleAdmin}
)

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
