package api

import (
	"context"
	"sync"

	"github.com/transfa/kyc-service/internal/domain"
)

// serviceStub records which operations were reached and returns canned results.
type serviceStub struct {
	mu    sync.Mutex
	calls []string

	applicant  *domain.Applicant
	applicants []domain.Applicant
	history    []domain.AuditEntry
	request    *domain.ProfileUpdateRequest
	requests   []domain.ProfileUpdateRequest
	err        error

	lastActor    domain.Actor
	lastUserID   string
	lastStatus   string
	lastReason   *string
	lastEnabled  bool
	lastFilter   domain.ApplicantFilter
	lastFields   domain.UserProfile
	lastAction   string
	lastReqID    string
	lastVerdict  domain.VerdictInput
	verdictCalls int
	verdictErr   error
}

func (s *serviceStub) record(name string, actor domain.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	s.lastActor = actor
}

func (s *serviceStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *serviceStub) BeginVerification(ctx context.Context, actor domain.Actor, userID string) (*domain.Applicant, error) {
	s.record("BeginVerification", actor)
	s.lastUserID = userID
	return s.applicant, s.err
}

func (s *serviceStub) ListApplicants(ctx context.Context, actor domain.Actor, filter domain.ApplicantFilter) ([]domain.Applicant, error) {
	s.record("ListApplicants", actor)
	s.lastFilter = filter
	return s.applicants, s.err
}

func (s *serviceStub) GetApplicant(ctx context.Context, actor domain.Actor, userID string) (*domain.Applicant, error) {
	s.record("GetApplicant", actor)
	s.lastUserID = userID
	return s.applicant, s.err
}

func (s *serviceStub) ApplicantHistory(ctx context.Context, actor domain.Actor, userID string) ([]domain.AuditEntry, error) {
	s.record("ApplicantHistory", actor)
	s.lastUserID = userID
	return s.history, s.err
}

func (s *serviceStub) Decide(ctx context.Context, actor domain.Actor, userID string, rawStatus string, reason *string) (*domain.Applicant, error) {
	s.record("Decide", actor)
	s.lastUserID = userID
	s.lastStatus = rawStatus
	s.lastReason = reason
	return s.applicant, s.err
}

func (s *serviceStub) SetOverride(ctx context.Context, actor domain.Actor, userID string, enabled bool, reason *string) (*domain.Applicant, error) {
	s.record("SetOverride", actor)
	s.lastUserID = userID
	s.lastEnabled = enabled
	s.lastReason = reason
	return s.applicant, s.err
}

func (s *serviceStub) ApplyVerdict(ctx context.Context, verdict domain.VerdictInput) (domain.VerdictOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdictCalls++
	s.lastVerdict = verdict
	return domain.VerdictOutcome{}, s.verdictErr
}

func (s *serviceStub) SubmitProfileUpdate(ctx context.Context, actor domain.Actor, userID string, fields domain.UserProfile) (*domain.ProfileUpdateRequest, error) {
	s.record("SubmitProfileUpdate", actor)
	s.lastUserID = userID
	s.lastFields = fields
	return s.request, s.err
}

func (s *serviceStub) ReviewProfileUpdate(ctx context.Context, actor domain.Actor, userID string, rawRequestID string, rawAction string, comment *string) (*domain.ProfileUpdateRequest, error) {
	s.record("ReviewProfileUpdate", actor)
	s.lastUserID = userID
	s.lastReqID = rawRequestID
	s.lastAction = rawAction
	s.lastReason = comment
	return s.request, s.err
}

func (s *serviceStub) CancelProfileUpdate(ctx context.Context, actor domain.Actor, rawRequestID string) (*domain.ProfileUpdateRequest, error) {
	s.record("CancelProfileUpdate", actor)
	s.lastReqID = rawRequestID
	return s.request, s.err
}

func (s *serviceStub) ListProfileUpdates(ctx context.Context, actor domain.Actor, userID string, rawStatus string) ([]domain.ProfileUpdateRequest, error) {
	s.record("ListProfileUpdates", actor)
	s.lastUserID = userID
	s.lastStatus = rawStatus
	return s.requests, s.err
}

type publisherStub struct {
	err        error
	published  int
	routingKey string
	body       interface{}
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKey = routingKey
	p.body = body
	if p.err != nil {
		return p.err
	}
	p.published++
	return nil
}

func (p *publisherStub) Close() {}

type guardStub struct {
	seen      map[string]bool
	forgotten []string
}

func newGuardStub() *guardStub {
	return &guardStub{seen: map[string]bool{}}
}

func (g *guardStub) SeenBefore(ctx context.Context, key string) bool {
	if g.seen[key] {
		return true
	}
	g.seen[key] = true
	return false
}

func (g *guardStub) Forget(ctx context.Context, key string) {
	delete(g.seen, key)
	g.forgotten = append(g.forgotten, key)
}
