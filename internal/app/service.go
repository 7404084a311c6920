/**
 * @description
 * This file contains the core business logic for the kyc-service. The `Service`
 * struct drives the applicant status machine: verification start, manual reviewer
 * decisions, the manual override gate, and automated verdicts from SumSub.
 *
 * Key features:
 * - Every operation checks authentication, then role, then input, then business
 *   rules, and returns before touching storage when a guard fails.
 * - Each transition is a single repository call that updates the applicant and
 *   appends an audit row in one statement.
 * - Notifications are emitted only when the status actually changed.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/transfa/kyc-service/internal/domain"
	"github.com/transfa/kyc-service/internal/store"
)

const (
	maxReasonLength     = 1000
	defaultHistoryLimit = 100
)

// ApplicantRegistrar creates an applicant at the verification provider and returns its id.
type ApplicantRegistrar interface {
	CreateApplicant(ctx context.Context, externalUserID string) (string, error)
}

// Service provides the KYC decision workflow.
type Service struct {
	repo      store.Repository
	notifier  Notifier
	registrar ApplicantRegistrar
	now       func() time.Time
}

// NewService creates a new KYC service instance. registrar may be nil when SumSub
// credentials are not configured; applicants then start verification without a
// provider reference.
func NewService(repo store.Repository, notifier Notifier, registrar ApplicantRegistrar) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		registrar: registrar,
		now:       time.Now,
	}
}

func requireAuthenticated(actor domain.Actor) error {
	if !actor.Authenticated() {
		return newError(ErrAuthenticationRequired, "authentication required")
	}
	return nil
}

func requireReviewer(actor domain.Actor) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}
	if !actor.CanReview() {
		return newError(ErrAuthorizationDenied, "employee or admin role required")
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return newError(ErrAuthorizationDenied, "admin role required")
	}
	return nil
}

func requireSelfOrReviewer(actor domain.Actor, userID string) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}
	if actor.UserID != userID && !actor.CanReview() {
		return newError(ErrAuthorizationDenied, "not allowed to access another user's verification")
	}
	return nil
}

func normalizeUserID(userID string) (string, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return "", newError(ErrValidation, "user id is required")
	}
	return trimmed, nil
}

func normalizeReason(reason *string) (*string, error) {
	if reason == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*reason)
	if trimmed == "" {
		return nil, nil
	}
	if len(trimmed) > maxReasonLength {
		return nil, newError(ErrValidation, "reason must be at most %d characters", maxReasonLength)
	}
	return &trimmed, nil
}

func translateApplicantError(err error, userID string) error {
	if errors.Is(err, store.ErrApplicantNotFound) {
		return newError(ErrNotFound, "applicant %s not found", userID)
	}
	return err
}

// BeginVerification moves the applicant to pending. Applicants already pending are
// returned unchanged unless they still lack a SumSub reference. The reference is created
// before the status update so no row lock is held across the provider call.
func (s *Service) BeginVerification(ctx context.Context, actor domain.Actor, userID string) (*domain.Applicant, error) {
	userID = strings.TrimSpace(userID)
	if err := requireSelfOrReviewer(actor, userID); err != nil {
		return nil, err
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.GetApplicant(ctx, userID)
	if err != nil {
		return nil, translateApplicantError(err, userID)
	}
	needsRegistration := current.SumsubApplicantID == nil && s.registrar != nil
	if current.KYCStatus == domain.KYCStatusPending && !needsRegistration {
		return current, nil
	}
	if current.KYCStatus != domain.KYCStatusPending && !current.KYCStatus.CanBeginVerification() {
		return nil, newError(ErrConflict, "verification cannot start from status %s", current.KYCStatus)
	}

	var applicantID *string
	if needsRegistration {
		id, err := s.registrar.CreateApplicant(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to register applicant with verification provider: %w", err)
		}
		applicantID = &id
	}

	result, err := s.repo.BeginVerification(ctx, userID, applicantID)
	if err != nil {
		return nil, translateApplicantError(err, userID)
	}

	log.Printf("level=info component=kyc msg=\"verification started\" user_id=%s previous_status=%s", userID, result.PreviousStatus)
	s.notifyStatusChange(ctx, result, "submission", &actor.UserID, nil)
	return &result.Applicant, nil
}

// ListApplicants returns the review queue, most recent submission first.
func (s *Service) ListApplicants(ctx context.Context, actor domain.Actor, filter domain.ApplicantFilter) ([]domain.Applicant, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, newError(ErrValidation, "unknown kyc status %q", *filter.Status)
	}

	applicants, err := s.repo.ListApplicants(ctx, filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("failed to list applicants: %w", err)
	}
	if applicants == nil {
		applicants = []domain.Applicant{}
	}
	return applicants, nil
}

// GetApplicant returns a single applicant. Users may read their own record.
func (s *Service) GetApplicant(ctx context.Context, actor domain.Actor, userID string) (*domain.Applicant, error) {
	userID = strings.TrimSpace(userID)
	if err := requireSelfOrReviewer(actor, userID); err != nil {
		return nil, err
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}

	applicant, err := s.repo.GetApplicant(ctx, userID)
	if err != nil {
		return nil, translateApplicantError(err, userID)
	}
	return applicant, nil
}

// ApplicantHistory returns the audit trail for an applicant, newest first.
func (s *Service) ApplicantHistory(ctx context.Context, actor domain.Actor, userID string) ([]domain.AuditEntry, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetApplicant(ctx, userID); err != nil {
		return nil, translateApplicantError(err, userID)
	}
	entries, err := s.repo.ListAuditEntries(ctx, userID, defaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load applicant history: %w", err)
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	return entries, nil
}

// Decide applies a reviewer's decision. Re-applying the current status succeeds and
// refreshes the decision reason, reviewer and timestamp.
func (s *Service) Decide(ctx context.Context, actor domain.Actor, userID string, rawStatus string, reason *string) (*domain.Applicant, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	status, err := domain.ParseKYCStatus(rawStatus)
	if err != nil || !status.IsDecision() {
		return nil, newError(ErrValidation, "status must be one of approved, rejected")
	}
	reason, err = normalizeReason(reason)
	if err != nil {
		return nil, err
	}

	result, err := s.repo.ApplyManualDecision(ctx, store.ManualDecisionParams{
		UserID:    userID,
		Status:    status,
		Reason:    reason,
		DecidedBy: actor.UserID,
	})
	if err != nil {
		return nil, translateApplicantError(err, userID)
	}

	kycTransitionsTotal.WithLabelValues("manual", string(status)).Inc()
	log.Printf("level=info component=kyc msg=\"manual decision recorded\" user_id=%s previous_status=%s status=%s decided_by=%s", userID, result.PreviousStatus, status, actor.UserID)
	s.notifyStatusChange(ctx, result, "manual", &actor.UserID, reason)
	return &result.Applicant, nil
}

// SetOverride flips the manual override flag and overwrites its reason. The KYC
// status is never touched.
func (s *Service) SetOverride(ctx context.Context, actor domain.Actor, userID string, enabled bool, reason *string) (*domain.Applicant, error) {
	if err := requireReviewer(actor); err != nil {
		return nil, err
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	reason, err = normalizeReason(reason)
	if err != nil {
		return nil, err
	}

	applicant, err := s.repo.SetManualOverride(ctx, store.ManualOverrideParams{
		UserID:    userID,
		Enabled:   enabled,
		Reason:    reason,
		UpdatedBy: actor.UserID,
	})
	if err != nil {
		return nil, translateApplicantError(err, userID)
	}

	log.Printf("level=info component=kyc msg=\"manual override updated\" user_id=%s enabled=%t updated_by=%s", userID, enabled, actor.UserID)
	s.notifier.Notify(ctx, Notification{
		RoutingKey: domain.RoutingKeyOverrideChanged,
		Payload: domain.OverrideChangedEvent{
			UserID:     userID,
			Enabled:    enabled,
			ActorID:    actor.UserID,
			Reason:     reason,
			OccurredAt: s.now().UTC(),
		},
	})
	return applicant, nil
}

// ApplyVerdict records a SumSub verdict. Unknown applicant references are logged and
// discarded. While the override flag is on only the raw review fields are stored.
// Re-applying a verdict leaves the status unchanged and emits no notification.
func (s *Service) ApplyVerdict(ctx context.Context, verdict domain.VerdictInput) (domain.VerdictOutcome, error) {
	ref := strings.TrimSpace(verdict.ApplicantRef)
	if ref == "" {
		kycVerdictsTotal.WithLabelValues("ignored").Inc()
		log.Printf("level=warn component=kyc msg=\"verdict without applicant reference discarded\" source=%s", verdict.Source)
		return domain.VerdictOutcome{Ignored: true}, nil
	}

	params := store.VerdictParams{ApplicantRef: ref}
	if status := strings.TrimSpace(verdict.ReviewStatus); status != "" {
		params.ReviewStatus = &status
	}
	if verdict.ReviewAnswer != "" {
		answer := string(verdict.ReviewAnswer)
		params.ReviewResult = &answer
	}
	target, drivesStatus := verdict.ReviewAnswer.TargetStatus()
	if drivesStatus {
		params.TargetStatus = &target
	}

	result, err := s.repo.ApplyVerdict(ctx, params)
	if err != nil {
		if errors.Is(err, store.ErrApplicantNotFound) {
			kycVerdictsTotal.WithLabelValues("ignored").Inc()
			log.Printf("level=warn component=kyc msg=\"verdict for unknown applicant discarded\" applicant_id=%s source=%s", ref, verdict.Source)
			return domain.VerdictOutcome{Ignored: true}, nil
		}
		kycVerdictsTotal.WithLabelValues("error").Inc()
		return domain.VerdictOutcome{}, fmt.Errorf("failed to apply verdict: %w", err)
	}

	outcome := domain.VerdictOutcome{
		Result:     result,
		Suppressed: drivesStatus && result.Applicant.ManualOverrideEnabled,
	}

	switch {
	case outcome.Suppressed:
		kycVerdictsTotal.WithLabelValues("suppressed").Inc()
		log.Printf("level=info component=kyc msg=\"verdict recorded under manual override\" user_id=%s answer=%s status=%s", result.Applicant.UserID, verdict.ReviewAnswer, result.Applicant.KYCStatus)
	case result.StatusChanged():
		kycVerdictsTotal.WithLabelValues("applied").Inc()
		kycTransitionsTotal.WithLabelValues("verdict", string(result.Applicant.KYCStatus)).Inc()
		log.Printf("level=info component=kyc msg=\"verdict applied\" user_id=%s previous_status=%s status=%s", result.Applicant.UserID, result.PreviousStatus, result.Applicant.KYCStatus)
	default:
		kycVerdictsTotal.WithLabelValues("recorded").Inc()
	}

	source := verdict.Source
	if source == "" {
		source = "sumsub"
	}
	s.notifyStatusChange(ctx, result, source, nil, nil)
	return outcome, nil
}

func (s *Service) notifyStatusChange(ctx context.Context, result *domain.TransitionResult, source string, actorID *string, reason *string) {
	if result == nil || !result.StatusChanged() {
		return
	}
	s.notifier.Notify(ctx, Notification{
		RoutingKey: domain.RoutingKeyKYCStatusChanged,
		Payload: domain.KYCStatusChangedEvent{
			UserID:         result.Applicant.UserID,
			PreviousStatus: result.PreviousStatus,
			NewStatus:      result.Applicant.KYCStatus,
			Source:         source,
			ActorID:        actorID,
			Reason:         reason,
			OccurredAt:     s.now().UTC(),
		},
	})
}
