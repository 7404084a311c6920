/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the kyc-service. The application layer only
 * depends on this interface so tests can substitute in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For profile update request identifiers.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/kyc-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Applicant methods
	GetApplicant(ctx context.Context, userID string) (*domain.Applicant, error)
	ListApplicants(ctx context.Context, filter domain.ApplicantFilter) ([]domain.Applicant, error)
	ListStalePendingApplicants(ctx context.Context, submittedBefore time.Time, limit int) ([]domain.Applicant, error)
	BeginVerification(ctx context.Context, userID string, sumsubApplicantID *string) (*domain.TransitionResult, error)
	ApplyManualDecision(ctx context.Context, params ManualDecisionParams) (*domain.TransitionResult, error)
	SetManualOverride(ctx context.Context, params ManualOverrideParams) (*domain.Applicant, error)
	ApplyVerdict(ctx context.Context, params VerdictParams) (*domain.TransitionResult, error)
	ListAuditEntries(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error)

	// Profile update request methods
	CreateProfileUpdateRequest(ctx context.Context, userID string, fields domain.UserProfile) (*domain.ProfileUpdateRequest, error)
	GetProfileUpdateRequest(ctx context.Context, requestID uuid.UUID) (*domain.ProfileUpdateRequest, error)
	ListProfileUpdateRequests(ctx context.Context, userID string, status *domain.ProfileUpdateStatus) ([]domain.ProfileUpdateRequest, error)
	ResolveProfileUpdateRequest(ctx context.Context, params ResolveProfileUpdateParams) (*domain.ProfileUpdateRequest, error)
	CancelProfileUpdateRequest(ctx context.Context, requestID uuid.UUID, userID string) (*domain.ProfileUpdateRequest, error)

	// Outbox methods
	EnqueueEvent(ctx context.Context, exchange, routingKey string, payload interface{}) error
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// ManualDecisionParams carries a reviewer's decision on an applicant.
type ManualDecisionParams struct {
	UserID    string
	Status    domain.KYCStatus
	Reason    *string
	DecidedBy string
}

// ManualOverrideParams carries an override flag change.
type ManualOverrideParams struct {
	UserID    string
	Enabled   bool
	Reason    *string
	UpdatedBy string
}

// VerdictParams carries a third-party verdict. TargetStatus is nil when the verdict
// should only be recorded.
type VerdictParams struct {
	ApplicantRef string
	ReviewStatus *string
	ReviewResult *string
	TargetStatus *domain.KYCStatus
}

// ResolveProfileUpdateParams carries an admin decision on a profile update request.
type ResolveProfileUpdateParams struct {
	RequestID    uuid.UUID
	UserID       string
	Status       domain.ProfileUpdateStatus
	ReviewedBy   string
	AdminComment *string
}

// OutboxMessage is a claimed event_outbox row.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}
