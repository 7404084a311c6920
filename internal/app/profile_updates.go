package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/kyc-service/internal/domain"
	"github.com/transfa/kyc-service/internal/store"
)

func parseRequestID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, newError(ErrValidation, "invalid profile update request id")
	}
	return id, nil
}

func translateProfileRequestError(err error) error {
	switch {
	case errors.Is(err, store.ErrProfileRequestNotFound):
		return newError(ErrNotFound, "profile update request not found")
	case errors.Is(err, store.ErrRequestNotPending):
		return newError(ErrConflict, "profile update request is no longer pending")
	case errors.Is(err, store.ErrPendingRequestExists):
		return newError(ErrConflict, "a profile update request is already pending")
	case errors.Is(err, store.ErrApplicantNotFound):
		return newError(ErrNotFound, "user not found")
	default:
		return err
	}
}

// SubmitProfileUpdate queues the fields that differ from the stored profile for admin
// review. A user may have only one pending request.
func (s *Service) SubmitProfileUpdate(ctx context.Context, actor domain.Actor, userID string, fields domain.UserProfile) (*domain.ProfileUpdateRequest, error) {
	userID = strings.TrimSpace(userID)
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if actor.UserID != userID {
		return nil, newError(ErrAuthorizationDenied, "profile updates can only be submitted for your own account")
	}

	proposed, err := fields.Normalize()
	if err != nil {
		return nil, newError(ErrValidation, "%s", err.Error())
	}
	if proposed.IsEmpty() {
		return nil, newError(ErrValidation, "at least one profile field is required")
	}

	pendingStatus := domain.ProfileUpdatePending
	pending, err := s.repo.ListProfileUpdateRequests(ctx, userID, &pendingStatus)
	if err != nil {
		return nil, fmt.Errorf("failed to check pending profile requests: %w", err)
	}
	if len(pending) > 0 {
		return nil, newError(ErrConflict, "a profile update request is already pending")
	}

	current, err := s.repo.GetApplicant(ctx, userID)
	if err != nil {
		return nil, translateApplicantError(err, userID)
	}
	changes := proposed.ChangesFrom(current.Profile)
	if changes.IsEmpty() {
		return nil, newError(ErrValidation, "no field differs from the current profile")
	}

	request, err := s.repo.CreateProfileUpdateRequest(ctx, userID, changes)
	if err != nil {
		return nil, translateProfileRequestError(err)
	}

	profileRequestsTotal.WithLabelValues(string(domain.ProfileUpdatePending)).Inc()
	log.Printf("level=info component=profile msg=\"profile update submitted\" user_id=%s request_id=%s", userID, request.ID)
	return request, nil
}

// ReviewProfileUpdate approves or rejects a pending request. Approval copies every
// proposed field onto the user in the same statement that resolves the request.
func (s *Service) ReviewProfileUpdate(ctx context.Context, actor domain.Actor, userID string, rawRequestID string, rawAction string, comment *string) (*domain.ProfileUpdateRequest, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	requestID, err := parseRequestID(rawRequestID)
	if err != nil {
		return nil, err
	}
	action, err := domain.ParseReviewAction(rawAction)
	if err != nil {
		return nil, newError(ErrValidation, "action must be one of approve, reject")
	}
	comment, err = normalizeReason(comment)
	if err != nil {
		return nil, err
	}

	request, err := s.repo.ResolveProfileUpdateRequest(ctx, store.ResolveProfileUpdateParams{
		RequestID:    requestID,
		UserID:       userID,
		Status:       action.ResultStatus(),
		ReviewedBy:   actor.UserID,
		AdminComment: comment,
	})
	if err != nil {
		return nil, translateProfileRequestError(err)
	}

	profileRequestsTotal.WithLabelValues(string(request.Status)).Inc()
	log.Printf("level=info component=profile msg=\"profile update reviewed\" user_id=%s request_id=%s status=%s reviewed_by=%s", userID, request.ID, request.Status, actor.UserID)
	s.notifier.Notify(ctx, Notification{
		RoutingKey: domain.RoutingKeyProfileUpdateReviewed,
		Payload: domain.ProfileUpdateReviewedEvent{
			RequestID:    request.ID,
			UserID:       request.UserID,
			Status:       request.Status,
			ReviewedBy:   actor.UserID,
			AdminComment: comment,
			OccurredAt:   s.now().UTC(),
		},
	})
	return request, nil
}

// CancelProfileUpdate cancels the caller's own pending request.
func (s *Service) CancelProfileUpdate(ctx context.Context, actor domain.Actor, rawRequestID string) (*domain.ProfileUpdateRequest, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	requestID, err := parseRequestID(rawRequestID)
	if err != nil {
		return nil, err
	}

	request, err := s.repo.CancelProfileUpdateRequest(ctx, requestID, actor.UserID)
	if err != nil {
		return nil, translateProfileRequestError(err)
	}

	profileRequestsTotal.WithLabelValues(string(domain.ProfileUpdateCancelled)).Inc()
	log.Printf("level=info component=profile msg=\"profile update cancelled\" user_id=%s request_id=%s", actor.UserID, request.ID)
	return request, nil
}

// ListProfileUpdates returns a user's requests, newest first. Reviewers may list any user.
func (s *Service) ListProfileUpdates(ctx context.Context, actor domain.Actor, userID string, rawStatus string) ([]domain.ProfileUpdateRequest, error) {
	userID = strings.TrimSpace(userID)
	if err := requireSelfOrReviewer(actor, userID); err != nil {
		return nil, err
	}
	userID, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}

	var status *domain.ProfileUpdateStatus
	if strings.TrimSpace(rawStatus) != "" {
		parsed, err := domain.ParseProfileUpdateStatus(rawStatus)
		if err != nil {
			return nil, newError(ErrValidation, "unknown profile update status %q", rawStatus)
		}
		status = &parsed
	}

	requests, err := s.repo.ListProfileUpdateRequests(ctx, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list profile update requests: %w", err)
	}
	if requests == nil {
		requests = []domain.ProfileUpdateRequest{}
	}
	return requests, nil
}
