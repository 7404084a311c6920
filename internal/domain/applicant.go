/**
 * @description
 * This file defines the applicant-side KYC models for the kyc-service: the closed
 * KYC status type, the per-user applicant record, and the raw verdict fields kept
 * from the third-party verification provider.
 *
 * @notes
 * - Statuses are parsed at the edges (HTTP, webhook, database scan) so the rest of
 *   the service never compares free-form strings.
 */

package domain

import (
	"fmt"
	"strings"
	"time"
)

// KYCStatus is the verification state of an applicant.
type KYCStatus string

const (
	KYCStatusNotStarted KYCStatus = "not_started"
	KYCStatusPending    KYCStatus = "pending"
	KYCStatusApproved   KYCStatus = "approved"
	KYCStatusRejected   KYCStatus = "rejected"
)

// ParseKYCStatus normalizes raw input into a KYCStatus.
func ParseKYCStatus(raw string) (KYCStatus, error) {
	status := KYCStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", fmt.Errorf("unknown kyc status %q", raw)
	}
	return status, nil
}

func (s KYCStatus) Valid() bool {
	switch s {
	case KYCStatusNotStarted, KYCStatusPending, KYCStatusApproved, KYCStatusRejected:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status closes the current verification cycle.
func (s KYCStatus) IsTerminal() bool {
	return s == KYCStatusApproved || s == KYCStatusRejected
}

// IsDecision reports whether a reviewer may set the status through a manual decision.
func (s KYCStatus) IsDecision() bool {
	return s.IsTerminal()
}

// CanBeginVerification reports whether the applicant may move to pending.
// Pending applicants are already in a cycle and are handled as a no-op by callers.
func (s KYCStatus) CanBeginVerification() bool {
	switch s {
	case KYCStatusNotStarted, KYCStatusApproved, KYCStatusRejected:
		return true
	default:
		return false
	}
}

// UserProfile holds the user fields that profile update requests may change.
type UserProfile struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone_number,omitempty"`
	Address  *string `json:"address,omitempty"`
	Country  *string `json:"country,omitempty"`
	Gender   *string `json:"gender,omitempty"`
}

// Applicant is the KYC view of a user record.
type Applicant struct {
	UserID                string      `json:"user_id"`
	KYCStatus             KYCStatus   `json:"kyc_status"`
	SumsubApplicantID     *string     `json:"sumsub_applicant_id,omitempty"`
	SumsubReviewStatus    *string     `json:"sumsub_review_status,omitempty"`
	SumsubReviewResult    *string     `json:"sumsub_review_result,omitempty"`
	ManualOverrideEnabled bool        `json:"manual_override_enabled"`
	ManualOverrideReason  *string     `json:"manual_override_reason,omitempty"`
	OverrideUpdatedAt     *time.Time  `json:"manual_override_updated_at,omitempty"`
	OverrideUpdatedBy     *string     `json:"manual_override_updated_by,omitempty"`
	SubmittedAt           *time.Time  `json:"kyc_submitted_at,omitempty"`
	DecidedAt             *time.Time  `json:"kyc_decided_at,omitempty"`
	DecidedBy             *string     `json:"kyc_decided_by,omitempty"`
	DecisionReason        *string     `json:"kyc_decision_reason,omitempty"`
	Profile               UserProfile `json:"profile"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// ApplicantFilter narrows the review queue listing.
type ApplicantFilter struct {
	Status       *KYCStatus
	OverrideOnly bool
	Limit        int
	Offset       int
}

const (
	DefaultApplicantPageSize = 50
	MaxApplicantPageSize     = 200
)

// Normalize clamps paging values to the supported range.
func (f ApplicantFilter) Normalize() ApplicantFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultApplicantPageSize
	}
	if f.Limit > MaxApplicantPageSize {
		f.Limit = MaxApplicantPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// TransitionResult pairs an applicant row with the status it held before a write.
type TransitionResult struct {
	Applicant      Applicant
	PreviousStatus KYCStatus
}

// StatusChanged reports whether the write moved the applicant to a different status.
func (r TransitionResult) StatusChanged() bool {
	return r.PreviousStatus != r.Applicant.KYCStatus
}
