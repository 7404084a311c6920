/**
 * @description
 * Audit log entries and the event payloads this service publishes to RabbitMQ.
 *
 * @notes
 * - Routing keys are published on the configured KYC events exchange (default "kyc_events").
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction names the kind of change recorded in kyc_audit_log.
type AuditAction string

const (
	AuditVerificationStarted AuditAction = "verification_started"
	AuditManualDecision      AuditAction = "manual_decision"
	AuditOverrideChanged     AuditAction = "override_changed"
	AuditVerdictReceived     AuditAction = "verdict_received"
)

// AuditEntry is one append-only row of applicant history.
type AuditEntry struct {
	ID              int64       `json:"id"`
	UserID          string      `json:"user_id"`
	Action          AuditAction `json:"action"`
	ActorID         *string     `json:"actor_id,omitempty"`
	PreviousStatus  *KYCStatus  `json:"previous_status,omitempty"`
	NewStatus       *KYCStatus  `json:"new_status,omitempty"`
	OverrideEnabled *bool       `json:"override_enabled,omitempty"`
	Reason          *string     `json:"reason,omitempty"`
	ReviewStatus    *string     `json:"review_status,omitempty"`
	ReviewResult    *string     `json:"review_result,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

const (
	RoutingKeyVerdictReceived       = "kyc.verdict.received"
	RoutingKeyKYCStatusChanged      = "kyc.status.changed"
	RoutingKeyOverrideChanged       = "kyc.override.changed"
	RoutingKeyProfileUpdateReviewed = "profile.update.reviewed"
)

// KYCStatusChangedEvent is published after an applicant's status moves.
type KYCStatusChangedEvent struct {
	UserID         string    `json:"user_id"`
	PreviousStatus KYCStatus `json:"previous_status"`
	NewStatus      KYCStatus `json:"new_status"`
	Source         string    `json:"source"`
	ActorID        *string   `json:"actor_id,omitempty"`
	Reason         *string   `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// OverrideChangedEvent is published after the manual override flag is set.
type OverrideChangedEvent struct {
	UserID     string    `json:"user_id"`
	Enabled    bool      `json:"enabled"`
	ActorID    string    `json:"actor_id"`
	Reason     *string   `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProfileUpdateReviewedEvent is published after an admin resolves a request.
type ProfileUpdateReviewedEvent struct {
	RequestID    uuid.UUID           `json:"request_id"`
	UserID       string              `json:"user_id"`
	Status       ProfileUpdateStatus `json:"status"`
	ReviewedBy   string              `json:"reviewed_by"`
	AdminComment *string             `json:"admin_comment,omitempty"`
	OccurredAt   time.Time           `json:"occurred_at"`
}
