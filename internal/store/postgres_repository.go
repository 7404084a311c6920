/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface for
 * applicant records. Every state transition is issued as a single statement: the
 * users row update and its kyc_audit_log row are written together through a
 * data-modifying CTE, so concurrent writers never observe a half-applied decision.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/kyc-service/internal/domain"
)

var (
	ErrApplicantNotFound      = errors.New("applicant not found")
	ErrProfileRequestNotFound = errors.New("profile update request not found")
	ErrPendingRequestExists   = errors.New("a pending profile update request already exists")
	ErrRequestNotPending      = errors.New("profile update request is not pending")
)

const pendingRequestConstraint = "profile_update_requests_one_pending_per_user"

var applicantColumnNames = []string{
	"id", "kyc_status", "sumsub_applicant_id", "sumsub_review_status", "sumsub_review_result",
	"manual_override_enabled", "manual_override_reason", "manual_override_updated_at", "manual_override_updated_by",
	"kyc_submitted_at", "kyc_decided_at", "kyc_decided_by", "kyc_decision_reason",
	"full_name", "email", "phone_number", "address", "country", "gender", "updated_at",
}

// applicantColumns renders the applicant column list, optionally qualified by a table alias.
func applicantColumns(alias string) string {
	if alias == "" {
		return strings.Join(applicantColumnNames, ", ")
	}
	qualified := make([]string, len(applicantColumnNames))
	for i, name := range applicantColumnNames {
		qualified[i] = alias + "." + name
	}
	return strings.Join(qualified, ", ")
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanApplicant(row pgx.Row, extra ...any) (*domain.Applicant, error) {
	var (
		a         domain.Applicant
		rawStatus string
	)
	dest := []any{
		&a.UserID, &rawStatus, &a.SumsubApplicantID, &a.SumsubReviewStatus, &a.SumsubReviewResult,
		&a.ManualOverrideEnabled, &a.ManualOverrideReason, &a.OverrideUpdatedAt, &a.OverrideUpdatedBy,
		&a.SubmittedAt, &a.DecidedAt, &a.DecidedBy, &a.DecisionReason,
		&a.Profile.FullName, &a.Profile.Email, &a.Profile.Phone, &a.Profile.Address, &a.Profile.Country, &a.Profile.Gender,
		&a.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	status, err := domain.ParseKYCStatus(rawStatus)
	if err != nil {
		return nil, fmt.Errorf("applicant %s: %w", a.UserID, err)
	}
	a.KYCStatus = status
	return &a, nil
}

func scanTransition(row pgx.Row) (*domain.TransitionResult, error) {
	var previous string
	applicant, err := scanApplicant(row, &previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicantNotFound
		}
		return nil, err
	}
	prevStatus, err := domain.ParseKYCStatus(previous)
	if err != nil {
		return nil, err
	}
	return &domain.TransitionResult{Applicant: *applicant, PreviousStatus: prevStatus}, nil
}

// GetApplicant retrieves the KYC view of a single user.
func (r *PostgresRepository) GetApplicant(ctx context.Context, userID string) (*domain.Applicant, error) {
	query := `SELECT ` + applicantColumns("") + ` FROM users WHERE id = $1`
	applicant, err := scanApplicant(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicantNotFound
		}
		return nil, err
	}
	return applicant, nil
}

// ListApplicants returns the review queue ordered by most recent submission.
func (r *PostgresRepository) ListApplicants(ctx context.Context, filter domain.ApplicantFilter) ([]domain.Applicant, error) {
	filter = filter.Normalize()
	query, args := buildListApplicantsQuery(filter)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applicants := make([]domain.Applicant, 0, filter.Limit)
	for rows.Next() {
		applicant, err := scanApplicant(rows)
		if err != nil {
			return nil, err
		}
		applicants = append(applicants, *applicant)
	}
	return applicants, rows.Err()
}

func buildListApplicantsQuery(filter domain.ApplicantFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("kyc_status = $%d", len(args)))
	}
	if filter.OverrideOnly {
		conditions = append(conditions, "manual_override_enabled = TRUE")
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(applicantColumns(""))
	b.WriteString(" FROM users")
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&b, " ORDER BY kyc_submitted_at DESC NULLS LAST, updated_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return b.String(), args
}

// stalePendingQuery leaves out overridden applicants that already hold a completed review.
var stalePendingQuery = `
	SELECT ` + applicantColumns("") + `
	FROM users
	WHERE kyc_status = 'pending'
	  AND sumsub_applicant_id IS NOT NULL
	  AND kyc_submitted_at < $1
	  AND NOT (manual_override_enabled AND sumsub_review_status IS NOT DISTINCT FROM 'completed')
	ORDER BY kyc_submitted_at
	LIMIT $2
`

// ListStalePendingApplicants returns pending applicants with a SumSub reference that were
// submitted before the cutoff, oldest first.
func (r *PostgresRepository) ListStalePendingApplicants(ctx context.Context, submittedBefore time.Time, limit int) ([]domain.Applicant, error) {
	if limit <= 0 {
		limit = domain.DefaultApplicantPageSize
	}
	rows, err := r.db.Query(ctx, stalePendingQuery, submittedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var applicants []domain.Applicant
	for rows.Next() {
		applicant, err := scanApplicant(rows)
		if err != nil {
			return nil, err
		}
		applicants = append(applicants, *applicant)
	}
	return applicants, rows.Err()
}

var beginVerificationQuery = `
	WITH prev AS (
		SELECT id, kyc_status FROM users WHERE id = $1 FOR UPDATE
	), updated AS (
		UPDATE users AS u
		SET kyc_status = 'pending',
			sumsub_applicant_id = COALESCE(u.sumsub_applicant_id, $2),
			sumsub_review_status = CASE WHEN prev.kyc_status = 'pending' THEN u.sumsub_review_status END,
			sumsub_review_result = CASE WHEN prev.kyc_status = 'pending' THEN u.sumsub_review_result END,
			kyc_submitted_at = CASE WHEN prev.kyc_status = 'pending' THEN u.kyc_submitted_at ELSE NOW() END,
			updated_at = NOW()
		FROM prev
		WHERE u.id = prev.id
		RETURNING ` + applicantColumns("u") + `, prev.kyc_status AS previous_status
	), audit AS (
		INSERT INTO kyc_audit_log (user_id, action, actor_id, previous_status, new_status, override_enabled)
		SELECT id, 'verification_started', id, previous_status, kyc_status, manual_override_enabled
		FROM updated
		WHERE previous_status <> 'pending'
	)
	SELECT ` + applicantColumns("") + `, previous_status FROM updated
`

// BeginVerification moves an applicant to pending and stores the SumSub reference when
// none is set yet. A pending applicant only gains a missing reference.
func (r *PostgresRepository) BeginVerification(ctx context.Context, userID string, sumsubApplicantID *string) (*domain.TransitionResult, error) {
	return scanTransition(r.db.QueryRow(ctx, beginVerificationQuery, userID, sumsubApplicantID))
}

var manualDecisionQuery = `
	WITH prev AS (
		SELECT id, kyc_status FROM users WHERE id = $1 FOR UPDATE
	), updated AS (
		UPDATE users AS u
		SET kyc_status = $2,
			kyc_decision_reason = $3,
			kyc_decided_by = $4,
			kyc_decided_at = NOW(),
			updated_at = NOW()
		FROM prev
		WHERE u.id = prev.id
		RETURNING ` + applicantColumns("u") + `, prev.kyc_status AS previous_status
	), audit AS (
		INSERT INTO kyc_audit_log (user_id, action, actor_id, previous_status, new_status, override_enabled, reason)
		SELECT id, 'manual_decision', $4, previous_status, kyc_status, manual_override_enabled, $3
		FROM updated
	)
	SELECT ` + applicantColumns("") + `, previous_status FROM updated
`

// ApplyManualDecision sets the status chosen by a reviewer and records the decision.
func (r *PostgresRepository) ApplyManualDecision(ctx context.Context, params ManualDecisionParams) (*domain.TransitionResult, error) {
	return scanTransition(r.db.QueryRow(ctx, manualDecisionQuery, params.UserID, string(params.Status), params.Reason, params.DecidedBy))
}

var manualOverrideQuery = `
	WITH updated AS (
		UPDATE users
		SET manual_override_enabled = $2,
			manual_override_reason = $3,
			manual_override_updated_by = $4,
			manual_override_updated_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + applicantColumns("") + `
	), audit AS (
		INSERT INTO kyc_audit_log (user_id, action, actor_id, previous_status, new_status, override_enabled, reason)
		SELECT id, 'override_changed', $4, kyc_status, kyc_status, manual_override_enabled, $3
		FROM updated
	)
	SELECT ` + applicantColumns("") + ` FROM updated
`

// SetManualOverride flips the override flag and overwrites its reason.
func (r *PostgresRepository) SetManualOverride(ctx context.Context, params ManualOverrideParams) (*domain.Applicant, error) {
	applicant, err := scanApplicant(r.db.QueryRow(ctx, manualOverrideQuery, params.UserID, params.Enabled, params.Reason, params.UpdatedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApplicantNotFound
		}
		return nil, err
	}
	return applicant, nil
}

// applyVerdictQuery keeps kyc_status while the manual override is on. The audit row and
// the updated_at bump happen only when the review fields or kyc_status actually change,
// so a redelivered verdict is a no-op.
var applyVerdictQuery = `
	WITH prev AS (
		SELECT id, kyc_status, sumsub_review_status, sumsub_review_result
		FROM users WHERE sumsub_applicant_id = $1 FOR UPDATE
	), resolved AS (
		SELECT u.id,
			CASE
				WHEN u.manual_override_enabled OR $4::text IS NULL THEN u.kyc_status
				ELSE $4::text
			END AS kyc_status
		FROM users AS u JOIN prev ON prev.id = u.id
	), updated AS (
		UPDATE users AS u
		SET sumsub_review_status = $2::text,
			sumsub_review_result = $3::text,
			kyc_status = resolved.kyc_status,
			updated_at = CASE
				WHEN prev.sumsub_review_status IS DISTINCT FROM $2::text
					OR prev.sumsub_review_result IS DISTINCT FROM $3::text
					OR prev.kyc_status <> resolved.kyc_status
				THEN NOW()
				ELSE u.updated_at
			END
		FROM prev JOIN resolved ON resolved.id = prev.id
		WHERE u.id = prev.id
		RETURNING ` + applicantColumns("u") + `, prev.kyc_status AS previous_status,
			(prev.sumsub_review_status IS DISTINCT FROM u.sumsub_review_status
				OR prev.sumsub_review_result IS DISTINCT FROM u.sumsub_review_result
				OR prev.kyc_status <> u.kyc_status) AS changed
	), audit AS (
		INSERT INTO kyc_audit_log (user_id, action, previous_status, new_status, override_enabled, review_status, review_result)
		SELECT id, 'verdict_received', previous_status, kyc_status, manual_override_enabled, sumsub_review_status, sumsub_review_result
		FROM updated
		WHERE changed
	)
	SELECT ` + applicantColumns("") + `, previous_status FROM updated
`

// ApplyVerdict stores the raw verdict for the applicant owning the SumSub reference and,
// unless the manual override is enabled, moves kyc_status to the verdict's target.
func (r *PostgresRepository) ApplyVerdict(ctx context.Context, params VerdictParams) (*domain.TransitionResult, error) {
	var target *string
	if params.TargetStatus != nil {
		value := string(*params.TargetStatus)
		target = &value
	}

	return scanTransition(r.db.QueryRow(ctx, applyVerdictQuery, params.ApplicantRef, params.ReviewStatus, params.ReviewResult, target))
}

// ListAuditEntries returns the newest audit rows for a user.
func (r *PostgresRepository) ListAuditEntries(ctx context.Context, userID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > domain.MaxApplicantPageSize {
		limit = domain.MaxApplicantPageSize
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, action, actor_id, previous_status, new_status, override_enabled,
			reason, review_status, review_result, created_at
		FROM kyc_audit_log
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			entry            domain.AuditEntry
			action           string
			previous, status *string
		)
		if err := rows.Scan(
			&entry.ID, &entry.UserID, &action, &entry.ActorID, &previous, &status, &entry.OverrideEnabled,
			&entry.Reason, &entry.ReviewStatus, &entry.ReviewResult, &entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entry.Action = domain.AuditAction(action)
		entry.PreviousStatus = optionalStatus(previous)
		entry.NewStatus = optionalStatus(status)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func optionalStatus(raw *string) *domain.KYCStatus {
	if raw == nil {
		return nil
	}
	status, err := domain.ParseKYCStatus(*raw)
	if err != nil {
		return nil
	}
	return &status
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
