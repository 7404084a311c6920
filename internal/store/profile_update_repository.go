package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/kyc-service/internal/domain"
)

const profileRequestColumns = `id, user_id, full_name, email, phone_number, address, country, gender,
	status, created_at, reviewed_at, reviewed_by, admin_comment`

func scanProfileRequest(row pgx.Row) (*domain.ProfileUpdateRequest, error) {
	var (
		req       domain.ProfileUpdateRequest
		rawStatus string
	)
	if err := row.Scan(
		&req.ID, &req.UserID,
		&req.Fields.FullName, &req.Fields.Email, &req.Fields.Phone, &req.Fields.Address, &req.Fields.Country, &req.Fields.Gender,
		&rawStatus, &req.CreatedAt, &req.ReviewedAt, &req.ReviewedBy, &req.AdminComment,
	); err != nil {
		return nil, err
	}
	status, err := domain.ParseProfileUpdateStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	req.Status = status
	return &req, nil
}

// CreateProfileUpdateRequest inserts a pending request. The partial unique index on
// (user_id) WHERE status = 'pending' turns a concurrent second submission into
// ErrPendingRequestExists.
func (r *PostgresRepository) CreateProfileUpdateRequest(ctx context.Context, userID string, fields domain.UserProfile) (*domain.ProfileUpdateRequest, error) {
	query := `
		INSERT INTO profile_update_requests (id, user_id, full_name, email, phone_number, address, country, gender, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING ` + profileRequestColumns

	req, err := scanProfileRequest(r.db.QueryRow(ctx, query,
		uuid.New(), userID,
		fields.FullName, fields.Email, fields.Phone, fields.Address, fields.Country, fields.Gender,
	))
	if err != nil {
		if isUniqueViolation(err, pendingRequestConstraint) {
			return nil, ErrPendingRequestExists
		}
		if isForeignKeyViolation(err) {
			return nil, ErrApplicantNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *PostgresRepository) GetProfileUpdateRequest(ctx context.Context, requestID uuid.UUID) (*domain.ProfileUpdateRequest, error) {
	query := `SELECT ` + profileRequestColumns + ` FROM profile_update_requests WHERE id = $1`
	req, err := scanProfileRequest(r.db.QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func (r *PostgresRepository) ListProfileUpdateRequests(ctx context.Context, userID string, status *domain.ProfileUpdateStatus) ([]domain.ProfileUpdateRequest, error) {
	var statusArg *string
	if status != nil {
		value := string(*status)
		statusArg = &value
	}
	query := `
		SELECT ` + profileRequestColumns + `
		FROM profile_update_requests
		WHERE user_id = $1 AND ($2::text IS NULL OR status = $2::text)
		ORDER BY created_at DESC
		LIMIT 100
	`
	rows, err := r.db.Query(ctx, query, userID, statusArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []domain.ProfileUpdateRequest
	for rows.Next() {
		req, err := scanProfileRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// resolveProfileRequestQuery copies only the non-null proposed fields, and only on approval.
var resolveProfileRequestQuery = `
	WITH req AS (
		UPDATE profile_update_requests
		SET status = $3,
			reviewed_at = NOW(),
			reviewed_by = $4,
			admin_comment = $5
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING ` + profileRequestColumns + `
	), applied AS (
		UPDATE users AS u
		SET full_name = COALESCE(req.full_name, u.full_name),
			email = COALESCE(req.email, u.email),
			phone_number = COALESCE(req.phone_number, u.phone_number),
			address = COALESCE(req.address, u.address),
			country = COALESCE(req.country, u.country),
			gender = COALESCE(req.gender, u.gender),
			updated_at = NOW()
		FROM req
		WHERE u.id = req.user_id AND req.status = 'approved'
		RETURNING u.id
	)
	SELECT ` + profileRequestColumns + ` FROM req
`

// ResolveProfileUpdateRequest marks a pending request approved or rejected. On approval the
// same statement copies every non-null proposed field onto the user row.
func (r *PostgresRepository) ResolveProfileUpdateRequest(ctx context.Context, params ResolveProfileUpdateParams) (*domain.ProfileUpdateRequest, error) {
	req, err := scanProfileRequest(r.db.QueryRow(ctx, resolveProfileRequestQuery,
		params.RequestID, params.UserID, string(params.Status), params.ReviewedBy, params.AdminComment,
	))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return nil, r.explainUnresolved(ctx, params.RequestID, params.UserID)
}

// CancelProfileUpdateRequest cancels the caller's own pending request.
func (r *PostgresRepository) CancelProfileUpdateRequest(ctx context.Context, requestID uuid.UUID, userID string) (*domain.ProfileUpdateRequest, error) {
	query := `
		UPDATE profile_update_requests
		SET status = 'cancelled'
		WHERE id = $1 AND user_id = $2 AND status = 'pending'
		RETURNING ` + profileRequestColumns

	req, err := scanProfileRequest(r.db.QueryRow(ctx, query, requestID, userID))
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return nil, r.explainUnresolved(ctx, requestID, userID)
}

// explainUnresolved tells apart a missing request from one that is no longer pending
// after a conditional update matched no rows.
func (r *PostgresRepository) explainUnresolved(ctx context.Context, requestID uuid.UUID, userID string) error {
	existing, err := r.GetProfileUpdateRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if existing.UserID != userID {
		return ErrProfileRequestNotFound
	}
	return ErrRequestNotPending
}
