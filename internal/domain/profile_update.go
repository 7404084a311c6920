package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProfileUpdateStatus is the lifecycle state of a profile update request.
type ProfileUpdateStatus string

const (
	ProfileUpdatePending   ProfileUpdateStatus = "pending"
	ProfileUpdateApproved  ProfileUpdateStatus = "approved"
	ProfileUpdateRejected  ProfileUpdateStatus = "rejected"
	ProfileUpdateCancelled ProfileUpdateStatus = "cancelled"
)

func ParseProfileUpdateStatus(raw string) (ProfileUpdateStatus, error) {
	status := ProfileUpdateStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ProfileUpdatePending, ProfileUpdateApproved, ProfileUpdateRejected, ProfileUpdateCancelled:
		return status, nil
	default:
		return "", fmt.Errorf("unknown profile update status %q", raw)
	}
}

// IsTerminal reports whether the request has been resolved.
func (s ProfileUpdateStatus) IsTerminal() bool {
	return s != ProfileUpdatePending
}

// ReviewAction is the decision an admin takes on a profile update request.
type ReviewAction string

const (
	ReviewActionApprove ReviewAction = "approve"
	ReviewActionReject  ReviewAction = "reject"
)

func ParseReviewAction(raw string) (ReviewAction, error) {
	action := ReviewAction(strings.ToLower(strings.TrimSpace(raw)))
	switch action {
	case ReviewActionApprove, ReviewActionReject:
		return action, nil
	case "approved":
		return ReviewActionApprove, nil
	case "rejected":
		return ReviewActionReject, nil
	default:
		return "", fmt.Errorf("unknown review action %q", raw)
	}
}

// ResultStatus is the request status an action resolves to.
func (a ReviewAction) ResultStatus() ProfileUpdateStatus {
	if a == ReviewActionApprove {
		return ProfileUpdateApproved
	}
	return ProfileUpdateRejected
}

// ProfileUpdateRequest is a user-submitted set of profile changes awaiting review.
type ProfileUpdateRequest struct {
	ID           uuid.UUID           `json:"id"`
	UserID       string              `json:"user_id"`
	Fields       UserProfile         `json:"fields"`
	Status       ProfileUpdateStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	ReviewedAt   *time.Time          `json:"reviewed_at,omitempty"`
	ReviewedBy   *string             `json:"reviewed_by,omitempty"`
	AdminComment *string             `json:"admin_comment,omitempty"`
}

var (
	ErrInvalidEmail   = errors.New("email is not a valid address")
	ErrInvalidGender  = errors.New("gender must be one of male, female, other")
	ErrInvalidCountry = errors.New("country must be a two-letter ISO code")
	ErrFieldTooLong   = errors.New("field exceeds maximum length")
)

const maxProfileFieldLength = 255

var allowedGenders = map[string]struct{}{
	"male":   {},
	"female": {},
	"other":  {},
}

// Normalize trims every field, drops blanks and validates formats.
func (p UserProfile) Normalize() (UserProfile, error) {
	out := UserProfile{
		FullName: trimmedOrNil(p.FullName),
		Email:    trimmedOrNil(p.Email),
		Phone:    trimmedOrNil(p.Phone),
		Address:  trimmedOrNil(p.Address),
		Country:  trimmedOrNil(p.Country),
		Gender:   trimmedOrNil(p.Gender),
	}

	for _, v := range []*string{out.FullName, out.Email, out.Phone, out.Address, out.Country, out.Gender} {
		if v != nil && len(*v) > maxProfileFieldLength {
			return UserProfile{}, ErrFieldTooLong
		}
	}

	if out.Email != nil {
		addr, err := mail.ParseAddress(*out.Email)
		if err != nil || addr.Address != *out.Email {
			return UserProfile{}, ErrInvalidEmail
		}
		lower := strings.ToLower(*out.Email)
		out.Email = &lower
	}
	if out.Gender != nil {
		lower := strings.ToLower(*out.Gender)
		if _, ok := allowedGenders[lower]; !ok {
			return UserProfile{}, ErrInvalidGender
		}
		out.Gender = &lower
	}
	if out.Country != nil {
		upper := strings.ToUpper(*out.Country)
		if len(upper) != 2 || !isASCIILetters(upper) {
			return UserProfile{}, ErrInvalidCountry
		}
		out.Country = &upper
	}
	return out, nil
}

// ChangesFrom keeps only the fields that differ from current.
func (p UserProfile) ChangesFrom(current UserProfile) UserProfile {
	return UserProfile{
		FullName: changed(p.FullName, current.FullName),
		Email:    changedFold(p.Email, current.Email),
		Phone:    changed(p.Phone, current.Phone),
		Address:  changed(p.Address, current.Address),
		Country:  changed(p.Country, current.Country),
		Gender:   changed(p.Gender, current.Gender),
	}
}

// IsEmpty reports whether no field is set.
func (p UserProfile) IsEmpty() bool {
	return p.FullName == nil && p.Email == nil && p.Phone == nil &&
		p.Address == nil && p.Country == nil && p.Gender == nil
}

func changed(proposed, current *string) *string {
	if proposed == nil {
		return nil
	}
	if current != nil && *current == *proposed {
		return nil
	}
	value := *proposed
	return &value
}

// changedFold is changed for case-insensitive fields.
func changedFold(proposed, current *string) *string {
	if proposed != nil && current != nil && strings.EqualFold(*current, *proposed) {
		return nil
	}
	return changed(proposed, current)
}

func trimmedOrNil(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isASCIILetters(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
