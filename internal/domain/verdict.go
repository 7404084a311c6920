package domain

import "strings"

// ReviewAnswer is the traffic-light result reported by SumSub.
type ReviewAnswer string

const (
	ReviewAnswerGreen ReviewAnswer = "GREEN"
	ReviewAnswerRed   ReviewAnswer = "RED"
)

// ParseReviewAnswer upper-cases the raw answer; unknown values are kept as-is so they
// can still be stored as the informational review result.
func ParseReviewAnswer(raw string) ReviewAnswer {
	return ReviewAnswer(strings.ToUpper(strings.TrimSpace(raw)))
}

// TargetStatus maps a verdict to the status it drives on the automated path.
// The second return value is false when the verdict is informational only.
func (a ReviewAnswer) TargetStatus() (KYCStatus, bool) {
	switch a {
	case ReviewAnswerGreen:
		return KYCStatusApproved, true
	case ReviewAnswerRed:
		return KYCStatusRejected, true
	default:
		return "", false
	}
}

// VerdictInput is the (applicantRef, reviewStatus, reviewResult) tuple the adapter
// consumes regardless of whether it arrived by webhook or by polling.
type VerdictInput struct {
	ApplicantRef  string       `json:"applicant_id"`
	ReviewStatus  string       `json:"review_status"`
	ReviewAnswer  ReviewAnswer `json:"review_answer,omitempty"`
	RejectType    string       `json:"reject_type,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	Source        string       `json:"source,omitempty"`
}

// VerdictOutcome describes what ApplyVerdict did with a verdict.
type VerdictOutcome struct {
	Result     *TransitionResult
	Ignored    bool
	Suppressed bool
}

// SumsubWebhookEvent models the applicant webhook payload from SumSub.
type SumsubWebhookEvent struct {
	ApplicantID    string              `json:"applicantId"`
	InspectionID   string              `json:"inspectionId"`
	CorrelationID  string              `json:"correlationId"`
	ExternalUserID string              `json:"externalUserId"`
	LevelName      string              `json:"levelName"`
	Type           string              `json:"type"`
	ReviewStatus   string              `json:"reviewStatus"`
	CreatedAtMs    string              `json:"createdAtMs"`
	ReviewResult   *SumsubReviewResult `json:"reviewResult,omitempty"`
	Sandbox        bool                `json:"sandboxMode,omitempty"`
}

// SumsubReviewResult is the nested review result block.
type SumsubReviewResult struct {
	ReviewAnswer      string   `json:"reviewAnswer"`
	RejectLabels      []string `json:"rejectLabels,omitempty"`
	ReviewRejectType  string   `json:"reviewRejectType,omitempty"`
	ModerationComment string   `json:"moderationComment,omitempty"`
}

// ToVerdict converts the webhook payload into a VerdictInput.
func (e SumsubWebhookEvent) ToVerdict() VerdictInput {
	verdict := VerdictInput{
		ApplicantRef:  strings.TrimSpace(e.ApplicantID),
		ReviewStatus:  strings.TrimSpace(e.ReviewStatus),
		CorrelationID: strings.TrimSpace(e.CorrelationID),
		Source:        "webhook",
	}
	if e.ReviewResult != nil {
		verdict.ReviewAnswer = ParseReviewAnswer(e.ReviewResult.ReviewAnswer)
		verdict.RejectType = strings.TrimSpace(e.ReviewResult.ReviewRejectType)
	}
	return verdict
}

// DedupeKey identifies a webhook delivery for duplicate suppression.
func (e SumsubWebhookEvent) DedupeKey() string {
	answer := ""
	if e.ReviewResult != nil {
		answer = e.ReviewResult.ReviewAnswer
	}
	parts := []string{e.ApplicantID, e.Type, e.ReviewStatus, answer, e.CorrelationID}
	return strings.Join(parts, ":")
}
