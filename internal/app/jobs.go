/**
 * @description
 * Scheduled job implementations for the kyc-service.
 */
package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/transfa/kyc-service/internal/config"
	"github.com/transfa/kyc-service/internal/domain"
	"github.com/transfa/kyc-service/internal/store"
	"github.com/transfa/kyc-service/pkg/sumsubclient"
)

const verdictPollTimeout = 2 * time.Minute

// ReviewStatusClient reads an applicant's review status from SumSub.
type ReviewStatusClient interface {
	GetApplicantStatus(ctx context.Context, applicantID string) (*sumsubclient.ApplicantStatus, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo     store.Repository
	verdicts VerdictApplier
	sumsub   ReviewStatusClient
	logger   *slog.Logger
	config   config.Config
	now      func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo store.Repository, verdicts VerdictApplier, sumsub ReviewStatusClient, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:     repo,
		verdicts: verdicts,
		sumsub:   sumsub,
		logger:   logger,
		config:   cfg,
		now:      time.Now,
	}
}

// PollStaleVerdicts asks SumSub for the status of applicants that have been pending
// longer than the configured staleness and applies any completed verdicts. It covers
// webhooks that never arrived.
func (j *Jobs) PollStaleVerdicts() {
	started := time.Now()
	defer func() { verdictPollDuration.Observe(time.Since(started).Seconds()) }()

	ctx, cancel := context.WithTimeout(context.Background(), verdictPollTimeout)
	defer cancel()

	cutoff := j.now().Add(-time.Duration(j.config.VerdictPollStaleMinutes) * time.Minute)
	applicants, err := j.repo.ListStalePendingApplicants(ctx, cutoff, j.config.VerdictPollBatchSize)
	if err != nil {
		j.logger.Error("failed to list stale pending applicants", "error", err)
		return
	}
	if len(applicants) == 0 {
		j.logger.Debug("no stale pending applicants")
		return
	}

	j.logger.Info("starting verdict poll", "candidates", len(applicants))
	applied := 0
	for _, applicant := range applicants {
		if applicant.SumsubApplicantID == nil {
			continue
		}
		applicantID := *applicant.SumsubApplicantID

		status, err := j.sumsub.GetApplicantStatus(ctx, applicantID)
		if err != nil {
			j.logger.Warn("failed to fetch applicant status", "user_id", applicant.UserID, "applicant_id", applicantID, "error", err)
			continue
		}
		if !strings.EqualFold(status.ReviewStatus, "completed") || status.ReviewResult == nil {
			continue
		}

		verdict := domain.VerdictInput{
			ApplicantRef: applicantID,
			ReviewStatus: status.ReviewStatus,
			ReviewAnswer: domain.ParseReviewAnswer(status.ReviewResult.ReviewAnswer),
			RejectType:   status.ReviewResult.ReviewRejectType,
			Source:       "poll",
		}
		if _, err := j.verdicts.ApplyVerdict(ctx, verdict); err != nil {
			j.logger.Error("failed to apply polled verdict", "user_id", applicant.UserID, "applicant_id", applicantID, "error", err)
			continue
		}
		applied++
	}

	j.logger.Info("verdict poll finished", "candidates", len(applicants), "applied", applied)
}
