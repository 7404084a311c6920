package app

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/transfa/kyc-service/internal/domain"
)

const verdictHandlerTimeout = 15 * time.Second

// VerdictApplier applies a third-party verdict to an applicant.
type VerdictApplier interface {
	ApplyVerdict(ctx context.Context, verdict domain.VerdictInput) (domain.VerdictOutcome, error)
}

// VerdictConsumer handles kyc.verdict.received messages from RabbitMQ.
type VerdictConsumer struct {
	applier VerdictApplier
}

func NewVerdictConsumer(applier VerdictApplier) *VerdictConsumer {
	return &VerdictConsumer{applier: applier}
}

// HandleMessage returns true to ack. Payloads that cannot be decoded are acked and
// dropped; storage failures return false so the broker redelivers.
func (c *VerdictConsumer) HandleMessage(body []byte) bool {
	var verdict domain.VerdictInput
	if err := json.Unmarshal(body, &verdict); err != nil {
		log.Printf("level=error component=verdict_consumer msg=\"malformed verdict payload dropped\" err=%v", err)
		return true
	}
	if verdict.Source == "" {
		verdict.Source = "webhook"
	}

	ctx, cancel := context.WithTimeout(context.Background(), verdictHandlerTimeout)
	defer cancel()

	if _, err := c.applier.ApplyVerdict(ctx, verdict); err != nil {
		log.Printf("level=error component=verdict_consumer msg=\"failed to apply verdict\" applicant_id=%s err=%v", verdict.ApplicantRef, err)
		return false
	}
	return true
}
