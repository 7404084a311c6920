/**
 * @description
 * HTTP handler for SumSub applicant webhooks. It authenticates the payload digest,
 * drops duplicate deliveries and hands the verdict to the rest of the service.
 *
 * Key features:
 * - Security: Validates X-Payload-Digest with the algorithm named in X-Payload-Digest-Alg.
 * - Deduplication: Delivery keys are recorded through the DuplicateGuard (Redis backed).
 * - Event Publishing: Verdicts are published as kyc.verdict.received; when no broker is
 *   connected, or publishing fails, the verdict is applied in-process instead.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha1, crypto/sha256, crypto/sha512: digest validation.
 * - pkg/rabbitmq: verdict publishing.
 */

package api

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/transfa/kyc-service/internal/app"
	"github.com/transfa/kyc-service/internal/domain"
	"github.com/transfa/kyc-service/pkg/rabbitmq"
)

var handledWebhookTypes = map[string]struct{}{
	"applicantReviewed": {},
	"applicantPending":  {},
	"applicantOnHold":   {},
}

// WebhookHandler processes incoming SumSub webhooks.
type WebhookHandler struct {
	producer rabbitmq.Publisher
	exchange string
	applier  app.VerdictApplier
	guard    app.DuplicateGuard
	secret   string
}

// NewWebhookHandler builds the webhook endpoint. producer may be nil, in which case
// verdicts are always applied in-process.
func NewWebhookHandler(producer rabbitmq.Publisher, exchange string, applier app.VerdictApplier, guard app.DuplicateGuard, secret string) *WebhookHandler {
	if strings.TrimSpace(exchange) == "" {
		exchange = "kyc_events"
	}
	return &WebhookHandler{
		producer: producer,
		exchange: exchange,
		applier:  applier,
		guard:    guard,
		secret:   strings.TrimSpace(secret),
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	// 1. Read the body once; the digest is computed over the raw bytes.
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"cannot read body\" err=%v", err)
		writeError(w, http.StatusBadRequest, "Cannot read request body")
		return
	}

	// 2. Validate the digest.
	if h.secret == "" {
		log.Printf("level=error component=webhook msg=\"webhook secret not configured\"")
		writeError(w, http.StatusInternalServerError, "Webhook secret not configured")
		return
	}
	if !validDigest(h.secret, r.Header.Get("X-Payload-Digest-Alg"), r.Header.Get("X-Payload-Digest"), body) {
		log.Printf("level=warn component=webhook msg=\"invalid payload digest\" remote=%s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	// 3. Decode.
	var event domain.SumsubWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=webhook msg=\"invalid json payload\" err=%v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if _, ok := handledWebhookTypes[event.Type]; !ok || strings.TrimSpace(event.ApplicantID) == "" {
		log.Printf("level=info component=webhook msg=\"webhook ignored\" type=%s applicant_id=%s", event.Type, event.ApplicantID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	// 4. Drop duplicates.
	key := event.DedupeKey()
	if h.guard != nil && h.guard.SeenBefore(r.Context(), key) {
		log.Printf("level=info component=webhook msg=\"duplicate webhook ignored\" type=%s applicant_id=%s", event.Type, event.ApplicantID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	// 5. Hand off.
	verdict := event.ToVerdict()
	if err := h.dispatch(r, verdict); err != nil {
		if h.guard != nil {
			h.guard.Forget(r.Context(), key)
		}
		log.Printf("level=error component=webhook msg=\"verdict processing failed\" applicant_id=%s err=%v", verdict.ApplicantRef, err)
		writeError(w, http.StatusInternalServerError, "Internal server error during event processing")
		return
	}

	log.Printf("level=info component=webhook msg=\"webhook processed\" type=%s applicant_id=%s review_status=%s duration=%s", event.Type, verdict.ApplicantRef, verdict.ReviewStatus, time.Since(startTime))
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (h *WebhookHandler) dispatch(r *http.Request, verdict domain.VerdictInput) error {
	if h.producer != nil {
		err := h.producer.Publish(r.Context(), h.exchange, domain.RoutingKeyVerdictReceived, verdict)
		if err == nil {
			return nil
		}
		log.Printf("level=warn component=webhook msg=\"publish failed; applying in-process\" applicant_id=%s err=%v", verdict.ApplicantRef, err)
	}
	if h.applier == nil {
		return fmt.Errorf("no verdict applier configured")
	}
	_, err := h.applier.ApplyVerdict(r.Context(), verdict)
	return err
}

func validDigest(secret, algorithm, digest string, body []byte) bool {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if digest == "" {
		return false
	}

	var newHash func() hash.Hash
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "HMAC_SHA1_HEX":
		newHash = sha1.New
	case "", "HMAC_SHA256_HEX":
		newHash = sha256.New
	case "HMAC_SHA512_HEX":
		newHash = sha512.New
	default:
		return false
	}

	mac := hmac.New(newHash, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(digest))
}
