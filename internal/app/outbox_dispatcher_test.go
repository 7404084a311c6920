package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/transfa/kyc-service/internal/store"
	"github.com/transfa/kyc-service/pkg/rabbitmq"
)

type publisherStub struct {
	failOn  string
	closed  int
	sent    []string
	payload []json.RawMessage
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if routingKey == p.failOn {
		return errors.New("channel closed")
	}
	p.sent = append(p.sent, exchange+"/"+routingKey)
	if raw, ok := body.(json.RawMessage); ok {
		p.payload = append(p.payload, raw)
	}
	return nil
}

func (p *publisherStub) Close() {
	p.closed++
}

func TestRetryDelaySeconds(t *testing.T) {
	tests := []struct {
		attempt int
		want    int
	}{
		{attempt: 0, want: 1},
		{attempt: 1, want: 2},
		{attempt: 3, want: 8},
		{attempt: 8, want: 256},
		{attempt: 9, want: 256},
		{attempt: 40, want: 256},
	}
	for _, tt := range tests {
		if got := retryDelaySeconds(tt.attempt); got != tt.want {
			t.Fatalf("retryDelaySeconds(%d) = %d, want %d", tt.attempt, got, tt.want)
		}
		if got := retryDelaySeconds(tt.attempt); got > maxRetryDelaySeconds {
			t.Fatalf("retry delay %d exceeds cap", got)
		}
	}
}

func TestOutboxDispatcher_FlushOnce(t *testing.T) {
	repo := newRepoStub()
	repo.outbox = []store.OutboxMessage{
		{ID: 1, Exchange: "kyc_events", RoutingKey: "kyc.status.changed", Payload: []byte(`{"user_id":"u1"}`), Attempts: 1},
		{ID: 2, Exchange: "kyc_events", RoutingKey: "kyc.override.changed", Payload: []byte(`{"user_id":"u2"}`), Attempts: 3},
		{ID: 3, Exchange: "kyc_events", RoutingKey: "profile.update.reviewed", Payload: []byte(`not json`), Attempts: 1},
	}

	publishers := []*publisherStub{{failOn: "kyc.override.changed"}, {}}
	dials := 0
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		p := publishers[dials]
		dials++
		return p, nil
	})

	if err := dispatcher.flushOnce(context.Background()); err != nil {
		t.Fatalf("flushOnce returned error: %v", err)
	}

	if len(repo.published) != 1 || repo.published[0] != 1 {
		t.Fatalf("expected only message 1 published, got %v", repo.published)
	}
	if repo.failed[2] != retryDelaySeconds(3) {
		t.Fatalf("expected message 2 rescheduled after %d seconds, got %d", retryDelaySeconds(3), repo.failed[2])
	}
	if _, ok := repo.failed[3]; !ok {
		t.Fatal("expected malformed message 3 to be rescheduled")
	}
	if publishers[0].closed != 1 {
		t.Fatalf("expected failing producer to be closed, got %d", publishers[0].closed)
	}
	if dials != 2 {
		t.Fatalf("expected producer to be redialled after failure, got %d dials", dials)
	}
	if string(publishers[0].payload[0]) != `{"user_id":"u1"}` {
		t.Fatalf("expected payload to be forwarded verbatim, got %s", publishers[0].payload[0])
	}
}

func TestOutboxDispatcher_DialFailureReschedules(t *testing.T) {
	repo := newRepoStub()
	repo.outbox = []store.OutboxMessage{{ID: 7, Exchange: "kyc_events", RoutingKey: "kyc.status.changed", Payload: []byte(`{}`), Attempts: 2}}

	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		return nil, errors.New("connection refused")
	})
	if err := dispatcher.flushOnce(context.Background()); err != nil {
		t.Fatalf("flushOnce returned error: %v", err)
	}
	if repo.failed[7] != retryDelaySeconds(2) {
		t.Fatalf("expected message to be rescheduled, got %v", repo.failed)
	}
}
