package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stellar-payment-gateway/internal/model"
)

func finalizedSubmission() *model.Submission {
	ref := uint32(4321)
	return &model.Submission{
		ID:                 uuid.New(),
		SourceAccount:      "GSOURCE",
		TransactionType:    model.TypePayment,
		IdempotencyToken:   "order-17",
		SubmittedIDs:       []string{"aa", "bb"},
		SubmissionAttempts: 2,
		LifecycleState:     model.StateValidated,
		LedgerReference:    &ref,
		TransactionHash:    "bb",
		NetworkResultCode:  "tx_success",
		Finalized:          true,
		UpdatedAt:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestNewMessage(t *testing.T) {
	sub := finalizedSubmission()

	msg, err := newMessage(sub)
	if err != nil {
		t.Fatalf("newMessage: %v", err)
	}
	if string(msg.Key) != sub.ID.String() {
		t.Fatalf("unexpected key %q", msg.Key)
	}

	var ev Finalized
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if ev.LifecycleState != model.StateValidated || ev.TransactionHash != "bb" || ev.LedgerReference != 4321 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.IdempotencyToken != "order-17" || ev.SubmissionAttempts != 2 {
		t.Fatalf("unexpected event: %+v", ev)
	}

	var state string
	for _, h := range msg.Headers {
		if h.Key == "state" {
			state = string(h.Value)
		}
	}
	if state != "validated" {
		t.Fatalf("unexpected state header %q", state)
	}
}

func TestNewKafkaPublisherRequiresConfig(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, "topic"); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafkaPublisher([]string{"localhost:9092"}, ""); err == nil {
		t.Fatal("expected error without topic")
	}
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher()
	sub := finalizedSubmission()
	sub.LedgerReference = nil

	if err := p.PublishFinalized(context.Background(), sub); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
