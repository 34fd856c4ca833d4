package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"z-novel-studio/internal/domain/entity"
	"z-novel-studio/internal/domain/service"
	"z-novel-studio/internal/infrastructure/messaging"
)

type memUsageRepo struct {
	events []*entity.LLMUsageEvent
}

func (m *memUsageRepo) Create(_ context.Context, e *entity.LLMUsageEvent) error {
	m.events = append(m.events, e)
	return nil
}

func (m *memUsageRepo) SumTokensBySession(context.Context, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}

type stubPublisher struct {
	err  error
	sent []*messaging.LLMUsageMessage
}

func (p *stubPublisher) PublishLLMUsage(_ context.Context, u *messaging.LLMUsageMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, u)
	return "1-0", nil
}

func TestRecord_PublishesWhenConfigured(t *testing.T) {
	repo := &memUsageRepo{}
	pub := &stubPublisher{}
	r := NewLLMUsageRecorder(repo, pub)

	err := r.Record(context.Background(), service.LLMUsageInput{SessionID: "s", Action: "writeChapter", Model: "m", PromptTokens: 3, CompletionTokens: 4, Status: "success"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(pub.sent) != 1 || len(repo.events) != 0 {
		t.Fatalf("published=%d persisted=%d", len(pub.sent), len(repo.events))
	}
}

func TestRecord_FallsBackToRepository(t *testing.T) {
	repo := &memUsageRepo{}
	r := NewLLMUsageRecorder(repo, &stubPublisher{err: errors.New("redis down")})

	if err := r.Record(context.Background(), service.LLMUsageInput{Action: "performSearch", Model: "m"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(repo.events) != 1 || repo.events[0].Status != entity.LLMUsageStatusSuccess {
		t.Fatalf("events = %+v", repo.events)
	}
}

func TestRecord_RejectsNegativeTokens(t *testing.T) {
	r := NewLLMUsageRecorder(&memUsageRepo{}, nil)
	if err := r.Record(context.Background(), service.LLMUsageInput{PromptTokens: -1}); err == nil {
		t.Fatal("expected error")
	}
}

func TestHandleMessage(t *testing.T) {
	repo := &memUsageRepo{}
	r := NewLLMUsageRecorder(repo, nil)
	msg, err := messaging.NewMessage(messaging.MessageTypeLLMUsage, "s-1", &messaging.LLMUsageMessage{
		SessionID: "s-1", Action: "critiqueDetailedOutline", Model: "m", PromptTokens: 10, Status: "aborted",
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := r.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	got := repo.events[0]
	if got.SessionID != "s-1" || got.TokensPrompt != 10 || got.Status != entity.LLMUsageStatusAborted {
		t.Errorf("event = %+v", got)
	}
}

func TestHandleMessage_UndecodablePayloadIsPermanent(t *testing.T) {
	repo := &memUsageRepo{}
	r := NewLLMUsageRecorder(repo, nil)
	for _, payload := range []string{`{"prompt_tokens":"ten"}`, `{"prompt_tokens":-3}`} {
		msg := &messaging.Message{ID: "m-1", Type: messaging.MessageTypeLLMUsage, Payload: []byte(payload)}
		if err := r.HandleMessage(context.Background(), msg); !messaging.IsPermanent(err) {
			t.Errorf("payload %s: expected permanent error, got %v", payload, err)
		}
	}
	if len(repo.events) != 0 {
		t.Errorf("nothing should be persisted, got %d", len(repo.events))
	}
}
