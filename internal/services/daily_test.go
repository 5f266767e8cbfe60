package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"nearish-backend/internal/models"
)

// stubDailyStore keeps all questions and per-day answers in memory
type stubDailyStore struct {
	mu      sync.Mutex
	pool    []*models.Question
	answers map[string]*models.DailyAnswer
}

func newStubDailyStore(poolSize int) *stubDailyStore {
	s := &stubDailyStore{answers: make(map[string]*models.DailyAnswer)}
	for i := 0; i < poolSize; i++ {
		s.pool = append(s.pool, &models.Question{
			ID:   fmt.Sprintf("q-%03d", i),
			Text: fmt.Sprintf("Daily question %d?", i),
		})
	}
	return s
}

func dailyKey(questionID, identityID, day string) string {
	return questionID + "|" + identityID + "|" + day
}

func (s *stubDailyStore) ListAllQuestions(context.Context) ([]*models.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Question(nil), s.pool...), nil
}

func (s *stubDailyStore) UpsertDailyAnswer(_ context.Context, answer *models.DailyAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := dailyKey(answer.QuestionID, answer.IdentityID, answer.Day)
	if prev, ok := s.answers[key]; ok {
		prev.Text = answer.Text
		prev.UpdatedAt = answer.UpdatedAt
		return nil
	}
	s.answers[key] = answer
	return nil
}

func (s *stubDailyStore) GetDailyAnswer(_ context.Context, questionID, identityID, day string) (*models.DailyAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.answers[dailyKey(questionID, identityID, day)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return a, nil
}

func TestSelectDailyDeterministic(t *testing.T) {
	pool := []*models.Question{
		{ID: "c", Text: "C?"},
		{ID: "a", Text: "A?"},
		{ID: "b", Text: "B?"},
	}
	date := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	first := SelectDaily(pool, date)
	if first == nil {
		t.Fatal("SelectDaily returned nil for a non-empty pool")
	}

	// independent of input order and of time of day
	shuffled := []*models.Question{pool[2], pool[0], pool[1]}
	later := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	if got := SelectDaily(shuffled, later); got.ID != first.ID {
		t.Fatalf("selection changed with pool order: %s vs %s", got.ID, first.ID)
	}

	// day 73 of 2026, pool of 3: index 73 % 3 = 1 into [a b c]
	if first.ID != "b" {
		t.Fatalf("selected %s, want b", first.ID)
	}

	next := SelectDaily(pool, date.AddDate(0, 0, 1))
	if next.ID != "c" {
		t.Fatalf("next day selected %s, want c", next.ID)
	}
}

func TestSelectDailyEmptyPool(t *testing.T) {
	if q := SelectDaily(nil, time.Now()); q != nil {
		t.Fatalf("empty pool selected %v, want nil", q)
	}
}

func TestDailyAnswerRevealGating(t *testing.T) {
	store := newStubDailyStore(5)
	bus := NewEventBus()
	svc := NewDailyService(store, bus)

	me := pairedIdentity("a", "b")
	partner := pairedIdentity("b", "a")
	date := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	partnerSub := bus.Subscribe("b")
	defer bus.Unsubscribe(partnerSub)

	view, err := svc.Answer(context.Background(), me, date, "coffee together")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !view.HasAnswered || view.MyAnswer == nil || *view.MyAnswer != "coffee together" {
		t.Fatal("own answer missing from returned view")
	}
	if view.PartnerAnswer != nil {
		t.Fatal("partner answer visible before partner answered")
	}

	ev := drainEvent(t, partnerSub)
	if ev.Type != "daily_update" {
		t.Fatalf("event type = %q, want daily_update", ev.Type)
	}

	// partner sees the answered flag but no text
	pv, err := svc.View(context.Background(), partner, date)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if !pv.PartnerHasAnswered || pv.PartnerAnswer != nil {
		t.Fatal("partner view leaked or dropped answer state")
	}

	if _, err := svc.Answer(context.Background(), partner, date, "a long walk"); err != nil {
		t.Fatalf("Answer partner: %v", err)
	}

	mv, err := svc.View(context.Background(), me, date)
	if err != nil {
		t.Fatalf("View after reveal: %v", err)
	}
	if mv.PartnerAnswer == nil || *mv.PartnerAnswer != "a long walk" {
		t.Fatal("revealed partner answer missing")
	}
}

func TestDailyAnswerSolo(t *testing.T) {
	store := newStubDailyStore(5)
	svc := NewDailyService(store, NewEventBus())

	solo := &models.Identity{ID: "a"}
	view, err := svc.Answer(context.Background(), solo, time.Now(), "just me")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !view.HasAnswered || view.PartnerHasAnswered {
		t.Fatal("solo answer state wrong")
	}
}
