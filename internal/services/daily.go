package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"nearish-backend/internal/models"

	"github.com/google/uuid"
)

// DailyStore is the storage the daily question selector needs
type DailyStore interface {
	ListAllQuestions(ctx context.Context) ([]*models.Question, error)
	UpsertDailyAnswer(ctx context.Context, answer *models.DailyAnswer) error
	GetDailyAnswer(ctx context.Context, questionID, identityID, day string) (*models.DailyAnswer, error)
}

// DailyService serves the single shared question of each UTC calendar day
type DailyService struct {
	store DailyStore
	bus   *EventBus
}

// NewDailyService creates a new daily question service
func NewDailyService(store DailyStore, bus *EventBus) *DailyService {
	return &DailyService{store: store, bus: bus}
}

// SelectDaily picks the question for a calendar date from a pool.
// Deterministic: the pool is ordered by id and indexed with dayOfYear mod
// size, so every identity sees the same question on the same UTC date.
func SelectDaily(pool []*models.Question, date time.Time) *models.Question {
	if len(pool) == 0 {
		return nil
	}
	sorted := make([]*models.Question, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idx := date.UTC().YearDay() % len(sorted)
	return sorted[idx]
}

func dayKey(date time.Time) string {
	return date.UTC().Format("2006-01-02")
}

// DailyView is the day's question with answer state for one identity,
// gated by the same mutual-answer rule as game sessions.
type DailyView struct {
	QuestionID         string  `json:"question_id"`
	Text               string  `json:"text"`
	Day                string  `json:"day"`
	MyAnswer           *string `json:"my_answer"`
	HasAnswered        bool    `json:"has_answered"`
	PartnerAnswer      *string `json:"partner_answer"`
	PartnerHasAnswered bool    `json:"partner_has_answered"`
}

func (s *DailyService) questionFor(ctx context.Context, date time.Time) (*models.Question, error) {
	pool, err := s.store.ListAllQuestions(ctx)
	if err != nil {
		return nil, err
	}
	q := SelectDaily(pool, date)
	if q == nil {
		return nil, models.ErrNotFound
	}
	return q, nil
}

func (s *DailyService) answerFor(ctx context.Context, questionID, identityID, day string) (*models.DailyAnswer, error) {
	a, err := s.store.GetDailyAnswer(ctx, questionID, identityID, day)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// View returns the day's question for an identity with gated partner state
func (s *DailyService) View(ctx context.Context, identity *models.Identity, date time.Time) (*DailyView, error) {
	question, err := s.questionFor(ctx, date)
	if err != nil {
		return nil, err
	}
	day := dayKey(date)

	mine, err := s.answerFor(ctx, question.ID, identity.ID, day)
	if err != nil {
		return nil, err
	}

	var partner *models.DailyAnswer
	if identity.PartnerID != nil {
		partner, err = s.answerFor(ctx, question.ID, *identity.PartnerID, day)
		if err != nil {
			return nil, err
		}
	}

	view := &DailyView{
		QuestionID:         question.ID,
		Text:               question.Text,
		Day:                day,
		HasAnswered:        mine != nil,
		PartnerHasAnswered: partner != nil,
	}
	if mine != nil {
		view.MyAnswer = &mine.Text
	}
	if mine != nil && partner != nil {
		view.PartnerAnswer = &partner.Text
	}
	return view, nil
}

// Answer records the identity's answer to today's question and notifies the
// partner, with the text only once both sides have answered.
func (s *DailyService) Answer(ctx context.Context, identity *models.Identity, date time.Time, text string) (*DailyView, error) {
	question, err := s.questionFor(ctx, date)
	if err != nil {
		return nil, err
	}
	day := dayKey(date)

	now := time.Now().UTC()
	answer := &models.DailyAnswer{
		ID:         uuid.New().String(),
		QuestionID: question.ID,
		IdentityID: identity.ID,
		Day:        day,
		Text:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertDailyAnswer(ctx, answer); err != nil {
		return nil, err
	}

	if identity.PartnerID != nil {
		partnerID := *identity.PartnerID
		partnerAnswer, err := s.answerFor(ctx, question.ID, partnerID, day)
		if err != nil {
			return nil, err
		}

		payload := map[string]interface{}{
			"question_id": question.ID,
			"day":         day,
		}
		if partnerAnswer != nil {
			payload["status"] = "reveal"
			payload["partner_answer"] = text
		} else {
			payload["status"] = "answered"
		}
		s.bus.Publish(partnerID, "daily_update", payload)
	}

	return s.View(ctx, identity, date)
}
