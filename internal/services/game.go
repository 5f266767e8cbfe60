package services

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"nearish-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// sessionSize is the number of questions drawn into a fresh session when
// enough unused candidates exist.
const sessionSize = 10

// GameStore is the storage the session engine needs
type GameStore interface {
	ListGames(ctx context.Context) ([]*models.Game, error)
	GetGame(ctx context.Context, id int) (*models.Game, error)
	ListQuestions(ctx context.Context, gameID int) ([]*models.Question, error)
	AddQuestions(ctx context.Context, gameID int, texts []string) (int, error)
	GetActiveSession(ctx context.Context, userAID, userBID string, gameID int) (*models.GameSession, error)
	GetSession(ctx context.Context, id string) (*models.GameSession, error)
	UsedQuestionIDs(ctx context.Context, userAID, userBID string, gameID int) (map[string]bool, error)
	CreateSession(ctx context.Context, session *models.GameSession) error
	CompleteSession(ctx context.Context, sessionID string, at time.Time) error
	UpsertAnswer(ctx context.Context, answer *models.Answer) error
	GetAnswer(ctx context.Context, sessionID, questionID, identityID string) (*models.Answer, error)
	ListSessionAnswers(ctx context.Context, sessionID string) ([]*models.Answer, error)
}

// QuestionGenerator produces new candidate question texts, avoiding the
// given existing texts. It may return fewer than requested, or nothing.
type QuestionGenerator interface {
	Generate(ctx context.Context, systemPrompt string, avoid []string, count int) ([]string, error)
}

// GameService owns the lifecycle of a couple's shared question sessions
type GameService struct {
	store     GameStore
	generator QuestionGenerator
	bus       *EventBus
}

// NewGameService creates a new game service
func NewGameService(store GameStore, generator QuestionGenerator, bus *EventBus) *GameService {
	return &GameService{store: store, generator: generator, bus: bus}
}

// CoupleKey returns the two identity ids in sorted order, so the same couple
// maps to the same session rows regardless of which partner initiates. It is
// always recomputed from the live partner link, never cached.
func CoupleKey(a, b string) (string, string) {
	if a > b {
		a, b = b, a
	}
	return a, b
}

// ListGames returns the game catalog
func (s *GameService) ListGames(ctx context.Context) ([]*models.Game, error) {
	return s.store.ListGames(ctx)
}

func (s *GameService) coupleFor(identity *models.Identity) (string, string, error) {
	if identity.PartnerID == nil {
		return "", "", models.ErrNotPaired
	}
	a, b := CoupleKey(identity.ID, *identity.PartnerID)
	return a, b, nil
}

// StartOrResume returns the couple's active session for a game, creating one
// with a fresh question draw when none exists. An existing active session is
// returned with its fixed question set unchanged.
func (s *GameService) StartOrResume(ctx context.Context, identity *models.Identity, gameID int) (*models.GameSession, error) {
	userA, userB, err := s.coupleFor(identity)
	if err != nil {
		return nil, err
	}

	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	active, err := s.store.GetActiveSession(ctx, userA, userB, gameID)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	candidates, err := s.unusedQuestions(ctx, userA, userB, gameID)
	if err != nil {
		return nil, err
	}

	if len(candidates) < sessionSize && game.SystemPrompt != nil {
		s.topUpPool(ctx, game, candidates)
		candidates, err = s.unusedQuestions(ctx, userA, userB, gameID)
		if err != nil {
			return nil, err
		}
	}

	n := sessionSize
	if len(candidates) < n {
		n = len(candidates)
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	session := &models.GameSession{
		ID:        uuid.New().String(),
		GameID:    gameID,
		UserAID:   userA,
		UserBID:   userB,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	for _, q := range candidates[:n] {
		session.QuestionIDs = append(session.QuestionIDs, q.ID)
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", session.ID).
		Int("game_id", gameID).
		Int("questions", n).
		Msg("Game session created")
	return session, nil
}

// unusedQuestions returns the game's pool minus every question already used
// in a past (completed) session for this couple.
func (s *GameService) unusedQuestions(ctx context.Context, userA, userB string, gameID int) ([]*models.Question, error) {
	pool, err := s.store.ListQuestions(ctx, gameID)
	if err != nil {
		return nil, err
	}
	used, err := s.store.UsedQuestionIDs(ctx, userA, userB, gameID)
	if err != nil {
		return nil, err
	}

	var candidates []*models.Question
	for _, q := range pool {
		if !used[q.ID] {
			candidates = append(candidates, q)
		}
	}
	return candidates, nil
}

// topUpPool asks the generation collaborator for more questions, once.
// Failure or an empty result degrades gracefully: the session will start with
// however many real candidates exist.
func (s *GameService) topUpPool(ctx context.Context, game *models.Game, candidates []*models.Question) {
	avoid := make([]string, 0, len(candidates))
	for _, q := range candidates {
		avoid = append(avoid, q.Text)
	}

	texts, err := s.generator.Generate(ctx, *game.SystemPrompt, avoid, sessionSize)
	if err != nil {
		log.Warn().Err(err).Int("game_id", game.ID).Msg("Question generation failed, continuing with existing pool")
		return
	}
	if len(texts) == 0 {
		log.Warn().Int("game_id", game.ID).Msg("Question generation returned nothing")
		return
	}

	added, err := s.store.AddQuestions(ctx, game.ID, texts)
	if err != nil {
		log.Warn().Err(err).Int("game_id", game.ID).Msg("Failed to store generated questions")
		return
	}
	log.Info().Int("game_id", game.ID).Int("added", added).Msg("Question pool topped up")
}

// loadActiveSessionFor fetches a session and validates that it is active and
// that the identity participates in it.
func (s *GameService) loadActiveSessionFor(ctx context.Context, identity *models.Identity, sessionID string) (*models.GameSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidSession
		}
		return nil, err
	}
	if !session.IsActive {
		return nil, models.ErrInvalidSession
	}
	if session.UserAID != identity.ID && session.UserBID != identity.ID {
		return nil, models.ErrInvalidSession
	}
	return session, nil
}

func otherParticipant(session *models.GameSession, identityID string) string {
	if session.UserAID == identityID {
		return session.UserBID
	}
	return session.UserAID
}

func sessionHasQuestion(session *models.GameSession, questionID string) bool {
	for _, qid := range session.QuestionIDs {
		if qid == questionID {
			return true
		}
	}
	return false
}

// RecordAnswer upserts the identity's answer to a session question. After the
// durable write the partner is notified: with the answer text once both sides
// have answered (reveal), otherwise only with the fact of answering, so no
// text leaks before mutual reveal.
func (s *GameService) RecordAnswer(ctx context.Context, identity *models.Identity, sessionID, questionID, text string) (bool, error) {
	session, err := s.loadActiveSessionFor(ctx, identity, sessionID)
	if err != nil {
		return false, err
	}
	if !sessionHasQuestion(session, questionID) {
		return false, models.ErrNotFound
	}

	now := time.Now().UTC()
	answer := &models.Answer{
		ID:         uuid.New().String(),
		SessionID:  sessionID,
		QuestionID: questionID,
		IdentityID: identity.ID,
		Text:       text,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertAnswer(ctx, answer); err != nil {
		return false, err
	}

	partnerID := otherParticipant(session, identity.ID)
	_, err = s.store.GetAnswer(ctx, sessionID, questionID, partnerID)
	revealed := err == nil
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return false, err
	}

	payload := map[string]interface{}{
		"session_id":  sessionID,
		"question_id": questionID,
	}
	if revealed {
		payload["status"] = "reveal"
		payload["partner_answer"] = text
	} else {
		payload["status"] = "answered"
	}
	s.bus.Publish(partnerID, "game_update", payload)

	return revealed, nil
}

// Restart completes the couple's active session for a game. The replacement
// is created lazily by the next StartOrResume.
func (s *GameService) Restart(ctx context.Context, identity *models.Identity, gameID int) error {
	userA, userB, err := s.coupleFor(identity)
	if err != nil {
		return err
	}

	session, err := s.store.GetActiveSession(ctx, userA, userB, gameID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNoActiveSession
		}
		return err
	}

	if err := s.store.CompleteSession(ctx, session.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNoActiveSession
		}
		return err
	}

	log.Info().Str("session_id", session.ID).Int("game_id", gameID).Msg("Game session completed")
	return nil
}

// QuestionView is one question of a session as seen by one participant.
// PartnerAnswer is non-nil iff both participants have answered (reveal gate).
type QuestionView struct {
	QuestionID         string  `json:"question_id"`
	Text               string  `json:"text"`
	MyAnswer           *string `json:"my_answer"`
	HasAnswered        bool    `json:"has_answered"`
	PartnerAnswer      *string `json:"partner_answer"`
	PartnerHasAnswered bool    `json:"partner_has_answered"`
}

// SessionView is a session with per-question answer state for one participant
type SessionView struct {
	SessionID string         `json:"session_id"`
	GameID    int            `json:"game_id"`
	IsActive  bool           `json:"is_active"`
	Questions []QuestionView `json:"questions"`
}

// answerRevealed is the reveal gate: a pure predicate over the stored answer
// rows, never a separately persisted flag.
func answerRevealed(mine, partner *models.Answer) bool {
	return mine != nil && partner != nil
}

// View assembles the session as seen by the calling participant, applying the
// reveal gate per question.
func (s *GameService) View(ctx context.Context, identity *models.Identity, sessionID string) (*SessionView, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidSession
		}
		return nil, err
	}
	if session.UserAID != identity.ID && session.UserBID != identity.ID {
		return nil, models.ErrInvalidSession
	}

	questions, err := s.store.ListQuestions(ctx, session.GameID)
	if err != nil {
		return nil, err
	}
	texts := make(map[string]string, len(questions))
	for _, q := range questions {
		texts[q.ID] = q.Text
	}

	answers, err := s.store.ListSessionAnswers(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[string]map[string]*models.Answer)
	for _, a := range answers {
		if byQuestion[a.QuestionID] == nil {
			byQuestion[a.QuestionID] = make(map[string]*models.Answer)
		}
		byQuestion[a.QuestionID][a.IdentityID] = a
	}

	partnerID := otherParticipant(session, identity.ID)
	view := &SessionView{
		SessionID: session.ID,
		GameID:    session.GameID,
		IsActive:  session.IsActive,
	}
	for _, qid := range session.QuestionIDs {
		mine := byQuestion[qid][identity.ID]
		partner := byQuestion[qid][partnerID]

		qv := QuestionView{
			QuestionID:         qid,
			Text:               texts[qid],
			HasAnswered:        mine != nil,
			PartnerHasAnswered: partner != nil,
		}
		if mine != nil {
			qv.MyAnswer = &mine.Text
		}
		if answerRevealed(mine, partner) {
			qv.PartnerAnswer = &partner.Text
		}
		view.Questions = append(view.Questions, qv)
	}
	return view, nil
}
