package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nearish-backend/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GameRepository handles database operations for games, question pools,
// shared sessions and answers
type GameRepository struct {
	db *pgxpool.Pool
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

// ListGames retrieves all games
func (r *GameRepository) ListGames(ctx context.Context) ([]*models.Game, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, system_prompt FROM games ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []*models.Game
	for rows.Next() {
		var g models.Game
		if err := rows.Scan(&g.ID, &g.Name, &g.SystemPrompt); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, &g)
	}
	return games, rows.Err()
}

// GetGame retrieves a game by ID
func (r *GameRepository) GetGame(ctx context.Context, id int) (*models.Game, error) {
	var g models.Game
	err := r.db.QueryRow(ctx, `SELECT id, name, system_prompt FROM games WHERE id = $1`, id).
		Scan(&g.ID, &g.Name, &g.SystemPrompt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &g, nil
}

// ListQuestions retrieves a game's question pool ordered by id for stable iteration
func (r *GameRepository) ListQuestions(ctx context.Context, gameID int) ([]*models.Question, error) {
	query := `SELECT id, game_id, text, created_at FROM questions WHERE game_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.GameID, &q.Text, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}

// AddQuestions appends questions to a game's pool, skipping texts that
// already exist verbatim for that game. Returns the number inserted.
func (r *GameRepository) AddQuestions(ctx context.Context, gameID int, texts []string) (int, error) {
	query := `
		INSERT INTO questions (id, game_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id, text) DO NOTHING
	`
	inserted := 0
	for _, text := range texts {
		result, err := r.db.Exec(ctx, query, uuid.New().String(), gameID, text, time.Now().UTC())
		if err != nil {
			return inserted, fmt.Errorf("failed to insert question: %w", err)
		}
		inserted += int(result.RowsAffected())
	}
	return inserted, nil
}

func (r *GameRepository) loadSessionQuestions(ctx context.Context, session *models.GameSession) error {
	query := `SELECT question_id FROM session_questions WHERE session_id = $1 ORDER BY position`
	rows, err := r.db.Query(ctx, query, session.ID)
	if err != nil {
		return fmt.Errorf("failed to load session questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var qid string
		if err := rows.Scan(&qid); err != nil {
			return fmt.Errorf("failed to scan session question: %w", err)
		}
		session.QuestionIDs = append(session.QuestionIDs, qid)
	}
	return rows.Err()
}

const sessionColumns = `id, game_id, user_a_id, user_b_id, is_active, completed_at, created_at`

func (r *GameRepository) scanSession(ctx context.Context, row pgx.Row) (*models.GameSession, error) {
	var s models.GameSession
	err := row.Scan(&s.ID, &s.GameID, &s.UserAID, &s.UserBID, &s.IsActive, &s.CompletedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	if err := r.loadSessionQuestions(ctx, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveSession retrieves the active session for a couple and game, if any
func (r *GameRepository) GetActiveSession(ctx context.Context, userAID, userBID string, gameID int) (*models.GameSession, error) {
	query := `
		SELECT ` + sessionColumns + ` FROM game_sessions
		WHERE game_id = $1 AND user_a_id = $2 AND user_b_id = $3 AND is_active
	`
	return r.scanSession(ctx, r.db.QueryRow(ctx, query, gameID, userAID, userBID))
}

// GetSession retrieves a session by ID
func (r *GameRepository) GetSession(ctx context.Context, id string) (*models.GameSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM game_sessions WHERE id = $1`
	return r.scanSession(ctx, r.db.QueryRow(ctx, query, id))
}

// UsedQuestionIDs returns every question id used in past (completed) sessions
// for a couple and game
func (r *GameRepository) UsedQuestionIDs(ctx context.Context, userAID, userBID string, gameID int) (map[string]bool, error) {
	query := `
		SELECT sq.question_id
		FROM session_questions sq
		JOIN game_sessions s ON s.id = sq.session_id
		WHERE s.game_id = $1 AND s.user_a_id = $2 AND s.user_b_id = $3 AND NOT s.is_active
	`
	rows, err := r.db.Query(ctx, query, gameID, userAID, userBID)
	if err != nil {
		return nil, fmt.Errorf("failed to query used questions: %w", err)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var qid string
		if err := rows.Scan(&qid); err != nil {
			return nil, fmt.Errorf("failed to scan used question: %w", err)
		}
		used[qid] = true
	}
	return used, rows.Err()
}

// CreateSession persists a new active session and its fixed question set
func (r *GameRepository) CreateSession(ctx context.Context, session *models.GameSession) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO game_sessions (id, game_id, user_a_id, user_b_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, TRUE, $5)
	`
	if _, err := tx.Exec(ctx, query, session.ID, session.GameID, session.UserAID, session.UserBID, session.CreatedAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	insertQ := `INSERT INTO session_questions (session_id, question_id, position) VALUES ($1, $2, $3)`
	for i, qid := range session.QuestionIDs {
		if _, err := tx.Exec(ctx, insertQ, session.ID, qid, i); err != nil {
			return fmt.Errorf("failed to attach session question: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	return nil
}

// CompleteSession deactivates an active session. Returns models.ErrNotFound
// if the session is missing or already completed.
func (r *GameRepository) CompleteSession(ctx context.Context, sessionID string, at time.Time) error {
	query := `
		UPDATE game_sessions SET is_active = FALSE, completed_at = $1
		WHERE id = $2 AND is_active
	`
	result, err := r.db.Exec(ctx, query, at, sessionID)
	if err != nil {
		return fmt.Errorf("failed to complete session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpsertAnswer records or overwrites an identity's answer to a session question
func (r *GameRepository) UpsertAnswer(ctx context.Context, answer *models.Answer) error {
	query := `
		INSERT INTO answers (id, session_id, question_id, identity_id, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (session_id, question_id, identity_id)
		DO UPDATE SET text = EXCLUDED.text, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		answer.ID, answer.SessionID, answer.QuestionID, answer.IdentityID, answer.Text, answer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

// GetAnswer retrieves one identity's answer to one question in one session
func (r *GameRepository) GetAnswer(ctx context.Context, sessionID, questionID, identityID string) (*models.Answer, error) {
	query := `
		SELECT id, session_id, question_id, identity_id, text, created_at, updated_at
		FROM answers
		WHERE session_id = $1 AND question_id = $2 AND identity_id = $3
	`
	var a models.Answer
	err := r.db.QueryRow(ctx, query, sessionID, questionID, identityID).Scan(
		&a.ID, &a.SessionID, &a.QuestionID, &a.IdentityID, &a.Text, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}
	return &a, nil
}

// ListSessionAnswers retrieves all answers for a session
func (r *GameRepository) ListSessionAnswers(ctx context.Context, sessionID string) ([]*models.Answer, error) {
	query := `
		SELECT id, session_id, question_id, identity_id, text, created_at, updated_at
		FROM answers
		WHERE session_id = $1
	`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	defer rows.Close()

	var answers []*models.Answer
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.IdentityID, &a.Text, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan answer: %w", err)
		}
		answers = append(answers, &a)
	}
	return answers, rows.Err()
}

// UpsertDailyAnswer records or overwrites an identity's daily-question answer
func (r *GameRepository) UpsertDailyAnswer(ctx context.Context, answer *models.DailyAnswer) error {
	query := `
		INSERT INTO daily_answers (id, question_id, identity_id, day, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (question_id, identity_id, day)
		DO UPDATE SET text = EXCLUDED.text, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Exec(ctx, query,
		answer.ID, answer.QuestionID, answer.IdentityID, answer.Day, answer.Text, answer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily answer: %w", err)
	}
	return nil
}

// GetDailyAnswer retrieves an identity's answer to a question on a given UTC day
func (r *GameRepository) GetDailyAnswer(ctx context.Context, questionID, identityID, day string) (*models.DailyAnswer, error) {
	query := `
		SELECT id, question_id, identity_id, to_char(day, 'YYYY-MM-DD'), text, created_at, updated_at
		FROM daily_answers
		WHERE question_id = $1 AND identity_id = $2 AND day = $3
	`
	var a models.DailyAnswer
	err := r.db.QueryRow(ctx, query, questionID, identityID, day).Scan(
		&a.ID, &a.QuestionID, &a.IdentityID, &a.Day, &a.Text, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get daily answer: %w", err)
	}
	return &a, nil
}

// ListAllQuestions retrieves the full question pool across games, ordered by
// id, for daily question selection
func (r *GameRepository) ListAllQuestions(ctx context.Context) ([]*models.Question, error) {
	rows, err := r.db.Query(ctx, `SELECT id, game_id, text, created_at FROM questions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	var questions []*models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.GameID, &q.Text, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		questions = append(questions, &q)
	}
	return questions, rows.Err()
}
