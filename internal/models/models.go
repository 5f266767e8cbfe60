package models

import "time"

// Account is the identity record owned by the external auth service.
// This backend only reads it.
type Account struct {
	ID          string    `json:"id"`
	Name        *string   `json:"name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Image       *string   `json:"image,omitempty"`
	IsAnonymous bool      `json:"is_anonymous"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthSession is a bearer session written by the external auth service.
type AuthSession struct {
	ID        string
	AccountID string
	Token     string
	ExpiresAt time.Time
}

// Identity is the app-internal record all core logic operates on, one per
// Account, created lazily on first authenticated access.
//
// PartnerID is a self-referential link into the same table and is kept
// symmetric by the pairing service: if A.PartnerID = B then B.PartnerID = A.
// ConnectionCode is present only while unpaired and not yet consumed.
type Identity struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"account_id"`
	PartnerID       *string    `json:"partner_id,omitempty"`
	ConnectionCode  *string    `json:"connection_code,omitempty"`
	IsPro           bool       `json:"is_pro"`
	IsProViaPartner bool       `json:"is_pro_via_partner"`
	StatusEmoji     *string    `json:"status_emoji,omitempty"`
	StatusText      *string    `json:"status_text,omitempty"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`
	LastLatitude    *float64   `json:"last_latitude,omitempty"`
	LastLongitude   *float64   `json:"last_longitude,omitempty"`
	LastLocationAt  *time.Time `json:"last_location_at,omitempty"`
	PushToken       *string    `json:"push_token,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Game is a question game/topic.
type Game struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	SystemPrompt *string `json:"-"`
}

// Question is one entry in a game's question pool.
type Question struct {
	ID        string    `json:"id"`
	GameID    int       `json:"game_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// GameSession is one run of a game for a couple. UserAID < UserBID always
// (sorted couple key), so the same couple maps to the same rows regardless of
// which partner initiates. QuestionIDs is fixed at creation and immutable.
type GameSession struct {
	ID          string     `json:"id"`
	GameID      int        `json:"game_id"`
	UserAID     string     `json:"user_a_id"`
	UserBID     string     `json:"user_b_id"`
	IsActive    bool       `json:"is_active"`
	QuestionIDs []string   `json:"question_ids"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Answer is one identity's answer to one question in one session. At most one
// row per (session, question, identity); later writes overwrite the text.
type Answer struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	QuestionID string    `json:"question_id"`
	IdentityID string    `json:"identity_id"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DailyAnswer is an identity's answer to the question of one UTC calendar day.
type DailyAnswer struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	IdentityID string    `json:"identity_id"`
	Day        string    `json:"day"` // YYYY-MM-DD, UTC
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Memory is a saved moment, optionally with an S3-backed image.
type Memory struct {
	ID           string    `json:"id"`
	IdentityID   string    `json:"identity_id"`
	Title        string    `json:"title"`
	Description  *string   `json:"description,omitempty"`
	Date         time.Time `json:"date"`
	ImagePath    *string   `json:"-"`
	Latitude     *float64  `json:"latitude,omitempty"`
	Longitude    *float64  `json:"longitude,omitempty"`
	LocationName *string   `json:"location_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Streak tracks consecutive daily check-ins for an identity.
type Streak struct {
	ID            string    `json:"id"`
	IdentityID    string    `json:"identity_id"`
	CurrentStreak int       `json:"current_streak"`
	LastLoginAt   time.Time `json:"last_login_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
