package models

import (
	"time"

	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
)

// User is the resolved identity behind a connection.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	Email     string `gorm:"uniqueIndex;size:50;not null" json:"email"`
	FirstName string `gorm:"size:50" json:"first_name"`
	LastName  string `gorm:"size:50" json:"last_name"`
}

// AuthToken stores only a digest of the raw access token.
type AuthToken struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time
	UserID    uint      `gorm:"index;not null"`
	Digest    string    `gorm:"uniqueIndex;size:64;not null"`
	ExpiresAt time.Time `gorm:"not null"`

	User User `gorm:"constraint:OnDelete:CASCADE;"`
}

type Pokerboard struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`

	ManagerID       uint            `gorm:"index;not null" json:"manager_id"`
	Title           string          `gorm:"uniqueIndex;size:20;not null" json:"title"`
	Description     string          `gorm:"size:100" json:"description"`
	DeckType        engine.DeckType `gorm:"not null;default:1" json:"estimation_type"`
	DurationSeconds int             `gorm:"not null;default:0" json:"duration"`

	Manager User     `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Tickets []Ticket `gorm:"foreignKey:PokerboardID" json:"tickets,omitempty"`
}

// Invite grants board access to an email once accepted.
type Invite struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	PokerboardID uint   `gorm:"index;not null" json:"pokerboard"`
	Invitee      string `gorm:"index;size:50" json:"invitee"`
	Accepted     bool   `gorm:"not null;default:false" json:"is_accepted"`

	Pokerboard Pokerboard `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

type Ticket struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	PokerboardID uint   `gorm:"not null;index:idx_tickets_board_rank,priority:1" json:"-"`
	Ref          string `gorm:"column:ticket_ref;size:50;not null" json:"ticket_id"`
	Estimate     *int   `json:"estimate"`
	Rank         int    `gorm:"not null;index:idx_tickets_board_rank,priority:2" json:"rank"`

	Pokerboard Pokerboard `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

type GameSession struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	TicketID       uint          `gorm:"index;not null" json:"-"`
	Status         engine.Status `gorm:"index;not null;default:1" json:"status"`
	TimerStartedAt *time.Time    `json:"timer_started_at"`

	Ticket Ticket `gorm:"constraint:OnDelete:CASCADE;" json:"ticket"`
}

// Vote is unique per (session, user); writes are upserts.
type Vote struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`

	GameSessionID uint `gorm:"not null;uniqueIndex:idx_votes_session_user" json:"game_session"`
	UserID        uint `gorm:"not null;uniqueIndex:idx_votes_session_user" json:"-"`
	Estimate      int  `gorm:"not null" json:"estimate"`

	User        User        `gorm:"constraint:OnDelete:CASCADE;" json:"user"`
	GameSession GameSession `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&AuthToken{},
		&Pokerboard{},
		&Invite{},
		&Ticket{},
		&GameSession{},
		&Vote{},
	}
}
