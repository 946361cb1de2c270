package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/models"
)

// SessionFacts is what every check during a round needs: the session row
// plus the deck and manager of the board its ticket belongs to.
type SessionFacts struct {
	SessionID      uint
	TicketID       uint
	BoardID        uint
	ManagerID      uint
	Deck           engine.DeckType
	Status         engine.Status
	TimerStartedAt *time.Time
}

// LoadSession returns the session with its ticket and board facts.
func (s *Store) LoadSession(ctx context.Context, sessionID uint) (SessionFacts, error) {
	var gs models.GameSession
	err := s.db.WithContext(ctx).
		Preload("Ticket.Pokerboard").
		First(&gs, sessionID).Error
	if err != nil {
		return SessionFacts{}, notFound(err)
	}

	return SessionFacts{
		SessionID:      gs.ID,
		TicketID:       gs.TicketID,
		BoardID:        gs.Ticket.PokerboardID,
		ManagerID:      gs.Ticket.Pokerboard.ManagerID,
		Deck:           gs.Ticket.Pokerboard.DeckType,
		Status:         gs.Status,
		TimerStartedAt: gs.TimerStartedAt,
	}, nil
}

// IsBoardMember reports whether user manages the board or accepted an invite to it.
func (s *Store) IsBoardMember(ctx context.Context, boardID uint, user models.User) (bool, error) {
	var board models.Pokerboard
	if err := s.db.WithContext(ctx).First(&board, boardID).Error; err != nil {
		return false, notFound(err)
	}
	if board.ManagerID == user.ID {
		return true, nil
	}

	var n int64
	err := s.db.WithContext(ctx).Model(&models.Invite{}).
		Where("pokerboard_id = ? AND invitee = ? AND accepted = ?", boardID, user.Email, true).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertVote records the user's vote for the session, replacing any earlier one.
func (s *Store) UpsertVote(ctx context.Context, sessionID, userID uint, estimate int) (models.Vote, error) {
	db := s.db.WithContext(ctx)
	vote := models.Vote{GameSessionID: sessionID, UserID: userID, Estimate: estimate}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_session_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"estimate", "updated_at"}),
	}).Omit("User", "GameSession").Create(&vote).Error
	if err != nil {
		return models.Vote{}, fmt.Errorf("upsert vote: %w", err)
	}

	var stored models.Vote
	err = db.Preload("User").
		Where("game_session_id = ? AND user_id = ?", sessionID, userID).
		First(&stored).Error
	if err != nil {
		return models.Vote{}, notFound(err)
	}
	return stored, nil
}

func (s *Store) Votes(ctx context.Context, sessionID uint) ([]models.Vote, error) {
	var votes []models.Vote
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("game_session_id = ?", sessionID).
		Order("id ASC").
		Find(&votes).Error
	return votes, err
}

// transition moves an IN_PROGRESS session to next. Losing a race against
// another transition shows up as zero affected rows.
func transition(tx *gorm.DB, sessionID uint, t engine.Transition, extra map[string]any) error {
	next, err := engine.Next(engine.StatusInProgress, t)
	if err != nil {
		return err
	}

	updates := map[string]any{"status": next}
	for k, v := range extra {
		updates[k] = v
	}
	res := tx.Model(&models.GameSession{}).
		Where("id = ? AND status = ?", sessionID, engine.StatusInProgress).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return engine.ErrWrongStatus
	}
	return nil
}

// FinalizeEstimate sets the ticket's estimate and marks the session
// ESTIMATED in one transaction.
func (s *Store) FinalizeEstimate(ctx context.Context, sessionID, ticketID uint, estimate int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transition(tx, sessionID, engine.TransitionEstimate, nil); err != nil {
			return err
		}
		res := tx.Model(&models.Ticket{}).Where("id = ?", ticketID).Update("estimate", estimate)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Skip marks the session SKIPPED, clears its timer and moves its ticket
// to the back of the board's remaining queue.
func (s *Store) Skip(ctx context.Context, sessionID uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var gs models.GameSession
		if err := tx.Preload("Ticket").First(&gs, sessionID).Error; err != nil {
			return notFound(err)
		}

		err := transition(tx, sessionID, engine.TransitionSkip, map[string]any{"timer_started_at": nil})
		if err != nil {
			return err
		}
		return s.rotateToEnd(tx, gs.Ticket)
	})
}

// StartTimer stamps the session's timer.
func (s *Store) StartTimer(ctx context.Context, sessionID uint, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return transition(tx, sessionID, engine.TransitionStartTimer, map[string]any{"timer_started_at": at})
	})
}

func (s *Store) rotateToEnd(tx *gorm.DB, ticket models.Ticket) error {
	var queue []models.Ticket
	err := forUpdate(tx).
		Where("pokerboard_id = ? AND rank >= ? AND estimate IS NULL", ticket.PokerboardID, ticket.Rank).
		Order("rank ASC, id ASC").
		Find(&queue).Error
	if err != nil {
		return err
	}

	ranked := make([]engine.RankedTicket, len(queue))
	for i, t := range queue {
		ranked[i] = engine.RankedTicket{ID: t.ID, Ref: t.Ref, Rank: t.Rank}
	}

	rotated, err := engine.RotateToEnd(ranked, ticket.ID)
	if errors.Is(err, engine.ErrTicketNotQueued) {
		s.log.Warn("skipped ticket not in remaining queue", zap.Uint("ticket_id", ticket.ID))
		return nil
	}
	if err != nil {
		return err
	}
	return updateRanks(tx, rotated)
}

func updateRanks(tx *gorm.DB, ranked []engine.RankedTicket) error {
	for _, t := range ranked {
		err := tx.Model(&models.Ticket{}).Where("id = ?", t.ID).Update("rank", t.Rank).Error
		if err != nil {
			return fmt.Errorf("update rank of ticket %d: %w", t.ID, err)
		}
	}
	return nil
}
