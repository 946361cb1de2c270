package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/models"
)

func (s *Store) Board(ctx context.Context, boardID uint) (models.Pokerboard, error) {
	var board models.Pokerboard
	err := s.db.WithContext(ctx).First(&board, boardID).Error
	return board, notFound(err)
}

// CreateSession opens a round on an un-estimated ticket of the board. At
// most one IN_PROGRESS session may exist per board.
func (s *Store) CreateSession(ctx context.Context, boardID, ticketID uint) (models.GameSession, error) {
	var gs models.GameSession
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var board models.Pokerboard
		if err := forUpdate(tx).First(&board, boardID).Error; err != nil {
			return notFound(err)
		}

		var ticket models.Ticket
		err := tx.Where("id = ? AND pokerboard_id = ?", ticketID, boardID).First(&ticket).Error
		if err != nil {
			return notFound(err)
		}
		if ticket.Estimate != nil {
			return ErrTicketEstimated
		}

		var active int64
		err = tx.Model(&models.GameSession{}).
			Joins("JOIN tickets ON tickets.id = game_sessions.ticket_id").
			Where("tickets.pokerboard_id = ? AND game_sessions.status = ?", boardID, engine.StatusInProgress).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveSessionExists
		}

		gs = models.GameSession{TicketID: ticket.ID, Status: engine.StatusInProgress}
		if err := tx.Omit("Ticket").Create(&gs).Error; err != nil {
			return err
		}
		gs.Ticket = ticket
		return nil
	})
	return gs, err
}

// ActiveSession returns the board's IN_PROGRESS session.
func (s *Store) ActiveSession(ctx context.Context, boardID uint) (models.GameSession, error) {
	var gs models.GameSession
	err := s.db.WithContext(ctx).
		Preload("Ticket").
		Joins("JOIN tickets ON tickets.id = game_sessions.ticket_id").
		Where("tickets.pokerboard_id = ? AND game_sessions.status = ?", boardID, engine.StatusInProgress).
		Order("game_sessions.id DESC").
		First(&gs).Error
	return gs, notFound(err)
}

// Reorder applies (ticket ref, rank) pairs to the board's tickets in a
// single transaction. Refs that match no ticket of the board are ignored.
func (s *Store) Reorder(ctx context.Context, boardID uint, pairs []engine.RankPair) ([]engine.RankedTicket, error) {
	sorted := engine.SortPairs(pairs)
	refs := make([]string, len(sorted))
	for i, p := range sorted {
		refs[i] = p.Ref
	}

	var applied []engine.RankedTicket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var tickets []models.Ticket
		err := forUpdate(tx).
			Where("pokerboard_id = ? AND ticket_ref IN ?", boardID, refs).
			Order("ticket_ref ASC").
			Find(&tickets).Error
		if err != nil {
			return err
		}

		ranked := make([]engine.RankedTicket, len(tickets))
		for i, t := range tickets {
			ranked[i] = engine.RankedTicket{ID: t.ID, Ref: t.Ref, Rank: t.Rank}
		}
		applied = engine.ApplyPairs(ranked, sorted)
		return updateRanks(tx, applied)
	})
	return applied, err
}

// Tickets lists a board's tickets by rank.
func (s *Store) Tickets(ctx context.Context, boardID uint) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.WithContext(ctx).
		Where("pokerboard_id = ?", boardID).
		Order("rank ASC, id ASC").
		Find(&tickets).Error
	return tickets, err
}

// VotedTickets lists estimated tickets the user cast a vote on.
func (s *Store) VotedTickets(ctx context.Context, userID uint) ([]models.Ticket, error) {
	db := s.db.WithContext(ctx)
	voted := db.Model(&models.GameSession{}).
		Select("game_sessions.ticket_id").
		Joins("JOIN votes ON votes.game_session_id = game_sessions.id").
		Where("votes.user_id = ?", userID)

	var tickets []models.Ticket
	err := db.Where("estimate IS NOT NULL AND id IN (?)", voted).
		Order("id ASC").
		Find(&tickets).Error
	return tickets, err
}

func (s *Store) UserByID(ctx context.Context, id uint) (models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, id).Error
	return u, notFound(err)
}

// UserByTokenDigest resolves a token digest that has not expired at now.
func (s *Store) UserByTokenDigest(ctx context.Context, digest string, now time.Time) (models.User, error) {
	var tok models.AuthToken
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("digest = ? AND expires_at > ?", digest, now).
		First(&tok).Error
	if err != nil {
		return models.User{}, notFound(err)
	}
	return tok.User, nil
}

// SaveToken stores a token digest for user.
func (s *Store) SaveToken(ctx context.Context, userID uint, digest string, expiresAt time.Time) error {
	tok := models.AuthToken{UserID: userID, Digest: digest, ExpiresAt: expiresAt}
	if err := s.db.WithContext(ctx).Omit("User").Create(&tok).Error; err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
