package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/auth"
	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/store"
)

// Store is the board-level persistence the REST handlers use.
type Store interface {
	Board(ctx context.Context, boardID uint) (models.Pokerboard, error)
	IsBoardMember(ctx context.Context, boardID uint, user models.User) (bool, error)
	CreateSession(ctx context.Context, boardID, ticketID uint) (models.GameSession, error)
	ActiveSession(ctx context.Context, boardID uint) (models.GameSession, error)
	Reorder(ctx context.Context, boardID uint, pairs []engine.RankPair) ([]engine.RankedTicket, error)
	VotedTickets(ctx context.Context, userID uint) ([]models.Ticket, error)
}

var (
	errForbidden = errors.New("forbidden")
	errBadInput  = errors.New("bad input")
)

type handlers struct {
	store Store
	log   *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errForbidden), errors.Is(err, engine.ErrNotManager):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrActiveSessionExists), errors.Is(err, store.ErrTicketEstimated):
		status = http.StatusConflict
	case errors.Is(err, errBadInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func boardID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "boardID"), 10, 64)
	if err != nil || id == 0 {
		return 0, errBadInput
	}
	return uint(id), nil
}

// managedBoard loads the board from the URL and requires the caller to manage it.
func (h handlers) managedBoard(r *http.Request) (models.Pokerboard, error) {
	id, err := boardID(r)
	if err != nil {
		return models.Pokerboard{}, err
	}
	board, err := h.store.Board(r.Context(), id)
	if err != nil {
		return models.Pokerboard{}, err
	}
	user, _ := auth.UserFrom(r.Context())
	if err := engine.RequireManager(board.ManagerID, user.ID); err != nil {
		return models.Pokerboard{}, err
	}
	return board, nil
}

func (h handlers) createSession(w http.ResponseWriter, r *http.Request) {
	board, err := h.managedBoard(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var body struct {
		Ticket uint `json:"ticket"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Ticket == 0 {
		h.fail(w, r, errBadInput)
		return
	}

	gs, err := h.store.CreateSession(r.Context(), board.ID, body.Ticket)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info("session created", zap.Uint("board_id", board.ID), zap.Uint("session_id", gs.ID))
	writeJSON(w, http.StatusCreated, gs)
}

func (h handlers) activeSession(w http.ResponseWriter, r *http.Request) {
	id, err := boardID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, _ := auth.UserFrom(r.Context())
	ok, err := h.store.IsBoardMember(r.Context(), id, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		h.fail(w, r, errForbidden)
		return
	}

	gs, err := h.store.ActiveSession(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gs)
}

func (h handlers) reorder(w http.ResponseWriter, r *http.Request) {
	board, err := h.managedBoard(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var pairs []engine.RankPair
	if err := json.NewDecoder(r.Body).Decode(&pairs); err != nil {
		h.fail(w, r, errBadInput)
		return
	}

	applied, err := h.store.Reorder(r.Context(), board.ID, pairs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]engine.RankPair, len(applied))
	for i, t := range applied {
		out[i] = engine.RankPair{Ref: t.Ref, Rank: t.Rank}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h handlers) votedTickets(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	tickets, err := h.store.VotedTickets(r.Context(), user.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []models.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
