package room

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DoyleJ11/pokerboard-backend/internal/apperr"
	"github.com/DoyleJ11/pokerboard-backend/internal/engine"
	"github.com/DoyleJ11/pokerboard-backend/internal/models"
	"github.com/DoyleJ11/pokerboard-backend/internal/protocol"
)

// handle parses one frame, runs its action and routes the outcome: results
// go to every connection, failures only back to the sender.
func (r *Room) handle(connID string, c *client, data []byte) {
	action, err := protocol.Parse(data)
	if err != nil {
		r.log.Info("rejected frame", zap.String("conn_id", connID), zap.Error(err))
		r.sendPrivate(connID, protocol.EncodeError(apperr.CodeBadMessage.Reply()))
		return
	}

	ctx, span := r.tracer.Start(r.ctx, "room."+string(action.Type()), trace.WithAttributes(
		attribute.Int64("session.id", int64(r.sessionID)),
		attribute.Int64("user.id", int64(c.user.ID)),
	))
	defer span.End()

	result, err := r.dispatch(ctx, c.user, action)
	if err != nil {
		code := apperr.CodeOf(err)
		span.SetStatus(codes.Error, string(code))
		span.SetAttributes(attribute.String("outcome", string(code)))

		fields := []zap.Field{
			zap.String("conn_id", connID),
			zap.String("type", string(action.Type())),
			zap.String("code", string(code)),
			zap.Error(err),
		}
		if code == apperr.CodeEstimationFailed {
			r.log.Error("action failed", fields...)
		} else {
			r.log.Info("action rejected", fields...)
		}
		r.sendPrivate(connID, protocol.EncodeError(code.Reply()))
		return
	}

	payload, err := protocol.Encode(action.Type(), result)
	if err != nil {
		r.log.Error("encode result", zap.String("type", string(action.Type())), zap.Error(err))
		r.sendPrivate(connID, protocol.EncodeError(apperr.CodeBadMessage.Reply()))
		return
	}
	span.SetAttributes(attribute.String("outcome", "ok"))
	if r.broadcast(payload) > 0 {
		r.announceMembers()
	}
}

func (r *Room) dispatch(ctx context.Context, user models.User, action protocol.Action) (any, error) {
	switch a := action.(type) {
	case protocol.Vote:
		return r.vote(ctx, user, a.Estimate)
	case protocol.Estimate:
		return r.estimate(ctx, user, a.Estimate)
	case protocol.Skip:
		return r.skip(ctx, user)
	case protocol.StartTimer:
		return r.startTimer(ctx, user)
	case protocol.InitialiseGame:
		return r.initialiseGame(ctx)
	case protocol.Update:
		return protocol.Members{Users: r.memberViews()}, nil
	default:
		return nil, apperr.New(apperr.CodeBadMessage, "unhandled action "+string(action.Type()))
	}
}

func (r *Room) vote(ctx context.Context, user models.User, estimate int) (any, error) {
	facts, err := r.backend.LoadSession(ctx, r.sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidEstimate, "load session", err)
	}
	if facts.Status != engine.StatusInProgress {
		return nil, apperr.Wrap(apperr.CodeInvalidEstimate, "vote on closed session", engine.ErrWrongStatus)
	}
	if err := engine.ValidateEstimate(facts.Deck, estimate); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidEstimate, "validate vote", err)
	}

	vote, err := r.backend.UpsertVote(ctx, r.sessionID, user.ID, estimate)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidEstimate, "save vote", err)
	}
	return protocol.VoteResult{Vote: protocol.NewVoteView(vote)}, nil
}

func (r *Room) estimate(ctx context.Context, user models.User, estimate int) (any, error) {
	facts, err := r.backend.LoadSession(ctx, r.sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEstimationFailed, "load session", err)
	}
	if err := engine.RequireManager(facts.ManagerID, user.ID); err != nil {
		return nil, apperr.Wrap(apperr.CodeNotManagerEstimate, "finalize estimate", err)
	}
	if _, err := engine.Next(facts.Status, engine.TransitionEstimate); err != nil {
		return nil, apperr.Wrap(apperr.CodeNotManagerEstimate, "finalize estimate", err)
	}
	if estimate < 0 {
		return nil, apperr.Wrap(apperr.CodeEstimationFailed, "finalize estimate", engine.ErrInvalidEstimate)
	}

	err = r.backend.FinalizeEstimate(ctx, r.sessionID, facts.TicketID, estimate)
	if errors.Is(err, engine.ErrWrongStatus) {
		return nil, apperr.Wrap(apperr.CodeNotManagerEstimate, "finalize estimate", err)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEstimationFailed, "persist estimate", err)
	}
	return protocol.EstimateResult{Estimate: estimate}, nil
}

func (r *Room) skip(ctx context.Context, user models.User) (any, error) {
	facts, err := r.backend.LoadSession(ctx, r.sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeCantSkip, "load session", err)
	}
	if err := engine.RequireManager(facts.ManagerID, user.ID); err != nil {
		return nil, apperr.Wrap(apperr.CodeCantSkip, "skip", err)
	}
	if _, err := engine.Next(facts.Status, engine.TransitionSkip); err != nil {
		return nil, apperr.Wrap(apperr.CodeCantSkip, "skip", err)
	}

	if err := r.backend.Skip(ctx, r.sessionID); err != nil {
		return nil, apperr.Wrap(apperr.CodeCantSkip, "persist skip", err)
	}
	return protocol.SkipResult{}, nil
}

func (r *Room) startTimer(ctx context.Context, user models.User) (any, error) {
	facts, err := r.backend.LoadSession(ctx, r.sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeCantStartTimer, "load session", err)
	}
	if err := engine.RequireManager(facts.ManagerID, user.ID); err != nil {
		return nil, apperr.Wrap(apperr.CodeCantStartTimer, "start timer", err)
	}
	if _, err := engine.Next(facts.Status, engine.TransitionStartTimer); err != nil {
		return nil, apperr.Wrap(apperr.CodeCantStartTimer, "start timer", err)
	}

	at := r.now().UTC()
	if err := r.backend.StartTimer(ctx, r.sessionID, at); err != nil {
		return nil, apperr.Wrap(apperr.CodeCantStartTimer, "persist timer", err)
	}
	return protocol.StartTimerResult{TimerStartedAt: at}, nil
}

func (r *Room) initialiseGame(ctx context.Context) (any, error) {
	facts, err := r.backend.LoadSession(ctx, r.sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeBadMessage, "load session", err)
	}
	votes, err := r.backend.Votes(ctx, r.sessionID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeBadMessage, "load votes", err)
	}

	views := make([]protocol.VoteView, len(votes))
	for i, v := range votes {
		views[i] = protocol.NewVoteView(v)
	}
	return protocol.GameState{
		Votes: views,
		Users: r.memberViews(),
		Timer: facts.TimerStartedAt,
	}, nil
}
