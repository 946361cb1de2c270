package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DoyleJ11/pokerboard-backend/internal/models"
)

var ErrMalformed = errors.New("malformed envelope")
var ErrUnknownType = errors.New("unknown message type")
var ErrBadPayload = errors.New("payload does not match message type")

type MessageType string

const (
	TypeEstimate       MessageType = "estimate"
	TypeSkip           MessageType = "skip"
	TypeVote           MessageType = "vote"
	TypeInitialiseGame MessageType = "initialise_game"
	TypeStartTimer     MessageType = "start_timer"
	TypeUpdate         MessageType = "update"
)

// Action is one parsed inbound message. The set of implementations is closed.
type Action interface {
	Type() MessageType
	isAction()
}

type Vote struct{ Estimate int }
type Estimate struct{ Estimate int }
type Skip struct{}
type StartTimer struct{}
type InitialiseGame struct{}
type Update struct{}

func (Vote) Type() MessageType           { return TypeVote }
func (Estimate) Type() MessageType       { return TypeEstimate }
func (Skip) Type() MessageType           { return TypeSkip }
func (StartTimer) Type() MessageType     { return TypeStartTimer }
func (InitialiseGame) Type() MessageType { return TypeInitialiseGame }
func (Update) Type() MessageType         { return TypeUpdate }

func (Vote) isAction()           {}
func (Estimate) isAction()       {}
func (Skip) isAction()           {}
func (StartTimer) isAction()     {}
func (InitialiseGame) isAction() {}
func (Update) isAction()         {}

type envelope struct {
	MessageType MessageType     `json:"message_type"`
	Message     json.RawMessage `json:"message"`
}

type estimatePayload struct {
	Estimate *int `json:"estimate"`
}

// Parse decodes an inbound envelope into its typed action.
func Parse(data []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.MessageType {
	case TypeVote, TypeEstimate:
		n, err := parseEstimate(env.Message)
		if err != nil {
			return nil, err
		}
		if env.MessageType == TypeVote {
			return Vote{Estimate: n}, nil
		}
		return Estimate{Estimate: n}, nil
	case TypeSkip:
		return Skip{}, nil
	case TypeStartTimer:
		return StartTimer{}, nil
	case TypeInitialiseGame:
		return InitialiseGame{}, nil
	case TypeUpdate:
		return Update{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.MessageType)
	}
}

func parseEstimate(raw json.RawMessage) (int, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, ErrBadPayload
	}
	var p estimatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if p.Estimate == nil {
		return 0, ErrBadPayload
	}
	return *p.Estimate, nil
}

type UserView struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func NewUserView(u models.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

type VoteView struct {
	ID          uint     `json:"id"`
	Estimate    int      `json:"estimate"`
	GameSession uint     `json:"game_session"`
	User        UserView `json:"user"`
}

func NewVoteView(v models.Vote) VoteView {
	return VoteView{ID: v.ID, Estimate: v.Estimate, GameSession: v.GameSessionID, User: NewUserView(v.User)}
}

type VoteResult struct {
	Vote VoteView `json:"vote"`
}

type EstimateResult struct {
	Estimate int `json:"estimate"`
}

type SkipResult struct{}

type StartTimerResult struct {
	TimerStartedAt time.Time `json:"timer_started_at"`
}

// GameState is the full snapshot a client needs after connecting.
type GameState struct {
	Votes []VoteView `json:"votes"`
	Users []UserView `json:"users"`
	Timer *time.Time `json:"timer"`
}

type Members struct {
	Users []UserView `json:"users"`
}

type ErrorReply struct {
	Error string `json:"error"`
}

// Encode renders {"type": t, ...fields of result}. result must marshal to
// a JSON object, or be nil.
func Encode(t MessageType, result any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("result of %s is not an object: %w", t, err)
		}
	}

	typ, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}

func EncodeError(msg string) []byte {
	b, _ := json.Marshal(ErrorReply{Error: msg})
	return b
}
