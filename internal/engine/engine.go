package engine

import (
	"errors"
	"slices"
)

var ErrNotManager = errors.New("not the board manager")
var ErrWrongStatus = errors.New("session not in progress")
var ErrInvalidEstimate = errors.New("invalid estimate")
var ErrUnknownDeck = errors.New("unknown deck type")
var ErrUnsupportedTransition = errors.New("unsupported transition")
var ErrTicketNotQueued = errors.New("ticket not in remaining queue")

type Status int

// Numeric values are persisted; do not reorder.
const (
	StatusInProgress Status = 1
	StatusSkipped    Status = 2
	StatusEstimated  Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusSkipped:
		return "skipped"
	case StatusEstimated:
		return "estimated"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusSkipped || s == StatusEstimated
}

type Transition string

const (
	TransitionEstimate   Transition = "estimate"
	TransitionSkip       Transition = "skip"
	TransitionStartTimer Transition = "start_timer"
)

/*
	IN_PROGRESS --estimate-->    ESTIMATED
	IN_PROGRESS --skip-->        SKIPPED
	IN_PROGRESS --start_timer--> IN_PROGRESS (timer set)
	SKIPPED / ESTIMATED: nothing leaves
*/

// Next returns the status a session holds after t is applied to from.
func Next(from Status, t Transition) (Status, error) {
	if from != StatusInProgress {
		return from, ErrWrongStatus
	}

	switch t {
	case TransitionEstimate:
		return StatusEstimated, nil
	case TransitionSkip:
		return StatusSkipped, nil
	case TransitionStartTimer:
		return StatusInProgress, nil
	default:
		return from, ErrUnsupportedTransition
	}
}

// RequireManager denies every identity other than the board's manager.
func RequireManager(managerID, userID uint) error {
	if managerID == 0 || managerID != userID {
		return ErrNotManager
	}
	return nil
}

type DeckType int

const (
	DeckSeries    DeckType = 1
	DeckEven      DeckType = 2
	DeckOdd       DeckType = 3
	DeckFibonacci DeckType = 4
)

var FibonacciDeck = []int{1, 2, 3, 5, 8, 13, 21, 34}

func (d DeckType) Valid() bool {
	return d >= DeckSeries && d <= DeckFibonacci
}

func (d DeckType) String() string {
	switch d {
	case DeckSeries:
		return "series"
	case DeckEven:
		return "even"
	case DeckOdd:
		return "odd"
	case DeckFibonacci:
		return "fibonacci"
	default:
		return "unknown"
	}
}

// ValidateEstimate checks a candidate estimate against the board's deck.
func ValidateEstimate(deck DeckType, estimate int) error {
	if !deck.Valid() {
		return ErrUnknownDeck
	}
	if estimate < 0 {
		return ErrInvalidEstimate
	}

	switch deck {
	case DeckEven:
		if estimate%2 != 0 {
			return ErrInvalidEstimate
		}
	case DeckOdd:
		if estimate%2 == 0 {
			return ErrInvalidEstimate
		}
	case DeckFibonacci:
		if !slices.Contains(FibonacciDeck, estimate) {
			return ErrInvalidEstimate
		}
	}
	return nil
}
