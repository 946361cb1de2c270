package engine

import (
	"cmp"
	"slices"
)

// RankedTicket is the slice of a ticket the ranking functions need.
type RankedTicket struct {
	ID   uint
	Ref  string
	Rank int
}

// RankPair is one requested (ticket ref, rank) assignment.
type RankPair struct {
	Ref  string `json:"ticket_id"`
	Rank int    `json:"rank"`
}

// SortPairs returns a copy of pairs ordered by ticket ref. Equal refs keep
// their input order, so the later pair wins when applied.
func SortPairs(pairs []RankPair) []RankPair {
	sorted := slices.Clone(pairs)
	slices.SortStableFunc(sorted, func(a, b RankPair) int {
		return cmp.Compare(a.Ref, b.Ref)
	})
	return sorted
}

// ApplyPairs assigns each matched ticket the rank paired with its ref.
// Pairs whose ref matches none of tickets are dropped. The result holds only
// the tickets that were touched, ordered by ref.
func ApplyPairs(tickets []RankedTicket, pairs []RankPair) []RankedTicket {
	byRef := make(map[string]int, len(tickets))
	for i, t := range tickets {
		byRef[t.Ref] = i
	}

	touched := map[string]RankedTicket{}
	for _, p := range SortPairs(pairs) {
		i, ok := byRef[p.Ref]
		if !ok {
			continue
		}
		t := tickets[i]
		t.Rank = p.Rank
		touched[p.Ref] = t
	}

	out := make([]RankedTicket, 0, len(touched))
	for _, t := range touched {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b RankedTicket) int {
		return cmp.Compare(a.Ref, b.Ref)
	})
	return out
}

// RotateToEnd moves the skipped ticket behind every other ticket of the
// remaining queue. The queue's rank values are reused: sorted ascending they
// are handed out to the other tickets in their current order, and the
// skipped ticket takes the largest. Ties in rank are broken by ID.
func RotateToEnd(queue []RankedTicket, skippedID uint) ([]RankedTicket, error) {
	ordered := slices.Clone(queue)
	slices.SortFunc(ordered, func(a, b RankedTicket) int {
		if c := cmp.Compare(a.Rank, b.Rank); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	idx := slices.IndexFunc(ordered, func(t RankedTicket) bool { return t.ID == skippedID })
	if idx < 0 {
		return nil, ErrTicketNotQueued
	}

	ranks := make([]int, len(ordered))
	for i, t := range ordered {
		ranks[i] = t.Rank
	}

	skipped := ordered[idx]
	rotated := append(slices.Delete(ordered, idx, idx+1), skipped)
	for i := range rotated {
		rotated[i].Rank = ranks[i]
	}
	return rotated, nil
}
