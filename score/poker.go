// score/poker.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"fmt"

	"github.com/mmorken/flytrace/contest"
	"github.com/mmorken/flytrace/geo"
	"github.com/mmorken/flytrace/rand"
	"github.com/mmorken/flytrace/route"
)

// PokerCalculator awards a playing card each time the contestant reaches
// the next waypoint polygon in route order.  Polygons come from gate
// zones named after the waypoints; waypoints without a matching zone get
// a square of the gate width synthesized around them.
type PokerCalculator struct {
	reducer *Reducer
	rand    rand.Rand

	// remaining polygons, route order, consumed from the front
	pending []pokerPolygon
	deck    []string
	hand    []card
	started bool
}

type pokerPolygon struct {
	waypoint *route.Waypoint
	helper   *geo.PolygonHelper
}

func NewPokerCalculator(rt *route.Route, sc *route.Scorecard, reducer *Reducer, seed int64) *PokerCalculator {
	c := &PokerCalculator{
		reducer: reducer,
		rand:    rand.New(),
		deck:    freshDeck(),
	}
	c.rand.Seed(seed)
	c.rand.Shuffle(len(c.deck), func(i, j int) {
		c.deck[i], c.deck[j] = c.deck[j], c.deck[i]
	})

	gates := rt.ZonesOfKind(route.ZoneGate)
	for _, wp := range rt.Waypoints {
		c.pending = append(c.pending, pokerPolygon{
			waypoint: wp,
			helper:   waypointPolygon(wp, gates),
		})
	}
	return c
}

// waypointPolygon finds the gate zone named after the waypoint, falling
// back to a square of the gate width centered on it.
func waypointPolygon(wp *route.Waypoint, gates []route.Zone) *geo.PolygonHelper {
	for _, z := range gates {
		if z.Name == wp.Name {
			return geo.NewPolygonHelper([]string{z.Name}, [][]geo.Point{z.Polygon})
		}
	}

	half := wp.WidthNM / 2
	p := wp.Point()
	ring := []geo.Point{
		geo.Offset(geo.Offset(p, 0, half), 90, half),
		geo.Offset(geo.Offset(p, 0, half), 270, half),
		geo.Offset(geo.Offset(p, 180, half), 270, half),
		geo.Offset(geo.Offset(p, 180, half), 90, half),
	}
	return geo.NewPolygonHelper([]string{wp.Name}, [][]geo.Point{ring})
}

func (c *PokerCalculator) Name() string { return "poker" }

// Finished reports whether every waypoint polygon has been consumed.
func (c *PokerCalculator) Finished() bool {
	return len(c.pending) == 0
}

func (c *PokerCalculator) CalculateEnroute(tail []contest.Position, lastGate *route.Gate, inRangeOfGate bool) {
	c.check(tail)
}

func (c *PokerCalculator) CalculateOutsideRoute(tail []contest.Position, lastGate *route.Gate) {
	c.check(tail)
}

func (c *PokerCalculator) PassedFinishpoint(tail []contest.Position, lastGate *route.Gate) {}

func (c *PokerCalculator) check(tail []contest.Position) {
	if len(tail) == 0 || len(c.pending) == 0 {
		return
	}
	p := tail[len(tail)-1]
	next := c.pending[0]
	if !next.helper.Inside(next.waypoint.Name, p.Latitude, p.Longitude) {
		return
	}
	c.pending = c.pending[1:]

	if !c.started {
		c.started = true
		c.reducer.SetState(contest.StateTracking)
	}

	code := c.deck[0]
	c.deck = c.deck[1:]
	c.hand = append(c.hand, parseCard(code))

	score := c.handScore()
	c.reducer.AwardCard(code, next.waypoint.Name, score)
	c.reducer.UpdateScore(ScoreUpdate{
		Gate:        next.waypoint.Name,
		GateType:    next.waypoint.Kind,
		Points:      0,
		Message:     fmt.Sprintf("won card %s at %s", code, next.waypoint.Name),
		Kind:        contest.EntryInformation,
		Time:        p.DeviceTime,
		ActualTime:  p.DeviceTime,
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
		HasPosition: true,
	})
}

// handScore maps the hand's best five-card rank onto a 0..10000 scale.
func (c *PokerCalculator) handScore() float64 {
	if len(c.hand) == 0 {
		return 0
	}
	return 10000 * float64(bestHandRank(c.hand)) / float64(maxHandRank)
}

///////////////////////////////////////////////////////////////////////////
// hand evaluation

// card packs rank 2..14 and suit 0..3.
type card struct {
	rank int
	suit int
}

const (
	cardRanks = "23456789TJQKA"
	cardSuits = "shdc"
)

func freshDeck() []string {
	deck := make([]string, 0, 52)
	for _, r := range cardRanks {
		for _, s := range cardSuits {
			deck = append(deck, string(r)+string(s))
		}
	}
	return deck
}

func parseCard(code string) card {
	var c card
	for i, r := range cardRanks {
		if byte(r) == code[0] {
			c.rank = i + 2
		}
	}
	for i, s := range cardSuits {
		if byte(s) == code[1] {
			c.suit = i
		}
	}
	return c
}

// hand categories, ascending
const (
	handHighCard = iota
	handPair
	handTwoPair
	handThreeOfAKind
	handStraight
	handFlush
	handFullHouse
	handFourOfAKind
	handStraightFlush
)

// maxHandRank is the encoded rank of an ace-high straight flush.
const maxHandRank = handStraightFlush<<20 | 14<<16 | 13<<12 | 12<<8 | 11<<4 | 10

// bestHandRank evaluates every five-card subset of the hand (or the whole
// hand when fewer than five cards are held) and returns the best encoded
// rank.
func bestHandRank(hand []card) int {
	if len(hand) <= 5 {
		return rankFive(hand)
	}

	best := 0
	n := len(hand)
	pick := make([]card, 0, 5)
	var recurse func(start, need int)
	recurse = func(start, need int) {
		if need == 0 {
			if r := rankFive(pick); r > best {
				best = r
			}
			return
		}
		for i := start; i <= n-need; i++ {
			pick = append(pick, hand[i])
			recurse(i+1, need-1)
			pick = pick[:len(pick)-1]
		}
	}
	recurse(0, 5)
	return best
}

// rankFive encodes a hand of up to five cards as category<<20 followed by
// the five tiebreak ranks, four bits each, high to low.
func rankFive(hand []card) int {
	counts := make(map[int]int)
	suits := make(map[int]int)
	for _, c := range hand {
		counts[c.rank]++
		suits[c.suit]++
	}

	// group ranks by multiplicity, then by rank, descending
	type group struct{ count, rank int }
	var groups []group
	for r, n := range counts {
		groups = append(groups, group{n, r})
	}
	for i := range groups {
		for j := i + 1; j < len(groups); j++ {
			a, b := groups[i], groups[j]
			if b.count > a.count || (b.count == a.count && b.rank > a.rank) {
				groups[i], groups[j] = b, a
			}
		}
	}

	flush := len(hand) == 5 && len(suits) == 1
	straight, straightHigh := isStraight(counts)

	category := handHighCard
	switch {
	case straight && flush:
		category = handStraightFlush
	case groups[0].count == 4:
		category = handFourOfAKind
	case groups[0].count == 3 && len(groups) > 1 && groups[1].count >= 2:
		category = handFullHouse
	case flush:
		category = handFlush
	case straight:
		category = handStraight
	case groups[0].count == 3:
		category = handThreeOfAKind
	case groups[0].count == 2 && len(groups) > 1 && groups[1].count == 2:
		category = handTwoPair
	case groups[0].count == 2:
		category = handPair
	}

	var kickers []int
	if straight {
		for r := straightHigh; r > straightHigh-5; r-- {
			k := r
			if k == 1 {
				k = 14 // the ace in a wheel
			}
			kickers = append(kickers, k)
		}
	} else {
		for _, g := range groups {
			for i := 0; i < g.count; i++ {
				kickers = append(kickers, g.rank)
			}
		}
	}
	for len(kickers) < 5 {
		kickers = append(kickers, 0)
	}

	v := category << 20
	for i := 0; i < 5; i++ {
		v |= kickers[i] << (16 - 4*i)
	}
	return v
}

// isStraight reports whether the distinct ranks form a five-card run and
// returns the high rank; the ace plays low in A-2-3-4-5.
func isStraight(counts map[int]int) (bool, int) {
	if len(counts) != 5 {
		return false, 0
	}
	lo, hi := 15, 0
	for r := range counts {
		if r < lo {
			lo = r
		}
		if r > hi {
			hi = r
		}
	}
	if hi-lo == 4 {
		return true, hi
	}
	// wheel: A,2,3,4,5
	if counts[14] > 0 && counts[2] > 0 && counts[3] > 0 && counts[4] > 0 && counts[5] > 0 {
		return true, 5
	}
	return false, 0
}
