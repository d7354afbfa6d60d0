// score/poker_test.go
// Copyright(c) 2023-2026 flytrace contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmorken/flytrace/route"
)

func cards(codes ...string) []card {
	out := make([]card, len(codes))
	for i, c := range codes {
		out[i] = parseCard(c)
	}
	return out
}

func TestFreshDeck(t *testing.T) {
	deck := freshDeck()
	require.Len(t, deck, 52)
	seen := make(map[string]bool)
	for _, c := range deck {
		assert.False(t, seen[c], "duplicate %s", c)
		seen[c] = true
	}
}

func TestParseCard(t *testing.T) {
	assert.Equal(t, card{rank: 14, suit: 0}, parseCard("As"))
	assert.Equal(t, card{rank: 10, suit: 1}, parseCard("Th"))
	assert.Equal(t, card{rank: 2, suit: 3}, parseCard("2c"))
}

func TestHandCategories(t *testing.T) {
	for _, tc := range []struct {
		name     string
		hand     []card
		category int
	}{
		{"high card", cards("2s", "5h", "9d", "Jc", "Ks"), handHighCard},
		{"pair", cards("2s", "2h", "9d", "Jc", "Ks"), handPair},
		{"two pair", cards("2s", "2h", "9d", "9c", "Ks"), handTwoPair},
		{"trips", cards("2s", "2h", "2d", "9c", "Ks"), handThreeOfAKind},
		{"straight", cards("5s", "6h", "7d", "8c", "9s"), handStraight},
		{"wheel", cards("As", "2h", "3d", "4c", "5s"), handStraight},
		{"flush", cards("2s", "5s", "9s", "Js", "Ks"), handFlush},
		{"full house", cards("2s", "2h", "2d", "9c", "9s"), handFullHouse},
		{"quads", cards("2s", "2h", "2d", "2c", "9s"), handFourOfAKind},
		{"straight flush", cards("5s", "6s", "7s", "8s", "9s"), handStraightFlush},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.category, rankFive(tc.hand)>>20)
		})
	}
}

func TestHandOrdering(t *testing.T) {
	royal := rankFive(cards("Ts", "Js", "Qs", "Ks", "As"))
	assert.Equal(t, maxHandRank, royal)

	wheel := rankFive(cards("As", "2h", "3d", "4c", "5s"))
	sixHigh := rankFive(cards("2s", "3h", "4d", "5c", "6s"))
	assert.Less(t, wheel, sixHigh)

	pairKings := rankFive(cards("Ks", "Kh", "2d", "5c", "9s"))
	pairQueens := rankFive(cards("Qs", "Qh", "Ad", "Kc", "9s"))
	assert.Greater(t, pairKings, pairQueens)
}

func TestBestHandRankSeven(t *testing.T) {
	// Seven cards holding both a pair and a flush; the flush must win.
	hand := cards("2s", "5s", "9s", "Js", "Ks", "2h", "3d")
	assert.Equal(t, handFlush, bestHandRank(hand)>>20)

	// Fewer than five cards still rank.
	assert.Equal(t, handPair, bestHandRank(cards("2s", "2h", "9d"))>>20)
}

func TestPokerCalculatorDeterministicDraw(t *testing.T) {
	sc := route.DefaultScorecard()
	sc.Calculator = route.CalculatorPoker
	rt := buildRoute(t, sc)

	r1 := newTestReducer()
	c1 := NewPokerCalculator(rt, sc, r1, 42)
	r2 := newTestReducer()
	c2 := NewPokerCalculator(rt, sc, r2, 42)

	assert.Equal(t, c1.deck, c2.deck)

	c3 := NewPokerCalculator(rt, sc, newTestReducer(), 43)
	assert.NotEqual(t, c1.deck, c3.deck)
}
