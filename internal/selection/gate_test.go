package selection

import (
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/pkg/logger"
)

var slate = time.Date(2026, 1, 15, 0, 30, 0, 0, time.UTC)

func scoredProp(player string, line float64, side contracts.Side, book string, final float64) contracts.Candidate {
	c := contracts.NewPropCandidate(contracts.SportNBA, "evt-1", slate, player, "points", line, side, book)
	c.FinalScore = final
	c.Tier = contracts.TierEdgeLean
	c.Card = &contracts.ScoreCard{FinalScore: final}
	return c
}

func ids(cands []contracts.Candidate) []string {
	out := make([]string, len(cands))
	for i := range cands {
		out[i] = cands[i].ID
	}
	return out
}

func TestApplyGate_OppositeSidesKeepHigher(t *testing.T) {
	over := scoredProp("LeBron James", 25.5, contracts.SideOver, "dk", 8.1)
	under := scoredProp("LeBron James", 25.5, contracts.SideUnder, "fd", 7.9)

	res := ApplyGate([]contracts.Candidate{under, over})

	require.Len(t, res.Kept, 1)
	assert.Equal(t, over.ID, res.Kept[0].ID)
	require.Len(t, res.Blocked, 1)
	assert.Equal(t, under.ID, res.Blocked[0].ID)
	assert.True(t, res.Blocked[0].BlockedByContradiction)
	assert.Equal(t, over.ID, res.Blocked[0].BlockedBy)

	assert.False(t, under.BlockedByContradiction, "input untouched")
}

func TestApplyGate_SameSideTwoBooksSurvive(t *testing.T) {
	dk := scoredProp("LeBron James", 25.5, contracts.SideOver, "dk", 8.1)
	fd := scoredProp("LeBron James", 25.5, contracts.SideOver, "fd", 7.7)
	require.NotEqual(t, dk.ID, fd.ID)
	require.Equal(t, dk.PickID(), fd.PickID())

	res := ApplyGate([]contracts.Candidate{dk, fd})
	assert.Equal(t, []string{dk.ID, fd.ID}, ids(res.Kept))
	assert.Empty(t, res.Blocked)
}

func TestApplyGate_ConflictKeepsSingleCandidate(t *testing.T) {
	overDK := scoredProp("LeBron James", 25.5, contracts.SideOver, "dk", 8.1)
	overFD := scoredProp("LeBron James", 25.5, contracts.SideOver, "fd", 8.0)
	under := scoredProp("LeBron James", 25.5, contracts.SideUnder, "mgm", 7.9)

	res := ApplyGate([]contracts.Candidate{overDK, overFD, under})
	assert.Equal(t, []string{overDK.ID}, ids(res.Kept))
	assert.Len(t, res.Blocked, 2)
}

func TestApplyGate_TieBreaksByID(t *testing.T) {
	a := scoredProp("LeBron James", 25.5, contracts.SideOver, "dk", 7.0)
	b := scoredProp("LeBron James", 25.5, contracts.SideUnder, "dk", 7.0)

	want := a.ID
	if b.ID < a.ID {
		want = b.ID
	}

	for _, batch := range [][]contracts.Candidate{{a, b}, {b, a}} {
		res := ApplyGate(batch)
		require.Len(t, res.Kept, 1)
		assert.Equal(t, want, res.Kept[0].ID)
	}
}

func TestApplyGate_DifferentMarketsIndependent(t *testing.T) {
	points := scoredProp("LeBron James", 25.5, contracts.SideOver, "dk", 8.1)
	otherLine := scoredProp("LeBron James", 27.5, contracts.SideUnder, "dk", 7.0)
	otherPlayer := scoredProp("Anthony Davis", 25.5, contracts.SideUnder, "dk", 7.0)

	res := ApplyGate([]contracts.Candidate{points, otherLine, otherPlayer})
	assert.Len(t, res.Kept, 3)
}

func TestApplyGate_SpreadSidesConflict(t *testing.T) {
	home := contracts.NewGameCandidate(contracts.SportNFL, "evt-9", slate, contracts.MarketSpread, "KC", "BUF", -3.5, contracts.SideHome, "dk")
	away := contracts.NewGameCandidate(contracts.SportNFL, "evt-9", slate, contracts.MarketSpread, "KC", "BUF", 3.5, contracts.SideAway, "dk")
	home.FinalScore, away.FinalScore = 7.0, 7.4

	res := ApplyGate([]contracts.Candidate{home, away})
	require.Len(t, res.Kept, 1)
	assert.Equal(t, away.ID, res.Kept[0].ID)
}

// Property: re-running the gate on its own output changes nothing
func TestApplyGate_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	players := []string{"A One", "B Two", "C Three"}
	sides := []contracts.Side{contracts.SideOver, contracts.SideUnder}
	books := []string{"dk", "fd", "mgm"}

	for round := 0; round < 200; round++ {
		var batch []contracts.Candidate
		seen := make(map[string]bool)
		for i := 0; i < 12; i++ {
			c := scoredProp(players[rng.Intn(len(players))], 20.5, sides[rng.Intn(2)], books[rng.Intn(len(books))],
				6.5+float64(rng.Intn(30))/10)
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			batch = append(batch, c)
		}

		once := ApplyGate(batch)
		twice := ApplyGate(once.Kept)
		assert.Equal(t, once.Kept, twice.Kept)
		assert.Empty(t, twice.Blocked)

		// blocked candidates fed back in stay blocked and are not regrouped
		all := append(append([]contracts.Candidate(nil), once.Kept...), once.Blocked...)
		again := ApplyGate(all)
		assert.ElementsMatch(t, ids(once.Kept), ids(again.Kept))
	}
}

func TestGate_RecordsBlockedPerStream(t *testing.T) {
	m := metrics.New()
	g := NewGate(logger.Nop(), m)

	res := g.Apply([]contracts.Candidate{
		scoredProp("LeBron James", 25.5, contracts.SideOver, "dk", 8.1),
		scoredProp("LeBron James", 25.5, contracts.SideUnder, "dk", 7.9),
	})
	assert.Len(t, res.Kept, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ContradictionBlocks.WithLabelValues("PROPS")))
}

func TestSortByScore(t *testing.T) {
	a := scoredProp("A One", 20.5, contracts.SideOver, "dk", 7.0)
	b := scoredProp("B Two", 20.5, contracts.SideOver, "dk", 9.0)
	c := scoredProp("C Three", 20.5, contracts.SideOver, "dk", 8.0)

	cands := []contracts.Candidate{a, b, c}
	SortByScore(cands)
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, ids(cands))
}
