package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-01-15 00:30 UTC is still Jan 14 in New York
var lateTip = time.Date(2026, 1, 15, 0, 30, 0, 0, time.UTC)

func propCandidate(side Side, line float64, book string) Candidate {
	c := Candidate{
		Kind:       KindProp,
		Sport:      SportNBA,
		EventID:    "evt-1",
		StartTime:  lateTip,
		MarketType: MarketProp,
		Line:       line,
		Side:       side,
		Book:       book,
		Prop:       &PropMarket{Player: "LeBron  James", PropType: "Points"},
	}
	c.ID = c.ComputeID()
	return c
}

func spreadCandidate(side Side, line float64) Candidate {
	c := Candidate{
		Kind:       KindGame,
		Sport:      SportNBA,
		EventID:    "evt-2",
		StartTime:  lateTip,
		MarketType: MarketSpread,
		Line:       line,
		Side:       side,
		Game:       &GameMarket{HomeTeam: "LAL", AwayTeam: "BOS"},
	}
	c.ID = c.ComputeID()
	return c
}

func TestCandidate_DateETUsesEastern(t *testing.T) {
	c := propCandidate(SideOver, 25.5, "dk")
	assert.Equal(t, "2026-01-14", c.DateET())
}

func TestCandidate_MarketKey(t *testing.T) {
	over := propCandidate(SideOver, 25.5, "dk")
	under := propCandidate(SideUnder, 25.5, "fd")
	other := propCandidate(SideUnder, 26.5, "fd")

	assert.Equal(t, over.MarketKey(), under.MarketKey(), "over/under on the same line share a market")
	assert.NotEqual(t, over.MarketKey(), other.MarketKey(), "different lines are different markets")
	assert.Equal(t, "lebron james", over.MarketKey().Subject)
	assert.Equal(t, "points", over.MarketKey().PropType)
	assert.Equal(t, "NBA|2026-01-14|evt-1|PROP|points|lebron james|25.5", over.MarketKey().String())

	home := spreadCandidate(SideHome, -3.5)
	away := spreadCandidate(SideAway, 3.5)
	assert.Equal(t, home.MarketKey(), away.MarketKey(), "spread sides share |line|")
	assert.Equal(t, "3.5", home.MarketKey().Line)
}

func TestCandidate_Identifiers(t *testing.T) {
	dk := propCandidate(SideOver, 25.5, "dk")
	fd := propCandidate(SideOver, 25.5, "fd")

	assert.NotEqual(t, dk.ID, fd.ID, "books are distinct candidates")
	assert.Equal(t, dk.PickID(), fd.PickID(), "pick id ignores the book")
	assert.Regexp(t, `^pk_[0-9a-f]{20}$`, dk.PickID())
	assert.Regexp(t, `^cd_[0-9a-f]{16}$`, dk.ID)

	home := spreadCandidate(SideHome, -3.5)
	away := spreadCandidate(SideAway, 3.5)
	assert.NotEqual(t, home.PickID(), away.PickID())
}

func TestCandidate_Validate(t *testing.T) {
	valid := propCandidate(SideOver, 25.5, "dk")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Candidate)
	}{
		{"both variants", func(c *Candidate) { c.Game = &GameMarket{HomeTeam: "A", AwayTeam: "B"} }},
		{"no variant", func(c *Candidate) { c.Prop = nil }},
		{"side not valid for market", func(c *Candidate) { c.Side = SideHome }},
		{"missing event", func(c *Candidate) { c.EventID = " " }},
		{"unknown sport", func(c *Candidate) { c.Sport = "CRICKET" }},
		{"missing player", func(c *Candidate) { c.Prop = &PropMarket{PropType: "points"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := propCandidate(SideOver, 25.5, "dk")
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidCandidate)
		})
	}
}

func TestCandidate_ApplyScoreOnce(t *testing.T) {
	c := propCandidate(SideOver, 25.5, "dk")
	card := ScoreCard{
		Base:       BaseBreakdown{BaseScore: 7.2},
		FinalScore: 7.9,
		Decision:   TierDecision{Tier: TierEdgeLean},
	}

	require.NoError(t, c.ApplyScore(card))
	assert.Equal(t, 7.2, c.BaseScore)
	assert.Equal(t, 7.9, c.FinalScore)
	assert.Equal(t, TierEdgeLean, c.Tier)

	err := c.ApplyScore(ScoreCard{FinalScore: 9.9})
	assert.ErrorIs(t, err, ErrAlreadyScored)
	assert.Equal(t, 7.9, c.FinalScore, "second write must not change anything")
}

func TestCandidate_JSONRoundTripKeepsVariant(t *testing.T) {
	c := propCandidate(SideUnder, 8.5, "mgm")
	data, err := json.Marshal(c)
	require.NoError(t, err)

	var decoded Candidate
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded.Game)
	require.NotNil(t, decoded.Prop)
	assert.Equal(t, c.PickID(), decoded.PickID())
}

func TestPublishedPick_GradeOnce(t *testing.T) {
	c := propCandidate(SideOver, 25.5, "dk")
	require.NoError(t, c.ApplyScore(ScoreCard{FinalScore: 7.0, Decision: TierDecision{Tier: TierEdgeLean}}))

	p, err := NewPublishedPick(c, lateTip, "run-1", "hash", "neutral")
	require.NoError(t, err)
	assert.Equal(t, PickPending, p.Status())

	require.NoError(t, p.ApplyGrade(ResultWin, 31, lateTip.Add(4*time.Hour)))
	assert.Equal(t, PickGraded, p.Status())
	hit, decisive := p.Hit()
	assert.True(t, hit)
	assert.True(t, decisive)

	err = p.ApplyGrade(ResultLoss, 12, lateTip.Add(5*time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyGraded)
	assert.Equal(t, ResultWin, *p.Result)
}

func TestNewPublishedPick_RequiresScore(t *testing.T) {
	c := propCandidate(SideOver, 25.5, "dk")
	_, err := NewPublishedPick(c, lateTip, "", "", "")
	assert.ErrorIs(t, err, ErrInvariantViolation)
}
