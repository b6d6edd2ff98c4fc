package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"
	_ "time/tzdata" // America/New_York without relying on host zoneinfo

	"github.com/shopspring/decimal"
)

// slateZone is the timezone that defines a slate date (date_et)
var slateZone = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// GameMarket is the game-pick variant (spread / moneyline / total).
type GameMarket struct {
	HomeTeam  string `json:"home_team"`
	AwayTeam  string `json:"away_team"`
	Selection string `json:"selection,omitempty"` // 표시용 팀명
}

// PropMarket is the player-prop variant.
type PropMarket struct {
	Player   string `json:"player"`
	PropType string `json:"prop_type"` // points, rebounds, passing_yards ...
}

// Candidate is one scoreable market instance.
// ⭐ SSOT: S0 → S4 후보 데이터 전달
//
// Exactly one of Game / Prop is set, matching Kind. The derived fields
// (BaseScore, FinalScore, Tier, Card) are written once through ApplyScore.
type Candidate struct {
	ID         string        `json:"id"`
	Kind       CandidateKind `json:"kind"`
	Sport      Sport         `json:"sport"`
	EventID    string        `json:"event_id"`
	StartTime  time.Time     `json:"start_time"`
	MarketType MarketType    `json:"market_type"`
	Line       float64       `json:"line"`
	Side       Side          `json:"side"`
	Book       string        `json:"book,omitempty"`
	Odds       int           `json:"odds,omitempty"` // American odds

	Game *GameMarket `json:"game,omitempty"`
	Prop *PropMarket `json:"prop,omitempty"`

	Engines   EngineScoreSet `json:"engine_scores"`
	Modifiers []Modifier     `json:"modifiers"`

	BaseScore  float64    `json:"base_score"`
	FinalScore float64    `json:"final_score"`
	Tier       Tier       `json:"tier,omitempty"`
	Card       *ScoreCard `json:"breakdown,omitempty"`

	// Contradiction gate audit fields
	BlockedByContradiction bool   `json:"blocked_by_contradiction,omitempty"`
	BlockedBy              string `json:"blocked_by,omitempty"`
}

// NewPropCandidate builds a PROP candidate and assigns its ID
func NewPropCandidate(sport Sport, eventID string, start time.Time, player, propType string, line float64, side Side, book string) Candidate {
	c := Candidate{
		Kind:       KindProp,
		Sport:      sport,
		EventID:    eventID,
		StartTime:  start,
		MarketType: MarketProp,
		Line:       line,
		Side:       side,
		Book:       book,
		Prop:       &PropMarket{Player: player, PropType: propType},
	}
	c.ID = c.ComputeID()
	return c
}

// NewGameCandidate builds a GAME candidate and assigns its ID
func NewGameCandidate(sport Sport, eventID string, start time.Time, mt MarketType, home, away string, line float64, side Side, book string) Candidate {
	c := Candidate{
		Kind:       KindGame,
		Sport:      sport,
		EventID:    eventID,
		StartTime:  start,
		MarketType: mt,
		Line:       line,
		Side:       side,
		Book:       book,
		Game:       &GameMarket{HomeTeam: home, AwayTeam: away},
	}
	c.ID = c.ComputeID()
	return c
}

// Validate checks the identity fields and the tagged variant
func (c *Candidate) Validate() error {
	if _, err := ParseSport(string(c.Sport)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	if strings.TrimSpace(c.EventID) == "" {
		return fmt.Errorf("%w: event_id required", ErrInvalidCandidate)
	}
	if c.StartTime.IsZero() {
		return fmt.Errorf("%w: start_time required", ErrInvalidCandidate)
	}
	if math.IsNaN(c.Line) || math.IsInf(c.Line, 0) {
		return fmt.Errorf("%w: line is not finite", ErrInvalidCandidate)
	}
	if !c.Side.ValidFor(c.MarketType) {
		return fmt.Errorf("%w: side %q not valid for market %q", ErrInvalidCandidate, c.Side, c.MarketType)
	}

	switch c.Kind {
	case KindGame:
		if c.Game == nil || c.Prop != nil {
			return fmt.Errorf("%w: GAME candidate must carry only the game variant", ErrInvalidCandidate)
		}
		if c.MarketType == MarketProp {
			return fmt.Errorf("%w: GAME candidate cannot price a PROP market", ErrInvalidCandidate)
		}
		if c.Game.HomeTeam == "" || c.Game.AwayTeam == "" {
			return fmt.Errorf("%w: home_team and away_team required", ErrInvalidCandidate)
		}
	case KindProp:
		if c.Prop == nil || c.Game != nil {
			return fmt.Errorf("%w: PROP candidate must carry only the prop variant", ErrInvalidCandidate)
		}
		if c.MarketType != MarketProp {
			return fmt.Errorf("%w: PROP candidate must price a PROP market", ErrInvalidCandidate)
		}
		if strings.TrimSpace(c.Prop.Player) == "" || strings.TrimSpace(c.Prop.PropType) == "" {
			return fmt.Errorf("%w: player and prop_type required", ErrInvalidCandidate)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCandidate, c.Kind)
	}
	return nil
}

// Stream returns the output stream the candidate is gated in
func (c *Candidate) Stream() Stream {
	return StreamFor(c.Kind)
}

// DateET returns the slate date in Eastern time
func (c *Candidate) DateET() string {
	return c.StartTime.In(slateZone).Format("2006-01-02")
}

// Subject returns the market subject: the player for props, empty for game markets
func (c *Candidate) Subject() string {
	if c.Prop != nil {
		return normalizeName(c.Prop.Player)
	}
	return ""
}

// MarketKey derives the contradiction grouping identity
func (c *Candidate) MarketKey() MarketKey {
	k := MarketKey{
		Sport:      c.Sport,
		DateET:     c.DateET(),
		EventID:    c.EventID,
		MarketType: c.MarketType,
		Subject:    c.Subject(),
	}
	if c.Prop != nil {
		k.PropType = strings.ToLower(strings.TrimSpace(c.Prop.PropType))
	}

	switch c.MarketType {
	case MarketSpread:
		// home -3.5 and away +3.5 are the same market
		k.Line = canonicalLine(math.Abs(c.Line))
	case MarketMoneyline:
		k.Line = "0"
	default:
		k.Line = canonicalLine(c.Line)
	}
	return k
}

// ComputeID returns the candidate identifier (market + side + book).
// Two books on the same side produce two candidates.
func (c *Candidate) ComputeID() string {
	return "cd_" + shortHash(c.MarketKey().String(), string(c.Side), strings.ToLower(c.Book))[:16]
}

// PickID returns the deterministic pick identifier (market + line + side)
func (c *Candidate) PickID() string {
	return "pk_" + shortHash(c.MarketKey().String(), canonicalLine(c.Line), string(c.Side))[:20]
}

// IsScored reports whether ApplyScore has run
func (c *Candidate) IsScored() bool {
	return c.Card != nil
}

// ApplyScore writes the derived fields once
func (c *Candidate) ApplyScore(card ScoreCard) error {
	if c.Card != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyScored, c.ID)
	}
	c.BaseScore = card.Base.BaseScore
	c.FinalScore = card.FinalScore
	c.Tier = card.Decision.Tier
	c.Card = &card
	return nil
}

// MarketKey is the grouping identity for contradiction resolution.
// Not persisted as a separate entity.
type MarketKey struct {
	Sport      Sport      `json:"sport"`
	DateET     string     `json:"date_et"`
	EventID    string     `json:"event_id"`
	MarketType MarketType `json:"market_type"`
	PropType   string     `json:"prop_type,omitempty"`
	Subject    string     `json:"subject,omitempty"`
	Line       string     `json:"line"`
}

// String returns the canonical pipe-joined key
func (k MarketKey) String() string {
	return strings.Join([]string{
		string(k.Sport), k.DateET, k.EventID, string(k.MarketType), k.PropType, k.Subject, k.Line,
	}, "|")
}

// canonicalLine renders a line without float noise (221.50000001 → 221.5)
func canonicalLine(v float64) string {
	return decimal.NewFromFloat(v).Round(2).String()
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func shortHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "#")))
	return hex.EncodeToString(sum[:])
}
