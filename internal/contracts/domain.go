package contracts

import (
	"fmt"
	"strings"
)

// Sport identifies the league a candidate belongs to.
// WeightConfig is keyed by Sport.
type Sport string

const (
	SportNBA   Sport = "NBA"
	SportNFL   Sport = "NFL"
	SportMLB   Sport = "MLB"
	SportNHL   Sport = "NHL"
	SportNCAAB Sport = "NCAAB"
	SportNCAAF Sport = "NCAAF"
)

// AllSports returns all supported sports in a stable order
func AllSports() []Sport {
	return []Sport{SportNBA, SportNFL, SportMLB, SportNHL, SportNCAAB, SportNCAAF}
}

// ParseSport normalizes a sport string ("nba" → NBA)
func ParseSport(s string) (Sport, error) {
	sp := Sport(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllSports() {
		if sp == known {
			return sp, nil
		}
	}
	return "", fmt.Errorf("unknown sport %q", s)
}

// Engine names one of the four scoring heuristics.
type Engine string

const (
	EngineAI       Engine = "ai"
	EngineResearch Engine = "research"
	EngineEsoteric Engine = "esoteric"
	EngineJarvis   Engine = "jarvis"
)

// AllEngines returns the engines in canonical order.
// ⭐ SSOT: 엔진 순서는 여기서만 정의 (breakdown, 레저 출력 순서)
func AllEngines() []Engine {
	return []Engine{EngineAI, EngineResearch, EngineEsoteric, EngineJarvis}
}

// IsValid reports whether e is one of the four engines
func (e Engine) IsValid() bool {
	switch e {
	case EngineAI, EngineResearch, EngineEsoteric, EngineJarvis:
		return true
	}
	return false
}

// MarketType is the bet market a candidate prices.
type MarketType string

const (
	MarketSpread    MarketType = "SPREAD"
	MarketMoneyline MarketType = "MONEYLINE"
	MarketTotal     MarketType = "TOTAL"
	MarketProp      MarketType = "PROP"
)

// Side is the outcome a candidate recommends.
type Side string

const (
	SideOver  Side = "OVER"
	SideUnder Side = "UNDER"
	SideHome  Side = "HOME"
	SideAway  Side = "AWAY"
)

// ParseSide normalizes a side string
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	switch side {
	case SideOver, SideUnder, SideHome, SideAway:
		return side, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Opposite returns the mutually exclusive side for the same market
func (s Side) Opposite() Side {
	switch s {
	case SideOver:
		return SideUnder
	case SideUnder:
		return SideOver
	case SideHome:
		return SideAway
	case SideAway:
		return SideHome
	}
	return ""
}

// IsDirectional reports whether the side is a totals direction (OVER/UNDER).
// The learner only measures directional skew on these.
func (s Side) IsDirectional() bool {
	return s == SideOver || s == SideUnder
}

// ValidFor reports whether the side makes sense for the market type
func (s Side) ValidFor(mt MarketType) bool {
	switch mt {
	case MarketTotal, MarketProp:
		return s == SideOver || s == SideUnder
	case MarketSpread, MarketMoneyline:
		return s == SideHome || s == SideAway
	}
	return false
}

// CandidateKind tags the candidate variant.
type CandidateKind string

const (
	KindGame CandidateKind = "GAME"
	KindProp CandidateKind = "PROP"
)

// Stream is a logical output stream; the contradiction gate runs per stream.
type Stream string

const (
	StreamGames Stream = "GAMES"
	StreamProps Stream = "PROPS"
)

// StreamFor maps a candidate kind to its output stream
func StreamFor(kind CandidateKind) Stream {
	if kind == KindProp {
		return StreamProps
	}
	return StreamGames
}

// Tier is the discrete recommendation category.
type Tier string

const (
	TierTitanium Tier = "TITANIUM"  // top tier: 3-of-4 engines rule
	TierGoldStar Tier = "GOLD_STAR" // second tier: per-engine hard gates
	TierEdgeLean Tier = "EDGE_LEAN"
	TierMonitor  Tier = "MONITOR" // 비공개
	TierPass     Tier = "PASS"    // 비공개
)

// AllTiers returns tiers from best to worst
func AllTiers() []Tier {
	return []Tier{TierTitanium, TierGoldStar, TierEdgeLean, TierMonitor, TierPass}
}

// Result is a graded outcome.
type Result string

const (
	ResultWin  Result = "WIN"
	ResultLoss Result = "LOSS"
	ResultPush Result = "PUSH"
)

// ParseResult normalizes a result string
func ParseResult(s string) (Result, error) {
	r := Result(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case ResultWin, ResultLoss, ResultPush:
		return r, nil
	}
	return "", fmt.Errorf("unknown result %q", s)
}
