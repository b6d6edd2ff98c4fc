package selection

import (
	"sort"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/metrics"
	"github.com/wonny/confluence/pkg/logger"
)

// GateResult is the outcome of the contradiction gate for one batch
type GateResult struct {
	Kept    []contracts.Candidate `json:"kept"`    // input order
	Blocked []contracts.Candidate `json:"blocked"` // input order, audit only
}

// Gate implements S4: contradiction removal
// ⭐ SSOT: 같은 마켓의 반대 사이드는 여기서만 정리
type Gate struct {
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewGate creates a gate. metrics may be nil.
func NewGate(log *logger.Logger, m *metrics.Metrics) *Gate {
	return &Gate{
		logger:  log.WithField("module", "gate"),
		metrics: m,
	}
}

// Apply runs the gate per stream and records what was blocked
func (g *Gate) Apply(batch []contracts.Candidate) GateResult {
	res := ApplyGate(batch)

	perStream := make(map[contracts.Stream]int)
	for i := range res.Blocked {
		perStream[res.Blocked[i].Stream()]++
	}
	for stream, n := range perStream {
		g.metrics.ObserveBlocked(string(stream), n)
	}

	g.logger.WithFields(map[string]interface{}{
		"input":   len(batch),
		"kept":    len(res.Kept),
		"blocked": len(res.Blocked),
	}).Info("Contradiction gate completed")

	return res
}

// ApplyGate is the pure gate.
//
// Candidates are grouped by (stream, MarketKey). A group holding more than
// one side keeps only its highest final_score, ties going to the lower
// candidate id. Same-side groups survive untouched. Candidates already
// flagged as blocked stay blocked and take no part in grouping, so
// ApplyGate(ApplyGate(x).Kept) == ApplyGate(x).Kept.
func ApplyGate(batch []contracts.Candidate) GateResult {
	type group struct {
		members []int
		sides   map[contracts.Side]bool
	}

	groups := make(map[string]*group)
	for i := range batch {
		c := &batch[i]
		if c.BlockedByContradiction {
			continue
		}
		key := string(c.Stream()) + "#" + c.MarketKey().String()
		grp, ok := groups[key]
		if !ok {
			grp = &group{sides: make(map[contracts.Side]bool)}
			groups[key] = grp
		}
		grp.members = append(grp.members, i)
		grp.sides[c.Side] = true
	}

	// index → winner id for losers
	blockedBy := make(map[int]string)
	for _, grp := range groups {
		if len(grp.sides) < 2 {
			continue
		}
		winner := grp.members[0]
		for _, idx := range grp.members[1:] {
			if beats(&batch[idx], &batch[winner]) {
				winner = idx
			}
		}
		for _, idx := range grp.members {
			if idx != winner {
				blockedBy[idx] = batch[winner].ID
			}
		}
	}

	res := GateResult{
		Kept:    make([]contracts.Candidate, 0, len(batch)),
		Blocked: make([]contracts.Candidate, 0, len(blockedBy)),
	}
	for i := range batch {
		c := batch[i]
		if winnerID, lost := blockedBy[i]; lost {
			c.BlockedByContradiction = true
			c.BlockedBy = winnerID
		}
		if c.BlockedByContradiction {
			res.Blocked = append(res.Blocked, c)
			continue
		}
		res.Kept = append(res.Kept, c)
	}
	return res
}

// beats reports whether a outranks b inside a conflict group
func beats(a, b *contracts.Candidate) bool {
	if a.FinalScore != b.FinalScore {
		return a.FinalScore > b.FinalScore
	}
	return a.ID < b.ID
}

// SortByScore orders candidates by final_score descending, id ascending
func SortByScore(cands []contracts.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return beats(&cands[i], &cands[j])
	})
}
