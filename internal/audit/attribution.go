package audit

import (
	"github.com/wonny/confluence/internal/contracts"
)

// Attribution is how picks an engine backed performed against the
// overall hit rate
type Attribution struct {
	Engine     contracts.Engine `json:"engine"`
	Qualifying int              `json:"qualifying"` // decisive picks with score ≥ qualifying threshold
	HitRate    float64          `json:"hit_rate"`
	Edge       float64          `json:"edge"` // hit_rate - overall
	AvgWin     float64          `json:"avg_score_win"`
	AvgLoss    float64          `json:"avg_score_loss"`
}

// attribute splits decisive picks by engine. An engine backs a pick when
// it was available and scored at or above the contract's qualifying
// threshold.
func (a *Analyzer) attribute(graded []contracts.PublishedPick, overall float64) []Attribution {
	threshold := a.contract.QualifyingThreshold
	attrs := make([]Attribution, 0, len(contracts.AllEngines()))

	for _, e := range contracts.AllEngines() {
		attr := Attribution{Engine: e}
		var hits, nWin, nLoss int
		var sumWin, sumLoss float64

		for i := range graded {
			p := &graded[i]
			hit, decisive := p.Hit()
			if !decisive {
				continue
			}
			es := p.Candidate.Engines.Get(e)
			if !es.Available {
				continue
			}
			if hit {
				sumWin += es.Score
				nWin++
			} else {
				sumLoss += es.Score
				nLoss++
			}
			if es.Score < threshold {
				continue
			}
			attr.Qualifying++
			if hit {
				hits++
			}
		}

		if attr.Qualifying > 0 {
			attr.HitRate = round4(float64(hits) / float64(attr.Qualifying))
			attr.Edge = round4(attr.HitRate - overall)
		}
		if nWin > 0 {
			attr.AvgWin = round4(sumWin / float64(nWin))
		}
		if nLoss > 0 {
			attr.AvgLoss = round4(sumLoss / float64(nLoss))
		}
		attrs = append(attrs, attr)
	}
	return attrs
}
