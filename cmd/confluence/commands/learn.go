package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/confluence/internal/contracts"
	"github.com/wonny/confluence/internal/learner"
)

// learnCmd runs the weight learner once
var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "가중치 학습 1회 실행 (S7)",
	Long: `채점된 픽으로 스포츠별 가중치를 갱신합니다.

새 채점 픽이 없거나 표본이 부족하면 SKIPPED로 끝나며 아무것도 쓰지 않습니다.
같은 스포츠의 다른 learner가 실행 중이면 lock 에러로 실패합니다.

Example:
  go run ./cmd/confluence learn --sport NBA
  go run ./cmd/confluence learn            # LEARNER_SPORTS 전체`,
	RunE: runLearn,
}

var learnSport string

func init() {
	rootCmd.AddCommand(learnCmd)

	learnCmd.Flags().StringVar(&learnSport, "sport", "", "sport to learn (default: all LEARNER_SPORTS)")
}

func runLearn(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sports := a.sports
	if learnSport != "" {
		sport, err := contracts.ParseSport(learnSport)
		if err != nil {
			return err
		}
		sports = []contracts.Sport{sport}
	}

	reports, runErr := a.learner.RunAll(ctx, sports)
	for _, r := range reports {
		printReport(r)
	}
	if errors.Is(runErr, contracts.ErrLocked) {
		PrintError("another learner run holds the lock")
	}
	return runErr
}

func printReport(r *learner.Report) {
	kv := [][2]string{
		{"State", string(r.State)},
		{"New picks", strconv.Itoa(r.NewPicks)},
	}
	if r.Reason != "" {
		kv = append(kv, [2]string{"Reason", r.Reason})
	}
	if r.State != learner.StateSkipped {
		kv = append(kv,
			[2]string{"Window", strconv.Itoa(r.WindowSize)},
			[2]string{"Baseline", fmt.Sprintf("%.3f", r.Baseline)},
			[2]string{"OVER", fmt.Sprintf("%d/%d (%.3f)", r.Over.Hits, r.Over.Samples, r.Over.HitRate)},
			[2]string{"UNDER", fmt.Sprintf("%d/%d (%.3f)", r.Under.Hits, r.Under.Samples, r.Under.HitRate)},
			[2]string{"Version", fmt.Sprintf("%d → %d", r.VersionBefore, r.VersionAfter)},
		)
	}
	PrintHeader("Learner "+string(r.Sport), kv)

	if r.SideAdjusted {
		for _, side := range []contracts.Side{contracts.SideOver, contracts.SideUnder} {
			PrintKeyValue(string(side), fmt.Sprintf("%+.2f → %+.2f", r.SideBefore[side], r.SideAfter[side]), 8)
		}
	}

	engines := append([]learner.EngineEdge(nil), r.Engines...)
	sort.Slice(engines, func(i, j int) bool { return engines[i].Engine < engines[j].Engine })
	for _, e := range engines {
		if !e.Adjusted {
			continue
		}
		PrintKeyValue(string(e.Engine), fmt.Sprintf("%.2f → %.2f (edge %+.3f over %d)", e.Before, e.After, e.Edge, e.Endorsements), 8)
	}
}
