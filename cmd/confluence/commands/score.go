package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/confluence/internal/pipeline"
	"github.com/wonny/confluence/internal/s0_engines"
	"github.com/wonny/confluence/internal/strategyconfig"
)

// scoreCmd runs one scoring cycle over a JSON batch
var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "후보 배치 스코어링 (S0-S5)",
	Long: `JSON 배열의 후보(MatchContext)를 스코어링합니다.

이 명령어는:
- 엔진 점수 수집 및 가중 합산 (S0-S2)
- tier 분류 및 공개 경계 필터 (S3)
- 모순 게이트 적용 (S4)
- --publish 시 원장에 픽 기록 (S5)

Example:
  go run ./cmd/confluence score --input slate.json
  cat slate.json | go run ./cmd/confluence score --input - --publish`,
	RunE: runScore,
}

var (
	scoreInput   string
	scorePublish bool
	scoreJSON    bool
)

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringVar(&scoreInput, "input", "-", "candidate batch JSON file (- = stdin)")
	scoreCmd.Flags().BoolVar(&scorePublish, "publish", false, "write surviving picks to the ledger")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "print the raw run result as JSON")
}

func runScore(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	var batch []s0_engines.MatchContext
	if err := readInput(scoreInput, &batch); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.pipeline.Run(ctx, batch, pipeline.RunConfig{Publish: scorePublish})
	if err != nil {
		return fmt.Errorf("scoring run: %w", err)
	}
	if scoreJSON {
		return PrintJSON(res)
	}

	snap, err := strategyconfig.NewDecisionSnapshot(a.strategy, a.strategyYAML, "", res.Snapshot.WeightsVersion)
	if err != nil {
		return err
	}
	PrintHeader("Scoring Run", [][2]string{
		{"Run ID", res.RunID},
		{"Strategy", snap.StrategyID},
		{"Config hash", short(snap.ConfigHash)},
		{"Contract", short(snap.ContractHash)},
		{"Weights", snap.WeightsVersion},
		{"Candidates", strconv.Itoa(len(batch))},
	})

	printCandidates(res)

	if len(res.Failed) > 0 {
		PrintWarning(fmt.Sprintf("%d candidate(s) failed", len(res.Failed)))
		for _, f := range res.Failed {
			PrintKeyValue(f.CandidateID, f.Reason, 16)
		}
	}

	fmt.Println()
	if scorePublish {
		PrintSuccess(fmt.Sprintf("%d pick(s), %d newly published in %s", len(res.Picks), res.NewlyPublished, res.Duration.Round(time.Millisecond)))
	} else {
		PrintSuccess(fmt.Sprintf("%d pick(s) would publish (dry run) in %s", len(res.Kept), res.Duration.Round(time.Millisecond)))
	}
	return nil
}

func printCandidates(res *pipeline.RunResult) {
	status := make(map[string]string, len(res.Scored))
	for _, r := range res.Rejected {
		status[r.CandidateID] = "rejected: " + r.Reason
	}
	for _, c := range res.Blocked {
		status[c.ID] = "blocked by " + short(c.BlockedBy)
	}
	for _, c := range res.Kept {
		status[c.ID] = "kept"
	}

	widths := []int{14, 28, 6, 7, 10, 24}
	PrintTableHeader([]string{"ID", "SUBJECT", "SIDE", "FINAL", "TIER", "STATUS"}, widths)
	for i := range res.Scored {
		c := &res.Scored[i]
		PrintTableRow([]string{
			short(c.ID),
			truncate(c.Subject(), widths[1]),
			string(c.Side),
			fmt.Sprintf("%.2f", c.FinalScore),
			string(c.Tier),
			status[c.ID],
		}, widths)
	}
}

func short(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
