package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/confluence/internal/audit"
	"github.com/wonny/confluence/internal/contracts"
)

// reportCmd prints graded-pick performance
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "채점 성과 리포트",
	Long: `원장의 채점된 픽으로 성과를 집계합니다.

tier/스포츠/사이드별 적중률과 units(1u 고정 베팅 기준),
최대 낙폭, 엔진별 기여도를 출력합니다.

Example:
  go run ./cmd/confluence report --period 30D
  go run ./cmd/confluence report --period ALL --sport NBA --json`,
	RunE: runReport,
}

var (
	reportPeriod string
	reportSport  string
	reportJSON   bool
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportPeriod, "period", "30D", "7D, 30D, 90D, YTD, ALL")
	reportCmd.Flags().StringVar(&reportSport, "sport", "", "limit to one sport")
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "print the raw report as JSON")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	f := audit.Filter{Period: reportPeriod}
	if reportSport != "" {
		sport, err := contracts.ParseSport(reportSport)
		if err != nil {
			return err
		}
		f.Sport = sport
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := audit.NewAnalyzer(a.ledger, a.contract, a.log).Analyze(ctx, f)
	if err != nil {
		return err
	}
	if reportJSON {
		return PrintJSON(r)
	}

	scope := "all sports"
	if r.Sport != "" {
		scope = string(r.Sport)
	}
	PrintHeader("Performance "+r.Period, [][2]string{
		{"Scope", scope},
		{"Picks", fmt.Sprintf("%d (%d pending)", r.Overall.Picks, r.Overall.Pending)},
		{"Record", fmt.Sprintf("%d-%d-%d", r.Overall.Wins, r.Overall.Losses, r.Overall.Pushes)},
		{"Hit rate", fmt.Sprintf("%.1f%%", r.Overall.HitRate*100)},
		{"Units", fmt.Sprintf("%+.2f (ROI %+.1f%%)", r.Overall.Units, r.Overall.ROI*100)},
		{"Max drawdown", fmt.Sprintf("%.2fu", r.MaxDrawdown)},
		{"Loss streak", strconv.Itoa(r.LongestLosingStreak)},
	})

	widths := []int{10, 6, 10, 8, 8}
	PrintTableHeader([]string{"TIER", "PICKS", "W-L-P", "HIT", "UNITS"}, widths)
	for _, tier := range contracts.AllTiers() {
		rec, ok := r.ByTier[tier]
		if !ok {
			continue
		}
		printRecord(string(tier), rec, widths)
	}

	fmt.Println()
	sports := make([]string, 0, len(r.BySport))
	for s := range r.BySport {
		sports = append(sports, string(s))
	}
	sort.Strings(sports)
	PrintTableHeader([]string{"SPORT", "PICKS", "W-L-P", "HIT", "UNITS"}, widths)
	for _, s := range sports {
		printRecord(s, r.BySport[contracts.Sport(s)], widths)
	}

	fmt.Println()
	PrintTableHeader([]string{"ENGINE", "QUAL", "HIT", "EDGE", "W/L AVG"}, []int{10, 6, 8, 8, 12})
	for _, e := range r.Engines {
		PrintTableRow([]string{
			string(e.Engine),
			strconv.Itoa(e.Qualifying),
			fmt.Sprintf("%.3f", e.HitRate),
			fmt.Sprintf("%+.3f", e.Edge),
			fmt.Sprintf("%.1f/%.1f", e.AvgWin, e.AvgLoss),
		}, []int{10, 6, 8, 8, 12})
	}
	return nil
}

func printRecord(label string, rec audit.Record, widths []int) {
	PrintTableRow([]string{
		label,
		strconv.Itoa(rec.Picks),
		fmt.Sprintf("%d-%d-%d", rec.Wins, rec.Losses, rec.Pushes),
		fmt.Sprintf("%.3f", rec.HitRate),
		fmt.Sprintf("%+.2f", rec.Units),
	}, widths)
}
