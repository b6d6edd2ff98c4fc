package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/confluence/internal/contracts"
)

// weightsCmd inspects learned weight tables
var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "학습된 가중치 조회",
}

var weightsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "스포츠별 가중치 출력",
	Long: `스포츠의 WeightConfig와 실제 적용 가중치를 출력합니다.

Example:
  go run ./cmd/confluence weights show --sport NBA
  go run ./cmd/confluence weights show --sport NBA --json`,
	RunE: runWeightsShow,
}

var (
	weightsSport string
	weightsJSON  bool
)

func init() {
	rootCmd.AddCommand(weightsCmd)
	weightsCmd.AddCommand(weightsShowCmd)

	weightsShowCmd.Flags().StringVar(&weightsSport, "sport", "", "sport to show (required)")
	weightsShowCmd.Flags().BoolVar(&weightsJSON, "json", false, "print the raw config as JSON")
	_ = weightsShowCmd.MarkFlagRequired("sport")
}

func runWeightsShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	sport, err := contracts.ParseSport(weightsSport)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := a.weights.Load(ctx, sport)
	if err != nil {
		return err
	}
	if weightsJSON {
		return PrintJSON(cfg)
	}

	eff, err := cfg.EffectiveWeights(a.contract)
	if err != nil {
		return err
	}

	updated := "never"
	if !cfg.LastUpdated.IsZero() {
		updated = cfg.LastUpdated.Format(time.RFC3339)
	}
	PrintHeader("Weights "+string(sport), [][2]string{
		{"Version", strconv.FormatInt(cfg.Version, 10)},
		{"Samples seen", strconv.Itoa(cfg.SamplesSeen)},
		{"Last updated", updated},
	})

	widths := []int{10, 8, 10, 10}
	PrintTableHeader([]string{"ENGINE", "BASE", "MULT", "EFFECTIVE"}, widths)
	for _, e := range contracts.AllEngines() {
		PrintTableRow([]string{
			string(e),
			fmt.Sprintf("%.2f", a.contract.BaseWeights[e]),
			fmt.Sprintf("%.2f", cfg.Multipliers[e]),
			fmt.Sprintf("%.4f", eff[e]),
		}, widths)
	}
	fmt.Println()
	for _, side := range []contracts.Side{contracts.SideOver, contracts.SideUnder} {
		PrintKeyValue(string(side), fmt.Sprintf("%+.2f", cfg.SideCalibration[side]), 8)
	}
	return nil
}
