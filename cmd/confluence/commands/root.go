package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	strategyFile string
	env          string
	verbose      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "confluence",
	Short: "Confluence - 스포츠 픽 스코어링 엔진",
	Long: `Confluence Unified CLI

4개 엔진 점수를 가중 합산하고 modifier를 더해 tier를 매긴 뒤
공개 경계와 모순 게이트를 거쳐 픽을 발행합니다.
채점 결과로 스포츠별 가중치를 학습합니다 (S7).

Usage:
  go run ./cmd/confluence [command]

Examples:
  go run ./cmd/confluence score --input slate.json
  go run ./cmd/confluence grade --input results.json
  go run ./cmd/confluence learn --sport NBA
  go run ./cmd/confluence weights show --sport NBA
  go run ./cmd/confluence api
  go run ./cmd/confluence scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&strategyFile, "strategy", "", "strategy YAML (default: STRATEGY_FILE or built-in)")
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
