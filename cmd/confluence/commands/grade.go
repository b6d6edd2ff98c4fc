package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/confluence/internal/contracts"
)

// gradeCmd applies a grading feed to the ledger
var gradeCmd = &cobra.Command{
	Use:   "grade",
	Short: "픽 채점 결과 반영 (S6)",
	Long: `채점 피드(JSON 배열)를 원장에 반영합니다.

각 항목: {"pick_id": "...", "result": "WIN|LOSS|PUSH", "actual_value": 27}
이미 채점된 픽이나 알 수 없는 pick_id는 사유와 함께 거부됩니다.

Example:
  go run ./cmd/confluence grade --input results.json`,
	RunE: runGrade,
}

var gradeInput string

func init() {
	rootCmd.AddCommand(gradeCmd)

	gradeCmd.Flags().StringVar(&gradeInput, "input", "-", "grading feed JSON file (- = stdin)")
}

func runGrade(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	var inputs []contracts.GradeInput
	if err := readInput(gradeInput, &inputs); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.ledger.Grade(ctx, inputs)
	if err != nil {
		return fmt.Errorf("grade: %w", err)
	}

	PrintSuccess(fmt.Sprintf("%d of %d grade(s) accepted", len(report.Accepted), len(inputs)))
	if len(report.Rejected) > 0 {
		PrintWarning(fmt.Sprintf("%d grade(s) rejected", len(report.Rejected)))
		for _, r := range report.Rejected {
			PrintKeyValue(short(r.PickID), r.Reason, 14)
		}
	}
	return nil
}
