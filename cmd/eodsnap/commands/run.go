package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsnap/internal/pipeline"
)

// runCmd runs the snapshot pipeline once
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "EOD 스냅샷 1회 실행",
	Long: `마지막 장 마감 세션의 종가와 옵션 체인을 수집해 확정합니다.

이 명령어는:
- 유니버스 로드 (또는 --rebuild-universe 시 재구성)
- 종가 시세 수집 → 가격 선택 → 저장
- 옵션 체인 수집 → 검증 → 저장
- 감사 기록 + 실행 요약 저장

이미 확정된 스냅샷은 덮어쓰지 않습니다 (--override 제외).

Example:
  go run ./cmd/eodsnap run
  go run ./cmd/eodsnap run --date 2025-01-10
  go run ./cmd/eodsnap run --dry-run`,
	RunE: runPipeline,
}

var (
	runRebuildUniverse bool
	runOverride        bool
	runDate            string
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runRebuildUniverse, "rebuild-universe", false, "유니버스 강제 재구성")
	runCmd.Flags().BoolVar(&runOverride, "override", false, "확정된 스냅샷 덮어쓰기 (관리자)")
	runCmd.Flags().StringVar(&runDate, "date", "", "거래일 YYYY-MM-DD (기본: 마지막 마감 세션)")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if runOverride {
		PrintWarning(out, "override: final snapshots of this trade date will be rewritten")
	}

	summary, err := a.orchestrator.Run(ctx, pipeline.Options{
		ForceRebuildUniverse: runRebuildUniverse,
		Override:             runOverride,
		TradeDate:            runDate,
	})
	if summary != nil {
		RenderRunSummary(out, summary)
	}
	if err != nil {
		PrintError(out, err.Error())
		return fmt.Errorf("snapshot run: %w", err)
	}

	PrintSuccess(out, fmt.Sprintf("Run %s completed: %d/%d symbols included", summary.RunID, summary.Included(), summary.Totals.Symbols))
	return nil
}
