package commands

import (
	"github.com/spf13/cobra"
)

// runsCmd groups run history commands
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "실행 이력 조회",
}

var runsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "최신 실행 요약 조회",
	RunE:  showLatestRun,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsLatestCmd)
}

func showLatestRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.auditRepo.LatestSummary(ctx)
	if err != nil {
		PrintError(cmd.OutOrStdout(), err.Error())
		return err
	}
	RenderRunSummary(cmd.OutOrStdout(), s)
	return nil
}
