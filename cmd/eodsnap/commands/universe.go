package commands

import (
	"github.com/spf13/cobra"
)

// universeCmd groups universe commands
var universeCmd = &cobra.Command{
	Use:   "universe",
	Short: "유니버스 관리",
	Long: `스캔 대상 유니버스 버전을 조회하거나 재구성합니다.

Subcommands:
  rebuild - 후보 수집 → 필터 → 티어 분류 후 새 버전 저장
  show    - 최신 버전 조회`,
}

var (
	universeRebuildCmd = &cobra.Command{
		Use:   "rebuild",
		Short: "유니버스 재구성",
		RunE:  rebuildUniverse,
	}

	universeShowCmd = &cobra.Command{
		Use:   "show",
		Short: "최신 유니버스 조회",
		RunE:  showUniverse,
	}
)

func init() {
	rootCmd.AddCommand(universeCmd)
	universeCmd.AddCommand(universeRebuildCmd)
	universeCmd.AddCommand(universeShowCmd)
}

func rebuildUniverse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.universe.Load(ctx, true)
	if err != nil {
		PrintError(cmd.OutOrStdout(), err.Error())
		return err
	}
	RenderUniverse(cmd.OutOrStdout(), u)
	return nil
}

func showUniverse(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	u, err := a.universeRepo.Latest(ctx)
	if err != nil {
		PrintError(cmd.OutOrStdout(), err.Error())
		return err
	}
	RenderUniverse(cmd.OutOrStdout(), u)
	return nil
}
