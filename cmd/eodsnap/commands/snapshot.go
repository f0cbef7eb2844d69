package commands

import (
	"github.com/spf13/cobra"

	"github.com/wonny/eodsnap/internal/snapshot"
)

// snapshotCmd groups read commands over final snapshots
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "확정 스냅샷 조회",
	Long: `다운스트림 스캔과 같은 Reader로 확정된 스냅샷만 조회합니다.
기대 거래일의 스냅샷이 없으면 stale/not found 에러를 반환합니다.

Example:
  go run ./cmd/eodsnap snapshot close AAPL
  go run ./cmd/eodsnap snapshot calls AAPL --dte-max 45 --min-bid 0.5
  go run ./cmd/eodsnap snapshot leaps AAPL --min-delta 0.75`,
}

var (
	snapDate      string
	snapDTEMin    int
	snapDTEMax    int
	snapStrikeMin float64
	snapStrikeMax float64
	snapMinBid    float64
	snapMinDelta  float64
	snapMinOI     int64
)

var (
	snapshotCloseCmd = &cobra.Command{
		Use:   "close [symbol]",
		Short: "확정 종가 조회",
		Args:  cobra.ExactArgs(1),
		RunE:  showClose,
	}

	snapshotCallsCmd = &cobra.Command{
		Use:   "calls [symbol]",
		Short: "커버드콜 스캔용 콜 조회 (premium = bid)",
		Args:  cobra.ExactArgs(1),
		RunE:  showCalls,
	}

	snapshotLeapsCmd = &cobra.Command{
		Use:   "leaps [symbol]",
		Short: "PMCC용 ITM LEAPS 콜 조회 (premium = ask)",
		Args:  cobra.ExactArgs(1),
		RunE:  showLeaps,
	}
)

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotCloseCmd, snapshotCallsCmd, snapshotLeapsCmd)

	snapshotCmd.PersistentFlags().StringVar(&snapDate, "date", "", "거래일 YYYY-MM-DD (기본: 마지막 마감 세션)")
	snapshotCmd.PersistentFlags().IntVar(&snapDTEMin, "dte-min", 0, "최소 DTE")
	snapshotCmd.PersistentFlags().IntVar(&snapDTEMax, "dte-max", 0, "최대 DTE (0 = 제한 없음)")

	snapshotCallsCmd.Flags().Float64Var(&snapStrikeMin, "strike-min", 0, "최소 행사가/현재가 비율")
	snapshotCallsCmd.Flags().Float64Var(&snapStrikeMax, "strike-max", 0, "최대 행사가/현재가 비율 (0 = 제한 없음)")
	snapshotCallsCmd.Flags().Float64Var(&snapMinBid, "min-bid", 0, "최소 bid")

	snapshotLeapsCmd.Flags().Float64Var(&snapMinDelta, "min-delta", 0.70, "최소 추정 델타")
	snapshotLeapsCmd.Flags().Int64Var(&snapMinOI, "min-oi", 0, "최소 미결제약정")
}

func showClose(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.reader.GetCanonicalClose(ctx, args[0], snapDate)
	if err != nil {
		PrintError(cmd.OutOrStdout(), err.Error())
		return err
	}
	RenderQuote(cmd.OutOrStdout(), q)
	return nil
}

func showCalls(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.reader.GetValidCallsForScan(ctx, args[0], snapDate,
		snapshot.DTERange{Min: snapDTEMin, Max: snapDTEMax},
		snapshot.StrikeRange{Min: snapStrikeMin, Max: snapStrikeMax},
		snapMinBid)
	if err != nil {
		PrintError(cmd.OutOrStdout(), err.Error())
		return err
	}
	RenderChainView(cmd.OutOrStdout(), "calls", view)
	return nil
}

func showLeaps(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	view, err := a.reader.GetValidLeapsForPMCC(ctx, args[0], snapDate,
		snapshot.DTERange{Min: snapDTEMin, Max: snapDTEMax},
		snapMinDelta, snapMinOI)
	if err != nil {
		PrintError(cmd.OutOrStdout(), err.Error())
		return err
	}
	RenderChainView(cmd.OutOrStdout(), "LEAPS", view)
	return nil
}
