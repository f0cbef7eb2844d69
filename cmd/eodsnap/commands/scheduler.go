package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsnap/internal/scheduler"
	"github.com/wonny/eodsnap/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `EOD 스냅샷 트리거를 크론으로 실행합니다.

Subcommands:
  start   - 스케줄러 시작`,
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start",
	Short: "스케줄러 시작",
	Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- eod_snapshot: 평일 16:30 America/New_York (SCHEDULE_CRON), 휴장일 건너뜀
- universe_rebuild: 일요일 18:00 (유니버스 재구성)

METRICS_ENABLED=true 이면 METRICS_PORT 에서 /metrics 를 노출합니다.
스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
	RunE: runScheduler,
}

var schedulerRunNow bool

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerStartCmd.Flags().BoolVar(&schedulerRunNow, "run-now", false, "시작 직후 eod_snapshot 1회 실행")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, err := time.LoadLocation(a.cfg.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("load scheduler timezone %q: %w", a.cfg.Scheduler.Timezone, err)
	}

	s := scheduler.New(a.log, scheduler.Options{
		Location:   loc,
		MaxRetries: 3,
		RetryDelay: 5 * time.Minute,
	})

	snapshotJob := jobs.NewSnapshotJob(a.orchestrator, a.calendar, a.cfg.Scheduler.Cron, a.log)
	for _, job := range []scheduler.Job{snapshotJob, jobs.NewUniverseJob(a.universe, a.log)} {
		if err := s.AddJob(job); err != nil {
			return err
		}
	}

	var metricsServer *http.Server
	if a.cfg.MetricsEnabled {
		metricsServer = &http.Server{
			Addr:              ":" + a.cfg.MetricsPort,
			Handler:           a.metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	s.Start()
	for _, name := range s.GetAllJobs() {
		next, _ := s.NextRun(name)
		PrintKeyValue(out, name, next.In(loc).Format("2006-01-02 15:04 MST"))
	}
	if schedulerRunNow {
		if err := s.RunJob(snapshotJob.Name()); err != nil {
			return err
		}
	}
	PrintSuccess(out, "Scheduler running, press Ctrl+C to stop")

	<-ctx.Done()
	s.Stop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	return nil
}
