package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/internal/pipeline"
	"github.com/wonny/eodsnap/pkg/logger"
)

// DefaultSnapshotSchedule fires 30 minutes after the regular close
const DefaultSnapshotSchedule = "0 30 16 * * MON-FRI"

// PipelineRunner runs one snapshot pipeline
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.Options) (*contracts.RunSummary, error)
}

// SnapshotJob triggers the end-of-day snapshot run
// ⭐ SSOT: EOD 스냅샷 스케줄은 이 Job에서만
type SnapshotJob struct {
	runner   PipelineRunner
	calendar *calendar.Calendar
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewSnapshotJob creates a new snapshot job
func NewSnapshotJob(runner PipelineRunner, cal *calendar.Calendar, schedule string, log *logger.Logger) *SnapshotJob {
	if schedule == "" {
		schedule = DefaultSnapshotSchedule
	}
	return &SnapshotJob{
		runner:   runner,
		calendar: cal,
		schedule: schedule,
		logger:   log.WithComponent("snapshot_job"),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "eod_snapshot"
}

// Schedule returns the cron schedule (with seconds)
func (j *SnapshotJob) Schedule() string {
	return j.schedule
}

// Run executes the pipeline for today's session.
// Holidays are skipped; a session that has not closed yet is an error.
func (j *SnapshotJob) Run(ctx context.Context) error {
	now := j.now().In(j.calendar.Location())
	day := calendar.FormatDate(now)

	if err := j.calendar.Err(); err != nil {
		return fmt.Errorf("calendar: %w", err)
	}
	if !j.calendar.IsTradingDay(now) {
		j.logger.WithFields(map[string]interface{}{
			"date":    day,
			"holiday": j.calendar.HolidayName(now),
		}).Info("Not a trading day, snapshot skipped")
		return nil
	}

	summary, err := j.runner.Run(ctx, pipeline.Options{TradeDate: day})
	if err != nil {
		return fmt.Errorf("snapshot run %s: %w", day, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":   summary.RunID,
		"included": summary.Included(),
		"symbols":  summary.Totals.Symbols,
	}).Info("Scheduled snapshot completed")
	return nil
}
