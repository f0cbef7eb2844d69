package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/pkg/logger"
)

// DefaultUniverseSchedule rebuilds on Sunday evening, before the week's first run
const DefaultUniverseSchedule = "0 0 18 * * SUN"

// UniverseLoader loads or rebuilds the universe version
type UniverseLoader interface {
	Load(ctx context.Context, forceRebuild bool) (*contracts.UniverseVersion, error)
}

// UniverseJob rebuilds the universe weekly
// ⭐ SSOT: Universe 재구성 스케줄은 이 Job에서만
type UniverseJob struct {
	loader UniverseLoader
	logger *logger.Logger
}

// NewUniverseJob creates a new universe job
func NewUniverseJob(loader UniverseLoader, log *logger.Logger) *UniverseJob {
	return &UniverseJob{
		loader: loader,
		logger: log.WithComponent("universe_job"),
	}
}

// Name returns the job name
func (j *UniverseJob) Name() string {
	return "universe_rebuild"
}

// Schedule returns the cron schedule (with seconds)
func (j *UniverseJob) Schedule() string {
	return DefaultUniverseSchedule
}

// Run rebuilds and saves a new universe version
func (j *UniverseJob) Run(ctx context.Context) error {
	u, err := j.loader.Load(ctx, true)
	if err != nil {
		return fmt.Errorf("rebuild universe: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"version":     u.VersionID,
		"symbols":     u.Count(),
		"tier_counts": u.TierCounts,
	}).Info("Universe rebuilt")
	return nil
}
