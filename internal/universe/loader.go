package universe

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/eodsnap/internal/contracts"
	"github.com/wonny/eodsnap/pkg/logger"
)

// Loader resolves the universe version a run scans
type Loader struct {
	builder *Builder
	repo    Repository
	logger  *logger.Logger
}

// NewLoader creates a loader
func NewLoader(builder *Builder, repo Repository, log *logger.Logger) *Loader {
	return &Loader{
		builder: builder,
		repo:    repo,
		logger:  log.WithComponent("universe"),
	}
}

// Load returns the latest persisted version, building one when none exists
// or when forceRebuild is set. Any error here is fatal to a run.
func (l *Loader) Load(ctx context.Context, forceRebuild bool) (*contracts.UniverseVersion, error) {
	if !forceRebuild {
		v, err := l.repo.Latest(ctx)
		if err == nil {
			l.logger.WithField("version", v.VersionID).Debug("Reusing universe version")
			return v, nil
		}
		if !errors.Is(err, ErrUniverseNotFound) {
			return nil, fmt.Errorf("load latest universe: %w", err)
		}
	}

	v, err := l.builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build universe: %w", err)
	}
	if err := l.repo.Save(ctx, v); err != nil {
		return nil, fmt.Errorf("save universe: %w", err)
	}
	return v, nil
}
