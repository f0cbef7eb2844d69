package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsnap/internal/calendar"
	"github.com/wonny/eodsnap/pkg/config"
	"github.com/wonny/eodsnap/pkg/database"
	"github.com/wonny/eodsnap/pkg/redis"
)

// checkCmd verifies the runtime dependencies before a scheduled run
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "런타임 의존성 점검",
	Long: `실행 전에 의존성을 점검합니다.

이 명령어는:
- config 로드 및 검증
- PostgreSQL Ping + Health Check + Pool 통계
- Redis Ping (REDIS_ENABLED=true 일 때)
- 거래 캘린더 로드 및 올해 커버리지

Example:
  go run ./cmd/eodsnap check`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	PrintHeader(out, "eodsnap dependency check")

	cfg, err := config.Load()
	if err != nil {
		PrintError(out, err.Error())
		return fmt.Errorf("load config: %w", err)
	}
	PrintSuccess(out, fmt.Sprintf("Config loaded (ENV: %s)", cfg.Env))

	// calendar
	cal := calendar.NYSE()
	if err := cal.Err(); err != nil {
		PrintError(out, err.Error())
		return err
	}
	now := time.Now().In(cal.Location())
	if !cal.Covers(now) {
		PrintWarning(out, fmt.Sprintf("Trading calendar has no data for %d", now.Year()))
	} else {
		PrintSuccess(out, fmt.Sprintf("Trading calendar covers %d", now.Year()))
	}

	// database
	PrintKeyValue(out, "Database URL", maskPassword(cfg.Database.URL))
	db, err := database.New(cfg)
	if err != nil {
		PrintError(out, err.Error())
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		PrintError(out, err.Error())
		return fmt.Errorf("database health check: %w", err)
	}
	PrintSuccess(out, fmt.Sprintf("Database healthy (%v)", status.ResponseTime))
	PrintKeyValue(out, "Max conns", fmt.Sprintf("%d", status.Stats.MaxConns))
	PrintKeyValue(out, "Total conns", fmt.Sprintf("%d", status.Stats.TotalConns))
	PrintKeyValue(out, "Idle conns", fmt.Sprintf("%d", status.Stats.IdleConns))

	// redis
	rc, err := redis.New(ctx, cfg)
	if err != nil {
		PrintError(out, err.Error())
		return err
	}
	defer rc.Close()
	if rc.Enabled() {
		PrintSuccess(out, "Redis reachable")
	} else {
		PrintWarning(out, "Redis disabled: no close cache, local rate limits only")
	}

	PrintDoubleSeparator(out)
	return nil
}

// maskPassword hides the password of a connection URL
func maskPassword(raw string) string {
	if raw == "" {
		return "(not set)"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
