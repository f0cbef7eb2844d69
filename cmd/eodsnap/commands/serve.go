package commands

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsnap/internal/api"
	"github.com/wonny/eodsnap/internal/api/handlers"
)

// serveCmd starts the read-only API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "조회 API 서버 시작",
	Long: `관리자 대시보드용 읽기 전용 REST API 서버를 시작합니다.

Endpoints:
  GET  /health
  GET  /metrics
  GET  /api/snapshots/{symbol}/close
  GET  /api/snapshots/{symbol}/calls
  GET  /api/snapshots/{symbol}/leaps
  GET  /api/runs/latest
  GET  /api/runs/{runID}/records
  GET  /api/universe/latest

Example:
  go run ./cmd/eodsnap serve
  go run ./cmd/eodsnap serve --port 8080`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&servePort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if servePort != "" {
		a.cfg.Port = servePort
	}

	server := api.New(a.cfg, a.log, a.router())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}

// router mounts every read handler on the wired stores
func (a *app) router() http.Handler {
	h := api.Handlers{
		Snapshots: handlers.NewSnapshotHandler(a.reader, a.log),
		Runs:      handlers.NewRunsHandler(a.auditRepo, a.log),
		Universe:  handlers.NewUniverseHandler(a.universeRepo, a.log),
	}
	if a.cfg.MetricsEnabled {
		h.Metrics = a.metrics.Handler()
	}
	return api.NewRouter(h, a.log)
}
