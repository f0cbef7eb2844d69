package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/eodsnap/pkg/config"
	"github.com/wonny/eodsnap/pkg/database"
)

// migrateCmd applies the snapshot schema
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 스키마 적용",
	Long: `snapshot 스키마와 5개 테이블을 생성합니다.
모든 구문이 IF NOT EXISTS 이므로 반복 실행해도 안전합니다.

Example:
  go run ./cmd/eodsnap migrate
  go run ./cmd/eodsnap migrate --print`,
	RunE: runMigrate,
}

var migratePrint bool

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "DDL 출력만 하고 적용하지 않음")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if migratePrint {
		fmt.Fprint(out, database.Schema())
		return nil
	}
	if dryRun {
		return errors.New("migrate has nothing to do in dry-run")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		PrintError(out, err.Error())
		return err
	}
	PrintSuccess(out, "Schema applied")
	return nil
}
