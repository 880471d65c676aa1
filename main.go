package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"campaign-orchestrator/config"
	"campaign-orchestrator/database"
	"campaign-orchestrator/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "campaign-orchestrator",
	Short: "Campaign lifecycle and build orchestration service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Production(), verbose)
		if err != nil {
			return err
		}
		if cfg.DotEnvMissing {
			logger.Info("no .env file found, using process environment")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the stale build sweeper",
	RunE:  serve,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		logger.Info("schema up to date")
		return closeDB(db)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-builds",
	Short: "Reclaim builds that outlived BUILD_TIMEOUT, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer closeDB(db)

		svc, err := newService(db, nil, nil)
		if err != nil {
			return err
		}
		n, err := svc.SweepStaleBuilds(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("sweep finished", zap.Int("reclaimed", n))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd, migrateCmd, sweepCmd)
}

func openDB() (*gorm.DB, error) {
	db, err := database.Open(cfg.DBURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func closeDB(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
