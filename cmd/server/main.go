// Package main is the compopedia binary.
//
//	compopedia                      run the web server (same as "serve")
//	compopedia migrate              apply database migrations and exit
//	compopedia prune-images         delete stale unattached uploads
//
// Configuration comes from the environment, optionally seeded from a .env
// file in the working directory (see internal/config).
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/compopedia/compopedia/internal/config"
	"github.com/compopedia/compopedia/internal/imaging"
	sqliteRepo "github.com/compopedia/compopedia/internal/repository/sqlite"
	"github.com/compopedia/compopedia/internal/server"
	"github.com/compopedia/compopedia/internal/service"
)

func main() {
	// A missing .env is normal; real environment variables still apply.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:          "compopedia",
		Short:        "A catalog of reusable UI components",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.SetOut(out)

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE:  runServe,
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and print the schema version",
		RunE:  runMigrate,
	})

	prune := &cobra.Command{
		Use:   "prune-images",
		Short: "Delete uploaded images that were never attached to a component",
		Long: `Delete images that are attached to no component and were uploaded
longer ago than --older-than. Uploads are stored before the component that
uses them, so a short grace period keeps in-progress forms working.`,
		RunE: runPrune,
	}
	prune.Flags().Duration("older-than", 24*time.Hour, "minimum age of an unattached image")
	root.AddCommand(prune)

	return root
}

// setup loads configuration and builds the logger every command shares.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return config.Config{}, nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openDB(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqliteRepo.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	return sqliteRepo.New(ctx, cfg.DBPath, logger)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	srv, err := server.Open(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		return err
	}
	defer srv.Close()

	logger.Info("listening", slog.String("url", fmt.Sprintf("http://localhost:%d", cfg.Port)))
	if err := srv.Run(cmd.Context()); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := openDB(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := db.SchemaVersion(cmd.Context(), logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
	return nil
}

func runPrune(cmd *cobra.Command, args []string) error {
	olderThan, err := cmd.Flags().GetDuration("older-than")
	if err != nil {
		return err
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := openDB(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	images := service.NewImageService(db, imaging.NewPool(imaging.NewProcessor(), cfg.ImageWorkers, logger), logger)
	n, err := images.PruneOrphans(cmd.Context(), olderThan)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %d orphan images\n", n)
	return nil
}
