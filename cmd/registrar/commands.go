package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/yigit/registrar/internal/app/jobs"
	"github.com/yigit/registrar/internal/app/migrations"
	"github.com/yigit/registrar/internal/app/models"
	"github.com/yigit/registrar/internal/bootstrap"
	"github.com/yigit/registrar/internal/db"
	"github.com/yigit/registrar/internal/pkg/helpers"
	"github.com/yigit/registrar/internal/pkg/queue"
	"github.com/yigit/registrar/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the job workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := server.NewServer(opts.configPath)
			if err != nil {
				return err
			}
			return srv.Run()
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrate requires the postgres driver, got %q", cfg.Database.Driver)
			}

			database, err := db.NewPostgresDB(cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			migrator := migrations.NewMigrator(database.Pool)
			files, err := migrator.Files()
			if err != nil {
				return err
			}
			if err := migrator.Up(cmd.Context()); err != nil {
				return err
			}
			lgr.Info().Int("files", len(files)).Msg("Migrations applied")
			return nil
		},
	}
}

type importOptions struct {
	sectionID int64
	wait      time.Duration
}

func newImportCmd(root *rootOptions) *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run a CSV import synchronously and print its outcome",
	}
	cmd.PersistentFlags().DurationVar(&opts.wait, "drain", 5*time.Second, "how long to wait for queued notifications before exiting")

	courses := &cobra.Command{
		Use:   "courses <file.csv>",
		Short: "Import the course catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, root, opts, args[0], func(deps *bootstrap.Dependencies, path, importID string) (models.ImportOutcome, error) {
				return deps.CourseImporter.Run(cmd.Context(), path, importID)
			})
		},
	}

	grades := &cobra.Command{
		Use:   "grades <file.csv>",
		Short: "Import a grade roster for one section",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.sectionID <= 0 {
				return errors.New("--section must be a positive id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, root, opts, args[0], func(deps *bootstrap.Dependencies, path, importID string) (models.ImportOutcome, error) {
				return deps.GradeImporter.Run(cmd.Context(), path, importID, opts.sectionID)
			})
		},
	}
	grades.Flags().Int64Var(&opts.sectionID, "section", 0, "course section id (required)")
	_ = grades.MarkFlagRequired("section")

	cmd.AddCommand(courses, grades)
	return cmd
}

type importRunner func(deps *bootstrap.Dependencies, path, importID string) (models.ImportOutcome, error)

// runImport copies the local file into storage, runs the importer in the
// foreground and drains any notifications it queued.
func runImport(cmd *cobra.Command, root *rootOptions, opts *importOptions, file string, run importRunner) error {
	if !strings.EqualFold(filepath.Ext(file), ".csv") {
		return fmt.Errorf("%s: only CSV files are accepted", file)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(root.configPath)
	if err != nil {
		return err
	}
	deps, err := bootstrap.BuildDependencies(cfg, lgr)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.Pool.Start(cmd.Context())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), opts.wait)
		defer cancel()
		drainMemoryBroker(ctx, deps.Broker)
		if err := deps.Pool.Stop(ctx); err != nil {
			lgr.Warn().Err(err).Msg("Queued jobs were not drained")
		}
	}()

	importID := jobs.NewImportID()
	path := filepath.ToSlash(filepath.Join(cfg.Storage.UploadDir, importID+".csv"))
	if err := deps.FileStorage.Write(path, data); err != nil {
		return err
	}

	outcome, err := run(deps, path, importID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), outcome)
}

// drainMemoryBroker waits for buffered jobs to be picked up. A Redis broker
// keeps its jobs for the next worker, so only the in-memory one is drained.
func drainMemoryBroker(ctx context.Context, broker queue.Broker) {
	mb, ok := broker.(*queue.MemoryBroker)
	if !ok {
		return
	}
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for mb.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type failedJobsOptions struct {
	page int
	size int
}

func newFailedJobsCmd(root *rootOptions) *cobra.Command {
	opts := &failedJobsOptions{}

	cmd := &cobra.Command{
		Use:   "failed-jobs",
		Short: "List dead-lettered jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger(root.configPath)
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return errors.New("failed jobs are only persisted with the postgres driver")
			}
			deps, err := bootstrap.BuildDependencies(cfg, lgr)
			if err != nil {
				return err
			}
			defer deps.Close()

			offset, limit := helpers.CalculateOffsetLimit(opts.page, opts.size)
			items, total, err := deps.Repos.FailedJobs.List(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"items":      items,
				"pagination": helpers.NewPaginationInfo(total, opts.page, opts.size),
			})
		},
	}
	cmd.Flags().IntVar(&opts.page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.size, "size", helpers.DefaultPageSize, "page size")
	return cmd
}
