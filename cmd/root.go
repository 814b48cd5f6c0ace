// Package cmd provides the CLI commands for augment-indexer.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// Logger defines the logging interface used by the command.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// AppConfig holds application configuration loaded by ConfigLoader.
type AppConfig struct {
	// Index holds the per-run indexing parameters.
	Index domain.IndexConfig

	// StatePath, when non-empty, pins the state document to one file.
	StatePath string

	// Source selects the repository data source ("api" or "local").
	Source string

	// Workspace is the local checkout path for the local source.
	Workspace string

	// LogLevel is the log level setting.
	LogLevel string

	// LogAppName is the application name for logging.
	LogAppName string
}

// Dependencies holds all injectable dependencies for the command.
// This enables testing by allowing mock implementations to be injected.
type Dependencies struct {
	// LoggerFactory creates a logger instance.
	LoggerFactory func() Logger

	// ConfigLoader loads application configuration.
	ConfigLoader func() (*AppConfig, error)

	// RepoClientFactory creates the repository data source for the run.
	RepoClientFactory func(cfg *AppConfig, log Logger) (domain.RepositoryClient, error)

	// StateStoreFactory creates the state persistence backend.
	StateStoreFactory func(cfg *AppConfig) domain.StateStore

	// IndexProviderFactory creates the context index service client.
	IndexProviderFactory func(cfg *AppConfig) (domain.IndexProvider, error)

	// IndexerFactory creates the Indexer with its collaborators.
	IndexerFactory func(
		repo domain.RepositoryClient,
		store domain.StateStore,
		provider domain.IndexProvider,
		log Logger,
		cfg domain.IndexConfig,
	) domain.Indexer

	// OutputWriterFactory creates an OutputWriter.
	OutputWriterFactory func() domain.OutputWriter

	// Stdout is the writer for standard output.
	Stdout io.Writer

	// Stderr is the writer for standard error (for warnings/errors).
	Stderr io.Writer
}

// Command-line flags.
var (
	statePath  string
	maxCommits int
	maxFiles   int
	source     string
	verbose    bool
)

// defaultDeps holds the production dependencies.
// This is set by the production wiring in main or via SetDefaultDependencies.
var defaultDeps *Dependencies

// SetDefaultDependencies sets the default dependencies for production use.
// This should be called from main() before Execute().
func SetDefaultDependencies(deps *Dependencies) {
	defaultDeps = deps
}

// NewRootCmd creates the root command for augment-indexer.
func NewRootCmd() *cobra.Command {
	return NewRootCmdWithDeps(defaultDeps)
}

// NewRootCmdWithDeps creates the root command with explicit dependencies.
// This is the primary constructor that enables testing via dependency injection.
func NewRootCmdWithDeps(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "augment-indexer",
		Short: "Synchronize a repository with its remote code search index",
		Long: `augment-indexer keeps a remote code search index in sync with a repository.

On each run it compares the commit to index against the previously indexed
commit and either uploads only the changed files, rebuilds the index from a
full snapshot, or does nothing when the commit is unchanged. The outcome is
published as CI step outputs (success, type, files_indexed, files_deleted,
checkpoint_id, commit_sha).

Configuration comes from the environment: GITHUB_REPOSITORY, GITHUB_TOKEN,
AUGMENT_API_TOKEN and AUGMENT_API_URL at minimum.

Examples:
  # Index the commit the workflow ran for
  augment-indexer

  # Index from the local checkout instead of the GitHub API
  augment-indexer --source local

  # Keep state in an explicit file
  augment-indexer --state-path /tmp/index-state.json

  # Enable verbose logging
  augment-indexer -v`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd, deps)
		},
	}

	// Define flags
	rootCmd.Flags().StringVar(&statePath, "state-path", "",
		"Explicit path for the state document (overrides per-branch layout)")
	rootCmd.Flags().IntVar(&maxCommits, "max-commits", 0,
		"Commit-count ceiling for incremental updates (0 uses the default)")
	rootCmd.Flags().IntVar(&maxFiles, "max-files", 0,
		"Changed-file ceiling for incremental updates (0 uses the default)")
	rootCmd.Flags().StringVar(&source, "source", "",
		"Repository data source: api or local (default api)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable verbose/debug logging")

	return rootCmd
}

// runIndex executes one indexing run with injected dependencies.
// Every failure past flag parsing is still published as a structured result
// so workflow steps downstream always see an outcome.
func runIndex(cmd *cobra.Command, deps *Dependencies) error {
	if deps == nil {
		return errors.New("dependencies not configured")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stderr := deps.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	// Set log level based on verbose flag (best-effort)
	if verbose {
		if err := os.Setenv("LOG_LEVEL", "debug"); err != nil {
			writeWarningf(stderr, "warning: could not set log level: %v\n", err)
		}
	}

	// Initialize logger
	log := deps.LoggerFactory()

	// Load configuration and fold flag overrides in
	cfg, err := deps.ConfigLoader()
	if err != nil {
		log.Error(ctx, "failed to load configuration", err, nil)
		return fmt.Errorf("configuration error: %w", err)
	}
	applyFlagOverrides(cfg)

	log.Info(ctx, "starting augment-indexer", map[string]interface{}{
		"repository": cfg.Index.Owner + "/" + cfg.Index.Repo,
		"branch":     cfg.Index.Branch,
		"ref":        cfg.Index.CurrentCommit,
		"source":     cfg.Source,
	})

	// Initialize repository data source
	repo, err := deps.RepoClientFactory(cfg, log)
	if err != nil {
		log.Error(ctx, "failed to create repository client", err, nil)
		if errors.Is(err, domain.ErrRepositoryNotFound) {
			return fmt.Errorf("not a git repository: %s", cfg.Workspace)
		}
		return err
	}

	// Initialize index service client
	provider, err := deps.IndexProviderFactory(cfg)
	if err != nil {
		log.Error(ctx, "failed to create index service client", err, nil)
		return fmt.Errorf("index service error: %w", err)
	}

	store := deps.StateStoreFactory(cfg)
	indexer := deps.IndexerFactory(repo, store, provider, log, cfg.Index)
	writer := deps.OutputWriterFactory()

	// Resolve the ref up front so a symbolic ref never reaches the state
	// document. A resolution failure is still a publishable result.
	sha, err := indexer.ResolveCommitSha(ctx)
	if err != nil {
		log.Error(ctx, "failed to resolve commit", err, map[string]interface{}{
			"ref": cfg.Index.CurrentCommit,
		})
		result := &domain.IndexResult{
			Success:   false,
			Kind:      domain.IndexFull,
			CommitSha: cfg.Index.CurrentCommit,
			Error:     err.Error(),
		}
		if writeErr := writer.WriteResult(result); writeErr != nil {
			log.Error(ctx, "failed to write output", writeErr, nil)
		}
		return fmt.Errorf("commit resolution error: %w", err)
	}

	result := indexer.Index(ctx)

	if err := writer.WriteResult(result); err != nil {
		log.Error(ctx, "failed to write output", err, nil)
		return fmt.Errorf("output error: %w", err)
	}

	if !result.Success {
		log.Error(ctx, "indexing run failed", errors.New(result.Error), map[string]interface{}{
			"commit_sha": sha,
		})
		return fmt.Errorf("indexing failed: %s", result.Error)
	}

	log.Info(ctx, "indexing run complete", map[string]interface{}{
		"type":          string(result.Kind),
		"files_indexed": result.FilesIndexed,
		"files_deleted": result.FilesDeleted,
		"checkpoint_id": result.CheckpointID,
		"commit_sha":    result.CommitSha,
	})

	return nil
}

// applyFlagOverrides folds explicit command-line flags into the loaded
// configuration. Flags win over environment settings.
func applyFlagOverrides(cfg *AppConfig) {
	if statePath != "" {
		cfg.StatePath = statePath
	}
	if maxCommits > 0 {
		cfg.Index.MaxCommits = maxCommits
	}
	if maxFiles > 0 {
		cfg.Index.MaxFiles = maxFiles
	}
	if source != "" {
		cfg.Source = source
	}
}

// Execute runs the root command.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// writeWarningf writes a warning message to the given writer.
// Errors are ignored because there is no recovery action if stderr
// writes fail.
func writeWarningf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		return
	}
}
