// Package main is the entry point for the augment-indexer CLI application.
// augment-indexer synchronizes a repository with its remote code search
// index, choosing between a full rebuild, an incremental update and a no-op
// on every run.
package main

import (
	"context"
	"os"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/logger"

	"github.com/augmentcode/augment-indexer/cmd"
	"github.com/augmentcode/augment-indexer/internal/adapters/augment"
	"github.com/augmentcode/augment-indexer/internal/adapters/git"
	"github.com/augmentcode/augment-indexer/internal/adapters/github"
	logadapter "github.com/augmentcode/augment-indexer/internal/adapters/logger"
	"github.com/augmentcode/augment-indexer/internal/adapters/output"
	"github.com/augmentcode/augment-indexer/internal/adapters/state"
	"github.com/augmentcode/augment-indexer/internal/domain"
	"github.com/augmentcode/augment-indexer/internal/infrastructure/config"
	"github.com/augmentcode/augment-indexer/internal/usecases"
)

func main() {
	// Create a single shared logger instance for the application
	zapLog := logger.NewZapLoggerFromConfig()
	adapter := logadapter.NewZapAdapter(zapLog)

	// Wire up production dependencies
	deps := &cmd.Dependencies{
		LoggerFactory: func() cmd.Logger {
			return adapter
		},

		ConfigLoader: func() (*cmd.AppConfig, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			return &cmd.AppConfig{
				Index:      cfg.Index,
				StatePath:  cfg.StatePath,
				Source:     cfg.Source,
				Workspace:  cfg.Workspace,
				LogLevel:   cfg.LogLevel,
				LogAppName: cfg.LogAppName,
			}, nil
		},

		RepoClientFactory: func(cfg *cmd.AppConfig, _ cmd.Logger) (domain.RepositoryClient, error) {
			if cfg.Source == config.SourceLocal {
				path := cfg.Workspace
				if path == "" {
					path = "."
				}
				return git.NewLocalRepository(path, adapter)
			}
			return github.NewClient(
				context.Background(),
				cfg.Index.GitHubToken,
				cfg.Index.Owner,
				cfg.Index.Repo,
				adapter,
			), nil
		},

		StateStoreFactory: func(cfg *cmd.AppConfig) domain.StateStore {
			if cfg.StatePath != "" {
				return state.NewFileStoreAt(cfg.StatePath)
			}
			return state.NewFileStore(state.DefaultRoot)
		},

		IndexProviderFactory: func(cfg *cmd.AppConfig) (domain.IndexProvider, error) {
			return augment.NewClient(cfg.Index.APIURL, cfg.Index.APIToken)
		},

		IndexerFactory: func(
			repo domain.RepositoryClient,
			store domain.StateStore,
			provider domain.IndexProvider,
			log cmd.Logger,
			cfg domain.IndexConfig,
		) domain.Indexer {
			return usecases.NewIndexManager(repo, store, provider, adapter, cfg)
		},

		OutputWriterFactory: func() domain.OutputWriter {
			return output.NewWriter()
		},

		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}

	cmd.SetDefaultDependencies(deps)
	cmd.Execute()
}
