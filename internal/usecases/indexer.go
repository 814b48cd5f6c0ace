package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/augmentcode/augment-indexer/internal/domain"
	"github.com/augmentcode/augment-indexer/internal/filter"
)

// Logger defines the logging interface required by the index manager.
// This abstracts the logger dependency to avoid coupling to a specific
// implementation.
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields map[string]interface{})
}

// IndexManager owns one indexing run: it loads the previous state, asks the
// decision engine for a verdict, routes to the full or incremental path,
// pushes the result to the external index and persists the new state.
type IndexManager struct {
	repo     domain.RepositoryClient
	store    domain.StateStore
	provider domain.IndexProvider
	logger   Logger

	config   domain.IndexConfig
	stateKey string
}

// NewIndexManager creates an IndexManager with the given collaborators.
// All dependencies are injected to support testing.
func NewIndexManager(
	repo domain.RepositoryClient,
	store domain.StateStore,
	provider domain.IndexProvider,
	log Logger,
	config domain.IndexConfig,
) *IndexManager {
	return &IndexManager{
		repo:     repo,
		store:    store,
		provider: provider,
		logger:   log,
		config:   config,
		stateKey: domain.SanitizeStateKey(config.Branch),
	}
}

// ResolveCommitSha resolves the configured ref (which may be "HEAD", a
// branch name or a tag) to a full commit SHA and records it as the run's
// current commit. A symbolic ref must never reach the state document.
func (m *IndexManager) ResolveCommitSha(ctx context.Context) (string, error) {
	sha, err := m.repo.ResolveRef(ctx, m.config.CurrentCommit)
	if err != nil {
		return "", fmt.Errorf("failed to resolve ref %q: %w", m.config.CurrentCommit, err)
	}
	m.config.CurrentCommit = sha
	return sha, nil
}

// Index performs one complete run. It never returns an error: every failure
// is converted into a structured result with Success=false, and state is
// only persisted after a successful push to the external index.
func (m *IndexManager) Index(ctx context.Context) *domain.IndexResult {
	m.logger.Info(ctx, "starting index run", map[string]interface{}{
		"repository": m.config.Owner + "/" + m.config.Repo,
		"branch":     m.config.Branch,
		"commit":     m.config.CurrentCommit,
	})

	result, err := m.run(ctx)
	if err != nil {
		m.logger.Error(ctx, "index run failed", err, map[string]interface{}{
			"repository": m.config.Owner + "/" + m.config.Repo,
			"commit":     m.config.CurrentCommit,
		})
		return &domain.IndexResult{
			Success:   false,
			Kind:      domain.IndexFull,
			CommitSha: m.config.CurrentCommit,
			Error:     err.Error(),
		}
	}
	return result
}

func (m *IndexManager) run(ctx context.Context) (*domain.IndexResult, error) {
	previous, err := m.loadState(ctx)
	if err != nil {
		return nil, err
	}

	decision, err := DecideReindex(ctx, previous, m.config, m.repo)
	if err != nil {
		return nil, err
	}

	switch decision.Kind {
	case domain.IndexNoChanges:
		m.logger.Info(ctx, "no changes detected", map[string]interface{}{
			"commit": m.config.CurrentCommit,
		})
		return &domain.IndexResult{
			Success:   true,
			Kind:      domain.IndexNoChanges,
			CommitSha: m.config.CurrentCommit,
		}, nil

	case domain.IndexFull:
		return m.fullReindex(ctx, decision.Reason)

	default:
		return m.incrementalUpdate(ctx, previous, decision.Comparison)
	}
}

// loadState reads the previous state document. A corrupt document is
// reported to the decision engine as an invalid-but-present state so the run
// degrades to a full re-index instead of failing.
func (m *IndexManager) loadState(ctx context.Context) (*domain.IndexState, error) {
	previous, err := m.store.Get(ctx, m.stateKey)
	if err != nil {
		if errors.Is(err, domain.ErrStateCorrupt) {
			m.logger.Warn(ctx, "state document is corrupt; forcing full re-index", map[string]interface{}{
				"state_key": m.stateKey,
				"error":     err.Error(),
			})
			return &domain.IndexState{}, nil
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	return previous, nil
}

// fullReindex downloads the complete repository snapshot, pushes every file
// that passes the filter to a fresh index, and persists the exported state.
func (m *IndexManager) fullReindex(ctx context.Context, reason string) (*domain.IndexResult, error) {
	m.logger.Info(ctx, "performing full re-index", map[string]interface{}{
		"reason": reason,
	})

	snapshot, err := m.collectSnapshot(ctx, m.config.CurrentCommit)
	if err != nil {
		return nil, err
	}

	m.logger.Info(ctx, "snapshot extracted", map[string]interface{}{
		"files_total":    snapshot.TotalEntries,
		"files_kept":     len(snapshot.Files),
		"files_filtered": snapshot.FilteredEntries,
		"filter_stats":   filterStatsFields(snapshot.FilterStats),
	})

	index, err := m.provider.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	added, err := index.AddToIndex(ctx, snapshot.Files)
	if err != nil {
		return nil, fmt.Errorf("failed to add files to index: %w", err)
	}
	m.logger.Debug(ctx, "files pushed to index", map[string]interface{}{
		"newly_uploaded":   added.NewlyUploaded,
		"already_uploaded": added.AlreadyUploaded,
	})

	exported, err := index.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export index state: %w", err)
	}

	repoInfo := domain.RepositoryInfo{Owner: m.config.Owner, Name: m.config.Repo}
	if err := m.persistState(ctx, exported, repoInfo); err != nil {
		return nil, err
	}

	return &domain.IndexResult{
		Success:       true,
		Kind:          domain.IndexFull,
		FilesIndexed:  len(snapshot.Files),
		CheckpointID:  exported.CheckpointID,
		CommitSha:     m.config.CurrentCommit,
		ReindexReason: reason,
	}, nil
}

// incrementalUpdate reconstructs the index from the previous opaque state
// (read-modify-write with the previous checkpoint as the base), applies the
// commit diff, and persists the new exported state.
func (m *IndexManager) incrementalUpdate(
	ctx context.Context,
	previous *domain.IndexState,
	cmp *domain.Comparison,
) (*domain.IndexResult, error) {
	m.logger.Info(ctx, "performing incremental update", map[string]interface{}{
		"base": previous.LastCommitSha,
		"head": m.config.CurrentCommit,
	})

	index, err := m.provider.Import(ctx, previous.ContextState)
	if err != nil {
		return nil, fmt.Errorf("failed to import previous index state: %w", err)
	}

	if cmp == nil {
		cmp, err = m.repo.Compare(ctx, previous.LastCommitSha, m.config.CurrentCommit)
		if err != nil {
			return nil, fmt.Errorf("commit comparison failed: %w", err)
		}
	}

	rules, err := m.repo.LoadIgnoreRules(ctx, m.config.CurrentCommit)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	pipeline := filter.NewPipeline(domain.DefaultMaxFileSize, rules)

	additions, deletions, skipped := m.partitionChanges(ctx, cmp.Files, pipeline)

	m.logger.Info(ctx, "applying incremental changes", map[string]interface{}{
		"additions": len(additions),
		"deletions": len(deletions),
		"skipped":   filterStatsFields(skipped),
	})

	if len(additions) > 0 {
		if _, err := index.AddToIndex(ctx, additions); err != nil {
			return nil, fmt.Errorf("failed to add files to index: %w", err)
		}
	}
	if len(deletions) > 0 {
		if err := index.RemoveFromIndex(ctx, deletions); err != nil {
			return nil, fmt.Errorf("failed to remove files from index: %w", err)
		}
	}

	exported, err := index.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to export index state: %w", err)
	}

	if err := m.persistState(ctx, exported, previous.Repository); err != nil {
		return nil, err
	}

	return &domain.IndexResult{
		Success:      true,
		Kind:         domain.IndexIncremental,
		FilesIndexed: len(additions),
		FilesDeleted: len(deletions),
		CheckpointID: exported.CheckpointID,
		CommitSha:    m.config.CurrentCommit,
	}, nil
}

// collectSnapshot streams the full tree at ref through the filter pipeline,
// accumulating per-reason rejection counters.
func (m *IndexManager) collectSnapshot(ctx context.Context, ref string) (*domain.Snapshot, error) {
	rules, err := m.repo.LoadIgnoreRules(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}
	pipeline := filter.NewPipeline(domain.DefaultMaxFileSize, rules)

	snapshot := &domain.Snapshot{
		FilterStats: make(map[domain.FilterReason]int),
	}

	err = m.repo.DownloadSnapshot(ctx, ref, func(path string, contents []byte) error {
		snapshot.TotalEntries++

		outcome := pipeline.Classify(path, contents)
		if !outcome.Allowed {
			snapshot.FilteredEntries++
			snapshot.FilterStats[outcome.Reason]++
			m.logger.Debug(ctx, "file filtered", map[string]interface{}{
				"path":   path,
				"reason": string(outcome.Reason),
				"detail": outcome.Detail,
			})
			return nil
		}

		snapshot.Files = append(snapshot.Files, domain.File{Path: path, Contents: string(contents)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot download failed: %w", err)
	}

	return snapshot, nil
}

// partitionChanges splits file changes into index additions and deletions.
// A rename contributes one deletion (the old path) and, when contents are
// available, one addition (the new path). Additions are re-checked against
// the filter pipeline so an incremental update never uploads a file a full
// re-index would have excluded.
func (m *IndexManager) partitionChanges(
	ctx context.Context,
	changes []domain.FileChange,
	pipeline *filter.Pipeline,
) (additions []domain.File, deletions []string, skipped map[domain.FilterReason]int) {
	skipped = make(map[domain.FilterReason]int)

	addIfAllowed := func(path string, contents *string) {
		if contents == nil {
			// Content fetch failed during comparison; already logged there.
			return
		}
		outcome := pipeline.Classify(path, []byte(*contents))
		if !outcome.Allowed {
			skipped[outcome.Reason]++
			m.logger.Debug(ctx, "changed file filtered", map[string]interface{}{
				"path":   path,
				"reason": string(outcome.Reason),
			})
			return
		}
		additions = append(additions, domain.File{Path: path, Contents: *contents})
	}

	for _, change := range changes {
		switch change.Status {
		case domain.StatusAdded, domain.StatusModified:
			addIfAllowed(change.Path, change.Contents)
		case domain.StatusRemoved:
			deletions = append(deletions, change.Path)
		case domain.StatusRenamed:
			if change.PreviousPath != "" {
				deletions = append(deletions, change.PreviousPath)
			}
			addIfAllowed(change.Path, change.Contents)
		}
	}
	return additions, deletions, skipped
}

// persistState atomically replaces the state document for this branch.
func (m *IndexManager) persistState(
	ctx context.Context,
	exported *domain.ExportedState,
	repoInfo domain.RepositoryInfo,
) error {
	state := &domain.IndexState{
		SchemaVersion: domain.StateSchemaVersion,
		ContextState:  exported.State,
		LastCommitSha: m.config.CurrentCommit,
		Repository:    repoInfo,
	}
	if err := m.store.Put(ctx, m.stateKey, state); err != nil {
		return fmt.Errorf("failed to persist state: %w", err)
	}
	m.logger.Debug(ctx, "state persisted", map[string]interface{}{
		"state_key":  m.stateKey,
		"commit":     state.LastCommitSha,
		"checkpoint": exported.CheckpointID,
	})
	return nil
}

// filterStatsFields renders a reason counter map for structured logging.
func filterStatsFields(stats map[domain.FilterReason]int) map[string]int {
	out := make(map[string]int, len(stats))
	for reason, count := range stats {
		out[string(reason)] = count
	}
	return out
}
