// Package usecases contains the application business logic.
// This package orchestrates domain entities and interfaces to fulfill the
// indexing use case.
package usecases

import (
	"context"
	"fmt"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// Re-index reasons reported in the structured result.
const (
	ReasonFirstRun            = "first_run"
	ReasonStateInvalid        = "state_invalid"
	ReasonDifferentRepository = "different_repository"
	ReasonForcePush           = "force_push"
	ReasonIgnoreFilesChanged  = "ignore_files_changed"
)

// Decision is the verdict of the re-index decision engine.
type Decision struct {
	// Kind is full, incremental or no-changes.
	Kind domain.IndexKind

	// Reason explains a full re-index; empty otherwise.
	Reason string

	// Comparison holds the base..head comparison when one was computed, so
	// the incremental path does not have to repeat the call.
	Comparison *domain.Comparison
}

// DecideReindex determines whether the run needs a full re-index, an
// incremental update, or nothing at all. Checks are evaluated in strict
// priority order and the first match wins:
//
//  1. no previous state            -> full (first_run)
//  2. state missing required data  -> full (state_invalid)
//  3. state from another repo      -> full (different_repository)
//  4. same commit                  -> no-changes
//  5. history diverged             -> full (force_push)
//  6. too many commits or files    -> full (ceilings bound diff cost)
//  7. ignore files changed         -> full (file classification may flip)
//  8. otherwise                    -> incremental
//
// Force push is checked before diffing because a diverged history makes the
// commit-range comparison meaningless.
func DecideReindex(
	ctx context.Context,
	previous *domain.IndexState,
	config domain.IndexConfig,
	repo domain.RepositoryClient,
) (Decision, error) {
	if previous == nil {
		return Decision{Kind: domain.IndexFull, Reason: ReasonFirstRun}, nil
	}

	if !previous.Valid() {
		return Decision{Kind: domain.IndexFull, Reason: ReasonStateInvalid}, nil
	}

	if previous.Repository.Owner != config.Owner || previous.Repository.Name != config.Repo {
		return Decision{Kind: domain.IndexFull, Reason: ReasonDifferentRepository}, nil
	}

	if previous.LastCommitSha == config.CurrentCommit {
		return Decision{Kind: domain.IndexNoChanges}, nil
	}

	forcePush, err := repo.IsForcePush(ctx, previous.LastCommitSha, config.CurrentCommit)
	if err != nil {
		return Decision{}, fmt.Errorf("force-push check failed: %w", err)
	}
	if forcePush {
		return Decision{Kind: domain.IndexFull, Reason: ReasonForcePush}, nil
	}

	cmp, err := repo.Compare(ctx, previous.LastCommitSha, config.CurrentCommit)
	if err != nil {
		return Decision{}, fmt.Errorf("commit comparison failed: %w", err)
	}

	maxCommits := config.EffectiveMaxCommits()
	if cmp.CommitCount > maxCommits {
		return Decision{
			Kind:       domain.IndexFull,
			Reason:     fmt.Sprintf("too_many_commits (%d > %d)", cmp.CommitCount, maxCommits),
			Comparison: cmp,
		}, nil
	}

	maxFiles := config.EffectiveMaxFiles()
	if cmp.TotalFileChanges > maxFiles {
		return Decision{
			Kind:       domain.IndexFull,
			Reason:     fmt.Sprintf("too_many_files (%d > %d)", cmp.TotalFileChanges, maxFiles),
			Comparison: cmp,
		}, nil
	}

	ignoreChanged, err := repo.IgnoreFilesChanged(ctx, previous.LastCommitSha, config.CurrentCommit)
	if err != nil {
		return Decision{}, fmt.Errorf("ignore-file change check failed: %w", err)
	}
	if ignoreChanged {
		return Decision{Kind: domain.IndexFull, Reason: ReasonIgnoreFilesChanged, Comparison: cmp}, nil
	}

	return Decision{Kind: domain.IndexIncremental, Comparison: cmp}, nil
}
