// Package git implements domain.RepositoryClient against a local checkout
// using go-git/v5. It serves the same contract as the REST adapter without
// any API calls, which makes it the cheap option when the CI job already
// has a full-history clone.
package git

import (
	"context"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/augmentcode/augment-indexer/internal/domain"
	"github.com/augmentcode/augment-indexer/internal/filter"
)

// Logger defines the logging interface for the local git adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// LocalRepository implements domain.RepositoryClient using the local object
// database. Requires a full-history clone: with a shallow checkout the base
// commit of a comparison may be absent, which is indistinguishable from a
// force push.
type LocalRepository struct {
	repo   *git.Repository
	path   string
	logger Logger
}

// NewLocalRepository opens the repository at path.
// Returns domain.ErrRepositoryNotFound if the path is not a Git repository.
func NewLocalRepository(path string, log Logger) (*LocalRepository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrRepositoryNotFound, path)
	}
	return &LocalRepository{repo: repo, path: path, logger: log}, nil
}

// ResolveRef resolves "HEAD", a branch, a tag or a SHA to a full commit SHA.
func (r *LocalRepository) ResolveRef(ctx context.Context, ref string) (string, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return "", fmt.Errorf("%w: %q in %s: %v", domain.ErrRefResolution, ref, r.path, err)
	}
	return hash.String(), nil
}

// Compare diffs base..head using a tree diff with rename detection. File
// contents at head are read from the object database; a per-file read
// failure keeps the change with nil Contents.
func (r *LocalRepository) Compare(ctx context.Context, base, head string) (*domain.Comparison, error) {
	baseCommit, headCommit, err := r.commitPair(base, head)
	if err != nil {
		return nil, err
	}

	commitCount, err := r.countCommits(ctx, baseCommit, headCommit)
	if err != nil {
		return nil, err
	}

	changes, err := r.treeChanges(ctx, baseCommit, headCommit)
	if err != nil {
		return nil, err
	}

	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree at %s: %w", head, err)
	}

	files := make([]domain.FileChange, 0, len(changes))
	for _, change := range changes {
		fc, err := r.mapChange(ctx, change, headTree)
		if err != nil {
			return nil, err
		}
		files = append(files, fc)
	}

	return &domain.Comparison{
		CommitCount:      commitCount,
		TotalFileChanges: len(files),
		Files:            files,
	}, nil
}

// IgnoreFilesChanged reports whether .gitignore or .augmentignore changed
// between base and head.
func (r *LocalRepository) IgnoreFilesChanged(ctx context.Context, base, head string) (bool, error) {
	baseCommit, headCommit, err := r.commitPair(base, head)
	if err != nil {
		return false, err
	}
	changes, err := r.treeChanges(ctx, baseCommit, headCommit)
	if err != nil {
		return false, err
	}
	for _, change := range changes {
		if filter.IsIgnoreFile(change.From.Name) || filter.IsIgnoreFile(change.To.Name) {
			return true, nil
		}
	}
	return false, nil
}

// IsForcePush reports whether base is no longer an ancestor of head. A base
// commit absent from the object database also counts: a rewritten commit is
// eventually pruned.
func (r *LocalRepository) IsForcePush(ctx context.Context, base, head string) (bool, error) {
	headCommit, err := r.commit(head)
	if err != nil {
		return false, err
	}

	baseCommit, err := r.repo.CommitObject(plumbing.NewHash(base))
	if err != nil {
		if err == plumbing.ErrObjectNotFound {
			r.logger.Debug(ctx, "base commit not in object database; treating as force push", map[string]interface{}{
				"base": base,
			})
			return true, nil
		}
		return false, fmt.Errorf("failed to load commit %s: %w", base, err)
	}

	isAncestor, err := baseCommit.IsAncestor(headCommit)
	if err != nil {
		return false, fmt.Errorf("failed to check ancestry %s..%s: %w", base, head, err)
	}
	return !isAncestor, nil
}

// LoadIgnoreRules reads .gitignore and .augmentignore from the tree at ref.
// Absence of either file yields an empty rule set.
func (r *LocalRepository) LoadIgnoreRules(ctx context.Context, ref string) (domain.IgnoreRules, error) {
	commit, err := r.commit(ref)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree at %s: %w", ref, err)
	}
	return filter.CompileRuleSet(
		treeFileContents(tree, filter.GitignoreFile),
		treeFileContents(tree, filter.AugmentignoreFile),
	), nil
}

// DownloadSnapshot walks every regular file of the tree at ref.
func (r *LocalRepository) DownloadSnapshot(ctx context.Context, ref string, fn func(path string, contents []byte) error) error {
	commit, err := r.commit(ref)
	if err != nil {
		return err
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("failed to load tree at %s: %w", ref, err)
	}

	return tree.Files().ForEach(func(f *object.File) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if f.Mode != filemode.Regular && f.Mode != filemode.Executable {
			return nil
		}

		contents, err := f.Contents()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return fn(f.Name, []byte(contents))
	})
}

// commit resolves a ref or SHA to its commit object.
func (r *LocalRepository) commit(ref string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return nil, fmt.Errorf("%w: %q in %s: %v", domain.ErrRefResolution, ref, r.path, err)
	}
	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", hash, err)
	}
	return commit, nil
}

func (r *LocalRepository) commitPair(base, head string) (*object.Commit, *object.Commit, error) {
	baseCommit, err := r.commit(base)
	if err != nil {
		return nil, nil, err
	}
	headCommit, err := r.commit(head)
	if err != nil {
		return nil, nil, err
	}
	return baseCommit, headCommit, nil
}

// countCommits counts commits reachable from head but not from base.
// Returns domain.ErrHistoryDiverged when base is not an ancestor of head, so
// callers cannot misread a diverged range as a small diff.
func (r *LocalRepository) countCommits(ctx context.Context, baseCommit, headCommit *object.Commit) (int, error) {
	isAncestor, err := baseCommit.IsAncestor(headCommit)
	if err != nil {
		return 0, fmt.Errorf("failed to check ancestry: %w", err)
	}
	if !isAncestor {
		return 0, fmt.Errorf("%w: %s..%s", domain.ErrHistoryDiverged, baseCommit.Hash, headCommit.Hash)
	}

	count := 0
	iter := object.NewCommitPreorderIter(headCommit, nil, []plumbing.Hash{baseCommit.Hash})
	err = iter.ForEach(func(c *object.Commit) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		count++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk commits: %w", err)
	}
	return count, nil
}

// treeChanges diffs the trees of two commits with rename detection.
func (r *LocalRepository) treeChanges(ctx context.Context, baseCommit, headCommit *object.Commit) (object.Changes, error) {
	baseTree, err := baseCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load base tree: %w", err)
	}
	headTree, err := headCommit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load head tree: %w", err)
	}

	changes, err := object.DiffTreeWithOptions(ctx, baseTree, headTree, &object.DiffTreeOptions{
		DetectRenames: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}
	return changes, nil
}

// mapChange converts one tree change into a domain.FileChange, reading head
// contents for additions, modifications and renames. The change kind is
// derived from the entry names: an empty From is an addition, an empty To a
// removal, differing names a rename.
func (r *LocalRepository) mapChange(ctx context.Context, change *object.Change, headTree *object.Tree) (domain.FileChange, error) {
	fc := domain.FileChange{}
	switch {
	case change.From.Name == "":
		fc.Path = change.To.Name
		fc.Status = domain.StatusAdded
	case change.To.Name == "":
		fc.Path = change.From.Name
		fc.Status = domain.StatusRemoved
		fc.OldBlobID = change.From.TreeEntry.Hash.String()
	case change.From.Name != change.To.Name:
		fc.Path = change.To.Name
		fc.Status = domain.StatusRenamed
		fc.PreviousPath = change.From.Name
		fc.OldBlobID = change.From.TreeEntry.Hash.String()
	default:
		fc.Path = change.To.Name
		fc.Status = domain.StatusModified
		fc.OldBlobID = change.From.TreeEntry.Hash.String()
	}

	if fc.Status != domain.StatusRemoved {
		file, err := headTree.File(fc.Path)
		if err != nil {
			r.logger.Warn(ctx, "failed to read changed file; change kept without contents", map[string]interface{}{
				"path":  fc.Path,
				"error": err.Error(),
			})
			return fc, nil
		}
		contents, err := file.Contents()
		if err != nil {
			r.logger.Warn(ctx, "failed to read changed file; change kept without contents", map[string]interface{}{
				"path":  fc.Path,
				"error": err.Error(),
			})
			return fc, nil
		}
		fc.Contents = &contents
	}
	return fc, nil
}

// treeFileContents reads one file from a tree, returning "" when absent.
func treeFileContents(tree *object.Tree, path string) string {
	file, err := tree.File(path)
	if err != nil {
		return ""
	}
	contents, err := file.Contents()
	if err != nil {
		return ""
	}
	return contents
}
