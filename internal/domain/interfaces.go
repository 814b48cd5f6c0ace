// Package domain defines the core business entities and interfaces for augment-indexer.
// This package contains no external dependencies and represents the innermost layer
// of the CLEAN architecture.
package domain

import (
	"context"
	"encoding/json"
	"errors"
)

// Domain errors for repository access, state persistence and indexing.
var (
	// ErrRefResolution indicates a ref could not be resolved to a commit SHA.
	ErrRefResolution = errors.New("could not resolve ref to a commit")

	// ErrRepositoryNotFound indicates the specified path is not a valid Git
	// repository.
	ErrRepositoryNotFound = errors.New("git repository not found at specified path")

	// ErrHistoryDiverged indicates the base commit is no longer an ancestor
	// of the head commit; the previously indexed history was rewritten.
	ErrHistoryDiverged = errors.New("commit history diverged between base and head")

	// ErrNotAFile indicates a contents request resolved to a directory or
	// other non-file entry.
	ErrNotAFile = errors.New("path is not a file")

	// ErrStateCorrupt indicates a state document exists but cannot be decoded.
	ErrStateCorrupt = errors.New("state document is corrupt")

	// ErrMissingCredentials indicates a required bearer credential is absent.
	ErrMissingCredentials = errors.New("missing required credentials")
)

// IgnoreRules exposes the compiled .gitignore/.augmentignore matchers for
// one commit. Either rule set may be empty when the file is absent.
type IgnoreRules interface {
	// MatchesGitignore reports whether path is excluded by .gitignore.
	MatchesGitignore(path string) bool

	// MatchesAugmentignore reports whether path is excluded by .augmentignore.
	MatchesAugmentignore(path string) bool
}

// RepositoryClient abstracts the source of repository data: ref resolution,
// commit comparison, snapshot download and ignore-file access. One client is
// bound to a single owner/repo pair at construction.
//
// Two implementations exist: the hosting platform's REST API and the local
// checkout's object database.
type RepositoryClient interface {
	// ResolveRef resolves "HEAD", a branch name, a tag or a SHA to a full
	// 40-character commit SHA. Returns ErrRefResolution if unknown.
	ResolveRef(ctx context.Context, ref string) (string, error)

	// Compare diffs base..head into commit and file counts plus file-level
	// changes. For added/modified files the contents at head are fetched;
	// a per-file fetch failure keeps the change with nil Contents rather
	// than aborting the comparison. Returns ErrHistoryDiverged when base is
	// not an ancestor of head.
	Compare(ctx context.Context, base, head string) (*Comparison, error)

	// IgnoreFilesChanged reports whether .gitignore or .augmentignore is in
	// the changed-file set between base and head.
	IgnoreFilesChanged(ctx context.Context, base, head string) (bool, error)

	// IsForcePush reports whether base is no longer an ancestor of head.
	// Transient failures are returned as errors, not conflated with a
	// divergence verdict.
	IsForcePush(ctx context.Context, base, head string) (bool, error)

	// LoadIgnoreRules loads .gitignore and .augmentignore at ref.
	// Absence of either file is not an error; the rule set is empty.
	LoadIgnoreRules(ctx context.Context, ref string) (IgnoreRules, error)

	// DownloadSnapshot streams every regular file of the tree at ref through
	// fn. Paths are relative to the repository root. Returning an error from
	// fn aborts the walk.
	DownloadSnapshot(ctx context.Context, ref string, fn func(path string, contents []byte) error) error
}

// StateStore persists one IndexState document per branch key.
// The reference backend is a JSON file; any blob store satisfies the
// contract.
type StateStore interface {
	// Get returns the state for key, or (nil, nil) when no state exists.
	// Returns ErrStateCorrupt (wrapped) when a document exists but cannot
	// be decoded.
	Get(ctx context.Context, key string) (*IndexState, error)

	// Put replaces the state for key. The write is atomic: a failed Put
	// leaves any existing document untouched.
	Put(ctx context.Context, key string, state *IndexState) error
}

// ContextIndex is a handle on the external index service for one index.
type ContextIndex interface {
	// AddToIndex uploads files to the index.
	AddToIndex(ctx context.Context, files []File) (*AddResult, error)

	// RemoveFromIndex deletes paths from the index.
	RemoveFromIndex(ctx context.Context, paths []string) error

	// Export returns the opaque index state and its checkpoint ID.
	Export(ctx context.Context) (*ExportedState, error)
}

// IndexProvider creates index handles, either fresh or reconstructed from a
// previously exported opaque state blob.
type IndexProvider interface {
	// Create opens a fresh, empty index.
	Create(ctx context.Context) (ContextIndex, error)

	// Import reconstructs an index handle from an exported state blob.
	Import(ctx context.Context, state json.RawMessage) (ContextIndex, error)
}

// OutputWriter publishes the structured run result for CI consumption.
type OutputWriter interface {
	// WriteResult writes the result as CI output key/value pairs.
	WriteResult(result *IndexResult) error
}

// Indexer runs one complete indexing pass.
type Indexer interface {
	// ResolveCommitSha resolves the configured ref to a full SHA. Must be
	// called before Index so a symbolic ref is never persisted.
	ResolveCommitSha(ctx context.Context) (string, error)

	// Index performs the run. It never fails with an error: every failure
	// is converted into a result with Success=false.
	Index(ctx context.Context) *IndexResult
}
