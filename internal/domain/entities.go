// Package domain defines the core business entities and interfaces for augment-indexer.
package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Default thresholds for the incremental indexing decision.
const (
	// DefaultMaxCommits is the maximum number of commits between the last
	// indexed commit and the current one before a full re-index is forced.
	DefaultMaxCommits = 100

	// DefaultMaxFiles is the maximum number of changed files between commits
	// before a full re-index is forced.
	DefaultMaxFiles = 500

	// DefaultMaxFileSize is the maximum size in bytes of a single file that
	// may be uploaded to the index. The limit is inclusive.
	DefaultMaxFileSize = 1024 * 1024
)

// StateSchemaVersion is the version written into persisted state documents.
// Readers treat an absent version as 1.
const StateSchemaVersion = 1

// IndexConfig holds the configuration for one indexing run.
// It is populated once at startup and treated as immutable, except for
// CurrentCommit which is replaced with the resolved SHA before any
// decision is made.
type IndexConfig struct {
	// APIToken is the bearer credential for the context index service.
	APIToken string

	// APIURL is the tenant-specific base URL of the context index service.
	APIURL string

	// GitHubToken is the bearer credential for the hosting platform API.
	GitHubToken string

	// Owner is the repository owner.
	Owner string

	// Repo is the repository name.
	Repo string

	// Branch is the branch being indexed. Used only to derive the state key.
	Branch string

	// CurrentCommit is the ref to index. May start as a symbolic ref such as
	// "HEAD" or a branch name; it must be resolved to a full SHA before the
	// run proceeds.
	CurrentCommit string

	// MaxCommits is the commit-count ceiling for incremental updates.
	// Zero means DefaultMaxCommits.
	MaxCommits int

	// MaxFiles is the changed-file ceiling for incremental updates.
	// Zero means DefaultMaxFiles.
	MaxFiles int
}

// EffectiveMaxCommits returns MaxCommits with the default applied.
func (c IndexConfig) EffectiveMaxCommits() int {
	if c.MaxCommits > 0 {
		return c.MaxCommits
	}
	return DefaultMaxCommits
}

// EffectiveMaxFiles returns MaxFiles with the default applied.
func (c IndexConfig) EffectiveMaxFiles() int {
	if c.MaxFiles > 0 {
		return c.MaxFiles
	}
	return DefaultMaxFiles
}

// RepositoryInfo identifies a repository. Persisted in IndexState so a run
// can detect that the state belongs to a different repository.
type RepositoryInfo struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

// String renders the repository identity as owner/name.
func (r RepositoryInfo) String() string {
	return fmt.Sprintf("%s/%s", r.Owner, r.Name)
}

// fullCommitSHA matches a fully resolved 40-character commit hash.
var fullCommitSHA = regexp.MustCompile(`^[0-9a-f]{40}$`)

// IndexState is the document persisted between runs. It is created on the
// first successful full index, read at the start of every run, and replaced
// atomically at the end of every successful run.
type IndexState struct {
	// SchemaVersion is the state document version. Absent means 1.
	SchemaVersion int `json:"schemaVersion,omitempty"`

	// ContextState is the opaque exported state of the context index
	// service. It is passed through untouched.
	ContextState json.RawMessage `json:"contextState"`

	// LastCommitSha is the last indexed commit. Always a full resolved
	// 40-character hash, never a symbolic ref.
	LastCommitSha string `json:"lastCommitSha"`

	// Repository identifies the repository the state belongs to.
	Repository RepositoryInfo `json:"repository"`
}

// Valid reports whether the state document carries every field a run
// depends on. A document that fails this check is treated as absent and
// forces a full re-index.
func (s *IndexState) Valid() bool {
	if s == nil {
		return false
	}
	if !fullCommitSHA.MatchString(s.LastCommitSha) {
		return false
	}
	if s.Repository.Owner == "" || s.Repository.Name == "" {
		return false
	}
	return len(s.ContextState) > 0
}

// ChangeStatus classifies a file change produced by a commit comparison.
type ChangeStatus string

// File change statuses.
const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusRemoved  ChangeStatus = "removed"
	StatusRenamed  ChangeStatus = "renamed"
)

// FileChange is one file-level change between two commits.
// Contents is populated only for Added/Modified (and the new path of a
// rename); PreviousPath only for Renamed.
type FileChange struct {
	// Path is the file path at the head commit.
	Path string

	// Status is the change classification.
	Status ChangeStatus

	// PreviousPath is the old path for renamed files.
	PreviousPath string

	// Contents holds the file contents at head for added/modified files.
	// Nil when the per-file content fetch failed; such changes are kept in
	// the list but never uploaded.
	Contents *string

	// OldBlobID is the blob identifier at the base commit, when known.
	OldBlobID string
}

// Comparison is the result of comparing two commits.
type Comparison struct {
	// CommitCount is the number of commits between base and head.
	CommitCount int

	// TotalFileChanges is the number of changed files.
	TotalFileChanges int

	// Files lists the file-level changes.
	Files []FileChange
}

// File is one path/contents pair destined for the index.
type File struct {
	Path     string
	Contents string
}

// FilterReason enumerates why a file was rejected by the filter pipeline.
type FilterReason string

// Filter rejection reasons, in pipeline order.
const (
	ReasonPathTraversal FilterReason = "path_contains_dotdot"
	ReasonTooLarge      FilterReason = "file_too_large"
	ReasonAugmentignore FilterReason = "augmentignore"
	ReasonKeyish        FilterReason = "keyish_pattern"
	ReasonGitignore     FilterReason = "gitignore"
	ReasonBinary        FilterReason = "binary_file"
)

// FilterOutcome is the tagged result of classifying one file.
type FilterOutcome struct {
	// Allowed is true when the file may be uploaded.
	Allowed bool

	// Reason is set when Allowed is false.
	Reason FilterReason

	// Detail carries extra context for logging, such as the offending size.
	Detail string
}

// Allow returns an allowed outcome.
func Allow() FilterOutcome {
	return FilterOutcome{Allowed: true}
}

// Reject returns a rejected outcome with the given reason.
func Reject(reason FilterReason) FilterOutcome {
	return FilterOutcome{Reason: reason}
}

// RejectWithDetail returns a rejected outcome with the given reason and detail.
func RejectWithDetail(reason FilterReason, detail string) FilterOutcome {
	return FilterOutcome{Reason: reason, Detail: detail}
}

// IndexKind classifies the work performed by one run.
type IndexKind string

// Index run kinds. The strings are stable: they appear in CI outputs and in
// the structured result.
const (
	IndexFull        IndexKind = "full"
	IndexIncremental IndexKind = "incremental"
	IndexNoChanges   IndexKind = "no-changes"
)

// IndexResult is the structured outcome of one run. The orchestrator always
// produces one, success or failure.
type IndexResult struct {
	// Success reports whether the run completed.
	Success bool

	// Kind is the type of indexing performed.
	Kind IndexKind

	// FilesIndexed is the number of files pushed to the index.
	FilesIndexed int

	// FilesDeleted is the number of paths removed from the index.
	FilesDeleted int

	// CheckpointID is the identifier of the index snapshot exported at the
	// end of the run.
	CheckpointID string

	// CommitSha is the commit the run indexed (or attempted to index).
	CommitSha string

	// Error is the failure message when Success is false.
	Error string

	// ReindexReason explains why a full re-index was performed.
	ReindexReason string
}

// Snapshot is the filtered full-repository extraction used for a full
// re-index.
type Snapshot struct {
	// Files holds every file that passed the filter.
	Files []File

	// TotalEntries is the number of regular file entries seen.
	TotalEntries int

	// FilteredEntries is the number of entries rejected by the filter.
	FilteredEntries int

	// FilterStats counts rejections per reason.
	FilterStats map[FilterReason]int
}

// AddResult reports what the index service did with an upload batch.
type AddResult struct {
	NewlyUploaded   int
	AlreadyUploaded int
}

// ExportedState is the opaque index state returned by an export.
type ExportedState struct {
	// State is the opaque blob to persist.
	State json.RawMessage

	// CheckpointID identifies the point-in-time index snapshot.
	CheckpointID string
}

// SanitizeStateKey converts a branch name into a state-store key by
// replacing every character outside [a-zA-Z0-9_-] with a dash.
func SanitizeStateKey(branch string) string {
	if branch == "" {
		return "-"
	}
	out := make([]byte, len(branch))
	for i := 0; i < len(branch); i++ {
		c := branch[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out[i] = c
		default:
			out[i] = '-'
		}
	}
	return string(out)
}
