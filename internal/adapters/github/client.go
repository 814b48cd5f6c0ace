// Package github implements domain.RepositoryClient against the GitHub REST
// API using google/go-github.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gh "github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/augmentcode/augment-indexer/internal/domain"
	"github.com/augmentcode/augment-indexer/internal/filter"
)

// Logger defines the logging interface for the GitHub adapter.
type Logger interface {
	Debug(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
}

// Client talks to the GitHub REST API for a single owner/repo pair.
type Client struct {
	gh         *gh.Client
	httpClient *http.Client
	token      string
	owner      string
	repo       string
	logger     Logger
}

// NewClient creates a Client authenticated with the given bearer token.
func NewClient(ctx context.Context, token, owner, repo string, log Logger) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &Client{
		gh:         gh.NewClient(tc),
		httpClient: tc,
		token:      token,
		owner:      owner,
		repo:       repo,
		logger:     log,
	}
}

// NewClientWithGitHub creates a Client around an existing go-github client.
// Used by tests to point the adapter at a fake API server.
func NewClientWithGitHub(ghClient *gh.Client, httpClient *http.Client, token, owner, repo string, log Logger) *Client {
	return &Client{
		gh:         ghClient,
		httpClient: httpClient,
		token:      token,
		owner:      owner,
		repo:       repo,
		logger:     log,
	}
}

// ResolveRef resolves "HEAD", a branch, a tag or a SHA to a full commit SHA.
func (c *Client) ResolveRef(ctx context.Context, ref string) (string, error) {
	commit, _, err := c.gh.Repositories.GetCommit(ctx, c.owner, c.repo, ref, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %q for %s/%s: %v", domain.ErrRefResolution, ref, c.owner, c.repo, err)
	}
	return commit.GetSHA(), nil
}

// Compare diffs base..head. For added, modified and renamed files the
// contents at head are fetched; a per-file fetch failure keeps the change in
// the list with nil Contents instead of aborting the comparison.
func (c *Client) Compare(ctx context.Context, base, head string) (*domain.Comparison, error) {
	cmp, err := c.compareCommits(ctx, base, head)
	if err != nil {
		return nil, err
	}

	files := make([]domain.FileChange, 0, len(cmp.Files))
	for _, f := range cmp.Files {
		change := domain.FileChange{
			Path:         f.GetFilename(),
			Status:       mapChangeStatus(f.GetStatus()),
			PreviousPath: f.GetPreviousFilename(),
			OldBlobID:    f.GetSHA(),
		}

		if change.Status == domain.StatusAdded || change.Status == domain.StatusModified || change.Status == domain.StatusRenamed {
			contents, err := c.fileContents(ctx, change.Path, head)
			if err != nil {
				c.logger.Warn(ctx, "failed to fetch file contents; change kept without contents", map[string]interface{}{
					"path":  change.Path,
					"ref":   head,
					"error": err.Error(),
				})
			} else {
				change.Contents = &contents
			}
		}

		files = append(files, change)
	}

	return &domain.Comparison{
		CommitCount:      cmp.GetTotalCommits(),
		TotalFileChanges: len(cmp.Files),
		Files:            files,
	}, nil
}

// IgnoreFilesChanged reports whether .gitignore or .augmentignore is among
// the files changed between base and head.
func (c *Client) IgnoreFilesChanged(ctx context.Context, base, head string) (bool, error) {
	cmp, err := c.compareCommits(ctx, base, head)
	if err != nil {
		return false, err
	}
	for _, f := range cmp.Files {
		if filter.IsIgnoreFile(f.GetFilename()) {
			return true, nil
		}
	}
	return false, nil
}

// IsForcePush reports whether base is no longer an ancestor of head. Only a
// definitive rejection of the commit range (HTTP 404/422) counts as
// divergence; transient failures propagate as errors.
func (c *Client) IsForcePush(ctx context.Context, base, head string) (bool, error) {
	_, _, err := c.gh.Repositories.CompareCommits(ctx, c.owner, c.repo, base, head, &gh.ListOptions{PerPage: 1})
	if err == nil {
		return false, nil
	}
	if isDivergedResponse(err) {
		c.logger.Debug(ctx, "commit range rejected by API; treating as force push", map[string]interface{}{
			"base": base,
			"head": head,
		})
		return true, nil
	}
	return false, fmt.Errorf("failed to compare %s...%s: %w", base, head, err)
}

// LoadIgnoreRules loads .gitignore and .augmentignore contents at ref.
// Absence of either file yields an empty rule set.
func (c *Client) LoadIgnoreRules(ctx context.Context, ref string) (domain.IgnoreRules, error) {
	gitignore := c.optionalFileContents(ctx, filter.GitignoreFile, ref)
	augmentignore := c.optionalFileContents(ctx, filter.AugmentignoreFile, ref)
	return filter.CompileRuleSet(gitignore, augmentignore), nil
}

// compareCommits wraps the compare call and maps a rejected commit range to
// domain.ErrHistoryDiverged. The compare endpoint caps the file list at
// roughly 300 entries, so the reported change count is a lower bound for
// very large diffs; the commit-count ceiling trips first in practice.
func (c *Client) compareCommits(ctx context.Context, base, head string) (*gh.CommitsComparison, error) {
	cmp, _, err := c.gh.Repositories.CompareCommits(ctx, c.owner, c.repo, base, head, &gh.ListOptions{PerPage: 100})
	if err != nil {
		if isDivergedResponse(err) {
			return nil, fmt.Errorf("%w: %s...%s", domain.ErrHistoryDiverged, base, head)
		}
		return nil, fmt.Errorf("failed to compare %s...%s: %w", base, head, err)
	}
	return cmp, nil
}

// fileContents fetches the decoded contents of one file at ref.
func (c *Client) fileContents(ctx context.Context, path, ref string) (string, error) {
	fc, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("failed to get contents of %s at %s: %w", path, ref, err)
	}
	if fc == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrNotAFile, path)
	}
	contents, err := fc.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode contents of %s: %w", path, err)
	}
	return contents, nil
}

// optionalFileContents fetches a file's contents, treating any failure as
// absence.
func (c *Client) optionalFileContents(ctx context.Context, path, ref string) string {
	contents, err := c.fileContents(ctx, path, ref)
	if err != nil {
		c.logger.Debug(ctx, "optional file not loaded", map[string]interface{}{
			"path": path,
			"ref":  ref,
		})
		return ""
	}
	return contents
}

// isDivergedResponse reports whether the API definitively rejected a commit
// range: 404 (base commit unreachable) or 422 (histories unrelated).
func isDivergedResponse(err error) bool {
	var respErr *gh.ErrorResponse
	if !errors.As(err, &respErr) || respErr.Response == nil {
		return false
	}
	code := respErr.Response.StatusCode
	return code == http.StatusNotFound || code == http.StatusUnprocessableEntity
}

// mapChangeStatus normalizes the API's file status strings. Unknown values
// degrade to modified so the file is still re-uploaded.
func mapChangeStatus(status string) domain.ChangeStatus {
	switch status {
	case "added":
		return domain.StatusAdded
	case "removed":
		return domain.StatusRemoved
	case "renamed":
		return domain.StatusRenamed
	default:
		return domain.StatusModified
	}
}
