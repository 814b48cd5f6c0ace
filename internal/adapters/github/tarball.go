package github

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
)

// archiveDownloadTimeout bounds the full-archive download. Sized for large
// repositories.
const archiveDownloadTimeout = 10 * time.Minute

// archiveMaxRedirects is passed to the archive-link lookup; the API answers
// with a redirect to the codeload host.
const archiveMaxRedirects = 5

// DownloadSnapshot streams the tarball of the tree at ref through fn. The
// single root directory segment added by the archive tooling is stripped,
// and non-regular entries (directories, symlinks) are skipped. Entries are
// decompressed on the fly; the archive is never buffered whole.
func (c *Client) DownloadSnapshot(ctx context.Context, ref string, fn func(path string, contents []byte) error) error {
	ctx, cancel := context.WithTimeout(ctx, archiveDownloadTimeout)
	defer cancel()

	archiveURL, _, err := c.gh.Repositories.GetArchiveLink(
		ctx, c.owner, c.repo, gh.Tarball,
		&gh.RepositoryContentGetOptions{Ref: ref},
		archiveMaxRedirects,
	)
	if err != nil {
		return fmt.Errorf("failed to get archive link for %s/%s@%s: %w", c.owner, c.repo, ref, err)
	}

	c.logger.Debug(ctx, "downloading repository tarball", map[string]interface{}{
		"repository": c.owner + "/" + c.repo,
		"ref":        ref,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, archiveURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to build tarball request: %w", err)
	}
	// The archive host needs the token for private repositories.
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download tarball: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download tarball: %s", resp.Status)
	}

	return extractTarball(ctx, resp.Body, fn)
}

// extractTarball walks a gzip-compressed tar stream, invoking fn for every
// regular file with its root segment stripped.
func extractTarball(ctx context.Context, r io.Reader, fn func(path string, contents []byte) error) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar entry: %w", err)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		path := stripRootSegment(hdr.Name)
		if path == "" {
			continue
		}

		contents, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("failed to read tar entry %s: %w", hdr.Name, err)
		}

		if err := fn(path, contents); err != nil {
			return err
		}
	}
}

// stripRootSegment removes the "owner-repo-sha/" prefix archive tooling adds
// to every entry.
func stripRootSegment(name string) string {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return ""
}
