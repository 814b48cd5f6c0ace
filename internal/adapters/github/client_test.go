package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	gh "github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

const testSHA = "0123456789abcdef0123456789abcdef01234567"

// nopLogger discards adapter log output in tests.
type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, map[string]interface{}) {}
func (nopLogger) Warn(context.Context, string, map[string]interface{})  {}

// newTestClient points the adapter at a fake GitHub API server.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	ghClient := gh.NewClient(nil)
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	ghClient.BaseURL = baseURL

	return NewClientWithGitHub(ghClient, http.DefaultClient, "test-token", "octo", "widgets", nopLogger{})
}

// contentsResponse renders a GetContents file payload.
func contentsResponse(contents string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(contents))
	return fmt.Sprintf(`{"type":"file","encoding":"base64","content":%q}`, encoded)
}

func TestClient_ResolveRef(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octo/widgets/commits/main", r.URL.Path)
		fmt.Fprintf(w, `{"sha":%q}`, testSHA)
	}))

	sha, err := client.ResolveRef(context.Background(), "main")

	require.NoError(t, err)
	assert.Equal(t, testSHA, sha)
}

func TestClient_ResolveRef_Unknown(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.ResolveRef(context.Background(), "no-such-branch")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRefResolution)
}

func TestClient_Compare(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/repos/octo/widgets/compare/"):
			fmt.Fprint(w, `{
				"total_commits": 2,
				"files": [
					{"filename": "src/new.go", "status": "added", "sha": "blob1"},
					{"filename": "docs/guide.md", "status": "modified", "sha": "blob2"},
					{"filename": "old/dead.go", "status": "removed", "sha": "blob3"},
					{"filename": "pkg/renamed.go", "status": "renamed", "previous_filename": "pkg/original.go", "sha": "blob4"}
				]
			}`)
		case strings.HasPrefix(r.URL.Path, "/repos/octo/widgets/contents/"):
			fmt.Fprint(w, contentsResponse("package x"))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))

	cmp, err := client.Compare(context.Background(), "base", "head")

	require.NoError(t, err)
	assert.Equal(t, 2, cmp.CommitCount)
	assert.Equal(t, 4, cmp.TotalFileChanges)
	require.Len(t, cmp.Files, 4)

	added := cmp.Files[0]
	assert.Equal(t, domain.StatusAdded, added.Status)
	require.NotNil(t, added.Contents)
	assert.Equal(t, "package x", *added.Contents)

	removed := cmp.Files[2]
	assert.Equal(t, domain.StatusRemoved, removed.Status)
	assert.Nil(t, removed.Contents, "removed files have no contents to fetch")

	renamed := cmp.Files[3]
	assert.Equal(t, domain.StatusRenamed, renamed.Status)
	assert.Equal(t, "pkg/original.go", renamed.PreviousPath)
	require.NotNil(t, renamed.Contents, "renamed files carry contents for the new path")
}

func TestClient_Compare_PartialContentFetchFailure(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/repos/octo/widgets/compare/"):
			fmt.Fprint(w, `{
				"total_commits": 1,
				"files": [
					{"filename": "gone.go", "status": "modified"},
					{"filename": "fine.go", "status": "modified"}
				]
			}`)
		case strings.HasSuffix(r.URL.Path, "/contents/gone.go"):
			w.WriteHeader(http.StatusNotFound)
		case strings.HasPrefix(r.URL.Path, "/repos/octo/widgets/contents/"):
			fmt.Fprint(w, contentsResponse("package fine"))
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))

	cmp, err := client.Compare(context.Background(), "base", "head")

	require.NoError(t, err, "one failed content fetch must not abort the comparison")
	require.Len(t, cmp.Files, 2)
	assert.Nil(t, cmp.Files[0].Contents)
	require.NotNil(t, cmp.Files[1].Contents)
	assert.Equal(t, "package fine", *cmp.Files[1].Contents)
}

func TestClient_Compare_Diverged(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	}))

	_, err := client.Compare(context.Background(), "base", "head")

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHistoryDiverged)
}

func TestClient_IgnoreFilesChanged(t *testing.T) {
	tests := []struct {
		name  string
		files string
		want  bool
	}{
		{
			name:  "gitignore changed",
			files: `[{"filename": ".gitignore", "status": "modified"}]`,
			want:  true,
		},
		{
			name:  "augmentignore added",
			files: `[{"filename": ".augmentignore", "status": "added"}]`,
			want:  true,
		},
		{
			name:  "nested ignore file does not count",
			files: `[{"filename": "sub/.gitignore", "status": "modified"}]`,
			want:  false,
		},
		{
			name:  "ordinary changes",
			files: `[{"filename": "src/main.go", "status": "modified"}]`,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, `{"total_commits": 1, "files": %s}`, tt.files)
			}))

			changed, err := client.IgnoreFilesChanged(context.Background(), "base", "head")

			require.NoError(t, err)
			assert.Equal(t, tt.want, changed)
		})
	}
}

func TestClient_IsForcePush(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		want    bool
		wantErr bool
	}{
		{name: "linear history", status: http.StatusOK, want: false},
		{name: "base unreachable", status: http.StatusNotFound, want: true},
		{name: "histories unrelated", status: http.StatusUnprocessableEntity, want: true},
		{name: "transient server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != http.StatusOK {
					w.WriteHeader(tt.status)
					fmt.Fprint(w, `{"message":"nope"}`)
					return
				}
				fmt.Fprint(w, `{"total_commits": 1, "files": []}`)
			}))

			forcePush, err := client.IsForcePush(context.Background(), "base", "head")

			if tt.wantErr {
				require.Error(t, err, "transient failures must not be read as divergence")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, forcePush)
		})
	}
}

func TestClient_LoadIgnoreRules(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/contents/.gitignore"):
			fmt.Fprint(w, contentsResponse("*.log\n"))
		case strings.HasSuffix(r.URL.Path, "/contents/.augmentignore"):
			w.WriteHeader(http.StatusNotFound)
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))

	rules, err := client.LoadIgnoreRules(context.Background(), testSHA)

	require.NoError(t, err)
	assert.True(t, rules.MatchesGitignore("debug.log"))
	assert.False(t, rules.MatchesGitignore("src/main.go"))
	assert.False(t, rules.MatchesAugmentignore("anything"), "a missing ignore file matches nothing")
}

func TestMapChangeStatus(t *testing.T) {
	assert.Equal(t, domain.StatusAdded, mapChangeStatus("added"))
	assert.Equal(t, domain.StatusRemoved, mapChangeStatus("removed"))
	assert.Equal(t, domain.StatusRenamed, mapChangeStatus("renamed"))
	assert.Equal(t, domain.StatusModified, mapChangeStatus("modified"))

	// Unknown statuses degrade to modified so the file is re-uploaded.
	assert.Equal(t, domain.StatusModified, mapChangeStatus("changed"))
	assert.Equal(t, domain.StatusModified, mapChangeStatus(""))
}

func TestIsDivergedResponse(t *testing.T) {
	make404 := &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusNotFound}}
	make422 := &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusUnprocessableEntity}}
	make500 := &gh.ErrorResponse{Response: &http.Response{StatusCode: http.StatusInternalServerError}}

	assert.True(t, isDivergedResponse(make404))
	assert.True(t, isDivergedResponse(make422))
	assert.False(t, isDivergedResponse(make500))
	assert.False(t, isDivergedResponse(fmt.Errorf("plain error")))
	assert.False(t, isDivergedResponse(nil))
}
