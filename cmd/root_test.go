// Package cmd provides CLI commands for augment-indexer.
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// Test mocks for dependency injection testing.

// mockLogger implements the Logger interface for testing.
type mockLogger struct{}

func (m *mockLogger) Info(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Debug(_ context.Context, _ string, _ map[string]interface{})          {}
func (m *mockLogger) Warn(_ context.Context, _ string, _ map[string]interface{})           {}
func (m *mockLogger) Error(_ context.Context, _ string, _ error, _ map[string]interface{}) {}

// mockRepoClient implements domain.RepositoryClient for testing. Only the
// methods the command path touches do anything.
type mockRepoClient struct{}

func (m *mockRepoClient) ResolveRef(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (m *mockRepoClient) Compare(_ context.Context, _, _ string) (*domain.Comparison, error) {
	return nil, nil
}

func (m *mockRepoClient) IgnoreFilesChanged(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (m *mockRepoClient) IsForcePush(_ context.Context, _, _ string) (bool, error) {
	return false, nil
}

func (m *mockRepoClient) LoadIgnoreRules(_ context.Context, _ string) (domain.IgnoreRules, error) {
	return nil, nil
}

func (m *mockRepoClient) DownloadSnapshot(_ context.Context, _ string, _ func(string, []byte) error) error {
	return nil
}

// mockStateStore implements domain.StateStore for testing.
type mockStateStore struct{}

func (m *mockStateStore) Get(_ context.Context, _ string) (*domain.IndexState, error) { return nil, nil }
func (m *mockStateStore) Put(_ context.Context, _ string, _ *domain.IndexState) error { return nil }

// mockProvider implements domain.IndexProvider for testing.
type mockProvider struct{}

func (m *mockProvider) Create(_ context.Context) (domain.ContextIndex, error) { return nil, nil }
func (m *mockProvider) Import(_ context.Context, _ json.RawMessage) (domain.ContextIndex, error) {
	return nil, nil
}

// mockIndexer implements domain.Indexer for testing.
type mockIndexer struct {
	resolvedSha string
	resolveErr  error
	result      *domain.IndexResult
	indexCalls  int
}

func (m *mockIndexer) ResolveCommitSha(_ context.Context) (string, error) {
	return m.resolvedSha, m.resolveErr
}

func (m *mockIndexer) Index(_ context.Context) *domain.IndexResult {
	m.indexCalls++
	return m.result
}

// mockOutputWriter implements domain.OutputWriter for testing.
type mockOutputWriter struct {
	written  []*domain.IndexResult
	writeErr error
}

func (m *mockOutputWriter) WriteResult(result *domain.IndexResult) error {
	m.written = append(m.written, result)
	return m.writeErr
}

// testDeps wires mocks into a complete Dependencies value.
func testDeps(indexer *mockIndexer, writer *mockOutputWriter) *Dependencies {
	return &Dependencies{
		LoggerFactory: func() Logger { return &mockLogger{} },
		ConfigLoader: func() (*AppConfig, error) {
			return &AppConfig{
				Index: domain.IndexConfig{
					Owner:         "octo",
					Repo:          "widgets",
					Branch:        "main",
					CurrentCommit: "HEAD",
				},
				Source: "api",
			}, nil
		},
		RepoClientFactory: func(_ *AppConfig, _ Logger) (domain.RepositoryClient, error) {
			return &mockRepoClient{}, nil
		},
		StateStoreFactory: func(_ *AppConfig) domain.StateStore {
			return &mockStateStore{}
		},
		IndexProviderFactory: func(_ *AppConfig) (domain.IndexProvider, error) {
			return &mockProvider{}, nil
		},
		IndexerFactory: func(
			_ domain.RepositoryClient,
			_ domain.StateStore,
			_ domain.IndexProvider,
			_ Logger,
			_ domain.IndexConfig,
		) domain.Indexer {
			return indexer
		},
		OutputWriterFactory: func() domain.OutputWriter { return writer },
		Stdout:              &bytes.Buffer{},
		Stderr:              &bytes.Buffer{},
	}
}

func resetFlags() {
	statePath = ""
	maxCommits = 0
	maxFiles = 0
	source = ""
	verbose = false
}

func TestNewRootCmd(t *testing.T) {
	SetDefaultDependencies(&Dependencies{})
	cmd := NewRootCmd()

	require.NotNil(t, cmd)
	assert.Equal(t, "augment-indexer", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)
	assert.True(t, cmd.SilenceUsage)

	// Check flags are registered
	for _, name := range []string{"state-path", "max-commits", "max-files", "source", "verbose"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}

	verboseFlag := cmd.Flags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)
}

func TestRunIndex_NilDependencies(t *testing.T) {
	resetFlags()
	cmd := NewRootCmdWithDeps(nil)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependencies not configured")
}

func TestRunIndex_Success(t *testing.T) {
	resetFlags()
	indexer := &mockIndexer{
		resolvedSha: "0123456789abcdef0123456789abcdef01234567",
		result: &domain.IndexResult{
			Success:      true,
			Kind:         domain.IndexIncremental,
			FilesIndexed: 2,
			CommitSha:    "0123456789abcdef0123456789abcdef01234567",
		},
	}
	writer := &mockOutputWriter{}

	cmd := NewRootCmdWithDeps(testDeps(indexer, writer))
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, 1, indexer.indexCalls)
	require.Len(t, writer.written, 1)
	assert.True(t, writer.written[0].Success)
}

func TestRunIndex_FailedRunReturnsError(t *testing.T) {
	resetFlags()
	indexer := &mockIndexer{
		resolvedSha: "0123456789abcdef0123456789abcdef01234567",
		result: &domain.IndexResult{
			Success: false,
			Kind:    domain.IndexFull,
			Error:   "index service unavailable",
		},
	}
	writer := &mockOutputWriter{}

	cmd := NewRootCmdWithDeps(testDeps(indexer, writer))
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index service unavailable")
	// The failed result is still published for downstream steps.
	require.Len(t, writer.written, 1)
	assert.False(t, writer.written[0].Success)
}

func TestRunIndex_ResolveFailureStillWritesResult(t *testing.T) {
	resetFlags()
	indexer := &mockIndexer{resolveErr: errors.New("unknown ref")}
	writer := &mockOutputWriter{}

	cmd := NewRootCmdWithDeps(testDeps(indexer, writer))
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Zero(t, indexer.indexCalls, "indexing must not run with an unresolved commit")
	require.Len(t, writer.written, 1)
	assert.False(t, writer.written[0].Success)
}

func TestRunIndex_ConfigLoaderError(t *testing.T) {
	resetFlags()
	deps := testDeps(&mockIndexer{}, &mockOutputWriter{})
	deps.ConfigLoader = func() (*AppConfig, error) {
		return nil, errors.New("no repository configured")
	}

	cmd := NewRootCmdWithDeps(deps)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

func TestRunIndex_FlagOverrides(t *testing.T) {
	resetFlags()
	indexer := &mockIndexer{
		resolvedSha: "0123456789abcdef0123456789abcdef01234567",
		result:      &domain.IndexResult{Success: true, Kind: domain.IndexNoChanges},
	}
	writer := &mockOutputWriter{}

	var seen domain.IndexConfig
	deps := testDeps(indexer, writer)
	deps.IndexerFactory = func(
		_ domain.RepositoryClient,
		_ domain.StateStore,
		_ domain.IndexProvider,
		_ Logger,
		cfg domain.IndexConfig,
	) domain.Indexer {
		seen = cfg
		return indexer
	}

	cmd := NewRootCmdWithDeps(deps)
	cmd.SetArgs([]string{"--max-commits", "7", "--max-files", "9"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Equal(t, 7, seen.MaxCommits)
	assert.Equal(t, 9, seen.MaxFiles)
}

func TestRunIndex_RepoClientFactoryError(t *testing.T) {
	resetFlags()
	deps := testDeps(&mockIndexer{}, &mockOutputWriter{})
	deps.RepoClientFactory = func(_ *AppConfig, _ Logger) (domain.RepositoryClient, error) {
		return nil, domain.ErrRepositoryNotFound
	}

	cmd := NewRootCmdWithDeps(deps)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a git repository")
}
