package usecases

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/augmentcode/augment-indexer/internal/domain"
	"github.com/augmentcode/augment-indexer/internal/filter"
)

// Commit SHAs used across the usecase tests.
var (
	shaBase = strings.Repeat("a", 40)
	shaHead = strings.Repeat("b", 40)
)

// validState builds a previous state that passes validation.
func validState(sha string) *domain.IndexState {
	return &domain.IndexState{
		SchemaVersion: domain.StateSchemaVersion,
		ContextState:  json.RawMessage(`{"blob":"opaque"}`),
		LastCommitSha: sha,
		Repository:    domain.RepositoryInfo{Owner: "octo", Name: "widgets"},
	}
}

func testConfig() domain.IndexConfig {
	return domain.IndexConfig{
		Owner:         "octo",
		Repo:          "widgets",
		Branch:        "main",
		CurrentCommit: shaHead,
	}
}

// snapshotEntry is one file served by the fake snapshot download.
type snapshotEntry struct {
	path     string
	contents []byte
}

// mockRepo implements domain.RepositoryClient and records which methods
// were invoked.
type mockRepo struct {
	resolveSha string
	resolveErr error

	forcePush    bool
	forcePushErr error

	cmp    *domain.Comparison
	cmpErr error

	ignoreChanged bool
	ignoreErr     error

	rules    domain.IgnoreRules
	rulesErr error

	snapshot    []snapshotEntry
	snapshotErr error

	calls []string
}

func (m *mockRepo) ResolveRef(ctx context.Context, ref string) (string, error) {
	m.calls = append(m.calls, "ResolveRef")
	return m.resolveSha, m.resolveErr
}

func (m *mockRepo) Compare(ctx context.Context, base, head string) (*domain.Comparison, error) {
	m.calls = append(m.calls, "Compare")
	return m.cmp, m.cmpErr
}

func (m *mockRepo) IgnoreFilesChanged(ctx context.Context, base, head string) (bool, error) {
	m.calls = append(m.calls, "IgnoreFilesChanged")
	return m.ignoreChanged, m.ignoreErr
}

func (m *mockRepo) IsForcePush(ctx context.Context, base, head string) (bool, error) {
	m.calls = append(m.calls, "IsForcePush")
	return m.forcePush, m.forcePushErr
}

func (m *mockRepo) LoadIgnoreRules(ctx context.Context, ref string) (domain.IgnoreRules, error) {
	m.calls = append(m.calls, "LoadIgnoreRules")
	if m.rules == nil {
		return filter.EmptyRuleSet(), m.rulesErr
	}
	return m.rules, m.rulesErr
}

func (m *mockRepo) DownloadSnapshot(
	ctx context.Context,
	ref string,
	fn func(path string, contents []byte) error,
) error {
	m.calls = append(m.calls, "DownloadSnapshot")
	if m.snapshotErr != nil {
		return m.snapshotErr
	}
	for _, entry := range m.snapshot {
		if err := fn(entry.path, entry.contents); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRepo) called(name string) bool {
	for _, c := range m.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (m *mockRepo) callCount(name string) int {
	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}
	return n
}

// mockStore implements domain.StateStore in memory.
type mockStore struct {
	state  *domain.IndexState
	getErr error
	putErr error

	putKey   string
	putState *domain.IndexState
	putCalls int
}

func (m *mockStore) Get(ctx context.Context, key string) (*domain.IndexState, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.state, nil
}

func (m *mockStore) Put(ctx context.Context, key string, state *domain.IndexState) error {
	m.putCalls++
	if m.putErr != nil {
		return m.putErr
	}
	m.putKey = key
	m.putState = state
	return nil
}

// mockIndex implements domain.ContextIndex and records pushed files and
// removed paths.
type mockIndex struct {
	added   []domain.File
	removed []string

	addErr    error
	removeErr error
	exportErr error

	exported *domain.ExportedState
}

func (m *mockIndex) AddToIndex(ctx context.Context, files []domain.File) (*domain.AddResult, error) {
	if m.addErr != nil {
		return nil, m.addErr
	}
	m.added = append(m.added, files...)
	return &domain.AddResult{NewlyUploaded: len(files)}, nil
}

func (m *mockIndex) RemoveFromIndex(ctx context.Context, paths []string) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	m.removed = append(m.removed, paths...)
	return nil
}

func (m *mockIndex) Export(ctx context.Context) (*domain.ExportedState, error) {
	if m.exportErr != nil {
		return nil, m.exportErr
	}
	if m.exported != nil {
		return m.exported, nil
	}
	return &domain.ExportedState{
		State:        json.RawMessage(`{"blob":"exported"}`),
		CheckpointID: "ckpt-1",
	}, nil
}

// mockProvider implements domain.IndexProvider.
type mockProvider struct {
	index *mockIndex

	createErr error
	importErr error

	createCalls   int
	importCalls   int
	importedState json.RawMessage
}

func (m *mockProvider) Create(ctx context.Context) (domain.ContextIndex, error) {
	m.createCalls++
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.index, nil
}

func (m *mockProvider) Import(ctx context.Context, state json.RawMessage) (domain.ContextIndex, error) {
	m.importCalls++
	m.importedState = state
	if m.importErr != nil {
		return nil, m.importErr
	}
	return m.index, nil
}

// nopLogger discards all log output.
type nopLogger struct{}

func (nopLogger) Info(context.Context, string, map[string]interface{})         {}
func (nopLogger) Debug(context.Context, string, map[string]interface{})        {}
func (nopLogger) Warn(context.Context, string, map[string]interface{})         {}
func (nopLogger) Error(context.Context, string, error, map[string]interface{}) {}
