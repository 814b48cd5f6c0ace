// Package config provides configuration loading for the augment-indexer
// application. Settings come from environment variables; bearer credentials
// can alternatively be loaded from HashiCorp Vault.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/MyCarrier-DevOps/goLibMyCarrier/vault"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// Environment variable names.
const (
	// EnvGitHubToken is the bearer token for the GitHub REST API.
	EnvGitHubToken = "GITHUB_TOKEN"

	// EnvAPIToken is the bearer token for the context index service.
	EnvAPIToken = "AUGMENT_API_TOKEN"

	// EnvAPIURL is the tenant-specific base URL of the context index service.
	EnvAPIURL = "AUGMENT_API_URL"

	// EnvRepository is the "owner/repo" slug of the repository to index.
	EnvRepository = "GITHUB_REPOSITORY"

	// EnvRef is the fully qualified ref that triggered the run
	// (refs/heads/main, refs/tags/v1.0.0).
	EnvRef = "GITHUB_REF"

	// EnvRefName is the short ref name that triggered the run.
	EnvRefName = "GITHUB_REF_NAME"

	// EnvBranch overrides the branch derived from the workflow ref.
	EnvBranch = "BRANCH"

	// EnvSha is the commit to index. Defaults to HEAD.
	EnvSha = "GITHUB_SHA"

	// EnvMaxCommits overrides the incremental commit-count ceiling.
	EnvMaxCommits = "MAX_COMMITS"

	// EnvMaxFiles overrides the incremental changed-file ceiling.
	EnvMaxFiles = "MAX_FILES"

	// EnvStatePath pins state persistence to one explicit file path.
	EnvStatePath = "STATE_PATH"

	// EnvSource selects the repository data source ("api" or "local").
	EnvSource = "INDEXER_SOURCE"

	// EnvWorkspace is the local checkout path for the "local" source.
	EnvWorkspace = "GITHUB_WORKSPACE"

	// EnvLogLevel is the log level (debug, info, error).
	EnvLogLevel = "LOG_LEVEL"

	// EnvLogAppName is the application name for log context.
	EnvLogAppName = "LOG_APP_NAME"

	// EnvVaultCredentialsPath is the path in Vault KV where the indexer
	// credentials are stored. When set, Vault takes precedence over the
	// credential environment variables.
	EnvVaultCredentialsPath = "VAULT_CREDENTIALS_PATH"

	// EnvVaultCredentialsMount is the Vault KV mount point (defaults to "secret").
	EnvVaultCredentialsMount = "VAULT_CREDENTIALS_MOUNT"
)

// Default values.
const (
	DefaultLogLevel   = "info"
	DefaultLogAppName = "augment-indexer"
	DefaultSource     = SourceAPI
	DefaultVaultMount = "secret"
)

// Repository data sources.
const (
	// SourceAPI reads repository data through the GitHub REST API.
	SourceAPI = "api"

	// SourceLocal reads repository data from the local checkout.
	SourceLocal = "local"
)

// Vault secret keys for credential loading.
const (
	vaultKeyGitHubToken = "github_token"
	vaultKeyAPIToken    = "api_token"
	vaultKeyAPIURL      = "api_url"
)

// Configuration errors.
var (
	// ErrRepositoryRequired indicates GITHUB_REPOSITORY is unset or not an
	// "owner/repo" slug.
	ErrRepositoryRequired = errors.New("repository required: set GITHUB_REPOSITORY to \"owner/repo\"")

	// ErrCredentialsRequired indicates no credential source is available.
	ErrCredentialsRequired = errors.New(
		"credentials required: set GITHUB_TOKEN, AUGMENT_API_TOKEN and AUGMENT_API_URL, " +
			"or VAULT_CREDENTIALS_PATH (with VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID)",
	)

	// ErrInvalidLimit indicates MAX_COMMITS or MAX_FILES is not a positive integer.
	ErrInvalidLimit = errors.New("limit must be a positive integer")

	// ErrInvalidSource indicates INDEXER_SOURCE is neither "api" nor "local".
	ErrInvalidSource = errors.New("source must be \"api\" or \"local\"")

	// ErrVaultClientFailed indicates failure to create or authenticate with Vault.
	ErrVaultClientFailed = errors.New("failed to create Vault client")

	// ErrVaultSecretNotFound indicates the credentials secret was not found in Vault.
	ErrVaultSecretNotFound = errors.New("indexer credentials not found in Vault")
)

// VaultClient defines the interface for Vault operations.
// This interface allows for dependency injection and testing.
type VaultClient interface {
	// GetKVSecret retrieves a secret from Vault's KV v2 secrets engine.
	GetKVSecret(ctx context.Context, path, mount string) (map[string]interface{}, error)
}

// VaultClientFactory creates a VaultClient using AppRole authentication.
// This is the default factory used in production.
type VaultClientFactory func(ctx context.Context) (VaultClient, error)

// DefaultVaultClientFactory creates a VaultClient using goLibMyCarrier/vault with AppRole auth.
func DefaultVaultClientFactory(ctx context.Context) (VaultClient, error) {
	// Uses: VAULT_ADDRESS, VAULT_ROLE_ID, VAULT_SECRET_ID
	vaultConfig, err := vault.VaultLoadConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	client, err := vault.CreateVaultClient(ctx, vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVaultClientFailed, err)
	}

	return client, nil
}

// Config holds all application configuration.
type Config struct {
	// Index holds the per-run indexing parameters.
	Index domain.IndexConfig

	// StatePath, when non-empty, pins the state document to one file.
	StatePath string

	// Source selects the repository data source (api or local).
	Source string

	// Workspace is the local checkout path for the local source.
	Workspace string

	// LogLevel is the logging level (debug, info, error).
	LogLevel string

	// LogAppName is the application name for log context.
	LogAppName string
}

// Load loads the application configuration from environment variables.
//
// Credentials come from GITHUB_TOKEN, AUGMENT_API_TOKEN and AUGMENT_API_URL,
// or from a Vault KV secret when VAULT_CREDENTIALS_PATH is set. The Vault
// secret holds github_token, api_token and api_url keys.
func Load() (*Config, error) {
	return LoadWithVaultClient(context.Background(), nil)
}

// LoadWithVaultClient loads configuration using the provided VaultClient factory.
// If vaultClientFactory is nil, DefaultVaultClientFactory is used.
// This function enables dependency injection for testing.
func LoadWithVaultClient(ctx context.Context, vaultClientFactory VaultClientFactory) (*Config, error) {
	owner, repo, err := parseRepository(os.Getenv(EnvRepository))
	if err != nil {
		return nil, err
	}

	creds, err := loadCredentials(ctx, vaultClientFactory)
	if err != nil {
		return nil, err
	}

	maxCommits, err := parseLimit(EnvMaxCommits)
	if err != nil {
		return nil, err
	}
	maxFiles, err := parseLimit(EnvMaxFiles)
	if err != nil {
		return nil, err
	}

	source := os.Getenv(EnvSource)
	if source == "" {
		source = DefaultSource
	}
	if source != SourceAPI && source != SourceLocal {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidSource, source)
	}

	sha := os.Getenv(EnvSha)
	if sha == "" {
		sha = "HEAD"
	}

	logLevel := os.Getenv(EnvLogLevel)
	if logLevel == "" {
		logLevel = DefaultLogLevel
	}

	logAppName := os.Getenv(EnvLogAppName)
	if logAppName == "" {
		logAppName = DefaultLogAppName
	}

	return &Config{
		Index: domain.IndexConfig{
			APIToken:      creds.apiToken,
			APIURL:        creds.apiURL,
			GitHubToken:   creds.githubToken,
			Owner:         owner,
			Repo:          repo,
			Branch:        deriveBranch(),
			CurrentCommit: sha,
			MaxCommits:    maxCommits,
			MaxFiles:      maxFiles,
		},
		StatePath:  os.Getenv(EnvStatePath),
		Source:     source,
		Workspace:  os.Getenv(EnvWorkspace),
		LogLevel:   logLevel,
		LogAppName: logAppName,
	}, nil
}

// parseRepository splits an "owner/repo" slug.
func parseRepository(slug string) (owner, repo string, err error) {
	parts := strings.Split(slug, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: got %q", ErrRepositoryRequired, slug)
	}
	return parts[0], parts[1], nil
}

// deriveBranch determines the branch identifier used for the state key.
// An explicit BRANCH wins; otherwise the workflow ref is used, with tag
// builds mapped to "tag/<name>" so tags and branches never share state.
func deriveBranch() string {
	if branch := os.Getenv(EnvBranch); branch != "" {
		return branch
	}

	refName := os.Getenv(EnvRefName)
	if refName == "" {
		refName = strings.TrimPrefix(os.Getenv(EnvRef), "refs/heads/")
		refName = strings.TrimPrefix(refName, "refs/tags/")
	}
	if refName == "" {
		return "main"
	}

	if strings.HasPrefix(os.Getenv(EnvRef), "refs/tags/") {
		return "tag/" + refName
	}
	return refName
}

// parseLimit parses an optional positive-integer environment variable.
// Unset returns zero, which the indexing config maps to its default.
func parseLimit(env string) (int, error) {
	raw := os.Getenv(env)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidLimit, env, raw)
	}
	return n, nil
}

// credentials holds the resolved bearer tokens and service URL.
type credentials struct {
	githubToken string
	apiToken    string
	apiURL      string
}

// loadCredentials resolves the bearer credentials, Vault first when it is
// configured, then the environment.
func loadCredentials(ctx context.Context, vaultClientFactory VaultClientFactory) (*credentials, error) {
	creds := &credentials{
		githubToken: os.Getenv(EnvGitHubToken),
		apiToken:    os.Getenv(EnvAPIToken),
		apiURL:      os.Getenv(EnvAPIURL),
	}

	if vaultPath := os.Getenv(EnvVaultCredentialsPath); vaultPath != "" {
		if err := creds.fillFromVault(ctx, vaultClientFactory, vaultPath); err != nil {
			return nil, err
		}
	}

	if creds.githubToken == "" || creds.apiToken == "" || creds.apiURL == "" {
		return nil, ErrCredentialsRequired
	}
	return creds, nil
}

// fillFromVault overlays credentials from a Vault KV secret. Keys present in
// the secret win over environment values.
func (c *credentials) fillFromVault(
	ctx context.Context,
	vaultClientFactory VaultClientFactory,
	path string,
) error {
	if vaultClientFactory == nil {
		vaultClientFactory = DefaultVaultClientFactory
	}

	client, err := vaultClientFactory(ctx)
	if err != nil {
		return err
	}

	mount := os.Getenv(EnvVaultCredentialsMount)
	if mount == "" {
		mount = DefaultVaultMount
	}

	secretData, err := client.GetKVSecret(ctx, path, mount)
	if err != nil {
		return fmt.Errorf("%w at path %s: %w", ErrVaultSecretNotFound, path, err)
	}

	if v, ok := secretData[vaultKeyGitHubToken].(string); ok && v != "" {
		c.githubToken = v
	}
	if v, ok := secretData[vaultKeyAPIToken].(string); ok && v != "" {
		c.apiToken = v
	}
	if v, ok := secretData[vaultKeyAPIURL].(string); ok && v != "" {
		c.apiURL = v
	}
	return nil
}
