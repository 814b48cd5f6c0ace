// Package filter decides which files may leave the source repository.
// It combines the fixed security predicates (path traversal, size, keyish
// filenames, binary detection) with the repository's own ignore rules.
package filter

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// keyishPattern matches basenames that likely contain private keys,
// certificates or keystores. Such files are always excluded.
var keyishPattern = regexp.MustCompile(
	`^(\.git|.*\.pem|.*\.key|.*\.pfx|.*\.p12|.*\.jks|.*\.keystore|.*\.pkcs12|.*\.crt|.*\.cer|id_rsa|id_ed25519|id_ecdsa|id_dsa)$`,
)

// Pipeline classifies files in a fixed predicate order, short-circuiting on
// the first match. The order affects only the reported reason: each
// predicate is independent, so the final allow/deny outcome is order-free.
type Pipeline struct {
	maxFileSize int
	rules       domain.IgnoreRules
}

// NewPipeline creates a pipeline with the given size limit and ignore
// rules. maxFileSize <= 0 means domain.DefaultMaxFileSize; rules may be nil
// when no ignore files apply.
func NewPipeline(maxFileSize int, rules domain.IgnoreRules) *Pipeline {
	if maxFileSize <= 0 {
		maxFileSize = domain.DefaultMaxFileSize
	}
	return &Pipeline{maxFileSize: maxFileSize, rules: rules}
}

// Classify decides whether the file at path with the given contents may be
// uploaded. The size limit is inclusive: a file of exactly the maximum size
// passes.
func (p *Pipeline) Classify(filePath string, content []byte) domain.FilterOutcome {
	// 1. Path traversal. Checked first, independent of content.
	if strings.Contains(filePath, "..") {
		return domain.Reject(domain.ReasonPathTraversal)
	}

	// 2. Size ceiling.
	if len(content) > p.maxFileSize {
		return domain.RejectWithDetail(domain.ReasonTooLarge, fmt.Sprintf("%d bytes", len(content)))
	}

	// 3. Repository-level exclusions.
	if p.rules != nil && p.rules.MatchesAugmentignore(filePath) {
		return domain.Reject(domain.ReasonAugmentignore)
	}

	// 4. Key material, certificates, keystores.
	if IsKeyish(filePath) {
		return domain.Reject(domain.ReasonKeyish)
	}

	// 5. Version-control exclusions.
	if p.rules != nil && p.rules.MatchesGitignore(filePath) {
		return domain.Reject(domain.ReasonGitignore)
	}

	// 6. Binary detection: contents must be valid UTF-8.
	if !utf8.Valid(content) {
		return domain.Reject(domain.ReasonBinary)
	}

	return domain.Allow()
}

// MaxFileSize returns the inclusive size limit in bytes.
func (p *Pipeline) MaxFileSize() int {
	return p.maxFileSize
}

// IsKeyish reports whether the basename matches the key/certificate pattern
// set, or whether ".git" appears as a path segment.
func IsKeyish(filePath string) bool {
	if keyishPattern.MatchString(path.Base(filePath)) {
		return true
	}
	for _, seg := range strings.Split(filePath, "/") {
		if seg == ".git" {
			return true
		}
	}
	return false
}
