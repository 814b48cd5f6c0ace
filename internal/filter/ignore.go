package filter

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Ignore file names recognized by the indexer.
const (
	GitignoreFile     = ".gitignore"
	AugmentignoreFile = ".augmentignore"
)

// IgnoreFileNames lists the ignore files whose change between two commits
// forces a full re-index.
var IgnoreFileNames = []string{GitignoreFile, AugmentignoreFile}

// RuleSet holds the compiled ignore matchers for one commit. Either matcher
// may be nil when the corresponding file is absent; a nil matcher matches
// nothing.
type RuleSet struct {
	gitignore     *ignore.GitIgnore
	augmentignore *ignore.GitIgnore
}

// CompileRuleSet compiles .gitignore and .augmentignore contents into a
// rule set. Empty contents produce an empty matcher.
func CompileRuleSet(gitignoreContents, augmentignoreContents string) *RuleSet {
	rs := &RuleSet{}
	if gitignoreContents != "" {
		rs.gitignore = ignore.CompileIgnoreLines(splitLines(gitignoreContents)...)
	}
	if augmentignoreContents != "" {
		rs.augmentignore = ignore.CompileIgnoreLines(splitLines(augmentignoreContents)...)
	}
	return rs
}

// EmptyRuleSet returns a rule set that matches nothing.
func EmptyRuleSet() *RuleSet {
	return &RuleSet{}
}

// MatchesGitignore reports whether path is excluded by .gitignore.
func (r *RuleSet) MatchesGitignore(path string) bool {
	return r.gitignore != nil && r.gitignore.MatchesPath(path)
}

// MatchesAugmentignore reports whether path is excluded by .augmentignore.
func (r *RuleSet) MatchesAugmentignore(path string) bool {
	return r.augmentignore != nil && r.augmentignore.MatchesPath(path)
}

// IsIgnoreFile reports whether path names one of the recognized ignore
// files at the repository root.
func IsIgnoreFile(path string) bool {
	for _, name := range IgnoreFileNames {
		if path == name {
			return true
		}
	}
	return false
}

func splitLines(contents string) []string {
	return strings.Split(strings.ReplaceAll(contents, "\r\n", "\n"), "\n")
}
