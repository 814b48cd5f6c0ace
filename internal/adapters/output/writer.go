// Package output provides adapters for writing application output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/augmentcode/augment-indexer/internal/domain"
)

// githubOutputEnv names the file GitHub Actions reads step outputs from.
const githubOutputEnv = "GITHUB_OUTPUT"

// Writer publishes the run result as key=value lines. When the workflow
// output file is configured the lines are appended there as well, so the
// result is consumable by later workflow steps.
type Writer struct {
	out io.Writer
}

// NewWriter creates a new Writer that writes to stdout.
func NewWriter() *Writer {
	return &Writer{out: os.Stdout}
}

// NewWriterWithOutput creates a new Writer with a custom output destination.
// This is useful for testing.
func NewWriterWithOutput(out io.Writer) *Writer {
	return &Writer{out: out}
}

// WriteResult writes the result as one key=value pair per line.
func (w *Writer) WriteResult(result *domain.IndexResult) error {
	lines := formatResult(result)

	if _, err := io.WriteString(w.out, lines); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if path := os.Getenv(githubOutputEnv); path != "" {
		if err := appendToFile(path, lines); err != nil {
			return fmt.Errorf("failed to write workflow output: %w", err)
		}
	}
	return nil
}

func formatResult(result *domain.IndexResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "success=%t\n", result.Success)
	fmt.Fprintf(&sb, "type=%s\n", result.Kind)
	fmt.Fprintf(&sb, "files_indexed=%d\n", result.FilesIndexed)
	fmt.Fprintf(&sb, "files_deleted=%d\n", result.FilesDeleted)
	fmt.Fprintf(&sb, "checkpoint_id=%s\n", result.CheckpointID)
	fmt.Fprintf(&sb, "commit_sha=%s\n", result.CommitSha)
	return sb.String()
}

func appendToFile(path, lines string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.WriteString(f, lines)
	return err
}
