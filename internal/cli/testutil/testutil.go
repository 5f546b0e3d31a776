// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/dbtlineage/internal/cli/output"
	projtest "github.com/leapstack-labs/dbtlineage/internal/testutil"
)

// SetupTestProject creates a temporary dbt project directory holding the
// sample project's target/catalog.json and target/manifest.json plus a
// dbtlineage.yaml, and returns its path.
func SetupTestProject(t *testing.T) string {
	t.Helper()
	return SetupProject(t, projtest.SampleProject())
}

// SetupProject is SetupTestProject for an arbitrary fixture project.
func SetupProject(t *testing.T, p *projtest.Project) string {
	t.Helper()

	tmpDir := t.TempDir()
	projtest.WriteArtifacts(t, p, tmpDir)

	cfg := `catalog: target/catalog.json
manifest: target/manifest.json
load:
  concurrency: 2
`
	if err := os.WriteFile(filepath.Join(tmpDir, "dbtlineage.yaml"), []byte(cfg), 0o600); err != nil {
		t.Fatalf("failed to create dbtlineage.yaml: %v", err)
	}
	return tmpDir
}

// Result is the captured outcome of a command run.
type Result struct {
	Stdout string
	Stderr string
	Err    error
}

// Run executes root with args and captures its output. Stdin is empty
// unless given.
func Run(t *testing.T, root *cobra.Command, stdin string, args ...string) Result {
	t.Helper()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return Result{Stdout: out.String(), Stderr: errOut.String(), Err: err}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a test renderer with the specified mode. Output
// is captured in buffers and never treated as a terminal.
func NewTestRenderer(mode output.Mode) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRenderer(out, errOut, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}
