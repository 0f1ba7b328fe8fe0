package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type cliTestEnv struct {
	baseDir    string
	configPath string
}

// setupCLITestEnv writes a two-stage configuration into a temp HOME. The API
// bind points at a closed port so daemon-backed commands fall back to the
// local archive.
func setupCLITestEnv(t *testing.T, appsyncURL string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("VIDFLOW_ENV", "")
	t.Chdir(base)
	if appsyncURL == "" {
		appsyncURL = "http://127.0.0.1:1/graphql"
	}

	content := fmt.Sprintf(`
[paths]
data_dir = %q
log_dir = %q

[[pipeline.stages]]
name = "ingest"
url = "http://127.0.0.1:1/ingest"

[[pipeline.stages]]
name = "publish"
url = "http://127.0.0.1:1/publish"

[trigger]
bucket = "uploads"
suffixes = [".mp4"]

[appsync]
endpoint = %q
api_key = "cli-key"

[api]
bind = "127.0.0.1:1"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), appsyncURL)

	configPath := filepath.Join(base, "config.toml")
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{baseDir: base, configPath: configPath}
}

func (e *cliTestEnv) writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(e.baseDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, out, substr string) {
	t.Helper()
	if !strings.Contains(out, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, out)
	}
}
