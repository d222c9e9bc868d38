package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"retail-medallion/internal/service/pipeline"
	"retail-medallion/internal/storage"
)

// captureStdout redirects os.Stdout to a pipe and returns a function
// that restores stdout and returns the captured output.
// Uses a goroutine to read concurrently, avoiding pipe buffer deadlocks.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	return func() string {
		_ = w.Close()
		<-done
		os.Stdout = old
		return buf.String()
	}
}

// workspace is a temporary lake with a source file, a pipeline definition
// and a run ledger.
type workspace struct {
	root     string
	pipeline string
}

func newWorkspace(t *testing.T, csv, extraYAML string) *workspace {
	t.Helper()
	for _, k := range []string{
		"LOG_LEVEL", "ENV", "MEDALLION_CONFIG", "MEDALLION_STAGE_TIMEOUT",
		"S3_KEY_ID", "S3_SECRET", "S3_ENDPOINT", "S3_REGION", "S3_URL_STYLE",
		"AZURE_STORAGE_ACCOUNT", "AZURE_STORAGE_KEY", "GCS_KEY_FILE",
	} {
		t.Setenv(k, "")
	}

	root := t.TempDir()
	t.Setenv("MEDALLION_STATE_DB", filepath.Join(root, "runs.sqlite"))

	src := filepath.Join(root, "superstore.csv")
	require.NoError(t, os.WriteFile(src, []byte(csv), 0o600))

	yaml := "source:\n  path: " + src + "\n" +
		"layers:\n" +
		"  bronze: " + filepath.Join(root, "lake", "bronze") + "\n" +
		"  silver: " + filepath.Join(root, "lake", "silver") + "\n" +
		"  gold: " + filepath.Join(root, "lake", "gold") + "\n" +
		extraYAML
	pipeline := filepath.Join(root, "pipeline.yaml")
	require.NoError(t, os.WriteFile(pipeline, []byte(yaml), 0o600))

	return &workspace{root: root, pipeline: pipeline}
}

func (w *workspace) path(parts ...string) string {
	return filepath.Join(append([]string{w.root}, parts...)...)
}

// run executes the CLI with the workspace's pipeline and returns stdout.
func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{
		"--config", w.pipeline,
		"--env-file", w.path("missing.env"),
		"--log-level", "error",
	}, args...))
	stop := captureStdout(t)
	err := cmd.Execute()
	return stop(), err
}

// goldManifest loads the committed Gold manifest of the workspace lake.
func (w *workspace) goldManifest(t *testing.T) *pipeline.GoldManifest {
	t.Helper()
	store, err := storage.Open(context.Background(), w.path("lake", "gold"), nil)
	require.NoError(t, err)
	m, err := pipeline.LoadGoldManifest(context.Background(), store)
	require.NoError(t, err)
	return m
}
