package git

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gitRun(t *testing.T, dir string, args ...string) {
	t.Helper()
	args = append([]string{"-C", dir, "-c", "user.name=test", "-c", "user.email=test@example.com"}, args...)
	out, err := exec.Command("git", args...).CombinedOutput()
	require.NoError(t, err, string(out))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSnapshot(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repo := t.TempDir()
	gitRun(t, repo, "init", "-q")
	writeFile(t, filepath.Join(repo, "app", "smali", "com", "example", "Foo.smali"), ".class Lcom/example/Foo;\n")
	writeFile(t, filepath.Join(repo, "original", "Skip.smali"), ".class LSkip;\n")
	writeFile(t, filepath.Join(repo, "README.md"), "readme\n")
	gitRun(t, repo, "add", ".")
	gitRun(t, repo, "commit", "-q", "-m", "v1")
	gitRun(t, repo, "tag", "v1")

	writeFile(t, filepath.Join(repo, "app", "smali", "com", "example", "Foo.smali"), ".class Lcom/example/Foo;\n.super Ljava/lang/Object;\n")
	writeFile(t, filepath.Join(repo, "app", "smali", "com", "example", "Bar.smali"), ".class Lcom/example/Bar;\n")
	writeFile(t, filepath.Join(repo, "app", "smali", "com", "example", "build", "Config.smali"), ".class Lcom/example/build/Config;\n")
	gitRun(t, repo, "add", ".")
	gitRun(t, repo, "commit", "-q", "-m", "v2")

	ctx := context.Background()

	t.Run("older revision", func(t *testing.T) {
		entries, err := Snapshot(ctx, repo, "v1", "app/smali")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "com/example/Foo.smali", entries[0].Path)
		assert.Equal(t, ".class Lcom/example/Foo;\n", entries[0].Content)
	})

	t.Run("head", func(t *testing.T) {
		entries, err := Snapshot(ctx, repo, "HEAD", "app/smali")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "com/example/Bar.smali", entries[0].Path)
		assert.Contains(t, entries[1].Content, ".super")
		assert.Equal(t, "com/example/build/Config.smali", entries[2].Path)
	})

	t.Run("whole tree skips ignored dirs", func(t *testing.T) {
		entries, err := Snapshot(ctx, repo, "HEAD", "")
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "app/smali/com/example/Bar.smali", entries[0].Path)
		for _, e := range entries {
			assert.NotEqual(t, "original/Skip.smali", e.Path)
		}
	})

	t.Run("unknown revision", func(t *testing.T) {
		_, err := Snapshot(ctx, repo, "no-such-rev", "")
		assert.Error(t, err)
	})
}

func TestReadBlob(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("abc123 blob 5\nhello\nabc124 blob 0\n\nHEAD:x missing\n"))

	content, err := readBlob(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	content, err = readBlob(r)
	require.NoError(t, err)
	assert.Empty(t, content)

	_, err = readBlob(r)
	assert.Error(t, err)
}
