package crawler

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCrawler_ScanDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "com", "example", "Foo.smali"), ".class Lcom/example/Foo;")
	writeFile(t, filepath.Join(root, "com", "example", "Bar.smali"), ".class Lcom/example/Bar;")
	writeFile(t, filepath.Join(root, "com", "example", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(root, "original", "Skip.smali"), ".class LSkip;")
	writeFile(t, filepath.Join(root, "build", "Skip.smali"), ".class LSkip;")

	entries, err := NewCrawler().Collect(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "com/example/Bar.smali", entries[0].Path)
	assert.Equal(t, "com/example/Foo.smali", entries[1].Path)
	assert.Equal(t, ".class Lcom/example/Foo;", entries[1].Content)
}

func TestCrawler_NestedPackageNamedLikeIgnoredDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "smali", "com", "example", "build", "Config.smali"), ".class Lcom/example/build/Config;")
	writeFile(t, filepath.Join(root, "smali", "com", "example", "original", "Source.smali"), ".class Lcom/example/original/Source;")
	writeFile(t, filepath.Join(root, "build", "Skip.smali"), ".class LSkip;")

	entries, err := NewCrawler().Collect(root)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "smali/com/example/build/Config.smali", entries[0].Path)
	assert.Equal(t, "smali/com/example/original/Source.smali", entries[1].Path)
}

func TestCrawler_ScanZip(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "app.zip")
	f, err := os.Create(archive)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"com/example/Foo.smali": ".class Lcom/example/Foo;",
		"Top.smali":             ".class LTop;",
		"AndroidManifest.xml":   "<manifest/>",
		"original/Skip.smali":   ".class LSkip;",
		"com/build/Conf.smali":  ".class Lcom/build/Conf;",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	entries, err := NewCrawler().Collect(archive)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Top.smali", entries[0].Path)
	assert.Equal(t, "com/build/Conf.smali", entries[1].Path)
	assert.Equal(t, "com/example/Foo.smali", entries[2].Path)
}

func TestCrawler_MissingInput(t *testing.T) {
	_, err := NewCrawler().Collect(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInputNotFound))
}

func TestCrawler_CallbackError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A.smali"), ".class LA;")

	stop := errors.New("stop")
	err := NewCrawler().ScanProject(root, func(Entry) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestCrawler_Wants(t *testing.T) {
	c := NewCrawler()
	assert.True(t, c.Wants("com/example/Foo.smali"))
	assert.True(t, c.Wants("Foo.smali"))
	assert.False(t, c.Wants("com/example/notes.txt"))
	assert.False(t, c.Wants("build/com/Foo.smali"))
	assert.False(t, c.Wants("original/Foo.smali"))
	assert.True(t, c.Wants("smali/original/Foo.smali"))
	assert.True(t, c.Wants("smali/com/example/build/Config.smali"))
	assert.True(t, c.Wants("build.smali"))
}
