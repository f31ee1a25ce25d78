package theme

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool records calls and writes a placeholder archive unless told to fail for an app's base dir.
type fakeTool struct {
	calls []toolCall
	fail  map[string]bool // keyed by base dir
}

type toolCall struct{ archivePath, baseDir, entry string }

func (ft *fakeTool) ArchiveDir(ctx context.Context, archivePath, baseDir, entry string) error {
	ft.calls = append(ft.calls, toolCall{archivePath, baseDir, entry})
	if ft.fail[baseDir] {
		// leave a partial file behind, like an interrupted tar
		_ = os.WriteFile(archivePath, []byte(`partial`), 0o644)
		return errors.New(`exit status 2`)
	}
	return os.WriteFile(archivePath, []byte(`archive`), 0o644)
}

func testLayout(root string) Layout {
	return Layout{
		AppsDir:    filepath.Join(root, `wa-apps`),
		ThemesDir:  `themes`,
		Name:       `aspiresense`,
		Descriptor: `theme.xml`,
	}
}

func writeTheme(t *testing.T, lt Layout, app, descriptor string) {
	t.Helper()
	dir := lt.ThemeDir(app)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, `index.html`), []byte(`<html></html>`), 0o644))
	if descriptor != `` {
		require.NoError(t, os.WriteFile(lt.DescriptorPath(app), []byte(descriptor), 0o644))
	}
}

func TestArchiverNamesArchivesByVersion(t *testing.T) {
	root := t.TempDir()
	lt := testLayout(root)
	writeTheme(t, lt, `site`, `<theme version="1.2.3"></theme>`)
	writeTheme(t, lt, `shop`, `<theme id="aspiresense"></theme>`)

	out := filepath.Join(root, `dist`, `themes`, `aspiresense`)
	tool := &fakeTool{}
	ar := &Archiver{Layout: lt, Apps: []string{`site`, `shop`}, OutDir: out, Tool: tool}
	results := ar.Run(context.Background())

	require.Len(t, results, 2)
	for _, ret := range results {
		assert.NoError(t, ret.Err, ret.App)
	}
	assert.Equal(t, `1.2.3`, results[0].Version)
	assert.Equal(t, DefaultVersion, results[1].Version)
	assert.FileExists(t, filepath.Join(out, `site-1.2.3.tar.gz`))
	assert.FileExists(t, filepath.Join(out, `shop-0.0.0.tar.gz`))

	require.Len(t, tool.calls, 2)
	assert.Equal(t, toolCall{
		archivePath: filepath.Join(out, `site-1.2.3.tar.gz`),
		baseDir:     lt.ThemesRoot(`site`),
		entry:       `aspiresense`,
	}, tool.calls[0])
}

func TestArchiverSkipsMissingThemes(t *testing.T) {
	root := t.TempDir()
	lt := testLayout(root)
	writeTheme(t, lt, `blog`, ``)
	writeTheme(t, lt, `photos`, `<theme version="4.0.0"/>`)

	out := filepath.Join(root, `out`)
	tool := &fakeTool{}
	ar := &Archiver{Layout: lt, Apps: []string{`site`, `blog`, `photos`}, OutDir: out, Tool: tool}
	var results []Result
	require.NotPanics(t, func() { results = ar.Run(context.Background()) })

	require.Len(t, results, 3)
	assert.ErrorIs(t, results[0].Err, ErrMissingDirectory)
	assert.ErrorIs(t, results[1].Err, ErrMissingDescriptor)
	assert.NoError(t, results[2].Err)

	files, err := Archives(out)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(out, `photos-4.0.0.tar.gz`)}, files)
	assert.Len(t, tool.calls, 1)
}

func TestArchiverContinuesAfterToolFailure(t *testing.T) {
	root := t.TempDir()
	lt := testLayout(root)
	apps := []string{`site`, `shop`, `blog`, `photos`}
	for _, app := range apps {
		writeTheme(t, lt, app, `<theme version="1.0.0"/>`)
	}
	out := filepath.Join(root, `out`)
	tool := &fakeTool{fail: map[string]bool{lt.ThemesRoot(`shop`): true}}
	ar := &Archiver{Layout: lt, Apps: apps, OutDir: out, Tool: tool}
	results := ar.Run(context.Background())

	require.Len(t, results, 4)
	assert.ErrorIs(t, results[1].Err, ErrArchiveFailed)
	assert.Empty(t, results[1].Archive)
	assert.NoFileExists(t, filepath.Join(out, `shop-1.0.0.tar.gz`))
	for _, i := range []int{0, 2, 3} {
		assert.NoError(t, results[i].Err)
		assert.FileExists(t, results[i].Archive)
	}
	assert.Len(t, tool.calls, 4)
}

func TestArchiverOutcomesAreIndependentOfOrder(t *testing.T) {
	root := t.TempDir()
	lt := testLayout(root)
	writeTheme(t, lt, `site`, `<theme version="1.0.0"/>`)
	writeTheme(t, lt, `blog`, `<theme version="2.0.0"/>`)
	fail := map[string]bool{lt.ThemesRoot(`site`): true}

	outcome := func(apps ...string) map[string]bool {
		out := t.TempDir()
		ar := &Archiver{Layout: lt, Apps: apps, OutDir: out, Tool: &fakeTool{fail: fail}}
		ok := make(map[string]bool)
		for _, ret := range ar.Run(context.Background()) {
			ok[ret.App] = ret.Err == nil
		}
		return ok
	}
	assert.Equal(t, outcome(`site`, `shop`, `blog`), outcome(`blog`, `shop`, `site`))
}

func TestArchiverBadDescriptor(t *testing.T) {
	root := t.TempDir()
	lt := testLayout(root)
	writeTheme(t, lt, `site`, `version 1.0.0, no markup`)
	writeTheme(t, lt, `shop`, `<theme version="1.0.1"/>`)
	ar := &Archiver{Layout: lt, Apps: []string{`site`, `shop`}, OutDir: filepath.Join(root, `out`), Tool: &fakeTool{}}
	results := ar.Run(context.Background())
	assert.ErrorIs(t, results[0].Err, ErrBadDescriptor)
	assert.NoError(t, results[1].Err)
}

func TestArchiverAfterBuildNeverFails(t *testing.T) {
	ar := &Archiver{Layout: testLayout(t.TempDir()), Apps: []string{`site`}, OutDir: t.TempDir(), Tool: &fakeTool{}}
	assert.NoError(t, ar.AfterBuild(context.Background()))
	assert.Equal(t, []string{`archives`}, ar.Provides())
}
