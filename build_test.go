package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swdunlop/themerig/config"
	"github.com/swdunlop/themerig/rig"
	"github.com/swdunlop/themerig/theme"
)

const devIndex = `<html>
<head>
<script type="module" src="http://localhost:5173/@vite/client"></script>
</head>
</html>
`

// sampleProject lays out a project with site and shop themes, a blog without a descriptor and no photos theme.
func sampleProject(t *testing.T) (root, configFile string) {
	t.Helper()
	root = t.TempDir()
	write := func(path, content string) {
		path = filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	write(`src/main.js`, `console.log("aspiresense")`)
	write(`wa-apps/site/themes/aspiresense/theme.xml`, `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE theme PUBLIC "wa-app-theme" "http://www.webasyst.com/wa-content/xml/wa-app-theme.dtd">
<theme id="aspiresense" version="1.4.0"><description>Aspire&nbsp;Sense</description></theme>`)
	write(`wa-apps/site/themes/aspiresense/index.html`, devIndex)
	write(`wa-apps/shop/themes/aspiresense/theme.xml`, `<theme id="aspiresense"/>`)
	write(`wa-apps/blog/themes/aspiresense/index.html`, devIndex)

	configFile = filepath.Join(root, `themerig.toml`)
	write(`themerig.toml`, fmt.Sprintf("root = %q\n\n[build]\narchiver = \"native\"\n", root))
	return root, configFile
}

func useConfig(t *testing.T, path, bucket string) {
	oldPath, oldBucket := configPath, publishBucket
	configPath, publishBucket = path, bucket
	t.Cleanup(func() { configPath, publishBucket = oldPath, oldBucket })
}

func TestRunBuild(t *testing.T) {
	root, configFile := sampleProject(t)
	bucket := t.TempDir()
	useConfig(t, configFile, `file://`+filepath.ToSlash(bucket))

	require.NoError(t, runBuild(context.Background()))

	assert.FileExists(t, filepath.Join(root, `src`, `dist`, `main.js`))
	archives, err := theme.Archives(filepath.Join(root, `dist`, `themes`, `aspiresense`))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, `dist`, `themes`, `aspiresense`, `shop-0.0.0.tar.gz`),
		filepath.Join(root, `dist`, `themes`, `aspiresense`, `site-1.4.0.tar.gz`),
	}, archives)

	site, err := os.ReadFile(filepath.Join(root, `wa-apps/site/themes/aspiresense/index.html`))
	require.NoError(t, err)
	assert.Equal(t, "<html>\n<head>\n</head>\n</html>\n", string(site))
	// only the configured file is stripped
	blog, err := os.ReadFile(filepath.Join(root, `wa-apps/blog/themes/aspiresense/index.html`))
	require.NoError(t, err)
	assert.Equal(t, devIndex, string(blog))

	assert.FileExists(t, filepath.Join(bucket, `site-1.4.0.tar.gz`))
	assert.FileExists(t, filepath.Join(bucket, `shop-0.0.0.tar.gz`))
}

func TestRunBuildKeepsOlderArchives(t *testing.T) {
	root, configFile := sampleProject(t)
	useConfig(t, configFile, ``)
	older := filepath.Join(root, `dist`, `themes`, `aspiresense`, `site-1.3.0.tar.gz`)
	require.NoError(t, os.MkdirAll(filepath.Dir(older), 0o755))
	require.NoError(t, os.WriteFile(older, []byte(`release`), 0o644))

	require.NoError(t, runBuild(context.Background()))
	assert.FileExists(t, older)
	assert.FileExists(t, filepath.Join(root, `dist`, `themes`, `aspiresense`, `site-1.4.0.tar.gz`))
}

func TestRunArchiveAndStrip(t *testing.T) {
	root, configFile := sampleProject(t)
	useConfig(t, configFile, ``)

	require.NoError(t, runArchive(context.Background()))
	assert.FileExists(t, filepath.Join(root, `dist`, `themes`, `aspiresense`, `site-1.4.0.tar.gz`))
	require.NoError(t, runStrip(context.Background()))
	require.NoError(t, runStrip(context.Background()))
	assert.ErrorIs(t, runPublish(context.Background()), errNoBucket)
}

func TestBuildHooks(t *testing.T) {
	cfg := config.Default()
	hooks := buildHooks(cfg)
	require.Len(t, hooks, 2)
	ar := hooks[0].(*theme.Archiver)
	assert.IsType(t, theme.TarCommand{}, ar.Tool)
	assert.Equal(t, filepath.Join(`dist`, `themes`, `aspiresense`), ar.OutDir)
	sr := hooks[1].(*theme.Stripper)
	assert.Equal(t, `http://localhost:5173/@vite/client`, sr.ScriptURL)

	cfg.Build.Archiver = config.ArchiverNative
	cfg.Publish.Bucket = `mem://`
	hooks = buildHooks(cfg)
	require.Len(t, hooks, 3)
	assert.IsType(t, theme.Native{}, hooks[0].(*theme.Archiver).Tool)
	assert.IsType(t, &theme.Publisher{}, hooks[2])
}

func TestDevOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Root = t.TempDir()
	options, err := devOptions(cfg)
	require.NoError(t, err)
	_, err = rig.New(options...)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(cfg.Root, `src`, `dist`))
}

func TestDevOptionsPoll(t *testing.T) {
	cfg := config.Default()
	cfg.Root = t.TempDir()
	cfg.Dev.Poll = `1s`
	options, err := devOptions(cfg)
	require.NoError(t, err)
	_, err = rig.New(options...)
	require.NoError(t, err)

	cfg.Dev.Poll = `often`
	_, err = devOptions(cfg)
	assert.Error(t, err)
}

func TestListenerOption(t *testing.T) {
	cfg := config.Default()
	option, err := listenerOption(context.Background(), cfg)
	require.NoError(t, err)
	_, err = rig.New(option)
	assert.NoError(t, err)

	cfg.Dev.Listen = ``
	option, err = listenerOption(context.Background(), cfg)
	require.NoError(t, err)
	_, err = rig.New(option)
	assert.Error(t, err, `no address to listen at`)

	old := listenAddress
	listenAddress = `127.0.0.1:0`
	t.Cleanup(func() { listenAddress = old })
	option, err = listenerOption(context.Background(), cfg)
	require.NoError(t, err)
	_, err = rig.New(option)
	assert.NoError(t, err)
}
