// Package config describes a themerig project: which applications carry a theme, where their themes live, what
// esbuild builds and what happens to the theme directories after a production build.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/swdunlop/themerig/theme"
)

// DefaultPath is the configuration file looked up when no path is given.
const DefaultPath = `themerig.toml`

// Config is a themerig project configuration.  It is loaded once and handed to each component that needs it.
type Config struct {
	Root    string   `toml:"root"`
	Apps    []string `toml:"apps"`
	Theme   Theme    `toml:"theme"`
	Build   Build    `toml:"build"`
	Strip   Strip    `toml:"strip"`
	Dev     Dev      `toml:"dev"`
	Publish Publish  `toml:"publish"`
}

// Theme locates theme directories, which are found at <apps_dir>/<app>/<themes_dir>/<name>.
type Theme struct {
	Name       string `toml:"name"`
	AppsDir    string `toml:"apps_dir"`
	ThemesDir  string `toml:"themes_dir"`
	Descriptor string `toml:"descriptor"`
}

// Build configures the production build and its theme archives.
type Build struct {
	EntryPoints []string `toml:"entry_points"`
	OutDir      string   `toml:"out_dir"`
	EmptyOutDir bool     `toml:"empty_out_dir"`
	ArchiveDir  string   `toml:"archive_dir"`
	Archiver    string   `toml:"archiver"` // "tar" or "native"
	Tar         string   `toml:"tar"`
}

// Strip lists the HTML files that lose their dev client script after a build.
type Strip struct {
	Files  []string `toml:"files"`
	PerApp bool     `toml:"per_app"` // also strip <theme dir>/index.html for every app
}

// Dev configures the development server.
type Dev struct {
	Listen     string   `toml:"listen"`
	Origin     string   `toml:"origin"`
	ClientPath string   `toml:"client_path"`
	EventsPath string   `toml:"events_path"`
	Watch      []string `toml:"watch"` // globs relative to each theme directory
	Poll       string   `toml:"poll"`  // rescan interval such as "1s", empty relies on file system notifications
}

// Publish configures where archives are uploaded, if anywhere.
type Publish struct {
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Attempts uint   `toml:"attempts"`
}

// Archivers recognized by Build.Archiver.
const (
	ArchiverTar    = `tar`
	ArchiverNative = `native`
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Root: `.`,
		Apps: []string{`site`, `shop`, `blog`, `photos`},
		Theme: Theme{
			Name:       `aspiresense`,
			AppsDir:    `wa-apps`,
			ThemesDir:  `themes`,
			Descriptor: `theme.xml`,
		},
		Build: Build{
			EntryPoints: []string{`src/main.js`},
			OutDir:      `src/dist`,
			EmptyOutDir: true,
			ArchiveDir:  `dist/themes/aspiresense`,
			Archiver:    ArchiverTar,
			Tar:         `tar`,
		},
		Strip: Strip{
			Files: []string{`wa-apps/site/themes/aspiresense/index.html`},
		},
		Dev: Dev{
			Listen:     `localhost:5173`,
			Origin:     `http://localhost:5173`,
			ClientPath: `/@vite/client`,
			EventsPath: `/_rig/reload`,
			Watch:      []string{`**.html`, `assets/*.css`, `assets/*.js`},
		},
		Publish: Publish{Attempts: 3},
	}
}

// Load reads the configuration at path on top of Default.  A missing file is not an error, the defaults are returned.
func Load(path string) (*Config, error) {
	if path == `` {
		path = DefaultPath
	}
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, `reading %v`, path)
	}
	err = toml.Unmarshal(data, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, `parsing %v`, path)
	}
	return cfg, cfg.Validate()
}

// Validate reports configuration that cannot be acted on.
func (cfg *Config) Validate() error {
	switch {
	case cfg.Theme.Name == ``:
		return errors.New(`theme name must not be empty`)
	case cfg.Build.ArchiveDir == ``:
		return errors.New(`build archive_dir must not be empty`)
	}
	switch cfg.Build.Archiver {
	case ArchiverTar, ArchiverNative:
	default:
		return errors.Errorf(`unknown archiver %q, expected %q or %q`, cfg.Build.Archiver, ArchiverTar, ArchiverNative)
	}
	if _, err := cfg.PollInterval(); err != nil {
		return err
	}
	if !strings.HasPrefix(cfg.Dev.ClientPath, `/`) || !strings.HasPrefix(cfg.Dev.EventsPath, `/`) {
		return errors.New(`dev client_path and events_path must start with "/"`)
	}
	return nil
}

// Resolve returns path relative to the project root, unless it is already absolute.
func (cfg *Config) Resolve(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	root := cfg.Root
	if root == `` {
		root = `.`
	}
	return filepath.Join(root, path)
}

// Layout returns the theme layout rooted at the project root.
func (cfg *Config) Layout() theme.Layout {
	return theme.Layout{
		AppsDir:    cfg.Resolve(cfg.Theme.AppsDir),
		ThemesDir:  cfg.Theme.ThemesDir,
		Name:       cfg.Theme.Name,
		Descriptor: cfg.Theme.Descriptor,
	}
}

// StripFiles returns every HTML file that should be stripped, resolved against the root, with duplicates removed.
func (cfg *Config) StripFiles() []string {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		files = append(files, path)
	}
	for _, file := range cfg.Strip.Files {
		add(cfg.Resolve(file))
	}
	if cfg.Strip.PerApp {
		layout := cfg.Layout()
		for _, app := range cfg.Apps {
			add(filepath.Join(layout.ThemeDir(app), `index.html`))
		}
	}
	return files
}

// ThemeDirs returns the theme directory of every app, in app order.  In development these are watched with the
// Dev.Watch globs and any change reloads the browser.
func (cfg *Config) ThemeDirs() []string {
	layout := cfg.Layout()
	dirs := make([]string, len(cfg.Apps))
	for i, app := range cfg.Apps {
		dirs[i] = layout.ThemeDir(app)
	}
	return dirs
}

// PollInterval parses Dev.Poll, returning zero when watches should rely on file system notifications.
func (cfg *Config) PollInterval() (time.Duration, error) {
	if cfg.Dev.Poll == `` {
		return 0, nil
	}
	interval, err := time.ParseDuration(cfg.Dev.Poll)
	if err != nil {
		return 0, errors.Wrap(err, `dev poll`)
	}
	if interval <= 0 {
		return 0, errors.Errorf(`dev poll must be positive, not %v`, cfg.Dev.Poll)
	}
	return interval, nil
}

// DevScriptURL is the URL of the development client script that production HTML must not reference.
func (cfg *Config) DevScriptURL() string {
	return strings.TrimSuffix(cfg.Dev.Origin, `/`) + cfg.Dev.ClientPath
}
