package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/themerig/config"
	"github.com/swdunlop/themerig/theme"
	"github.com/swdunlop/zugzug-go"
)

// projectSettings are the environment settings shared by every task that loads a project.
var projectSettings = zugzug.Settings{
	{Var: &configPath, Name: `THEMERIG_CONFIG`,
		Use: "The project configuration file, overridden by --config"},
	{Var: &publishBucket, Name: `PUBLISH_BUCKET`,
		Use: "A bucket URL that theme archives are published to, e.g. s3://releases (overrides publish.bucket)"},
	{Var: &debug, Name: `THEMERIG_DEBUG`,
		Use: "Enables debug logging, including every archived file"},
}

const configUse = "The project configuration file (default: themerig.toml)"

var (
	configPath    string
	publishBucket string
	debug         bool
)

// loadProject loads the configuration named by the flags and settings and applies setting overrides to it.
func loadProject(ctx context.Context) (*config.Config, error) {
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if publishBucket != `` {
		cfg.Publish.Bucket = publishBucket
	}
	hog.From(ctx).Debug().Str(`root`, cfg.Root).Strs(`apps`, cfg.Apps).Msg(`loaded project`)
	return cfg, nil
}

func newArchiver(cfg *config.Config) *theme.Archiver {
	var tool theme.Tool
	switch cfg.Build.Archiver {
	case config.ArchiverNative:
		tool = theme.Native{}
	default:
		tool = theme.TarCommand{Path: cfg.Build.Tar}
	}
	return &theme.Archiver{
		Layout: cfg.Layout(),
		Apps:   cfg.Apps,
		OutDir: cfg.Resolve(cfg.Build.ArchiveDir),
		Tool:   tool,
	}
}

func newStripper(cfg *config.Config) *theme.Stripper {
	return &theme.Stripper{Files: cfg.StripFiles(), ScriptURL: cfg.DevScriptURL()}
}

// newPublisher returns nil when no bucket is configured.
func newPublisher(cfg *config.Config) *theme.Publisher {
	if cfg.Publish.Bucket == `` {
		return nil
	}
	return &theme.Publisher{
		Bucket:   cfg.Publish.Bucket,
		Prefix:   cfg.Publish.Prefix,
		Dir:      cfg.Resolve(cfg.Build.ArchiveDir),
		Attempts: cfg.Publish.Attempts,
	}
}

// buildHooks returns the hooks that run after a production build.
func buildHooks(cfg *config.Config) []any {
	hooks := []any{newArchiver(cfg), newStripper(cfg)}
	if pb := newPublisher(cfg); pb != nil {
		hooks = append(hooks, pb)
	}
	return hooks
}

var errNoBucket = errors.New(`no bucket configured, set publish.bucket or PUBLISH_BUCKET`)
