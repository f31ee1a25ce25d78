// Package esbuild bundles front-end entry points with esbuild and runs post-build hooks once the output has been
// written.  Build performs a single production pass; Rig keeps esbuild watching for the lifetime of a dev rig.
package esbuild

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/themerig/rig"
	"github.com/swdunlop/themerig/rig/hook"
)

// Build runs a single esbuild pass, then runs the configured hooks once, in dependency order, after every output
// file has been written.  Hooks do not run if the bundle has errors.
func Build(ctx context.Context, options ...Option) error {
	cfg := newConfig(options...)
	err := cfg.check()
	if err != nil {
		return err
	}
	if cfg.emptyOutDir && cfg.build.Outdir != `` {
		err = emptyDir(cfg.outdir())
		if err != nil {
			return err
		}
	}
	ret := esbuild.Build(cfg.build)
	printErrors(ret.Errors)
	if len(ret.Errors) > 0 {
		return errors.Errorf(`esbuild: build failed with %d error(s)`, len(ret.Errors))
	}
	hog.From(ctx).Info().Int(`outputs`, len(ret.OutputFiles)).Msg(`bundle written`)
	return hook.RunAfterBuild(ctx, cfg.hooks...)
}

// Rig returns a rig option that configures a rig to build the given esbuild file when it changes.
func Rig(options ...Option) rig.Option {
	cfg := newConfig(options...)
	return cfg.rigOption
}

// Option is a function that can manipulate the esbuild API build options structure.
type Option func(*config)

type config struct {
	build       esbuild.BuildOptions
	watch       esbuild.WatchOptions
	emptyOutDir bool
	hooks       []any
}

func newConfig(options ...Option) *config {
	var cfg config
	cfg.build.LogLevel = esbuild.LogLevelInfo
	cfg.build.Bundle = true
	cfg.build.Write = true
	for _, option := range options {
		option(&cfg)
	}
	return &cfg
}

func (cfg *config) check() error {
	if cfg.build.Outdir == "" && cfg.build.Outfile == "" {
		return errors.New(`esbuild: no output directory or file specified`)
	}
	if len(cfg.build.EntryPoints) == 0 {
		return errors.New(`esbuild: no entry points specified`)
	}
	return nil
}

func (cfg *config) outdir() string {
	if cfg.build.AbsWorkingDir == `` || filepath.IsAbs(cfg.build.Outdir) {
		return cfg.build.Outdir
	}
	return filepath.Join(cfg.build.AbsWorkingDir, cfg.build.Outdir)
}

// installHooks adds a plugin that runs the hooks at the end of every successful rebuild.
func (cfg *config) installHooks(ctx context.Context) {
	if len(cfg.hooks) == 0 {
		return
	}
	hooks := cfg.hooks
	cfg.build.Plugins = append(cfg.build.Plugins, esbuild.Plugin{
		Name: `themerig-hooks`,
		Setup: func(build esbuild.PluginBuild) {
			build.OnEnd(func(result *esbuild.BuildResult) (esbuild.OnEndResult, error) {
				if len(result.Errors) > 0 {
					hog.From(ctx).Warn().Int(`errors`, len(result.Errors)).Msg(`skipping post-build hooks`)
					return esbuild.OnEndResult{}, nil
				}
				return esbuild.OnEndResult{}, hook.RunAfterBuild(ctx, hooks...)
			})
		},
	})
}

func (cfg *config) rigOption(r *rig.Config) error {
	err := cfg.check()
	if err != nil {
		return err
	}
	r.Hook(cfg)
	return nil
}

// RigStart implements hook.Start by building once and watching for changes until ctx is done.  Hooks run after
// every rebuild, which is how a rig learns that it should reload its clients.
func (cfg *config) RigStart(ctx context.Context) error {
	cfg.installHooks(ctx)
	errCh := make(chan error)
	go cfg.buildAndWatch(errCh, ctx.Done())
	return <-errCh
}

var _ hook.Start = (*config)(nil)

func (cfg *config) buildAndWatch(errCh chan<- error, doneCh <-chan struct{}) {
	ctx, ctxErr := esbuild.Context(cfg.build)
	if ctxErr != nil {
		printErrors(ctxErr.Errors)
		errCh <- errors.New(`esbuild failed to start`)
		return
	}
	defer ctx.Dispose()
	err := ctx.Watch(cfg.watch)
	if err != nil {
		errCh <- errors.Wrap(err, `esbuild failed to watch`)
		return
	}
	errCh <- nil
	<-doneCh
}

func printErrors(msgs []esbuild.Message) {
	var buf bytes.Buffer
	for i, err := range msgs {
		if i == 0 {
			fmt.Fprintf(&buf, "!! esbuild: ")
		} else {
			fmt.Fprintf(&buf, "   esbuild: ")
		}
		fmt.Fprintf(&buf, "%s\n", strings.ReplaceAll(err.Text, "\n", "\n            "))
	}
	if buf.Len() > 0 {
		os.Stderr.Write(buf.Bytes())
	}
}

func emptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}
	for _, entry := range entries {
		err = os.RemoveAll(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}

// Output returns an option that sets the output directory for the esbuild build.
func Output(outdir string) Option {
	return func(cfg *config) { cfg.build.Outdir = outdir }
}

// EmptyOutDir returns an option that removes everything in the output directory before a production build.
func EmptyOutDir(ok bool) Option {
	return func(cfg *config) { cfg.emptyOutDir = ok }
}

// EntryPoint appends entry points to the esbuild build options.
func EntryPoint(entryPoints ...string) Option {
	return func(cfg *config) { cfg.build.EntryPoints = append(cfg.build.EntryPoints, entryPoints...) }
}

// WorkingDir sets the directory that relative entry points and outputs are resolved against.
func WorkingDir(dir string) Option {
	return func(cfg *config) {
		if abs, err := filepath.Abs(dir); err == nil {
			cfg.build.AbsWorkingDir = abs
		}
	}
}

// Bundle returns an option that configures esbuild to bundle the output if true, otherwise it will not bundle.
func Bundle(ok bool) Option {
	return func(cfg *config) { cfg.build.Bundle = ok }
}

// Hook appends hooks that run after every successful build, see hook.AfterBuild.  Hooks that implement
// hook.Provider and hook.Dependent are ordered accordingly.
func Hook(hooks ...any) Option {
	return func(cfg *config) { cfg.hooks = append(cfg.hooks, hooks...) }
}

// BuildOption returns an option that can manipulate the esbuild API build options structure.
// See https://esbuild.github.io/api for information on how to use esbuild options.
func BuildOption(fn func(*esbuild.BuildOptions)) Option {
	return func(cfg *config) { fn(&cfg.build) }
}

// WatchOption returns an option that can manipulate the esbuild API watch options structure.
// See https://esbuild.github.io/api for information on how to use esbuild options.
func WatchOption(fn func(*esbuild.WatchOptions)) Option {
	return func(cfg *config) { fn(&cfg.watch) }
}
