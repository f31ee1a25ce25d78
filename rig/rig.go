// Package rig manages a development server whose handlers are rigged together with builds and file watchers, so that
// browsers viewing a theme can be told to reload whenever one of its inputs changes.
package rig

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/themerig/rig/hook"
	"github.com/swdunlop/themerig/rig/watcher"
	"golang.org/x/sync/errgroup"
)

// Serve will serve a rig with the given options at the specified address until the context is cancelled.
func Serve(ctx context.Context, address string, options ...Option) error {
	cfg, err := New(options...)
	if err != nil {
		return err
	}
	return cfg.Serve(ctx, address)
}

// New returns a new rig configuration.
func New(options ...Option) (*Config, error) {
	cfg := new(Config)
	err := cfg.Apply(options...)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// A Config is a rig configuration.
type Config struct {
	serve   bool            // true once Serve has been called
	serving bool            // true after Serve has been called and before it returns
	hooks   []any           // hooks to apply
	done    <-chan struct{} // closed when the rig starts to shut down
	watch   []watch
	poll    time.Duration // rescan interval for watches, zero uses file system notifications
}

type watch struct {
	dir      string
	patterns []string
}

// Done returns a channel that will be closed when the rig starts to shut down.  This is nil unless the rig is serving.
func (cfg *Config) Done() <-chan struct{} {
	return cfg.done
}

// Hook adds hooks to the configuration, see the hook package for interfaces that hooks can implement.  This is
// normally done by various options.
func (cfg *Config) Hook(hooks ...any) {
	cfg.hooks = append(cfg.hooks, hooks...)
}

// Apply applies the given options to the config; should not be called after Serve.
func (cfg *Config) Apply(options ...Option) error {
	if cfg.serving {
		return errors.New(`cannot apply options while a rig is running`)
	} else if cfg.serve {
		return errors.New(`cannot apply options after a rig has been run`)
	}

	for _, option := range options {
		err := option(cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// Serve will run the configured rig as a server listening to the provided address until the context is cancelled.
// A hook implementing hook.Listen replaces the TCP listener, in which case the address is ignored.
func (cfg *Config) Serve(ctx context.Context, address string) error {
	cfg.serve = true
	cfg.serving = true

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cfg.done = ctx.Done()
	defer func() { cfg.done, cfg.serving = nil, false }()

	hooks := hook.Order(cfg.hooks...)
	var mux http.ServeMux
	for _, it := range hooks {
		if impl, ok := it.(hook.Mux); ok {
			impl.RigMux(&mux)
		}
	}

	var svr http.Server
	svr.Handler = &mux
	for _, it := range hooks {
		if impl, ok := it.(hook.Server); ok {
			impl.RigServer(&svr)
		}
	}

	lr, origin, err := cfg.listen(ctx, hooks, address)
	if err != nil {
		return err
	}
	// no need to defer lr.Close, svr.Shutdown will close it
	for _, it := range hooks {
		if impl, ok := it.(hook.Serving); ok {
			impl.RigServing(ctx, origin)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, it := range hooks {
		if impl, ok := it.(hook.Start); ok {
			err = impl.RigStart(ctx)
			if err != nil {
				cancel()
				_ = lr.Close()
				_ = g.Wait()
				return err
			}
		}
	}
	for _, w := range cfg.watch {
		err = cfg.startWatch(ctx, g, hooks, w)
		if err != nil {
			cancel()
			_ = lr.Close()
			_ = g.Wait()
			return err
		}
	}

	g.Go(func() error {
		<-ctx.Done()
		return svr.Shutdown(context.Background())
	})
	g.Go(func() error {
		hog.From(ctx).Info().Str(`address`, lr.Addr().String()).Str(`origin`, origin).Msg(`starting HTTP service`)
		err := svr.Serve(lr)
		hog.From(ctx).Info().Err(err).Msg(`HTTP service stopped`)
		if err == http.ErrServerClosed {
			return nil
		}
		_ = lr.Close() // just in case, since we did not have a shutdown or server close.
		return err
	})
	return g.Wait()
}

// listen returns the listener to serve on and the origin browsers reach it at.  The hook that supplies the listener
// may name the origin, otherwise it is derived from the listener address.
func (cfg *Config) listen(ctx context.Context, hooks []any, address string) (net.Listener, string, error) {
	for _, it := range hooks {
		impl, ok := it.(hook.Listen)
		if !ok {
			continue
		}
		lr, err := impl.Listen(ctx)
		if err != nil {
			return nil, ``, err
		}
		if named, ok := it.(hook.Origin); ok {
			if origin := named.RigOrigin(lr); origin != `` {
				return lr, origin, nil
			}
		}
		return lr, `http://` + lr.Addr().String(), nil
	}
	var lcf net.ListenConfig
	for _, it := range hooks {
		if impl, ok := it.(hook.Listener); ok {
			impl.RigListener(&lcf)
		}
	}
	lr, err := lcf.Listen(ctx, `tcp`, address)
	if err != nil {
		return nil, ``, err
	}
	return lr, `http://` + lr.Addr().String(), nil
}

// startWatch relays changes seen in a watched directory to every hook.Change until ctx is done.  Directories that do
// not exist are skipped, since not every application carries every theme.
func (cfg *Config) startWatch(ctx context.Context, g *errgroup.Group, hooks []any, w watch) error {
	log := hog.From(ctx)
	if _, err := os.Stat(w.dir); errors.Is(err, os.ErrNotExist) {
		log.Warn().Str(`dir`, w.dir).Msg(`not watching missing directory`)
		return nil
	}
	patterns := make([]string, len(w.patterns))
	for i, pattern := range w.patterns {
		patterns[i] = filepath.Join(w.dir, pattern)
	}
	options := []watcher.Option{watcher.Directory(w.dir), watcher.Include(patterns...)}
	if cfg.poll > 0 {
		options = append(options, watcher.Poll(cfg.poll))
	}
	wr, err := watcher.Start(options...)
	if err != nil {
		return err
	}
	var changes []hook.Change
	for _, it := range hooks {
		if impl, ok := it.(hook.Change); ok {
			changes = append(changes, impl)
		}
	}
	log.Debug().Str(`dir`, w.dir).Strs(`patterns`, w.patterns).Dur(`poll`, cfg.poll).Msg(`watching`)
	g.Go(func() error {
		defer wr.Shutdown()
		for {
			select {
			case <-ctx.Done():
				return nil
			case path := <-wr.Alert():
				for _, impl := range changes {
					impl.RigChange(ctx, path)
				}
			}
		}
	})
	return nil
}

// Watch will tell every hook.Change about files in dir that change while the rig is serving, provided they match one
// of the glob patterns.  Patterns are relative to dir and "**" crosses directories.
func (cfg *Config) Watch(dir string, patterns ...string) error {
	if len(patterns) == 0 {
		return errors.New(`watch requires at least one pattern`)
	}
	cfg.watch = append(cfg.watch, watch{dir, patterns})
	return nil
}

// An Option is a function that modifies a Config before it is served.
type Option func(*Config) error

// Apply combines options into a single option.
func Apply(options ...Option) Option {
	return func(cfg *Config) error { return cfg.Apply(options...) }
}

// Watch returns an option that watches dir for changes to files matching the patterns, see Config.Watch.
func Watch(dir string, patterns ...string) Option {
	return func(cfg *Config) error { return cfg.Watch(dir, patterns...) }
}

// Poll returns an option that makes every watch rescan its directory at interval rather than wait for file system
// notifications.
func Poll(interval time.Duration) Option {
	return func(cfg *Config) error {
		if interval <= 0 {
			return errors.Errorf(`poll interval must be positive, not %v`, interval)
		}
		cfg.poll = interval
		return nil
	}
}
