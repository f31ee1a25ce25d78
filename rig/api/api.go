// Package api registers HTTP handlers with a rig, with middleware applied in the order it was declared.
package api

import (
	"io/fs"
	"net/http"

	"github.com/swdunlop/themerig/rig"
)

// Rig returns a rig option that configures a rig to serve the handlers described by the options.
func Rig(options ...Option) rig.Option {
	var cfg config
	cfg.apply(options...)
	return cfg.rigOption
}

// FS returns an option that serves the given file system at any of the given patterns.
func FS(filesystem fs.FS, patterns ...string) Option {
	handler := http.FileServer(http.FS(filesystem))
	return func(cfg *config) error {
		for _, pattern := range patterns {
			err := Handle(pattern, handler)(cfg)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// Use returns an option that applies the given middleware to all subsequent handlers.  You can stack middleware multiple times, the
// earliest middleware added will be the outermost layer and therefore will be run first.
//
// Any Go middleware that takes a http.Handler and returns a http.Handler can be used with this function.
func Use(fn func(http.Handler) http.Handler) Option {
	return func(cfg *config) error {
		cfg.middleware = append(cfg.middleware, fn)
		return nil
	}
}

// AllowOrigin is middleware that lets pages from origin, or any origin for "*", load the handler's responses.  Theme
// pages are served by their own host, so development assets are always cross-origin.
func AllowOrigin(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(`Access-Control-Allow-Origin`, origin)
			if origin != `*` {
				w.Header().Add(`Vary`, `Origin`)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HandleFunc accepts a http.ServeMux pattern and a handler function.
func HandleFunc(pattern string, fn func(w http.ResponseWriter, r *http.Request)) Option {
	var handler http.Handler = http.HandlerFunc(fn)
	return Handle(pattern, handler)
}

// Handle accepts a http.ServeMux pattern and a http.Handler.
func Handle(pattern string, handler http.Handler) Option {
	return func(cfg *config) error {
		for i := len(cfg.middleware) - 1; i >= 0; i-- {
			handler = cfg.middleware[i](handler)
		}
		cfg.patternHandlers = append(cfg.patternHandlers, patternHandler{
			pattern: pattern,
			handler: handler,
		})
		return nil
	}
}

// Group organizes a group of options into a single option.  This is useful for isolating a set of handlers and middleware so that
// the middleware does not affect handlers outside of the group.
func Group(options ...Option) Option {
	return func(cfg *config) error {
		old := struct {
			middleware []func(http.Handler) http.Handler
		}{cfg.middleware}
		defer func() { cfg.middleware = old.middleware }()
		for _, option := range options {
			err := option(cfg)
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// An Option adds handlers or middleware to an API.
type Option func(*config) error

type config struct {
	middleware      []func(http.Handler) http.Handler
	patternHandlers []patternHandler
	err             error
}

// RigMux adds the configured handlers to the provided ServeMux, implementing the hook.Mux interface.
func (cfg *config) RigMux(mux *http.ServeMux) {
	for _, it := range cfg.patternHandlers {
		mux.Handle(it.pattern, it.handler)
	}
}

// Mux returns a ServeMux with the handlers described by the options, which is useful for testing them in isolation.
func Mux(options ...Option) (*http.ServeMux, error) {
	var cfg config
	cfg.apply(options...)
	if cfg.err != nil {
		return nil, cfg.err
	}
	mux := http.NewServeMux()
	cfg.RigMux(mux)
	return mux, nil
}

type patternHandler struct {
	pattern string
	handler http.Handler
}

func (cfg *config) apply(options ...Option) {
	for _, option := range options {
		if cfg.err != nil {
			return
		}
		cfg.err = option(cfg)
	}
}

func (cfg *config) rigOption(r *rig.Config) error {
	if cfg.err != nil {
		return cfg.err
	}
	r.Hook(cfg)
	return nil
}
