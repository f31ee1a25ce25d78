// Package local serves a development rig on a local network address, normally the one theme pages load the dev
// client from.
package local

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/swdunlop/themerig/config"
	"github.com/swdunlop/themerig/rig"
	"github.com/swdunlop/themerig/rig/hook"
)

// Rig returns a rig.Option that configures a network listener.
func Rig(options ...Option) rig.Option {
	return func(r *rig.Config) error {
		var cfg listener
		for _, option := range options {
			err := option(&cfg)
			if err != nil {
				return err
			}
		}
		return cfg.rig(r)
	}
}

// An Option is a function that configures a local listener.
type Option func(*listener) error

type listener struct {
	network string
	address string
	origin  string // what browsers use to reach the listener, derived from its address when empty
	config  net.ListenConfig
}

// Dev returns an Option that listens at the dev server address and reports the dev origin to the rig, so theme
// pages and the reload stream agree on where the dev client lives.
func Dev(dev config.Dev) Option {
	return func(cfg *listener) error {
		cfg.network, cfg.address = `tcp`, dev.Listen
		cfg.origin = strings.TrimSuffix(dev.Origin, `/`)
		return nil
	}
}

// TCP returns an Option that sets the listener to a TCP socket on the provided address.  Any origin set before is
// dropped, since it named a different address.
func TCP(address string) Option {
	return func(cfg *listener) error {
		cfg.network, cfg.address, cfg.origin = `tcp`, address, ``
		return nil
	}
}

// Unix returns an Option that sets the listener to a Unix socket on the provided path.  Browsers cannot reach a
// socket directly, so a proxy in front of it should be named with Origin.
func Unix(path string) Option {
	return func(cfg *listener) error {
		cfg.network, cfg.address = `unix`, path
		return nil
	}
}

// Origin returns an Option naming the origin browsers reach the listener at, such as "http://localhost:5173".
func Origin(origin string) Option {
	return func(cfg *listener) error {
		if origin != `` && !strings.HasPrefix(origin, `http://`) && !strings.HasPrefix(origin, `https://`) {
			return errors.Errorf(`origin %q must start with http:// or https://`, origin)
		}
		cfg.origin = strings.TrimSuffix(origin, `/`)
		return nil
	}
}

// KeepAlive specifies the keepalive duration for connections accepted by the listener.
func KeepAlive(keepalive time.Duration) Option {
	return func(cfg *listener) error {
		cfg.config.KeepAlive = keepalive
		return nil
	}
}

var (
	_ hook.Listen = (*listener)(nil)
	_ hook.Origin = (*listener)(nil)
)

// Listen implements hook.Listen.
func (cfg *listener) Listen(ctx context.Context) (net.Listener, error) {
	lr, err := cfg.config.Listen(ctx, cfg.network, cfg.address)
	return lr, errors.Wrapf(err, `dev server cannot listen at %v`, cfg.address)
}

// RigOrigin implements hook.Origin.
func (cfg *listener) RigOrigin(lr net.Listener) string {
	return cfg.origin
}

func (cfg *listener) rig(r *rig.Config) error {
	if cfg.network == `` || cfg.address == `` {
		return errors.New(`the dev server needs a listening address, set dev.listen or LISTEN_ADDRESS`)
	}
	r.Hook(cfg)
	return nil
}
