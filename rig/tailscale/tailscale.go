// Package tailscale serves a development rig on a tailnet, so a theme can be previewed from other devices.  The
// node's tailnet name becomes the rig origin, which is where reload clients subscribe.
package tailscale

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"
	"github.com/swdunlop/themerig/rig"
	"github.com/swdunlop/themerig/rig/hook"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"
)

// Rig returns a rig.Option that configures a Tailscale server listening at address, e.g. ":443".
func Rig(address string, options ...Option) rig.Option {
	return func(r *rig.Config) error {
		var cfg config
		cfg.listen = address
		for _, option := range options {
			err := option(&cfg)
			if err != nil {
				return err
			}
		}
		return cfg.rig(r)
	}
}

type config struct {
	tsnet   tsnet.Server
	funnel  bool
	noTLS   bool
	upHooks []func(*tsnet.Server, *ipnstate.Status) error
	listen  string
	fqdn    string // tailnet name, known once the node is up
}

func (cfg *config) rig(r *rig.Config) error {
	if cfg.funnel && cfg.noTLS {
		return errors.New("funnels are required to use TLS by Tailscale")
	}
	if cfg.listen == `` {
		return errors.New("tailscale requires a listening address")
	}
	r.Hook(cfg)
	return nil
}

// Listen implements hook.Listen by bringing up the Tailscale node and listening on it.
func (cfg *config) Listen(ctx context.Context) (net.Listener, error) {
	status, err := cfg.tsnet.Up(ctx)
	if err != nil {
		return nil, errors.Wrap(err, `tailscale did not come up`)
	}
	if status.Self != nil {
		cfg.fqdn = strings.TrimSuffix(status.Self.DNSName, `.`)
	}
	for _, fn := range cfg.upHooks {
		err = fn(&cfg.tsnet, status)
		if err != nil {
			_ = cfg.tsnet.Close()
			return nil, err
		}
	}
	switch {
	case cfg.funnel:
		return cfg.tsnet.ListenFunnel(`tcp`, cfg.listen)
	case cfg.noTLS:
		return cfg.tsnet.Listen(`tcp`, cfg.listen)
	default:
		return cfg.tsnet.ListenTLS(`tcp`, cfg.listen)
	}
}

var (
	_ hook.Listen = (*config)(nil)
	_ hook.Origin = (*config)(nil)
)

// RigOrigin implements hook.Origin with the node's tailnet name.
func (cfg *config) RigOrigin(lr net.Listener) string {
	return origin(cfg.fqdn, cfg.listen, !cfg.noTLS)
}

// origin returns the URL origin for a tailnet name and listen address, leaving out default ports.  It is empty when
// the name is unknown.
func origin(fqdn, listen string, tls bool) string {
	if fqdn == `` {
		return ``
	}
	scheme, port := `https`, `443`
	if !tls {
		scheme, port = `http`, `80`
	}
	_, p, err := net.SplitHostPort(listen)
	if err != nil || p == `` || p == port {
		return scheme + `://` + fqdn
	}
	return scheme + `://` + net.JoinHostPort(fqdn, p)
}

// An Option configures the Tailscale server.
type Option func(*config) error

// Dir sets the Tailscale state directory.
func Dir(dir string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Dir = dir
		return nil
	}
}

// Hostname specifies the name of your Tailscale host.  Defaults to the system hostname.
func Hostname(hostname string) Option {
	return func(cfg *config) error {
		cfg.tsnet.Hostname = hostname
		return nil
	}
}

// Funnel tells Tailscale to allow public IPs to connect to your service.
func Funnel() Option {
	return func(cfg *config) error {
		cfg.funnel = true
		return nil
	}
}

// NoTLS tells Tailscale to not use TLS.  This is incompatible with Funnel.
func NoTLS() Option {
	return func(cfg *config) error {
		cfg.noTLS = true
		return nil
	}
}

// Logf sets the logging function for the Tailscale server.  Tailscale is EXTREMELY chatty.
// The default is to log to the standard logger.
func Logf(f func(format string, args ...any)) Option {
	return func(cfg *config) error {
		cfg.tsnet.Logf = f
		return nil
	}
}

// HookUp adds a function that will be called when the Tailscale connection is established and authorized.  This
// is particularly useful for getting the FQDN that clients should use.  If the hook returns an error, the Tailscale
// connection will be closed.
func HookUp(fn func(*tsnet.Server, *ipnstate.Status) error) Option {
	return func(cfg *config) error {
		cfg.upHooks = append(cfg.upHooks, fn)
		return nil
	}
}
