package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/themerig/config"
	"github.com/swdunlop/themerig/rig"
	"github.com/swdunlop/themerig/rig/api"
	"github.com/swdunlop/themerig/rig/esbuild"
	"github.com/swdunlop/themerig/rig/local"
	"github.com/swdunlop/themerig/rig/reload"
	"github.com/swdunlop/themerig/rig/tailscale"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "dev", Use: "Serves the front end, rebuilding it and reloading theme pages when they change", Fn: runDev,
			Parser: parser.New(
				parser.String(&configPath, "config", "c", configUse),
			), Settings: append(zugzug.Settings{
				{Var: &listenAddress, Name: `LISTEN_ADDRESS`,
					Use: "Listening address for the dev server (default: dev.listen, usually localhost:5173)"},

				{Var: &tailscaleHostname, Name: `TAILSCALE_HOSTNAME`,
					Use: "Specifies the hostname on your Tailscale network"},
				{Var: &tailscaleFunnel, Name: `TAILSCALE_FUNNEL`,
					Use: "Enables internet access via a Tailscale funnel"},
				{Var: &tailscaleListen, Name: `TAILSCALE_LISTEN`,
					Use: "Listening address for clients from your Tailscale network (default: \":443\" or \":80\")"},
				{Var: &tailscaleDir, Name: `TAILSCALE_DIR`,
					Use: "State directory for Tailscale"},
				{Var: &noTailscaleTLS, Name: `NO_TAILSCALE_TLS`,
					Use: "Disables TLS for Tailscale"},
			}, projectSettings...)},
	}...)
}

func runDev(ctx context.Context) error {
	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}
	options, err := devOptions(cfg)
	if err != nil {
		return err
	}
	listener, err := listenerOption(ctx, cfg)
	if err != nil {
		return err
	}
	options = append(options, listener)
	return rig.Serve(ctx, ``, options...)
}

// devOptions rigs esbuild, the reload broker and the theme watchers together.
func devOptions(cfg *config.Config) ([]rig.Option, error) {
	broker := reload.New(cfg.Dev.Origin, cfg.Dev.EventsPath)
	outDir := cfg.Resolve(cfg.Build.OutDir)
	err := os.MkdirAll(outDir, 0o755)
	if err != nil {
		return nil, err
	}
	poll, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}
	options := []rig.Option{
		esbuild.Rig(
			esbuild.WorkingDir(cfg.Root),
			esbuild.EntryPoint(cfg.Build.EntryPoints...),
			esbuild.Output(cfg.Build.OutDir),
			esbuild.Hook(broker),
		),
		broker.Rig(),
		api.Rig(
			api.Use(api.AllowOrigin(`*`)),
			broker.API(cfg.Dev.ClientPath),
			api.FS(os.DirFS(outDir), `GET /`),
		),
	}
	if poll > 0 {
		options = append(options, rig.Poll(poll))
	}
	if len(cfg.Dev.Watch) > 0 {
		for _, dir := range cfg.ThemeDirs() {
			options = append(options, rig.Watch(dir, cfg.Dev.Watch...))
		}
	}
	return options, nil
}

func listenerOption(ctx context.Context, cfg *config.Config) (rig.Option, error) {
	var tailscaleOptions []tailscale.Option
	useTailscale := false
	listen := tailscaleListen
	if tailscaleFunnel {
		if noTailscaleTLS {
			return nil, errors.New("Tailscale funnel requires TLS")
		}
		if listen != `` {
			return nil, errors.New("You cannot combine TAILSCALE_FUNNEL with TAILSCALE_LISTEN")
		}
		listen = `:443`

		useTailscale = true
		tailscaleOptions = append(tailscaleOptions, tailscale.Funnel())
	} else if listen != "" {
		useTailscale = true
	} else if noTailscaleTLS {
		listen = `:80`
	} else {
		listen = `:443`
	}
	if tailscaleHostname != `` {
		useTailscale = true
		tailscaleOptions = append(tailscaleOptions, tailscale.Hostname(tailscaleHostname))
	}
	if noTailscaleTLS {
		tailscaleOptions = append(tailscaleOptions, tailscale.NoTLS())
	}
	if tailscaleDir != `` {
		tailscaleOptions = append(tailscaleOptions, tailscale.Dir(tailscaleDir))
	}

	if useTailscale {
		log := hog.From(ctx)
		tailscaleOptions = append(tailscaleOptions, tailscale.Logf(func(format string, args ...any) {
			log.Debug().Msg(fmt.Sprintf(format, args...))
		}))
		return tailscale.Rig(listen, tailscaleOptions...), nil
	}

	localOptions := []local.Option{local.Dev(cfg.Dev)}
	if listenAddress != `` {
		localOptions = append(localOptions, local.TCP(listenAddress))
	}
	return local.Rig(localOptions...), nil
}

var (
	listenAddress string

	tailscaleFunnel   bool
	tailscaleHostname string
	tailscaleListen   string
	tailscaleDir      string
	noTailscaleTLS    bool
)
