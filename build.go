package main

import (
	"context"

	"github.com/swdunlop/themerig/rig/esbuild"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "build", Use: "Bundles the front end, then archives each theme and removes the dev script from its HTML",
			Fn: runBuild, Parser: parser.New(
				parser.String(&configPath, "config", "c", configUse),
			), Settings: projectSettings},
	}...)
}

func runBuild(ctx context.Context) error {
	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}
	return esbuild.Build(ctx,
		esbuild.WorkingDir(cfg.Root),
		esbuild.EntryPoint(cfg.Build.EntryPoints...),
		esbuild.Output(cfg.Build.OutDir),
		esbuild.EmptyOutDir(cfg.Build.EmptyOutDir),
		esbuild.Hook(buildHooks(cfg)...),
	)
}
