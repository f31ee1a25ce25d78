package main

import (
	"context"

	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
	"github.com/swdunlop/themerig/theme"
	"github.com/swdunlop/zugzug-go"
	"github.com/swdunlop/zugzug-go/zug/parser"
)

func init() {
	tasks = append(tasks, zugzug.Tasks{
		{Name: "archive", Use: "Archives each application theme without bundling", Fn: runArchive,
			Parser: parser.New(parser.String(&configPath, "config", "c", configUse)), Settings: projectSettings},
		{Name: "strip", Use: "Removes the dev client script from theme HTML", Fn: runStrip,
			Parser: parser.New(parser.String(&configPath, "config", "c", configUse)), Settings: projectSettings},
		{Name: "publish", Use: "Uploads existing theme archives to the publish bucket", Fn: runPublish,
			Parser: parser.New(parser.String(&configPath, "config", "c", configUse)), Settings: projectSettings},
	}...)
}

// runArchive fails only when the archive tool failed; missing themes are expected and only warned about.
func runArchive(ctx context.Context) error {
	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}
	results := newArchiver(cfg).Run(ctx)
	failed, created := 0, 0
	for _, ret := range results {
		switch {
		case ret.Err == nil:
			created++
		case errors.Is(ret.Err, theme.ErrArchiveFailed):
			failed++
		}
	}
	hog.From(ctx).Info().Int(`created`, created).Int(`apps`, len(results)).Msg(`archiving complete`)
	if failed > 0 {
		return errors.Errorf(`%d of %d theme archives failed`, failed, len(results))
	}
	return nil
}

func runStrip(ctx context.Context) error {
	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}
	_, err = newStripper(cfg).Run(ctx)
	return err
}

func runPublish(ctx context.Context) error {
	cfg, err := loadProject(ctx)
	if err != nil {
		return err
	}
	pb := newPublisher(cfg)
	if pb == nil {
		return errNoBucket
	}
	files, err := theme.Archives(pb.Dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		hog.From(ctx).Warn().Str(`dir`, pb.Dir).Msg(`no theme archives to publish`)
		return nil
	}
	_, err = pb.Publish(ctx, files...)
	return err
}
