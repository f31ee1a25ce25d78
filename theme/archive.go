package theme

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
)

// A Tool archives a directory.  It must create a gzip compressed tar at archivePath containing entry, with paths in
// the archive relative to baseDir.
type Tool interface {
	ArchiveDir(ctx context.Context, archivePath, baseDir, entry string) error
}

// An Archiver produces one archive per application, named after the version in the application's theme descriptor.
type Archiver struct {
	Layout Layout
	Apps   []string
	OutDir string
	Tool   Tool
}

// A Result describes what happened to one application.  Err is nil when Archive was written.
type Result struct {
	App     string
	Version string
	Archive string
	Err     error
}

// Provides implements hook.Provider so that publishing can follow archiving.
func (ar *Archiver) Provides() []string { return []string{`archives`} }

// AfterBuild runs the archiver as a post-build hook.  Failures are logged per application and never returned.
func (ar *Archiver) AfterBuild(ctx context.Context) error {
	_ = ar.Run(ctx)
	return nil
}

// Run archives every application in order and returns one result per application.
func (ar *Archiver) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(ar.Apps))
	err := os.MkdirAll(ar.OutDir, 0o755)
	if err != nil {
		hog.From(ctx).Error().Err(err).Str(`dir`, ar.OutDir).Msg(`cannot create archive directory`)
		for _, app := range ar.Apps {
			results = append(results, Result{App: app, Err: err})
		}
		return results
	}
	for _, app := range ar.Apps {
		results = append(results, ar.archive(ctx, app))
	}
	return results
}

func (ar *Archiver) archive(ctx context.Context, app string) Result {
	log := hog.From(ctx)
	ret := Result{App: app}
	themeDir := ar.Layout.ThemeDir(app)
	if !isDir(themeDir) {
		ret.Err = errors.Wrap(ErrMissingDirectory, themeDir)
		log.Warn().Str(`app`, app).Str(`path`, themeDir).Msg(`theme directory not found`)
		return ret
	}
	descPath := ar.Layout.DescriptorPath(app)
	if !exists(descPath) {
		ret.Err = errors.Wrap(ErrMissingDescriptor, descPath)
		log.Warn().Str(`app`, app).Str(`path`, descPath).Msg(`theme descriptor not found`)
		return ret
	}
	desc, err := ReadDescriptor(descPath)
	if err != nil {
		ret.Err = err
		log.Error().Err(err).Str(`app`, app).Str(`path`, descPath).Msg(`cannot read theme descriptor`)
		return ret
	}
	ret.Version = desc.VersionOrDefault()
	if !desc.Semantic() {
		log.Warn().Str(`app`, app).Str(`version`, ret.Version).Msg(`theme version is not a semantic version`)
	}

	name := ArchiveName(app, ret.Version)
	archivePath := filepath.Join(ar.OutDir, name)
	err = ar.Tool.ArchiveDir(ctx, archivePath, ar.Layout.ThemesRoot(app), ar.Layout.Name)
	if err != nil {
		_ = os.Remove(archivePath)
		ret.Err = errors.Wrapf(ErrArchiveFailed, `%v: %v`, app, err)
		log.Error().Err(err).Str(`app`, app).Msg(`theme archive failed`)
		return ret
	}
	ret.Archive = archivePath

	evt := log.Info().Str(`app`, app).Str(`archive`, name)
	if info, err := os.Stat(archivePath); err == nil {
		evt = evt.Str(`size`, humanize.Bytes(uint64(info.Size())))
	}
	evt.Msg(`theme archive created`)
	return ret
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
