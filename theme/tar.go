package theme

import (
	"archive/tar"
	"context"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
)

// TarCommand archives with an external tar executable, passing its output through to the console.
type TarCommand struct {
	Path   string    // defaults to "tar"
	Stdout io.Writer // defaults to os.Stdout
	Stderr io.Writer // defaults to os.Stderr
}

// ArchiveDir runs `tar -czvf archivePath -C baseDir entry` and waits for it to exit.
func (tc TarCommand) ArchiveDir(ctx context.Context, archivePath, baseDir, entry string) error {
	path := tc.Path
	if path == `` {
		path = `tar`
	}
	cmd := exec.CommandContext(ctx, path, `-czvf`, archivePath, `-C`, baseDir, entry)
	cmd.Stdout, cmd.Stderr = tc.Stdout, tc.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	hog.From(ctx).Debug().Strs(`args`, cmd.Args).Msg(`running tar`)
	return cmd.Run()
}

// Native archives in process, without depending on a tar executable.
type Native struct {
	Level int // gzip compression level, zero means the default
}

// ArchiveDir writes a gzip compressed tar of baseDir/entry to archivePath.
func (nt Native) ArchiveDir(ctx context.Context, archivePath, baseDir, entry string) (err error) {
	f, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	level := nt.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	zw, err := gzip.NewWriterLevel(f, level)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)
	err = writeTree(ctx, tw, baseDir, entry)
	if err != nil {
		return err
	}
	err = tw.Close()
	if err != nil {
		return err
	}
	return zw.Close()
}

func writeTree(ctx context.Context, tw *tar.Writer, baseDir, entry string) error {
	log := hog.From(ctx)
	root := filepath.Join(baseDir, entry)
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return errors.Wrapf(err, `archiving %v`, path)
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += `/`
		}
		err = tw.WriteHeader(hdr)
		if err != nil {
			return err
		}
		log.Debug().Str(`entry`, hdr.Name).Msg(`archived`)
		if !info.Mode().IsRegular() {
			return nil
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
}
