package theme

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// A Publisher uploads archives to a blob bucket such as "s3://bucket", "gs://bucket" or "file:///srv/themes".
type Publisher struct {
	Bucket   string        // bucket URL
	Prefix   string        // key prefix, joined with "/"
	Dir      string        // directory scanned for archives by AfterBuild
	Attempts uint          // upload attempts per archive, at least one
	Delay    time.Duration // initial delay between attempts
}

// DependsOn implements hook.Dependent so that publishing always follows archiving.
func (pb *Publisher) DependsOn() []string { return []string{`archives`} }

// AfterBuild publishes every archive found in Dir.
func (pb *Publisher) AfterBuild(ctx context.Context) error {
	files, err := Archives(pb.Dir)
	if err != nil {
		return err
	}
	_, err = pb.Publish(ctx, files...)
	return err
}

// Archives lists the theme archives in dir, sorted by name.
func Archives(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, `*.tar.gz`))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Publish uploads each file under its base name and returns the keys written.  It stops at the first file that
// cannot be uploaded after all attempts.
func (pb *Publisher) Publish(ctx context.Context, files ...string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	bucket, err := blob.OpenBucket(ctx, pb.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, `opening bucket %v`, pb.Bucket)
	}
	defer bucket.Close()

	attempts := pb.Attempts
	if attempts == 0 {
		attempts = 1
	}
	delay := pb.Delay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}
	log := hog.From(ctx)
	keys := make([]string, 0, len(files))
	for _, file := range files {
		key := path.Join(pb.Prefix, filepath.Base(file))
		err := retry.Do(
			func() error { return upload(ctx, bucket, key, file) },
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.Delay(delay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				log.Warn().Err(err).Str(`key`, key).Uint(`attempt`, n+1).Msg(`retrying archive upload`)
			}),
		)
		if err != nil {
			return keys, errors.Wrapf(err, `uploading %v`, file)
		}
		keys = append(keys, key)
		log.Info().Str(`bucket`, pb.Bucket).Str(`key`, key).Msg(`theme archive published`)
	}
	return keys, nil
}

func upload(ctx context.Context, bucket *blob.Bucket, key, file string) error {
	src, err := os.Open(file)
	if err != nil {
		return retry.Unrecoverable(err)
	}
	defer src.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: `application/gzip`})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, src)
	if err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
