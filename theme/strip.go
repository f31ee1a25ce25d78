package theme

import (
	"bytes"
	"context"
	"os"
	"regexp"

	"github.com/pkg/errors"
	"github.com/swdunlop/html-go/hog"
)

// DevScriptPattern matches a script tag loading scriptURL, along with any whitespace that follows it.
func DevScriptPattern(scriptURL string) *regexp.Regexp {
	return regexp.MustCompile(`<script[^>]*src=["']` + regexp.QuoteMeta(scriptURL) + `["'][^>]*></script>\s*`)
}

// StripDevScript removes every match of rx from html.
func StripDevScript(html []byte, rx *regexp.Regexp) []byte {
	return rx.ReplaceAllLiteral(html, nil)
}

// A Stripper removes the development client script from HTML files so production output never references the
// development server.
type Stripper struct {
	Files     []string
	ScriptURL string // e.g. "http://localhost:5173/@vite/client"
}

// AfterBuild runs the stripper as a post-build hook.  Failures are logged and never returned.
func (sr *Stripper) AfterBuild(ctx context.Context) error {
	_, _ = sr.Run(ctx)
	return nil
}

// Run strips every file once and returns the files that were changed.  Missing files are skipped; a file that cannot
// be read or written is logged and the remaining files are still processed, the first such error is returned.
func (sr *Stripper) Run(ctx context.Context) (changed []string, err error) {
	log := hog.From(ctx)
	rx := DevScriptPattern(sr.ScriptURL)
	for _, path := range sr.Files {
		ok, ferr := stripFile(path, rx)
		switch {
		case ferr != nil:
			log.Error().Err(ferr).Str(`path`, path).Msg(`cannot remove dev script`)
			if err == nil {
				err = errors.Wrapf(ferr, `stripping %v`, path)
			}
		case ok:
			changed = append(changed, path)
			log.Info().Str(`path`, path).Msg(`removed dev script`)
		default:
			log.Debug().Str(`path`, path).Msg(`no dev script to remove`)
		}
	}
	return changed, err
}

func stripFile(path string, rx *regexp.Regexp) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	html, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	cleaned := StripDevScript(html, rx)
	if bytes.Equal(cleaned, html) {
		return false, nil
	}
	return true, os.WriteFile(path, cleaned, info.Mode().Perm())
}
