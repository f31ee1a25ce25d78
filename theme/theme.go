// Package theme archives application theme directories and cleans their HTML after a production build.
//
// Each application keeps its theme at <apps dir>/<app>/<themes dir>/<name>, described by an XML file whose root
// element is "theme" and whose "version" attribute names the release.  Archives are named <app>-<version>.tar.gz.
package theme

import (
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultVersion is used when a descriptor does not carry a version.
const DefaultVersion = `0.0.0`

// Errors reported per application; none of them stop the remaining applications from being processed.
var (
	ErrMissingDirectory  = errors.New(`theme directory not found`)
	ErrMissingDescriptor = errors.New(`theme descriptor not found`)
	ErrBadDescriptor     = errors.New(`theme descriptor is not valid XML`)
	ErrArchiveFailed     = errors.New(`theme archive failed`)
)

// Layout locates theme directories and their descriptors.
type Layout struct {
	AppsDir    string // e.g. "wa-apps"
	ThemesDir  string // e.g. "themes", relative to each app
	Name       string // e.g. "aspiresense"
	Descriptor string // e.g. "theme.xml", relative to the theme directory
}

// ThemesRoot returns the directory that contains the app's themes; archives are made relative to it.
func (lt Layout) ThemesRoot(app string) string {
	return filepath.Join(lt.AppsDir, app, lt.ThemesDir)
}

// ThemeDir returns the theme directory of app.
func (lt Layout) ThemeDir(app string) string {
	return filepath.Join(lt.ThemesRoot(app), lt.Name)
}

// DescriptorPath returns the path of the app's theme descriptor.
func (lt Layout) DescriptorPath(app string) string {
	return filepath.Join(lt.ThemeDir(app), lt.Descriptor)
}

// ArchiveName returns the archive file name for an app at the given version.
func ArchiveName(app, version string) string {
	return app + `-` + version + `.tar.gz`
}

// A Descriptor is the part of a theme descriptor that themerig cares about.
type Descriptor struct {
	XMLName xml.Name
	ID      string
	Version string
}

// ReadDescriptor reads and parses the descriptor at path.
func ReadDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, err
	}
	return ParseDescriptor(data)
}

// ParseDescriptor reads the root element of a descriptor document.  Only the root start tag is decoded, so entities,
// doctypes and encodings that a strict XML reader rejects in the body do not cost a theme its version.  A document
// whose root is not "theme" parses, but has no version.
func ParseDescriptor(data []byte) (Descriptor, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charsetReader
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return Descriptor{}, errors.Wrap(ErrBadDescriptor, `no root element`)
		} else if err != nil {
			return Descriptor{}, errors.Wrap(ErrBadDescriptor, err.Error())
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		desc := Descriptor{XMLName: start.Name}
		if start.Name.Local != `theme` {
			return desc, nil
		}
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case `id`:
				desc.ID = attr.Value
			case `version`:
				desc.Version = strings.TrimSpace(attr.Value)
			}
		}
		return desc, nil
	}
}

// charsetReader decodes the 8-bit encodings Webasyst descriptors are commonly saved in.  Unknown labels are read as
// is; the attributes we need are ASCII.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(label)
	if err != nil {
		return input, nil
	}
	return enc.NewDecoder().Reader(input), nil
}

// VersionOrDefault returns the descriptor version, or DefaultVersion when there is none.
func (desc Descriptor) VersionOrDefault() string {
	if desc.Version == `` {
		return DefaultVersion
	}
	return desc.Version
}

// Semantic reports whether the version parses as a semantic version.
func (desc Descriptor) Semantic() bool {
	_, err := semver.NewVersion(desc.VersionOrDefault())
	return err == nil
}
