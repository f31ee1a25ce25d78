package theme

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescriptor(t *testing.T) {
	desc, err := ParseDescriptor([]byte(`<?xml version="1.0" encoding="UTF-8"?>
<theme id="aspiresense" vendor="1" version="1.2.3">
	<name locale="en_US">Aspire Sense</name>
</theme>`))
	require.NoError(t, err)
	assert.Equal(t, `aspiresense`, desc.ID)
	assert.Equal(t, `1.2.3`, desc.VersionOrDefault())
	assert.True(t, desc.Semantic())
}

func TestParseDescriptorDefaults(t *testing.T) {
	for name, doc := range map[string]string{
		`missing`:   `<theme id="x"></theme>`,
		`empty`:     `<theme version=""/>`,
		`blank`:     `<theme version="  "/>`,
		`wrongRoot`: `<design version="9.9.9"/>`,
	} {
		t.Run(name, func(t *testing.T) {
			desc, err := ParseDescriptor([]byte(doc))
			require.NoError(t, err)
			assert.Equal(t, DefaultVersion, desc.VersionOrDefault())
		})
	}
}

func TestParseDescriptorLenient(t *testing.T) {
	for name, doc := range map[string][]byte{
		`entity`: []byte(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE theme PUBLIC "wa-app-theme" "http://www.webasyst.com/wa-content/xml/wa-app-theme.dtd">
<theme id="aspiresense" version="1.4.2">
	<description locale="ru_RU">Тема&nbsp;магазина</description>
</theme>`),
		`cp1251`: append([]byte(`<?xml version="1.0" encoding="windows-1251"?>
<theme id="aspiresense" version="1.4.2"><name locale="ru_RU">`),
			0xD2, 0xE5, 0xEC, 0xE0, '<', '/', 'n', 'a', 'm', 'e', '>', '<', '/', 't', 'h', 'e', 'm', 'e', '>'),
		`truncated`:      []byte(`<theme id="aspiresense" version="1.4.2">`),
		`unknownCharset`: []byte(`<?xml version="1.0" encoding="x-made-up"?><theme id="aspiresense" version="1.4.2"/>`),
	} {
		t.Run(name, func(t *testing.T) {
			desc, err := ParseDescriptor(doc)
			require.NoError(t, err)
			assert.Equal(t, `aspiresense`, desc.ID)
			assert.Equal(t, `1.4.2`, desc.VersionOrDefault())
		})
	}
}

func TestParseDescriptorInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		`empty`:    ``,
		`textOnly`: `version="1.0.0"`,
		`comment`:  `<!-- <theme version="1.0.0"/> -->`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(doc))
			assert.ErrorIs(t, err, ErrBadDescriptor)
		})
	}
}

func TestSemantic(t *testing.T) {
	assert.True(t, Descriptor{}.Semantic())
	assert.True(t, Descriptor{Version: `2.0`}.Semantic())
	assert.False(t, Descriptor{Version: `spring-edition`}.Semantic())
}

func TestLayout(t *testing.T) {
	lt := Layout{AppsDir: `wa-apps`, ThemesDir: `themes`, Name: `aspiresense`, Descriptor: `theme.xml`}
	assert.Equal(t, filepath.Join(`wa-apps`, `shop`, `themes`), lt.ThemesRoot(`shop`))
	assert.Equal(t, filepath.Join(`wa-apps`, `shop`, `themes`, `aspiresense`), lt.ThemeDir(`shop`))
	assert.Equal(t, filepath.Join(`wa-apps`, `shop`, `themes`, `aspiresense`, `theme.xml`), lt.DescriptorPath(`shop`))
	assert.Equal(t, `shop-1.0.0.tar.gz`, ArchiveName(`shop`, `1.0.0`))
}
