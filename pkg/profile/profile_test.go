package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll_EmbeddedProfilesLoad(t *testing.T) {
	t.Parallel()

	ps, err := load()
	require.NoError(t, err)
	assert.Equal(t, []string{"drupal", "joomla", "moodle", "silverstripe", "wordpress"}, Names())
	for _, p := range ps {
		assert.NotEmpty(t, p.RegularFiles, p.Name)
		assert.NotEmpty(t, p.Update.Majors, p.Name)
		assert.NotEmpty(t, p.ForbiddenURL, p.Name)
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"drupal", "drupal"},
		{"Drupal", "drupal"},
		{"WORDPRESS", "wordpress"},
		{"wp", "wordpress"},
		{"SS", "silverstripe"},
		{"moodle", "moodle"},
	}
	for _, tt := range tests {
		p, err := Get(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, p.Name)
	}

	_, err := Get("typo3")
	assert.ErrorIs(t, err, ErrUnknownCMS)
	assert.False(t, IsName("typo3"))
	assert.True(t, IsName("joomla"))
}

func TestProfile_URLExpansion(t *testing.T) {
	t.Parallel()

	p, err := Get("drupal")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"http://cms.example/sites/all/modules/views/",
		"http://cms.example/sites/default/modules/views/",
		"http://cms.example/modules/contrib/views/",
		"http://cms.example/modules/views/",
	}, p.PluginURLs("http://cms.example/", "views"))
	assert.Equal(t, "http://cms.example/themes/bartik/", p.ThemeURLs("http://cms.example/", "bartik")[2])
}

func TestProfile_Capabilities(t *testing.T) {
	t.Parallel()

	joomla, err := Get("joomla")
	require.NoError(t, err)
	assert.False(t, joomla.Capabilities.Plugins)
	assert.False(t, joomla.CanUpdateWordlists())
	assert.False(t, joomla.HasHints())

	ss, err := Get("silverstripe")
	require.NoError(t, err)
	require.NotNil(t, ss.Listing)
	assert.Equal(t, PaginationSkip, ss.Listing.Pagination)
	assert.True(t, ss.Listing.Packagist)
	assert.True(t, ss.Hints.MetaNarrows)
	assert.Len(t, ss.Update.Repos, 2)

	drupal, err := Get("drupal")
	require.NoError(t, err)
	require.NotNil(t, drupal.Hints.QueryParam)
	assert.Equal(t, "v", drupal.Hints.QueryParam.Param)
	assert.False(t, drupal.Hints.MetaNarrows)
}

func TestProfile_TagPrefix(t *testing.T) {
	t.Parallel()

	moodle, err := Get("moodle")
	require.NoError(t, err)

	v, ok := moodle.TagToVersion("v3.9.1")
	assert.True(t, ok)
	assert.Equal(t, "3.9.1", v)
	_, ok = moodle.TagToVersion("MOODLE_39_STABLE")
	assert.False(t, ok)
	assert.Equal(t, "v3.9", moodle.VersionToTag("3.9"))

	drupal, err := Get("drupal")
	require.NoError(t, err)
	v, ok = drupal.TagToVersion("7.98")
	assert.True(t, ok)
	assert.Equal(t, "7.98", v)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", "name: [unclosed"},
		{"no name", "forbidden_url: x/\n"},
		{"bad template", "name: x\nplugins_base_urls: [\"mods/\"]\n"},
		{"bad pagination", "name: x\nlisting:\n  per_page: 10\n  pagination: cursor\n"},
		{"bad regex", "name: x\nhints:\n  meta_pattern: \"(\"\n"},
		{"plugins without urls", "name: x\ncapabilities:\n  plugins: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidProfile)
		})
	}
}
