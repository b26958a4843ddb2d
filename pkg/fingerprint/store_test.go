package fingerprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmsprobe/cmsprobe/pkg/logger"
)

const legacyXML = `<?xml version="1.0" encoding="UTF-8"?>
<cms>
  <files>
    <file url="misc/drupal.js">
      <version md5="aaa" nb="7.0"/>
      <version md5="aaa" nb="7.1"/>
    </file>
    <file url="misc/ajax.js">
      <version md5="bbb" nb="7.1"/>
    </file>
  </files>
  <changelog url="CHANGELOG.txt">
    <version md5="c70" nb="7.0"/>
    <version md5="c71" nb="7.1"/>
  </changelog>
</cms>
`

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vf := drupalFixture()
	require.NoError(t, vf.Save(dir))

	got, err := Load(dir, "drupal")
	require.NoError(t, err)
	assert.Equal(t, vf.Versions, got.Versions)
	assert.Equal(t, "drupal", got.CMS)

	entries, err := os.ReadDir(filepath.Join(dir, "drupal"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSave_Deterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, drupalFixture().Save(dir))
	first, err := os.ReadFile(Path(dir, "drupal"))
	require.NoError(t, err)

	require.NoError(t, drupalFixture().Save(dir))
	second, err := os.ReadFile(Path(dir, "drupal"))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestLoad_Legacy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "drupal"), 0o755))
	require.NoError(t, os.WriteFile(LegacyPath(dir, "drupal"), []byte(legacyXML), 0o644))

	vf, err := Load(dir, "drupal")
	require.NoError(t, err)
	assert.Equal(t, []string{"7.0", "7.1"}, vf.VersionList())
	assert.Equal(t, Signature{"misc/drupal.js": "aaa", "CHANGELOG.txt": "c70"}, vf.Versions["7.0"])
	assert.Equal(t, Signature{"misc/drupal.js": "aaa", "misc/ajax.js": "bbb", "CHANGELOG.txt": "c71"}, vf.Versions["7.1"])
}

func TestLoad_PrefersJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "drupal"), 0o755))
	require.NoError(t, os.WriteFile(LegacyPath(dir, "drupal"), []byte(legacyXML), 0o644))
	vf := New("drupal")
	vf.Update(map[string]Signature{"9.0.0": {"core/misc/drupal.js": "n"}})
	require.NoError(t, vf.Save(dir))

	got, err := Load(dir, "drupal")
	require.NoError(t, err)
	assert.Equal(t, []string{"9.0.0"}, got.VersionList())
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := Load(dir, "wordpress")
	assert.ErrorIs(t, err, ErrNoDatabase)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "moodle"), 0o755))
	require.NoError(t, os.WriteFile(Path(dir, "moodle"), []byte("{not json"), 0o644))
	_, err = Load(dir, "moodle")
	assert.ErrorIs(t, err, ErrCorruptDatabase)
}

func TestLoadAll_SkipsMissing(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, drupalFixture().Save(dir))

	db, err := LoadAll(dir, []string{"drupal", "joomla"}, logger.Discard())
	require.NoError(t, err)
	assert.Len(t, db, 1)
	_, ok := db.Get("drupal")
	assert.True(t, ok)
}
