package fingerprint

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/cmsprobe/cmsprobe/pkg/defaults"
	"github.com/cmsprobe/cmsprobe/pkg/jsonutil"
	"github.com/cmsprobe/cmsprobe/pkg/logger"
)

// Path returns the JSON database location of cms under dataDir.
func Path(dataDir, cms string) string {
	return filepath.Join(dataDir, cms, defaults.VersionsFile)
}

// LegacyPath returns the droopescan XML database location of cms.
func LegacyPath(dataDir, cms string) string {
	return filepath.Join(dataDir, cms, defaults.LegacyVersionsFile)
}

// Load reads the database of cms, preferring versions.json over the legacy
// versions.xml. It returns ErrNoDatabase when neither exists.
func Load(dataDir, cms string) (*VersionsFile, error) {
	fh, err := os.Open(Path(dataDir, cms))
	switch {
	case err == nil:
		defer fh.Close()
		vf := New(cms)
		if err := jsonutil.UnmarshalRead(fh, vf); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDatabase, Path(dataDir, cms), err)
		}
		if vf.Versions == nil {
			vf.Versions = make(map[string]Signature)
		}
		vf.CMS = cms
		return vf, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("fingerprint: read %s: %w", Path(dataDir, cms), err)
	}

	data, err := os.ReadFile(LegacyPath(dataDir, cms))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoDatabase, cms)
	}
	if err != nil {
		return nil, fmt.Errorf("fingerprint: read %s: %w", LegacyPath(dataDir, cms), err)
	}
	vf, err := ParseLegacy(cms, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDatabase, LegacyPath(dataDir, cms), err)
	}
	return vf, nil
}

// LoadAll loads every CMS in names that has a database. CMSes without one
// are logged and left out.
func LoadAll(dataDir string, names []string, log logrus.FieldLogger) (Database, error) {
	db := make(Database, len(names))
	for _, name := range names {
		vf, err := Load(dataDir, name)
		if errors.Is(err, ErrNoDatabase) {
			log.WithField(logger.FieldCMS, name).Debug("no fingerprint database")
			continue
		}
		if err != nil {
			return nil, err
		}
		db[name] = vf
	}
	return db, nil
}

// Save writes vf to dataDir/<cms>/versions.json through a temp file and a
// rename, so readers never see a partial file.
func (vf *VersionsFile) Save(dataDir string) error {
	dest := Path(dataDir, vf.CMS)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("fingerprint: create %s: %w", filepath.Dir(dest), err)
	}

	data, err := jsonutil.MarshalIndent(vf, "  ")
	if err != nil {
		return fmt.Errorf("fingerprint: encode %s: %w", vf.CMS, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".versions-*.json")
	if err != nil {
		return fmt.Errorf("fingerprint: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("fingerprint: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fingerprint: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fingerprint: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("fingerprint: rename to %s: %w", dest, err)
	}
	return nil
}

// droopescan stores signatures per file rather than per version:
//
//	<cms>
//	  <files>
//	    <file url="misc/drupal.js"><version md5="..." nb="7.0"/></file>
//	  </files>
//	  <changelog url="CHANGELOG.txt"><version md5="..." nb="7.0"/></changelog>
//	</cms>
type legacyVersion struct {
	MD5 string `xml:"md5,attr"`
	Nb  string `xml:"nb,attr"`
}

type legacyFile struct {
	URL      string          `xml:"url,attr"`
	Versions []legacyVersion `xml:"version"`
}

type legacyDB struct {
	XMLName   xml.Name     `xml:"cms"`
	Files     []legacyFile `xml:"files>file"`
	Changelog *legacyFile  `xml:"changelog"`
}

// ParseLegacy converts a droopescan versions.xml into a VersionsFile. The
// changelog entry is treated as one more canonical file.
func ParseLegacy(cms string, data []byte) (*VersionsFile, error) {
	var doc legacyDB
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	files := doc.Files
	if doc.Changelog != nil && doc.Changelog.URL != "" {
		files = append(files, *doc.Changelog)
	}

	sigs := make(map[string]Signature)
	for _, f := range files {
		if f.URL == "" {
			continue
		}
		for _, v := range f.Versions {
			if v.Nb == "" {
				continue
			}
			sig, ok := sigs[v.Nb]
			if !ok {
				sig = make(Signature)
				sigs[v.Nb] = sig
			}
			sig[f.URL] = v.MD5
		}
	}

	vf := New(cms)
	vf.Update(sigs)
	return vf, nil
}
