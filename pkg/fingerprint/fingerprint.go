// Package fingerprint holds the per-CMS version signatures and the matching
// of observed file evidence against them.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"sort"

	"github.com/cmsprobe/cmsprobe/pkg/version"
)

// Signature maps a canonical file path to the lower-case hex MD5 of its
// content. An empty hash records existence only.
type Signature map[string]string

// Evidence maps each path that answered 200 to the hash of its body, or ""
// when only existence was checked.
type Evidence map[string]string

// VersionsFile is the signature set of one CMS.
type VersionsFile struct {
	CMS      string               `json:"cms"`
	Versions map[string]Signature `json:"versions"`
}

// New returns an empty file for cms.
func New(cms string) *VersionsFile {
	return &VersionsFile{CMS: cms, Versions: make(map[string]Signature)}
}

// Hash returns the lower-case hex MD5 of body.
func Hash(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

// Len returns the number of known versions.
func (vf *VersionsFile) Len() int {
	return len(vf.Versions)
}

// IsEmpty reports whether no version is recorded.
func (vf *VersionsFile) IsEmpty() bool {
	return len(vf.Versions) == 0
}

// VersionList returns every recorded version, oldest first.
func (vf *VersionsFile) VersionList() []string {
	out := make([]string, 0, len(vf.Versions))
	for v := range vf.Versions {
		out = append(out, v)
	}
	version.Sort(out)
	return out
}

// Files returns the canonical file list: the union of every version's
// paths, sorted.
func (vf *VersionsFile) Files() []string {
	seen := make(map[string]struct{})
	for _, sig := range vf.Versions {
		for path := range sig {
			seen[path] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for path := range seen {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// HasHashes reports whether any signature carries a content hash. Files
// without hashes only support existence checks.
func (vf *VersionsFile) HasHashes() bool {
	for _, sig := range vf.Versions {
		for _, h := range sig {
			if h != "" {
				return true
			}
		}
	}
	return false
}

// KnowsHash reports whether any version recorded hash for path.
func (vf *VersionsFile) KnowsHash(path, hash string) bool {
	if hash == "" {
		return false
	}
	for _, sig := range vf.Versions {
		if sig[path] == hash {
			return true
		}
	}
	return false
}

// Update merges sigs in: unknown versions are added, known versions gain
// the paths they lack. Recorded hashes are never overwritten.
func (vf *VersionsFile) Update(sigs map[string]Signature) {
	if vf.Versions == nil {
		vf.Versions = make(map[string]Signature)
	}
	for v, sig := range sigs {
		existing, ok := vf.Versions[v]
		if !ok {
			existing = make(Signature, len(sig))
			vf.Versions[v] = existing
		}
		for path, hash := range sig {
			if _, has := existing[path]; !has {
				existing[path] = hash
			}
		}
	}
}

// Clone returns a deep copy.
func (vf *VersionsFile) Clone() *VersionsFile {
	out := New(vf.CMS)
	for v, sig := range vf.Versions {
		cp := make(Signature, len(sig))
		for path, hash := range sig {
			cp[path] = hash
		}
		out.Versions[v] = cp
	}
	return out
}

// Highest returns the newest recorded version.
func (vf *VersionsFile) Highest() string {
	return version.Highest(vf.VersionList())
}

// HighestPerMajor returns the newest recorded version of each major.
// Majors without versions are absent from the result.
func (vf *VersionsFile) HighestPerMajor(majors []string) map[string]string {
	out := make(map[string]string)
	for v := range vf.Versions {
		major, ok := version.MajorOf(v, majors)
		if !ok {
			continue
		}
		if cur, has := out[major]; !has || version.Greater(v, cur) {
			out[major] = v
		}
	}
	return out
}

// Match returns the versions consistent with ev, oldest first.
//
// A version matches when every path it records that has evidence agrees
// with that evidence, and at least one of its paths has evidence. Paths
// without evidence say nothing either way.
func (vf *VersionsFile) Match(ev Evidence) []string {
	if len(ev) == 0 {
		return nil
	}
	var out []string
	for v, sig := range vf.Versions {
		if sig.matches(ev) {
			out = append(out, v)
		}
	}
	version.Sort(out)
	return out
}

func (s Signature) matches(ev Evidence) bool {
	corroborated := false
	for path, want := range s {
		got, observed := ev[path]
		if !observed {
			continue
		}
		if want != "" && got != want {
			return false
		}
		corroborated = true
	}
	return corroborated
}

// Database holds the loaded VersionsFile of every CMS.
type Database map[string]*VersionsFile

// Get returns the file for cms, if loaded.
func (db Database) Get(cms string) (*VersionsFile, bool) {
	vf, ok := db[cms]
	return vf, ok
}
