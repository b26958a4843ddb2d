// Package version orders the loosely structured version strings used by CMS
// release tags ("7.59", "8.0-alpha12", "3.10.0-rc1").
//
// Usage:
//
//	if version.Compare("1.0", "1.0-rc1") > 0 {
//	    // the release sorts after its candidates
//	}
//	version.Sort(versions)
package version

import (
	"regexp"
	"sort"
	"strings"
)

var releasePattern = regexp.MustCompile(`^\d+(\.\d+)*$`)

// Qualifier ranks for pre-release markers. Unknown qualifiers sort after rc
// and compare lexically among themselves.
var qualifierRank = map[string]int{
	"dev":   0,
	"alpha": 1,
	"a":     1,
	"beta":  2,
	"b":     2,
	"rc":    3,
}

type segment struct {
	number    string // digits only, leading zeros trimmed
	qualifier string // text after the first '-', empty when unqualified
}

func parse(v string) []segment {
	parts := strings.Split(strings.TrimSpace(v), ".")
	segs := make([]segment, 0, len(parts))
	for _, p := range parts {
		num, qual, _ := strings.Cut(p, "-")
		segs = append(segs, segment{number: digits(num), qualifier: qual})
	}
	return segs
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	out := strings.TrimLeft(b.String(), "0")
	if out == "" {
		return "0"
	}
	return out
}

// compareNumbers compares two digit strings without overflowing.
func compareNumbers(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// splitQualifier separates "rc12" into ("rc", "12").
func splitQualifier(q string) (string, string) {
	i := len(q)
	for i > 0 && q[i-1] >= '0' && q[i-1] <= '9' {
		i--
	}
	return strings.ToLower(strings.Trim(q[:i], "-_.")), q[i:]
}

func compareQualifiers(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}

	nameA, numA := splitQualifier(a)
	nameB, numB := splitQualifier(b)
	if nameA != nameB {
		rankA, okA := qualifierRank[nameA]
		rankB, okB := qualifierRank[nameB]
		if !okA {
			rankA = len(qualifierRank)
		}
		if !okB {
			rankB = len(qualifierRank)
		}
		if rankA != rankB {
			if rankA < rankB {
				return -1
			}
			return 1
		}
	}
	if c := compareNumbers(digits(numA), digits(numB)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Compare returns -1, 0 or 1 when a is older than, equal to or newer than b.
//
// Segments compare numerically left to right with non-digits stripped. A
// version missing a trailing segment is older ("1.0" < "1.0.1"). A release
// is newer than any qualified build of the same number ("1.0" > "1.0-rc1"),
// and qualified builds compare on their trailing number ("rc2" > "rc1").
// Strings that differ only textually fall back to lexical order so the
// ordering stays strict.
func Compare(a, b string) int {
	if a == b {
		return 0
	}
	segsA, segsB := parse(a), parse(b)
	for i := 0; i < len(segsA) && i < len(segsB); i++ {
		if c := compareNumbers(segsA[i].number, segsB[i].number); c != 0 {
			return c
		}
		if c := compareQualifiers(segsA[i].qualifier, segsB[i].qualifier); c != 0 {
			return c
		}
	}
	switch {
	case len(segsA) < len(segsB):
		return -1
	case len(segsA) > len(segsB):
		return 1
	}
	return strings.Compare(a, b)
}

// Less reports whether a is older than b.
func Less(a, b string) bool { return Compare(a, b) < 0 }

// Greater reports whether a is newer than b.
func Greater(a, b string) bool { return Compare(a, b) > 0 }

// Sort orders versions oldest first, in place.
func Sort(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return Less(versions[i], versions[j])
	})
}

// Highest returns the newest version, or "" for an empty slice.
func Highest(versions []string) string {
	var best string
	for _, v := range versions {
		if best == "" || Greater(v, best) {
			best = v
		}
	}
	return best
}

// IsRelease reports whether v is a purely numeric dotted version.
func IsRelease(v string) bool {
	return releasePattern.MatchString(v)
}

// HasBoundaryPrefix reports whether v equals prefix or refines it across a
// '.' or '-' boundary. "6.1" prefixes "6.1.0" and "6.1.0-beta1", never "6.10.0".
func HasBoundaryPrefix(v, prefix string) bool {
	if prefix == "" {
		return false
	}
	if v == prefix {
		return true
	}
	return strings.HasPrefix(v, prefix+".") || strings.HasPrefix(v, prefix+"-")
}

// InMajor reports whether v belongs to the major line (e.g. "7" or "3.2").
func InMajor(v, major string) bool {
	return HasBoundaryPrefix(v, major)
}

// MajorOf returns the most specific tracked major that v belongs to.
func MajorOf(v string, majors []string) (string, bool) {
	var best string
	for _, m := range majors {
		if InMajor(v, m) && len(m) > len(best) {
			best = m
		}
	}
	return best, best != ""
}
