// Package cli holds the pieces of the command line that are not cobra
// wiring: argument compatibility, header flags and output formats.
package cli

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/cmsprobe/cmsprobe/pkg/profile"
)

// Command names a top-level subcommand.
type Command string

const (
	CommandScan    Command = "scan"
	CommandUpdate  Command = "update"
	CommandStats   Command = "stats"
	CommandVersion Command = "version"
)

// Format is a report output format.
type Format string

const (
	FormatStandard Format = "standard"
	FormatJSON     Format = "json"
)

// ParseFormat validates the -o flag.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatStandard:
		return FormatStandard, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q (want standard or json)", ErrInvalidFormat, s)
	}
}

// ReorderArgs rewrites the legacy "scan <cms> [flags]" order into
// "scan [flags] <cms>" so the positional CMS lands after the flags. Any
// other argument list is returned unchanged.
func ReorderArgs(args []string) []string {
	if len(args) < 2 || args[0] != string(CommandScan) || !profile.IsName(args[1]) {
		return args
	}
	out := make([]string, 0, len(args))
	out = append(out, args[0])
	out = append(out, args[2:]...)
	return append(out, args[1])
}

// ParseHeaders turns repeated "Name: value" flags into a header set.
func ParseHeaders(lines []string) (http.Header, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	h := make(http.Header, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q (want \"Name: value\")", ErrInvalidHeader, line)
		}
		h.Add(name, strings.TrimSpace(value))
	}
	return h, nil
}
