package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/cmsprobe/cmsprobe/pkg/cli"
	"github.com/cmsprobe/cmsprobe/pkg/fingerprint"
	"github.com/cmsprobe/cmsprobe/pkg/profile"
	"github.com/cmsprobe/cmsprobe/pkg/ui"
	"github.com/cmsprobe/cmsprobe/pkg/wordlist"
)

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   string(cli.CommandStats),
		Short: "Show profiles, database sizes and wordlist sizes",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			rows, err := a.stats()
			if err != nil {
				return err
			}
			ui.RenderStats(a.stdout, rows)
			return nil
		},
	}
}

func (a *app) stats() ([]ui.StatsRow, error) {
	var rows []ui.StatsRow
	for _, p := range profile.All() {
		row := ui.StatsRow{
			CMS: p.Name,
			Capabilities: map[string]bool{
				"version":     p.Capabilities.Version,
				"plugins":     p.Capabilities.Plugins,
				"themes":      p.Capabilities.Themes,
				"interesting": p.Capabilities.Interesting,
			},
			Plugins: wordlistSize(a.cfg.DataDir, p.Name, wordlist.KindPlugins),
			Themes:  wordlistSize(a.cfg.DataDir, p.Name, wordlist.KindThemes),
		}

		vf, err := fingerprint.Load(a.cfg.DataDir, p.Name)
		switch {
		case errors.Is(err, fingerprint.ErrNoDatabase):
		case err != nil:
			return nil, err
		default:
			row.Versions = vf.Len()
			highest := vf.HighestPerMajor(p.Update.Majors)
			for _, m := range p.Update.Majors {
				row.Majors = append(row.Majors, ui.MajorVersion{Major: m, Highest: highest[m]})
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// wordlistSize is -1 when the list is missing.
func wordlistSize(dataDir, cms string, kind wordlist.Kind) int {
	wl, err := wordlist.Load(dataDir, cms, kind)
	if err != nil {
		return -1
	}
	return wl.Size
}
