package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cmsprobe/cmsprobe/pkg/cli"
	"github.com/cmsprobe/cmsprobe/pkg/ui"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   string(cli.CommandVersion),
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			_, err := fmt.Fprintln(a.stdout, ui.VersionLine())
			return err
		},
	}
}
