package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print version, commit, and build information for wwwbuild.`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(stdout, version)
				return
			}

			fmt.Fprintf(stdout, "  Version:    %s\n", version)
			fmt.Fprintf(stdout, "  Commit:     %s\n", commit)
			fmt.Fprintf(stdout, "  Built:      %s\n", date)
			fmt.Fprintf(stdout, "  Go version: %s\n", runtime.Version())
			fmt.Fprintf(stdout, "  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")

	return cmd
}
