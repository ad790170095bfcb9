package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// newVersionCmd creates the command that prints the build version.
func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tokenkit",
		Long:  `All software has versions. This is tokenkit's.`,
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tokenkit version %s (%s, %s/%s)\n", rootCmd.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")
	return cmd
}
