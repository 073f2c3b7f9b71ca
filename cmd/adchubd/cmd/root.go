// Package cmd implements the adchubd command-line surface: the serve and
// ping subcommands, wired through cobra/viper.
package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version is the adchubd build version, set by the release tooling's
// -ldflags.
var Version = "dev"

// Root is the adchubd root command.
var Root = &cobra.Command{
	Use: "adchubd <command>",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Version:\t%s\nGo runtime:\t%s\n\n", Version, runtime.Version())
	},
}
