package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// buildInfo collects everything version reports, in display order.
func buildInfo() [][2]string {
	return [][2]string{
		{"version", version},
		{"commit", commit},
		{"built", date},
		{"go", runtime.Version()},
		{"platform", runtime.GOOS + "/" + runtime.GOARCH},
	}
}

func versionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show build information",
		Long:  "Show the keenstore version along with commit, build date, and toolchain details.",
		Run: func(cmd *cobra.Command, args []string) {
			if short {
				fmt.Println(version)
				return
			}
			fmt.Printf("keenstore %s\n", version)
			for _, kv := range buildInfo()[1:] {
				fmt.Printf("  %-10s %s\n", kv[0]+":", kv[1])
			}
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "version number only")

	return cmd
}
