package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the permitwatch version",
	Run: func(*cobra.Command, []string) {
		fmt.Println("permitwatch", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
