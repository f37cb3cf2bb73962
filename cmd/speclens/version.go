package main

import (
	"fmt"

	"github.com/Harshitk-cp/speclens/internal/buildconfig"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		info := buildconfig.VersionInfo()
		fmt.Printf("speclens %s (%s)\n", info["version"], info["commit"])
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
