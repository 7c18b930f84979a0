package main

import "github.com/spf13/cobra"

var varietyCmd = &cobra.Command{
	Use:   "variety",
	Short: "Maintain the grape-variety catalogue",
}

func init() { rootCmd.AddCommand(varietyCmd) }
