// Command abcdcrawler periodically crawls the GFBio ABCD collection
// feed and loads it into PostgreSQL/PostGIS.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "abcdcrawler",
	Short: "Crawl ABCD biodiversity collection datasets into PostgreSQL",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "abcdcrawler.hcl", "Path to the HCL configuration file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(parseFileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
