// Package cmd implements the queryrpc command-line interface: a serve
// command that runs the query server and client commands (query, schema)
// that talk to one.
//
// Every flag can also be provided as an environment variable with the
// QUERYRPC_ prefix; .env and .env.local files are loaded if present.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.1"

var (
	rootCmd = &cobra.Command{
		Use:   "queryrpc",
		Short: "query execution RPC service",
		Long: `queryrpc serves tabular data over a session-oriented RPC protocol:
execute a query, then fetch its rows one at a time or in batches.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the queryrpc version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("queryrpc v%s\n", version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
