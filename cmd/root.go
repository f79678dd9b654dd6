package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the coachcontacts application
var rootCmd = &cobra.Command{
	Use:   "coachcontacts",
	Short: "Keeps a coach's contacts in a Google Sheet",
	Long: `coachcontacts stores each coach's contacts in a Google Sheet owned by the
coach and serves them to the coaching dashboard.

It can run as:
  - An HTTP service for the dashboard, with the MCP endpoint at /mcp (default)
  - An MCP (Model Context Protocol) server over stdio for AI assistants`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "coachcontacts version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
