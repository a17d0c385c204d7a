package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"gwi.com/mermaid-studio/internal/app"
	"gwi.com/mermaid-studio/internal/config"
)

// Version is set via ldflags at build time.
var Version = "dev"

var (
	dbPath       string
	rendererName string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Mermaid diagram studio for the terminal",
	Long: `studio edits, renders and exports Mermaid diagrams from the command line.
It shares its session (current diagram, theme, AI settings and snapshot
history) with the studio web server through the same database, and can
expose the studio to AI agents over MCP.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// stdout may carry diagrams or MCP traffic.
		log.SetOutput(os.Stderr)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		if !verbose {
			log.SetFlags(0)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&rendererName, "renderer", "", "renderer backend: mmdc or kroki (default $RENDERER)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version of studio",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "studio %s\n", Version)
		},
	})
}

// loadConfig reads .env and the environment, then applies flag overrides.
func loadConfig() config.Config {
	config.LoadConfig()
	cfg := config.AppConfig
	if dbPath != "" {
		cfg.DatabaseURL = dbPath
	}
	if rendererName != "" {
		cfg.Renderer = rendererName
	}
	if verbose {
		cfg.LogLevel = "DEBUG"
	}
	return cfg
}

func openApp() (*app.App, error) {
	return app.New(loadConfig())
}
