package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/boardsync/boardsync/internal/engine"
	"github.com/boardsync/boardsync/pkg/service"
)

var (
	Version   = "dev"     // Set at build time
	GitCommit = "unknown" // Git commit hash
	BuildTime = "unknown" // Build timestamp
)

func main() {
	var (
		configFile string
		port       int
	)

	rootCmd := &cobra.Command{
		Use:           "boardsync",
		Short:         "Bidirectional board sync engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync service",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := service.NewBaseService("boardsync", Version, port, engine.NewService())
			if configFile != "" {
				if err := svc.Config.LoadFile(configFile); err != nil {
					return fmt.Errorf("failed to load config %s: %w", configFile, err)
				}
			}
			svc.Config.LoadEnv("BOARDSYNC")
			return svc.Run(context.Background())
		},
	}
	serveCmd.Flags().StringVarP(&configFile, "config", "c", "", "configuration file path")
	serveCmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("boardsync %s (build %s, commit %s)\n", Version, BuildTime, GitCommit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
