package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gridsome/gridsome/internal/app"
	"github.com/gridsome/gridsome/internal/config"
)

var (
	projectDir string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "Project root")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")
	rootCmd.AddCommand(buildCmd, routesCmd, developCmd)
}

var rootCmd = &cobra.Command{
	Use:          "gridsome",
	Short:        "Gridsome: content store and page engine for static sites",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

// loadApp reads the project configuration and builds the app.
func loadApp() (*app.App, error) {
	dir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	fsys := osfs.New(dir)
	cfg, name, err := config.Load(fsys)
	if err != nil {
		return nil, err
	}
	log := logrus.WithField("project", dir)
	if name != "" {
		log.WithField("config", name).Debug("loaded configuration")
	}
	return app.New(fsys, cfg, app.Options{Dir: dir, Log: log})
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
