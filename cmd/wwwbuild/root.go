package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/radiowazoo/wwwbuild/internal/build"
	"github.com/radiowazoo/wwwbuild/internal/config"
	"github.com/radiowazoo/wwwbuild/internal/errors"
	"github.com/radiowazoo/wwwbuild/internal/metrics"
)

// app holds the state shared by all commands of one invocation.
type app struct {
	configPath  string
	source      string
	output      string
	metricsFile string
	verbose     bool
	noColor     bool

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "wwwbuild",
		Short: "Build the device web UI",
		Long: `wwwbuild builds the static web UI served from the device filesystem.

A build empties the output directory, then runs in parallel:

  • scss    compile and minify stylesheets to .min.css
  • js      bundle and minify the script entry point
  • html    copy markup, pointing it at the minified files
  • images  copy image assets unchanged

Running wwwbuild with no command runs the full build.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.noColor {
				setColor(false, false)
			}
			if !needsConfig(cmd) {
				return nil
			}
			return a.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTask(build.TaskBuild)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Config file (default: wwwbuild.json in the project root)")
	flags.StringVar(&a.source, "source", "", "Source directory (default from config)")
	flags.StringVar(&a.output, "output", "", "Output directory (default from config)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		buildCmd(a),
		taskCmd(a, build.TaskClean, "Empty the output directory"),
		taskCmd(a, build.TaskStylesheet, "Compile and minify stylesheets", "stylesheet", "css"),
		taskCmd(a, build.TaskScript, "Bundle and minify the script entry point", "script"),
		taskCmd(a, build.TaskMarkup, "Copy markup with minified references", "markup"),
		taskCmd(a, build.TaskAssets, "Copy image assets", "assets"),
		serveCmd(a),
		publishCmd(a),
		versionCmd(),
	)

	return rootCmd
}

// needsConfig reports whether cmd works on a project. Help, completion
// and version must run even when the config file is broken.
func needsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", "version", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// setup installs the logger and metrics and loads the configuration.
func (a *app) setup() error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	a.metrics = metrics.New()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.source != "" {
		cfg.Source = a.source
	}
	if a.output != "" {
		cfg.Output = a.output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if cfg.Path() != "" {
		a.logger.Debug("config loaded", "path", cfg.Path())
	} else {
		a.logger.Debug("no config file, using defaults", "dir", cfg.Dir())
	}
	return nil
}

// loadConfig reads --config, or the nearest config file, or falls back
// to defaults rooted at the working directory.
func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.LoadFile(a.configPath)
	}

	cfg, err := config.LoadFromWorkingDir()
	if errors.Code(err) != "E151" {
		return cfg, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return config.NewAt(wd), nil
}

// writeMetrics writes the metrics textfile when --metrics-file is set.
func (a *app) writeMetrics() error {
	if a.metricsFile == "" || a.metrics == nil {
		return nil
	}
	if err := a.metrics.WriteTextfile(a.metricsFile); err != nil {
		return errors.New("E163").WithDetail(a.metricsFile).Wrap(err)
	}
	return nil
}
