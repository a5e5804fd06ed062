package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/radiowazoo/wwwbuild/internal/build"
	"github.com/radiowazoo/wwwbuild/internal/dev"
)

func serveCmd(a *app) *cobra.Command {
	var (
		port     int
		host     string
		noReload bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Build, serve the output and rebuild on change",
		Long: `Build once, serve the output directory and watch the sources.

A change re-runs only the task that consumes the file, then connected
browsers reload (stylesheet changes are swapped in place).

Examples:
  wwwbuild serve
  wwwbuild serve --port=9000
  wwwbuild serve --host=0.0.0.0 --no-reload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				a.cfg.Serve.Port = port
			}
			if host != "" {
				a.cfg.Serve.Host = host
			}
			if noReload {
				a.cfg.Serve.HotReload = false
			}
			return a.serve()
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from config)")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from config)")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "Disable live reload")

	return cmd
}

func (a *app) serve() error {
	builder := a.newBuilder()
	defer builder.Close()

	server, err := dev.NewServer(dev.ServerOptions{
		Config:  a.cfg,
		Builder: builder,
		Logger:  a.logger,
		OnRebuild: func(_ []build.TaskID, err error) {
			if err == nil {
				success("Rebuilt")
			}
		},
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info("Serving %s at http://%s", a.cfg.OutputPath(), a.cfg.ServeAddress())
	if err := server.Start(ctx); err != nil {
		return err
	}
	info("Shut down")
	return nil
}
