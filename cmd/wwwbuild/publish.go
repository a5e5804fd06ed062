package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/radiowazoo/wwwbuild/internal/build"
	"github.com/radiowazoo/wwwbuild/internal/publish"
)

func publishCmd(a *app) *cobra.Command {
	var (
		bucket       string
		prefix       string
		cacheControl string
		dryRun       bool
		skipBuild    bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload the output tree to S3",
		Long: `Build, then upload every file of the output directory to
s3://<bucket>/<prefix>/<path> with a content type from its extension.

Credentials are read from AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and
AWS_SESSION_TOKEN.

Examples:
  wwwbuild publish --bucket=radio-ui --prefix=fw/1.4.0
  wwwbuild publish --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bucket != "" {
				a.cfg.Publish.Bucket = bucket
			}
			if cmd.Flags().Changed("prefix") {
				a.cfg.Publish.Prefix = prefix
			}
			return a.publish(cacheControl, dryRun, skipBuild)
		},
	}

	cmd.Flags().StringVar(&bucket, "bucket", "", "Destination bucket (default from config)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Key prefix (default from config)")
	cmd.Flags().StringVar(&cacheControl, "cache-control", "", "Cache-Control header for every object")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the objects without uploading")
	cmd.Flags().BoolVar(&skipBuild, "no-build", false, "Upload the existing output without building")

	return cmd
}

func (a *app) publish(cacheControl string, dryRun, skipBuild bool) error {
	if !skipBuild {
		if err := a.runTask(build.TaskBuild); err != nil {
			return err
		}
	}

	var client publish.Client
	if !dryRun {
		c, err := publish.NewClient(a.cfg.Publish, os.Getenv)
		if err != nil {
			return err
		}
		client = c
	}

	uploader := publish.NewUploader(client, publish.Options{
		Bucket:       a.cfg.Publish.Bucket,
		Prefix:       a.cfg.Publish.Prefix,
		CacheControl: cacheControl,
		DryRun:       dryRun,
		Logger:       a.logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	report, err := uploader.Upload(ctx, a.cfg.OutputPath())
	if err != nil {
		return err
	}

	target := "s3://" + publish.ObjectKey(a.cfg.Publish.Bucket, a.cfg.Publish.Prefix)
	if dryRun {
		for _, o := range report.Objects {
			info("%s  %s  %s", o.Key, o.ContentType, formatBytes(o.Size))
		}
		success("Would publish %d files (%s) to %s", len(report.Objects), formatBytes(report.Bytes()), target)
		return nil
	}
	success("Published %d files (%s) to %s in %s", len(report.Objects), formatBytes(report.Bytes()), target, time.Since(start).Round(time.Millisecond))
	return nil
}
