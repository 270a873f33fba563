// Command chat runs the sales agent locally: an interactive session, a
// single question, a direct catalog search or an archived transcript.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/spf13/cobra"
	"github.com/viant/afs"
	_ "github.com/viant/afsc/s3"

	"sales-agent/internal/app"
	"sales-agent/internal/config"
	"sales-agent/internal/integrations/paramstore"
	"sales-agent/internal/repository"
)

type options struct {
	catalogURL string
	infoURL    string
	verbose    bool
	timeout    time.Duration
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "chat",
		Short:         "Run the vehicle sales agent from a terminal",
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.catalogURL, "catalog", "", "Catalog CSV URL (default: $CATALOG_URL)")
	root.PersistentFlags().StringVar(&opts.infoURL, "info", "", "Company info URL (default: $INFO_URL)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "Timeout for a single command")

	root.AddCommand(
		newChatCmd(opts),
		newAskCmd(opts),
		newSearchCmd(opts),
		newTranscriptCmd(opts),
	)
	return root
}

// loadConfig reads the environment with flag overrides applied.
func loadConfig(opts *options) (config.Config, error) {
	return config.FromEnv(func(key string) string {
		switch {
		case key == "CATALOG_URL" && opts.catalogURL != "":
			return opts.catalogURL
		case key == "INFO_URL" && opts.infoURL != "":
			return opts.infoURL
		}
		return os.Getenv(key)
	})
}

// buildCore wires the full agent against AWS, as the Lambda does.
func buildCore(ctx context.Context, cfg config.Config) (*app.App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyParameters(ctx, params); err != nil {
		return nil, err
	}
	backend, err := app.NewBackend(cfg, params, slog.Default())
	if err != nil {
		return nil, err
	}
	deps := app.Deps{FS: afs.New(), Backend: backend, Logger: slog.Default()}
	if cfg.StateTable != "" {
		archive, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			return nil, err
		}
		deps.Archive = archive
	}
	return app.New(ctx, cfg, deps)
}

func newArchive(ctx context.Context, table string) (*repository.Client, error) {
	if table == "" {
		return nil, fmt.Errorf("STATE_TABLE is not set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return repository.New(awsdynamodb.NewFromConfig(awsCfg), table)
}
