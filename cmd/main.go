package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/viant/afs"
	_ "github.com/viant/afsc/s3"

	"sales-agent/handler"
	"sales-agent/internal/app"
	"sales-agent/internal/config"
	"sales-agent/internal/integrations/paramstore"
	"sales-agent/internal/repository"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// ---- Configuration (read only here) ----
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		fatal("invalid configuration", err)
	}
	if cfg.ParamPrefix == "" {
		fatal("required environment variable is not set", nil, "key", "PARAM_PREFIX")
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Clients ----
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}
	if err := cfg.ApplyParameters(ctx, params); err != nil {
		fatal("failed to read parameters", err)
	}

	deps := app.Deps{FS: afs.New(), Logger: logger}
	if cfg.StateTable != "" {
		archive, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
		if err != nil {
			fatal("failed to create turn archive", err)
		}
		deps.Archive = archive
	}

	backend, err := app.NewBackend(cfg, params, logger)
	if err != nil {
		fatal("failed to create OpenAI client", err)
	}
	deps.Backend = backend

	// ---- Core ----
	core, err := app.New(ctx, cfg, deps)
	if err != nil {
		fatal("failed to start", err)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(core.Turns, handler.WithLogger(logger))
	if err != nil {
		fatal("failed to create handler", err)
	}

	logger.Info("sales agent ready",
		"catalog_url", cfg.CatalogURL,
		"archive", cfg.StateTable != "",
		"decision_model", cfg.DecisionModel,
	)
	lambda.Start(h.Handle)
}

func fatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "err", err)
	}
	slog.Error(msg, args...)
	os.Exit(1)
}
