package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/viant/afs"

	"sales-agent/internal/agent"
	"sales-agent/internal/catalog"
	"sales-agent/internal/config"
	"sales-agent/internal/integrations/openai"
	"sales-agent/internal/session"
	"sales-agent/internal/usecase"
)

// Deps are the collaborators built by the entrypoint from its own
// environment.
type Deps struct {
	FS      afs.Service
	Backend usecase.Backend
	// Archive is optional.
	Archive usecase.TurnArchiver
	Logger  *slog.Logger
}

// App is the wired conversational core.
type App struct {
	Catalog   *catalog.Engine
	Info      *catalog.Info
	Sessions  *session.Store
	Router    *agent.Router
	Persister *usecase.Persister
	Turns     *usecase.TurnService
}

// New wires the core from cfg and loads the catalog so a missing or
// malformed dataset fails startup.
func New(ctx context.Context, cfg config.Config, deps Deps) (*App, error) {
	if deps.FS == nil {
		return nil, errors.New("app: afs service must not be nil")
	}
	if deps.Backend == nil {
		return nil, errors.New("app: backend must not be nil")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	src, err := catalog.NewAFSSource(deps.FS)
	if err != nil {
		return nil, err
	}
	engine, err := catalog.New(src, cfg.CatalogURL,
		catalog.WithSuggestionCutoff(cfg.FuzzyCutoff),
		catalog.WithMaxSuggestions(cfg.MaxSuggestions),
		catalog.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	if err := engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("app: load catalog: %w", err)
	}
	info, err := catalog.NewInfo(src, cfg.InfoURL)
	if err != nil {
		return nil, err
	}

	store, err := session.New(cfg.SessionTTL, session.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	router, err := agent.NewRouter(engine, info, agent.WithRouterLogger(logger))
	if err != nil {
		return nil, err
	}

	popts := []usecase.PersisterOption{
		usecase.WithQueueSize(cfg.PersistQueueSize),
		usecase.WithPersisterLogger(logger),
	}
	if deps.Archive != nil {
		popts = append(popts, usecase.WithArchiver(deps.Archive))
	}
	persister, err := usecase.NewPersister(popts...)
	if err != nil {
		return nil, err
	}

	turns, err := usecase.NewTurnService(store, router, deps.Backend, persister,
		usecase.WithHumanize(cfg.Humanize),
		usecase.WithMaxMessageLength(cfg.MaxMessageLength),
		usecase.WithLogger(logger),
	)
	if err != nil {
		_ = persister.Close(ctx)
		return nil, err
	}

	return &App{
		Catalog:   engine,
		Info:      info,
		Sessions:  store,
		Router:    router,
		Persister: persister,
		Turns:     turns,
	}, nil
}

// Close waits for queued turn archives.
func (a *App) Close(ctx context.Context) error {
	return a.Persister.Close(ctx)
}

// NewBackend builds the OpenAI reasoning backend using the models from cfg.
func NewBackend(cfg config.Config, tokens openai.Getter, logger *slog.Logger) (*openai.Client, error) {
	if cfg.ParamPrefix == "" {
		return nil, errors.New("app: PARAM_PREFIX is required for the reasoning backend")
	}
	return openai.NewClient(tokens, cfg.ParamPrefix,
		openai.WithDecisionModel(cfg.DecisionModel),
		openai.WithResponseModel(cfg.ResponseModel),
		openai.WithLogger(logger),
	)
}
