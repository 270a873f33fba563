package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"sales-agent/internal/domain"
)

// ErrUnsupportedAction is returned by Route for an action with no handler.
var ErrUnsupportedAction = errors.New("agent: unsupported action")

// Catalog is the subset of the catalog engine used by the handlers.
type Catalog interface {
	Search(ctx context.Context, c domain.SearchCriteria) (domain.SearchResults, error)
	VehicleByStockID(ctx context.Context, stockID string) (domain.Vehicle, error)
	AvailableMakes(ctx context.Context) ([]string, error)
	AvailableModels(ctx context.Context, makeFilter string) ([]string, error)
	MakesForModel(ctx context.Context, model string) ([]string, error)
	SuggestClosestMatch(value string, candidates []string) []string
}

// InfoProvider returns the company information document.
type InfoProvider interface {
	Content(ctx context.Context) (string, error)
}

type handlerFunc func(r *Router, ctx context.Context, d domain.Decision) Result

// handlers is fixed at compile time; Route never mutates it.
var handlers = map[domain.Action]handlerFunc{
	domain.ActionSearchCars:          (*Router).searchCars,
	domain.ActionGetCarDetails:       (*Router).carDetails,
	domain.ActionGetFinancingOptions: (*Router).financing,
	domain.ActionGetKavakInfo:        (*Router).companyInfo,
	domain.ActionRespond:             (*Router).respond,
	domain.ActionClarify:             (*Router).clarify,
	domain.ActionOutOfScope:          (*Router).outOfScope,
}

// Router executes decisions against the catalog and the info source.
type Router struct {
	catalog Catalog
	info    InfoProvider
	logger  *slog.Logger
}

type RouterOption func(*Router)

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRouter(catalog Catalog, info InfoProvider, opts ...RouterOption) (*Router, error) {
	if catalog == nil {
		return nil, errors.New("agent: catalog must not be nil")
	}
	if info == nil {
		return nil, errors.New("agent: info provider must not be nil")
	}
	r := &Router{catalog: catalog, info: info, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Route runs the handler registered for d.Action. Handler failures come
// back as ErrorResult; the returned error is reserved for actions with no
// handler, which is a programming error in the caller.
func (r *Router) Route(ctx context.Context, d domain.Decision) (Result, error) {
	h, ok := handlers[d.Action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, d.Action)
	}
	res := h(r, ctx, d)
	r.logger.Debug("decision routed", "action", d.Action, "result", res.Kind())
	return res, nil
}
