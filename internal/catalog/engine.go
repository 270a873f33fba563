package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"sales-agent/internal/domain"
)

const (
	defaultCutoff         = 0.8
	defaultMaxSuggestions = 3
)

// Engine answers searches over a vehicle dataset that is loaded once and
// cached until Invalidate is called. After the first successful load it is
// safe for concurrent use.
type Engine struct {
	source Source
	url    string
	logger *slog.Logger
	now    func() time.Time

	cutoff         float64
	maxSuggestions int

	validate *validator.Validate
	flight   singleflight.Group

	mu       sync.RWMutex
	records  []record
	loaded   bool
	loadedAt time.Time
	gen      uint64
}

type Option func(*Engine)

// WithSuggestionCutoff sets the minimum similarity ratio in (0, 1] for a
// fuzzy suggestion.
func WithSuggestionCutoff(cutoff float64) Option {
	return func(e *Engine) {
		if cutoff > 0 && cutoff <= 1 {
			e.cutoff = cutoff
		}
	}
}

// WithMaxSuggestions caps how many fuzzy suggestions are returned.
func WithMaxSuggestions(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSuggestions = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an Engine reading the dataset at url from source. Nothing is
// read until the first query or an explicit Load.
func New(source Source, url string, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("catalog: source must not be nil")
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("catalog: dataset url must not be empty")
	}
	e := &Engine{
		source:         source,
		url:            url,
		logger:         slog.Default(),
		now:            time.Now,
		cutoff:         defaultCutoff,
		maxSuggestions: defaultMaxSuggestions,
	}
	for _, opt := range opts {
		opt(e)
	}
	v, err := newCriteriaValidator(e.now)
	if err != nil {
		return nil, err
	}
	e.validate = v
	return e, nil
}

// Load reads the dataset now instead of on first use. Callers use it to
// fail startup on a missing or malformed catalog.
func (e *Engine) Load(ctx context.Context) error {
	_, err := e.dataset(ctx)
	return err
}

// Invalidate drops the cached dataset; the next query reloads it.
func (e *Engine) Invalidate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = nil
	e.loaded = false
	e.gen++
	e.flight.Forget(e.url)
}

func (e *Engine) dataset(ctx context.Context) ([]record, error) {
	e.mu.RLock()
	if e.loaded {
		recs := e.records
		e.mu.RUnlock()
		return recs, nil
	}
	gen := e.gen
	e.mu.RUnlock()

	v, err, _ := e.flight.Do(e.url, func() (any, error) {
		recs, err := e.read(ctx)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.gen == gen {
			e.records = recs
			e.loaded = true
			e.loadedAt = e.now()
		}
		e.logger.Info("catalog loaded", "url", e.url, "vehicles", len(recs))
		return recs, nil
	})
	if err != nil {
		e.logger.Error("catalog load failed", "url", e.url, "err", err)
		return nil, err
	}
	return v.([]record), nil
}

func (e *Engine) read(ctx context.Context) ([]record, error) {
	ok, err := e.source.Exists(ctx, e.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogLoad, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCatalogNotFound, e.url)
	}
	text, err := e.source.ReadText(ctx, e.url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCatalogLoad, err)
	}
	return parseCatalog(text)
}

// Search returns every vehicle matching all set criteria, in dataset order.
// An empty match is not an error.
func (e *Engine) Search(ctx context.Context, c domain.SearchCriteria) (domain.SearchResults, error) {
	if err := e.validateCriteria(c); err != nil {
		return domain.SearchResults{}, err
	}
	recs, err := e.dataset(ctx)
	if err != nil {
		return domain.SearchResults{}, err
	}

	makeKey := normalize(domain.Str(c.Make))
	modelKey := normalize(domain.Str(c.Model))

	var out []domain.Vehicle
	for _, r := range recs {
		if makeKey != "" && r.makeKey != makeKey {
			continue
		}
		if modelKey != "" && r.modelKey != modelKey {
			continue
		}
		if c.Year != nil && r.vehicle.Year != *c.Year {
			continue
		}
		if c.MaxKm != nil && r.vehicle.Km > *c.MaxKm {
			continue
		}
		if c.MaxPrice != nil && r.vehicle.Price > *c.MaxPrice {
			continue
		}
		out = append(out, r.vehicle)
	}
	return domain.NewSearchResults(out), nil
}

// VehicleByStockID looks a vehicle up by its stock id given as text.
func (e *Engine) VehicleByStockID(ctx context.Context, stockID string) (domain.Vehicle, error) {
	id, err := strconv.Atoi(strings.TrimSpace(stockID))
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("%w: stock id %q is not an integer", ErrInvalidSearchParameters, stockID)
	}
	recs, err := e.dataset(ctx)
	if err != nil {
		return domain.Vehicle{}, err
	}
	for _, r := range recs {
		if r.vehicle.StockID == id {
			return r.vehicle, nil
		}
	}
	return domain.Vehicle{}, fmt.Errorf("%w: stock id %d", ErrNotFound, id)
}

// AvailableMakes returns the distinct makes, title-cased and sorted.
func (e *Engine) AvailableMakes(ctx context.Context) ([]string, error) {
	recs, err := e.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(recs, nil, func(r record) string { return r.vehicle.Make }), nil
}

// AvailableModels returns the distinct models, optionally restricted to
// one make.
func (e *Engine) AvailableModels(ctx context.Context, makeFilter string) ([]string, error) {
	recs, err := e.dataset(ctx)
	if err != nil {
		return nil, err
	}
	makeKey := normalize(makeFilter)
	var keep func(record) bool
	if makeKey != "" {
		keep = func(r record) bool { return r.makeKey == makeKey }
	}
	return distinct(recs, keep, func(r record) string { return r.vehicle.Model }), nil
}

// MakesForModel returns every make that sells model.
func (e *Engine) MakesForModel(ctx context.Context, model string) ([]string, error) {
	modelKey := normalize(model)
	if modelKey == "" {
		return nil, nil
	}
	recs, err := e.dataset(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(recs,
		func(r record) bool { return r.modelKey == modelKey },
		func(r record) string { return r.vehicle.Make },
	), nil
}

// SuggestClosestMatch returns up to the configured number of candidates
// similar to value, best first.
func (e *Engine) SuggestClosestMatch(value string, candidates []string) []string {
	return closeMatches(value, candidates, e.maxSuggestions, e.cutoff)
}

// LoadedAt reports when the cached dataset was read, or the zero time.
func (e *Engine) LoadedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadedAt
}

func distinct(recs []record, keep func(record) bool, value func(record) string) []string {
	set := make(map[string]struct{})
	for _, r := range recs {
		if keep != nil && !keep(r) {
			continue
		}
		set[value(r)] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
