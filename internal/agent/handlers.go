package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sales-agent/internal/domain"
)

const (
	defaultInfoQuery  = "información general"
	defaultClarify    = "¿Podrías proporcionar más información?"
	defaultOutOfScope = "Lo siento, eso está fuera de mi alcance."
)

var (
	errStockIDRequired = errors.New("agent: stock id is required")
	errMessageRequired = errors.New("agent: respond requires a message")
)

func (r *Router) searchCars(ctx context.Context, d domain.Decision) Result {
	mk, model := present(d.Make), present(d.Model)

	if model != nil && mk == nil {
		makes, err := r.catalog.MakesForModel(ctx, *model)
		if err != nil {
			return ErrorResult{Err: err, From: d}
		}
		if len(makes) > 1 {
			return ClarifyResult{
				Message: fmt.Sprintf("Encontré el modelo %s en varias marcas: %s. ¿Cuál prefieres?",
					*model, strings.Join(makes, ", ")),
				Missing: []domain.MissingField{domain.MissingMake},
				From:    d,
			}
		}
	}

	results, err := r.catalog.Search(ctx, domain.SearchCriteria{
		Make:     mk,
		Model:    model,
		Year:     d.Year,
		MaxPrice: d.PriceMax,
	})
	if err != nil {
		return ErrorResult{Err: err, From: d}
	}
	if results.TotalCount > 0 || (mk == nil && model == nil) {
		return SearchCarsResult{Results: results, From: d}
	}

	hints, err := r.suggest(ctx, mk, model)
	if err != nil {
		return ErrorResult{Err: err, From: d}
	}
	if len(hints) == 0 {
		return SearchCarsResult{Results: results, From: d}
	}
	return ClarifyResult{
		Message: fmt.Sprintf("No encontré coincidencias exactas. ¿Te referías a %s?", strings.Join(hints, ", ")),
		Missing: []domain.MissingField{},
		From:    d,
	}
}

// suggest returns at most one make hint and one model hint. A make that
// exists gets no hint and narrows the model candidates instead.
func (r *Router) suggest(ctx context.Context, mk, model *string) ([]string, error) {
	makes, err := r.catalog.AvailableMakes(ctx)
	if err != nil {
		return nil, err
	}

	var hints []string
	modelScope := ""
	if mk != nil {
		if containsFold(makes, *mk) {
			modelScope = *mk
		} else if s := r.catalog.SuggestClosestMatch(*mk, makes); len(s) > 0 {
			hints = append(hints, fmt.Sprintf("marca '%s'", s[0]))
		}
	}
	if model != nil {
		models, err := r.catalog.AvailableModels(ctx, modelScope)
		if err != nil {
			return nil, err
		}
		if s := r.catalog.SuggestClosestMatch(*model, models); len(s) > 0 {
			hints = append(hints, fmt.Sprintf("modelo '%s'", s[0]))
		}
	}
	return hints, nil
}

func (r *Router) carDetails(ctx context.Context, d domain.Decision) Result {
	id := present(d.StockID)
	if id == nil {
		return ErrorResult{Err: fmt.Errorf("%w for details", errStockIDRequired), From: d}
	}
	v, err := r.catalog.VehicleByStockID(ctx, *id)
	if err != nil {
		return ErrorResult{Err: err, From: d}
	}
	return CarDetailsResult{Vehicle: v, From: d}
}

func (r *Router) financing(ctx context.Context, d domain.Decision) Result {
	id := present(d.StockID)
	if id == nil {
		return ErrorResult{Err: fmt.Errorf("%w for financing", errStockIDRequired), From: d}
	}
	v, err := r.catalog.VehicleByStockID(ctx, *id)
	if err != nil {
		return ErrorResult{Err: err, From: d}
	}
	return FinancingResult{StockID: v.StockID, Price: v.Price, From: d}
}

func (r *Router) companyInfo(ctx context.Context, d domain.Decision) Result {
	content, err := r.info.Content(ctx)
	if err != nil {
		return ErrorResult{Err: err, From: d}
	}
	query := defaultInfoQuery
	if q := present(d.InfoQuery); q != nil {
		query = *q
	}
	return InfoResult{Content: content, Query: query, From: d}
}

func (r *Router) respond(_ context.Context, d domain.Decision) Result {
	if present(d.Message) == nil {
		return ErrorResult{Err: errMessageRequired, From: d}
	}
	return ResponseResult{Message: *d.Message, From: d}
}

func (r *Router) clarify(_ context.Context, d domain.Decision) Result {
	msg := defaultClarify
	if present(d.Message) != nil {
		msg = *d.Message
	}
	missing := d.MissingInformation
	if missing == nil {
		missing = []domain.MissingField{}
	}
	return ClarifyResult{Message: msg, Missing: missing, From: d}
}

func (r *Router) outOfScope(_ context.Context, d domain.Decision) Result {
	msg := defaultOutOfScope
	if present(d.Message) != nil {
		msg = *d.Message
	}
	return OutOfScopeResult{Message: msg, Reason: domain.Str(d.Reason), From: d}
}

// present treats a blank optional string as absent.
func present(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func containsFold(values []string, v string) bool {
	for _, s := range values {
		if strings.EqualFold(s, strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}
