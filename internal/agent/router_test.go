package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/viant/afs"

	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
)

const fixtureCSV = `stock_id,km,price,make,model,year,version,bluetooth,car_play
1001,77400,461999.0,Toyota,Corolla,2018,2.0 LE,Sí,No
1002,102184,231999.0,Honda,CR-V,2015,EX,Sí,Sí
1003,45000,389999.0,Toyota,Camry,2019,SE,No,Sí
1004,60000,520000.0,Mercedes-Benz,Sprinter,2017,Van,Sí,
1005,80000,450000.0,Dodge,Sprinter,2016,Cargo,,
`

const fixtureInfo = "Kavak ofrece garantía de 3 meses y sedes en CDMX."

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	ctx := context.Background()
	fs := afs.New()
	base := "mem://localhost/agent-test/" + strings.ReplaceAll(t.Name(), "/", "_")
	require.NoError(t, fs.Upload(ctx, base+"/catalog.csv", 0o644, strings.NewReader(fixtureCSV)))
	require.NoError(t, fs.Upload(ctx, base+"/info.txt", 0o644, strings.NewReader(fixtureInfo)))

	src, err := catalog.NewAFSSource(fs)
	require.NoError(t, err)
	engine, err := catalog.New(src, base+"/catalog.csv")
	require.NoError(t, err)
	info, err := catalog.NewInfo(src, base+"/info.txt")
	require.NoError(t, err)

	r, err := NewRouter(engine, info)
	require.NoError(t, err)
	return r
}

func route(t *testing.T, r *Router, d domain.Decision) Result {
	t.Helper()
	res, err := r.Route(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestNewRouter_Validates(t *testing.T) {
	_, err := NewRouter(nil, fakeInfo{})
	require.Error(t, err)
	_, err = NewRouter(&fakeCatalog{}, nil)
	require.Error(t, err)
}

func TestRoute_EveryActionHasAHandler(t *testing.T) {
	for _, a := range domain.Actions {
		_, ok := handlers[a]
		require.True(t, ok, "no handler for %s", a)
	}
	require.Len(t, handlers, len(domain.Actions))
}

func TestRoute_UnsupportedAction(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Route(context.Background(), domain.Decision{Action: "sell_car"})
	require.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestSearchCars_ExactMatch(t *testing.T) {
	r := newTestRouter(t)
	res := route(t, r, domain.Decision{
		Action: domain.ActionSearchCars,
		Make:   domain.Ptr("Toyota"),
		Model:  domain.Ptr("Corolla"),
	})

	got, ok := res.(SearchCarsResult)
	require.True(t, ok, "got %T", res)
	require.Equal(t, 1, got.Results.TotalCount)
	require.Equal(t, 1001, got.Results.Vehicles[0].StockID)
}

func TestSearchCars_PriceCeiling(t *testing.T) {
	r := newTestRouter(t)
	res := route(t, r, domain.Decision{
		Action:   domain.ActionSearchCars,
		Make:     domain.Ptr("toyota"),
		PriceMax: domain.Ptr(400000.0),
	})
	got := res.(SearchCarsResult)
	require.Equal(t, 1, got.Results.TotalCount)
	require.Equal(t, "Camry", got.Results.Vehicles[0].Model)
}

func TestSearchCars_AmbiguousModelAsksForMake(t *testing.T) {
	r := newTestRouter(t)
	res := route(t, r, domain.Decision{
		Action: domain.ActionSearchCars,
		Model:  domain.Ptr("sprinter"),
	})

	got, ok := res.(ClarifyResult)
	require.True(t, ok, "got %T", res)
	require.Equal(t, []domain.MissingField{domain.MissingMake}, got.Missing)
	require.Contains(t, got.Message, "Dodge, Mercedes-Benz")
}

func TestSearchCars_UnambiguousModelSearches(t *testing.T) {
	r := newTestRouter(t)
	res := route(t, r, domain.Decision{
		Action: domain.ActionSearchCars,
		Model:  domain.Ptr("Camry"),
	})
	got := res.(SearchCarsResult)
	require.Equal(t, 1, got.Results.TotalCount)
}

func TestSearchCars_SuggestsOnZeroResults(t *testing.T) {
	tests := []struct {
		name     string
		decision domain.Decision
		want     string
		notWant  string
	}{
		{
			name:     "make typo",
			decision: domain.Decision{Action: domain.ActionSearchCars, Make: domain.Ptr("Toyot")},
			want:     "marca 'Toyota'",
		},
		{
			name:     "model typo within known make",
			decision: domain.Decision{Action: domain.ActionSearchCars, Make: domain.Ptr("Toyota"), Model: domain.Ptr("Corola")},
			want:     "modelo 'Corolla'",
			notWant:  "marca",
		},
		{
			name:     "both typos",
			decision: domain.Decision{Action: domain.ActionSearchCars, Make: domain.Ptr("Hond"), Model: domain.Ptr("Sprinterr")},
			want:     "marca 'Honda', modelo 'Sprinter'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t)
			res := route(t, r, tt.decision)
			got, ok := res.(ClarifyResult)
			require.True(t, ok, "got %T", res)
			require.Contains(t, got.Message, tt.want)
			require.Empty(t, got.Missing)
			if tt.notWant != "" {
				require.NotContains(t, got.Message, tt.notWant)
			}
		})
	}
}

func TestSearchCars_EmptyResultWithoutSuggestion(t *testing.T) {
	r := newTestRouter(t)
	res := route(t, r, domain.Decision{
		Action: domain.ActionSearchCars,
		Make:   domain.Ptr("Ferrari"),
	})
	got, ok := res.(SearchCarsResult)
	require.True(t, ok, "got %T", res)
	require.Zero(t, got.Results.TotalCount)
	require.NotNil(t, got.Results.Vehicles)
}

func TestSearchCars_InvalidCriteriaIsErrorResult(t *testing.T) {
	r := newTestRouter(t)
	res := route(t, r, domain.Decision{
		Action: domain.ActionSearchCars,
		Year:   domain.Ptr(1800),
	})
	got, ok := res.(ErrorResult)
	require.True(t, ok, "got %T", res)
	require.ErrorIs(t, got.Err, catalog.ErrInvalidSearchParameters)
}

func TestCarDetails(t *testing.T) {
	r := newTestRouter(t)

	res := route(t, r, domain.Decision{Action: domain.ActionGetCarDetails, StockID: domain.Ptr("1003")})
	got, ok := res.(CarDetailsResult)
	require.True(t, ok, "got %T", res)
	require.Equal(t, "Camry", got.Vehicle.Model)

	res = route(t, r, domain.Decision{Action: domain.ActionGetCarDetails})
	require.ErrorIs(t, res.(ErrorResult).Err, errStockIDRequired)

	res = route(t, r, domain.Decision{Action: domain.ActionGetCarDetails, StockID: domain.Ptr("9999")})
	require.ErrorIs(t, res.(ErrorResult).Err, catalog.ErrNotFound)

	res = route(t, r, domain.Decision{Action: domain.ActionGetCarDetails, StockID: domain.Ptr("abc")})
	require.ErrorIs(t, res.(ErrorResult).Err, catalog.ErrInvalidSearchParameters)
}

func TestFinancing(t *testing.T) {
	r := newTestRouter(t)

	res := route(t, r, domain.Decision{Action: domain.ActionGetFinancingOptions, StockID: domain.Ptr(" 1001 ")})
	got, ok := res.(FinancingResult)
	require.True(t, ok, "got %T", res)
	require.Equal(t, 461999.0, got.Price)
	require.Equal(t, 1001, got.StockID)

	res = route(t, r, domain.Decision{Action: domain.ActionGetFinancingOptions, StockID: domain.Ptr("")})
	require.ErrorIs(t, res.(ErrorResult).Err, errStockIDRequired)
}

func TestInfo(t *testing.T) {
	r := newTestRouter(t)

	res := route(t, r, domain.Decision{Action: domain.ActionGetKavakInfo})
	got, ok := res.(InfoResult)
	require.True(t, ok, "got %T", res)
	require.Equal(t, fixtureInfo, got.Content)
	require.Equal(t, defaultInfoQuery, got.Query)

	res = route(t, r, domain.Decision{Action: domain.ActionGetKavakInfo, InfoQuery: domain.Ptr("garantía")})
	require.Equal(t, "garantía", res.(InfoResult).Query)
}

func TestInfo_Unavailable(t *testing.T) {
	r, err := NewRouter(&fakeCatalog{}, fakeInfo{err: catalog.ErrInfoUnavailable})
	require.NoError(t, err)
	res := route(t, r, domain.Decision{Action: domain.ActionGetKavakInfo})
	require.ErrorIs(t, res.(ErrorResult).Err, catalog.ErrInfoUnavailable)
}

func TestRespondClarifyOutOfScope(t *testing.T) {
	r := newTestRouter(t)

	res := route(t, r, domain.Decision{Action: domain.ActionRespond, Message: domain.Ptr("ok")})
	require.Equal(t, ResponseResult{Message: "ok", From: res.Decision()}, res)

	res = route(t, r, domain.Decision{Action: domain.ActionRespond, Message: domain.Ptr("  ¡Hola!\n")})
	require.Equal(t, "  ¡Hola!\n", res.(ResponseResult).Message)

	res = route(t, r, domain.Decision{Action: domain.ActionRespond})
	require.ErrorIs(t, res.(ErrorResult).Err, errMessageRequired)

	res = route(t, r, domain.Decision{Action: domain.ActionRespond, Message: domain.Ptr("   ")})
	require.ErrorIs(t, res.(ErrorResult).Err, errMessageRequired)

	res = route(t, r, domain.Decision{Action: domain.ActionClarify})
	c := res.(ClarifyResult)
	require.Equal(t, defaultClarify, c.Message)
	require.Empty(t, c.Missing)

	res = route(t, r, domain.Decision{
		Action:             domain.ActionClarify,
		Message:            domain.Ptr("¿Qué presupuesto?"),
		MissingInformation: []domain.MissingField{domain.MissingPriceMax},
	})
	c = res.(ClarifyResult)
	require.Equal(t, "¿Qué presupuesto?", c.Message)
	require.Equal(t, []domain.MissingField{domain.MissingPriceMax}, c.Missing)

	res = route(t, r, domain.Decision{Action: domain.ActionOutOfScope, Reason: domain.Ptr("weather")})
	o := res.(OutOfScopeResult)
	require.Equal(t, defaultOutOfScope, o.Message)
	require.Equal(t, "weather", o.Reason)

	res = route(t, r, domain.Decision{Action: domain.ActionOutOfScope, Message: domain.Ptr(" Solo vendo autos. ")})
	require.Equal(t, " Solo vendo autos. ", res.(OutOfScopeResult).Message)
}

func TestSearchCars_CatalogFailureIsErrorResult(t *testing.T) {
	boom := errors.New("boom")
	r, err := NewRouter(&fakeCatalog{err: boom}, fakeInfo{})
	require.NoError(t, err)

	res := route(t, r, domain.Decision{Action: domain.ActionSearchCars, Model: domain.Ptr("Corolla")})
	require.ErrorIs(t, res.(ErrorResult).Err, boom)

	res = route(t, r, domain.Decision{Action: domain.ActionSearchCars})
	require.ErrorIs(t, res.(ErrorResult).Err, boom)
}

type fakeCatalog struct {
	err error
}

func (f *fakeCatalog) Search(context.Context, domain.SearchCriteria) (domain.SearchResults, error) {
	return domain.NewSearchResults(nil), f.err
}

func (f *fakeCatalog) VehicleByStockID(context.Context, string) (domain.Vehicle, error) {
	return domain.Vehicle{}, f.err
}

func (f *fakeCatalog) AvailableMakes(context.Context) ([]string, error) {
	return nil, f.err
}

func (f *fakeCatalog) AvailableModels(context.Context, string) ([]string, error) {
	return nil, f.err
}

func (f *fakeCatalog) MakesForModel(context.Context, string) ([]string, error) {
	return nil, f.err
}

func (f *fakeCatalog) SuggestClosestMatch(string, []string) []string {
	return nil
}

type fakeInfo struct {
	content string
	err     error
}

func (f fakeInfo) Content(context.Context) (string, error) {
	return f.content, f.err
}
