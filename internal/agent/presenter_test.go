package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
)

func TestPresenter_Render(t *testing.T) {
	corolla := domain.Vehicle{StockID: 1001, Make: "Toyota", Model: "Corolla", Year: 2018, Price: 461999}
	camry := domain.Vehicle{StockID: 1003, Make: "Toyota", Model: "Camry", Year: 2019, Price: 389999}

	tests := []struct {
		name         string
		result       Result
		wantMessage  string
		wantVehicles int
	}{
		{
			name: "no matches names the criteria",
			result: SearchCarsResult{
				Results: domain.NewSearchResults(nil),
				From:    domain.Decision{Action: domain.ActionSearchCars, Make: domain.Ptr("Toyota"), Model: domain.Ptr("Supra")},
			},
			wantMessage: "No encontré Toyota Supra con esos criterios. ¿Te gustaría buscar algo diferente?",
		},
		{
			name:        "no matches without criteria",
			result:      SearchCarsResult{Results: domain.NewSearchResults(nil)},
			wantMessage: "No encontré vehículos con esos criterios. ¿Te gustaría buscar algo diferente?",
		},
		{
			name:         "one match",
			result:       SearchCarsResult{Results: domain.NewSearchResults([]domain.Vehicle{corolla})},
			wantMessage:  "¡Encontré 1 vehículo que coincide con tu búsqueda!",
			wantVehicles: 1,
		},
		{
			name:         "several matches",
			result:       SearchCarsResult{Results: domain.NewSearchResults([]domain.Vehicle{corolla, camry})},
			wantMessage:  "¡Encontré 2 vehículos que coinciden con tu búsqueda!",
			wantVehicles: 2,
		},
		{
			name:        "details",
			result:      CarDetailsResult{Vehicle: corolla},
			wantMessage: "Detalles del vehículo 1001: Toyota Corolla 2018",
		},
		{
			name:        "financing",
			result:      FinancingResult{StockID: 1001, Price: 461999},
			wantMessage: "Opciones de financiamiento para vehículo con precio $461,999 MXN",
		},
		{
			name:        "info",
			result:      InfoResult{Content: "raw", Query: "garantía"},
			wantMessage: "Información sobre Kavak: garantía",
		},
		{
			name:        "response",
			result:      ResponseResult{Message: "ok"},
			wantMessage: "ok",
		},
		{
			name:        "clarify",
			result:      ClarifyResult{Message: "¿Qué marca?", Missing: []domain.MissingField{domain.MissingMake}},
			wantMessage: "¿Qué marca?",
		},
		{
			name:        "out of scope",
			result:      OutOfScopeResult{Message: "No puedo ayudarte con eso."},
			wantMessage: "No puedo ayudarte con eso.",
		},
	}
	p := NewPresenter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Render(tt.result)
			require.True(t, got.Success)
			require.Equal(t, tt.wantMessage, got.Message)
			require.Len(t, got.Vehicles, tt.wantVehicles)
			require.NotNil(t, got.Vehicles)
		})
	}
}

func TestPresenter_ErrorIsGenericAndLogged(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(slog.New(slog.NewTextHandler(&buf, nil)))

	got := p.Render(ErrorResult{
		Err:  errors.New("dynamo exploded at row 7"),
		From: domain.Decision{Action: domain.ActionGetCarDetails, StockID: domain.Ptr("7")},
	})

	require.False(t, got.Success)
	require.Equal(t, GenericErrorMessage, got.Message)
	require.NotContains(t, got.Message, "dynamo")
	require.Empty(t, got.Vehicles)
	require.Contains(t, buf.String(), "dynamo exploded at row 7")
	require.Contains(t, buf.String(), "get_car_details")
}

func TestPresenter_ActionableErrors(t *testing.T) {
	p := NewPresenter(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "missing stock id", err: fmt.Errorf("%w for financing", errStockIDRequired), want: stockIDRequiredMessage},
		{name: "unknown stock id", err: fmt.Errorf("%w: stock id 9999", catalog.ErrNotFound), want: vehicleNotFoundMessage},
		{name: "bad criteria", err: fmt.Errorf("%w: year must be >= 1900", catalog.ErrInvalidSearchParameters), want: invalidCriteriaMessage},
		{name: "info source down", err: catalog.ErrInfoUnavailable, want: GenericErrorMessage},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Render(ErrorResult{Err: tc.err})
			require.False(t, got.Success)
			require.Equal(t, tc.want, got.Message)
		})
	}
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "$461,999 MXN", FormatPrice(461999))
	require.Equal(t, "$1,250,000 MXN", FormatPrice(1249999.6))
	require.Equal(t, "$950 MXN", FormatPrice(950))
}

func TestVehicles(t *testing.T) {
	v := []domain.Vehicle{{StockID: 1}}
	require.Equal(t, v, Vehicles(SearchCarsResult{Results: domain.NewSearchResults(v)}))
	require.Nil(t, Vehicles(CarDetailsResult{Vehicle: v[0]}))
}

type kindCounter map[Kind]int

func (k kindCounter) VisitSearchCars(r SearchCarsResult) { k[r.Kind()]++ }
func (k kindCounter) VisitCarDetails(r CarDetailsResult) { k[r.Kind()]++ }
func (k kindCounter) VisitFinancing(r FinancingResult)   { k[r.Kind()]++ }
func (k kindCounter) VisitInfo(r InfoResult)             { k[r.Kind()]++ }
func (k kindCounter) VisitResponse(r ResponseResult)     { k[r.Kind()]++ }
func (k kindCounter) VisitClarify(r ClarifyResult)       { k[r.Kind()]++ }
func (k kindCounter) VisitOutOfScope(r OutOfScopeResult) { k[r.Kind()]++ }
func (k kindCounter) VisitError(r ErrorResult)           { k[r.Kind()]++ }

func TestVisit_DispatchesEveryVariant(t *testing.T) {
	all := []Result{
		SearchCarsResult{}, CarDetailsResult{}, FinancingResult{}, InfoResult{},
		ResponseResult{}, ClarifyResult{}, OutOfScopeResult{}, ErrorResult{},
	}
	seen := kindCounter{}
	for _, r := range all {
		Visit(r, seen)
	}
	require.Len(t, seen, len(all))
	for kind, n := range seen {
		require.Equal(t, 1, n, kind)
	}
}
