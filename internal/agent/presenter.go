package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"sales-agent/internal/catalog"
	"sales-agent/internal/domain"
)

// GenericErrorMessage is what a user sees for a failed action whose cause
// they cannot act on.
const GenericErrorMessage = "Lo siento, ocurrió un problema al procesar tu solicitud. Por favor, intenta de nuevo."

const (
	stockIDRequiredMessage = "Necesito saber de qué vehículo se trata. ¿Me indicas su número de stock o la marca y el modelo?"
	vehicleNotFoundMessage = "No encontré ningún vehículo con ese número de stock. ¿Quieres que busque por marca y modelo?"
	invalidCriteriaMessage = "Algunos criterios de búsqueda no son válidos. Revisa el año, el precio o el kilometraje e intenta de nuevo."
)

// Prices use comma grouping, which is also the Mexican convention.
var pricePrinter = message.NewPrinter(language.AmericanEnglish)

// Presenter turns a Result into the plain reply a transport sends back.
type Presenter struct {
	logger *slog.Logger
}

func NewPresenter(logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Presenter{logger: logger}
}

// Render builds the reply for r. An ErrorResult is logged with its cause
// and rendered as GenericErrorMessage.
func (p *Presenter) Render(r Result) domain.UserReply {
	b := &replyBuilder{logger: p.logger}
	Visit(r, b)
	if b.reply.Vehicles == nil {
		b.reply.Vehicles = []domain.Vehicle{}
	}
	return b.reply
}

// FormatPrice renders an amount in whole pesos with thousands separators,
// for example "$461,999 MXN".
func FormatPrice(price float64) string {
	return pricePrinter.Sprintf("$%d MXN", int64(math.Round(price)))
}

type replyBuilder struct {
	logger *slog.Logger
	reply  domain.UserReply
}

func (b *replyBuilder) ok(msg string) {
	b.reply = domain.UserReply{Message: msg, Success: true}
}

func (b *replyBuilder) VisitSearchCars(r SearchCarsResult) {
	switch n := r.Results.TotalCount; n {
	case 0:
		b.ok(noMatchesMessage(r.From))
	case 1:
		b.ok("¡Encontré 1 vehículo que coincide con tu búsqueda!")
	default:
		b.ok(fmt.Sprintf("¡Encontré %d vehículos que coinciden con tu búsqueda!", n))
	}
	b.reply.Vehicles = r.Results.Vehicles
}

func (b *replyBuilder) VisitCarDetails(r CarDetailsResult) {
	v := r.Vehicle
	b.ok(fmt.Sprintf("Detalles del vehículo %d: %s %s %d", v.StockID, v.Make, v.Model, v.Year))
}

func (b *replyBuilder) VisitFinancing(r FinancingResult) {
	b.ok("Opciones de financiamiento para vehículo con precio " + FormatPrice(r.Price))
}

func (b *replyBuilder) VisitInfo(r InfoResult) {
	b.ok("Información sobre Kavak: " + r.Query)
}

func (b *replyBuilder) VisitResponse(r ResponseResult) {
	b.ok(r.Message)
}

func (b *replyBuilder) VisitClarify(r ClarifyResult) {
	b.ok(r.Message)
}

func (b *replyBuilder) VisitOutOfScope(r OutOfScopeResult) {
	b.ok(r.Message)
}

func (b *replyBuilder) VisitError(r ErrorResult) {
	b.logger.Error("action failed",
		"action", r.From.Action,
		"stock_id", domain.Str(r.From.StockID),
		"err", r.Err,
	)
	b.reply = domain.UserReply{Message: errorMessage(r.Err), Success: false}
}

// errorMessage names what the user can fix; the cause itself is never shown.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, errStockIDRequired):
		return stockIDRequiredMessage
	case errors.Is(err, catalog.ErrNotFound):
		return vehicleNotFoundMessage
	case errors.Is(err, catalog.ErrInvalidSearchParameters):
		return invalidCriteriaMessage
	}
	return GenericErrorMessage
}

func noMatchesMessage(d domain.Decision) string {
	var parts []string
	if m := present(d.Make); m != nil {
		parts = append(parts, *m)
	}
	if m := present(d.Model); m != nil {
		parts = append(parts, *m)
	}
	if len(parts) == 0 {
		return "No encontré vehículos con esos criterios. ¿Te gustaría buscar algo diferente?"
	}
	return fmt.Sprintf("No encontré %s con esos criterios. ¿Te gustaría buscar algo diferente?", strings.Join(parts, " "))
}

// Vehicles returns the vehicles a result puts in front of the user, which
// become the session's last results.
func Vehicles(r Result) []domain.Vehicle {
	if s, ok := r.(SearchCarsResult); ok {
		return s.Results.Vehicles
	}
	return nil
}
