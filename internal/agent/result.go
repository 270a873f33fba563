package agent

import "sales-agent/internal/domain"

// Kind discriminates the variants of Result.
type Kind string

const (
	KindSearchCars Kind = "search_cars"
	KindCarDetails Kind = "car_details"
	KindFinancing  Kind = "financing"
	KindInfo       Kind = "info"
	KindResponse   Kind = "response"
	KindClarify    Kind = "clarify"
	KindOutOfScope Kind = "out_of_scope"
	KindError      Kind = "error"
)

// Result is the outcome of routing one Decision. The set of variants is
// closed: only this package can implement it, and every consumer matches
// on it through Visitor, so adding a variant breaks the build of every
// consumer that does not handle it.
type Result interface {
	Kind() Kind
	Decision() domain.Decision
	accept(Visitor)
}

// Visitor has one method per Result variant.
type Visitor interface {
	VisitSearchCars(SearchCarsResult)
	VisitCarDetails(CarDetailsResult)
	VisitFinancing(FinancingResult)
	VisitInfo(InfoResult)
	VisitResponse(ResponseResult)
	VisitClarify(ClarifyResult)
	VisitOutOfScope(OutOfScopeResult)
	VisitError(ErrorResult)
}

// Visit dispatches r to the matching method of v.
func Visit(r Result, v Visitor) {
	r.accept(v)
}

type SearchCarsResult struct {
	Results domain.SearchResults
	From    domain.Decision
}

type CarDetailsResult struct {
	Vehicle domain.Vehicle
	From    domain.Decision
}

// FinancingResult carries only the price; the payment plan is written by
// the reasoning backend.
type FinancingResult struct {
	StockID int
	Price   float64
	From    domain.Decision
}

type InfoResult struct {
	Content string
	Query   string
	From    domain.Decision
}

type ResponseResult struct {
	Message string
	From    domain.Decision
}

type ClarifyResult struct {
	Message string
	Missing []domain.MissingField
	From    domain.Decision
}

type OutOfScopeResult struct {
	Message string
	Reason  string
	From    domain.Decision
}

// ErrorResult holds a handler failure. Err is for logs only and never
// reaches the user.
type ErrorResult struct {
	Err  error
	From domain.Decision
}

func (r SearchCarsResult) Kind() Kind { return KindSearchCars }
func (r CarDetailsResult) Kind() Kind { return KindCarDetails }
func (r FinancingResult) Kind() Kind  { return KindFinancing }
func (r InfoResult) Kind() Kind       { return KindInfo }
func (r ResponseResult) Kind() Kind   { return KindResponse }
func (r ClarifyResult) Kind() Kind    { return KindClarify }
func (r OutOfScopeResult) Kind() Kind { return KindOutOfScope }
func (r ErrorResult) Kind() Kind      { return KindError }

func (r SearchCarsResult) Decision() domain.Decision { return r.From }
func (r CarDetailsResult) Decision() domain.Decision { return r.From }
func (r FinancingResult) Decision() domain.Decision  { return r.From }
func (r InfoResult) Decision() domain.Decision       { return r.From }
func (r ResponseResult) Decision() domain.Decision   { return r.From }
func (r ClarifyResult) Decision() domain.Decision    { return r.From }
func (r OutOfScopeResult) Decision() domain.Decision { return r.From }
func (r ErrorResult) Decision() domain.Decision      { return r.From }

func (r SearchCarsResult) accept(v Visitor) { v.VisitSearchCars(r) }
func (r CarDetailsResult) accept(v Visitor) { v.VisitCarDetails(r) }
func (r FinancingResult) accept(v Visitor)  { v.VisitFinancing(r) }
func (r InfoResult) accept(v Visitor)       { v.VisitInfo(r) }
func (r ResponseResult) accept(v Visitor)   { v.VisitResponse(r) }
func (r ClarifyResult) accept(v Visitor)    { v.VisitClarify(r) }
func (r OutOfScopeResult) accept(v Visitor) { v.VisitOutOfScope(r) }
func (r ErrorResult) accept(v Visitor)      { v.VisitError(r) }
