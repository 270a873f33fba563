package domain

// Action is the discriminant of a Decision.
type Action string

const (
	ActionSearchCars          Action = "search_cars"
	ActionGetCarDetails       Action = "get_car_details"
	ActionGetFinancingOptions Action = "get_financing_options"
	ActionGetKavakInfo        Action = "get_kavak_info"
	ActionRespond             Action = "respond"
	ActionClarify             Action = "clarify"
	ActionOutOfScope          Action = "out_of_scope"
)

// Actions lists every action in a stable order.
var Actions = []Action{
	ActionSearchCars,
	ActionGetCarDetails,
	ActionGetFinancingOptions,
	ActionGetKavakInfo,
	ActionRespond,
	ActionClarify,
	ActionOutOfScope,
}

func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}

// MissingField names a piece of search information the user still has to
// provide.
type MissingField string

const (
	MissingMake     MissingField = "make"
	MissingModel    MissingField = "model"
	MissingYear     MissingField = "year"
	MissingPriceMax MissingField = "price_max"
)

func (f MissingField) Valid() bool {
	switch f {
	case MissingMake, MissingModel, MissingYear, MissingPriceMax:
		return true
	}
	return false
}

// Decision is the structured output of the reasoning backend. Only Action
// is mandatory; handlers check the fields relevant to their action.
type Decision struct {
	Action             Action         `json:"action"`
	Make               *string        `json:"make"`
	Model              *string        `json:"model"`
	Year               *int           `json:"year"`
	PriceMax           *float64       `json:"price_max"`
	StockID            *string        `json:"stock_id"`
	DownPayment        *float64       `json:"down_payment"`
	Duration           *int           `json:"duration"`
	InfoQuery          *string        `json:"info_query"`
	Message            *string        `json:"message"`
	MissingInformation []MissingField `json:"missing_information"`
	Reason             *string        `json:"reason"`
}

// Str returns the value of an optional string field, or "".
func Str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
