package domain

// Vehicle is a single catalog row. Make and Model hold the display
// (title-cased) form; matching is done on the lower-cased form.
type Vehicle struct {
	StockID   int     `json:"stock_id"`
	Make      string  `json:"make"`
	Model     string  `json:"model"`
	Year      int     `json:"year"`
	Km        int     `json:"km"`
	Price     float64 `json:"price"`
	Version   string  `json:"version"`
	Bluetooth bool    `json:"bluetooth"`
	CarPlay   bool    `json:"car_play"`
}

// Summary projects the vehicle onto the fields kept in conversation state.
func (v Vehicle) Summary() VehicleSummary {
	return VehicleSummary{
		StockID: v.StockID,
		Make:    v.Make,
		Model:   v.Model,
		Year:    v.Year,
		Price:   v.Price,
		Km:      v.Km,
	}
}

// VehicleSummary is the lightweight vehicle projection stored in a
// ConversationContext.
type VehicleSummary struct {
	StockID int     `json:"stock_id"`
	Make    string  `json:"make"`
	Model   string  `json:"model"`
	Year    int     `json:"year"`
	Price   float64 `json:"price"`
	Km      int     `json:"km"`
}

// SearchCriteria filters the catalog. Nil fields do not filter.
type SearchCriteria struct {
	Make     *string  `validate:"omitempty,nonblank"`
	Model    *string  `validate:"omitempty,nonblank"`
	Year     *int     `validate:"omitempty,gte=1900,notfuture"`
	MaxKm    *int     `validate:"omitempty,gte=0"`
	MaxPrice *float64 `validate:"omitempty,gte=0"`
}

// SearchResults is the ordered set of vehicles matching a search.
// TotalCount always equals len(Vehicles).
type SearchResults struct {
	Vehicles   []Vehicle `json:"vehicles"`
	TotalCount int       `json:"total_count"`
}

// NewSearchResults builds a result set whose count matches its contents.
func NewSearchResults(vehicles []Vehicle) SearchResults {
	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	return SearchResults{Vehicles: vehicles, TotalCount: len(vehicles)}
}
