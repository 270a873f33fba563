package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"sales-agent/internal/domain"
)

var requiredColumns = []string{"stock_id", "make", "model", "year", "km", "price"}

// record is a loaded row with its match keys precomputed.
type record struct {
	vehicle  domain.Vehicle
	makeKey  string
	modelKey string
}

// parseCatalog decodes the whole dataset or fails. A single bad row fails
// the load.
func parseCatalog(text string) ([]record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: dataset is empty", ErrCatalogLoad)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrCatalogLoad, err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrCatalogLoad, name)
		}
	}

	var (
		out  []record
		seen = make(map[int]struct{})
		line = 1
	)
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCatalogLoad, line, err)
		}
		rec, err := parseRow(row, cols)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCatalogLoad, line, err)
		}
		if _, dup := seen[rec.vehicle.StockID]; dup {
			return nil, fmt.Errorf("%w: line %d: duplicate stock_id %d", ErrCatalogLoad, line, rec.vehicle.StockID)
		}
		seen[rec.vehicle.StockID] = struct{}{}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: dataset has no vehicles", ErrCatalogLoad)
	}
	return out, nil
}

func parseRow(row []string, cols map[string]int) (record, error) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	stockID, err := strconv.Atoi(field("stock_id"))
	if err != nil {
		return record{}, fmt.Errorf("stock_id: %v", err)
	}
	year, err := strconv.Atoi(field("year"))
	if err != nil {
		return record{}, fmt.Errorf("year: %v", err)
	}
	km, err := strconv.Atoi(field("km"))
	if err != nil {
		return record{}, fmt.Errorf("km: %v", err)
	}
	price, err := strconv.ParseFloat(field("price"), 64)
	if err != nil {
		return record{}, fmt.Errorf("price: %v", err)
	}
	makeKey := normalize(field("make"))
	modelKey := normalize(field("model"))
	if makeKey == "" || modelKey == "" {
		return record{}, errors.New("make and model are required")
	}

	return record{
		vehicle: domain.Vehicle{
			StockID:   stockID,
			Make:      titleCase(makeKey),
			Model:     titleCase(modelKey),
			Year:      year,
			Km:        km,
			Price:     price,
			Version:   field("version"),
			Bluetooth: parseFlag(field("bluetooth")),
			CarPlay:   parseFlag(field("car_play")),
		},
		makeKey:  makeKey,
		modelKey: modelKey,
	}, nil
}

func parseFlag(s string) bool {
	switch strings.ToLower(s) {
	case "sí", "si", "yes", "true", "1":
		return true
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// titleCase upper-cases every letter that follows a non-letter and
// lower-cases the rest ("cr-v" -> "Cr-V", "mazda 3" -> "Mazda 3").
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
