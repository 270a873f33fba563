package agent

import (
	"regexp"
	"strings"

	"sales-agent/internal/domain"
)

const (
	clarifyWhichVehicle = "¿Qué vehículo te interesa financiar? Puedes decirme la marca y el modelo."
	clarifyWhichListed  = "¿Cuál de los vehículos encontrados quieres financiar? Indícame el número en la lista o dime marca y modelo."
	clarifyReference    = "¿Te refieres a algún vehículo de una búsqueda previa? Si no, dime qué marca, modelo o presupuesto tienes en mente."
)

// referencePhrases point at a vehicle the user assumes is already on the
// table.
var referencePhrases = []string{
	"mas barato",
	"más barato",
	"el primero",
	"la primera",
	"el rojo",
	"la roja",
	"ese",
	"ese auto",
	"ese coche",
	"me interesa el",
	"me interesa la",
	"the cheapest",
	"the first one",
	"that car",
	"that one",
}

// referencePattern matches any phrase as whole words, so "ese" does not
// fire inside "interesa" or "mese".
var referencePattern = func() *regexp.Regexp {
	quoted := make([]string, len(referencePhrases))
	for i, p := range referencePhrases {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?:^|[^\p{L}\p{N}])(?:` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}\p{N}])`)
}()

// ApplyGuards overrides a decision the backend made without the context it
// needs. It has no side effects; the first matching rule wins.
func ApplyGuards(text string, d domain.Decision, c *domain.ConversationContext) domain.Decision {
	var (
		hasResults  bool
		hasSelected bool
	)
	if c != nil {
		hasResults = len(c.LastSearchResults) > 0
		hasSelected = c.SelectedVehicle != nil
	}

	if d.Action == domain.ActionGetFinancingOptions && present(d.StockID) == nil {
		if !hasResults && !hasSelected {
			return clarifyDecision(clarifyWhichVehicle)
		}
		if hasResults && !hasSelected {
			return clarifyDecision(clarifyWhichListed)
		}
	}

	if !hasResults && !hasSelected && MentionsReference(text) {
		return clarifyDecision(clarifyReference, domain.MissingMake, domain.MissingModel)
	}
	return d
}

// MentionsReference reports whether text refers back to a vehicle, as in
// "el más barato" or "that car".
func MentionsReference(text string) bool {
	return referencePattern.MatchString(strings.ToLower(text))
}

func clarifyDecision(msg string, missing ...domain.MissingField) domain.Decision {
	if missing == nil {
		missing = []domain.MissingField{}
	}
	return domain.Decision{
		Action:             domain.ActionClarify,
		Message:            domain.Ptr(msg),
		MissingInformation: missing,
	}
}
