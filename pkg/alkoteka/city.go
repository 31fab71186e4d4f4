package alkoteka

import (
	"sort"

	"github.com/google/uuid"

	"alkoscraper/pkg/logger"
)

// DefaultCity is used when no city or an unknown city is requested
const DefaultCity = "Краснодар"

var cities = map[string]uuid.UUID{
	"Москва":         uuid.MustParse("396df2b5-7b2b-11eb-80cd-00155d039009"),
	"Краснодар":      uuid.MustParse("4a70f9e0-46ae-11e7-83ff-00155d026416"),
	"Ростов-на-Дону": uuid.MustParse("878a9eb4-46b2-11e7-83ff-00155d026416"),
	"Сочи":           uuid.MustParse("985b3eea-46b4-11e7-83ff-00155d026416"),
}

// Cities returns the supported city names, sorted
func Cities() []string {
	names := make([]string, 0, len(cities))
	for name := range cities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveCity returns the API id for name and the name actually used.
// Unknown names fall back to DefaultCity with a warning.
func ResolveCity(name string, log logger.Logger) (uuid.UUID, string) {
	if id, ok := cities[name]; ok {
		return id, name
	}
	if name != "" {
		log.WarnWithFields("unknown city, using default", map[string]interface{}{
			"city":      name,
			"default":   DefaultCity,
			"supported": Cities(),
		})
	}
	return cities[DefaultCity], DefaultCity
}
