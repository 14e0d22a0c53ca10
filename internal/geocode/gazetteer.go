package geocode

import (
	"slices"

	"github.com/hershield/hershield/internal/geo"
)

// Gazetteer is a table of well-known places keyed by lower-case name.
type Gazetteer map[string]geo.Coordinate

// DefaultGazetteer returns the built-in table of Delhi neighbourhoods and landmarks.
func DefaultGazetteer() Gazetteer {
	return Gazetteer{
		"connaught place": {Lat: 28.6315, Lon: 77.2167},
		"india gate":      {Lat: 28.6129, Lon: 77.2295},
		"hauz khas":       {Lat: 28.5494, Lon: 77.2001},
		"saket":           {Lat: 28.5244, Lon: 77.2066},
		"dwarka":          {Lat: 28.5921, Lon: 77.0460},
		"rohini":          {Lat: 28.7496, Lon: 77.0669},
		"karol bagh":      {Lat: 28.6519, Lon: 77.1909},
		"rajouri garden":  {Lat: 28.6414, Lon: 77.1231},
		"laxmi nagar":     {Lat: 28.6353, Lon: 77.2772},
		"nehru place":     {Lat: 28.5494, Lon: 77.2501},
		"vasant vihar":    {Lat: 28.5677, Lon: 77.1615},
		"greater kailash": {Lat: 28.5494, Lon: 77.2428},
		"defence colony":  {Lat: 28.5677, Lon: 77.2354},
		"pitampura":       {Lat: 28.6972, Lon: 77.1311},
		"janakpuri":       {Lat: 28.6219, Lon: 77.0834},
	}
}

// Lookup matches a normalised name exactly.
func (g Gazetteer) Lookup(name string) (geo.Coordinate, bool) {
	c, ok := g[normalize(name)]
	return c, ok
}

// Names returns the place names in alphabetical order.
func (g Gazetteer) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
