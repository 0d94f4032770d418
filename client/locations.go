package client

import "sort"

// Coordinates of a selectable location.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

var locations = map[string]Coordinates{
	"Sorsogon City": {Lat: 12.9742, Lon: 124.0058},
}

// LookupLocation returns the coordinates recorded for a location label.
func LookupLocation(name string) (Coordinates, bool) {
	c, ok := locations[name]
	return c, ok
}

// LocationNames lists the known labels in order.
func LocationNames() []string {
	names := make([]string, 0, len(locations))
	for name := range locations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
