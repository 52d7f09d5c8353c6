package services

import (
	"math"
	"strings"

	"dealscout/config"
)

const earthRadiusMiles = 3959.0

var stateAbbreviations = map[string]struct{}{
	"al": {}, "ak": {}, "az": {}, "ar": {}, "ca": {}, "co": {}, "ct": {}, "de": {}, "fl": {}, "ga": {},
	"hi": {}, "id": {}, "il": {}, "in": {}, "ia": {}, "ks": {}, "ky": {}, "la": {}, "me": {}, "md": {},
	"ma": {}, "mi": {}, "mn": {}, "ms": {}, "mo": {}, "mt": {}, "ne": {}, "nv": {}, "nh": {}, "nj": {},
	"nm": {}, "ny": {}, "nc": {}, "nd": {}, "oh": {}, "ok": {}, "or": {}, "pa": {}, "ri": {}, "sc": {},
	"sd": {}, "tn": {}, "tx": {}, "ut": {}, "vt": {}, "va": {}, "wa": {}, "wv": {}, "wi": {}, "wy": {},
	"dc": {},
}

// DistanceResolver maps free-text locations to miles from the home point
// using a static gazetteer. Unknown places resolve to nil, never an error.
type DistanceResolver struct {
	home   config.Coordinate
	cities map[string]config.Coordinate
}

// NewDistanceResolver creates a resolver over the given gazetteer.
func NewDistanceResolver(g *config.Gazetteer) *DistanceResolver {
	return &DistanceResolver{home: g.Home, cities: g.Cities}
}

// DistanceFromHome returns the great-circle distance in whole miles, or nil
// when the location is not in the gazetteer.
func (r *DistanceResolver) DistanceFromHome(location string) *int {
	coords, ok := r.lookup(location)
	if !ok {
		return nil
	}
	miles := int(math.Round(Haversine(r.home.Lat, r.home.Lng, coords.Lat, coords.Lng)))
	return &miles
}

// WithinPickupRange reports whether the location resolves to at most
// radiusMiles from home. Unresolved locations are out of range.
func (r *DistanceResolver) WithinPickupRange(location string, radiusMiles int) bool {
	d := r.DistanceFromHome(location)
	return d != nil && *d <= radiusMiles
}

func (r *DistanceResolver) lookup(location string) (config.Coordinate, bool) {
	normalized := strings.Join(strings.Fields(strings.ToLower(location)), " ")
	if normalized == "" {
		return config.Coordinate{}, false
	}

	if c, ok := r.cities[cityToken(normalized)]; ok {
		return c, true
	}
	c, ok := r.cities[normalized]
	return c, ok
}

// cityToken keeps the part before the first comma and drops a trailing
// two-letter state abbreviation ("nashville tn" -> "nashville").
func cityToken(normalized string) string {
	city := normalized
	if i := strings.Index(city, ","); i >= 0 {
		city = city[:i]
	}
	city = strings.TrimSpace(city)

	words := strings.Fields(city)
	if len(words) > 1 {
		if _, ok := stateAbbreviations[words[len(words)-1]]; ok {
			words = words[:len(words)-1]
		}
	}
	return strings.Join(words, " ")
}

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}
