package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

// Gazetteer is the static city table used for distance lookups, together
// with the home point distances are measured from.
type Gazetteer struct {
	Home   Coordinate            `yaml:"home"`
	Cities map[string]Coordinate `yaml:"cities"`
}

// LoadGazetteer reads a YAML gazetteer. City names are lowercased so lookups
// stay case-insensitive. Cities from the file are merged over the defaults;
// a zero home point keeps the default home.
func LoadGazetteer(path string) (*Gazetteer, error) {
	g := DefaultGazetteer()
	if path == "" {
		return g, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gazetteer: read %q: %w", path, err)
	}

	var fileG Gazetteer
	if err := yaml.Unmarshal(data, &fileG); err != nil {
		return nil, fmt.Errorf("gazetteer: parse %q: %w", path, err)
	}

	if fileG.Home.Lat != 0 || fileG.Home.Lng != 0 {
		g.Home = fileG.Home
	}
	for name, c := range fileG.Cities {
		g.Cities[strings.ToLower(strings.TrimSpace(name))] = c
	}
	return g, nil
}

// DefaultGazetteer is centred on Rickman, TN and covers towns within a
// reasonable pickup drive.
func DefaultGazetteer() *Gazetteer {
	cities := map[string]Coordinate{
		// Tennessee
		"rickman":        {36.2667, -85.4167},
		"cookeville":     {36.1628, -85.5016},
		"nashville":      {36.1627, -86.7816},
		"knoxville":      {35.9606, -83.9207},
		"chattanooga":    {35.0456, -85.3097},
		"memphis":        {35.1495, -90.0490},
		"murfreesboro":   {35.8456, -86.3903},
		"clarksville":    {36.5298, -87.3595},
		"jackson":        {35.6145, -88.8139},
		"johnson city":   {36.3134, -82.3535},
		"kingsport":      {36.5484, -82.5618},
		"franklin":       {35.9251, -86.8689},
		"hendersonville": {36.3048, -86.6200},
		"lebanon":        {36.2081, -86.2911},
		"gallatin":       {36.3884, -86.4467},
		"columbia":       {35.6151, -87.0353},
		"crossville":     {35.9489, -85.0269},
		"sparta":         {35.9256, -85.4641},
		"livingston":     {36.3834, -85.3230},
		"gainesboro":     {36.3556, -85.6583},
		"carthage":       {36.2523, -85.9517},
		"smithville":     {35.9606, -85.8142},
		"mcminnville":    {35.6834, -85.7697},
		"manchester":     {35.4817, -86.0886},
		"tullahoma":      {35.3620, -86.2094},
		"shelbyville":    {35.4834, -86.4603},

		// Kentucky
		"bowling green": {36.9685, -86.4808},
		"lexington":     {38.0406, -84.5037},
		"louisville":    {38.2527, -85.7585},
		"owensboro":     {37.7719, -87.1112},
		"elizabethtown": {37.6939, -85.8591},
		"glasgow":       {36.9959, -85.9119},
		"somerset":      {37.0920, -84.6041},
		"london":        {37.1290, -84.0833},
		"corbin":        {36.9487, -84.0969},

		// Alabama
		"huntsville": {34.7304, -86.5861},
		"birmingham": {33.5207, -86.8025},
		"decatur":    {34.6059, -86.9833},
		"florence":   {34.7998, -87.6772},
		"athens":     {34.8026, -86.9717},

		// Georgia
		"atlanta": {33.7490, -84.3880},
		"rome":    {34.2570, -85.1647},
		"dalton":  {34.7698, -84.9702},

		// Virginia / North Carolina
		"bristol":   {36.5951, -82.1887},
		"asheville": {35.5951, -82.5515},
	}
	return &Gazetteer{
		Home:   Coordinate{Lat: 36.2667, Lng: -85.4167},
		Cities: cities,
	}
}
