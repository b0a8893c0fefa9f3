package location

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DefaultSearchURL is the public OpenStreetMap Nominatim search endpoint.
const DefaultSearchURL = "https://nominatim.openstreetmap.org/search"

// NominatimSearcher implements Searcher on the Nominatim search API.
type NominatimSearcher struct {
	url   string
	limit int
	get   httpGetter
}

func NewNominatimSearcher(searchURL, userAgent string, limit int, timeout time.Duration) *NominatimSearcher {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	if limit <= 0 {
		limit = 5
	}
	return &NominatimSearcher{url: searchURL, limit: limit, get: newHTTPGetter(userAgent, timeout)}
}

type nominatimResult struct {
	Lat     string `json:"lat"`
	Lon     string `json:"lon"`
	Address struct {
		Road       string `json:"road"`
		Pedestrian string `json:"pedestrian"`
		State      string `json:"state"`
		Region     string `json:"region"`
		Country    string `json:"country"`
	} `json:"address"`
}

// Search returns candidates in Nominatim's ranking order. Results with
// unparsable coordinates are skipped.
func (s *NominatimSearcher) Search(ctx context.Context, query string) ([]Place, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("invalid search URL: %w", err)
	}
	params := u.Query()
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(s.limit))
	u.RawQuery = params.Encode()

	var results []nominatimResult
	if err := s.get.getJSON(ctx, u.String(), &results); err != nil {
		return nil, fmt.Errorf("nominatim: %w", err)
	}

	places := make([]Place, 0, len(results))
	for _, r := range results {
		lat, errLat := strconv.ParseFloat(r.Lat, 64)
		lon, errLon := strconv.ParseFloat(r.Lon, 64)
		if errLat != nil || errLon != nil {
			continue
		}
		street := r.Address.Road
		if street == "" {
			street = r.Address.Pedestrian
		}
		admin := r.Address.State
		if admin == "" {
			admin = r.Address.Region
		}
		places = append(places, Place{
			Street:             street,
			AdministrativeArea: admin,
			Country:            r.Address.Country,
			Latitude:           lat,
			Longitude:          lon,
		})
	}
	return places, nil
}
