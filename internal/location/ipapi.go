package location

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// DefaultIPAPIURL is ip-api.com's JSON endpoint for the caller's public IP.
const DefaultIPAPIURL = "http://ip-api.com/json/"

// IPAPILocator approximates the device position from the public IP address.
type IPAPILocator struct {
	url string
	get httpGetter
}

func NewIPAPILocator(apiURL, userAgent string, timeout time.Duration) *IPAPILocator {
	if apiURL == "" {
		apiURL = DefaultIPAPIURL
	}
	return &IPAPILocator{url: apiURL, get: newHTTPGetter(userAgent, timeout)}
}

type ipAPIResponse struct {
	Status     string  `json:"status"`
	Message    string  `json:"message"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	RegionName string  `json:"regionName"`
	Country    string  `json:"country"`
}

func (l *IPAPILocator) Locate(ctx context.Context) (Place, error) {
	u, err := url.Parse(l.url)
	if err != nil {
		return Place{}, fmt.Errorf("invalid ip-api URL: %w", err)
	}
	q := u.Query()
	q.Set("fields", "status,message,lat,lon,regionName,country")
	u.RawQuery = q.Encode()

	var resp ipAPIResponse
	if err := l.get.getJSON(ctx, u.String(), &resp); err != nil {
		return Place{}, fmt.Errorf("ip-api: %w", err)
	}
	if resp.Status != "success" {
		return Place{}, fmt.Errorf("ip-api: lookup failed: %s", resp.Message)
	}
	return Place{
		AdministrativeArea: resp.RegionName,
		Country:            resp.Country,
		Latitude:           resp.Lat,
		Longitude:          resp.Lon,
	}, nil
}
