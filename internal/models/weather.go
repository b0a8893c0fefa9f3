package models

import "strconv"

// LocationData is a geographic point with a display name.
// Name is cosmetic: two values with equal coordinates share one Key.
type LocationData struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Key returns the cache key for the location's coordinates.
func (l LocationData) Key() string {
	return LocationKey(l.Latitude, l.Longitude)
}

// LocationKey formats a coordinate pair as "<lat>-<lon>".
func LocationKey(lat, lon float64) string {
	return formatCoord(lat) + "-" + formatCoord(lon)
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// QueryString formats the coordinates as the "<lat>,<lon>" form accepted by the weather API.
func (l LocationData) QueryString() string {
	return formatCoord(l.Latitude) + "," + formatCoord(l.Longitude)
}

// WeatherSnapshot is a full current-weather reading as returned by the weather API.
type WeatherSnapshot struct {
	Location Location `json:"location"`
	Current  Current  `json:"current"`
}

// Key returns the cache key derived from the snapshot's own location coordinates.
func (s WeatherSnapshot) Key() string {
	return LocationKey(s.Location.Lat, s.Location.Lon)
}

type Location struct {
	Name           string  `json:"name"`
	Region         string  `json:"region"`
	Country        string  `json:"country"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	TzID           string  `json:"tz_id"`
	LocaltimeEpoch int64   `json:"localtime_epoch"`
	Localtime      string  `json:"localtime"`
}

type Current struct {
	LastUpdatedEpoch int64      `json:"last_updated_epoch"`
	LastUpdated      string     `json:"last_updated"`
	TempC            float64    `json:"temp_c"`
	TempF            float64    `json:"temp_f"`
	IsDay            int        `json:"is_day"`
	Condition        Condition  `json:"condition"`
	WindMph          float64    `json:"wind_mph"`
	WindKph          float64    `json:"wind_kph"`
	WindDegree       int        `json:"wind_degree"`
	WindDir          string     `json:"wind_dir"`
	PressureMb       float64    `json:"pressure_mb"`
	PressureIn       float64    `json:"pressure_in"`
	PrecipMm         float64    `json:"precip_mm"`
	PrecipIn         float64    `json:"precip_in"`
	Humidity         int        `json:"humidity"`
	Cloud            int        `json:"cloud"`
	FeelslikeC       float64    `json:"feelslike_c"`
	FeelslikeF       float64    `json:"feelslike_f"`
	WindchillC       float64    `json:"windchill_c"`
	WindchillF       float64    `json:"windchill_f"`
	HeatindexC       float64    `json:"heatindex_c"`
	HeatindexF       float64    `json:"heatindex_f"`
	DewpointC        float64    `json:"dewpoint_c"`
	DewpointF        float64    `json:"dewpoint_f"`
	VisKm            float64    `json:"vis_km"`
	VisMiles         float64    `json:"vis_miles"`
	UV               float64    `json:"uv"`
	GustMph          float64    `json:"gust_mph"`
	GustKph          float64    `json:"gust_kph"`
	AirQuality       AirQuality `json:"air_quality"`
}

type Condition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

// AirQuality holds pollutant concentrations and the US EPA (1-6) and UK DEFRA (1-10) indices.
type AirQuality struct {
	CO           float64 `json:"co"`
	NO2          float64 `json:"no2"`
	O3           float64 `json:"o3"`
	SO2          float64 `json:"so2"`
	PM25         float64 `json:"pm2_5"`
	PM10         float64 `json:"pm10"`
	USEPAIndex   int     `json:"us-epa-index"`
	GBDefraIndex int     `json:"gb-defra-index"`
}
