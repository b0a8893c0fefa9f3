package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kjstillabower/weather-sync-service/internal/models"
)

// flexFloat accepts a JSON number, a quoted number, null or "".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s, ok := unquoteNumber(b)
	if !ok {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %s: %w", b, err)
	}
	*f = flexFloat(v)
	return nil
}

// flexInt accepts the same inputs as flexFloat and truncates toward zero.
type flexInt int64

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*i = flexInt(f)
	return nil
}

func unquoteNumber(b []byte) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", false
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil || s == "" {
			return "", false
		}
		return s, true
	}
	return string(b), true
}

// currentResponse is the weatherapi.com current.json payload. Pointers
// distinguish an absent section from a zero-valued one.
type currentResponse struct {
	Location *wireLocation `json:"location"`
	Current  *wireCurrent  `json:"current"`
}

type wireLocation struct {
	Name           string    `json:"name"`
	Region         string    `json:"region"`
	Country        string    `json:"country"`
	Lat            flexFloat `json:"lat"`
	Lon            flexFloat `json:"lon"`
	TzID           string    `json:"tz_id"`
	LocaltimeEpoch flexInt   `json:"localtime_epoch"`
	Localtime      string    `json:"localtime"`
}

type wireCondition struct {
	Text string  `json:"text"`
	Icon string  `json:"icon"`
	Code flexInt `json:"code"`
}

type wireAirQuality struct {
	CO           flexFloat `json:"co"`
	NO2          flexFloat `json:"no2"`
	O3           flexFloat `json:"o3"`
	SO2          flexFloat `json:"so2"`
	PM25         flexFloat `json:"pm2_5"`
	PM10         flexFloat `json:"pm10"`
	USEPAIndex   flexInt   `json:"us-epa-index"`
	GBDefraIndex flexInt   `json:"gb-defra-index"`
}

type wireCurrent struct {
	LastUpdatedEpoch flexInt        `json:"last_updated_epoch"`
	LastUpdated      string         `json:"last_updated"`
	TempC            flexFloat      `json:"temp_c"`
	TempF            flexFloat      `json:"temp_f"`
	IsDay            flexInt        `json:"is_day"`
	Condition        wireCondition  `json:"condition"`
	WindMph          flexFloat      `json:"wind_mph"`
	WindKph          flexFloat      `json:"wind_kph"`
	WindDegree       flexInt        `json:"wind_degree"`
	WindDir          string         `json:"wind_dir"`
	PressureMb       flexFloat      `json:"pressure_mb"`
	PressureIn       flexFloat      `json:"pressure_in"`
	PrecipMm         flexFloat      `json:"precip_mm"`
	PrecipIn         flexFloat      `json:"precip_in"`
	Humidity         flexInt        `json:"humidity"`
	Cloud            flexInt        `json:"cloud"`
	FeelslikeC       flexFloat      `json:"feelslike_c"`
	FeelslikeF       flexFloat      `json:"feelslike_f"`
	WindchillC       flexFloat      `json:"windchill_c"`
	WindchillF       flexFloat      `json:"windchill_f"`
	HeatindexC       flexFloat      `json:"heatindex_c"`
	HeatindexF       flexFloat      `json:"heatindex_f"`
	DewpointC        flexFloat      `json:"dewpoint_c"`
	DewpointF        flexFloat      `json:"dewpoint_f"`
	VisKm            flexFloat      `json:"vis_km"`
	VisMiles         flexFloat      `json:"vis_miles"`
	UV               flexFloat      `json:"uv"`
	GustMph          flexFloat      `json:"gust_mph"`
	GustKph          flexFloat      `json:"gust_kph"`
	AirQuality       wireAirQuality `json:"air_quality"`
}

// apiErrorResponse is the body weatherapi.com sends with non-2xx statuses.
type apiErrorResponse struct {
	Error struct {
		Code    flexInt `json:"code"`
		Message string  `json:"message"`
	} `json:"error"`
}

// decodeSnapshot parses a current.json body. An empty body, null, or an
// object without location and current yields (nil, nil).
func decodeSnapshot(body []byte) (*models.WeatherSnapshot, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var resp *currentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp == nil || (resp.Location == nil && resp.Current == nil) {
		return nil, nil
	}
	return resp.toSnapshot(), nil
}

func (r *currentResponse) toSnapshot() *models.WeatherSnapshot {
	var s models.WeatherSnapshot
	if l := r.Location; l != nil {
		s.Location = models.Location{
			Name:           l.Name,
			Region:         l.Region,
			Country:        l.Country,
			Lat:            float64(l.Lat),
			Lon:            float64(l.Lon),
			TzID:           l.TzID,
			LocaltimeEpoch: int64(l.LocaltimeEpoch),
			Localtime:      l.Localtime,
		}
	}
	if c := r.Current; c != nil {
		s.Current = models.Current{
			LastUpdatedEpoch: int64(c.LastUpdatedEpoch),
			LastUpdated:      c.LastUpdated,
			TempC:            float64(c.TempC),
			TempF:            float64(c.TempF),
			IsDay:            int(c.IsDay),
			Condition: models.Condition{
				Text: c.Condition.Text,
				Icon: c.Condition.Icon,
				Code: int(c.Condition.Code),
			},
			WindMph:    float64(c.WindMph),
			WindKph:    float64(c.WindKph),
			WindDegree: int(c.WindDegree),
			WindDir:    c.WindDir,
			PressureMb: float64(c.PressureMb),
			PressureIn: float64(c.PressureIn),
			PrecipMm:   float64(c.PrecipMm),
			PrecipIn:   float64(c.PrecipIn),
			Humidity:   int(c.Humidity),
			Cloud:      int(c.Cloud),
			FeelslikeC: float64(c.FeelslikeC),
			FeelslikeF: float64(c.FeelslikeF),
			WindchillC: float64(c.WindchillC),
			WindchillF: float64(c.WindchillF),
			HeatindexC: float64(c.HeatindexC),
			HeatindexF: float64(c.HeatindexF),
			DewpointC:  float64(c.DewpointC),
			DewpointF:  float64(c.DewpointF),
			VisKm:      float64(c.VisKm),
			VisMiles:   float64(c.VisMiles),
			UV:         float64(c.UV),
			GustMph:    float64(c.GustMph),
			GustKph:    float64(c.GustKph),
			AirQuality: models.AirQuality{
				CO:           float64(c.AirQuality.CO),
				NO2:          float64(c.AirQuality.NO2),
				O3:           float64(c.AirQuality.O3),
				SO2:          float64(c.AirQuality.SO2),
				PM25:         float64(c.AirQuality.PM25),
				PM10:         float64(c.AirQuality.PM10),
				USEPAIndex:   int(c.AirQuality.USEPAIndex),
				GBDefraIndex: int(c.AirQuality.GBDefraIndex),
			},
		}
	}
	return &s
}
