package models

import "testing"

// TestLocationData_Key verifies the coordinate key format and that the name does not contribute.
func TestLocationData_Key(t *testing.T) {
	tests := []struct {
		name string
		loc  LocationData
		want string
	}{
		{"positive", LocationData{Name: "London", Latitude: 51.5074, Longitude: 0.1278}, "51.5074-0.1278"},
		{"negative longitude", LocationData{Name: "London, Canada", Latitude: 42.9849, Longitude: -81.2453}, "42.9849--81.2453"},
		{"zero", LocationData{Name: "current"}, "0-0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}

	a := LocationData{Name: "a", Latitude: 1.5, Longitude: 2.5}
	b := LocationData{Name: "b", Latitude: 1.5, Longitude: 2.5}
	if a.Key() != b.Key() {
		t.Errorf("keys differ for equal coordinates: %q vs %q", a.Key(), b.Key())
	}
}

func TestWeatherSnapshot_KeyMatchesLocation(t *testing.T) {
	s := WeatherSnapshot{Location: Location{Name: "Paris", Lat: 48.87, Lon: 2.33}}
	loc := LocationData{Name: "somewhere else", Latitude: 48.87, Longitude: 2.33}
	if s.Key() != loc.Key() {
		t.Errorf("snapshot key %q != location key %q", s.Key(), loc.Key())
	}
}

func TestLocationData_QueryString(t *testing.T) {
	loc := LocationData{Latitude: 52.52, Longitude: 13.405}
	if got := loc.QueryString(); got != "52.52,13.405" {
		t.Errorf("QueryString() = %q, want %q", got, "52.52,13.405")
	}
}
