package validation

import (
	"errors"
	"strings"
	"testing"

	"github.com/kjstillabower/weather-sync-service/internal/models"
)

func TestValidateQuery_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateQuery(tc.input, 1, 100)
			if !errors.Is(err, ErrQueryEmpty) {
				t.Errorf("error = %v, want ErrQueryEmpty", err)
			}
		})
	}
}

func TestValidateQuery_TooShort(t *testing.T) {
	_, err := ValidateQuery("x", 2, 100)
	if !errors.Is(err, ErrQueryTooShort) {
		t.Errorf("error = %v, want ErrQueryTooShort", err)
	}
}

func TestValidateQuery_TooLong(t *testing.T) {
	_, err := ValidateQuery(strings.Repeat("a", 101), 1, 100)
	if !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("error = %v, want ErrQueryTooLong", err)
	}
}

func TestValidateQuery_BoundsCountRunes(t *testing.T) {
	if got, err := ValidateQuery("São", 3, 3); err != nil || got != "São" {
		t.Errorf("ValidateQuery(São, 3, 3) = %q, %v; want São, nil", got, err)
	}
	if _, err := ValidateQuery("Sãoo", 1, 3); !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("error = %v, want ErrQueryTooLong", err)
	}
}

func TestValidateQuery_NonPositiveBoundsSkipped(t *testing.T) {
	long := strings.Repeat("a", 500)
	got, err := ValidateQuery(long, 0, 0)
	if err != nil || got != long {
		t.Errorf("ValidateQuery with no bounds error = %v", err)
	}
	if _, err := ValidateQuery("a?", 0, 0); !errors.Is(err, ErrQueryInvalidChars) {
		t.Errorf("error = %v, want ErrQueryInvalidChars", err)
	}
}

func TestValidateQuery_InvalidChars(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"slash", "sea/ttle"},
		{"question", "sea?ttle"},
		{"hash", "sea#ttle"},
		{"control", "sea\x00ttle"},
		{"percent", "sea%ttle"},
		{"angle", "<script>"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateQuery(tc.input, 1, 100)
			if !errors.Is(err, ErrQueryInvalidChars) {
				t.Errorf("error = %v, want ErrQueryInvalidChars", err)
			}
		})
	}
}

func TestValidateQuery_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"  Baker Street ", "Baker Street"},
		{"St. John's", "St. John's"},
		{"São Paulo", "São Paulo"},
		{"Paris, France", "Paris, France"},
		{"Stratford-upon-Avon", "Stratford-upon-Avon"},
		{"10 Downing", "10 Downing"},
	}
	for _, tc := range tests {
		got, err := ValidateQuery(tc.input, 1, 100)
		if err != nil {
			t.Errorf("ValidateQuery(%q) error = %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ValidateQuery(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func ptr(f float64) *float64 { return &f }

func TestValidateLocationRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     LocationRequest
		want    models.LocationData
		wantErr string
	}{
		{
			name: "valid",
			req:  LocationRequest{Name: " London ", Latitude: ptr(51.52), Longitude: ptr(-0.11)},
			want: models.LocationData{Name: "London", Latitude: 51.52, Longitude: -0.11},
		},
		{
			name: "zero coordinates allowed",
			req:  LocationRequest{Latitude: ptr(0), Longitude: ptr(0)},
			want: models.LocationData{},
		},
		{name: "missing latitude", req: LocationRequest{Longitude: ptr(1)}, wantErr: "latitude"},
		{name: "missing longitude", req: LocationRequest{Latitude: ptr(1)}, wantErr: "longitude"},
		{name: "latitude out of range", req: LocationRequest{Latitude: ptr(90.5), Longitude: ptr(0)}, wantErr: "latitude"},
		{name: "longitude out of range", req: LocationRequest{Latitude: ptr(0), Longitude: ptr(-181)}, wantErr: "longitude"},
		{name: "name too long", req: LocationRequest{Name: strings.Repeat("n", 201), Latitude: ptr(0), Longitude: ptr(0)}, wantErr: "name"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ValidateLocationRequest(tc.req)
			if tc.wantErr != "" {
				if !errors.Is(err, ErrInvalidLocation) {
					t.Fatalf("error = %v, want ErrInvalidLocation", err)
				}
				if !strings.Contains(err.Error(), tc.wantErr) {
					t.Errorf("error = %q, want to mention %q", err.Error(), tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
