package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kjstillabower/weather-sync-service/internal/models"
)

// ErrQueryEmpty is returned when a search query is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("query is required")

// ErrQueryTooShort is returned when the query length is below the minimum.
var ErrQueryTooShort = errors.New("query too short")

// ErrQueryTooLong is returned when the query length exceeds the maximum.
var ErrQueryTooLong = errors.New("query too long")

// ErrQueryInvalidChars is returned when the query contains disallowed characters.
var ErrQueryInvalidChars = errors.New("query contains invalid characters")

// ErrInvalidLocation is returned when a location selection payload fails validation.
var ErrInvalidLocation = errors.New("invalid location")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("querychars", func(fl validator.FieldLevel) bool {
		for _, c := range fl.Field().String() {
			if !isAllowedQueryRune(c) {
				return false
			}
		}
		return true
	}); err != nil {
		panic(err)
	}
	return v
}

// ValidateQuery trims the input, enforces length bounds (minLen, maxLen in runes;
// either is skipped when not positive), and restricts to letters (Unicode), digits,
// space, comma, hyphen, period and apostrophe.
// Returns the trimmed string or an error suitable for 400 INVALID_QUERY responses.
func ValidateQuery(input string, minLen, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrQueryEmpty
	}
	tags := []string{}
	if minLen > 0 {
		tags = append(tags, fmt.Sprintf("min=%d", minLen))
	}
	if maxLen > 0 {
		tags = append(tags, fmt.Sprintf("max=%d", maxLen))
	}
	tags = append(tags, "querychars")
	if err := validate.Var(s, strings.Join(tags, ",")); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return "", err
		}
		switch verrs[0].Tag() {
		case "min":
			return "", ErrQueryTooShort
		case "max":
			return "", ErrQueryTooLong
		default:
			return "", ErrQueryInvalidChars
		}
	}
	return s, nil
}

func isAllowedQueryRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsNumber(r) {
		return true
	}
	switch r {
	case ' ', ',', '-', '.', '\'':
		return true
	}
	return false
}

// LocationRequest is the payload for selecting a location. Coordinates are
// pointers so an explicit 0 is distinguishable from a missing field.
type LocationRequest struct {
	Name      string   `json:"name" validate:"max=200"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
}

// ValidateLocationRequest checks req and converts it to a LocationData. The
// returned error wraps ErrInvalidLocation and names the first failing field.
func ValidateLocationRequest(req LocationRequest) (models.LocationData, error) {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return models.LocationData{}, fmt.Errorf("%w: %s failed %q", ErrInvalidLocation, strings.ToLower(fe.Field()), fe.Tag())
		}
		return models.LocationData{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	return models.LocationData{
		Name:      strings.TrimSpace(req.Name),
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	}, nil
}
