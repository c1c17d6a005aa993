package domain

import (
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/pkg/errors"
)

const (
	BirthDateLayout    = "02-01-2006"
	BirthDateISOLayout = "2006-01-02"
	BirthTimeLayout    = "15:04"
)

// ProfileInput is the raw user payload before validation.
type ProfileInput struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	BirthDate  string `json:"birth_date"`
	BirthTime  string `json:"birth_time,omitempty"`
	BirthPlace string `json:"birth_place,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
	Gender     string `json:"gender,omitempty"`
}

// UserProfile is a validated profile. Birth is timezone-aware.
type UserProfile struct {
	ID         string
	Username   string
	FirstName  string
	LastName   string
	Birth      time.Time
	HasTime    bool
	BirthPlace string
	Gender     string
}

// FullName joins the title-cased first and last names.
func (p UserProfile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p UserProfile) BirthDateString() string {
	return p.Birth.Format(BirthDateISOLayout)
}

// ParseProfile validates raw fields. It performs no I/O; astrology is a
// separate step.
func ParseProfile(in ProfileInput) (UserProfile, error) {
	if strings.TrimSpace(in.Username) == "" {
		return UserProfile{}, errors.NewValidationError("username is required", "username", in.Username)
	}

	date, err := parseBirthDate(in.BirthDate)
	if err != nil {
		return UserProfile{}, err
	}

	hour, minute, hasTime := 0, 0, false
	if t := strings.TrimSpace(in.BirthTime); t != "" {
		parsed, err := time.Parse(BirthTimeLayout, t)
		if err != nil {
			return UserProfile{}, errors.NewValidationError("birth_time must be HH:MM", "birth_time", in.BirthTime)
		}
		hour, minute, hasTime = parsed.Hour(), parsed.Minute(), true
	}

	place := strings.TrimSpace(in.BirthPlace)
	if place == "" {
		place = constants.DefaultBirthPlace
	}

	loc, err := resolveLocation(strings.TrimSpace(in.Timezone), place)
	if err != nil {
		return UserProfile{}, err
	}

	gender := strings.TrimSpace(in.Gender)
	if gender == "" {
		gender = "UNKNOWN"
	}

	return UserProfile{
		ID:         strings.TrimSpace(in.ID),
		Username:   strings.TrimSpace(in.Username),
		FirstName:  DisplayName(in.FirstName),
		LastName:   DisplayName(in.LastName),
		Birth:      time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, loc),
		HasTime:    hasTime,
		BirthPlace: place,
		Gender:     gender,
	}, nil
}

// DisplayName trims and title-cases a name. A cases.Caser keeps state
// between calls, so each call builds its own.
func DisplayName(name string) string {
	return cases.Title(language.Und).String(strings.TrimSpace(name))
}

// parseBirthDate accepts DD-MM-YYYY, and YYYY-MM-DD as a fallback.
func parseBirthDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.NewValidationError("birth_date is required", "birth_date", raw)
	}
	for _, layout := range []string{BirthDateLayout, BirthDateISOLayout} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.NewValidationError("birth_date must be DD-MM-YYYY", "birth_date", raw)
}

// resolveLocation prefers an explicit timezone, then a birth place that is
// itself an IANA zone name, then UTC.
func resolveLocation(tz, place string) (*time.Location, error) {
	if tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, errors.NewValidationError("unknown timezone", "timezone", tz)
		}
		return loc, nil
	}
	if IsZoneName(place) {
		if loc, err := time.LoadLocation(place); err == nil {
			return loc, nil
		}
	}
	return time.UTC, nil
}

// IsZoneName reports whether s looks like an IANA "Area/Location" name.
func IsZoneName(s string) bool {
	return strings.Contains(s, "/") && !strings.ContainsAny(s, " ,")
}

// Astrology is the computed natal summary for a profile.
type Astrology struct {
	SunSign               string             `json:"sun_sign"`
	MoonSign              string             `json:"moon_sign"`
	RisingSign            string             `json:"rising_sign"`
	HousePlacements       map[string]*string `json:"house_placements"`
	ElementalDistribution map[string]int     `json:"elemental_distribution"`
	ModalityDistribution  map[string]int     `json:"modality_distribution"`
	DominantPlanets       map[string]int     `json:"dominant_planets"`
	Latitude              float64            `json:"latitude"`
	Longitude             float64            `json:"longitude"`
}

// UserAstrology is the /user_astrology/ response body.
type UserAstrology struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	FirstName  string  `json:"first_name"`
	LastName   string  `json:"last_name"`
	BirthDate  string  `json:"birth_date"`
	BirthTime  *string `json:"birth_time,omitempty"`
	BirthPlace string  `json:"birth_place"`
	Timezone   string  `json:"timezone"`
	Gender     string  `json:"gender"`
	Astrology
}

func NewUserAstrology(p UserProfile, a Astrology) UserAstrology {
	out := UserAstrology{
		ID:         p.ID,
		Username:   p.Username,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		BirthDate:  p.BirthDateString(),
		BirthPlace: p.BirthPlace,
		Timezone:   p.Birth.Location().String(),
		Gender:     p.Gender,
		Astrology:  a,
	}
	if p.HasTime {
		t := p.Birth.Format(BirthTimeLayout)
		out.BirthTime = &t
	}
	return out
}
