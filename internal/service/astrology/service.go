package astrology

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/pkg/errors"
)

var zodiac = [12]struct {
	Sign     string
	Element  string
	Modality string
}{
	{"Aries", "Fire", "Cardinal"},
	{"Taurus", "Earth", "Fixed"},
	{"Gemini", "Air", "Mutable"},
	{"Cancer", "Water", "Cardinal"},
	{"Leo", "Fire", "Fixed"},
	{"Virgo", "Earth", "Mutable"},
	{"Libra", "Air", "Cardinal"},
	{"Scorpio", "Water", "Fixed"},
	{"Sagittarius", "Fire", "Mutable"},
	{"Capricorn", "Earth", "Cardinal"},
	{"Aquarius", "Air", "Fixed"},
	{"Pisces", "Water", "Mutable"},
}

const unknownSign = "Unknown"

// SignIndex maps an ecliptic longitude to 0 (Aries) .. 11 (Pisces).
func SignIndex(longitude float64) int {
	return int(normalizeDegrees(longitude)/30) % 12
}

func SignOf(longitude float64) string {
	return zodiac[SignIndex(longitude)].Sign
}

// HouseLabel renders "1st House", "2nd House", ... "12th House".
func HouseLabel(n int) string {
	suffix := "th"
	if n%100 < 11 || n%100 > 13 {
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s House", n, suffix)
}

// Service resolves a birth place and computes a natal summary. Every call
// recomputes from scratch and returns a new value.
type Service struct {
	geocoder   Geocoder
	calculator ChartCalculator
	logger     *zap.Logger
}

func NewService(geocoder Geocoder, calculator ChartCalculator, logger *zap.Logger) *Service {
	return &Service{geocoder: geocoder, calculator: calculator, logger: logger}
}

func (s *Service) Compute(ctx context.Context, profile domain.UserProfile) (domain.Astrology, error) {
	coords, err := s.geocoder.Geocode(ctx, profile.BirthPlace)
	if err != nil {
		return domain.Astrology{}, err
	}

	chart, err := s.calculator.Chart(profile.Birth, coords)
	if err != nil {
		return domain.Astrology{}, errors.NewServiceError("natal chart computation failed", "astrology", "chart", err)
	}

	out := summarize(chart, profile.HasTime)
	out.Latitude = coords.Latitude
	out.Longitude = coords.Longitude

	s.logger.Debug("Natal chart computed",
		zap.String("sun", out.SunSign),
		zap.String("moon", out.MoonSign),
		zap.Bool("has_time", profile.HasTime),
	)
	return out, nil
}

// summarize builds the response view of a chart. Without a birth time the
// rising sign and whole-sign houses are meaningless, so they are left
// unknown and every house placement is null.
func summarize(chart Chart, hasTime bool) domain.Astrology {
	out := domain.Astrology{
		SunSign:               unknownSign,
		MoonSign:              unknownSign,
		RisingSign:            unknownSign,
		HousePlacements:       make(map[string]*string, 12),
		ElementalDistribution: make(map[string]int),
		ModalityDistribution:  make(map[string]int),
		DominantPlanets:       make(map[string]int),
	}

	for _, b := range chart.Bodies {
		sign := zodiac[SignIndex(b.Longitude)]
		switch b.Name {
		case "Sun":
			out.SunSign = sign.Sign
		case "Moon":
			out.MoonSign = sign.Sign
		}
		out.ElementalDistribution[sign.Element]++
		out.ModalityDistribution[sign.Modality]++
		out.DominantPlanets[b.Name]++
	}

	ascIndex := SignIndex(chart.Ascendant)
	if hasTime {
		out.RisingSign = zodiac[ascIndex].Sign
	}
	for house := 1; house <= 12; house++ {
		if !hasTime {
			out.HousePlacements[HouseLabel(house)] = nil
			continue
		}
		sign := zodiac[(ascIndex+house-1)%12].Sign
		out.HousePlacements[HouseLabel(house)] = &sign
	}

	return out
}
