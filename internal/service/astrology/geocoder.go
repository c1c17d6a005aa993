package astrology

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	geo "github.com/codingsince1985/geo-golang"
	"github.com/codingsince1985/geo-golang/openstreetmap"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/constants"
	"github.com/kapu/taro-go/internal/domain"
	"github.com/kapu/taro-go/pkg/errors"
)

const CodeGeocode = "GEOCODE_ERROR"

// GeocodeError means a place name could not be resolved to coordinates.
type GeocodeError struct {
	*errors.TaroError
	Place string
}

func NewGeocodeError(place string, cause error) *GeocodeError {
	e := &GeocodeError{
		TaroError: errors.NewTaroError(
			fmt.Sprintf("could not geocode location: %s", place),
			CodeGeocode,
			http.StatusBadGateway,
			map[string]any{"place": place},
		),
		Place: place,
	}
	e.Cause = cause
	return e
}

type Coordinates struct {
	Latitude  float64
	Longitude float64
}

type Geocoder interface {
	Geocode(ctx context.Context, place string) (Coordinates, error)
}

// NominatimGeocoder resolves places with the OpenStreetMap search API.
type NominatimGeocoder struct {
	lookup  geo.Geocoder
	timeout time.Duration
	logger  *zap.Logger
}

func NewNominatimGeocoder(baseURL string, logger *zap.Logger) *NominatimGeocoder {
	baseURL = strings.TrimRight(baseURL, "/") + "/"
	return &NominatimGeocoder{
		lookup:  openstreetmap.GeocoderWithURL(baseURL),
		timeout: constants.Timeouts.Geocode,
		logger:  logger,
	}
}

type geocodeResult struct {
	loc *geo.Location
	err error
}

// Geocode returns when the lookup finishes or ctx is done. The client has no
// context support, so an abandoned lookup ends on its own request timeout.
func (g *NominatimGeocoder) Geocode(ctx context.Context, place string) (Coordinates, error) {
	query := SearchQuery(place)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan geocodeResult, 1)
	go func() {
		loc, err := g.lookup.Geocode(query)
		done <- geocodeResult{loc: loc, err: err}
	}()

	var res geocodeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		return Coordinates{}, NewGeocodeError(place, ctx.Err())
	}

	if res.err != nil {
		return Coordinates{}, NewGeocodeError(place, res.err)
	}
	if res.loc == nil {
		return Coordinates{}, NewGeocodeError(place, nil)
	}

	g.logger.Debug("Place geocoded",
		zap.String("query", query),
		zap.Float64("lat", res.loc.Lat),
		zap.Float64("lng", res.loc.Lng),
	)
	return Coordinates{Latitude: res.loc.Lat, Longitude: res.loc.Lng}, nil
}

// SearchQuery turns an IANA zone name such as "America/New_York" into
// "New York, America"; other places pass through trimmed.
func SearchQuery(place string) string {
	place = strings.TrimSpace(place)
	if !domain.IsZoneName(place) {
		return place
	}
	parts := strings.Split(place, "/")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "_", " ")
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ", ")
}
